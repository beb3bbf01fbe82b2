// Package metrics provides trajectory metrics fed at the observation points
// of an integration: global error against a closed-form solution, energy
// drift, a stability ratio, step statistics and a Prometheus recorder.
//
// Every metric implements dynamo.Metric and can be attached to a
// sim.Simulator with AddMetric.
package metrics
