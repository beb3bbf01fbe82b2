package physics

import (
	"fmt"
	"math"

	"github.com/san-kum/ivpsolve/internal/dynamo"
)

// GBM is geometric Brownian motion dX = μX dt + σX dW, applied to each
// component independently. E[X(t)] = X0·e^{μt}.
type GBM struct {
	Mu, Sigma float64
	Dim       int
}

func NewGBM() *GBM { return &GBM{Mu: 0.5, Sigma: 0.2, Dim: 1} }

func (g *GBM) StateDim() int { return g.Dim }

func (g *GBM) Drift(_ float64, y dynamo.State) dynamo.State {
	return y.Scale(g.Mu)
}

func (g *GBM) Diffusion(_ float64, y dynamo.State) dynamo.State {
	return y.Scale(g.Sigma)
}

func (g *GBM) DefaultState() dynamo.State {
	y := make(dynamo.State, g.Dim)
	for i := range y {
		y[i] = 1
	}
	return y
}

// Mean is the expected state at t.
func (g *GBM) Mean(t0 float64, y0 dynamo.State, t float64) dynamo.State {
	return y0.Scale(math.Exp(g.Mu * (t - t0)))
}

func (g *GBM) GetParams() map[string]float64 {
	return map[string]float64{"mu": g.Mu, "sigma": g.Sigma}
}

func (g *GBM) SetParam(name string, value float64) error {
	switch name {
	case "mu":
		g.Mu = value
	case "sigma":
		if value < 0 {
			return fmt.Errorf("sigma must be non-negative: %w", dynamo.ErrParameterBounds)
		}
		g.Sigma = value
	default:
		return fmt.Errorf("unknown param: %s", name)
	}
	return nil
}

// OrnsteinUhlenbeck is the mean-reverting process dX = θ(μ − X) dt + σ dW.
type OrnsteinUhlenbeck struct {
	Theta, Mu, Sigma float64
}

func NewOrnsteinUhlenbeck() *OrnsteinUhlenbeck {
	return &OrnsteinUhlenbeck{Theta: 1.0, Mu: 0.0, Sigma: 0.3}
}

func (o *OrnsteinUhlenbeck) StateDim() int { return 1 }

func (o *OrnsteinUhlenbeck) Drift(_ float64, y dynamo.State) dynamo.State {
	return dynamo.State{o.Theta * (o.Mu - y[0])}
}

func (o *OrnsteinUhlenbeck) Diffusion(_ float64, y dynamo.State) dynamo.State {
	return dynamo.State{o.Sigma}
}

func (o *OrnsteinUhlenbeck) DefaultState() dynamo.State { return dynamo.State{1} }

func (o *OrnsteinUhlenbeck) Mean(t0 float64, y0 dynamo.State, t float64) dynamo.State {
	return dynamo.State{o.Mu + (y0[0]-o.Mu)*math.Exp(-o.Theta*(t-t0))}
}

func (o *OrnsteinUhlenbeck) GetParams() map[string]float64 {
	return map[string]float64{"theta": o.Theta, "mu": o.Mu, "sigma": o.Sigma}
}

func (o *OrnsteinUhlenbeck) SetParam(name string, value float64) error {
	switch name {
	case "theta":
		o.Theta = value
	case "mu":
		o.Mu = value
	case "sigma":
		if value < 0 {
			return fmt.Errorf("sigma must be non-negative: %w", dynamo.ErrParameterBounds)
		}
		o.Sigma = value
	default:
		return fmt.Errorf("unknown param: %s", name)
	}
	return nil
}
