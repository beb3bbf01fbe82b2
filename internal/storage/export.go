package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/san-kum/ivpsolve/internal/config"
	"github.com/san-kum/ivpsolve/internal/sim"
)

// columns before the state components: time, tau, error
const stateColumn = 3

// WriteCSV writes one row per observation. Values use the shortest
// representation that parses back to the same float64.
func WriteCSV(w io.Writer, result *sim.Result) error {
	cw := csv.NewWriter(w)

	if len(result.States) > 0 {
		header := []string{"time", "tau", "error"}
		for i := range result.States[0] {
			header = append(header, fmt.Sprintf("x%d", i))
		}
		if err := cw.Write(header); err != nil {
			return err
		}
	}

	for i, state := range result.States {
		row := []string{
			format(result.Times[i]),
			format(at(result.TimeSteps, i)),
			format(at(result.Errors, i)),
		}
		for _, val := range state {
			row = append(row, format(val))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func format(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

func at(s []float64, i int) float64 {
	if i < len(s) {
		return s[i]
	}
	return 0
}

// Number encodes non-finite values as null.
type Number float64

func (n Number) MarshalJSON() ([]byte, error) {
	f := float64(n)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(f)
}

type ExportData struct {
	Problem   string            `json:"problem"`
	Method    string            `json:"method"`
	T0        float64           `json:"t0"`
	T1        float64           `json:"t1"`
	Tau       float64           `json:"tau"`
	Steps     int               `json:"steps"`
	Accepted  int               `json:"accepted"`
	Rejected  int               `json:"rejected"`
	Times     []float64         `json:"times"`
	TimeSteps []float64         `json:"time_steps"`
	Errors    []Number          `json:"errors"`
	States    [][]Number        `json:"states"`
	Metrics   map[string]Number `json:"metrics"`
}

func NewExportData(cfg *config.Config, result *sim.Result) ExportData {
	data := ExportData{
		Problem:   cfg.Problem,
		Method:    cfg.Method,
		T0:        cfg.T0,
		T1:        cfg.T1,
		Tau:       cfg.Tau,
		Steps:     len(result.Times),
		Accepted:  result.Accepted,
		Rejected:  result.Rejected,
		Times:     result.Times,
		TimeSteps: result.TimeSteps,
		Errors:    numbers(result.Errors),
		States:    make([][]Number, len(result.States)),
		Metrics:   make(map[string]Number, len(result.Metrics)),
	}
	for i, s := range result.States {
		data.States[i] = numbers(s)
	}
	for k, v := range result.Metrics {
		data.Metrics[k] = Number(v)
	}
	return data
}

func numbers(s []float64) []Number {
	out := make([]Number, len(s))
	for i, v := range s {
		out[i] = Number(v)
	}
	return out
}

func ExportJSON(w io.Writer, cfg *config.Config, result *sim.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(NewExportData(cfg, result))
}

func finiteMetrics(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out[k] = v
		}
	}
	return out
}
