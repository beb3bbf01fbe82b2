// Package storage keeps finished runs on disk, one directory per run with
// metadata.json and states.csv, and exports trajectories as CSV or JSON.
package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/san-kum/ivpsolve/internal/config"
	"github.com/san-kum/ivpsolve/internal/sim"
)

const (
	metadataFile = "metadata.json"
	statesFile   = "states.csv"
)

var ErrRunNotFound = errors.New("storage: run not found")

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

func (s *Store) Dir() string { return s.baseDir }

type RunMetadata struct {
	ID        string             `json:"id"`
	Problem   string             `json:"problem"`
	Method    string             `json:"method"`
	Timestamp time.Time          `json:"timestamp"`
	Seed      uint64             `json:"seed"`
	T0        float64            `json:"t0"`
	T1        float64            `json:"t1"`
	Tau       float64            `json:"tau"`
	FinalTime float64            `json:"final_time"`
	Accepted  int                `json:"accepted"`
	Rejected  int                `json:"rejected"`
	Stopped   bool               `json:"stopped,omitempty"`
	Error     string             `json:"error,omitempty"`
	Metrics   map[string]float64 `json:"metrics"`
	Config    *config.Config     `json:"config,omitempty"`
}

// Trajectory is the observed part of a run as read back from states.csv.
type Trajectory struct {
	Times     []float64
	TimeSteps []float64
	Errors    []float64
	States    [][]float64
}

// Save writes result under a new run directory and returns the run ID.
// runErr, if any, is recorded with the partial result.
func (s *Store) Save(cfg *config.Config, result *sim.Result, runErr error) (string, error) {
	now := time.Now()
	runID := fmt.Sprintf("%s_%s_%d", cfg.Problem, cfg.Method, now.UnixNano())
	runDir := filepath.Join(s.baseDir, runID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta := RunMetadata{
		ID:        runID,
		Problem:   cfg.Problem,
		Method:    cfg.Method,
		Timestamp: now,
		Seed:      cfg.Seed,
		T0:        cfg.T0,
		T1:        cfg.T1,
		Tau:       cfg.Tau,
		FinalTime: result.FinalTime,
		Accepted:  result.Accepted,
		Rejected:  result.Rejected,
		Stopped:   result.Stopped,
		Metrics:   finiteMetrics(result.Metrics),
		Config:    cfg,
	}
	if runErr != nil {
		meta.Error = runErr.Error()
	}

	if err := writeJSON(filepath.Join(runDir, metadataFile), meta); err != nil {
		return "", err
	}

	f, err := os.Create(filepath.Join(runDir, statesFile))
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err := WriteCSV(f, result); err != nil {
		return "", err
	}
	return runID, f.Close()
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return err
	}
	return f.Close()
}

// List returns the metadata of every readable run, newest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.After(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}
	return &meta, nil
}

func (s *Store) LoadStates(runID string) (*Trajectory, error) {
	f, err := os.Open(filepath.Join(s.baseDir, runID, statesFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}

	traj := &Trajectory{}
	if len(records) < 2 {
		return traj, nil
	}

	for i, record := range records[1:] {
		if len(record) < stateColumn {
			return nil, fmt.Errorf("states.csv line %d: %d fields", i+2, len(record))
		}
		row := make([]float64, len(record))
		for j, field := range record {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("states.csv line %d: %w", i+2, err)
			}
			row[j] = v
		}
		traj.Times = append(traj.Times, row[0])
		traj.TimeSteps = append(traj.TimeSteps, row[1])
		traj.Errors = append(traj.Errors, row[2])
		traj.States = append(traj.States, row[stateColumn:])
	}
	return traj, nil
}
