package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/briandowns/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/guptarohit/asciigraph"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/stat"

	"github.com/san-kum/ivpsolve/internal/analysis"
	"github.com/san-kum/ivpsolve/internal/automation"
	"github.com/san-kum/ivpsolve/internal/config"
	"github.com/san-kum/ivpsolve/internal/dynamo"
	"github.com/san-kum/ivpsolve/internal/experiment"
	"github.com/san-kum/ivpsolve/internal/export"
	"github.com/san-kum/ivpsolve/internal/metrics"
	"github.com/san-kum/ivpsolve/internal/optim"
	"github.com/san-kum/ivpsolve/internal/sim"
	"github.com/san-kum/ivpsolve/internal/storage"
	"github.com/san-kum/ivpsolve/internal/viz"
)

var (
	dataDir     string
	logLevel    string
	metricsAddr string

	configFile string
	preset     string
	method     string
	t0         float64
	t1         float64
	tau        float64
	frequency  float64
	tolerance  float64
	seed       uint64
	noVerify   bool

	outFile     string
	paths       int
	concurrency int
	metricName  string
	frameTime   float64

	xAxis      int
	yAxis      int
	paramName  string
	paramFrom  float64
	paramTo    float64
	paramSteps int
	index      int
	transient  float64

	trials       int
	perturbation float64
	noSave       bool
	dots         bool
)

var logger zerolog.Logger

// main registers the commands and flags and exits with status 1 on error.
// Without a subcommand the interactive problem/method picker is started.
func main() {
	rootCmd := &cobra.Command{
		Use:           "ivpsolve",
		Short:         "initial-value problem solver lab",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogger()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, "")
			if err != nil {
				return err
			}
			_, err = tea.NewProgram(viz.NewApp(experiment.NewRegistry(), cfg), tea.WithAltScreen()).Run()
			return err
		},
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".ivpsolve", "data directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address while running")
	addConfigFlags(rootCmd)

	runCmd := &cobra.Command{
		Use:   "run [problem]",
		Short: "solve a problem and store the trajectory",
		Args:  cobra.ExactArgs(1),
		RunE:  runProblem,
	}
	addConfigFlags(runCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		RunE:  listRuns,
	}

	problemsCmd := &cobra.Command{
		Use:   "problems",
		Short: "list problems and methods",
		RunE:  listProblems,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "print run metadata",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [run_id]",
		Short: "export run data to CSV",
		Args:  cobra.ExactArgs(1),
		RunE:  exportCSV,
	}
	exportCSVCmd.Flags().StringVarP(&outFile, "out", "o", "", "output file (stdout when empty)")

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export run data to JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}
	exportJSONCmd.Flags().StringVarP(&outFile, "out", "o", "", "output file (stdout when empty)")

	compareCmd := &cobra.Command{
		Use:   "compare [problem] [method1] [method2] ...",
		Short: "compare methods on the same problem",
		Args:  cobra.MinimumNArgs(2),
		RunE:  compareMethods,
	}
	addConfigFlags(compareCmd)

	presetsCmd := &cobra.Command{
		Use:   "presets [problem]",
		Short: "list available presets for a problem",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			presets := config.ListPresets(args[0])
			if len(presets) == 0 {
				fmt.Printf("no presets for problem: %s\n", args[0])
				return nil
			}
			fmt.Printf("presets for %s:\n", args[0])
			for _, p := range presets {
				cfg := config.GetPreset(args[0], p)
				fmt.Printf("  %-10s %s tau=%g t1=%g\n", p, cfg.Method, cfg.Tau, cfg.T1)
			}
			return nil
		},
	}

	liveCmd := &cobra.Command{
		Use:   "live [problem]",
		Short: "solve with live terminal visualization",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLive,
	}
	addConfigFlags(liveCmd)
	liveCmd.Flags().Float64Var(&frameTime, "frame", 0, "model time advanced per frame (auto when 0)")

	ensembleCmd := &cobra.Command{
		Use:   "ensemble [problem]",
		Short: "integrate independent paths of a stochastic problem",
		Args:  cobra.ExactArgs(1),
		RunE:  runEnsemble,
	}
	addConfigFlags(ensembleCmd)
	ensembleCmd.Flags().IntVar(&paths, "paths", 1000, "number of paths")
	ensembleCmd.Flags().IntVar(&concurrency, "concurrency", 0, "parallel paths (GOMAXPROCS when 0)")

	tuneCmd := &cobra.Command{
		Use:   "tune [problem]",
		Short: "sweep the step-size controller parameters",
		Args:  cobra.ExactArgs(1),
		RunE:  tuneAdaptive,
	}
	addConfigFlags(tuneCmd)
	tuneCmd.Flags().StringVar(&metricName, "metric", "global_error", "metric to minimize")

	phaseCmd := &cobra.Command{
		Use:   "phase [run_id]",
		Short: "phase space plot of a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  phasePlot,
	}
	phaseCmd.Flags().IntVar(&xAxis, "x-axis", 0, "state index for x-axis")
	phaseCmd.Flags().IntVar(&yAxis, "y-axis", 1, "state index for y-axis")

	analyzeCmd := &cobra.Command{
		Use:   "analyze [run_id]",
		Short: "frequency analysis of a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  analyzeRun,
	}

	lyapunovCmd := &cobra.Command{
		Use:   "lyapunov [problem]",
		Short: "estimate the largest Lyapunov exponent",
		Args:  cobra.ExactArgs(1),
		RunE:  lyapunovExponent,
	}
	addConfigFlags(lyapunovCmd)

	bifurcationCmd := &cobra.Command{
		Use:   "bifurcation [problem]",
		Short: "sweep a parameter and plot the local maxima of one component",
		Args:  cobra.ExactArgs(1),
		RunE:  bifurcationDiagram,
	}
	addConfigFlags(bifurcationCmd)
	bifurcationCmd.Flags().StringVar(&paramName, "param", "", "parameter to sweep")
	bifurcationCmd.Flags().Float64Var(&paramFrom, "from", 0, "first parameter value")
	bifurcationCmd.Flags().Float64Var(&paramTo, "to", 1, "last parameter value")
	bifurcationCmd.Flags().IntVar(&paramSteps, "steps", 40, "number of parameter values")
	bifurcationCmd.Flags().IntVar(&index, "index", 0, "state component to record")
	bifurcationCmd.Flags().Float64Var(&transient, "transient", 50, "model time discarded before recording")
	_ = bifurcationCmd.MarkFlagRequired("param")

	exportSVGCmd := &cobra.Command{
		Use:   "export-svg [run_id]",
		Short: "export a phase plot of a run to SVG",
		Args:  cobra.ExactArgs(1),
		RunE:  exportSVG,
	}
	exportSVGCmd.Flags().StringVarP(&outFile, "out", "o", "", "output file (stdout when empty)")
	exportSVGCmd.Flags().IntVar(&xAxis, "x-axis", 0, "state index for x-axis")
	exportSVGCmd.Flags().IntVar(&yAxis, "y-axis", 1, "state index for y-axis")
	exportSVGCmd.Flags().BoolVar(&dots, "dots", false, "render the braille canvas as dots instead of a path")

	scenarioCmd := &cobra.Command{
		Use:   "scenario [file]",
		Short: "run a yaml scenario of experiments",
		Args:  cobra.ExactArgs(1),
		RunE:  runScenario,
	}
	scenarioCmd.Flags().BoolVar(&noSave, "no-save", false, "do not store the runs")

	monteCarloCmd := &cobra.Command{
		Use:   "montecarlo [problem]",
		Short: "count stable runs over perturbed initial states",
		Args:  cobra.ExactArgs(1),
		RunE:  runMonteCarlo,
	}
	addConfigFlags(monteCarloCmd)
	monteCarloCmd.Flags().IntVar(&trials, "trials", 100, "number of trials")
	monteCarloCmd.Flags().Float64Var(&perturbation, "perturbation", 0.1, "half-width of the uniform perturbation")
	monteCarloCmd.Flags().IntVar(&concurrency, "concurrency", 0, "parallel trials (GOMAXPROCS when 0)")

	rootCmd.AddCommand(runCmd, listCmd, problemsCmd, plotCmd, exportCmd, exportCSVCmd, exportJSONCmd,
		compareCmd, presetsCmd, liveCmd, ensembleCmd, tuneCmd, phaseCmd, analyzeCmd, lyapunovCmd, bifurcationCmd,
		exportSVGCmd, scenarioCmd, monteCarloCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func addConfigFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&configFile, "config", "", "config file path (yaml)")
	f.StringVar(&preset, "preset", "", "use preset configuration")
	f.StringVar(&method, "method", config.DefaultConfig().Method, "integration method")
	f.Float64Var(&t0, "t0", 0, "initial time")
	f.Float64Var(&t1, "t1", config.DefaultT1, "final time")
	f.Float64Var(&tau, "tau", config.DefaultTau, "step size (initial step for adaptive methods)")
	f.Float64Var(&frequency, "freq", config.AutoFrequency, "observation interval (0 every step, negative automatic)")
	f.Float64Var(&tolerance, "tol", 0, "adaptive error tolerance")
	f.Uint64Var(&seed, "seed", config.DefaultSeed, "random seed for stochastic problems")
	f.BoolVar(&noVerify, "no-verify", false, "do not stop on non-finite states")
}

// startSpinner shows msg with a spinner on stderr until the returned
// function is called.
func startSpinner(msg string) func() {
	s := spinner.New(spinner.CharSets[11], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	s.Suffix = " " + msg
	s.Start()
	return s.Stop
}

func setupLogger() error {
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", logLevel, err)
	}
	logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).
		With().Timestamp().Logger()
	return nil
}

// loadConfig layers preset, config file and explicitly set flags over the
// defaults. problem, when non-empty, replaces the configured problem.
func loadConfig(cmd *cobra.Command, problem string) (*config.Config, error) {
	cfg := config.DefaultConfig()

	if preset != "" {
		p := config.GetPreset(problem, preset)
		if p == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets(problem))
		}
		cfg = p
	}

	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	if problem != "" {
		cfg.Problem = problem
	}

	flags := cmd.Flags()
	if flags.Changed("method") {
		cfg.Method = method
	}
	if flags.Changed("t0") {
		cfg.T0 = t0
	}
	if flags.Changed("t1") {
		cfg.T1 = t1
	}
	if flags.Changed("tau") {
		cfg.Tau = tau
	}
	if flags.Changed("freq") {
		cfg.Frequency = frequency
	}
	if flags.Changed("tol") {
		cfg.Adaptive.Tolerance = tolerance
	}
	if flags.Changed("seed") {
		cfg.Seed = seed
	}
	if flags.Changed("no-verify") {
		cfg.Verify = !noVerify
	}

	// presets name their own method; a stochastic problem without one falls
	// back to Euler-Maruyama
	reg := experiment.NewRegistry()
	if reg.IsStochastic(cfg.Problem) && !flags.Changed("method") && preset == "" && configFile == "" {
		cfg.Method = "euler-maruyama"
	}

	return cfg, cfg.Validate()
}

// serveMetrics starts a prometheus endpoint on metricsAddr and returns the
// registry to attach recorders to. The returned stop function shuts the
// server down.
func serveMetrics() (*prometheus.Registry, func()) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Str("addr", metricsAddr).Msg("metrics server failed")
		}
	}()
	logger.Info().Str("addr", metricsAddr).Msg("serving metrics")

	return reg, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func setupExperiment(cfg *config.Config) (*experiment.Experiment, func(), error) {
	exp := experiment.New(cfg, nil)
	exp.SetLogger(logger)
	if err := exp.Setup(); err != nil {
		return nil, nil, err
	}

	stop := func() {}
	if metricsAddr != "" && !exp.Stochastic() {
		var reg *prometheus.Registry
		reg, stop = serveMetrics()
		exp.Simulator().AddMetric(metrics.NewRecorder(reg, cfg.Problem, cfg.Method))
	}
	return exp, stop, nil
}

func runProblem(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args[0])
	if err != nil {
		return err
	}

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}

	exp, stop, err := setupExperiment(cfg)
	if err != nil {
		return err
	}
	defer stop()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	stopSpinner := startSpinner(fmt.Sprintf("solving %s with %s", cfg.Problem, cfg.Method))
	start := time.Now()

	result, runErr := exp.Run(ctx)
	stopSpinner()
	if result == nil {
		return runErr
	}
	elapsed := time.Since(start)

	runID, err := st.Save(cfg, result, runErr)
	if err != nil {
		return err
	}

	fmt.Printf("completed in %v\n", elapsed)
	fmt.Printf("run id: %s\n", runID)
	fmt.Printf("final time: %g\n", result.FinalTime)
	fmt.Printf("observations: %d\n", len(result.Times))
	fmt.Printf("steps: %d accepted, %d rejected\n", result.Accepted, result.Rejected)
	printMetrics(result.Metrics)

	return runErr
}

func printMetrics(m map[string]float64) {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println("\nmetrics:")
	for _, name := range names {
		fmt.Printf("  %s: %.6g\n", name, m[name])
	}
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPROBLEM\tMETHOD\tTIME\tT1\tTAU\tSTEPS\tSTATUS")

	for _, run := range runs {
		status := "ok"
		switch {
		case run.Error != "":
			status = "failed"
		case run.Stopped:
			status = "stopped"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%g\t%.1e\t%d/%d\t%s\n",
			run.ID,
			run.Problem,
			run.Method,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.T1,
			run.Tau,
			run.Accepted,
			run.Rejected,
			status,
		)
	}

	return w.Flush()
}

func listProblems(cmd *cobra.Command, args []string) error {
	reg := experiment.NewRegistry()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "problems\t%s\n", strings.Join(reg.ListProblems(), ", "))
	fmt.Fprintf(w, "methods\t%s\n", strings.Join(reg.ListMethods(), ", "))
	fmt.Fprintf(w, "stochastic\t%s\n", strings.Join(reg.ListStochastic(), ", "))
	fmt.Fprintf(w, "sde methods\t%s\n", strings.Join(reg.ListSDEMethods(), ", "))
	return w.Flush()
}

func loadRun(runID string) (*storage.RunMetadata, *sim.Result, error) {
	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return nil, nil, err
	}
	traj, err := st.LoadStates(runID)
	if err != nil {
		return nil, nil, err
	}

	result := &sim.Result{
		Times:     traj.Times,
		TimeSteps: traj.TimeSteps,
		Errors:    traj.Errors,
		States:    make([]dynamo.State, len(traj.States)),
		Metrics:   meta.Metrics,
		FinalTime: meta.FinalTime,
		Accepted:  meta.Accepted,
		Rejected:  meta.Rejected,
		Stopped:   meta.Stopped,
	}
	for i, s := range traj.States {
		result.States[i] = s
	}
	if n := len(result.States); n > 0 {
		result.Final = result.States[n-1]
	}
	return meta, result, nil
}

func plotRun(cmd *cobra.Command, args []string) error {
	meta, result, err := loadRun(args[0])
	if err != nil {
		return err
	}
	if len(result.States) == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("problem: %s (%s)\n", meta.Problem, meta.Method)
	fmt.Printf("samples: %d\n\n", len(result.States))

	const maxPlots = 6
	numVars := min(len(result.States[0]), maxPlots)

	for varIdx := 0; varIdx < numVars; varIdx++ {
		data := make([]float64, len(result.States))
		for i, s := range result.States {
			if varIdx < len(s) {
				data[i] = s[varIdx]
			}
		}

		graph := asciigraph.Plot(data,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(fmt.Sprintf("x%d vs time", varIdx)),
		)
		fmt.Println(graph)
		fmt.Println()
	}

	if adaptive(result.TimeSteps) {
		graph := asciigraph.Plot(result.TimeSteps,
			asciigraph.Height(6),
			asciigraph.Width(80),
			asciigraph.Caption("step size"),
		)
		fmt.Println(graph)
	}

	return nil
}

// adaptive reports whether the recorded step size ever changed.
func adaptive(taus []float64) bool {
	for _, v := range taus {
		if v != taus[0] {
			return true
		}
	}
	return false
}

func exportRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(meta)
}

func output() (*os.File, func() error, error) {
	if outFile == "" {
		return os.Stdout, func() error { return nil }, nil
	}
	f, err := os.Create(outFile)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

func exportCSV(cmd *cobra.Command, args []string) error {
	_, result, err := loadRun(args[0])
	if err != nil {
		return err
	}

	w, closeFn, err := output()
	if err != nil {
		return err
	}
	if err := storage.WriteCSV(w, result); err != nil {
		closeFn()
		return err
	}
	if err := closeFn(); err != nil {
		return err
	}
	if outFile != "" {
		fmt.Printf("exported %d rows to %s\n", len(result.Times), outFile)
	}
	return nil
}

func exportJSON(cmd *cobra.Command, args []string) error {
	meta, result, err := loadRun(args[0])
	if err != nil {
		return err
	}

	cfg := meta.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
		cfg.Problem, cfg.Method = meta.Problem, meta.Method
		cfg.T0, cfg.T1, cfg.Tau = meta.T0, meta.T1, meta.Tau
	}

	w, closeFn, err := output()
	if err != nil {
		return err
	}
	if err := storage.ExportJSON(w, cfg, result); err != nil {
		closeFn()
		return err
	}
	return closeFn()
}

func compareMethods(cmd *cobra.Command, args []string) error {
	base, err := loadConfig(cmd, args[0])
	if err != nil {
		return err
	}
	methods := args[1:]
	reg := experiment.NewRegistry()

	fmt.Printf("comparing methods for %s (tau=%g, t=[%g, %g])\n\n", base.Problem, base.Tau, base.T0, base.T1)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "method\tfinal_x0\tglobal_error\tenergy_drift\taccepted\trejected\ttime_ms\t")

	for _, name := range methods {
		cfg := base.Clone()
		cfg.Method = name

		exp := experiment.New(cfg, reg)
		exp.SetLogger(logger)
		if err := exp.Setup(); err != nil {
			fmt.Fprintf(w, "%s\terror: %v\t\t\t\t\t\t\n", name, err)
			continue
		}

		start := time.Now()
		result, err := exp.Run(context.Background())
		elapsed := time.Since(start)
		if err != nil {
			fmt.Fprintf(w, "%s\terror: %v\t\t\t\t\t\t\n", name, err)
			continue
		}

		finalX0 := math.NaN()
		if len(result.Final) > 0 {
			finalX0 = result.Final[0]
		}
		fmt.Fprintf(w, "%s\t%.6f\t%s\t%s\t%d\t%d\t%.2f\t\n",
			name,
			finalX0,
			metricOrDash(result.Metrics, "global_error"),
			metricOrDash(result.Metrics, "energy_drift"),
			result.Accepted,
			result.Rejected,
			float64(elapsed.Microseconds())/1000,
		)
	}

	return w.Flush()
}

func metricOrDash(m map[string]float64, name string) string {
	v, ok := m[name]
	if !ok {
		return "-"
	}
	return fmt.Sprintf("%.2e", v)
}

func runLive(cmd *cobra.Command, args []string) error {
	problem := ""
	if len(args) > 0 {
		problem = args[0]
	}
	cfg, err := loadConfig(cmd, problem)
	if err != nil {
		return err
	}

	var model tea.Model
	if problem == "" {
		model = viz.NewApp(experiment.NewRegistry(), cfg)
	} else {
		exp := experiment.New(cfg, nil)
		if err := exp.Setup(); err != nil {
			return err
		}
		if exp.Stochastic() {
			return fmt.Errorf("live view needs a deterministic problem, %s is stochastic", problem)
		}
		var y0 dynamo.State
		if len(cfg.InitState) > 0 {
			y0 = cfg.InitState
		}
		model = viz.NewModel(exp.System(), exp.Simulator().Stepper(), y0, viz.LiveConfig{
			Title: cfg.Problem + " / " + cfg.Method,
			T0:    cfg.T0,
			T1:    cfg.T1,
			Frame: frameTime,
		})
	}

	_, err = tea.NewProgram(model, tea.WithAltScreen()).Run()
	return err
}

func runEnsemble(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args[0])
	if err != nil {
		return err
	}

	if paths < 1 {
		return fmt.Errorf("need at least one path, got %d", paths)
	}

	exp := experiment.New(cfg, nil)
	exp.SetLogger(logger)
	if err := exp.Setup(); err != nil {
		return err
	}
	if !exp.Stochastic() {
		return fmt.Errorf("%s is not a stochastic problem", cfg.Problem)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	stopSpinner := startSpinner(fmt.Sprintf("integrating %d paths of %s with %s", paths, cfg.Problem, cfg.Method))
	start := time.Now()
	results, err := exp.RunPaths(ctx, paths, concurrency)
	stopSpinner()
	if err != nil {
		return err
	}
	fmt.Printf("completed in %v\n\n", time.Since(start))

	dim := len(results[0].Final)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "component\tmean(t=%g)\tstd\n", cfg.T1)
	for i := 0; i < dim; i++ {
		finals := make([]float64, len(results))
		for j, r := range results {
			finals[j] = r.Final[i]
		}
		mean, std := stat.MeanStdDev(finals, nil)
		fmt.Fprintf(w, "x%d\t%.6f\t%.6f\n", i, mean, std)
	}
	return w.Flush()
}

func tuneAdaptive(cmd *cobra.Command, args []string) error {
	base, err := loadConfig(cmd, args[0])
	if err != nil {
		return err
	}
	if !cmd.Flags().Changed("method") && preset == "" && configFile == "" {
		base.Method = "dopri45"
	}

	sweep := optim.NewAdaptiveSweep()
	build := optim.AdaptiveBuilder(base, experiment.NewRegistry())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	stopSpinner := startSpinner(fmt.Sprintf("sweeping %d controller settings on %s", len(sweep.Points()), base.Problem))
	outcomes, err := sweep.Run(ctx, build)
	stopSpinner()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "params\t%s\taccepted\trejected\ttime_ms\n", metricName)
	for _, tr := range outcomes {
		if tr.Err != nil {
			fmt.Fprintf(w, "%s\terror: %v\t\t\t\n", formatParams(tr.Params), tr.Err)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%.2f\n",
			formatParams(tr.Params),
			metricOrDash(tr.Metrics, metricName),
			tr.Accepted,
			tr.Rejected,
			float64(tr.Elapsed.Microseconds())/1000,
		)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	best, ok := optim.Best(outcomes, metricName)
	if !ok {
		return fmt.Errorf("no trial reported %s", metricName)
	}
	fmt.Printf("\nbest: %s (%s=%.3e)\n", formatParams(best.Params), metricName, best.Metrics[metricName])
	return nil
}

func formatParams(params map[string]float64) string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s=%g", name, params[name])
	}
	return strings.Join(parts, " ")
}

func phasePlot(cmd *cobra.Command, args []string) error {
	meta, result, err := loadRun(args[0])
	if err != nil {
		return err
	}
	if len(result.States) == 0 {
		return fmt.Errorf("no data to plot")
	}
	dim := len(result.States[0])
	if xAxis < 0 || xAxis >= dim || yAxis < 0 || yAxis >= dim {
		return fmt.Errorf("axes %d and %d out of range for %d components", xAxis, yAxis, dim)
	}

	xs := make([]float64, len(result.States))
	ys := make([]float64, len(result.States))
	for i, s := range result.States {
		xs[i], ys[i] = s[xAxis], s[yAxis]
	}

	canvas := viz.NewCanvas(60, 20)
	canvas.Plot(xs, ys)

	fmt.Printf("run: %s (%s / %s)\n", meta.ID, meta.Problem, meta.Method)
	fmt.Printf("x%d vs x%d\n\n", yAxis, xAxis)
	fmt.Println(canvas.String())
	return nil
}

func analyzeRun(cmd *cobra.Command, args []string) error {
	meta, result, err := loadRun(args[0])
	if err != nil {
		return err
	}
	if len(result.Times) < 4 {
		return fmt.Errorf("need at least 4 samples, got %d", len(result.Times))
	}

	dt := result.Times[1] - result.Times[0]
	for i := 2; i < len(result.Times); i++ {
		if math.Abs(result.Times[i]-result.Times[i-1]-dt) > 1e-6*dt {
			return fmt.Errorf("samples are not uniformly spaced; rerun with a fixed --freq")
		}
	}

	fmt.Printf("run: %s (%s / %s)\n", meta.ID, meta.Problem, meta.Method)
	fmt.Printf("samples: %d, dt=%g\n\n", len(result.Times), dt)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "component\tdominant_freq\tperiod\tspectrum")
	for c := range result.States[0] {
		series := make([]float64, len(result.States))
		for i, s := range result.States {
			series[i] = s[c]
		}
		freq, err := analysis.DominantFrequency(series, dt)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "x%d\t%.4g\t%.4g\t%s\n", c, freq, 1/freq, viz.Sparkline(analysis.PowerSpectrum(series)[1:], 40))
	}
	return w.Flush()
}

// stepperFactory builds a fresh stepper for cfg on every call.
func stepperFactory(cfg *config.Config) (func() dynamo.Stepper, error) {
	reg := experiment.NewRegistry()
	if _, err := reg.GetMethod(cfg.Method, cfg); err != nil {
		return nil, err
	}
	return func() dynamo.Stepper {
		s, _ := reg.GetMethod(cfg.Method, cfg)
		return s
	}, nil
}

func lyapunovExponent(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args[0])
	if err != nil {
		return err
	}
	exp := experiment.New(cfg, nil)
	if err := exp.Setup(); err != nil {
		return err
	}
	if exp.Stochastic() {
		return fmt.Errorf("%s is stochastic", cfg.Problem)
	}
	newStepper, err := stepperFactory(cfg)
	if err != nil {
		return err
	}

	y0 := exp.System().DefaultState()
	if len(cfg.InitState) > 0 {
		y0 = cfg.InitState
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	stopSpinner := startSpinner("following two nearby trajectories")
	lambda, err := analysis.Lyapunov(ctx, exp.System().Derive, newStepper, y0, cfg.T0, cfg.T1, analysis.LyapunovOptions{})
	stopSpinner()
	if err != nil {
		return err
	}

	verdict := "regular"
	if lambda > 0.01 {
		verdict = "chaotic"
	}
	fmt.Printf("largest lyapunov exponent of %s: %.4f (%s)\n", cfg.Problem, lambda, verdict)
	return nil
}

func bifurcationDiagram(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args[0])
	if err != nil {
		return err
	}
	if paramSteps < 2 {
		return fmt.Errorf("need at least 2 steps, got %d", paramSteps)
	}
	exp := experiment.New(cfg, nil)
	if err := exp.Setup(); err != nil {
		return err
	}
	if exp.Stochastic() {
		return fmt.Errorf("%s is stochastic", cfg.Problem)
	}
	newStepper, err := stepperFactory(cfg)
	if err != nil {
		return err
	}

	values := make([]float64, paramSteps)
	for i := range values {
		values[i] = paramFrom + float64(i)*(paramTo-paramFrom)/float64(paramSteps-1)
	}

	var y0 dynamo.State
	if len(cfg.InitState) > 0 {
		y0 = cfg.InitState
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	stopSpinner := startSpinner(fmt.Sprintf("sweeping %s over %d values", paramName, paramSteps))
	points, err := analysis.Bifurcation(ctx, exp.System(), newStepper, y0, values, analysis.BifurcationOptions{
		Param:     paramName,
		Index:     index,
		Transient: transient,
		Record:    cfg.T1 - cfg.T0,
	})
	stopSpinner()
	if err != nil {
		return err
	}

	var xs, ys []float64
	for _, p := range points {
		for _, m := range p.Maxima {
			xs = append(xs, p.Param)
			ys = append(ys, m)
		}
	}

	canvas := viz.NewCanvas(60, 20)
	canvas.Scatter(xs, ys)

	fmt.Printf("%s: local maxima of x%d for %s in [%g, %g]\n\n", cfg.Problem, index, paramName, paramFrom, paramTo)
	fmt.Println(canvas.String())
	return nil
}

func exportSVG(cmd *cobra.Command, args []string) error {
	_, result, err := loadRun(args[0])
	if err != nil {
		return err
	}
	if len(result.States) == 0 {
		return fmt.Errorf("no data to export")
	}
	dim := len(result.States[0])
	if xAxis < 0 || xAxis >= dim || yAxis < 0 || yAxis >= dim {
		return fmt.Errorf("axes %d and %d out of range for %d components", xAxis, yAxis, dim)
	}

	xs := make([]float64, len(result.States))
	ys := make([]float64, len(result.States))
	for i, s := range result.States {
		xs[i], ys[i] = s[xAxis], s[yAxis]
	}

	w, closeFn, err := output()
	if err != nil {
		return err
	}
	if dots {
		canvas := viz.NewCanvas(80, 40)
		canvas.Plot(xs, ys)
		err = export.CanvasSVG(w, canvas, 4, export.SVGOptions{})
	} else {
		err = export.TrajectorySVG(w, xs, ys, export.SVGOptions{})
	}
	if err != nil {
		closeFn()
		return err
	}
	return closeFn()
}

func runScenario(cmd *cobra.Command, args []string) error {
	sc, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}

	var st *storage.Store
	if !noSave {
		st = storage.New(dataDir)
		if err := st.Init(); err != nil {
			return err
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	fmt.Printf("scenario %s: %d steps\n", sc.Name, len(sc.Steps))
	results, runErr := automation.RunScenario(ctx, sc, experiment.NewRegistry(), st, logger)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tRUN\tFINAL_TIME\tACCEPTED\tREJECTED")
	for _, r := range results {
		fmt.Fprintf(w, "%s\t%s\t%g\t%d\t%d\n", r.Name, r.RunID, r.Result.FinalTime, r.Result.Accepted, r.Result.Rejected)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return runErr
}

func runMonteCarlo(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args[0])
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	stopSpinner := startSpinner(fmt.Sprintf("running %d trials of %s with %s (perturbation %g)", trials, cfg.Problem, cfg.Method, perturbation))
	start := time.Now()
	results, err := automation.RunMonteCarlo(ctx, automation.MonteCarloConfig{
		Base:         cfg,
		Perturbation: perturbation,
		Trials:       trials,
		Seed:         cfg.Seed,
		Concurrency:  concurrency,
	}, experiment.NewRegistry())
	stopSpinner()
	if err != nil {
		return err
	}

	stable, unstable := automation.MonteCarloStats(results)
	fmt.Printf("completed in %v\n", time.Since(start))
	fmt.Printf("stable: %d (%.1f%%), unstable: %d\n", stable, 100*float64(stable)/float64(len(results)), unstable)
	return nil
}
