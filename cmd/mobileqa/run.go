package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"digital.vasic.mobileqa/pkg/assertion"
	"digital.vasic.mobileqa/pkg/config"
	"digital.vasic.mobileqa/pkg/device"
	"digital.vasic.mobileqa/pkg/env"
	"digital.vasic.mobileqa/pkg/inference"
	"digital.vasic.mobileqa/pkg/logging"
	"digital.vasic.mobileqa/pkg/metrics"
	"digital.vasic.mobileqa/pkg/monitor"
	"digital.vasic.mobileqa/pkg/report"
	"digital.vasic.mobileqa/pkg/runner"
	"digital.vasic.mobileqa/pkg/suite"
)

type runOptions struct {
	tests       string
	device      string
	apk         string
	model       string
	provider    string
	artifacts   string
	singleTest  string
	configPath  string
	envFile     string
	monitorAddr string
	metricsAddr string
	resetApp    bool
	verbose     bool
	maxSteps    int
	timeout     time.Duration
}

func runCmd() *cobra.Command {
	return newRunCmd(&runOptions{})
}

func newRunCmd(o *runOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a test suite on a device",
		Example: `  mobileqa run -t tests/qa_tests.yaml
  mobileqa run -t 'suites/**/*.yaml' --device emulator-5556 --reset-app
  mobileqa run -t tests/qa_tests.yaml --single-test create_vault \
    --monitor-addr :8090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&o.tests, "tests", "t", "", "Suite file or glob (** allowed)")
	f.StringVar(&o.device, "device", "", "adb device serial")
	f.StringVar(&o.apk, "apk", "", "APK installed before every test")
	f.StringVar(&o.model, "model", "", "Model name")
	f.StringVar(&o.provider, "provider", "", "Inference provider (gemini, openai)")
	f.StringVar(&o.artifacts, "artifacts", "", "Artifacts output directory")
	f.BoolVar(&o.resetApp, "reset-app", false, "Clear app data before each test")
	f.StringVar(&o.singleTest, "single-test", "", "Run only the named test")
	f.IntVar(&o.maxSteps, "max-steps", 0, "Maximum steps per test")
	f.DurationVar(&o.timeout, "timeout", 0, "Wall-clock budget per test")
	f.StringVar(&o.configPath, "config", "",
		"Config file (default: mobileqa.yaml lookup)")
	f.StringVar(&o.envFile, "env-file", ".env", "Env file holding API keys")
	f.StringVar(&o.monitorAddr, "monitor-addr", "",
		"Serve the live dashboard on this address")
	f.StringVar(&o.metricsAddr, "metrics-addr", "",
		"Serve Prometheus metrics on this address")
	f.BoolVarP(&o.verbose, "verbose", "v", false, "Debug logging")
	_ = cmd.MarkFlagRequired("tests")

	return cmd
}

// apply copies the flags the user set onto cfg.
func (o *runOptions) apply(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("device") {
		cfg.Device.Serial = o.device
	}
	if changed("apk") {
		cfg.Run.APKPath = o.apk
	}
	if changed("model") {
		cfg.Model.Name = o.model
	}
	if changed("provider") {
		cfg.Model.Provider = o.provider
	}
	if changed("artifacts") {
		cfg.Artifacts.Dir = o.artifacts
	}
	if changed("reset-app") {
		cfg.Run.ResetApp = o.resetApp
	}
	if changed("max-steps") {
		cfg.Run.MaxSteps = o.maxSteps
	}
	if changed("timeout") {
		cfg.Run.Timeout = o.timeout
	}
	if changed("monitor-addr") {
		cfg.Monitor.Addr = o.monitorAddr
	}
	if changed("metrics-addr") {
		cfg.Metrics.Addr = o.metricsAddr
	}
	if changed("verbose") {
		cfg.Logging.Verbose = o.verbose
	}
}

// loadConfig layers config files, the environment (including
// the env file) and flags.
func (o *runOptions) loadConfig(
	cmd *cobra.Command,
	vars *env.DefaultLoader,
) (*config.Config, error) {
	cfg, err := config.NewLoader(nil).Load(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	lookup := func(key string) (string, bool) {
		v := vars.Get(key)
		return v, v != ""
	}
	if err := config.ApplyEnv(cfg, lookup); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}
	o.apply(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// loadTests loads, validates and narrows the suite.
func (o *runOptions) loadTests(cfg *config.Config) (*suite.Suite, error) {
	s, err := loadSuite(o.tests)
	if err != nil {
		return nil, err
	}
	if err := checkSuite(s); err != nil {
		return nil, err
	}
	if o.singleTest != "" {
		if s, err = s.Filter(o.singleTest); err != nil {
			return nil, err
		}
	}
	if cfg.Run.APKPath != "" {
		s.OverrideAPK(cfg.Run.APKPath)
	}
	return s, nil
}

func newLogger(
	cmd *cobra.Command,
	cfg *config.Config,
	apiKey string,
) (logging.Logger, error) {
	console := logging.NewConsoleLoggerTo(cmd.ErrOrStderr(), cfg.Logging.Verbose)
	if !cfg.Logging.File {
		return logging.NewRedactingLogger(console, apiKey), nil
	}
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	file, err := logging.SetupLogging(
		filepath.Join(cfg.Artifacts.Dir, "logs"),
		level, cfg.Logging.Verbose,
	)
	if err != nil {
		return nil, err
	}
	return logging.NewRedactingLogger(
		logging.NewMultiLogger(console, file), apiKey,
	), nil
}

func (o *runOptions) run(cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	vars := env.NewLoader()
	if err := vars.LoadOptional(o.envFile); err != nil {
		return err
	}
	cfg, err := o.loadConfig(cmd, vars)
	if err != nil {
		return err
	}
	tests, err := o.loadTests(cfg)
	if err != nil {
		return err
	}

	apiKey := vars.GetAPIKey(cfg.Model.Provider)
	if apiKey == "" {
		return fmt.Errorf(
			"no API key for provider %s: set %s",
			cfg.Model.Provider,
			strings.Join(vars.APIKeyVars(cfg.Model.Provider), " or "),
		)
	}

	logger, err := newLogger(cmd, cfg, apiKey)
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	defer logger.Close()

	if !env.ValidateAPIKeyFormat(cfg.Model.Provider, apiKey) {
		logger.Warn("API key has an unexpected format",
			logging.StringField("provider", cfg.Model.Provider),
			logging.StringField("key", env.RedactAPIKey(apiKey)),
		)
	}
	logger.Info("starting run",
		logging.IntField("tests", len(tests.Tests)),
		logging.StringField("sources", strings.Join(tests.Sources, ",")),
		logging.StringField("device", cfg.Device.Serial),
		logging.StringField("provider", cfg.Model.Provider),
		logging.StringField("model", cfg.Model.Name),
		logging.StringField("base_url", env.RedactURL(cfg.Model.BaseURL)),
	)

	reg := prometheus.NewRegistry()
	m, err := metrics.NewPrometheusMetrics(reg)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	provider, err := inference.New(cfg.InferenceConfig(apiKey), logger, m)
	if err != nil {
		return err
	}
	dev := device.NewADB(cfg.Device.Serial,
		device.WithBinary(cfg.Device.ADBPath),
		device.WithCommandTimeout(cfg.Device.CommandTimeout),
		device.WithLogger(logger),
	)

	collector := monitor.NewEventCollector()
	r := runner.New(dev, provider,
		runner.WithConfig(cfg.Run),
		runner.WithExecutorConfig(cfg.Executor),
		runner.WithRewardConfig(cfg.Reward),
		runner.WithThreshold(cfg.Supervisor.Threshold),
		runner.WithArtifactsDir(cfg.Artifacts.Dir),
		runner.WithLogger(logger),
		runner.WithMetrics(m),
		runner.WithEmitter(collector),
		runner.WithAssertionEngine(assertion.NewEngine()),
		runner.WithOutput(cmd.OutOrStdout()),
	)

	result, err := runWithServers(ctx, cfg, r, tests, collector, reg, logger)
	if err != nil {
		return err
	}

	_, err = report.Publish(
		cfg.Artifacts.Dir, result.RunID, result.Results,
	)
	if err != nil {
		logger.Warn("failed to write reports", logging.ErrorField(err))
	} else {
		logger.Info("reports written", logging.StringField("dir", cfg.Artifacts.Dir))
	}

	out := cmd.OutOrStdout()
	printSummary(out, result, colorEnabled(out))
	if code := result.ExitCode(); code != 0 {
		return exitCodeError{code: code}
	}
	return nil
}

// runWithServers runs the suite while the optional monitor and
// metrics listeners serve; both stop when the suite ends and a
// listener failure cancels the suite.
func runWithServers(
	ctx context.Context,
	cfg *config.Config,
	r *runner.Runner,
	tests *suite.Suite,
	collector *monitor.EventCollector,
	reg *prometheus.Registry,
	logger logging.Logger,
) (*runner.SuiteResult, error) {
	serveCtx, stop := context.WithCancel(ctx)
	defer stop()
	g, gctx := errgroup.WithContext(serveCtx)

	if cfg.Monitor.Addr != "" {
		srv := monitor.NewServer(
			cfg.Monitor.Addr, collector,
			monitor.NewDashboardData(""), logger,
		)
		// Subscribe before the first event is emitted.
		srv.Handler()
		g.Go(func() error { return srv.Start(gctx) })
	}
	if cfg.Metrics.Addr != "" {
		g.Go(func() error {
			return serveMetrics(gctx, cfg.Metrics.Addr, reg, logger)
		})
	}

	var result *runner.SuiteResult
	g.Go(func() error {
		defer stop()
		result = r.RunSuite(gctx, tests.Tests)
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

func serveMetrics(
	ctx context.Context,
	addr string,
	reg *prometheus.Registry,
	logger logging.Logger,
) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(
		reg, promhttp.HandlerOpts{Registry: reg},
	))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(), 5*time.Second,
		)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listening", logging.StringField("addr", addr))
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
