package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/oriys/lambdakit/internal/config"
	"github.com/oriys/lambdakit/internal/logging"
	"github.com/oriys/lambdakit/internal/metrics"
	"github.com/oriys/lambdakit/internal/observability"
	"github.com/oriys/lambdakit/internal/output"
)

// set with -ldflags "-X main.version=..."
var version = "dev"

var (
	configPath  string
	region      string
	endpoint    string
	profile     string
	logLevel    string
	outputFmt   string
	metricsAddr string
	noColor     bool
)

// app is the state shared by subcommands once the root pre-run has
// loaded the configuration.
var app struct {
	cfg     *config.Config
	printer *output.Printer
	metrics *http.Server
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if terr := teardown(context.Background()); terr != nil {
		logging.Op().Warn("shutdown", "error", terr)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "lambdakit",
		Short:         "Typed AWS Lambda invocation with STS role exchange",
		Long:          "Invoke Lambda functions synchronously, asynchronously or as a dry run, optionally under an assumed role",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return setup(cmd.Context(), cfg)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (.yaml, .yml or .json)")
	rootCmd.PersistentFlags().StringVar(&region, "region", "", "AWS region")
	rootCmd.PersistentFlags().StringVar(&endpoint, "endpoint", "", "Service endpoint override (e.g. http://localhost:4566)")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "", "Shared config profile")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "", "Output format (table, wide, json, yaml)")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while running")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(
		invokeCmd(),
		assumeRoleCmd(),
		versionCmd(),
	)
	return rootCmd
}

// loadConfig layers defaults, the config file, LAMBDAKIT_* variables and
// finally explicit flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if configPath != "" {
		loaded, err := config.LoadFromFile(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := config.LoadFromEnv(cfg); err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("region") {
		cfg.AWS.Region = region
	}
	if flags.Changed("endpoint") {
		cfg.AWS.Endpoint = endpoint
	}
	if flags.Changed("profile") {
		cfg.AWS.Profile = profile
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if flags.Changed("output") {
		cfg.Output = outputFmt
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Addr = metricsAddr
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setup(ctx context.Context, cfg *config.Config) error {
	app.cfg = cfg
	app.printer = output.NewPrinter(output.ParseFormat(cfg.Output))
	if noColor {
		app.printer.SetNoColor(true)
	}

	logging.Init(os.Stderr, cfg.Log.Format, cfg.Log.Level)
	if f := output.ParseFormat(cfg.Output); f == output.FormatJSON || f == output.FormatYAML {
		// keep stdout parseable; the request log still goes to the file
		logging.Default().SetConsole(nil)
	}
	if cfg.Log.RequestFile != "" {
		if err := logging.Default().SetOutput(cfg.Log.RequestFile); err != nil {
			return fmt.Errorf("open request log: %w", err)
		}
	}

	observability.Version = version
	if err := observability.Init(ctx, cfg.Tracing.Observability()); err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}

	metrics.InitPrometheus(cfg.Metrics.Namespace, nil)
	if cfg.Metrics.Addr != "" {
		srv, err := serveMetrics(cfg.Metrics.Addr)
		if err != nil {
			return err
		}
		app.metrics = srv
	}
	return nil
}

func serveMetrics(addr string) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Op().Error("metrics server failed", "addr", addr, "error", err)
		}
	}()
	logging.Op().Info("serving metrics", "addr", ln.Addr().String())
	return srv, nil
}

func teardown(ctx context.Context) error {
	if app.metrics != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := app.metrics.Shutdown(shutdownCtx); err != nil {
			logging.Op().Warn("metrics server shutdown", "error", err)
		}
		cancel()
		app.metrics = nil
	}
	logging.Default().Close()
	return observability.Shutdown(ctx)
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "lambdakit %s\n", version)
		},
	}
}
