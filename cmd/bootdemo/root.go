package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/GoCodeAlone/bootstrap/config"
	"github.com/GoCodeAlone/bootstrap/feeders"
	"github.com/GoCodeAlone/bootstrap/host"
	"github.com/spf13/cobra"
)

// Version information
var (
	Version = "dev"
	Commit  = "none"
)

// NewRootCommand creates the root command for the bootdemo binary
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bootdemo",
		Short: "Phased bootstrap demo service",
		Long: `bootdemo wires two in-memory infrastructure services, a shared context,
an application-services host, one HTTP handler and one timer through the
bootstrap orchestrator and serves them until interrupted.`,
		SilenceUsage: true,
	}

	cmd.AddCommand(NewServeCommand())
	cmd.AddCommand(NewCheckCommand())
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "bootdemo %s (commit: %s)\n", Version, Commit)
		},
	})
	return cmd
}

// NewServeCommand creates the serve command
func NewServeCommand() *cobra.Command {
	var (
		configFile string
		dotEnvFile string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the demo service",
		RunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelInfo
			if debug {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

			loader, err := newLoader(configFile, dotEnvFile)
			if err != nil {
				return err
			}

			cfg := &DemoConfig{}
			if err := loader.Load(cmd.Context(), cfg); err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			for _, src := range loader.Sources() {
				logger.Debug("Config source", "name", src.Name, "loaded", src.Loaded, "skipped", src.Skipped)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			watcher := config.NewWatcher(loader.Paths()...)
			if err := watcher.Start(ctx, func(path string) {
				logger.Warn("Configuration file changed, restart to apply", "path", path)
			}, func(err error) {
				logger.Error("Configuration watcher error", "error", err)
			}); err != nil {
				logger.Warn("Configuration watcher disabled", "error", err)
			}
			defer func() { _ = watcher.Stop() }()

			return serve(ctx, cfg, logger)
		},
	}

	addConfigFlags(cmd, &configFile, &dotEnvFile)
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")
	return cmd
}

// NewCheckCommand creates the check command, which loads and validates only
// the host section of the configuration.
func NewCheckCommand() *cobra.Command {
	var configFile, dotEnvFile string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the host configuration and print the effective settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			loader, err := newLoader(configFile, dotEnvFile)
			if err != nil {
				return err
			}
			var hc host.Config
			if err := loader.LoadSection(cmd.Context(), hostSection, &hc); err != nil {
				return fmt.Errorf("invalid host configuration: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "addr: %s\n", hc.Addr)
			fmt.Fprintf(out, "shutdown timeout: %s\n", hc.ShutdownTimeout)
			fmt.Fprintf(out, "metrics path: %q\n", hc.MetricsPath)
			fmt.Fprintf(out, "health path: %q\n", hc.HealthPath)
			return nil
		},
	}

	addConfigFlags(cmd, &configFile, &dotEnvFile)
	return cmd
}

func addConfigFlags(cmd *cobra.Command, configFile, dotEnvFile *string) {
	cmd.Flags().StringVarP(configFile, "config", "c", "config.yaml", "configuration file (.yaml, .yml or .toml)")
	cmd.Flags().StringVar(dotEnvFile, "env-file", ".env", "dotenv file with "+envPrefix+"_* overrides")
}

// newLoader layers the config file, the dotenv file and the environment, in
// increasing priority. The file format follows the extension.
func newLoader(configFile, dotEnvFile string) (*config.Loader, error) {
	var file config.KeyFeeder
	switch ext := strings.ToLower(filepath.Ext(configFile)); ext {
	case ".yaml", ".yml":
		file = feeders.NewYamlFeeder(configFile)
	case ".toml":
		file = feeders.NewTomlFeeder(configFile)
	default:
		return nil, fmt.Errorf("%w: %q", errUnsupportedConfigFormat, ext)
	}
	return config.NewLoader().
		AddOptionalFeeder(file).
		AddOptionalFeeder(feeders.NewDotEnvFeeder(dotEnvFile, envPrefix)).
		AddFeeder(feeders.NewEnvFeeder(envPrefix)), nil
}

func serve(ctx context.Context, cfg *DemoConfig, logger *slog.Logger) error {
	runtime, app, err := buildApplication(cfg, logger)
	if err != nil {
		return err
	}
	logger.Info("Bootstrap configured", "phase", app.Phase())
	return runtime.Run(ctx)
}
