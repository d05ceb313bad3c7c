// Package cli wires the synthreg command line onto internal/app.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/synthreg/synthreg/internal/app"
	"github.com/synthreg/synthreg/internal/config"
	"github.com/synthreg/synthreg/pkg/errors"
	"github.com/synthreg/synthreg/pkg/log"
)

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	ctx, stop := signalContext(context.Background())
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

type flags struct {
	configPath  string
	outDir      string
	logLevel    string
	logFormat   string
	noPlots     bool
	saveWeights bool
}

// NewRootCmd builds the synthreg command. With no flags it runs the
// reference experiment.
func NewRootCmd() *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:           "synthreg",
		Short:         "Fit a single neuron to a synthetic noisy line and report the result",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd, f)
			if err != nil {
				return err
			}

			logger, err := log.New(log.Config{
				Level:  cfg.Log.Level,
				Format: cfg.Log.Format,
				Output: cmd.ErrOrStderr(),
			})
			if err != nil {
				return err
			}
			log.SetLogger(logger)

			_, err = app.Run(cmd.Context(), cfg, app.Deps{
				Logger: logger,
				Out:    cmd.OutOrStdout(),
			})
			return err
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&f.configPath, "config", "c", "", "YAML run configuration (defaults reproduce the reference experiment)")
	cmd.Flags().StringVarP(&f.outDir, "out", "o", "", "directory for plots and weights")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error")
	cmd.Flags().StringVar(&f.logFormat, "log-format", "", "console or json")
	cmd.Flags().BoolVar(&f.noPlots, "no-plots", false, "skip writing plots")
	cmd.Flags().BoolVar(&f.saveWeights, "save-weights", false, "write the trained weights as JSON")

	cmd.AddCommand(configCmd(&f))
	return cmd
}

// configCmd prints the effective configuration as YAML.
func configCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective run configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(f.configPath)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(cfg); err != nil {
				return errors.Wrap(err, "encode config")
			}
			return enc.Close()
		},
	}
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// resolveConfig loads the file and applies explicitly set flags over it.
func resolveConfig(cmd *cobra.Command, f flags) (config.Config, error) {
	cfg, err := loadConfig(f.configPath)
	if err != nil {
		return config.Config{}, err
	}

	fl := cmd.Flags()
	if fl.Changed("out") {
		cfg.Output.Dir = f.outDir
	}
	if fl.Changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if fl.Changed("log-format") {
		cfg.Log.Format = f.logFormat
	}
	if f.noPlots {
		cfg.Output.Plots = false
	}
	if f.saveWeights {
		cfg.Output.SaveWeights = true
	}
	return cfg, cfg.Validate()
}
