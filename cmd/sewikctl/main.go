// Package main provides sewikctl, the command line tool for working with
// SEWIK partitions: analysis, export, URL normalisation, minification and
// import into PostgreSQL.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/sewik-mapa/sewikmapa/internal/app"
	"github.com/sewik-mapa/sewikmapa/internal/config"
)

// Version is set at compile time via ldflags.
var Version = "dev"

type globalFlags struct {
	source  string
	dataDir string
	baseURL string
	verbose bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:          "sewikctl",
		Short:        "Work with SEWIK accident partitions",
		Version:      Version,
		SilenceUsage: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			config.LoadDotEnv()
		},
	}

	rootCmd.PersistentFlags().StringVar(&flags.source, "source", "", "Partition source: http, file or postgres (default $DATA_SOURCE)")
	rootCmd.PersistentFlags().StringVar(&flags.dataDir, "data-dir", "", "Directory of the file source (default $DATA_DIR)")
	rootCmd.PersistentFlags().StringVar(&flags.baseURL, "base-url", "", "Base URL of the http source (default $DATA_BASE_URL)")
	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Log loader activity to stderr")

	rootCmd.AddCommand(
		newAnalyzeCmd(flags),
		newExportCmd(flags),
		newCanonicalCmd(),
		newMinifyCmd(),
		newImportCmd(flags),
	)
	return rootCmd
}

// config returns the environment configuration with flag overrides applied.
func (f *globalFlags) config() config.Config {
	cfg := config.FromEnv()
	if f.source != "" {
		cfg.DataSource = f.source
	}
	if f.dataDir != "" {
		cfg.DataDir = f.dataDir
	}
	if f.baseURL != "" {
		cfg.DataBaseURL = f.baseURL
	}
	return cfg
}

func (f *globalFlags) logger(cmd *cobra.Command) zerolog.Logger {
	if !f.verbose {
		return zerolog.Nop()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr()}).With().Timestamp().Logger()
}

// open builds and initialises the loader for a command.
func (f *globalFlags) open(cmd *cobra.Command) (*app.Data, error) {
	cfg := f.config()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	data, err := app.Open(cmd.Context(), cfg, f.logger(cmd))
	if err != nil {
		return nil, err
	}
	data.Init(cmd.Context())
	return data, nil
}
