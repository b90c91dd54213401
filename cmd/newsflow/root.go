// Package main implements the newsflow command-line interface.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/newsflow/internal/config"
	"github.com/jonesrussell/newsflow/internal/logger"
	"github.com/jonesrussell/newsflow/internal/pipeline"
)

const version = "1.0.0"

var (
	cfgFile string
	debug   bool

	rootCmd = &cobra.Command{
		Use:   "newsflow",
		Short: "A news ingestion and analysis pipeline",
		Long:  `Newsflow crawls configured news sources, deduplicates and analyzes articles, and aggregates trend statistics.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
)

// Execute runs the root command.
func Execute() error {
	// Load .env early so environment variables are visible to viper.
	_ = godotenv.Load()
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("newsflow version %s\n", version)
		},
	})

	rootCmd.AddCommand(runCommand())
	rootCmd.AddCommand(sourcesCommand())
}

// runCommand starts the full pipeline and blocks until interrupted.
func runCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the ingestion pipeline",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			if debug {
				cfg.Logging.Level = "debug"
				cfg.Logging.Development = true
			}

			log, err := logger.New(logger.Config{
				Level:       cfg.Logging.Level,
				Development: cfg.Logging.Development,
			})
			if err != nil {
				return fmt.Errorf("create logger: %w", err)
			}
			defer func() { _ = log.Sync() }()

			p, err := pipeline.New(cfg, log)
			if err != nil {
				return fmt.Errorf("build pipeline: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			log.Info("pipeline starting", logger.String("version", version))
			if err := p.Run(ctx); err != nil {
				return fmt.Errorf("pipeline: %w", err)
			}
			log.Info("pipeline stopped")
			return nil
		},
	}
}
