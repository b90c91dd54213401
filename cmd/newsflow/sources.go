package main

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/newsflow/internal/config"
	"github.com/jonesrussell/newsflow/internal/sources"
)

// sourcesCommand groups inspection of the sources file.
func sourcesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Inspect configured news sources",
	}
	cmd.AddCommand(sourcesListCommand(), sourcesValidateCommand())
	return cmd
}

func sourcesFilePath() (string, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return "", fmt.Errorf("load configuration: %w", err)
	}
	return cfg.SourcesFile, nil
}

func sourcesListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List sources from the sources file",
		RunE: func(_ *cobra.Command, _ []string) error {
			path, err := sourcesFilePath()
			if err != nil {
				return err
			}

			srcs, invalid, err := sources.LoadFile(path)
			if err != nil {
				return err
			}

			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.SetStyle(table.StyleLight)
			tw.AppendHeader(table.Row{"ID", "Name", "URL", "Rate", "Enabled"})
			for _, src := range srcs {
				tw.AppendRow(table.Row{
					src.ID,
					src.Name,
					src.URL,
					fmt.Sprintf("%.2f/s", src.Rate.RequestsPerSecond),
					!src.Disabled,
				})
			}
			tw.Render()

			for _, invalidErr := range invalid {
				fmt.Fprintf(os.Stderr, "skipped: %v\n", invalidErr)
			}
			return nil
		},
	}
}

func sourcesValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the sources file and report problems",
		RunE: func(_ *cobra.Command, _ []string) error {
			path, err := sourcesFilePath()
			if err != nil {
				return err
			}

			srcs, invalid, err := sources.LoadFile(path)
			if err != nil {
				return err
			}

			for _, invalidErr := range invalid {
				fmt.Fprintf(os.Stderr, "invalid: %v\n", invalidErr)
			}
			if len(invalid) > 0 {
				return fmt.Errorf("%d of %d sources invalid", len(invalid), len(srcs)+len(invalid))
			}

			fmt.Printf("%d sources valid\n", len(srcs))
			return nil
		},
	}
}
