package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sewik-mapa/sewikmapa/internal/export"
	"github.com/sewik-mapa/sewikmapa/internal/worker"
)

func newExportCmd(flags *globalFlags) *cobra.Command {
	var (
		query   string
		outDir  string
		compact bool
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write one GeoJSON file per year and voivodeship",
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := flags.open(cmd)
			if err != nil {
				return err
			}
			defer data.Close()

			job := worker.NewExportJob(worker.ExportJobConfig{
				Data:    data.Loader,
				Dir:     outDir,
				Compact: compact,
				Logger:  flags.logger(cmd),
			})
			paths, err := job.Run(cmd.Context(), query)
			if errors.Is(err, export.ErrNothingToExport) {
				cmd.PrintErrln("nothing to export: no visible accidents in the selection")
				return err
			}
			if err != nil {
				return err
			}
			for _, p := range paths {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&query, "query", "q", "", "State query string, as found in the map URL")
	cmd.Flags().StringVarP(&outDir, "output", "o", "exports", "Output directory")
	cmd.Flags().BoolVar(&compact, "compact", false, "Write JSON without indentation")
	return cmd
}
