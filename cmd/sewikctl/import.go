package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sewik-mapa/sewikmapa/internal/app"
	"github.com/sewik-mapa/sewikmapa/internal/config"
	"github.com/sewik-mapa/sewikmapa/internal/database"
	"github.com/sewik-mapa/sewikmapa/internal/dataset"
)

func newImportCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "import <dir>",
		Short: "Load partition files and metadata.json from a directory into PostgreSQL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := args[0]
			files, err := dataset.NewFileSource(dir).Files()
			if err != nil {
				return err
			}

			cfg := flags.config()
			cfg.DataSource = config.SourcePostgres
			data, err := app.Open(cmd.Context(), cfg, flags.logger(cmd))
			if err != nil {
				return err
			}
			defer data.Close()

			if err := database.Migrate(cmd.Context(), data.Pool); err != nil {
				return err
			}

			descriptors := make([]dataset.Descriptor, 0, len(files)+1)
			if _, err := os.Stat(filepath.Join(dir, dataset.DefaultMetadataFile)); err == nil {
				descriptors = append(descriptors, dataset.Descriptor{File: dataset.DefaultMetadataFile})
			}
			for _, f := range files {
				d, ok := dataset.ParseFilename(f)
				if !ok {
					cmd.PrintErrf("skipping %s: not named accidents_{year}_{region}.geojson\n", f)
					continue
				}
				descriptors = append(descriptors, d)
			}

			for _, d := range descriptors {
				payload, err := os.ReadFile(filepath.Join(dir, d.File))
				if err != nil {
					return err
				}
				if err := data.Postgres.Put(cmd.Context(), d, payload); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %s (%d bytes)\n", d.File, len(payload))
			}
			return nil
		},
	}
}
