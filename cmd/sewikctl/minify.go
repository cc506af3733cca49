package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sewik-mapa/sewikmapa/internal/export"
)

func newMinifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "minify <file-or-dir>...",
		Short: "Rewrite GeoJSON files without whitespace",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var results []export.MinifyResult
			for _, arg := range args {
				info, err := os.Stat(arg)
				if err != nil {
					return err
				}
				if !info.IsDir() {
					results = append(results, export.MinifyFile(arg))
					continue
				}
				rs, err := export.MinifyDir(arg)
				if err != nil {
					return err
				}
				results = append(results, rs...)
			}

			out := cmd.OutOrStdout()
			var before, after int64
			failed := 0
			for _, r := range results {
				if r.Err != nil {
					failed++
					cmd.PrintErrf("%s: %v\n", r.Path, r.Err)
					continue
				}
				before += r.Before
				after += r.After
				fmt.Fprintf(out, "%s: %d -> %d bytes (%.1f%%)\n", r.Path, r.Before, r.After, r.Reduction())
			}
			total := export.MinifyResult{Before: before, After: after}
			fmt.Fprintf(out, "minified %d files, saved %.1f%%\n", len(results)-failed, total.Reduction())
			if failed > 0 {
				return fmt.Errorf("%d files failed", failed)
			}
			return nil
		},
	}
}
