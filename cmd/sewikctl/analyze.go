package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sewik-mapa/sewikmapa/internal/accident"
	"github.com/sewik-mapa/sewikmapa/internal/dataset"
	"github.com/sewik-mapa/sewikmapa/internal/session"
	"github.com/sewik-mapa/sewikmapa/internal/spatial"
)

func newAnalyzeCmd(flags *globalFlags) *cobra.Command {
	var (
		query   string
		polygon string
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Aggregate the visible accidents inside a polygon",
		Long: `Analyze restores the state encoded in --query, loads its partitions and
counts the visible accidents inside --polygon ("lon,lat;lon,lat;..."). Without
--polygon the poly parameter of the query is used.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := flags.open(cmd)
			if err != nil {
				return err
			}
			defer data.Close()

			state := session.RestoreState(query, data.Loader.Metadata())
			vertices := state.Polygon
			if polygon != "" {
				if vertices, err = spatial.ParsePoints(polygon); err != nil {
					return fmt.Errorf("--polygon: %w", err)
				}
			}
			poly, err := spatial.NewPolygon("cli", vertices)
			if err != nil {
				return err
			}

			ws, err := data.Loader.Load(cmd.Context(), dataset.NewSelection(state.Years, state.Regions))
			if err != nil {
				return err
			}
			res := spatial.Analyze(ws.Records(), state.Visibility, poly)

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "accidents in polygon: %d (of %d loaded)\n", res.Total, ws.Len())
			for _, s := range accident.Severities() {
				fmt.Fprintf(out, "  %-8s %6d  %5.1f%%\n", s, res.BySeverity[s], res.Percent(s))
			}
			for _, y := range res.Years() {
				fmt.Fprintf(out, "  %s: %d\n", y, res.ByYear[y].Total)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&query, "query", "q", "", "State query string, as found in the map URL")
	cmd.Flags().StringVarP(&polygon, "polygon", "p", "", "Polygon vertices as lon,lat;lon,lat;...")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	return cmd
}
