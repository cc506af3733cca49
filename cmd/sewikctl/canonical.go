package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sewik-mapa/sewikmapa/internal/urlstate"
)

func newCanonicalCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "canonical <query>",
		Short: "Print the normalised form of a state query string",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := args[0]
			if i := strings.IndexByte(query, '?'); i >= 0 {
				query = query[i+1:]
			}
			fmt.Fprintln(cmd.OutOrStdout(), urlstate.Canonical(query))
			return nil
		},
	}
}
