package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/liamcoop/campaignrules/internal/app"
)

func newRulesCmd(withApp appWrapper) *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "List the rule chain in evaluation order",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PRIORITY\tNAME")
			for _, info := range a.Engine.Rules() {
				fmt.Fprintf(w, "%d\t%s\n", info.Priority, info.Name)
			}
			return w.Flush()
		}),
	}
}
