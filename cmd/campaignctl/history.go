package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/liamcoop/campaignrules/campaigns"
	"github.com/liamcoop/campaignrules/internal/app"
)

type historyPage struct {
	CampaignID string                          `json:"campaign_id"`
	Entries    []*campaigns.EvaluationLogEntry `json:"entries"`
	Total      int                             `json:"total"`
}

func newHistoryCmd(withApp appWrapper) *cobra.Command {
	var skip, limit int

	cmd := &cobra.Command{
		Use:   "history <campaign-id>",
		Short: "Print the evaluation audit trail of a campaign, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
			if skip < 0 || limit < 1 || limit > 1000 {
				return fmt.Errorf("invalid pagination: skip must be >= 0 and limit between 1 and 1000")
			}

			entries, total, err := a.Service.History(cmd.Context(), args[0], skip, limit)
			if err != nil {
				return err
			}
			if entries == nil {
				entries = []*campaigns.EvaluationLogEntry{}
			}
			return writeJSON(cmd.OutOrStdout(), historyPage{
				CampaignID: args[0],
				Entries:    entries,
				Total:      total,
			})
		}),
	}

	cmd.Flags().IntVar(&skip, "skip", 0, "entries to skip")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum entries to print")

	return cmd
}
