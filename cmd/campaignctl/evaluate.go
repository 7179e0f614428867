package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/liamcoop/campaignrules/internal/app"
)

func newEvaluateCmd(withApp appWrapper) *cobra.Command {
	var (
		all    bool
		dryRun bool
		at     string
	)

	cmd := &cobra.Command{
		Use:   "evaluate [campaign-id]",
		Short: "Evaluate one campaign or every managed campaign",
		Long: `Run the rule chain and print the outcome as JSON.

Without --dry-run the new target status and an audit entry are persisted.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if all && len(args) > 0 {
				return errors.New("--all does not take a campaign id")
			}
			if !all && len(args) != 1 {
				return errors.New("requires a campaign id or --all")
			}
			return nil
		},
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
			evaluatedAt, err := parseAt(at)
			if err != nil {
				return err
			}

			if all {
				batch, err := a.Service.EvaluateAll(cmd.Context(), evaluatedAt, dryRun)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), batch)
			}

			outcome, err := a.Service.EvaluateCampaign(cmd.Context(), args[0], evaluatedAt, dryRun)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), outcome)
		}),
	}

	cmd.Flags().BoolVar(&all, "all", false, "evaluate every managed campaign")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "compute verdicts without persisting them")
	cmd.Flags().StringVar(&at, "at", "", "evaluation time in RFC 3339 (defaults to now)")

	return cmd
}

func parseAt(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	at, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("--at must be an RFC 3339 timestamp: %w", err)
	}
	return at, nil
}
