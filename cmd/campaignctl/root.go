package main

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/liamcoop/campaignrules/internal/app"
	"github.com/liamcoop/campaignrules/internal/config"
	"github.com/liamcoop/campaignrules/internal/logger"
)

// Version is set by build flags
var Version = "dev"

// appOpener builds the application for one command invocation
type appOpener func(rulesFile string) (*app.App, error)

// appWrapper turns a command body into a RunE that opens and closes the application
type appWrapper = func(run func(cmd *cobra.Command, args []string, a *app.App) error) func(*cobra.Command, []string) error

// openApp loads the environment configuration. Logs go to stderr so that
// command output on stdout stays machine readable.
func openApp(rulesFile string) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if rulesFile != "" {
		cfg.RulesFile = rulesFile
	}

	opts := cfg.LoggerOptions()
	opts.Output = os.Stderr
	logger.Setup(context.Background(), opts)

	return app.New(cfg)
}

func newRootCmd(open appOpener) *cobra.Command {
	var rulesFile string

	rootCmd := &cobra.Command{
		Use:   "campaignctl",
		Short: "Evaluate campaign target-status rules",
		Long: `campaignctl evaluates the rule chain that decides whether managed
campaigns should be active or paused, and reads the evaluation audit trail.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&rulesFile, "rules-file", "", "expression rules file (overrides RULES_FILE)")

	var withApp appWrapper = func(run func(cmd *cobra.Command, args []string, a *app.App) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			a, err := open(rulesFile)
			if err != nil {
				return err
			}
			defer a.Close()
			return run(cmd, args, a)
		}
	}

	rootCmd.AddCommand(
		newEvaluateCmd(withApp),
		newHistoryCmd(withApp),
		newRulesCmd(withApp),
	)

	return rootCmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
