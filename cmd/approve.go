package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/artifact"
	"github.com/sells-group/outreach-cli/internal/gate"
)

var approveForce bool

var approveCmd = &cobra.Command{
	Use:   "approve <artifact-dir>",
	Short: "Mark a rendered draft send-ready",
	Long:  "Re-checks the approval gate against the artifact's brief and, when it passes, stamps the artifact approved in place. Exit code 2 means the gate blocked it.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("approve"); err != nil {
			return err
		}
		dir := args[0]

		brief, err := artifact.ReadBrief(dir)
		if err != nil {
			return eris.Wrap(err, "approve")
		}

		decision := gate.Approval.Evaluate(brief, approveForce)
		if decision.Blocked() {
			if err := writeJSON(os.Stdout, decision); err != nil {
				return err
			}
			return exitWith(exitFallback, "gate blocked: "+decision.ReasonCode)
		}

		if err := artifact.NewWriter(cfg.Render.OutRoot).Approve(dir); err != nil {
			return eris.Wrap(err, "approve")
		}

		zap.L().Info("draft approved",
			zap.String("dir", dir),
			zap.String("company", brief.Company.Name),
			zap.String("contact", brief.Contact.Name),
		)
		return writeJSON(os.Stdout, decision)
	},
}

func init() {
	approveCmd.Flags().BoolVar(&approveForce, "force", false, "clear the review-required check after a human review")
	rootCmd.AddCommand(approveCmd)
}
