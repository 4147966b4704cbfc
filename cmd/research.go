package main

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
)

var (
	researchCompany      string
	researchContact      string
	researchTitle        string
	researchDomain       string
	researchCRMID        string
	researchForceRefresh bool
	researchDryRun       bool
)

var researchCmd = &cobra.Command{
	Use:   "research",
	Short: "Gather provider research for one prospect",
	Long:  "Resolves the company to its canonical entity, fans out across every configured provider through the entity cache, and prints the aggregate. Use draft to continue into a rendered artifact.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initResearchEnv(ctx, "research", cacheModeFor(researchDryRun, researchForceRefresh))
		if err != nil {
			return err
		}
		defer env.Close()

		identity := researchIdentity()

		agg, err := env.Orchestrator.Research(ctx, identity)
		if err != nil {
			return eris.Wrap(err, "research")
		}

		if !researchDryRun {
			recordResearchRun(ctx, env, agg)
		}

		if err := writeJSON(os.Stdout, agg); err != nil {
			return err
		}
		if agg.Empty() {
			return exitWith(exitFallback, "no sources succeeded")
		}
		return nil
	},
}

func init() {
	researchCmd.Flags().StringVar(&researchCompany, "company", "", "company name (required)")
	researchCmd.Flags().StringVar(&researchContact, "contact", "", "contact full name")
	researchCmd.Flags().StringVar(&researchTitle, "title", "", "contact job title")
	researchCmd.Flags().StringVar(&researchDomain, "domain", "", "company website domain")
	researchCmd.Flags().StringVar(&researchCRMID, "crm-id", "", "Salesforce account ID hint")
	researchCmd.Flags().BoolVar(&researchForceRefresh, "force-refresh", false, "refetch every provider, ignoring fresh cache entries")
	researchCmd.Flags().BoolVar(&researchDryRun, "dry-run", false, "no cache writes, no run bookkeeping")
	_ = researchCmd.MarkFlagRequired("company")
	rootCmd.AddCommand(researchCmd)
}

func researchIdentity() model.Identity {
	identity := model.Identity{
		Contact: researchContact,
		Title:   researchTitle,
		Company: researchCompany,
		Domain:  researchDomain,
	}
	if researchCRMID != "" {
		identity.Hints = map[model.AliasType]string{model.AliasCRMID: researchCRMID}
	}
	return identity
}

// recordResearchRun books a completed research-only run. The aggregate is
// already on disk in the cache; the run row just records what happened.
func recordResearchRun(ctx context.Context, env *researchEnv, agg *model.AggregatedResult) {
	run, err := env.Store.CreateRun(ctx, agg.Identity, agg.CanonicalID)
	if err != nil {
		zap.L().Warn("run bookkeeping unavailable", zap.Error(err))
		return
	}

	summary := newRunSummary(agg)
	status := model.RunComplete
	if agg.Empty() {
		status = model.RunFailed
		summary.Error = "no sources succeeded"
	}
	finishRun(ctx, env.Store, run.ID, status, summary)
}

// writeJSON pretty-prints v for the operator or a wrapping script.
func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
