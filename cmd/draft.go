package main

import (
	"context"
	"os"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/artifact"
	"github.com/sells-group/outreach-cli/internal/gate"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/render"
	"github.com/sells-group/outreach-cli/pkg/notion"
)

var (
	draftCompany      string
	draftContact      string
	draftTitle        string
	draftDomain       string
	draftTier         string
	draftForce        bool
	draftForceRefresh bool
	draftDryRun       bool
	draftInteractive  bool
)

var draftCmd = &cobra.Command{
	Use:   "draft",
	Short: "Research a prospect and render an outreach draft",
	Long:  "Runs the full path for one prospect: provider research, context synthesis, brief scoring, the render gate, and Claude drafting into the artifact tree. Exit codes: 0 drafted, 2 blocked or fallback, 3 needs more research.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initResearchEnv(ctx, "draft", cacheModeFor(draftDryRun, draftForceRefresh))
		if err != nil {
			return err
		}
		defer env.Close()

		identity := model.Identity{
			Contact: draftContact,
			Title:   draftTitle,
			Company: draftCompany,
			Domain:  draftDomain,
		}

		agg, err := env.Orchestrator.Research(ctx, identity)
		if err != nil {
			return eris.Wrap(err, "draft: research")
		}

		// An ephemeral id labels dry runs and runs whose bookkeeping row
		// could not be created; artifacts always carry some run id.
		runID := uuid.NewString()
		if !draftDryRun {
			if run, rerr := env.Store.CreateRun(ctx, identity, agg.CanonicalID); rerr != nil {
				zap.L().Warn("run bookkeeping unavailable", zap.Error(rerr))
			} else {
				runID = run.ID
				advanceRun(ctx, env.Store, runID, model.RunSynthesizing)
			}
		}

		pctx, err := env.Synth.Synthesize(agg)
		if err != nil {
			failDraftRun(ctx, env, runID, agg, err)
			return eris.Wrap(err, "draft: synthesize")
		}

		tier := draftTier
		if tier == "" {
			tier = cfg.Rules.DefaultTier
		}
		brief, err := env.Engine.BuildBrief(agg, pctx, tier)
		if err != nil {
			failDraftRun(ctx, env, runID, agg, err)
			return eris.Wrap(err, "draft: build brief")
		}
		brief.RunID = runID

		if brief.Status == model.BriefNeedsMoreResearch {
			if !draftDryRun {
				finishRun(ctx, env.Store, runID, model.RunNeedsResearch, draftSummary(agg, brief, ""))
			}
			if err := writeJSON(os.Stdout, brief); err != nil {
				return err
			}
			return exitWith(exitNeedsResearch, "research too thin to draft")
		}

		// Headless drafts render unattended, so the stricter batch-render
		// warning set applies. With an operator picking variants the
		// approval set is enough.
		renderGate := gate.BatchRender
		if draftInteractive {
			renderGate = gate.Approval
		}
		decision := renderGate.Evaluate(brief, draftForce)

		if decision.Blocked() {
			summary := draftSummary(agg, brief, decision.ReasonCode)
			if !draftDryRun {
				writer := artifact.NewWriter(cfg.Render.OutRoot)
				if dir, werr := writer.WriteBlocked(brief, decision); werr != nil {
					zap.L().Warn("blocked artifact not written", zap.Error(werr))
				} else {
					summary.ArtifactDir = dir
				}
				pushReview(ctx, brief, decision)
				finishRun(ctx, env.Store, runID, model.RunBlocked, summary)
			}
			if err := writeJSON(os.Stdout, draftOutput{Brief: brief, Gate: decision}); err != nil {
				return err
			}
			return exitWith(exitFallback, "gate blocked: "+decision.ReasonCode)
		}

		if draftDryRun {
			// Decision preview only: no artifact, no generation spend.
			return writeJSON(os.Stdout, draftOutput{Brief: brief, Gate: decision})
		}

		advanceRun(ctx, env.Store, runID, model.RunRendering)

		mode := model.ModeHeadless
		if draftInteractive {
			mode = model.ModeInteractive
		}
		refs := render.LoadVoiceRefs(cfg.Render.VoiceDir)

		res, err := initRenderer(mode).Render(ctx, brief, refs)
		if err != nil {
			failDraftRun(ctx, env, runID, agg, err)
			return eris.Wrap(err, "draft: render")
		}

		summary := draftSummary(agg, brief, "")
		summary.RenderStatus = res.Status
		summary.ArtifactDir = res.Dir
		summary.Usage = res.Usage
		finishRun(ctx, env.Store, runID, runStatusForRender(res.Status), summary)

		if err := writeJSON(os.Stdout, res); err != nil {
			return err
		}
		return renderExit(res.Status)
	},
}

func init() {
	draftCmd.Flags().StringVar(&draftCompany, "company", "", "company name (required)")
	draftCmd.Flags().StringVar(&draftContact, "contact", "", "contact full name (required)")
	draftCmd.Flags().StringVar(&draftTitle, "title", "", "contact job title")
	draftCmd.Flags().StringVar(&draftDomain, "domain", "", "company website domain")
	draftCmd.Flags().StringVar(&draftTier, "tier", "", "rule tier (default from config)")
	draftCmd.Flags().BoolVar(&draftForce, "force", false, "clear the review-required check after a human review")
	draftCmd.Flags().BoolVar(&draftForceRefresh, "force-refresh", false, "refetch every provider, ignoring fresh cache entries")
	draftCmd.Flags().BoolVar(&draftDryRun, "dry-run", false, "stop before rendering; no writes of any kind")
	draftCmd.Flags().BoolVar(&draftInteractive, "interactive", false, "render multiple variants for an operator to pick from")
	_ = draftCmd.MarkFlagRequired("company")
	_ = draftCmd.MarkFlagRequired("contact")
	rootCmd.AddCommand(draftCmd)
}

// draftOutput is what a draft run prints when it stops before rendering.
type draftOutput struct {
	Brief *model.ProspectBrief `json:"brief"`
	Gate  model.GateDecision   `json:"gate"`
}

// draftSummary builds the run summary for any draft outcome.
func draftSummary(agg *model.AggregatedResult, brief *model.ProspectBrief, gateReason string) *model.RunSummary {
	summary := newRunSummary(agg)
	summary.Confidence = brief.Confidence
	summary.SignalCount = len(brief.Signals)
	summary.GateReason = gateReason
	return summary
}

func failDraftRun(ctx context.Context, env *researchEnv, runID string, agg *model.AggregatedResult, cause error) {
	if draftDryRun {
		return
	}
	summary := newRunSummary(agg)
	summary.Error = cause.Error()
	finishRun(ctx, env.Store, runID, model.RunFailed, summary)
}

// runStatusForRender maps the render outcome onto the run lifecycle.
func runStatusForRender(status model.RenderStatus) model.RunStatus {
	switch status {
	case model.RenderSuccess, model.RenderFallback:
		return model.RunComplete
	case model.RenderNeedsMoreResearch:
		return model.RunNeedsResearch
	default:
		return model.RunFailed
	}
}

// pushReview queues a blocked prospect in the Notion review database when
// one is configured, so a human sees what automation declined to send.
func pushReview(ctx context.Context, brief *model.ProspectBrief, decision model.GateDecision) {
	if cfg.Notion.Token == "" || cfg.Notion.ReviewDB == "" {
		return
	}

	client := notion.NewClient(cfg.Notion.Token)
	entry := notion.ReviewEntry{
		Company:    brief.Company.Name,
		Contact:    brief.Contact.Name,
		Persona:    brief.Persona,
		Confidence: string(brief.Confidence),
		Reason:     decision.ReasonCode,
	}
	if _, err := notion.PushReviewEntry(ctx, client, cfg.Notion.ReviewDB, entry); err != nil {
		zap.L().Warn("review queue push failed", zap.Error(err))
		return
	}
	zap.L().Info("prospect queued for review",
		zap.String("company", brief.Company.Name),
		zap.String("reason", decision.ReasonCode),
	)
}
