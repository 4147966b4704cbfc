package main

import (
	"context"
	"encoding/csv"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/outreach-cli/internal/artifact"
	"github.com/sells-group/outreach-cli/internal/gate"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/render"
	"github.com/sells-group/outreach-cli/pkg/notion"
)

var (
	batchCSV          string
	batchFromNotion   bool
	batchEnqueue      string
	batchForce        bool
	batchForceRefresh bool
	batchDryRun       bool
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Draft outreach for a prospect list unattended",
	Long:  "Researches every prospect from a CSV file or the Notion queue concurrently, gates each brief under the unattended rules, and renders the eligible ones through the batch generation path. One regulated persona anywhere vetoes the whole batch.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if batchEnqueue != "" {
			return enqueueProspects(ctx, batchEnqueue)
		}

		if batchCSV == "" && !batchFromNotion {
			return eris.New("batch: provide --csv or --from-notion")
		}
		if batchCSV != "" && batchFromNotion {
			return eris.New("batch: --csv and --from-notion are mutually exclusive")
		}

		env, err := initResearchEnv(ctx, "batch", cacheModeFor(batchDryRun, batchForceRefresh))
		if err != nil {
			return err
		}
		defer env.Close()

		prospects, err := loadProspects(ctx)
		if err != nil {
			return err
		}
		if len(prospects) == 0 {
			zap.L().Info("batch: nothing queued")
			return nil
		}
		zap.L().Info("batch: starting",
			zap.Int("prospects", len(prospects)),
			zap.Int("workers", cfg.Batch.MaxConcurrentContacts),
			zap.Bool("dry_run", batchDryRun),
		)

		items := researchBatch(ctx, env, prospects)

		report := gateAndRenderBatch(ctx, env, items)

		if batchFromNotion && !batchDryRun {
			writeBackQueue(ctx, items)
		}

		if err := writeJSON(os.Stdout, report); err != nil {
			return err
		}
		return batchExit(report)
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchCSV, "csv", "", "prospect list CSV (company, contact, title, domain columns)")
	batchCmd.Flags().BoolVar(&batchFromNotion, "from-notion", false, "pull queued prospects from the Notion queue database")
	batchCmd.Flags().StringVar(&batchEnqueue, "enqueue", "", "import a target-list CSV into the Notion queue instead of drafting")
	batchCmd.Flags().BoolVar(&batchForce, "force", false, "clear the review-required check after a human review")
	batchCmd.Flags().BoolVar(&batchForceRefresh, "force-refresh", false, "refetch every provider, ignoring fresh cache entries")
	batchCmd.Flags().BoolVar(&batchDryRun, "dry-run", false, "research and gate only; no renders, no writes of any kind")
	rootCmd.AddCommand(batchCmd)
}

// batchEntry tracks one prospect across the batch phases.
type batchEntry struct {
	Prospect notion.Prospect
	RunID    string
	Brief    *model.ProspectBrief
	Agg      *model.AggregatedResult
	Outcome  string
	Reason   string
	Dir      string
	Usage    model.TokenUsage
}

// Outcome values in the batch report.
const (
	outcomeDrafted   = "drafted"
	outcomeFallback  = "fallback"
	outcomeBlocked   = "blocked"
	outcomeNeedsMore = "needs_more_research"
	outcomeFailed    = "failed"
	outcomeEligible  = "eligible"
)

type batchReport struct {
	Total     int                `json:"total"`
	Drafted   int                `json:"drafted"`
	Fallback  int                `json:"fallback"`
	Blocked   int                `json:"blocked"`
	NeedsMore int                `json:"needs_more_research"`
	Failed    int                `json:"failed"`
	BatchGate model.GateDecision `json:"batch_gate"`
	Usage     model.TokenUsage   `json:"usage"`
	Items     []batchItemReport  `json:"items"`
}

type batchItemReport struct {
	Company string `json:"company"`
	Contact string `json:"contact"`
	RunID   string `json:"run_id,omitempty"`
	Outcome string `json:"outcome"`
	Reason  string `json:"reason,omitempty"`
	Dir     string `json:"dir,omitempty"`
}

// enqueueProspects imports a target-list CSV into the Notion queue. No
// research stack is needed for this path.
func enqueueProspects(ctx context.Context, csvPath string) error {
	if cfg.Notion.Token == "" || cfg.Notion.QueueDB == "" {
		return eris.New("batch: --enqueue needs notion.token and notion.queue_db configured")
	}
	client := notion.NewClient(cfg.Notion.Token)
	created, err := notion.ImportCSV(ctx, client, cfg.Notion.QueueDB, csvPath)
	if err != nil {
		return eris.Wrap(err, "batch: enqueue")
	}
	zap.L().Info("batch: prospects queued", zap.Int("created", created))
	return writeJSON(os.Stdout, map[string]int{"queued": created})
}

// loadProspects reads the batch input from whichever source was selected.
func loadProspects(ctx context.Context) ([]notion.Prospect, error) {
	if batchFromNotion {
		if cfg.Notion.Token == "" || cfg.Notion.QueueDB == "" {
			return nil, eris.New("batch: --from-notion needs notion.token and notion.queue_db configured")
		}
		client := notion.NewClient(cfg.Notion.Token)
		prospects, err := notion.QueryQueuedProspects(ctx, client, cfg.Notion.QueueDB)
		if err != nil {
			return nil, eris.Wrap(err, "batch: load queue")
		}
		return prospects, nil
	}
	return readProspectCSV(batchCSV)
}

// readProspectCSV parses a prospect list. Column matching is by header name,
// case-insensitive; company may also be titled "name" to match queue exports.
// Rows without both a company and a contact are skipped.
func readProspectCSV(path string) ([]notion.Prospect, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "batch: open csv %s", path)
	}
	defer func() { _ = f.Close() }()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, eris.Wrapf(err, "batch: read csv %s", path)
	}
	if len(records) < 2 {
		return nil, nil
	}

	col := make(map[string]int)
	for i, h := range records[0] {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	pick := func(row []string, names ...string) string {
		for _, n := range names {
			if i, ok := col[n]; ok && i < len(row) {
				if v := strings.TrimSpace(row[i]); v != "" {
					return v
				}
			}
		}
		return ""
	}

	var prospects []notion.Prospect
	for n, row := range records[1:] {
		p := notion.Prospect{
			Company: pick(row, "company", "name"),
			Contact: pick(row, "contact"),
			Title:   pick(row, "title"),
			Domain:  pick(row, "domain"),
		}
		if p.Company == "" || p.Contact == "" {
			zap.L().Warn("batch: skipping csv row without company and contact", zap.Int("row", n+2))
			continue
		}
		prospects = append(prospects, p)
	}
	return prospects, nil
}

// researchBatch runs research, synthesis, and brief scoring for every
// prospect concurrently. Individual failures are recorded on the entry and
// never abort the batch.
func researchBatch(ctx context.Context, env *researchEnv, prospects []notion.Prospect) []batchEntry {
	items := make([]batchEntry, len(prospects))
	for i := range items {
		items[i].Prospect = prospects[i]
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Batch.MaxConcurrentContacts)

	for i := range items {
		g.Go(func() error {
			it := &items[i]
			identity := model.Identity{
				Contact: it.Prospect.Contact,
				Title:   it.Prospect.Title,
				Company: it.Prospect.Company,
				Domain:  it.Prospect.Domain,
			}

			agg, err := env.Orchestrator.Research(gctx, identity)
			if err != nil {
				it.Outcome = outcomeFailed
				it.Reason = err.Error()
				return nil // one prospect failing never aborts the batch
			}
			it.Agg = agg

			it.RunID = uuid.NewString()
			if !batchDryRun {
				if run, rerr := env.Store.CreateRun(gctx, identity, agg.CanonicalID); rerr != nil {
					zap.L().Warn("run bookkeeping unavailable", zap.Error(rerr))
				} else {
					it.RunID = run.ID
					advanceRun(gctx, env.Store, it.RunID, model.RunSynthesizing)
				}
			}

			pctx, err := env.Synth.Synthesize(agg)
			if err != nil {
				failBatchEntry(gctx, env, it, err)
				return nil
			}
			brief, err := env.Engine.BuildBrief(agg, pctx, cfg.Rules.DefaultTier)
			if err != nil {
				failBatchEntry(gctx, env, it, err)
				return nil
			}
			brief.RunID = it.RunID
			it.Brief = brief
			return nil
		})
	}
	_ = g.Wait()
	return items
}

func failBatchEntry(ctx context.Context, env *researchEnv, it *batchEntry, cause error) {
	it.Outcome = outcomeFailed
	it.Reason = cause.Error()
	if batchDryRun {
		return
	}
	summary := newRunSummary(it.Agg)
	summary.Error = cause.Error()
	finishRun(ctx, env.Store, it.RunID, model.RunFailed, summary)
}

// gateAndRenderBatch applies the unattended gate across the batch and renders
// whatever survives. A regulated-persona veto stops the whole batch before
// anything is written.
func gateAndRenderBatch(ctx context.Context, env *researchEnv, items []batchEntry) batchReport {
	var briefs []*model.ProspectBrief
	briefed := make([]*batchEntry, 0, len(items))
	for i := range items {
		if items[i].Brief != nil {
			briefs = append(briefs, items[i].Brief)
			briefed = append(briefed, &items[i])
		}
	}

	batchDecision, per := gate.EvaluateBatch(briefs, batchForce)

	if batchDecision.ReasonCode == model.ReasonBatchRegulated {
		// Nothing renders and nothing lands on disk; runs close blocked so
		// the queue shows why the batch went nowhere.
		zap.L().Warn("batch: regulated persona present, batch vetoed")
		for _, it := range briefed {
			it.Outcome = outcomeBlocked
			it.Reason = batchDecision.ReasonCode
			if !batchDryRun {
				summary := draftSummary(it.Agg, it.Brief, batchDecision.ReasonCode)
				finishRun(ctx, env.Store, it.RunID, model.RunBlocked, summary)
			}
		}
		return summarizeBatch(items, batchDecision)
	}

	var toRender []*batchEntry
	for i, it := range briefed {
		if it.Brief.Status == model.BriefNeedsMoreResearch {
			it.Outcome = outcomeNeedsMore
			if !batchDryRun {
				finishRun(ctx, env.Store, it.RunID, model.RunNeedsResearch, draftSummary(it.Agg, it.Brief, ""))
			}
			continue
		}
		if per[i].Blocked() {
			it.Outcome = outcomeBlocked
			it.Reason = per[i].ReasonCode
			if !batchDryRun {
				summary := draftSummary(it.Agg, it.Brief, per[i].ReasonCode)
				writer := artifact.NewWriter(cfg.Render.OutRoot)
				if dir, werr := writer.WriteBlocked(it.Brief, per[i]); werr != nil {
					zap.L().Warn("blocked artifact not written", zap.Error(werr))
				} else {
					it.Dir = dir
					summary.ArtifactDir = dir
				}
				pushReview(ctx, it.Brief, per[i])
				finishRun(ctx, env.Store, it.RunID, model.RunBlocked, summary)
			}
			continue
		}
		it.Outcome = outcomeEligible
		toRender = append(toRender, it)
	}

	if batchDryRun || len(toRender) == 0 {
		return summarizeBatch(items, batchDecision)
	}

	renderBatchEntries(ctx, env, toRender)
	return summarizeBatch(items, batchDecision)
}

func renderBatchEntries(ctx context.Context, env *researchEnv, entries []*batchEntry) {
	briefs := make([]*model.ProspectBrief, len(entries))
	for i, it := range entries {
		briefs[i] = it.Brief
		advanceRun(ctx, env.Store, it.RunID, model.RunRendering)
	}

	refs := render.LoadVoiceRefs(cfg.Render.VoiceDir)
	results := initRenderer(model.ModeHeadless).RenderBatch(ctx, briefs, refs, render.BatchOptions{
		Disabled: cfg.Anthropic.NoBatch,
		MinSize:  cfg.Anthropic.SmallBatchThreshold,
		MaxSize:  cfg.Anthropic.MaxBatchSize,
	})

	for i, res := range results {
		it := entries[i]
		if res == nil {
			it.Outcome = outcomeFailed
			it.Reason = "render returned no result"
			continue
		}
		switch res.Status {
		case model.RenderSuccess:
			it.Outcome = outcomeDrafted
		case model.RenderFallback:
			it.Outcome = outcomeFallback
			it.Reason = "generator failed, template fallback written"
		case model.RenderNeedsMoreResearch:
			it.Outcome = outcomeNeedsMore
		default:
			it.Outcome = outcomeFailed
			it.Reason = res.Error
		}
		it.Dir = res.Dir
		it.Usage = res.Usage

		summary := draftSummary(it.Agg, it.Brief, "")
		summary.RenderStatus = res.Status
		summary.ArtifactDir = res.Dir
		summary.Usage = res.Usage
		finishRun(ctx, env.Store, it.RunID, runStatusForRender(res.Status), summary)
	}
}

func summarizeBatch(items []batchEntry, batchDecision model.GateDecision) batchReport {
	report := batchReport{
		Total:     len(items),
		BatchGate: batchDecision,
		Items:     make([]batchItemReport, 0, len(items)),
	}
	for i := range items {
		it := &items[i]
		switch it.Outcome {
		case outcomeDrafted:
			report.Drafted++
		case outcomeFallback:
			report.Fallback++
		case outcomeBlocked:
			report.Blocked++
		case outcomeNeedsMore:
			report.NeedsMore++
		case outcomeFailed:
			report.Failed++
		}
		report.Usage.Add(it.Usage)
		report.Items = append(report.Items, batchItemReport{
			Company: it.Prospect.Company,
			Contact: it.Prospect.Contact,
			RunID:   it.RunID,
			Outcome: it.Outcome,
			Reason:  it.Reason,
			Dir:     it.Dir,
		})
	}

	zap.L().Info("batch: finished",
		zap.Int("total", report.Total),
		zap.Int("drafted", report.Drafted),
		zap.Int("fallback", report.Fallback),
		zap.Int("blocked", report.Blocked),
		zap.Int("needs_more", report.NeedsMore),
		zap.Int("failed", report.Failed),
	)
	return report
}

// writeBackQueue records each prospect's outcome on its queue page. Failed
// prospects stay Queued so the next batch retries them.
func writeBackQueue(ctx context.Context, items []batchEntry) {
	client := notion.NewClient(cfg.Notion.Token)
	for i := range items {
		it := &items[i]
		if it.Prospect.PageID == "" {
			continue
		}
		var status string
		switch it.Outcome {
		case outcomeDrafted, outcomeFallback:
			status = "Drafted"
		case outcomeBlocked, outcomeNeedsMore:
			status = "Needs Review"
		default:
			continue
		}
		if err := notion.MarkProspectStatus(ctx, client, it.Prospect.PageID, status); err != nil {
			zap.L().Warn("queue writeback failed",
				zap.String("company", it.Prospect.Company),
				zap.Error(err))
		}
	}
}

// batchExit maps the aggregate outcome onto the render exit-code contract:
// clean sweep exits 0, an all-needs-more batch exits 3, and anything degraded
// in between exits 2. Dry-run entries left eligible count as clean.
func batchExit(report batchReport) error {
	if report.Total == 0 {
		return nil
	}
	if report.NeedsMore == report.Total {
		return exitWith(exitNeedsResearch, "every prospect needs more research")
	}
	if report.Fallback+report.Blocked+report.NeedsMore+report.Failed > 0 {
		return exitWith(exitFallback, "batch finished degraded")
	}
	return nil
}
