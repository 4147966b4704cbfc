// Package render turns a gated brief into an outreach draft on disk. Text
// generation sits behind the TextGenerator interface; the renderer itself
// only decides what to ask for, where the output lands, and what happens
// when generation fails. A generator outage degrades to a deterministic
// template draft rather than an empty slot.
package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/artifact"
	"github.com/sells-group/outreach-cli/internal/cost"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/resilience"
)

// VoiceRefs carries the voice primer and example drafts the generator
// writes in.
type VoiceRefs struct {
	Voice    string
	Examples []string
}

// LoadVoiceRefs reads the voice primer (voice.md) and example drafts
// (examples/*.md) from the configured directory. Missing pieces yield
// empty refs; the generator still works, it just writes in its default
// register.
func LoadVoiceRefs(dir string) VoiceRefs {
	if dir == "" {
		return VoiceRefs{}
	}
	log := zap.L().With(zap.String("component", "render"), zap.String("voice_dir", dir))

	var refs VoiceRefs
	raw, err := os.ReadFile(filepath.Join(dir, "voice.md"))
	if err != nil {
		log.Debug("render: no voice primer", zap.Error(err))
	} else {
		refs.Voice = string(raw)
	}

	entries, err := os.ReadDir(filepath.Join(dir, "examples"))
	if err != nil {
		return refs
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, "examples", e.Name()))
		if err != nil {
			log.Warn("render: skipping unreadable example", zap.String("file", e.Name()), zap.Error(err))
			continue
		}
		refs.Examples = append(refs.Examples, string(raw))
	}
	return refs
}

// Generation is what a text generator returns for one brief.
type Generation struct {
	Variants []string
	Model    string
	Usage    model.TokenUsage
}

// TextGenerator produces draft variants from a brief and voice references.
// Implementations classify nothing; any error means "no text this time" and
// the renderer decides what to do about it.
type TextGenerator interface {
	Generate(ctx context.Context, brief *model.ProspectBrief, refs VoiceRefs, variants int) (*Generation, error)
}

// QualityReport is what lands in quality.json beside a draft.
type QualityReport struct {
	RunID          string               `json:"run_id"`
	Status         model.RenderStatus   `json:"status"`
	Mode           model.ExecMode       `json:"mode"`
	Model          string               `json:"model,omitempty"`
	Variants       int                  `json:"variants"`
	Confidence     model.ConfidenceMode `json:"confidence_mode"`
	VerifiedCount  int                  `json:"verified_count"`
	CitedURLs      []string             `json:"cited_urls,omitempty"`
	Warnings       []string             `json:"warnings,omitempty"`
	Usage          model.TokenUsage     `json:"usage"`
	GeneratorError string               `json:"generator_error,omitempty"`
	RenderedAt     time.Time            `json:"rendered_at"`
}

// Renderer drafts artifacts from briefs.
type Renderer struct {
	gen      TextGenerator
	writer   *artifact.Writer
	calc     *cost.Calculator
	mode     model.ExecMode
	variants int
	retry    resilience.RetryConfig
	nowFunc  func() time.Time
}

// New creates a renderer. Variants below one are raised to one.
func New(gen TextGenerator, writer *artifact.Writer, calc *cost.Calculator, mode model.ExecMode, variants int) *Renderer {
	if variants < 1 {
		variants = 1
	}
	retry := resilience.DefaultRetryConfig()
	// Generator errors are retried whatever their kind: the alternative
	// is a canned template draft, so two extra calls are worth it.
	retry.ShouldRetry = func(error) bool { return true }
	return &Renderer{
		gen:      gen,
		writer:   writer,
		calc:     calc,
		mode:     mode,
		variants: variants,
		retry:    retry,
		nowFunc:  time.Now,
	}
}

// WithRetry overrides the generator retry policy.
func (r *Renderer) WithRetry(cfg resilience.RetryConfig) *Renderer {
	r.retry = cfg
	return r
}

// WithNow sets a fixed clock for testing.
func (r *Renderer) WithNow(fn func() time.Time) *Renderer {
	r.nowFunc = fn
	return r
}

// Render drafts one brief. A needs_more_research brief short-circuits
// before any generation call and writes nothing. Generator failure after
// retries degrades to the template fallback. The returned error is non-nil
// only for hard failures (the artifact could not be written); everything
// else is expressed in the result status.
func (r *Renderer) Render(ctx context.Context, brief *model.ProspectBrief, refs VoiceRefs) (*model.RenderResult, error) {
	log := zap.L().With(
		zap.String("component", "render"),
		zap.String("run_id", brief.RunID),
		zap.String("company", brief.Company.Name),
		zap.String("contact", brief.Contact.Name),
	)

	if brief.Status == model.BriefNeedsMoreResearch {
		log.Info("render: brief needs more research, skipping generation")
		return &model.RenderResult{RunID: brief.RunID, Status: model.RenderNeedsMoreResearch}, nil
	}

	variants := r.variants
	if r.mode == model.ModeHeadless {
		// Unattended runs draft one variant; nobody is there to pick.
		variants = 1
	}

	gen, err := resilience.DoVal(ctx, r.retry, func(ctx context.Context) (*Generation, error) {
		return r.gen.Generate(ctx, brief, refs, variants)
	})
	if err != nil {
		log.Warn("render: generator failed, falling back to template", zap.Error(err))
		return r.writeFallback(brief, err, log)
	}

	return r.writeDraft(brief, gen, log)
}

func (r *Renderer) writeDraft(brief *model.ProspectBrief, gen *Generation, log *zap.Logger) (*model.RenderResult, error) {
	dir, err := r.writer.WriteDraft(brief, joinVariants(gen.Variants), model.StatusRendered)
	if err != nil {
		return &model.RenderResult{RunID: brief.RunID, Status: model.RenderError, Error: err.Error()}, err
	}

	usage := gen.Usage
	usage.Cost = r.calc.Claude(gen.Model, false,
		usage.InputTokens, usage.OutputTokens, usage.CacheCreationTokens, usage.CacheReadTokens)

	report := r.report(brief, model.RenderSuccess, gen.Model, usage, len(gen.Variants))
	if err := r.writer.WriteQuality(dir, report); err != nil {
		log.Warn("render: quality report not written", zap.Error(err))
	}

	log.Info("render: draft written",
		zap.String("dir", dir),
		zap.Int("variants", len(gen.Variants)),
		zap.Float64("cost_usd", usage.Cost))
	return &model.RenderResult{
		RunID:    brief.RunID,
		Status:   model.RenderSuccess,
		Dir:      dir,
		Variants: gen.Variants,
		Usage:    usage,
	}, nil
}

func (r *Renderer) writeFallback(brief *model.ProspectBrief, genErr error, log *zap.Logger) (*model.RenderResult, error) {
	draft := FallbackDraft(brief)
	dir, err := r.writer.WriteDraft(brief, draft, model.StatusDrafted)
	if err != nil {
		return &model.RenderResult{RunID: brief.RunID, Status: model.RenderError, Error: err.Error()}, err
	}

	report := r.report(brief, model.RenderFallback, "", model.TokenUsage{}, 1)
	report.GeneratorError = genErr.Error()
	if err := r.writer.WriteQuality(dir, report); err != nil {
		log.Warn("render: quality report not written", zap.Error(err))
	}

	return &model.RenderResult{
		RunID:    brief.RunID,
		Status:   model.RenderFallback,
		Dir:      dir,
		Variants: []string{draft},
	}, nil
}

func (r *Renderer) report(brief *model.ProspectBrief, status model.RenderStatus, genModel string, usage model.TokenUsage, variants int) QualityReport {
	verified := brief.VerifiedSignals()
	var urls []string
	seen := make(map[string]bool)
	for _, s := range verified {
		if s.SourceURL != "" && !seen[s.SourceURL] {
			seen[s.SourceURL] = true
			urls = append(urls, s.SourceURL)
		}
	}
	var warnings []string
	for _, w := range brief.Warnings {
		warnings = append(warnings, w.String())
	}

	return QualityReport{
		RunID:         brief.RunID,
		Status:        status,
		Mode:          r.mode,
		Model:         genModel,
		Variants:      variants,
		Confidence:    brief.Confidence,
		VerifiedCount: len(verified),
		CitedURLs:     urls,
		Warnings:      warnings,
		Usage:         usage,
		RenderedAt:    r.nowFunc().UTC(),
	}
}

func joinVariants(variants []string) string {
	if len(variants) == 1 {
		return strings.TrimSpace(variants[0]) + "\n"
	}
	var b strings.Builder
	for i, v := range variants {
		if i > 0 {
			b.WriteString("\n\n---\n\n")
		}
		fmt.Fprintf(&b, "## Variant %d\n\n%s", i+1, strings.TrimSpace(v))
	}
	b.WriteString("\n")
	return b.String()
}
