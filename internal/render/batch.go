package render

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
)

// BatchItem is one brief inside a bulk generation request. IDs are unique
// within the request and stable across retries.
type BatchItem struct {
	ID    string
	Brief *model.ProspectBrief
}

// BatchGenerator is the optional bulk path a generator may support. A
// brief missing from the returned map failed server-side; the renderer
// falls back per item.
type BatchGenerator interface {
	GenerateBatch(ctx context.Context, items []BatchItem, refs VoiceRefs) (map[string]*Generation, error)
}

// BatchOptions control when the bulk path is used.
type BatchOptions struct {
	// Disabled forces sequential generation.
	Disabled bool
	// MinSize is the smallest batch worth a batch-API round trip;
	// anything smaller renders sequentially.
	MinSize int
	// MaxSize chunks larger runs into separate batch requests.
	MaxSize int
}

// RenderBatch drafts many briefs. Results line up with the input slice.
// When the generator supports the bulk path and the run is big enough,
// briefs go through the batch API in chunks; failures inside a chunk
// degrade to per-item template fallbacks, never to missing results.
func (r *Renderer) RenderBatch(ctx context.Context, briefs []*model.ProspectBrief, refs VoiceRefs, opts BatchOptions) []*model.RenderResult {
	log := zap.L().With(zap.String("component", "render"), zap.Int("briefs", len(briefs)))
	results := make([]*model.RenderResult, len(briefs))

	bg, bulkCapable := r.gen.(BatchGenerator)
	minSize := max(opts.MinSize, 2)
	useBulk := bulkCapable && !opts.Disabled && len(briefs) >= minSize

	if !useBulk {
		for i, b := range briefs {
			if ctx.Err() != nil {
				results[i] = &model.RenderResult{RunID: b.RunID, Status: model.RenderError, Error: ctx.Err().Error()}
				continue
			}
			res, err := r.Render(ctx, b, refs)
			if err != nil {
				log.Warn("render: batch item failed", zap.String("run_id", b.RunID), zap.Error(err))
			}
			results[i] = res
		}
		return results
	}

	var pending []int
	for i, b := range briefs {
		if b.Status == model.BriefNeedsMoreResearch {
			results[i] = &model.RenderResult{RunID: b.RunID, Status: model.RenderNeedsMoreResearch}
			continue
		}
		pending = append(pending, i)
	}

	maxSize := opts.MaxSize
	if maxSize < 1 {
		maxSize = len(pending)
	}
	for start := 0; start < len(pending); start += maxSize {
		end := min(start+maxSize, len(pending))
		r.renderChunk(ctx, briefs, pending[start:end], refs, bg, results, log)
	}
	return results
}

func (r *Renderer) renderChunk(ctx context.Context, briefs []*model.ProspectBrief, chunk []int, refs VoiceRefs, bg BatchGenerator, results []*model.RenderResult, log *zap.Logger) {
	items := make([]BatchItem, 0, len(chunk))
	for _, i := range chunk {
		items = append(items, BatchItem{ID: fmt.Sprintf("b%04d", i), Brief: briefs[i]})
	}

	generations, err := bg.GenerateBatch(ctx, items, refs)
	if err != nil {
		log.Warn("render: batch generation failed, falling back per item", zap.Error(err))
		generations = nil
	}

	for _, i := range chunk {
		b := briefs[i]
		id := fmt.Sprintf("b%04d", i)
		gen, ok := generations[id]
		if !ok {
			genErr := err
			if genErr == nil {
				genErr = eris.Errorf("render: batch item %s came back without a result", id)
			}
			res, werr := r.writeFallback(b, genErr, log)
			if werr != nil {
				log.Warn("render: fallback write failed", zap.String("run_id", b.RunID), zap.Error(werr))
			}
			results[i] = res
			continue
		}
		res, werr := r.writeDraft(b, gen, log)
		if werr != nil {
			log.Warn("render: draft write failed", zap.String("run_id", b.RunID), zap.Error(werr))
		}
		results[i] = res
	}
}
