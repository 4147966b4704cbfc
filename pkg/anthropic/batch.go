package anthropic

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const (
	defaultPollInitial = 2 * time.Second
	defaultPollCap     = 15 * time.Second
	defaultPollTimeout = 30 * time.Minute
)

// PollOption tunes PollBatch.
type PollOption func(*pollConfig)

type pollConfig struct {
	initial time.Duration
	cap     time.Duration
	timeout time.Duration
}

// WithPollInterval sets the first wait between status checks.
func WithPollInterval(d time.Duration) PollOption {
	return func(c *pollConfig) { c.initial = d }
}

// WithPollCap sets the longest wait between status checks.
func WithPollCap(d time.Duration) PollOption {
	return func(c *pollConfig) { c.cap = d }
}

// WithPollTimeout bounds the total wait when the caller's context has no
// deadline of its own.
func WithPollTimeout(d time.Duration) PollOption {
	return func(c *pollConfig) { c.timeout = d }
}

// PollBatch checks batch status until it ends or the context expires.
// The wait doubles up to the cap with jitter so concurrent pollers spread
// out. Expired and canceled batches return the final status alongside an
// error so callers can still read the counts.
func PollBatch(ctx context.Context, client Client, batchID string, opts ...PollOption) (*BatchResponse, error) {
	cfg := pollConfig{initial: defaultPollInitial, cap: defaultPollCap, timeout: defaultPollTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.timeout)
		defer cancel()
	}

	interval := cfg.initial
	for {
		batch, err := client.GetBatch(ctx, batchID)
		if err != nil {
			return nil, eris.Wrapf(err, "anthropic: poll batch %s", batchID)
		}

		switch batch.ProcessingStatus {
		case "ended":
			return batch, nil
		case "expired":
			return batch, eris.Errorf("anthropic: batch %s expired", batchID)
		case "canceled", "canceling":
			return batch, eris.Errorf("anthropic: batch %s canceled", batchID)
		}
		zap.L().Debug("anthropic: batch in progress",
			zap.String("batch_id", batchID),
			zap.Int64("processing", batch.RequestCounts.Processing),
			zap.Int64("succeeded", batch.RequestCounts.Succeeded),
			zap.Int64("errored", batch.RequestCounts.Errored),
		)

		select {
		case <-ctx.Done():
			return nil, eris.Wrapf(ctx.Err(), "anthropic: poll batch %s timed out", batchID)
		case <-time.After(interval):
		}

		interval *= 2
		if interval > cfg.cap {
			interval = cfg.cap
		}
		jitter := time.Duration(rand.Int64N(int64(interval) / 5))
		if rand.IntN(2) == 0 {
			interval += jitter
		} else {
			interval -= jitter
		}
	}
}

// CollectBatchResults drains the iterator into succeeded responses keyed by
// custom id. Errored, canceled, and expired items are logged and dropped;
// the caller detects them as ids missing from the map.
func CollectBatchResults(iter BatchResultIterator) (map[string]*MessageResponse, error) {
	defer func() { _ = iter.Close() }()

	succeeded := make(map[string]*MessageResponse)
	failed := 0
	for iter.Next() {
		item := iter.Item()
		if item.Type == "succeeded" && item.Message != nil {
			succeeded[item.CustomID] = item.Message
			continue
		}
		failed++
		zap.L().Warn("anthropic: batch item failed",
			zap.String("custom_id", item.CustomID),
			zap.String("type", item.Type),
		)
	}
	if err := iter.Err(); err != nil {
		return nil, eris.Wrap(err, "anthropic: collect batch results")
	}

	if failed > 0 {
		zap.L().Warn("anthropic: batch finished with failed items",
			zap.Int("succeeded", len(succeeded)),
			zap.Int("failed", failed),
		)
	}
	return succeeded, nil
}
