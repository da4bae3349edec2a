package search

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/headlinehq/newsflow/engine/article"
)

// DefaultBatchSize is the bulk batch size when none is configured.
const DefaultBatchSize = 100

// defaultIdleFlush flushes a partial batch after this much quiet time.
const defaultIdleFlush = 5 * time.Second

// Batcher buffers enriched articles and flushes them in bulk when the
// batch fills, on an idle tick, and on shutdown. A failed flush clears
// the batch; upstream at-least-once delivery plus id-keyed writes make
// the eventual replay idempotent.
type Batcher struct {
	size  int
	idle  time.Duration
	flush func(ctx context.Context, articles []article.EnrichedArticle) error
	log   *slog.Logger

	mu    sync.Mutex
	batch []article.EnrichedArticle
}

// NewBatcher creates a Batcher that hands full batches to flush.
func NewBatcher(size int, flush func(ctx context.Context, articles []article.EnrichedArticle) error, log *slog.Logger) *Batcher {
	if size < 1 {
		size = DefaultBatchSize
	}
	if log == nil {
		log = slog.Default()
	}
	return &Batcher{
		size:  size,
		idle:  defaultIdleFlush,
		flush: flush,
		log:   log,
	}
}

// Add buffers one article, flushing when the batch is full.
func (b *Batcher) Add(ctx context.Context, a article.EnrichedArticle) {
	b.mu.Lock()
	b.batch = append(b.batch, a)
	full := len(b.batch) >= b.size
	b.mu.Unlock()

	if full {
		b.Flush(ctx)
	}
}

// Depth returns the current buffered count.
func (b *Batcher) Depth() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.batch)
}

// Flush writes out the buffered batch. The batch is cleared whether or
// not the write succeeds; a failure is logged, not retried.
func (b *Batcher) Flush(ctx context.Context) {
	b.mu.Lock()
	batch := b.batch
	b.batch = nil
	b.mu.Unlock()

	if len(batch) == 0 {
		return
	}
	if err := b.flush(ctx, batch); err != nil {
		b.log.Error("bulk flush failed, dropping batch", "articles", len(batch), "error", err)
	}
}

// Run flushes partial batches on an idle tick until ctx is cancelled,
// then performs a final flush so shutdown never strands articles.
func (b *Batcher) Run(ctx context.Context) {
	ticker := time.NewTicker(b.idle)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			b.Flush(context.Background())
			return
		case <-ticker.C:
			b.Flush(ctx)
		}
	}
}
