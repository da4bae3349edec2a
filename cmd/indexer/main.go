// Command indexer consumes enriched articles and bulk-writes them to
// monthly Elasticsearch indices.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/headlinehq/newsflow/engine/article"
	"github.com/headlinehq/newsflow/engine/search"
	"github.com/headlinehq/newsflow/pkg/busutil"
	"github.com/headlinehq/newsflow/pkg/metrics"
)

var met = metrics.New()

var (
	mReceived = met.Counter("newsflow_index_received_total")
	mDepth    = met.Gauge("newsflow_index_batch_depth")
	mFlushDur = met.Histogram("newsflow_index_flush_duration_seconds", nil)
	mIndexed  = met.Counter("newsflow_index_indexed_total")
	mErrors   = met.Counter("newsflow_index_errors_total")
)

// templateRetryWait paces startup retries while Elasticsearch boots.
const templateRetryWait = 5 * time.Second

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	brokers := strings.Split(envOr("KAFKA_BOOTSTRAP_SERVERS", "localhost:9092"), ",")
	esHost := envOr("ELASTICSEARCH_HOST", "http://localhost:9200")
	pattern := envOr("ELASTICSEARCH_INDEX_PATTERN", "news")
	batchSize := envInt("ES_BATCH_SIZE", search.DefaultBatchSize)

	met.ServeAsync(envInt("METRICS_PORT", 9105))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := search.NewStore(esHost, pattern, logger)
	if err != nil {
		logger.Error("elasticsearch client failed", "error", err)
		os.Exit(1)
	}
	for {
		if err := store.EnsureTemplate(ctx); err == nil {
			break
		} else {
			logger.Warn("template install failed, retrying", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(templateRetryWait):
		}
	}

	batcher := search.NewBatcher(batchSize, func(ctx context.Context, articles []article.EnrichedArticle) error {
		start := time.Now()
		err := store.BulkIndex(ctx, articles)
		mFlushDur.Since(start)
		if err != nil {
			mErrors.Inc()
			return err
		}
		mIndexed.Add(int64(len(articles)))
		return nil
	}, logger)
	go batcher.Run(ctx)

	reader := busutil.NewReader(brokers, "indexer", busutil.TopicEnriched, logger)
	defer reader.Close()

	logger.Info("indexer starting", "brokers", brokers, "elasticsearch", esHost, "batch_size", batchSize)
	err = busutil.Consume(ctx, reader, func(ctx context.Context, a article.EnrichedArticle) error {
		mReceived.Inc()
		batcher.Add(ctx, a)
		mDepth.Set(int64(batcher.Depth()))
		return nil
	})
	if err != nil {
		logger.Error("indexer exited with error", "error", err)
		os.Exit(1)
	}

	// Flush here as well: main may exit before Run's shutdown flush runs.
	batcher.Flush(context.Background())
	logger.Info("indexer stopped")
}
