// Command ingestor fetches RSS feeds and the optional headline API on a
// fixed cadence and publishes raw articles to Kafka.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/headlinehq/newsflow/engine/article"
	"github.com/headlinehq/newsflow/engine/ingest"
	"github.com/headlinehq/newsflow/pkg/busutil"
	"github.com/headlinehq/newsflow/pkg/metrics"
)

var met = metrics.New()

var (
	mPublished     = met.Counter("newsflow_ingest_published_total")
	mPublishErrors = met.Counter("newsflow_ingest_publish_errors_total")
	mPublishDur    = met.Histogram("newsflow_ingest_publish_duration_seconds", nil)
)

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
	var feeds []string
	if v := os.Getenv("RSS_FEEDS"); v != "" {
		for _, f := range strings.Split(v, ",") {
			if f = strings.TrimSpace(f); f != "" {
				feeds = append(feeds, f)
			}
		}
	}
	interval := time.Duration(envInt("INGEST_INTERVAL_MINUTES", 5)) * time.Minute

	met.ServeAsync(envInt("METRICS_PORT", 9101))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := busutil.EnsureTopics(ctx, brokers, busutil.PipelineTopics()); err != nil {
		logger.Error("topic setup failed", "error", err)
		os.Exit(1)
	}

	writer := busutil.NewWriter(brokers)
	defer writer.Close()

	fetcher := ingest.New(
		ingest.Config{
			Feeds:      feeds,
			Interval:   interval,
			NewsAPIKey: os.Getenv("NEWSAPI_KEY"),
		},
		ingest.Deps{
			Publish: func(ctx context.Context, a article.RawArticle) error {
				start := time.Now()
				err := busutil.Publish(ctx, writer, busutil.TopicRaw, a.ID, a)
				mPublishDur.Since(start)
				if err != nil {
					mPublishErrors.Inc()
					return err
				}
				mPublished.Inc()
				return nil
			},
			Logger: logger,
		},
	)

	if err := fetcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("ingestor exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("ingestor stopped")
}
