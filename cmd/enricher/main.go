// Command enricher consumes normalized articles, runs the LLM analysis
// tasks, and publishes enriched articles. Without an API key it runs in
// deterministic pass-through mode.
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
	"github.com/headlinehq/newsflow/engine/enrich"
	"github.com/headlinehq/newsflow/pkg/busutil"
	"github.com/headlinehq/newsflow/pkg/metrics"
)

var met = metrics.New()

var (
	mEnriched  = met.Counter("newsflow_enrich_published_total")
	mErrors    = met.Counter("newsflow_enrich_errors_total")
	mHandleDur = met.Histogram("newsflow_enrich_handle_duration_seconds", nil)
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
	apiKey := os.Getenv("GOOGLE_API_KEY")

	met.ServeAsync(envInt("METRICS_PORT", 9104))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var model enrich.Model
	if apiKey != "" {
		gemini, err := enrich.NewGemini(ctx, apiKey)
		if err != nil {
			logger.Error("gemini client failed", "error", err)
			os.Exit(1)
		}
		model = gemini
		logger.Info("llm enrichment enabled", "model", enrich.ModelName)
	} else {
		logger.Warn("GOOGLE_API_KEY not set, running in pass-through mode")
	}

	writer := busutil.NewWriter(brokers)
	defer writer.Close()
	reader := busutil.NewReader(brokers, "enricher", busutil.TopicNormalized, logger)
	defer reader.Close()

	enricher := enrich.New(enrich.Deps{
		Model: model,
		Publish: func(ctx context.Context, a article.EnrichedArticle) error {
			return busutil.Publish(ctx, writer, busutil.TopicEnriched, a.ID, a)
		},
		Logger: logger,
	})

	logger.Info("enricher starting", "brokers", brokers, "pass_through", enricher.PassThrough())
	err := busutil.Consume(ctx, reader, func(ctx context.Context, n article.NormalizedArticle) error {
		start := time.Now()
		err := enricher.Handle(ctx, n)
		mHandleDur.Since(start)
		if err != nil {
			mErrors.Inc()
			logger.Error("enrich failed", "article_id", n.ID, "error", err)
			return err
		}
		mEnriched.Inc()
		return nil
	})
	if err != nil {
		logger.Error("enricher exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("enricher stopped")
}
