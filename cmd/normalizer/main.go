// Command normalizer consumes cleaned articles, detects their language,
// optionally translates them, and publishes normalized articles.
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
	"github.com/headlinehq/newsflow/engine/normalize"
	"github.com/headlinehq/newsflow/pkg/busutil"
	"github.com/headlinehq/newsflow/pkg/metrics"
)

var met = metrics.New()

var (
	mNormalized = met.Counter("newsflow_normalize_published_total")
	mTranslated = met.Counter("newsflow_normalize_translated_total")
	mErrors     = met.Counter("newsflow_normalize_errors_total")
	mHandleDur  = met.Histogram("newsflow_normalize_handle_duration_seconds", nil)
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

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	brokers := strings.Split(envOr("KAFKA_BOOTSTRAP_SERVERS", "localhost:9092"), ",")
	enableTranslation := envBool("ENABLE_TRANSLATION", false)
	targetLanguage := envOr("TARGET_LANGUAGE", "en")
	apiKey := os.Getenv("GOOGLE_API_KEY")

	met.ServeAsync(envInt("METRICS_PORT", 9103))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var translator normalize.Translator
	if enableTranslation && apiKey != "" {
		translator = normalize.NewGoogleTranslate(apiKey)
		logger.Info("translation enabled", "target", targetLanguage)
	} else if enableTranslation {
		logger.Warn("ENABLE_TRANSLATION set without GOOGLE_API_KEY, translation disabled")
	}

	writer := busutil.NewWriter(brokers)
	defer writer.Close()
	reader := busutil.NewReader(brokers, "normalizer", busutil.TopicCleaned, logger)
	defer reader.Close()

	norm := normalize.New(
		normalize.Config{
			EnableTranslation: enableTranslation,
			TargetLanguage:    targetLanguage,
		},
		normalize.Deps{
			Translator: translator,
			Publish: func(ctx context.Context, a article.NormalizedArticle) error {
				if a.TranslatedTitle != nil || a.TranslatedText != nil {
					mTranslated.Inc()
				}
				return busutil.Publish(ctx, writer, busutil.TopicNormalized, a.ID, a)
			},
			Logger: logger,
		},
	)

	logger.Info("normalizer starting", "brokers", brokers)
	err := busutil.Consume(ctx, reader, func(ctx context.Context, c article.CleanedArticle) error {
		start := time.Now()
		err := norm.Handle(ctx, c)
		mHandleDur.Since(start)
		if err != nil {
			mErrors.Inc()
			logger.Error("normalize failed", "article_id", c.ID, "error", err)
			return err
		}
		mNormalized.Inc()
		return nil
	})
	if err != nil {
		logger.Error("normalizer exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("normalizer stopped")
}
