// Command parser consumes raw articles, strips markup, drops too-short
// and duplicate articles, and publishes cleaned articles.
package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/headlinehq/newsflow/engine/article"
	"github.com/headlinehq/newsflow/engine/parse"
	"github.com/headlinehq/newsflow/pkg/busutil"
	"github.com/headlinehq/newsflow/pkg/metrics"
	"github.com/redis/go-redis/v9"
)

var met = metrics.New()

var (
	mPublished = met.Counter("newsflow_parse_published_total")
	mDropped   = func(reason string) *metrics.Counter {
		return met.Counter(metrics.WithLabels("newsflow_parse_dropped_total", "reason", reason))
	}
	mErrors    = met.Counter("newsflow_parse_errors_total")
	mHandleDur = met.Histogram("newsflow_parse_handle_duration_seconds", nil)
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
	redisAddr := net.JoinHostPort(envOr("REDIS_HOST", "localhost"), envOr("REDIS_PORT", "6379"))
	window := time.Duration(envInt("DEDUP_WINDOW_HOURS", 24)) * time.Hour

	met.ServeAsync(envInt("METRICS_PORT", 9102))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer rdb.Close()

	deduper := parse.NewDeduper(rdb, window, logger)
	if err := deduper.Ping(ctx); err != nil {
		// The deduper falls back to its local cache per lookup.
		logger.Warn("redis unreachable, dedup degrades to local cache", "addr", redisAddr, "error", err)
	} else {
		logger.Info("connected to redis", "addr", redisAddr, "window", window)
	}

	writer := busutil.NewWriter(brokers)
	defer writer.Close()
	reader := busutil.NewReader(brokers, "parser", busutil.TopicRaw, logger)
	defer reader.Close()

	proc := parse.New(parse.Deps{
		Deduper: deduper,
		Publish: func(ctx context.Context, a article.CleanedArticle) error {
			return busutil.Publish(ctx, writer, busutil.TopicCleaned, a.ID, a)
		},
		Logger: logger,
	})

	logger.Info("parser starting", "brokers", brokers)
	err := busutil.Consume(ctx, reader, func(ctx context.Context, raw article.RawArticle) error {
		start := time.Now()
		outcome, err := proc.Handle(ctx, raw)
		mHandleDur.Since(start)
		if err != nil {
			mErrors.Inc()
			logger.Error("parse failed", "article_id", raw.ID, "error", err)
			return err
		}
		switch outcome {
		case parse.OutcomePublished:
			mPublished.Inc()
		case parse.OutcomeTooShort:
			mDropped("short").Inc()
		case parse.OutcomeDuplicate:
			mDropped("duplicate").Inc()
		}
		return nil
	})
	if err != nil {
		logger.Error("parser exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("parser stopped")
}
