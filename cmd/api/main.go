// Command api serves the read path over the search store: full-text
// search, article lookup, latest articles, and aggregate statistics.
// When Elasticsearch is unreachable at startup it serves a fixed mock
// corpus instead of failing.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/headlinehq/newsflow/engine/search"
	"github.com/headlinehq/newsflow/pkg/busutil"
	"github.com/headlinehq/newsflow/pkg/metrics"
	"github.com/headlinehq/newsflow/pkg/mid"
)

const serviceName = "news-aggregator-api"

var met = metrics.New()

var (
	mSearches = met.Counter("newsflow_api_searches_total")
	mLookups  = met.Counter("newsflow_api_lookups_total")
)

// Config holds all environment-based configuration.
type Config struct {
	Port         string
	Brokers      []string
	ESHost       string
	IndexPattern string
	CORSOrigin   string
}

func loadConfig() Config {
	return Config{
		Port:         envOr("PORT", "8080"),
		Brokers:      strings.Split(envOr("KAFKA_BOOTSTRAP_SERVERS", "localhost:9092"), ","),
		ESHost:       envOr("ELASTICSEARCH_HOST", "http://localhost:9200"),
		IndexPattern: envOr("ELASTICSEARCH_INDEX_PATTERN", "news"),
		CORSOrigin:   envOr("CORS_ORIGIN", "*"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The search store is the only optional dependency: unreachable
	// Elasticsearch flips the API to the mock corpus instead of exiting.
	var repo search.Repository
	var store *search.Store
	if s, err := search.NewStore(cfg.ESHost, cfg.IndexPattern, logger); err != nil {
		logger.Warn("elasticsearch client failed, using mock corpus", "error", err)
		repo = search.NewMock()
	} else if err := s.Ping(ctx); err != nil {
		logger.Warn("elasticsearch unreachable, using mock corpus", "host", cfg.ESHost, "error", err)
		repo = search.NewMock()
	} else {
		store = s
		repo = s
		logger.Info("connected to elasticsearch", "host", cfg.ESHost, "pattern", cfg.IndexPattern)
	}

	api := &apiServer{
		repo:    repo,
		store:   store,
		brokers: cfg.Brokers,
		log:     logger,
	}

	handler := mid.Chain(api.routes(),
		mid.Recover(logger),
		mid.Logger(logger),
		mid.CORS(cfg.CORSOrigin),
		mid.OTel(serviceName),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port, "mode", repo.Mode())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

// apiServer holds handler dependencies.
type apiServer struct {
	repo    search.Repository
	store   *search.Store // nil in mock mode
	brokers []string
	log     *slog.Logger
}

func (s *apiServer) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /search", s.handleSearch)
	mux.HandleFunc("GET /articles/latest", s.handleLatest)
	mux.HandleFunc("GET /articles/{id}", s.handleGetArticle)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.Handle("GET /metrics", met.Handler())
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// csv splits a comma-separated query parameter, dropping empty parts.
func csv(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func intParam(r *http.Request, key string, fallback int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func timeParam(r *http.Request, key string) (*time.Time, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	details := map[string]any{"mode": s.repo.Mode()}

	if s.store != nil {
		details["elasticsearch"] = s.store.ClusterHealth(r.Context())
	} else {
		details["elasticsearch"] = map[string]any{
			"status":  "unavailable",
			"message": "Running in mock mode",
		}
	}

	if err := busutil.Ping(r.Context(), s.brokers); err != nil {
		details["kafka"] = map[string]any{"status": "error", "error": err.Error()}
	} else {
		details["kafka"] = map[string]any{"status": "connected"}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"service":   serviceName,
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"details":   details,
	})
}

func (s *apiServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	mSearches.Inc()
	q := r.URL.Query()

	req := search.SearchRequest{
		Query:     q.Get("query"),
		Topics:    csv(q.Get("topics")),
		Sources:   csv(q.Get("sources")),
		Languages: csv(q.Get("languages")),
		Sentiment: q.Get("sentiment"),
		Page:      intParam(r, "page", 1),
		Size:      intParam(r, "size", search.DefaultPageSize),
	}

	var err error
	if req.DateFrom, err = timeParam(r, "date_from"); err != nil {
		writeError(w, http.StatusBadRequest, "date_from must be RFC 3339")
		return
	}
	if req.DateTo, err = timeParam(r, "date_to"); err != nil {
		writeError(w, http.StatusBadRequest, "date_to must be RFC 3339")
		return
	}

	res, err := s.repo.Search(r.Context(), req)
	if err != nil {
		s.log.Error("search failed", "error", err)
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *apiServer) handleGetArticle(w http.ResponseWriter, r *http.Request) {
	mLookups.Inc()
	a, err := s.repo.GetByID(r.Context(), r.PathValue("id"))
	if errors.Is(err, search.ErrNotFound) {
		writeError(w, http.StatusNotFound, "article not found")
		return
	}
	if err != nil {
		s.log.Error("article lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *apiServer) handleLatest(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	articles, err := s.repo.Latest(r.Context(), intParam(r, "limit", search.DefaultPageSize), q.Get("source"), q.Get("language"))
	if err != nil {
		s.log.Error("latest failed", "error", err)
		writeError(w, http.StatusInternalServerError, "latest failed")
		return
	}
	writeJSON(w, http.StatusOK, articles)
}

func (s *apiServer) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.repo.Stats(r.Context())
	if err != nil {
		s.log.Error("stats failed", "error", err)
		writeError(w, http.StatusInternalServerError, "stats failed")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
