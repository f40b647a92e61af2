package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/corpusindex/corpusindex/internal/index"
	"github.com/corpusindex/corpusindex/internal/search"
	"github.com/corpusindex/corpusindex/internal/search/analytics"
	"github.com/corpusindex/corpusindex/internal/search/cache"
	"github.com/corpusindex/corpusindex/internal/search/handler"
	"github.com/corpusindex/corpusindex/internal/tokenize"
	"github.com/corpusindex/corpusindex/pkg/config"
	"github.com/corpusindex/corpusindex/pkg/health"
	"github.com/corpusindex/corpusindex/pkg/kafka"
	"github.com/corpusindex/corpusindex/pkg/logger"
	"github.com/corpusindex/corpusindex/pkg/metrics"
	"github.com/corpusindex/corpusindex/pkg/middleware"
	pkgredis "github.com/corpusindex/corpusindex/pkg/redis"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service", "port", cfg.Server.Port)

	tokenizer, err := tokenize.FromConfig(cfg.Index.Tokenizer)
	if err != nil {
		slog.Error("creating tokenizer", "error", err)
		os.Exit(1)
	}

	idx, err := index.NewInvertedIndex(
		cfg.Index.LexiconPath(),
		cfg.Index.PostingsPath(),
		cfg.Index.Workers,
		tokenizer,
	)
	if err != nil {
		slog.Error("opening index", "error", err)
		os.Exit(1)
	}
	defer idx.Close()
	if idx.Lexicon().IsEmpty() {
		slog.Error("no index found; run the indexer first", "lexicon", cfg.Index.LexiconPath())
		os.Exit(1)
	}
	slog.Info("index opened",
		"terms", idx.Lexicon().NumTerms(),
		"docs", idx.Lexicon().NumDocs(),
		"avg_doc_length", idx.Lexicon().AvgDocLength(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdownMetrics(shutdownCtx)
		}()
	}

	var queryCache *cache.QueryCache
	redisClient, err := pkgredis.NewClient(cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, search caching disabled", "error", err)
		redisClient = nil
	} else {
		defer redisClient.Close()
		queryCache = cache.New(redisClient, cfg.Redis)
		slog.Info("search cache enabled",
			"addr", cfg.Redis.Addr,
			"ttl", cfg.Redis.CacheTTL,
		)
	}

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.QueryEvents)
	defer producer.Close()
	collector := analytics.NewCollector(producer, 100, 5*time.Second)
	collector.Start(ctx)
	defer collector.Close()

	checker := health.NewChecker()
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		if idx.Lexicon().IsEmpty() {
			return health.ComponentHealth{Status: health.StatusDown, Message: "index empty"}
		}
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d terms, %d docs", idx.Lexicon().NumTerms(), idx.Lexicon().NumDocs()),
		}
	})
	checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
		if redisClient == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		}
		if err := redisClient.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	svc := search.NewService(idx)
	h := handler.New(svc, queryCache, collector, m, cfg.Search.DefaultLimit, cfg.Search.MaxResults)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	if m != nil {
		chain = middleware.Metrics(m)(chain)
	}
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		slog.Info("search service listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down search service")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
	slog.Info("search service stopped")
}
