package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/corpusindex/corpusindex/internal/corpus"
	"github.com/corpusindex/corpusindex/internal/index"
	"github.com/corpusindex/corpusindex/internal/tokenize"
	"github.com/corpusindex/corpusindex/pkg/config"
	apperrors "github.com/corpusindex/corpusindex/pkg/errors"
	"github.com/corpusindex/corpusindex/pkg/logger"
	"github.com/corpusindex/corpusindex/pkg/metrics"
	"github.com/corpusindex/corpusindex/pkg/postgres"
	"github.com/corpusindex/corpusindex/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	source := flag.String("source", "postgres", "corpus source: postgres or dir")
	corpusDir := flag.String("corpus-dir", "", "corpus directory when -source=dir")
	corpusTable := flag.String("table", "documents", "corpus table when -source=postgres")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting index build",
		"index_dir", cfg.Index.Dir,
		"tokenizer", cfg.Index.Tokenizer.Kind,
		"source", *source,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		shutdown := metrics.StartServer(cfg.Metrics.Port)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdown(shutdownCtx)
		}()
	}

	if err := os.MkdirAll(cfg.Index.Dir, 0755); err != nil {
		slog.Error("creating index directory", "dir", cfg.Index.Dir, "error", err)
		os.Exit(1)
	}

	tokenizer, err := tokenize.FromConfig(cfg.Index.Tokenizer)
	if err != nil {
		slog.Error("creating tokenizer", "error", err)
		os.Exit(1)
	}

	documents, err := loadCorpus(ctx, cfg, *source, *corpusDir, *corpusTable)
	if err != nil {
		slog.Error("loading corpus", "error", err)
		os.Exit(1)
	}
	if len(documents) == 0 {
		slog.Error("corpus is empty, nothing to index")
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

	stats, err := idx.IndexDocs(ctx, documents, cfg.Index.ChunkSizeLimit)
	if err != nil {
		if errors.Is(err, apperrors.ErrAlreadyIndexed) {
			slog.Error("an index already exists at this location; refusing to overwrite",
				"lexicon", cfg.Index.LexiconPath(),
			)
		} else {
			slog.Error("index build failed", "error", err)
		}
		os.Exit(1)
	}

	if m != nil {
		m.DocsIndexedTotal.Add(float64(stats.Docs))
		m.ChunksWrittenTotal.Add(float64(stats.Chunks))
		m.TermsIndexed.Set(float64(stats.Terms))
		m.IndexBuildDuration.Observe(stats.Duration.Seconds())
	}

	slog.Info("index build finished",
		"docs", stats.Docs,
		"terms", stats.Terms,
		"chunks", stats.Chunks,
		"duration", stats.Duration,
	)
}

func loadCorpus(ctx context.Context, cfg *config.Config, source, dir, table string) ([]*index.Document, error) {
	switch source {
	case "dir":
		if dir == "" {
			return nil, fmt.Errorf("-corpus-dir is required when -source=dir")
		}
		return corpus.LoadFromDir(dir)
	case "postgres":
		var client *postgres.Client
		err := resilience.Retry(ctx, "postgres-connect", resilience.RetryConfig{}, func() error {
			var connErr error
			client, connErr = postgres.New(cfg.Postgres)
			return connErr
		})
		if err != nil {
			return nil, err
		}
		defer client.Close()
		return corpus.LoadFromPostgres(ctx, client, table)
	default:
		return nil, fmt.Errorf("unknown corpus source %q", source)
	}
}
