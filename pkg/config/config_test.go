package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Index.ChunkSizeLimit != 32*1024*1024 {
		t.Errorf("Index.ChunkSizeLimit = %d, want 32MiB", cfg.Index.ChunkSizeLimit)
	}
	if cfg.Index.Tokenizer.Kind != "word" {
		t.Errorf("Tokenizer.Kind = %q, want word", cfg.Index.Tokenizer.Kind)
	}
	if cfg.Search.MaxResults != 100 || cfg.Search.DefaultLimit != 10 {
		t.Errorf("Search = %+v", cfg.Search)
	}
	if cfg.Kafka.Topics.QueryEvents != "query-events" {
		t.Errorf("QueryEvents topic = %q", cfg.Kafka.Topics.QueryEvents)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9999
  readTimeout: 5s
index:
  dir: /var/lib/corpusindex
  chunkSizeLimit: 1048576
  tokenizer:
    kind: multi
    multiKinds: [word, ngram]
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("Server.Port = %d, want 9999", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 5*time.Second {
		t.Errorf("ReadTimeout = %v, want 5s", cfg.Server.ReadTimeout)
	}
	if cfg.Index.Dir != "/var/lib/corpusindex" {
		t.Errorf("Index.Dir = %q", cfg.Index.Dir)
	}
	if cfg.Index.Tokenizer.Kind != "multi" || len(cfg.Index.Tokenizer.MultiKinds) != 2 {
		t.Errorf("Tokenizer = %+v", cfg.Index.Tokenizer)
	}
	// Fields absent from the file keep their defaults.
	if cfg.Search.MaxResults != 100 {
		t.Errorf("Search.MaxResults = %d, want the 100 default", cfg.Search.MaxResults)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("Load of a missing file succeeded, want error")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CI_SERVER_PORT", "7070")
	t.Setenv("CI_INDEX_DIR", "/tmp/idx")
	t.Setenv("CI_TOKENIZER_KIND", "ngram")
	t.Setenv("CI_KAFKA_BROKERS", "kafka1:9092,kafka2:9092")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("Server.Port = %d, want 7070", cfg.Server.Port)
	}
	if cfg.Index.Dir != "/tmp/idx" {
		t.Errorf("Index.Dir = %q, want /tmp/idx", cfg.Index.Dir)
	}
	if cfg.Index.Tokenizer.Kind != "ngram" {
		t.Errorf("Tokenizer.Kind = %q, want ngram", cfg.Index.Tokenizer.Kind)
	}
	if len(cfg.Kafka.Brokers) != 2 {
		t.Errorf("Kafka.Brokers = %v, want two brokers", cfg.Kafka.Brokers)
	}
}

func TestIndexPaths(t *testing.T) {
	c := IndexConfig{Dir: "/data/index", LexiconFile: "index.lexicon", PostingsFile: "index.postings"}
	if got := c.LexiconPath(); got != "/data/index/index.lexicon" {
		t.Errorf("LexiconPath = %q", got)
	}
	if got := c.PostingsPath(); got != "/data/index/index.postings" {
		t.Errorf("PostingsPath = %q", got)
	}
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{
		Host: "db", Port: 5432, User: "u", Password: "p",
		Database: "corpus", SSLMode: "disable",
	}
	want := "host=db port=5432 user=u password=p dbname=corpus sslmode=disable"
	if got := p.DSN(); got != want {
		t.Errorf("DSN = %q, want %q", got, want)
	}
}
