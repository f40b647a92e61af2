// Package corpus loads documents for indexing, either from the corpus table
// in Postgres or from a directory tree whose first-level directories name
// the category of the files beneath them.
package corpus

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/corpusindex/corpusindex/internal/index"
	"github.com/corpusindex/corpusindex/pkg/postgres"
)

// LoadFromPostgres reads the whole corpus table and assigns DocIDs in row
// order. The table needs (name, category, content) columns; content holds
// either raw text or bracketed parse trees, depending on the tokenizer in
// use.
func LoadFromPostgres(ctx context.Context, client *postgres.Client, table string) ([]*index.Document, error) {
	query := fmt.Sprintf("SELECT name, category, content FROM %s ORDER BY id", table)
	rows, err := client.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying corpus table %s: %w", table, err)
	}
	defer rows.Close()

	var documents []*index.Document
	nextID := index.DocID(0)
	for rows.Next() {
		var name, category, content string
		if err := rows.Scan(&name, &category, &content); err != nil {
			return nil, fmt.Errorf("scanning corpus row: %w", err)
		}
		documents = append(documents, index.NewDocument(nextID, name, category, content))
		nextID++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating corpus rows: %w", err)
	}
	slog.Default().With("component", "corpus").Info("corpus loaded from postgres",
		"table", table,
		"docs", len(documents),
	)
	return documents, nil
}

// LoadFromDir walks root, treating each first-level directory as a category
// and each regular file beneath it as one document. DocIDs follow the walk
// order, which filepath.WalkDir keeps lexical and therefore stable.
func LoadFromDir(root string) ([]*index.Document, error) {
	var documents []*index.Document
	nextID := index.DocID(0)

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		// Only the first path element names the category; files directly
		// under root are uncategorized.
		category := ""
		if filepath.Dir(rel) != "." {
			category = firstElement(rel)
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading document %s: %w", path, err)
		}
		documents = append(documents, index.NewDocument(nextID, d.Name(), category, string(content)))
		nextID++
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking corpus directory %s: %w", root, err)
	}
	slog.Default().With("component", "corpus").Info("corpus loaded from directory",
		"root", root,
		"docs", len(documents),
	)
	return documents, nil
}

// firstElement returns the first path element of a relative path.
func firstElement(rel string) string {
	for i := 0; i < len(rel); i++ {
		if os.IsPathSeparator(rel[i]) {
			return rel[:i]
		}
	}
	return rel
}
