package index

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// TermMap is the owned, explicitly threaded term-string to TermID table
// shared by the tokenizer and the lexicon. It is safe for concurrent use so
// document tokenization can run on parallel workers during a build.
type TermMap struct {
	mu  sync.RWMutex
	ids map[string]TermID
}

// NewTermMap creates an empty TermMap.
func NewTermMap() *TermMap {
	return &TermMap{ids: make(map[string]TermID)}
}

// GetOrAssign returns the ID for term, assigning the next free ID if the
// term has not been seen before.
func (m *TermMap) GetOrAssign(term string) TermID {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.ids[term]; ok {
		return id
	}
	id := TermID(len(m.ids))
	m.ids[term] = id
	return id
}

// Lookup returns the ID for term without assigning a new one.
func (m *TermMap) Lookup(term string) (TermID, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.ids[term]
	return id, ok
}

// Len returns the number of distinct terms in the map.
func (m *TermMap) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ids)
}

// Save writes the table to path atomically (temp file plus rename).
func (m *TermMap) Save(path string) error {
	m.mu.RLock()
	data, err := json.Marshal(m.ids)
	m.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshaling term mapping: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing term mapping: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming term mapping: %w", err)
	}
	return nil
}

// LoadTermMap reads a table previously written by Save.
func LoadTermMap(path string) (*TermMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading term mapping %s: %w", path, err)
	}
	ids := make(map[string]TermID)
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("parsing term mapping %s: %w", path, err)
	}
	return &TermMap{ids: ids}, nil
}
