// Package index implements the on-disk inverted index: the lexicon (term
// dictionary plus corpus statistics), the chunked postings store, and the
// BM25-scored query path over both.
package index

// TermID is a process-stable integer identifier for a unique term string.
// The term-string to TermID mapping is owned by the TermMap and persisted
// alongside the index so IDs stay valid across build and query sessions.
type TermID uint32

// DocID identifies a document within one index. IDs are assigned at
// ingestion and are only meaningful against that index's mapping tables.
type DocID uint32

// Document is the transient unit of ingestion and querying. The index reads
// its frequency map during construction and persists only the compact
// (ID, name, category, length) record.
type Document struct {
	ID          DocID
	Name        string
	Category    string
	Content     string
	Frequencies map[TermID]uint64
	Length      uint64
}

// NewDocument creates a Document with an empty frequency map.
func NewDocument(id DocID, name, category, content string) *Document {
	return &Document{
		ID:          id,
		Name:        name,
		Category:    category,
		Content:     content,
		Frequencies: make(map[TermID]uint64),
	}
}

// Increment adds n occurrences of the term to the document and extends its
// length accordingly.
func (d *Document) Increment(id TermID, n uint64) {
	if d.Frequencies == nil {
		d.Frequencies = make(map[TermID]uint64)
	}
	d.Frequencies[id] += n
	d.Length += n
}

// PostingData is the atomic unit of a posting list: one document and the
// term's occurrence count within it.
type PostingData struct {
	DocID DocID  `json:"d"`
	Freq  uint64 `json:"f"`
}

// TermData is the per-term aggregate stored in the lexicon: the number of
// distinct documents containing the term and the location of its posting
// list in the postings file. Immutable once the index is sealed.
type TermData struct {
	DocFreq    uint64 `json:"df"`
	PostOffset int64  `json:"o"`
	PostLen    int    `json:"l"`
}

// DocRecord is the compact per-document metadata kept for result rendering.
type DocRecord struct {
	Name     string `json:"n"`
	Category string `json:"c"`
}

// Tokenizer turns a raw document into a TermID-keyed frequency map. The
// index is indifferent to the feature-extraction strategy behind it.
//
// When docFreq is non-nil, Tokenize adds one count per distinct term in the
// document, so that across a whole pass docFreq accumulates per-term
// document frequency.
type Tokenizer interface {
	Tokenize(doc *Document, docFreq map[TermID]uint64) error

	// SetTermMap installs a term-string to TermID table, typically one
	// restored from a built index, so IDs stay consistent for queries.
	SetTermMap(m *TermMap)
	TermMap() *TermMap
}
