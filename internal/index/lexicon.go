package index

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	apperrors "github.com/corpusindex/corpusindex/pkg/errors"
)

// Lexicon is the term dictionary and global corpus statistics table. It is
// filled exactly once during index construction, persisted, and reopened
// read-only for every subsequent query session. All accessors are O(1) once
// the lexicon is loaded.
type Lexicon struct {
	path string

	terms      map[TermID]TermData
	docs       map[DocID]DocRecord
	docLengths map[DocID]uint64
	numDocs    uint64
	avgDocLen  float64

	docLengthsPath   string
	termMappingPath  string
	docIDMappingPath string

	logger *slog.Logger
}

// lexiconFile is the serialized form of the lexicon. The aux file paths are
// recorded so a later session can locate the statistics tables written
// alongside the lexicon.
type lexiconFile struct {
	Version          int                 `json:"version"`
	DocLengthsFile   string              `json:"doc_lengths_file"`
	TermMappingFile  string              `json:"term_mapping_file"`
	DocIDMappingFile string              `json:"docid_mapping_file"`
	Terms            map[TermID]TermData `json:"terms"`
}

type docLengthsFile struct {
	NumDocs      uint64           `json:"num_docs"`
	AvgDocLength float64          `json:"avg_doc_length"`
	Lengths      map[DocID]uint64 `json:"lengths"`
}

const lexiconVersion = 1

// NewLexicon opens the lexicon at path, loading the term table and corpus
// statistics when an index exists there. A missing file yields an empty
// lexicon ready for a build.
func NewLexicon(path string) (*Lexicon, error) {
	l := &Lexicon{
		path:       path,
		terms:      make(map[TermID]TermData),
		docs:       make(map[DocID]DocRecord),
		docLengths: make(map[DocID]uint64),
		logger:     slog.Default().With("component", "lexicon"),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return l, nil
		}
		return nil, apperrors.StorageIO("reading lexicon", err)
	}

	var lf lexiconFile
	if err := json.Unmarshal(data, &lf); err != nil {
		return nil, apperrors.StorageIO("parsing lexicon", err)
	}
	if lf.Version != lexiconVersion {
		return nil, apperrors.StorageIO("parsing lexicon",
			fmt.Errorf("unsupported lexicon version %d", lf.Version))
	}
	l.terms = lf.Terms
	l.docLengthsPath = lf.DocLengthsFile
	l.termMappingPath = lf.TermMappingFile
	l.docIDMappingPath = lf.DocIDMappingFile

	if err := l.loadDocLengths(lf.DocLengthsFile); err != nil {
		return nil, err
	}
	if err := l.loadDocIDMapping(lf.DocIDMappingFile); err != nil {
		return nil, err
	}
	l.logger.Info("lexicon loaded",
		"path", path,
		"terms", len(l.terms),
		"docs", l.numDocs,
	)
	return l, nil
}

// IsEmpty reports whether no index has been built at this location yet. It
// is the precondition gate for IndexDocs.
func (l *Lexicon) IsEmpty() bool {
	return len(l.terms) == 0
}

// ContainsTermID reports whether the term was indexed.
func (l *Lexicon) ContainsTermID(id TermID) bool {
	_, ok := l.terms[id]
	return ok
}

// TermInfo returns the aggregate data for a term, or ErrTermNotFound if the
// term was never indexed.
func (l *Lexicon) TermInfo(id TermID) (TermData, error) {
	td, ok := l.terms[id]
	if !ok {
		return TermData{}, fmt.Errorf("%w: term id %d", apperrors.ErrTermNotFound, id)
	}
	return td, nil
}

// NumTerms returns the number of distinct indexed terms.
func (l *Lexicon) NumTerms() int {
	return len(l.terms)
}

// NumDocs returns the total document count of the indexed corpus.
func (l *Lexicon) NumDocs() uint64 {
	return l.numDocs
}

// AvgDocLength returns the mean document length of the indexed corpus.
func (l *Lexicon) AvgDocLength() float64 {
	return l.avgDocLen
}

// DocLength returns the length of one document, in tokens.
func (l *Lexicon) DocLength(id DocID) float64 {
	return float64(l.docLengths[id])
}

// Doc returns the name and category of a document, or ErrDocNotFound.
func (l *Lexicon) Doc(id DocID) (DocRecord, error) {
	rec, ok := l.docs[id]
	if !ok {
		return DocRecord{}, fmt.Errorf("%w: doc id %d", apperrors.ErrDocNotFound, id)
	}
	return rec, nil
}

// TermMapping loads the term-string mapping recorded alongside this lexicon.
func (l *Lexicon) TermMapping() (*TermMap, error) {
	if l.termMappingPath == "" {
		return NewTermMap(), nil
	}
	tm, err := LoadTermMap(l.termMappingPath)
	if err != nil {
		return nil, apperrors.StorageIO("loading term mapping", err)
	}
	return tm, nil
}

// setTerm records a term's aggregate data. Only the chunk merge step is
// permitted to call it.
func (l *Lexicon) setTerm(id TermID, td TermData) {
	l.terms[id] = td
}

// Save serializes the term dictionary and records the locations of the
// statistics tables. The write is atomic: a temp file is renamed over the
// destination, so a concurrent reader sees either the old or the new lexicon
// in full. Save also (re)loads the statistics tables so the lexicon is
// immediately queryable in-process.
func (l *Lexicon) Save(docLengthsPath, termMappingPath, docIDMappingPath string) error {
	l.docLengthsPath = docLengthsPath
	l.termMappingPath = termMappingPath
	l.docIDMappingPath = docIDMappingPath

	if err := l.loadDocLengths(docLengthsPath); err != nil {
		return err
	}
	if err := l.loadDocIDMapping(docIDMappingPath); err != nil {
		return err
	}

	lf := lexiconFile{
		Version:          lexiconVersion,
		DocLengthsFile:   docLengthsPath,
		TermMappingFile:  termMappingPath,
		DocIDMappingFile: docIDMappingPath,
		Terms:            l.terms,
	}
	data, err := json.Marshal(lf)
	if err != nil {
		return apperrors.StorageIO("marshaling lexicon", err)
	}
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return apperrors.StorageIO("writing lexicon", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return apperrors.StorageIO("renaming lexicon", err)
	}
	l.logger.Info("lexicon saved",
		"path", l.path,
		"terms", len(l.terms),
		"docs", l.numDocs,
		"avg_doc_length", l.avgDocLen,
	)
	return nil
}

func (l *Lexicon) loadDocLengths(path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return apperrors.StorageIO("reading doc lengths", err)
	}
	var dl docLengthsFile
	if err := json.Unmarshal(data, &dl); err != nil {
		return apperrors.StorageIO("parsing doc lengths", err)
	}
	l.numDocs = dl.NumDocs
	l.avgDocLen = dl.AvgDocLength
	l.docLengths = dl.Lengths
	return nil
}

func (l *Lexicon) loadDocIDMapping(path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return apperrors.StorageIO("reading docid mapping", err)
	}
	docs := make(map[DocID]DocRecord)
	if err := json.Unmarshal(data, &docs); err != nil {
		return apperrors.StorageIO("parsing docid mapping", err)
	}
	l.docs = docs
	return nil
}
