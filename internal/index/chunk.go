package index

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
)

// chunkEntry is one record of a partial postings file: a term and its
// postings from the documents of that chunk. Records within a file are
// sorted by ascending TermID.
type chunkEntry struct {
	Term     TermID        `json:"t"`
	Postings []PostingData `json:"p"`
}

// postingFootprint approximates the in-memory bytes of one (term, doc)
// posting inside the accumulator, map overhead included.
const postingFootprint = 64

// chunkAccumulator gathers postings for one chunk in memory until the byte
// budget is reached.
type chunkAccumulator struct {
	postings map[TermID][]PostingData
	bytes    int64
}

func newChunkAccumulator() *chunkAccumulator {
	return &chunkAccumulator{postings: make(map[TermID][]PostingData)}
}

// docFootprint estimates the accumulator growth a document would cause.
func docFootprint(doc *Document) int64 {
	return int64(len(doc.Frequencies)) * postingFootprint
}

// add folds one tokenized document into the accumulator.
func (a *chunkAccumulator) add(doc *Document) {
	for term, freq := range doc.Frequencies {
		a.postings[term] = append(a.postings[term], PostingData{DocID: doc.ID, Freq: freq})
		a.bytes += postingFootprint
	}
}

func (a *chunkAccumulator) size() int64 {
	return a.bytes
}

func (a *chunkAccumulator) empty() bool {
	return len(a.postings) == 0
}

func (a *chunkAccumulator) reset() {
	a.postings = make(map[TermID][]PostingData)
	a.bytes = 0
}

// flush writes the accumulated postings as one self-contained partial
// postings file, sorted by TermID, then resets the accumulator. The file is
// written to a temp path and renamed into place.
func (a *chunkAccumulator) flush(path string) error {
	terms := make([]TermID, 0, len(a.postings))
	for t := range a.postings {
		terms = append(terms, t)
	}
	sort.Slice(terms, func(i, j int) bool { return terms[i] < terms[j] })

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating chunk file: %w", err)
	}
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, t := range terms {
		if err := enc.Encode(chunkEntry{Term: t, Postings: a.postings[t]}); err != nil {
			f.Close()
			return fmt.Errorf("writing chunk entry for term %d: %w", t, err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flushing chunk file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("syncing chunk file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing chunk file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming chunk file: %w", err)
	}
	a.reset()
	return nil
}

// chunkReader streams the entries of one sorted partial postings file in
// order, for the k-way merge.
type chunkReader struct {
	path string
	file *os.File
	dec  *json.Decoder
}

func openChunkReader(path string) (*chunkReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening chunk file: %w", err)
	}
	return &chunkReader{
		path: path,
		file: f,
		dec:  json.NewDecoder(bufio.NewReader(f)),
	}, nil
}

// next returns the following entry, or ok=false at end of file.
func (r *chunkReader) next() (entry chunkEntry, ok bool, err error) {
	if err := r.dec.Decode(&entry); err != nil {
		if err == io.EOF {
			return chunkEntry{}, false, nil
		}
		return chunkEntry{}, false, fmt.Errorf("reading chunk %s: %w", r.path, err)
	}
	return entry, true, nil
}

func (r *chunkReader) Close() error {
	return r.file.Close()
}
