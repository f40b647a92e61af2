package index

import (
	"container/heap"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/corpusindex/corpusindex/pkg/errors"
)

// Postings file layout: a fixed 16-byte header (magic, version, term count,
// reserved) followed by the concatenated, merged posting lists. Each list is
// a JSON array of PostingData whose offset and length are recorded in the
// lexicon's TermData.
const (
	postingsMagic   uint32 = 0x43504958 // "CPIX"
	postingsVersion uint32 = 1
	postingsHeader  int    = 16
)

// tokenizeBatch is the window of documents tokenized concurrently ahead of
// sequential chunk accumulation.
const tokenizeBatch = 64

// PostingsStore builds and serves the on-disk term-to-postings mapping. The
// build is chunked: postings accumulate in memory up to a byte budget, are
// flushed as sorted partial files, and are k-way merged into the final
// postings file. After sealing, the store is read-only.
type PostingsStore struct {
	path    string
	workers int

	docRecords map[DocID]DocRecord

	readMu   sync.Mutex
	readFile *os.File

	logger *slog.Logger
}

// NewPostingsStore creates a store for the postings file at path. workers
// bounds concurrent tokenization during the build; zero means one worker
// per CPU.
func NewPostingsStore(path string, workers int) *PostingsStore {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &PostingsStore{
		path:       path,
		workers:    workers,
		docRecords: make(map[DocID]DocRecord),
		logger:     slog.Default().With("component", "postings"),
	}
}

func (p *PostingsStore) chunkPath(n int) string {
	return fmt.Sprintf("%s.chunk-%04d", p.path, n)
}

// CreateChunks tokenizes the documents and partitions their postings into
// sequential chunks whose in-memory footprint stays under
// chunkSizeLimitBytes, flushing each chunk as a sorted partial postings
// file. A single document larger than the budget forms its own chunk.
// Tokenization runs on a bounded worker pool; accumulation stays in document
// order. Returns the number of chunks written.
func (p *PostingsStore) CreateChunks(ctx context.Context, documents []*Document, chunkSizeLimitBytes int64, tokenizer Tokenizer) (int, error) {
	if chunkSizeLimitBytes <= 0 {
		return 0, fmt.Errorf("%w: chunk size limit must be positive", apperrors.ErrInvalidInput)
	}

	start := time.Now()
	acc := newChunkAccumulator()
	numChunks := 0

	flush := func() error {
		path := p.chunkPath(numChunks)
		if err := acc.flush(path); err != nil {
			return apperrors.StorageIO("flushing chunk", err)
		}
		numChunks++
		p.logger.Debug("chunk flushed", "chunk", path)
		return nil
	}

	for batchStart := 0; batchStart < len(documents); batchStart += tokenizeBatch {
		end := batchStart + tokenizeBatch
		if end > len(documents) {
			end = len(documents)
		}
		batch := documents[batchStart:end]

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(p.workers)
		for _, doc := range batch {
			doc := doc
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				if err := tokenizer.Tokenize(doc, nil); err != nil {
					return fmt.Errorf("tokenizing document %q: %w", doc.Name, err)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return 0, err
		}

		for _, doc := range batch {
			p.docRecords[doc.ID] = DocRecord{Name: doc.Name, Category: doc.Category}

			if !acc.empty() && acc.size()+docFootprint(doc) > chunkSizeLimitBytes {
				if err := flush(); err != nil {
					return 0, err
				}
			}
			acc.add(doc)
			if acc.size() >= chunkSizeLimitBytes {
				if err := flush(); err != nil {
					return 0, err
				}
			}
		}
	}

	if !acc.empty() {
		if err := flush(); err != nil {
			return 0, err
		}
	}

	p.logger.Info("chunks created",
		"docs", len(documents),
		"chunks", numChunks,
		"chunk_size_limit", chunkSizeLimitBytes,
		"duration", time.Since(start),
	)
	return numChunks, nil
}

// mergeItem is one chunk's current entry inside the merge heap.
type mergeItem struct {
	entry  chunkEntry
	source int
	reader *chunkReader
}

type mergeHeap []mergeItem

func (h mergeHeap) Len() int { return len(h) }

func (h mergeHeap) Less(i, j int) bool {
	if h[i].entry.Term != h[j].entry.Term {
		return h[i].entry.Term < h[j].entry.Term
	}
	return h[i].source < h[j].source
}

func (h mergeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *mergeHeap) Push(x interface{}) {
	*h = append(*h, x.(mergeItem))
}

func (h *mergeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// CreatePostingsFile performs the external k-way merge over numChunks sorted
// partial files, writes the unified postings file, and fills in each term's
// document frequency and posting-list offset in the lexicon. This is the
// only step permitted to mutate the lexicon's term table. Chunk files are
// removed once the merge succeeds.
func (p *PostingsStore) CreatePostingsFile(numChunks int, lexicon *Lexicon) error {
	start := time.Now()

	readers := make([]*chunkReader, 0, numChunks)
	defer func() {
		for _, r := range readers {
			r.Close()
		}
	}()

	h := &mergeHeap{}
	heap.Init(h)
	for i := 0; i < numChunks; i++ {
		r, err := openChunkReader(p.chunkPath(i))
		if err != nil {
			return apperrors.StorageIO("opening chunk", err)
		}
		readers = append(readers, r)
		entry, ok, err := r.next()
		if err != nil {
			return apperrors.StorageIO("reading chunk", err)
		}
		if ok {
			heap.Push(h, mergeItem{entry: entry, source: i, reader: r})
		}
	}

	tmp := p.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return apperrors.StorageIO("creating postings file", err)
	}
	defer f.Close()

	header := make([]byte, postingsHeader)
	binary.LittleEndian.PutUint32(header[0:4], postingsMagic)
	binary.LittleEndian.PutUint32(header[4:8], postingsVersion)
	if _, err := f.Write(header); err != nil {
		return apperrors.StorageIO("writing postings header", err)
	}

	offset := int64(postingsHeader)
	termCount := uint32(0)

	for h.Len() > 0 {
		item := heap.Pop(h).(mergeItem)
		term := item.entry.Term
		postings := item.entry.Postings
		if next, ok, err := item.reader.next(); err != nil {
			return apperrors.StorageIO("reading chunk", err)
		} else if ok {
			heap.Push(h, mergeItem{entry: next, source: item.source, reader: item.reader})
		}

		// Drain every chunk's contribution for this term, in chunk order.
		for h.Len() > 0 && (*h)[0].entry.Term == term {
			more := heap.Pop(h).(mergeItem)
			postings = append(postings, more.entry.Postings...)
			if next, ok, err := more.reader.next(); err != nil {
				return apperrors.StorageIO("reading chunk", err)
			} else if ok {
				heap.Push(h, mergeItem{entry: next, source: more.source, reader: more.reader})
			}
		}

		data, err := json.Marshal(postings)
		if err != nil {
			return apperrors.StorageIO("marshaling postings", err)
		}
		if _, err := f.Write(data); err != nil {
			return apperrors.StorageIO("writing postings", err)
		}

		distinct := make(map[DocID]struct{}, len(postings))
		for _, posting := range postings {
			distinct[posting.DocID] = struct{}{}
		}
		lexicon.setTerm(term, TermData{
			DocFreq:    uint64(len(distinct)),
			PostOffset: offset,
			PostLen:    len(data),
		})
		offset += int64(len(data))
		termCount++
	}

	binary.LittleEndian.PutUint32(header[8:12], termCount)
	if _, err := f.WriteAt(header, 0); err != nil {
		return apperrors.StorageIO("updating postings header", err)
	}
	if err := f.Sync(); err != nil {
		return apperrors.StorageIO("syncing postings file", err)
	}
	if err := f.Close(); err != nil {
		return apperrors.StorageIO("closing postings file", err)
	}
	if err := os.Rename(tmp, p.path); err != nil {
		return apperrors.StorageIO("renaming postings file", err)
	}

	for i := 0; i < numChunks; i++ {
		if err := os.Remove(p.chunkPath(i)); err != nil {
			p.logger.Warn("removing merged chunk", "chunk", p.chunkPath(i), "error", err)
		}
	}

	p.logger.Info("postings file created",
		"path", p.path,
		"terms", termCount,
		"chunks_merged", numChunks,
		"duration", time.Since(start),
	)
	return nil
}

// SaveDocLengths persists the per-document length table with the derived
// average length and document count.
func (p *PostingsStore) SaveDocLengths(documents []*Document, path string) error {
	lengths := make(map[DocID]uint64, len(documents))
	var total uint64
	for _, doc := range documents {
		lengths[doc.ID] = doc.Length
		total += doc.Length
	}
	avg := 0.0
	if len(documents) > 0 {
		avg = float64(total) / float64(len(documents))
	}
	dl := docLengthsFile{
		NumDocs:      uint64(len(documents)),
		AvgDocLength: avg,
		Lengths:      lengths,
	}
	data, err := json.Marshal(dl)
	if err != nil {
		return apperrors.StorageIO("marshaling doc lengths", err)
	}
	return p.writeAtomic(path, data, "doc lengths")
}

// SaveDocIDMapping persists the DocID to (name, category) table gathered
// during chunk creation.
func (p *PostingsStore) SaveDocIDMapping(path string) error {
	data, err := json.Marshal(p.docRecords)
	if err != nil {
		return apperrors.StorageIO("marshaling docid mapping", err)
	}
	return p.writeAtomic(path, data, "docid mapping")
}

func (p *PostingsStore) writeAtomic(path string, data []byte, what string) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return apperrors.StorageIO("writing "+what, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return apperrors.StorageIO("renaming "+what, err)
	}
	return nil
}

// Docs reads the posting list located by td from the sealed postings file.
func (p *PostingsStore) Docs(td TermData) ([]PostingData, error) {
	f, err := p.openRead()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, td.PostLen)
	if _, err := f.ReadAt(buf, td.PostOffset); err != nil {
		return nil, apperrors.StorageIO("reading postings", err)
	}
	var postings []PostingData
	if err := json.Unmarshal(buf, &postings); err != nil {
		return nil, apperrors.StorageIO("parsing postings", err)
	}
	return postings, nil
}

// openRead opens the sealed postings file once and validates its header.
func (p *PostingsStore) openRead() (*os.File, error) {
	p.readMu.Lock()
	defer p.readMu.Unlock()
	if p.readFile != nil {
		return p.readFile, nil
	}
	f, err := os.Open(p.path)
	if err != nil {
		return nil, apperrors.StorageIO("opening postings file", err)
	}
	header := make([]byte, postingsHeader)
	if _, err := f.ReadAt(header, 0); err != nil {
		f.Close()
		return nil, apperrors.StorageIO("reading postings header", err)
	}
	if magic := binary.LittleEndian.Uint32(header[0:4]); magic != postingsMagic {
		f.Close()
		return nil, apperrors.StorageIO("validating postings file",
			fmt.Errorf("bad magic bytes %x", magic))
	}
	p.readFile = f
	return f, nil
}

// Close releases the read handle, if open.
func (p *PostingsStore) Close() error {
	p.readMu.Lock()
	defer p.readMu.Unlock()
	if p.readFile == nil {
		return nil
	}
	err := p.readFile.Close()
	p.readFile = nil
	return err
}
