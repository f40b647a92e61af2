package index

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	apperrors "github.com/corpusindex/corpusindex/pkg/errors"
)

func TestCreateChunksRejectsNonPositiveLimit(t *testing.T) {
	store := NewPostingsStore(filepath.Join(t.TempDir(), "index.postings"), 1)
	tok := newStubTokenizer(nil, nil)
	_, err := store.CreateChunks(context.Background(), nil, 0, tok)
	if !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("error = %v, want ErrInvalidInput", err)
	}
}

func TestCreateChunksSplitsOnBudget(t *testing.T) {
	// Three documents of one term each. Each contributes one posting of
	// postingFootprint bytes, and the budget holds exactly two.
	tok := newStubTokenizer(
		map[string]map[string]uint64{
			"A": {"cat": 1},
			"B": {"dog": 1},
			"C": {"fish": 1},
		},
		map[string]uint64{"A": 1, "B": 1, "C": 1},
	)
	docs := []*Document{
		NewDocument(0, "A", "", ""),
		NewDocument(1, "B", "", ""),
		NewDocument(2, "C", "", ""),
	}
	store := NewPostingsStore(filepath.Join(t.TempDir(), "index.postings"), 1)

	numChunks, err := store.CreateChunks(context.Background(), docs, 2*postingFootprint, tok)
	if err != nil {
		t.Fatalf("CreateChunks failed: %v", err)
	}
	if numChunks != 2 {
		t.Fatalf("numChunks = %d, want 2", numChunks)
	}
	for i := 0; i < numChunks; i++ {
		if _, err := os.Stat(store.chunkPath(i)); err != nil {
			t.Errorf("chunk %d missing: %v", i, err)
		}
	}
}

func TestCreateChunksOversizedDocumentOwnChunk(t *testing.T) {
	// A single document over the budget must still be indexed, alone in
	// its own chunk.
	tok := newStubTokenizer(
		map[string]map[string]uint64{
			"A": {"cat": 1, "dog": 1, "fish": 1},
		},
		map[string]uint64{"A": 3},
	)
	store := NewPostingsStore(filepath.Join(t.TempDir(), "index.postings"), 1)

	numChunks, err := store.CreateChunks(context.Background(),
		[]*Document{NewDocument(0, "A", "", "")}, postingFootprint, tok)
	if err != nil {
		t.Fatalf("CreateChunks failed: %v", err)
	}
	if numChunks != 1 {
		t.Fatalf("numChunks = %d, want 1", numChunks)
	}
}

func TestCreatePostingsFileCountsDistinctDocs(t *testing.T) {
	// The shared term lands in two separate chunks. Its document frequency
	// must count distinct documents, not posting entries or raw occurrences.
	tok := newStubTokenizer(
		map[string]map[string]uint64{
			"A": {"cat": 5},
			"B": {"cat": 1},
		},
		map[string]uint64{"A": 5, "B": 1},
	)
	docs := []*Document{
		NewDocument(0, "A", "", ""),
		NewDocument(1, "B", "", ""),
	}
	dir := t.TempDir()
	store := NewPostingsStore(filepath.Join(dir, "index.postings"), 1)
	defer store.Close()

	numChunks, err := store.CreateChunks(context.Background(), docs, postingFootprint, tok)
	if err != nil {
		t.Fatalf("CreateChunks failed: %v", err)
	}
	if numChunks != 2 {
		t.Fatalf("numChunks = %d, want 2", numChunks)
	}

	lexicon, err := NewLexicon(filepath.Join(dir, "index.lexicon"))
	if err != nil {
		t.Fatalf("NewLexicon failed: %v", err)
	}
	if err := store.CreatePostingsFile(numChunks, lexicon); err != nil {
		t.Fatalf("CreatePostingsFile failed: %v", err)
	}

	catID, ok := tok.TermMap().Lookup("cat")
	if !ok {
		t.Fatal("term cat was never assigned")
	}
	td, err := lexicon.TermInfo(catID)
	if err != nil {
		t.Fatalf("TermInfo failed: %v", err)
	}
	if td.DocFreq != 2 {
		t.Errorf("DocFreq = %d, want 2", td.DocFreq)
	}

	postings, err := store.Docs(td)
	if err != nil {
		t.Fatalf("Docs failed: %v", err)
	}
	if len(postings) != 2 {
		t.Fatalf("got %d postings, want 2", len(postings))
	}
	byDoc := map[DocID]uint64{}
	for _, p := range postings {
		byDoc[p.DocID] = p.Freq
	}
	if byDoc[0] != 5 || byDoc[1] != 1 {
		t.Errorf("postings = %v, want doc 0 freq 5 and doc 1 freq 1", byDoc)
	}
}

func TestCreatePostingsFileRemovesChunks(t *testing.T) {
	tok := newStubTokenizer(
		map[string]map[string]uint64{
			"A": {"cat": 1},
			"B": {"dog": 1},
		},
		map[string]uint64{"A": 1, "B": 1},
	)
	docs := []*Document{
		NewDocument(0, "A", "", ""),
		NewDocument(1, "B", "", ""),
	}
	dir := t.TempDir()
	store := NewPostingsStore(filepath.Join(dir, "index.postings"), 1)
	defer store.Close()

	numChunks, err := store.CreateChunks(context.Background(), docs, postingFootprint, tok)
	if err != nil {
		t.Fatalf("CreateChunks failed: %v", err)
	}
	lexicon, err := NewLexicon(filepath.Join(dir, "index.lexicon"))
	if err != nil {
		t.Fatalf("NewLexicon failed: %v", err)
	}
	if err := store.CreatePostingsFile(numChunks, lexicon); err != nil {
		t.Fatalf("CreatePostingsFile failed: %v", err)
	}

	leftovers, err := filepath.Glob(filepath.Join(dir, "*.chunk-*"))
	if err != nil {
		t.Fatalf("glob failed: %v", err)
	}
	if len(leftovers) != 0 {
		t.Errorf("chunk files left after merge: %v", leftovers)
	}
}

func TestMergeResultIndependentOfChunking(t *testing.T) {
	freqs := map[string]map[string]uint64{
		"A": {"cat": 3, "dog": 1},
		"B": {"dog": 2, "fish": 1},
		"C": {"cat": 1, "fish": 4, "bird": 2},
		"D": {"bird": 1},
	}
	lengths := map[string]uint64{"A": 4, "B": 3, "C": 7, "D": 1}
	names := []string{"A", "B", "C", "D"}

	type termPostings map[string][]PostingData

	build := func(chunkLimit int64) (termPostings, int) {
		tok := newStubTokenizer(freqs, lengths)
		docs := make([]*Document, 0, len(names))
		for i, name := range names {
			docs = append(docs, NewDocument(DocID(i), name, "", ""))
		}
		dir := t.TempDir()
		store := NewPostingsStore(filepath.Join(dir, "index.postings"), 1)
		defer store.Close()

		numChunks, err := store.CreateChunks(context.Background(), docs, chunkLimit, tok)
		if err != nil {
			t.Fatalf("CreateChunks(limit=%d) failed: %v", chunkLimit, err)
		}
		lexicon, err := NewLexicon(filepath.Join(dir, "index.lexicon"))
		if err != nil {
			t.Fatalf("NewLexicon failed: %v", err)
		}
		if err := store.CreatePostingsFile(numChunks, lexicon); err != nil {
			t.Fatalf("CreatePostingsFile(limit=%d) failed: %v", chunkLimit, err)
		}

		out := make(termPostings)
		for term := range map[string]struct{}{"cat": {}, "dog": {}, "fish": {}, "bird": {}} {
			id, ok := tok.TermMap().Lookup(term)
			if !ok {
				t.Fatalf("term %q never assigned", term)
			}
			td, err := lexicon.TermInfo(id)
			if err != nil {
				t.Fatalf("TermInfo(%q) failed: %v", term, err)
			}
			postings, err := store.Docs(td)
			if err != nil {
				t.Fatalf("Docs(%q) failed: %v", term, err)
			}
			sort.Slice(postings, func(i, j int) bool { return postings[i].DocID < postings[j].DocID })
			out[term] = postings
		}
		return out, numChunks
	}

	fragmented, manyChunks := build(postingFootprint)
	single, oneChunk := build(1 << 20)

	if manyChunks <= oneChunk {
		t.Fatalf("expected the tight budget to produce more chunks: %d vs %d", manyChunks, oneChunk)
	}
	for term, want := range single {
		got := fragmented[term]
		if len(got) != len(want) {
			t.Fatalf("term %q: %d postings fragmented vs %d single-chunk", term, len(got), len(want))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("term %q posting %d: got %+v, want %+v", term, i, got[i], want[i])
			}
		}
	}
}

func TestOpenReadRejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.postings")
	if err := os.WriteFile(path, []byte("this is not a postings file....."), 0644); err != nil {
		t.Fatalf("writing file: %v", err)
	}
	store := NewPostingsStore(path, 1)
	defer store.Close()

	_, err := store.Docs(TermData{PostOffset: 16, PostLen: 2})
	if !errors.Is(err, apperrors.ErrStorageIO) {
		t.Fatalf("error = %v, want ErrStorageIO", err)
	}
}
