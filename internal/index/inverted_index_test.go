package index

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	apperrors "github.com/corpusindex/corpusindex/pkg/errors"
)

// stubTokenizer resolves preset per-document term counts so tests control
// the exact corpus statistics that feed the scoring formula.
type stubTokenizer struct {
	terms   *TermMap
	freqs   map[string]map[string]uint64
	lengths map[string]uint64
}

func newStubTokenizer(freqs map[string]map[string]uint64, lengths map[string]uint64) *stubTokenizer {
	return &stubTokenizer{terms: NewTermMap(), freqs: freqs, lengths: lengths}
}

func (s *stubTokenizer) Tokenize(doc *Document, docFreq map[TermID]uint64) error {
	for term, n := range s.freqs[doc.Name] {
		id := s.terms.GetOrAssign(term)
		doc.Frequencies[id] += n
		if docFreq != nil {
			docFreq[id]++
		}
	}
	if l, ok := s.lengths[doc.Name]; ok {
		doc.Length = l
	}
	return nil
}

func (s *stubTokenizer) SetTermMap(m *TermMap) { s.terms = m }
func (s *stubTokenizer) TermMap() *TermMap     { return s.terms }

func buildIndex(t *testing.T, dir string, tok Tokenizer, docs []*Document, chunkLimit int64) *InvertedIndex {
	t.Helper()
	ii, err := NewInvertedIndex(
		filepath.Join(dir, "index.lexicon"),
		filepath.Join(dir, "index.postings"),
		2, tok,
	)
	if err != nil {
		t.Fatalf("NewInvertedIndex failed: %v", err)
	}
	if _, err := ii.IndexDocs(context.Background(), docs, chunkLimit); err != nil {
		t.Fatalf("IndexDocs failed: %v", err)
	}
	t.Cleanup(func() { ii.Close() })
	return ii
}

func queryDoc() *Document {
	return NewDocument(0, "query", "", "")
}

func TestSearchTwoDocumentCorpus(t *testing.T) {
	tok := newStubTokenizer(
		map[string]map[string]uint64{
			"A":     {"cat": 3},
			"B":     {"dog": 2},
			"query": {"cat": 1},
		},
		map[string]uint64{"A": 10, "B": 8, "query": 1},
	)
	docs := []*Document{
		NewDocument(0, "A", "news", ""),
		NewDocument(1, "B", "sports", ""),
	}
	ii := buildIndex(t, t.TempDir(), tok, docs, 1<<20)

	results, err := ii.Search(queryDoc())
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1 (only A contains a query term)", len(results))
	}
	r := results[0]
	if r.DocID != 0 {
		t.Errorf("matched DocID = %d, want 0", r.DocID)
	}
	if r.Category != "news" {
		t.Errorf("Category = %q, want %q", r.Category, "news")
	}
	if math.IsNaN(r.Score) || math.IsInf(r.Score, 0) {
		t.Errorf("score is not finite: %v", r.Score)
	}

	// N=2, df=1: the IDF numerator and denominator are both 1.5, so the
	// term contributes weight zero and the matched document scores 0.
	want := bm25Score(2, 1, 3, 10, 9, 1)
	if math.Abs(r.Score-want) > 1e-12 {
		t.Errorf("score = %v, want %v", r.Score, want)
	}
}

// bm25Score recomputes one term's contribution from first principles.
func bm25Score(numDocs, docFreq, freq, docLen, avgDocLen, queryFreq float64) float64 {
	idf := math.Log((numDocs - docFreq + 0.5) / (docFreq + 0.5))
	tf := ((bm25K1 + 1.0) * freq) / (bm25K1*((1.0-bm25B)+bm25B*docLen/avgDocLen) + freq)
	qw := ((bm25K3 + 1.0) * queryFreq) / (bm25K3 + queryFreq)
	return tf * idf * qw
}

func TestSearchOrdersAscendingByScore(t *testing.T) {
	// Fillers push N up so the shared term's document frequency stays well
	// below N/2 and its IDF stays positive.
	tok := newStubTokenizer(
		map[string]map[string]uint64{
			"A":     {"cat": 3},
			"B":     {"cat": 1},
			"C":     {"dog": 2},
			"D":     {"fish": 1},
			"E":     {"bird": 1},
			"F":     {"mouse": 1},
			"query": {"cat": 1},
		},
		map[string]uint64{"A": 10, "B": 10, "C": 8, "D": 5, "E": 5, "F": 5, "query": 1},
	)
	docs := make([]*Document, 0, 6)
	for i, name := range []string{"A", "B", "C", "D", "E", "F"} {
		docs = append(docs, NewDocument(DocID(i), name, "", ""))
	}
	ii := buildIndex(t, t.TempDir(), tok, docs, 1<<20)

	results, err := ii.Search(queryDoc())
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	// A has the higher term frequency at equal length, so it scores higher
	// and sorts last.
	if results[0].DocID != 1 || results[1].DocID != 0 {
		t.Fatalf("result order = [%d %d], want [1 0]", results[0].DocID, results[1].DocID)
	}
	if !(results[0].Score < results[1].Score) {
		t.Errorf("scores not ascending: %v then %v", results[0].Score, results[1].Score)
	}
	if results[1].Score <= 0 {
		t.Errorf("top score = %v, want > 0", results[1].Score)
	}
}

func TestSearchTieBreaksOnDocID(t *testing.T) {
	// Three documents with identical statistics score identically, so the
	// ordering falls through to ascending DocID.
	tok := newStubTokenizer(
		map[string]map[string]uint64{
			"A":     {"cat": 1},
			"B":     {"cat": 1},
			"C":     {"cat": 1},
			"D":     {"dog": 1},
			"query": {"cat": 1},
		},
		map[string]uint64{"A": 10, "B": 10, "C": 10, "D": 10, "query": 1},
	)
	docs := []*Document{
		NewDocument(0, "A", "", ""),
		NewDocument(1, "B", "", ""),
		NewDocument(2, "C", "", ""),
		NewDocument(3, "D", "", ""),
	}
	ii := buildIndex(t, t.TempDir(), tok, docs, 1<<20)

	results, err := ii.Search(queryDoc())
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	for i, want := range []DocID{0, 1, 2} {
		if results[i].DocID != want {
			t.Errorf("results[%d].DocID = %d, want %d", i, results[i].DocID, want)
		}
	}
	if results[0].Score != results[1].Score || results[1].Score != results[2].Score {
		t.Errorf("expected identical scores, got %v %v %v",
			results[0].Score, results[1].Score, results[2].Score)
	}
}

func TestSearchScoreMonotonicInTermFrequency(t *testing.T) {
	corpus := func(catFreq uint64) (*stubTokenizer, []*Document) {
		tok := newStubTokenizer(
			map[string]map[string]uint64{
				"A":     {"cat": catFreq},
				"B":     {"fish": 1},
				"C":     {"dog": 2},
				"query": {"cat": 1},
			},
			map[string]uint64{"A": 10, "B": 9, "C": 8, "query": 1},
		)
		docs := []*Document{
			NewDocument(0, "A", "", ""),
			NewDocument(1, "B", "", ""),
			NewDocument(2, "C", "", ""),
		}
		return tok, docs
	}

	search := func(catFreq uint64) float64 {
		tok, docs := corpus(catFreq)
		ii := buildIndex(t, t.TempDir(), tok, docs, 1<<20)
		results, err := ii.Search(queryDoc())
		if err != nil {
			t.Fatalf("Search failed: %v", err)
		}
		if len(results) != 1 {
			t.Fatalf("got %d results, want 1", len(results))
		}
		return results[0].Score
	}

	low, high := search(3), search(4)
	if low <= 0 || high <= 0 {
		t.Fatalf("expected positive scores, got %v and %v", low, high)
	}
	if high <= low {
		t.Errorf("score did not grow with term frequency: %v then %v", low, high)
	}
}

func TestSearchUnknownTermsMatchNothing(t *testing.T) {
	tok := newStubTokenizer(
		map[string]map[string]uint64{
			"A":     {"cat": 3},
			"query": {"zebra": 1},
		},
		map[string]uint64{"A": 10, "query": 1},
	)
	ii := buildIndex(t, t.TempDir(), tok, []*Document{NewDocument(0, "A", "", "")}, 1<<20)

	results, err := ii.Search(queryDoc())
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results for a never-indexed term, want 0", len(results))
	}
}

func TestIndexDocsRefusesSecondBuild(t *testing.T) {
	dir := t.TempDir()
	tok := newStubTokenizer(
		map[string]map[string]uint64{"A": {"cat": 2}},
		map[string]uint64{"A": 2},
	)
	buildIndex(t, dir, tok, []*Document{NewDocument(0, "A", "", "")}, 1<<20)

	lexiconPath := filepath.Join(dir, "index.lexicon")
	before, err := os.ReadFile(lexiconPath)
	if err != nil {
		t.Fatalf("reading lexicon: %v", err)
	}

	tok2 := newStubTokenizer(
		map[string]map[string]uint64{"B": {"dog": 1}},
		map[string]uint64{"B": 1},
	)
	ii2, err := NewInvertedIndex(lexiconPath, filepath.Join(dir, "index.postings"), 2, tok2)
	if err != nil {
		t.Fatalf("reopening index: %v", err)
	}
	defer ii2.Close()

	_, err = ii2.IndexDocs(context.Background(), []*Document{NewDocument(0, "B", "", "")}, 1<<20)
	if !errors.Is(err, apperrors.ErrAlreadyIndexed) {
		t.Fatalf("second IndexDocs error = %v, want ErrAlreadyIndexed", err)
	}

	after, err := os.ReadFile(lexiconPath)
	if err != nil {
		t.Fatalf("re-reading lexicon: %v", err)
	}
	if string(before) != string(after) {
		t.Error("refused build modified the existing lexicon")
	}
}

func TestIndexReloadReproducesSearch(t *testing.T) {
	dir := t.TempDir()
	freqs := map[string]map[string]uint64{
		"A":     {"cat": 3, "dog": 1},
		"B":     {"dog": 2},
		"C":     {"fish": 4},
		"query": {"cat": 1, "dog": 1},
	}
	lengths := map[string]uint64{"A": 10, "B": 8, "C": 6, "query": 2}
	docs := []*Document{
		NewDocument(0, "A", "pets", ""),
		NewDocument(1, "B", "pets", ""),
		NewDocument(2, "C", "aquatic", ""),
	}
	ii := buildIndex(t, dir, newStubTokenizer(freqs, lengths), docs, 1<<20)

	want, err := ii.Search(queryDoc())
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(want) == 0 {
		t.Fatal("expected results from the first session")
	}

	// A fresh session must pick up the persisted term mapping so the same
	// query resolves to the same term IDs.
	reopened, err := NewInvertedIndex(
		filepath.Join(dir, "index.lexicon"),
		filepath.Join(dir, "index.postings"),
		2, newStubTokenizer(freqs, lengths),
	)
	if err != nil {
		t.Fatalf("reopening index: %v", err)
	}
	defer reopened.Close()

	if reopened.Lexicon().NumDocs() != ii.Lexicon().NumDocs() {
		t.Errorf("NumDocs after reload = %d, want %d",
			reopened.Lexicon().NumDocs(), ii.Lexicon().NumDocs())
	}
	if reopened.Lexicon().NumTerms() != ii.Lexicon().NumTerms() {
		t.Errorf("NumTerms after reload = %d, want %d",
			reopened.Lexicon().NumTerms(), ii.Lexicon().NumTerms())
	}
	if reopened.Lexicon().AvgDocLength() != ii.Lexicon().AvgDocLength() {
		t.Errorf("AvgDocLength after reload = %v, want %v",
			reopened.Lexicon().AvgDocLength(), ii.Lexicon().AvgDocLength())
	}

	got, err := reopened.Search(queryDoc())
	if err != nil {
		t.Fatalf("Search after reload failed: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("got %d results after reload, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].DocID != want[i].DocID || got[i].Category != want[i].Category {
			t.Errorf("results[%d] = %+v, want %+v", i, got[i], want[i])
		}
		if math.Abs(got[i].Score-want[i].Score) > 1e-12 {
			t.Errorf("results[%d].Score = %v, want %v", i, got[i].Score, want[i].Score)
		}
	}
}

func TestIndexDocsStats(t *testing.T) {
	tok := newStubTokenizer(
		map[string]map[string]uint64{
			"A": {"cat": 1, "dog": 1},
			"B": {"dog": 2, "fish": 1},
		},
		map[string]uint64{"A": 2, "B": 3},
	)
	docs := []*Document{
		NewDocument(0, "A", "", ""),
		NewDocument(1, "B", "", ""),
	}
	ii, err := NewInvertedIndex(
		filepath.Join(t.TempDir(), "index.lexicon"),
		filepath.Join(t.TempDir(), "index.postings"),
		2, tok,
	)
	if err != nil {
		t.Fatalf("NewInvertedIndex failed: %v", err)
	}
	defer ii.Close()

	stats, err := ii.IndexDocs(context.Background(), docs, 1<<20)
	if err != nil {
		t.Fatalf("IndexDocs failed: %v", err)
	}
	if stats.Docs != 2 {
		t.Errorf("stats.Docs = %d, want 2", stats.Docs)
	}
	if stats.Terms != 3 {
		t.Errorf("stats.Terms = %d, want 3", stats.Terms)
	}
	if stats.Chunks < 1 {
		t.Errorf("stats.Chunks = %d, want at least 1", stats.Chunks)
	}
}
