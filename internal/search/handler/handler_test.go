package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/corpusindex/corpusindex/internal/index"
	"github.com/corpusindex/corpusindex/internal/search"
	"github.com/corpusindex/corpusindex/internal/search/handler"
)

type fakeExecutor struct {
	lastQuery string
	lastLimit int
	resp      *search.Response
	err       error
}

func (f *fakeExecutor) Execute(_ context.Context, query string, limit int) (*search.Response, error) {
	f.lastQuery = query
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func doSearch(h *handler.Handler, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h.Search(rec, req)
	return rec
}

func TestSearchRequiresQuery(t *testing.T) {
	h := handler.New(&fakeExecutor{}, nil, nil, nil, 10, 100)
	rec := doSearch(h, "/api/v1/search")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	if body["error"] == "" {
		t.Error("error body missing 'error' field")
	}
}

func TestSearchRejectsBadLimit(t *testing.T) {
	h := handler.New(&fakeExecutor{}, nil, nil, nil, 10, 100)
	for _, limit := range []string{"abc", "0", "-3"} {
		rec := doSearch(h, "/api/v1/search?q=cat&limit="+limit)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("limit %q: status = %d, want 400", limit, rec.Code)
		}
	}
}

func TestSearchReturnsResults(t *testing.T) {
	exec := &fakeExecutor{resp: &search.Response{
		Query:     "cat",
		TotalHits: 2,
		Results: []index.ScoredResult{
			{DocID: 4, Category: "pets", Score: 2.5},
			{DocID: 1, Category: "pets", Score: 1.25},
		},
	}}
	h := handler.New(exec, nil, nil, nil, 10, 100)

	rec := doSearch(h, "/api/v1/search?q=cat")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if exec.lastQuery != "cat" || exec.lastLimit != 10 {
		t.Errorf("executor called with (%q, %d), want (cat, 10)", exec.lastQuery, exec.lastLimit)
	}

	var resp search.Response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.TotalHits != 2 || len(resp.Results) != 2 {
		t.Fatalf("response = %+v", resp)
	}
	if resp.Results[0].Score < resp.Results[1].Score {
		t.Error("results are not most-relevant-first")
	}
}

func TestSearchCapsLimitAtMaxResults(t *testing.T) {
	exec := &fakeExecutor{resp: &search.Response{Query: "cat"}}
	h := handler.New(exec, nil, nil, nil, 10, 25)

	rec := doSearch(h, "/api/v1/search?q=cat&limit=500")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if exec.lastLimit != 25 {
		t.Errorf("executor limit = %d, want the 25 cap", exec.lastLimit)
	}
}

func TestSearchExecutionFailure(t *testing.T) {
	h := handler.New(&fakeExecutor{err: errors.New("postings unreadable")}, nil, nil, nil, 10, 100)
	rec := doSearch(h, "/api/v1/search?q=cat")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestCacheEndpointsWithoutCache(t *testing.T) {
	h := handler.New(&fakeExecutor{}, nil, nil, nil, 10, 100)

	rec := httptest.NewRecorder()
	h.CacheStats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/cache/stats", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("CacheStats status = %d, want 404", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.CacheInvalidate(rec, httptest.NewRequest(http.MethodPost, "/api/v1/cache/invalidate", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("CacheInvalidate status = %d, want 404", rec.Code)
	}
}
