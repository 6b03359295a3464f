package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/kirillkom/oq-testgen/internal/core/domain"
)

func TestIndexEnsuresCollectionOncePerVectorSize(t *testing.T) {
	var ensureCalls int32
	var ids []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/collections/precedents":
			atomic.AddInt32(&ensureCalls, 1)
			w.WriteHeader(http.StatusCreated)
		case r.Method == http.MethodPut && r.URL.Path == "/collections/precedents/points":
			var body struct {
				Points []struct {
					ID string `json:"id"`
				} `json:"points"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			for _, p := range body.Points {
				ids = append(ids, p.ID)
			}
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	index := New(server.URL, "precedents")
	src := domain.PrecedentSource{DocumentID: "val-1", Name: "lims-urs.pdf", Category: domain.CategoryMediumRisk}
	chunks := []string{"a", "b"}
	vectors := [][]float32{{0.1, 0.2}, {0.3, 0.4}}

	if err := index.Index(context.Background(), src, chunks, vectors); err != nil {
		t.Fatalf("first Index() error = %v", err)
	}
	if err := index.Index(context.Background(), src, chunks, vectors); err != nil {
		t.Fatalf("second Index() error = %v", err)
	}
	if got := atomic.LoadInt32(&ensureCalls); got != 1 {
		t.Fatalf("expected ensure collection called once, got %d", got)
	}
	if len(ids) != 4 || ids[0] != ids[2] || ids[1] != ids[3] || ids[0] == ids[1] {
		t.Fatalf("expected stable per-chunk point ids, got %v", ids)
	}
}

func TestEnsureCollectionIncludesResponseBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut && r.URL.Path == "/collections/precedents" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	err := New(server.URL, "precedents").Index(context.Background(), domain.PrecedentSource{DocumentID: "val-1"}, []string{"a"}, [][]float32{{0.1, 0.2}})
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected error to include body, got %v", err)
	}
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected 5xx to be temporary, got %v", err)
	}
}

func TestSearchFiltersByCategory(t *testing.T) {
	var filter string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/collections/precedents/points/search" {
			http.NotFound(w, r)
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		raw, _ := json.Marshal(body["filter"])
		filter = string(raw)
		_, _ = w.Write([]byte(`{"result":[{"score":0.87,"payload":{"doc_id":"val-1","name":"lims-urs.pdf","category":"high-risk","chunk_index":2,"text":"audit trail review"}}]}`))
	}))
	defer server.Close()

	got, err := New(server.URL, "precedents").Search(context.Background(), []float32{0.1}, 5, domain.CategoryHighRisk)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if !strings.Contains(filter, `"high-risk"`) {
		t.Fatalf("expected category filter, got %s", filter)
	}
	want := domain.Precedent{DocumentID: "val-1", Name: "lims-urs.pdf", Category: domain.CategoryHighRisk, ChunkIndex: 2, Text: "audit trail review", Score: 0.87}
	if len(got) != 1 || got[0] != want {
		t.Fatalf("unexpected precedents: %+v", got)
	}
}
