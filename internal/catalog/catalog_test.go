package catalog

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

// openTestStore opens an in-memory Store for use in tests.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open in-memory catalog: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func Test_Catalog_PutGetReplace(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if _, ok, err := s.Get(ctx, "d1"); err != nil || ok {
		t.Fatalf("get unknown: ok=%v err=%v", ok, err)
	}

	doc := Document{ID: "d1", Origin: "faq.md", Title: "FAQ", ContentType: "text/markdown", ContentHash: "h1", ChunkCount: 3}
	if err := s.Put(ctx, doc); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, ok, err := s.Get(ctx, "d1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.ContentHash != "h1" || got.ChunkCount != 3 || got.Title != "FAQ" {
		t.Errorf("unexpected record: %+v", got)
	}
	if got.IngestedAt.IsZero() {
		t.Error("IngestedAt should default to now")
	}

	doc.ContentHash = "h2"
	doc.ChunkCount = 5
	if err := s.Put(ctx, doc); err != nil {
		t.Fatalf("put replace: %v", err)
	}
	docs, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(docs) != 1 || docs[0].ContentHash != "h2" || docs[0].ChunkCount != 5 {
		t.Errorf("want one replaced record, got %+v", docs)
	}
}

func Test_Catalog_DeleteAndList(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"b", "a", "c"} {
		if err := s.Put(ctx, Document{ID: id, Origin: id + ".txt"}); err != nil {
			t.Fatalf("put %s: %v", id, err)
		}
	}
	if err := s.Delete(ctx, "b"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Delete(ctx, "missing"); err != nil {
		t.Fatalf("delete missing: %v", err)
	}

	docs, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(docs) != 2 || docs[0].ID != "a" || docs[1].ID != "c" {
		t.Errorf("want [a c] ordered by origin, got %+v", docs)
	}
}

func Test_Catalog_IndexMetaAndReset(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if _, ok, err := s.IndexMeta(ctx); err != nil || ok {
		t.Fatalf("fresh catalog: ok=%v err=%v", ok, err)
	}

	want := IndexMeta{Model: "ollama/nomic-embed-text@768", Dimensions: 768, ChunkSize: 1000, ChunkOverlap: 200}
	if err := s.SetIndexMeta(ctx, want); err != nil {
		t.Fatalf("set meta: %v", err)
	}
	got, ok, err := s.IndexMeta(ctx)
	if err != nil || !ok {
		t.Fatalf("index meta: ok=%v err=%v", ok, err)
	}
	if got != want {
		t.Errorf("want %+v, got %+v", want, got)
	}

	if err := s.Put(ctx, Document{ID: "d", Origin: "d"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	docs, _ := s.List(ctx)
	if len(docs) != 0 {
		t.Errorf("want empty catalog after reset, got %d", len(docs))
	}
	if _, ok, _ := s.IndexMeta(ctx); ok {
		t.Error("index meta should be cleared by reset")
	}
}

func Test_Catalog_QueryLog(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Unix(1_700_000_000, 0)
	for i, q := range []string{"first", "second", "third"} {
		err := s.RecordQuery(ctx, Query{
			Question:  q,
			Grounded:  i%2 == 0,
			Reason:    "grounded",
			Citations: i,
			Duration:  1500 * time.Millisecond,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("record %s: %v", q, err)
		}
	}

	got, err := s.RecentQueries(ctx, 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("want 2 queries, got %d", len(got))
	}
	if got[0].Question != "third" || got[1].Question != "second" {
		t.Errorf("want newest first, got %q, %q", got[0].Question, got[1].Question)
	}
	if !got[0].Grounded || got[1].Grounded {
		t.Errorf("grounded flags not round-tripped: %+v", got)
	}
	if got[0].Duration != 1500*time.Millisecond {
		t.Errorf("duration: want 1.5s, got %s", got[0].Duration)
	}
}

func Test_Catalog_PersistsAcrossOpen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "catalog.db")
	ctx := context.Background()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Put(ctx, Document{ID: "d1", Origin: "a.txt", ContentHash: "h"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = s2.Close() })
	if _, ok, err := s2.Get(ctx, "d1"); err != nil || !ok {
		t.Fatalf("record lost across reopen: ok=%v err=%v", ok, err)
	}
}
