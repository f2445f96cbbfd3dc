package dedup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Naman6019/News-Agent/internal/feed"
)

func articles(ids ...string) []*feed.Article {
	out := make([]*feed.Article, 0, len(ids))
	for _, id := range ids {
		out = append(out, &feed.Article{ID: id, Title: "t-" + id, Link: "https://example.com/" + id})
	}
	return out
}

func registryPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "delivered.json")
}

func TestFilterUnseenPartialOverlap(t *testing.T) {
	r := NewFileRegistry(registryPath(t))
	if err := r.RecordDelivered([]string{"a", "b"}); err != nil {
		t.Fatalf("RecordDelivered() error = %v", err)
	}

	got := r.FilterUnseen(articles("a", "b", "c"))
	if len(got) != 1 || got[0].ID != "c" {
		t.Fatalf("FilterUnseen() = %v articles, want exactly [c]", len(got))
	}
}

func TestFilterUnseenIsSideEffectFree(t *testing.T) {
	r := NewFileRegistry(registryPath(t))

	first := r.FilterUnseen(articles("a", "b"))
	second := r.FilterUnseen(articles("a", "b"))
	if len(first) != 2 || len(second) != 2 {
		t.Errorf("filtering recorded identities: first=%d second=%d, want 2 and 2", len(first), len(second))
	}
}

func TestRecordDeliveredMergesWithExisting(t *testing.T) {
	path := registryPath(t)
	r := NewFileRegistry(path)

	if err := r.RecordDelivered([]string{"a"}); err != nil {
		t.Fatal(err)
	}
	if err := r.RecordDelivered([]string{"b", "c"}); err != nil {
		t.Fatal(err)
	}

	// a fresh registry on the same file sees the union
	r2 := NewFileRegistry(path)
	got := r2.FilterUnseen(articles("a", "b", "c", "d"))
	if len(got) != 1 || got[0].ID != "d" {
		t.Fatalf("union not persisted, %d unseen", len(got))
	}
}

func TestRecordDeliveredIdempotent(t *testing.T) {
	r := NewFileRegistry(registryPath(t))

	if err := r.RecordDelivered([]string{"a", "b"}); err != nil {
		t.Fatal(err)
	}
	if err := r.RecordDelivered([]string{"a", "b"}); err != nil {
		t.Fatal(err)
	}

	if got := r.FilterUnseen(articles("a", "b")); len(got) != 0 {
		t.Errorf("%d unseen after double record, want 0", len(got))
	}
}

func TestMissingFileTreatedAsEmpty(t *testing.T) {
	r := NewFileRegistry(filepath.Join(t.TempDir(), "does-not-exist.json"))
	if got := r.FilterUnseen(articles("a")); len(got) != 1 {
		t.Errorf("missing file dropped articles: %d unseen, want 1", len(got))
	}
}

func TestCorruptFileTreatedAsEmpty(t *testing.T) {
	path := registryPath(t)
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	r := NewFileRegistry(path)
	if got := r.FilterUnseen(articles("a")); len(got) != 1 {
		t.Errorf("corrupt file dropped articles: %d unseen, want 1", len(got))
	}

	// recording over a corrupt file repairs it
	if err := r.RecordDelivered([]string{"a"}); err != nil {
		t.Fatalf("RecordDelivered() over corrupt file error = %v", err)
	}
	if got := r.FilterUnseen(articles("a")); len(got) != 0 {
		t.Errorf("record after repair not visible: %d unseen, want 0", len(got))
	}
}
