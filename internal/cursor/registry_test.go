package cursor

import (
	"errors"
	"testing"

	"github.com/mondo-io/mondo/internal/engine/value"
)

func makeDocs(t *testing.T, n int) []*value.Document {
	t.Helper()
	out := make([]*value.Document, n)
	for i := 0; i < n; i++ {
		d := value.NewDocument()
		d.Set("i", value.Int(int64(i)))
		out[i] = d
	}
	return out
}

func newTestRegistry(t *testing.T, capacity int) *Registry {
	t.Helper()
	r, err := NewRegistry(capacity, 0)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return r
}

func TestOpenSingleBatchNoCursor(t *testing.T) {
	r := newTestRegistry(t, 4)
	docs := makeDocs(t, 5)

	first, id := r.Open("db.c", docs, 10)
	if id != 0 {
		t.Fatalf("id = %d, want 0 for a single-batch result", id)
	}
	if len(first) != 5 {
		t.Fatalf("batch = %d docs, want 5", len(first))
	}
	if r.Len() != 0 {
		t.Fatal("nothing should be registered for a single batch")
	}
}

func TestOpenAndPageThrough(t *testing.T) {
	r := newTestRegistry(t, 4)
	docs := makeDocs(t, 7)

	first, id := r.Open("db.c", docs, 3)
	if id == 0 {
		t.Fatal("expected a live cursor id")
	}
	if len(first) != 3 {
		t.Fatalf("first batch = %d, want 3", len(first))
	}
	if ns, ok := r.Namespace(id); !ok || ns != "db.c" {
		t.Fatalf("namespace = %q/%v", ns, ok)
	}

	second, id2, err := r.GetMore(id, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id2 != id || len(second) != 3 {
		t.Fatalf("second batch = %d docs, id %d", len(second), id2)
	}

	last, id3, err := r.GetMore(id, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id3 != 0 || len(last) != 1 {
		t.Fatalf("last batch = %d docs, id %d; want 1 docs, id 0", len(last), id3)
	}

	// Drained cursor is gone.
	if _, _, err := r.GetMore(id, 3); !errors.Is(err, ErrCursorNotFound) {
		t.Fatalf("expected ErrCursorNotFound, got %v", err)
	}
	if r.Len() != 0 {
		t.Fatalf("registry len = %d, want 0", r.Len())
	}
}

func TestGetMoreDefaultBatchSize(t *testing.T) {
	r := newTestRegistry(t, 4)
	docs := makeDocs(t, DefaultBatchSize+10)

	first, id := r.Open("db.c", docs, 0)
	if len(first) != DefaultBatchSize {
		t.Fatalf("first batch = %d, want %d", len(first), DefaultBatchSize)
	}
	rest, id2, err := r.GetMore(id, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id2 != 0 || len(rest) != 10 {
		t.Fatalf("rest = %d docs, id %d", len(rest), id2)
	}
}

func TestConfiguredBatchSize(t *testing.T) {
	r, err := NewRegistry(4, 5)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	docs := makeDocs(t, 12)

	first, id := r.Open("db.c", docs, 0)
	if len(first) != 5 {
		t.Fatalf("first batch = %d, want configured 5", len(first))
	}
	second, _, err := r.GetMore(id, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(second) != 5 {
		t.Fatalf("second batch = %d, want configured 5", len(second))
	}

	// An explicit per-call size still wins.
	third, id3, err := r.GetMore(id, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(third) != 1 || id3 != id {
		t.Fatalf("third batch = %d docs, id %d", len(third), id3)
	}
}

func TestKill(t *testing.T) {
	r := newTestRegistry(t, 4)
	_, id := r.Open("db.c", makeDocs(t, 10), 2)

	killed := r.Kill([]int64{id, 424242})
	if len(killed) != 1 || killed[0] != id {
		t.Fatalf("killed = %v, want [%d]", killed, id)
	}
	if _, _, err := r.GetMore(id, 2); !errors.Is(err, ErrCursorNotFound) {
		t.Fatalf("expected ErrCursorNotFound after kill, got %v", err)
	}
}

func TestEvictionReadsAsCursorNotFound(t *testing.T) {
	r := newTestRegistry(t, 2)
	_, oldest := r.Open("db.a", makeDocs(t, 10), 2)
	r.Open("db.b", makeDocs(t, 10), 2)
	r.Open("db.c", makeDocs(t, 10), 2)

	if _, _, err := r.GetMore(oldest, 2); !errors.Is(err, ErrCursorNotFound) {
		t.Fatalf("evicted cursor should read as not found, got %v", err)
	}
}

func TestCursorIDsFitJSONNumbers(t *testing.T) {
	for i := 0; i < 100; i++ {
		id := newCursorID()
		if id <= 0 || id >= 1<<53 {
			t.Fatalf("id %d outside (0, 2^53)", id)
		}
	}
}
