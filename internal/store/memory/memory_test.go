package memory

import (
	"errors"
	"slices"
	"testing"

	"github.com/emberfell/emberfell/internal/store"
)

func TestRoundTrip(t *testing.T) {
	s := New()
	rec := store.Record{"uid": "T-1", "name": "crate", "size": 3}
	if err := s.Put("crate", rec); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get("crate")
	if err != nil {
		t.Fatal(err)
	}
	if got["name"] != "crate" || got["size"] != 3 {
		t.Fatalf("got %v", got)
	}
}

func TestGetMissing(t *testing.T) {
	s := New()
	if _, err := s.Get("nope"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Get = %v, want store.ErrNotFound", err)
	}
	if ok, _ := s.Has("nope"); ok {
		t.Fatal("Has reported a missing key")
	}
}

func TestRecordsAreIsolated(t *testing.T) {
	s := New()
	rec := store.Record{"tags": map[string]any{"a": 1}}
	if err := s.Put("k", rec); err != nil {
		t.Fatal(err)
	}
	// Mutating the caller's record after Put must not leak into the store.
	rec["tags"].(map[string]any)["a"] = 99
	got, _ := s.Get("k")
	if got["tags"].(map[string]any)["a"] != 1 {
		t.Fatal("Put did not copy the record")
	}
	// Mutating a returned record must not leak either.
	got["tags"].(map[string]any)["a"] = 42
	again, _ := s.Get("k")
	if again["tags"].(map[string]any)["a"] != 1 {
		t.Fatal("Get did not copy the record")
	}
}

func TestDeleteAndKeys(t *testing.T) {
	s := New()
	for _, k := range []string{"b", "a", "c"} {
		if err := s.Put(k, store.Record{}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Delete("b"); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete("b"); err != nil {
		t.Fatal(err)
	}
	keys, err := s.Keys()
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(keys, []string{"a", "c"}) {
		t.Fatalf("Keys = %v", keys)
	}
	if s.Len() != 2 {
		t.Fatalf("Len = %d, want 2", s.Len())
	}
}
