package jsonfile

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/emberfell/emberfell/internal/store"
)

func TestRoundTrip(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	rec := store.Record{"uid": "R-1", "name": "The Origin", "x": 0}
	if err := s.Put("0,0,0", rec); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get("0,0,0")
	if err != nil {
		t.Fatal(err)
	}
	if got["name"] != "The Origin" {
		t.Fatalf("got %v", got)
	}
	// JSON hands numbers back as float64.
	if got["x"] != float64(0) {
		t.Fatalf("x = %v (%T)", got["x"], got["x"])
	}
}

func TestGetMissing(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get("nope"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Get = %v, want store.ErrNotFound", err)
	}
}

func TestInvalidKeys(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"", ".", "..", "../escape", "a/b", `a\b`, ".hidden"} {
		if err := s.Put(key, store.Record{}); err == nil {
			t.Errorf("Put(%q) succeeded, want error", key)
		}
		if _, err := s.Get(key); err == nil {
			t.Errorf("Get(%q) succeeded, want error", key)
		}
	}
}

func TestDeleteAndKeys(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"1,0,0", "0,0,0"} {
		if err := s.Put(k, store.Record{"k": k}); err != nil {
			t.Fatal(err)
		}
	}
	// Stray files are not records.
	if err := os.WriteFile(filepath.Join(dir, "README.txt"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	keys, err := s.Keys()
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(keys, []string{"0,0,0", "1,0,0"}) {
		t.Fatalf("Keys = %v", keys)
	}
	if err := s.Delete("0,0,0"); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete("0,0,0"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := s.Has("0,0,0"); ok {
		t.Fatal("deleted record still present")
	}
}

func TestPutIsAtomic(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Put("k", store.Record{"v": 1}); err != nil {
		t.Fatal(err)
	}
	if err := s.Put("k", store.Record{"v": 2}); err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("temp file left behind: %v", entries)
	}
	got, err := s.Get("k")
	if err != nil {
		t.Fatal(err)
	}
	if got["v"] != float64(2) {
		t.Fatalf("v = %v", got["v"])
	}
}
