// Package jsonfile stores each record as one pretty-printed JSON file in a
// flat directory, so a world stays inspectable and diffable with ordinary
// tools.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/emberfell/emberfell/internal/store"
)

const ext = ".json"

// Store maps key → <dir>/<key>.json. Writes go through a temp file and
// rename, so a crash mid-write never leaves a truncated record behind.
type Store struct {
	dir string
}

// New creates the directory if needed and returns a store over it.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("jsonfile: %w", err)
	}
	return &Store{dir: dir}, nil
}

// path rejects keys that would escape the store directory.
func (s *Store) path(key string) (string, error) {
	if key == "" || key == "." || key == ".." ||
		strings.ContainsAny(key, `/\`) || strings.HasPrefix(key, ".") {
		return "", fmt.Errorf("jsonfile: invalid key %q", key)
	}
	return filepath.Join(s.dir, key+ext), nil
}

func (s *Store) Has(key string) (bool, error) {
	p, err := s.path(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Store) Get(key string) (store.Record, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%q: %w", key, store.ErrNotFound)
		}
		return nil, err
	}
	var rec store.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("jsonfile: decoding %q: %w", key, err)
	}
	return rec, nil
}

func (s *Store) Put(key string, rec store.Record) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	raw, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("jsonfile: encoding %q: %w", key, err)
	}
	raw = append(raw, '\n')
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, p)
}

func (s *Store) Delete(key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *Store) Keys() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ext) || strings.HasPrefix(name, ".") {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, ext))
	}
	slices.Sort(keys)
	return keys, nil
}

// Watch reports keys whose files change on disk outside this process, e.g. an
// operator hand-editing a record, until ctx is done. Rename-based writes (our
// own Put included) surface as a single event for the final name.
func (s *Store) Watch(ctx context.Context, onChange func(key string)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("jsonfile: %w", err)
	}
	defer w.Close()
	if err := w.Add(s.dir); err != nil {
		return fmt.Errorf("jsonfile: watching %s: %w", s.dir, err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("jsonfile: watch: %w", err)
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) {
				continue
			}
			name := filepath.Base(ev.Name)
			if !strings.HasSuffix(name, ext) || strings.HasPrefix(name, ".") {
				continue
			}
			onChange(strings.TrimSuffix(name, ext))
		}
	}
}
