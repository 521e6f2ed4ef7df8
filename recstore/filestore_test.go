package recstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/davecgh/go-spew/spew"
)

func a(t *testing.T, cond bool, format string, args ...any) {
	t.Helper()
	if !cond {
		t.Fatalf(format, args...)
	}
}

func createFileStore(t *testing.T) *FileStore {
	s := &FileStore{
		DataDir: t.TempDir(),
	}
	err := OpenFileStore(s)
	a(t, err == nil, "OpenFileStore failed: %v", err)
	return s
}

func countLines(t *testing.T, path string) int {
	d, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return 0
	}
	a(t, err == nil, "ReadFile failed: %v", err)
	return strings.Count(string(d), "\n")
}

func TestFileStoreDefaults(t *testing.T) {
	s := createFileStore(t)
	a(t, s.FileName == DefaultFileName, "expected FileName %s, got %s", DefaultFileName, s.FileName)
	a(t, filepath.IsAbs(s.Path()), "expected absolute path, got %s", s.Path())

	err := OpenFileStore(&FileStore{})
	a(t, err != nil, "expected error for empty DataDir")
}

func TestFileStoreMissingFile(t *testing.T) {
	s := createFileStore(t)
	ctx := context.Background()

	// file is only created on first Save
	_, err := os.Stat(s.Path())
	a(t, os.IsNotExist(err), "store file should not exist yet, err: %v", err)

	found, err := s.KeyExists(ctx, "K1")
	a(t, err == nil && !found, "KeyExists on missing file: %v, %v", found, err)
	found, err = s.UserExists(ctx, Record{Email: "ana@x.com"})
	a(t, err == nil && !found, "UserExists on missing file: %v, %v", found, err)
	_, err = s.GetKeyForUser(ctx, Record{Email: "ana@x.com"})
	a(t, errors.Is(err, ErrNotFound), "expected ErrNotFound, got %v", err)
	entries, err := s.Entries(ctx)
	a(t, err == nil && len(entries) == 0, "Entries on missing file: %v, %v", entries, err)
}

func TestFileStoreLegacyFile(t *testing.T) {
	s := createFileStore(t)
	ctx := context.Background()
	// as written by the old tool: plain space-joined fields
	legacy := "Ana Diaz ana@x.com K1\nJuan de la Cruz juan@x.com K2\n"
	err := os.WriteFile(s.Path(), []byte(legacy), 0644)
	a(t, err == nil, "WriteFile failed: %v", err)

	key, err := s.GetKeyForUser(ctx, Record{Email: "juan@x.com"})
	a(t, err == nil && key == "K2", "expected K2, got %q, %v", key, err)

	entries, err := s.Entries(ctx)
	a(t, err == nil, "Entries failed: %v", err)
	a(t, len(entries) == 2, "expected 2 entries, got %d", len(entries))
	a(t, entries[1].LastName == "de la Cruz", "unexpected entry: %s", spew.Sdump(entries[1]))
}

func TestFileStoreExactMatch(t *testing.T) {
	s := createFileStore(t)
	ctx := context.Background()
	err := s.Save(ctx, Record{"Ana", "Diaz", "ana@x.com"}, "K1")
	a(t, err == nil, "Save failed: %v", err)

	// substrings of stored values don't match
	found, err := s.UserExists(ctx, Record{Email: "na@x.com"})
	a(t, err == nil && !found, "UserExists matched a substring of email")
	found, err = s.KeyExists(ctx, "K")
	a(t, err == nil && !found, "KeyExists matched a substring of key")
	// a key that is equal to another field doesn't match
	found, err = s.KeyExists(ctx, "Diaz")
	a(t, err == nil && !found, "KeyExists matched last name")
	found, err = s.UserExists(ctx, Record{Email: "K1"})
	a(t, err == nil && !found, "UserExists matched key")
}

func TestFileStoreSubstringMatch(t *testing.T) {
	s := createFileStore(t)
	s.SubstringMatch = true
	ctx := context.Background()
	err := s.Save(ctx, Record{"Ana", "Diaz", "ana@x.com"}, "K1")
	a(t, err == nil, "Save failed: %v", err)

	found, err := s.UserExists(ctx, Record{Email: "na@x.com"})
	a(t, err == nil && found, "substring email should match")
	found, err = s.KeyExists(ctx, "Diaz")
	a(t, err == nil && found, "substring key should match anywhere in the line")
	key, err := s.GetKeyForUser(ctx, Record{Email: "x.com"})
	a(t, err == nil && key == "K1", "expected K1, got %q, %v", key, err)
	found, err = s.KeyExists(ctx, "K2")
	a(t, err == nil && !found, "K2 should not match")
}

func TestFileStoreSkipsBadLines(t *testing.T) {
	s := createFileStore(t)
	ctx := context.Background()
	err := s.Save(ctx, Record{"Ana", "Diaz", "ana@x.com"}, "K1")
	a(t, err == nil, "Save failed: %v", err)
	// simulate a line half-written by another process
	err = appendToFile(s.Path(), []byte("Luis Perez\n"), false)
	a(t, err == nil, "append failed: %v", err)
	err = s.Save(ctx, Record{"Luis", "Perez", "luis@x.com"}, "K2")
	a(t, err == nil, "Save failed: %v", err)

	key, err := s.GetKeyForUser(ctx, Record{Email: "luis@x.com"})
	a(t, err == nil && key == "K2", "expected K2, got %q, %v", key, err)
	entries, err := s.Entries(ctx)
	a(t, err == nil && len(entries) == 2, "expected 2 entries, got %d, %v", len(entries), err)
}

func TestFileStoreSaveAfterUnterminatedLine(t *testing.T) {
	s := createFileStore(t)
	ctx := context.Background()
	// last write didn't get to the newline
	err := os.WriteFile(s.Path(), []byte("Ana Diaz ana@x.com K1"), 0644)
	a(t, err == nil, "WriteFile failed: %v", err)
	err = s.Save(ctx, Record{"Bob", "Ruiz", "bob@x.com"}, "K2")
	a(t, err == nil, "Save failed: %v", err)

	found, err := s.UserExists(ctx, Record{Email: "ana@x.com"})
	a(t, err == nil && found, "ana@x.com should exist, err: %v", err)
	key, err := s.GetKeyForUser(ctx, Record{Email: "bob@x.com"})
	a(t, err == nil && key == "K2", "expected K2, got %q, %v", key, err)
	entries, err := s.Entries(ctx)
	a(t, err == nil && len(entries) == 2, "expected 2 entries, got %s, %v", spew.Sdump(entries), err)
	a(t, entries[1].Name == "Bob" && entries[1].LastName == "Ruiz", "bad entry: %s", spew.Sdump(entries[1]))

	// a torn line is skipped, the record after it is intact
	err = os.WriteFile(s.Path(), []byte("Ana Diaz ana@x.com K1\nLuis Per"), 0644)
	a(t, err == nil, "WriteFile failed: %v", err)
	err = s.Save(ctx, Record{"Luis", "Perez", "luis@x.com"}, "K3")
	a(t, err == nil, "Save failed: %v", err)
	entries, err = s.Entries(ctx)
	a(t, err == nil && len(entries) == 2, "expected 2 entries, got %s, %v", spew.Sdump(entries), err)
	a(t, entries[1].Key == "K3" && entries[1].Email == "luis@x.com", "bad entry: %s", spew.Sdump(entries[1]))
}

func TestFileStoreLegacyLeadingQuote(t *testing.T) {
	s := createFileStore(t)
	ctx := context.Background()
	err := os.WriteFile(s.Path(), []byte("\"Bob Ruiz bob@x.com K9\n"), 0644)
	a(t, err == nil, "WriteFile failed: %v", err)

	found, err := s.UserExists(ctx, Record{Email: "bob@x.com"})
	a(t, err == nil && found, "bob@x.com should exist, err: %v", err)
	found, err = s.KeyExists(ctx, "K9")
	a(t, err == nil && found, "K9 should exist, err: %v", err)
}

func TestFileStoreStorageUnavailable(t *testing.T) {
	s := createFileStore(t)
	ctx := context.Background()
	// a directory where the store file should be makes every operation fail
	err := os.Mkdir(s.Path(), 0755)
	a(t, err == nil, "Mkdir failed: %v", err)

	err = s.Save(ctx, Record{"Ana", "Diaz", "ana@x.com"}, "K1")
	a(t, errors.Is(err, ErrStorageUnavailable), "Save: expected ErrStorageUnavailable, got %v", err)
	_, err = s.KeyExists(ctx, "K1")
	a(t, errors.Is(err, ErrStorageUnavailable), "KeyExists: expected ErrStorageUnavailable, got %v", err)
	_, err = s.UserExists(ctx, Record{Email: "ana@x.com"})
	a(t, errors.Is(err, ErrStorageUnavailable), "UserExists: expected ErrStorageUnavailable, got %v", err)
	_, err = s.GetKeyForUser(ctx, Record{Email: "ana@x.com"})
	a(t, errors.Is(err, ErrStorageUnavailable), "GetKeyForUser: expected ErrStorageUnavailable, got %v", err)
}

func TestFileStoreQuotedFields(t *testing.T) {
	s := createFileStore(t)
	ctx := context.Background()
	rec := Record{"Ana Maria", "de la Cruz", "ana@x.com"}
	err := s.Save(ctx, rec, "K 1")
	a(t, err == nil, "Save failed: %v", err)

	entries, err := s.Entries(ctx)
	a(t, err == nil && len(entries) == 1, "Entries: %v, %v", entries, err)
	exp := Entry{Record: rec, Key: "K 1"}
	a(t, entries[0] == exp, "expected:\n%s\ngot:\n%s", spew.Sdump(exp), spew.Sdump(entries[0]))
	key, err := s.GetKeyForUser(ctx, rec)
	a(t, err == nil && key == "K 1", "expected 'K 1', got %q, %v", key, err)
}

func TestFileStoreConcurrentSave(t *testing.T) {
	s := createFileStore(t)
	ctx := context.Background()
	var wg sync.WaitGroup
	n := 50
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Save(ctx, Record{"Ana", "Diaz", "ana@x.com"}, NewKey()); err != nil {
				t.Errorf("Save failed: %v", err)
			}
		}()
	}
	wg.Wait()
	a(t, countLines(t, s.Path()) == n, "expected %d lines, got %d", n, countLines(t, s.Path()))
	entries, err := s.Entries(ctx)
	a(t, err == nil && len(entries) == n, "expected %d entries, got %d, %v", n, len(entries), err)
}

func TestFileStoreCancelled(t *testing.T) {
	s := createFileStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Save(ctx, Record{"Ana", "Diaz", "ana@x.com"}, "K1")
	a(t, errors.Is(err, context.Canceled), "expected context.Canceled, got %v", err)
	a(t, countLines(t, s.Path()) == 0, "nothing should be written")
}
