package recstore

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/kjk/regstore/log"
)

const DefaultFileName = "archivo.txt"

// FileStore keeps entries in an append-only text file, one entry per line.
// Every call opens the file and closes it before returning.
// Calls on the same FileStore are serialized. Nothing coordinates
// separate processes writing the same file.
type FileStore struct {
	DataDir  string
	FileName string

	// if true, will call file.Sync() after every append
	SyncWrite bool
	// if true, queries match when the key or email appears anywhere
	// in a line, like the old tool did. It can give false positives
	// e.g. when an email is a substring of another email
	SubstringMatch bool
	// if true, Save rejects a key or email that is already stored
	RejectDuplicates bool

	path string
	mu   sync.Mutex
}

var _ Store = &FileStore{}

// OpenFileStore resolves the path of the store file and creates DataDir.
// The file itself is created on first Save.
func OpenFileStore(s *FileStore) error {
	if s.DataDir == "" {
		return fmt.Errorf("data directory is not set. For current directory, use '.'")
	}
	if s.FileName == "" {
		s.FileName = DefaultFileName
	}
	var err error
	s.path, err = filepath.Abs(filepath.Join(s.DataDir, s.FileName))
	if err != nil {
		return fmt.Errorf("failed to get absolute path for store file: %w", err)
	}
	if err = os.MkdirAll(s.DataDir, 0755); err != nil {
		return storageErr("OpenFileStore", err)
	}
	return nil
}

// Path returns absolute path of the store file
func (s *FileStore) Path() string {
	return s.path
}

// endsWithNewline returns false if file is not empty and its last byte
// is not '\n' i.e. the last write was cut short
func endsWithNewline(file *os.File) (bool, error) {
	st, err := file.Stat()
	if err != nil {
		return false, err
	}
	size := st.Size()
	if size == 0 {
		return true, nil
	}
	var b [1]byte
	if _, err = file.ReadAt(b[:], size-1); err != nil {
		return false, err
	}
	return b[0] == '\n', nil
}

// appendToFile opens path for append (creating it if needed), writes data
// and closes the file.
// If the file doesn't end with a newline, one is written first so that
// data starts a new line.
func appendToFile(path string, data []byte, sync bool) error {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return err
	}
	terminated, err := endsWithNewline(file)
	if err != nil {
		file.Close()
		return err
	}
	if !terminated {
		data = append([]byte{'\n'}, data...)
	}
	_, err = file.Write(data)
	if err != nil {
		file.Close()
		return err
	}
	if sync {
		err = file.Sync()
		if err != nil {
			file.Close()
			return err
		}
	}
	return file.Close()
}

type LineEntry struct {
	Line  string
	Entry Entry
}

// ParseFromFile returns an iterator over lines of a store file.
// A missing file yields nothing. Lines that don't parse (e.g. a line
// half-written by another process) are skipped.
// Call the returned error function after iteration to check for read errors.
func ParseFromFile(path string) (iter.Seq[*LineEntry], func() error) {
	var iterErr error

	seq := func(yield func(*LineEntry) bool) {
		file, err := os.Open(path)
		if err != nil {
			if !os.IsNotExist(err) {
				iterErr = err
			}
			return
		}
		defer file.Close()

		reader := bufio.NewReader(file)
		lineNo := 0
		for {
			line, err := reader.ReadString('\n')
			if err == io.EOF {
				if line == "" {
					break
				}
			} else if err != nil {
				iterErr = fmt.Errorf("error reading store file: %w", err)
				return
			}
			lineNo++
			line = strings.TrimSuffix(line, "\n")
			if line == "" {
				continue
			}
			le := &LineEntry{Line: line}
			if err := ParseLine(line, &le.Entry); err != nil {
				log.Errorf("%s:%d: skipping line: %s\n", path, lineNo, err)
				continue
			}
			if !yield(le) {
				return
			}
		}
	}
	return seq, func() error { return iterErr }
}

// findFirst returns the first entry for which match returns true
// or nil if there's none
func (s *FileStore) findFirst(op string, match func(*LineEntry) bool) (*Entry, error) {
	entries, errFn := ParseFromFile(s.path)
	for le := range entries {
		if match(le) {
			e := le.Entry
			return &e, nil
		}
	}
	if err := errFn(); err != nil {
		log.Errorf("%s: %s\n", op, err)
		return nil, storageErr(op, err)
	}
	return nil, nil
}

func (s *FileStore) matchKey(key string) func(*LineEntry) bool {
	if s.SubstringMatch {
		return func(le *LineEntry) bool {
			return strings.Contains(le.Line, key)
		}
	}
	return func(le *LineEntry) bool {
		return le.Entry.Key == key
	}
}

func (s *FileStore) matchEmail(email string) func(*LineEntry) bool {
	if s.SubstringMatch {
		return func(le *LineEntry) bool {
			return strings.Contains(le.Line, email)
		}
	}
	return func(le *LineEntry) bool {
		return le.Entry.Email == email
	}
}

func (s *FileStore) checkDuplicates(rec Record, key string) error {
	e, err := s.findFirst("Save", func(le *LineEntry) bool {
		return le.Entry.Key == key || le.Entry.Email == rec.Email
	})
	if err != nil || e == nil {
		return err
	}
	if e.Key == key {
		return fmt.Errorf("%w: key already registered", ErrDuplicateKey)
	}
	return fmt.Errorf("%w: %s", ErrDuplicateEmail, rec.Email)
}

// Save appends an entry to the store file.
// Saving the same entry twice stores it twice unless RejectDuplicates is set.
func (s *FileStore) Save(ctx context.Context, rec Record, key string) error {
	if err := validateEntry(rec, key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.RejectDuplicates {
		if err := s.checkDuplicates(rec, key); err != nil {
			return err
		}
	}
	e := &Entry{Record: rec, Key: key}
	line := MarshalLine(e)
	if err := appendToFile(s.path, []byte(line), s.SyncWrite); err != nil {
		log.Errorf("Could not save the record for '%s': %s\n", rec.Email, err)
		return storageErr("Save", err)
	}
	log.Infof("Record for '%s' has been saved\n", rec.Email)
	log.Event("record_saved", "backend", "file", "email", rec.Email)
	return nil
}

// KeyExists returns true if an entry with this key is stored
func (s *FileStore) KeyExists(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, missingField("key")
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.findFirst("KeyExists", s.matchKey(key))
	return e != nil, err
}

// UserExists returns true if an entry with rec.Email is stored
func (s *FileStore) UserExists(ctx context.Context, rec Record) (bool, error) {
	if err := validateEmail(rec); err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.findFirst("UserExists", s.matchEmail(rec.Email))
	return e != nil, err
}

// GetKeyForUser returns the key of the first stored entry with rec.Email
func (s *FileStore) GetKeyForUser(ctx context.Context, rec Record) (string, error) {
	if err := validateEmail(rec); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.findFirst("GetKeyForUser", s.matchEmail(rec.Email))
	if err != nil {
		return "", err
	}
	if e == nil {
		return "", ErrNotFound
	}
	return e.Key, nil
}

func (s *FileStore) Entries(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var res []Entry
	entries, errFn := ParseFromFile(s.path)
	for le := range entries {
		res = append(res, le.Entry)
	}
	if err := errFn(); err != nil {
		return nil, storageErr("Entries", err)
	}
	return res, nil
}

// Close is a no-op, the file is never held open between calls
func (s *FileStore) Close() error {
	return nil
}
