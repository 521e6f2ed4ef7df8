package recstore

import (
	"context"
	"fmt"
)

const (
	BackendFile     = "file"
	BackendDatabase = "database"
)

// Options selects and configures a Store backend
type Options struct {
	// BackendFile (default) or BackendDatabase
	Backend string

	RejectDuplicates bool

	// file backend
	Dir            string
	FileName       string
	SyncWrite      bool
	SubstringMatch bool

	// database backend
	Driver string
	DSN    string
}

// Open returns the Store selected by opts.Backend
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case "", BackendFile:
		dir := opts.Dir
		if dir == "" {
			dir = "."
		}
		s := &FileStore{
			DataDir:          dir,
			FileName:         opts.FileName,
			SyncWrite:        opts.SyncWrite,
			SubstringMatch:   opts.SubstringMatch,
			RejectDuplicates: opts.RejectDuplicates,
		}
		if err := OpenFileStore(s); err != nil {
			return nil, err
		}
		return s, nil
	case BackendDatabase:
		s, err := OpenSQLStore(ctx, opts.Driver, opts.DSN)
		if err != nil {
			return nil, err
		}
		s.RejectDuplicates = opts.RejectDuplicates
		return s, nil
	}
	return nil, fmt.Errorf("unknown storage backend '%s', must be '%s' or '%s'", opts.Backend, BackendFile, BackendDatabase)
}
