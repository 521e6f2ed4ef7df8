package backup

import (
	"os"
	"path/filepath"
)

// writeFileAtomically calls write with a temporary file in the same
// directory as path and renames it to path only if writing, syncing
// and closing all succeeded. Otherwise the temporary file is removed
// and path is left untouched.
func writeFileAtomically(path string, write func(f *os.File) error) error {
	dir, fName := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	if fName == "" {
		return &os.PathError{Op: "open", Path: path, Err: os.ErrInvalid}
	}
	tmpFile, err := os.CreateTemp(dir, fName+"-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	didRename := false
	defer func() {
		if !didRename {
			// ignoring error on this one
			_ = os.Remove(tmpPath)
		}
	}()

	err = write(tmpFile)
	// https://www.joeshaw.org/dont-defer-close-on-writable-files/
	errSync := tmpFile.Sync()
	errClose := tmpFile.Close()
	if err == nil {
		err = errSync
	}
	if err == nil {
		err = errClose
	}
	if err != nil {
		return err
	}

	// this will over-write path (if it exists)
	if err = os.Rename(tmpPath, path); err != nil {
		return err
	}
	didRename = true
	// for extra protection against crashes, sync directory after rename
	fdir, _ := os.Open(dir)
	if fdir != nil {
		// ignore errors as those are a nice have, not must have
		_ = fdir.Sync()
		_ = fdir.Close()
	}
	return nil
}
