package backup

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kjk/regstore/log"
	"github.com/kjk/regstore/recstore"
)

// SnapshotName returns a file name for a snapshot taken at time t
// e.g. "regstore-2026-10-19_15-04-05.txt.zst"
func SnapshotName(t time.Time, compression string) string {
	return "regstore-" + t.UTC().Format("2006-01-02_15-04-05") + ".txt" + Ext(compression)
}

// Snapshot writes all entries of s to dstPath, one stored line per entry,
// compressed with a given compression. The file is written atomically.
// Returns number of entries written.
func Snapshot(ctx context.Context, s recstore.Store, dstPath string, compression string) (int, error) {
	entries, err := s.Entries(ctx)
	if err != nil {
		return 0, err
	}
	if dir := filepath.Dir(dstPath); dir != "" {
		if err = os.MkdirAll(dir, 0755); err != nil {
			return 0, err
		}
	}
	timeStart := time.Now()
	err = writeFileAtomically(dstPath, func(f *os.File) error {
		bw := bufio.NewWriter(f)
		cw, err := newCompressWriter(bw, compression)
		if err != nil {
			return err
		}
		for i := range entries {
			if _, err = cw.Write([]byte(recstore.MarshalLine(&entries[i]))); err != nil {
				cw.Close()
				return err
			}
		}
		if err = cw.Close(); err != nil {
			return err
		}
		return bw.Flush()
	})
	if err != nil {
		log.Errorf("Snapshot to '%s' failed: %s\n", dstPath, err)
		return 0, fmt.Errorf("failed to write snapshot '%s': %w", dstPath, err)
	}
	log.EventWithDuration("snapshot", time.Since(timeStart), "path", dstPath, "entries", len(entries))
	return len(entries), nil
}

// ReadSnapshot reads entries from a snapshot written by Snapshot.
// Compression is inferred from the file extension.
func ReadSnapshot(path string) ([]recstore.Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	d, err := readAllDecompressed(bufio.NewReader(f), CompressionFromPath(path))
	if err != nil {
		return nil, fmt.Errorf("failed to decompress '%s': %w", path, err)
	}
	var res []recstore.Entry
	scanner := bufio.NewScanner(bytes.NewReader(d))
	// quoted fields can make lines long
	scanner.Buffer(nil, 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var e recstore.Entry
		if err = recstore.ParseLine(line, &e); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		res = append(res, e)
	}
	if err = scanner.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// Restore saves every entry of a snapshot into s.
// Returns number of entries restored.
func Restore(ctx context.Context, path string, s recstore.Store) (int, error) {
	entries, err := ReadSnapshot(path)
	if err != nil {
		return 0, err
	}
	for i, e := range entries {
		if err = s.Save(ctx, e.Record, e.Key); err != nil {
			return i, fmt.Errorf("restoring entry %d: %w", i, err)
		}
	}
	return len(entries), nil
}
