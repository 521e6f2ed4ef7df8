package backup

import (
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
)

const (
	CompressionZstd   = "zstd"
	CompressionBrotli = "br"
	CompressionNone   = "none"
)

// Ext returns file extension used for a given compression
func Ext(compression string) string {
	switch compression {
	case CompressionZstd:
		return ".zst"
	case CompressionBrotli:
		return ".br"
	}
	return ""
}

// CompressionFromPath guesses compression from file extension
func CompressionFromPath(path string) string {
	switch {
	case strings.HasSuffix(path, ".zst"):
		return CompressionZstd
	case strings.HasSuffix(path, ".br"):
		return CompressionBrotli
	}
	return CompressionNone
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error {
	return nil
}

func newCompressWriter(w io.Writer, compression string) (io.WriteCloser, error) {
	switch compression {
	case CompressionZstd:
		// zstd.SpeedBestCompression is slower but snapshots are small
		return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	case CompressionBrotli:
		return brotli.NewWriterLevel(w, brotli.BestCompression), nil
	case CompressionNone, "":
		return nopWriteCloser{w}, nil
	}
	return nil, fmt.Errorf("unknown compression '%s'", compression)
}

func readAllDecompressed(r io.Reader, compression string) ([]byte, error) {
	switch compression {
	case CompressionZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return io.ReadAll(zr)
	case CompressionBrotli:
		return io.ReadAll(brotli.NewReader(r))
	case CompressionNone, "":
		return io.ReadAll(r)
	}
	return nil, fmt.Errorf("unknown compression '%s'", compression)
}
