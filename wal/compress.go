package wal

import (
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
)

const compressedSuffix = ".zst"

// compressSegment rewrites a sealed segment as <path>.zst and removes the
// plain file. Segment names keep their .log infix, so lexicographic ordering
// across plain and compressed segments is unchanged.
func compressSegment(path string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(path + compressedSuffix)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(dst)
	if err != nil {
		dst.Close()
		return err
	}
	if _, err := io.Copy(enc, src); err != nil {
		enc.Close()
		dst.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		dst.Close()
		return err
	}
	if err := dst.Sync(); err != nil {
		dst.Close()
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}
	return os.Remove(path)
}

// openSegment opens a segment for replay, transparently decompressing
// .zst-archived files.
func openSegment(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, compressedSuffix) {
		return f, nil
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &decodedSegment{dec: dec, f: f}, nil
}

type decodedSegment struct {
	dec *zstd.Decoder
	f   *os.File
}

func (d *decodedSegment) Read(p []byte) (int, error) { return d.dec.Read(p) }

func (d *decodedSegment) Close() error {
	d.dec.Close()
	return d.f.Close()
}
