package storage

import (
	"io"

	"golang.org/x/sync/errgroup"
)

// ReaderAtSeeker is what parquet readers need from their input.
type ReaderAtSeeker interface {
	io.ReaderAt
	io.Seeker
}

// ChunkedReader splits large reads into chunks of at most maxReadSize bytes
// which are fetched concurrently.
type ChunkedReader struct {
	ReaderAtSeeker
	maxReadSize      int
	concurrencyLimit int
}

func NewChunkedReader(reader ReaderAtSeeker, maxReadSize int) *ChunkedReader {
	return &ChunkedReader{
		ReaderAtSeeker:   reader,
		maxReadSize:      maxReadSize,
		concurrencyLimit: 16,
	}
}

func (r *ChunkedReader) ReadAt(p []byte, off int64) (int, error) {
	if r.maxReadSize <= 0 || len(p) <= r.maxReadSize {
		return r.ReaderAtSeeker.ReadAt(p, off)
	}

	numChunks := (len(p) + r.maxReadSize - 1) / r.maxReadSize
	read := make([]int, numChunks)
	errs := make([]error, numChunks)

	var g errgroup.Group
	g.SetLimit(r.concurrencyLimit)
	for i := 0; i < numChunks; i++ {
		i := i
		from := i * r.maxReadSize
		to := minInt(from+r.maxReadSize, len(p))
		g.Go(func() error {
			read[i], errs[i] = r.ReaderAtSeeker.ReadAt(p[from:to], off+int64(from))
			return nil
		})
	}
	_ = g.Wait()

	// Bytes are only reported up to the first short or failed chunk.
	var n int
	for i := 0; i < numChunks; i++ {
		n += read[i]
		if errs[i] != nil {
			return n, errs[i]
		}
	}
	return n, nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
