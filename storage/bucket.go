package storage

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"github.com/thanos-io/objstore"
)

// BucketReader reads a single object with ranged requests. ReadAt is safe
// for concurrent use; Seek is not.
type BucketReader struct {
	ctx    context.Context
	name   string
	bucket objstore.BucketReader

	size     int64
	position int64
}

func NewBucketReader(ctx context.Context, name string, bucket objstore.BucketReader) (*BucketReader, error) {
	attrs, err := bucket.Attributes(ctx, name)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get attributes for %s", name)
	}

	return NewSizedBucketReader(ctx, name, bucket, attrs.Size), nil
}

// NewSizedBucketReader creates a reader for an object whose size is already
// known.
func NewSizedBucketReader(ctx context.Context, name string, bucket objstore.BucketReader, size int64) *BucketReader {
	return &BucketReader{
		ctx:    ctx,
		name:   name,
		bucket: bucket,
		size:   size,
	}
}

func (r *BucketReader) Name() string { return r.name }

func (r *BucketReader) Size() int64 { return r.size }

func (r *BucketReader) ReadAt(p []byte, off int64) (int, error) {
	if off >= r.size {
		return 0, io.EOF
	}
	length := int64(len(p))
	if off+length > r.size {
		length = r.size - off
	}

	rangeReader, err := r.bucket.GetRange(r.ctx, r.name, off, length)
	if err != nil {
		return 0, errors.Wrapf(err, "reading %d bytes at %d from %s", length, off, r.name)
	}
	defer rangeReader.Close()

	n, err := io.ReadFull(rangeReader, p[:length])
	if err != nil {
		return n, err
	}
	if length < int64(len(p)) {
		return n, io.EOF
	}
	return n, nil
}

func (r *BucketReader) Seek(offset int64, whence int) (int64, error) {
	position := r.position
	switch whence {
	case io.SeekStart:
		position = offset
	case io.SeekCurrent:
		position += offset
	case io.SeekEnd:
		position = r.size + offset
	default:
		return 0, errors.New("seek: invalid whence")
	}
	if position < 0 {
		return 0, errors.New("seek: negative position")
	}

	r.position = position
	return r.position, nil
}
