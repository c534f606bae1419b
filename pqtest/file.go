// Package pqtest writes parquet fixtures for tests.
package pqtest

import (
	"bytes"
	"context"

	"github.com/segmentio/parquet-go"
	"github.com/thanos-io/objstore"
)

// Row is a measurement as stored in partitioned fixtures. Partition fields
// such as region live in the object path, not in the file.
type Row struct {
	ID    int64   `parquet:"id"`
	Value float64 `parquet:"value"`
}

// Rows returns one row per id with a value of id/2.
func Rows(ids ...int64) []Row {
	rows := make([]Row, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, Row{ID: id, Value: float64(id) / 2})
	}
	return rows
}

// Encode writes rows as a parquet file with one row group per element of
// rowGroups.
func Encode[T any](rowGroups [][]T) ([]byte, error) {
	var buffer bytes.Buffer
	writer := parquet.NewGenericWriter[T](&buffer,
		parquet.PageBufferSize(64),
	)

	for _, rows := range rowGroups {
		if _, err := writer.Write(rows); err != nil {
			return nil, err
		}
		if err := writer.Flush(); err != nil {
			return nil, err
		}
	}

	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

// Upload encodes rowGroups and stores the file in bucket under name.
func Upload[T any](ctx context.Context, bucket objstore.Bucket, name string, rowGroups [][]T) error {
	data, err := Encode(rowGroups)
	if err != nil {
		return err
	}
	return bucket.Upload(ctx, name, bytes.NewReader(data))
}
