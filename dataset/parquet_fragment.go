package dataset

import (
	"context"
	"io"
	"sync"

	"github.com/apache/arrow/go/v10/arrow"
	"github.com/apache/arrow/go/v10/arrow/memory"
	"github.com/apache/arrow/go/v10/parquet/file"
	"github.com/apache/arrow/go/v10/parquet/metadata"
	"github.com/apache/arrow/go/v10/parquet/pqarrow"
	"github.com/pkg/errors"
	"github.com/thanos-io/objstore"

	"fpetkovski/parquet-scan/expr"
	"fpetkovski/parquet-scan/iterator"
	"fpetkovski/parquet-scan/storage"
)

// ParquetFragment is a single parquet object in a bucket. Every row group
// becomes one scan task.
type ParquetFragment struct {
	ctx       context.Context
	bucket    objstore.BucketReader
	name      string
	partition expr.Expression

	// ReadChunkSize splits ranged reads larger than this many bytes into
	// concurrent requests. Zero disables splitting.
	ReadChunkSize int
}

func NewParquetFragment(ctx context.Context, bucket objstore.BucketReader, name string, partition expr.Expression) *ParquetFragment {
	return &ParquetFragment{
		ctx:       ctx,
		bucket:    bucket,
		name:      name,
		partition: partition,
	}
}

func (f *ParquetFragment) String() string { return f.name }

func (f *ParquetFragment) PartitionExpression() expr.Expression { return f.partition }

// PhysicalSchema returns the arrow schema of the columns stored in the object.
func (f *ParquetFragment) PhysicalSchema() (*arrow.Schema, error) {
	pqReader, err := f.open()
	if err != nil {
		return nil, err
	}
	defer pqReader.Close()

	fileReader, err := pqarrow.NewFileReader(pqReader, pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
	if err != nil {
		return nil, errors.Wrapf(err, "reading arrow schema of %s", f.name)
	}
	return fileReader.Schema()
}

// RowGroupStatistics returns the statistics expression of every row group.
// Row groups without usable statistics have a nil expression.
func (f *ParquetFragment) RowGroupStatistics() ([]expr.Expression, error) {
	pqReader, err := f.open()
	if err != nil {
		return nil, err
	}
	defer pqReader.Close()

	statistics := make([]expr.Expression, pqReader.NumRowGroups())
	for i := range statistics {
		statistics[i] = rowGroupStatistics(pqReader.MetaData(), i)
	}
	return statistics, nil
}

// Scan reads the footer of the object and returns one task per row group.
// Row groups whose column statistics rule out every row matching the filter
// are skipped.
func (f *ParquetFragment) Scan(options *ScanOptions, scanCtx *ScanContext) (iterator.Iterator[ScanTask], error) {
	bucketReader, err := storage.NewBucketReader(f.ctx, f.name, f.bucket)
	if err != nil {
		return nil, err
	}
	pqReader, err := f.openReader(bucketReader)
	if err != nil {
		return nil, err
	}
	defer pqReader.Close()

	columns := columnIndices(pqReader, options.Columns)
	tasks := make([]ScanTask, 0, pqReader.NumRowGroups())
	for i := 0; i < pqReader.NumRowGroups(); i++ {
		if skipRowGroup(options.Filter, f.partition, rowGroupStatistics(pqReader.MetaData(), i)) {
			continue
		}
		tasks = append(tasks, &parquetScanTask{
			fragment: f,
			size:     bucketReader.Size(),
			metadata: pqReader.MetaData(),
			rowGroup: i,
			columns:  columns,
			options:  options,
			context:  scanCtx,
		})
	}
	return iterator.FromSlice(tasks...), nil
}

func (f *ParquetFragment) open() (*file.Reader, error) {
	bucketReader, err := storage.NewBucketReader(f.ctx, f.name, f.bucket)
	if err != nil {
		return nil, err
	}
	return f.openReader(bucketReader)
}

func (f *ParquetFragment) openReader(bucketReader *storage.BucketReader, opts ...file.ReadOption) (*file.Reader, error) {
	var reader storage.ReaderAtSeeker = bucketReader
	if f.ReadChunkSize > 0 {
		reader = storage.NewChunkedReader(bucketReader, f.ReadChunkSize)
	}

	pqReader, err := file.NewParquetReader(reader, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "opening parquet file %s", f.name)
	}
	return pqReader, nil
}

// columnIndices resolves column names to leaf column indices. Names that are
// not stored in the file are skipped.
func columnIndices(pqReader *file.Reader, names []string) []int {
	schema := pqReader.MetaData().Schema
	if names == nil {
		indices := make([]int, schema.NumColumns())
		for i := range indices {
			indices[i] = i
		}
		return indices
	}

	indices := make([]int, 0, len(names))
	for _, name := range names {
		if i := schema.ColumnIndexByName(name); i >= 0 {
			indices = append(indices, i)
		}
	}
	return indices
}

// parquetScanTask reuses the object size and footer read by Scan.
type parquetScanTask struct {
	fragment *ParquetFragment
	size     int64
	metadata *metadata.FileMetaData
	rowGroup int
	columns  []int

	options *ScanOptions
	context *ScanContext
}

func (t *parquetScanTask) Options() *ScanOptions { return t.options }

func (t *parquetScanTask) Context() *ScanContext { return t.context }

func (t *parquetScanTask) Execute() (iterator.Iterator[arrow.Record], error) {
	f := t.fragment
	bucketReader := storage.NewSizedBucketReader(f.ctx, f.name, f.bucket, t.size)
	pqReader, err := f.openReader(bucketReader, file.WithMetadata(t.metadata))
	if err != nil {
		return nil, err
	}

	fileReader, err := pqarrow.NewFileReader(pqReader, pqarrow.ArrowReadProperties{
		BatchSize: t.options.batchSize(),
	}, t.context.pool())
	if err != nil {
		pqReader.Close()
		return nil, errors.Wrapf(err, "reading %s", t.fragment)
	}

	recordReader, err := fileReader.GetRecordReader(t.fragment.ctx, t.columns, []int{t.rowGroup})
	if err != nil {
		pqReader.Close()
		return nil, errors.Wrapf(err, "reading row group %d of %s", t.rowGroup, t.fragment)
	}

	var once sync.Once
	var closeErr error
	return iterator.Func(func() (arrow.Record, error) {
		record, err := recordReader.Read()
		if err == io.EOF || (err == nil && record == nil) {
			return nil, io.EOF
		}
		if err != nil {
			return nil, errors.Wrapf(err, "reading row group %d of %s", t.rowGroup, t.fragment)
		}
		// The reader releases its current record on the next call to Read.
		record.Retain()
		return record, nil
	}, func() error {
		once.Do(func() {
			recordReader.Release()
			closeErr = pqReader.Close()
		})
		return closeErr
	}), nil
}
