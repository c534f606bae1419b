package dataset

import (
	"context"
	"strings"

	"github.com/apache/arrow/go/v10/arrow"
	"github.com/pkg/errors"
	"github.com/thanos-io/objstore"
	"golang.org/x/exp/slices"

	"fpetkovski/parquet-scan/iterator"
)

var ErrEmptyDataset = errors.New("dataset has no fragments")

// Dataset is a collection of fragments sharing a schema.
type Dataset interface {
	// Schema is the schema of the rows of the dataset, including partition
	// fields.
	Schema(ctx context.Context) (*arrow.Schema, error)
	// Fragments returns the fragments of the dataset in a stable order.
	Fragments(ctx context.Context) (iterator.Iterator[Fragment], error)
}

type InMemoryDataset struct {
	schema    *arrow.Schema
	fragments []Fragment
}

func NewInMemoryDataset(schema *arrow.Schema, fragments ...Fragment) *InMemoryDataset {
	return &InMemoryDataset{schema: schema, fragments: fragments}
}

func (d *InMemoryDataset) Schema(context.Context) (*arrow.Schema, error) { return d.schema, nil }

func (d *InMemoryDataset) Fragments(context.Context) (iterator.Iterator[Fragment], error) {
	return iterator.FromSlice(slices.Clone(d.fragments)...), nil
}

// BucketDataset is every parquet object under a prefix of a bucket.
type BucketDataset struct {
	bucket       objstore.BucketReader
	prefix       string
	partitioning Partitioning

	// ReadChunkSize is passed on to every fragment.
	ReadChunkSize int
}

// NewBucketDataset creates a dataset from the objects under prefix.
// partitioning may be nil, in which case fragments carry no partition
// expression.
func NewBucketDataset(bucket objstore.BucketReader, prefix string, partitioning Partitioning) *BucketDataset {
	return &BucketDataset{
		bucket:       bucket,
		prefix:       prefix,
		partitioning: partitioning,
	}
}

// Fragments lists the objects once and parses the partition of each object
// only when its fragment is pulled. An unparsable path becomes an error
// element for that object alone.
func (d *BucketDataset) Fragments(ctx context.Context) (iterator.Iterator[Fragment], error) {
	names, err := d.objects(ctx)
	if err != nil {
		return nil, err
	}

	return iterator.MaybeMap(iterator.FromSlice(names...), func(name string) (Fragment, error) {
		return d.Fragment(ctx, name)
	}), nil
}

func (d *BucketDataset) Schema(ctx context.Context) (*arrow.Schema, error) {
	names, err := d.objects(ctx)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, errors.Wrapf(ErrEmptyDataset, "no parquet objects under %q", d.prefix)
	}

	fragment, err := d.Fragment(ctx, names[0])
	if err != nil {
		return nil, err
	}
	physical, err := fragment.PhysicalSchema()
	if err != nil {
		return nil, err
	}
	if d.partitioning == nil {
		return physical, nil
	}

	fields := slices.Clone(physical.Fields())
	for _, field := range d.partitioning.Schema().Fields() {
		if len(physical.FieldIndices(field.Name)) == 0 {
			field.Nullable = true
			fields = append(fields, field)
		}
	}
	return arrow.NewSchema(fields, nil), nil
}

// Fragment returns the fragment of the object name with its partition
// expression parsed from the path.
func (d *BucketDataset) Fragment(ctx context.Context, name string) (*ParquetFragment, error) {
	fragment := NewParquetFragment(ctx, d.bucket, name, nil)
	fragment.ReadChunkSize = d.ReadChunkSize
	if d.partitioning == nil {
		return fragment, nil
	}

	relative := strings.TrimPrefix(strings.TrimPrefix(name, d.prefix), "/")
	partition, err := d.partitioning.Parse(relative)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing partition of %s", name)
	}
	fragment.partition = partition
	return fragment, nil
}

func (d *BucketDataset) objects(ctx context.Context) ([]string, error) {
	var names []string
	err := d.bucket.Iter(ctx, d.prefix, func(name string) error {
		if strings.HasSuffix(name, ".parquet") {
			names = append(names, name)
		}
		return nil
	}, objstore.WithRecursiveIter)
	if err != nil {
		return nil, errors.Wrapf(err, "listing objects under %q", d.prefix)
	}

	slices.Sort(names)
	return names, nil
}
