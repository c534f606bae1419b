// Package config holds the yaml configuration of a scan.
package config

import (
	"bytes"
	"os"

	"github.com/apache/arrow/go/v10/arrow"
	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/thanos-io/objstore"
	"gopkg.in/yaml.v3"

	"fpetkovski/parquet-scan/dataset"
	"fpetkovski/parquet-scan/expr"
	"fpetkovski/parquet-scan/scanner"
)

const (
	PartitioningHive      = "hive"
	PartitioningDirectory = "directory"
)

type ScanConfig struct {
	// Bucket is passed through to the objstore client, e.g.
	// {type: FILESYSTEM, config: {directory: ./data}}.
	Bucket       map[string]interface{} `yaml:"bucket"`
	Prefix       string                 `yaml:"prefix"`
	Partitioning *PartitioningConfig    `yaml:"partitioning"`

	Columns []string          `yaml:"columns"`
	Filter  []ConditionConfig `yaml:"filter"`

	BatchSize      int64 `yaml:"batch_size"`
	Concurrency    int   `yaml:"concurrency"`
	Readahead      int   `yaml:"readahead"`
	ReadChunkSize  int   `yaml:"read_chunk_size"`
	TolerateErrors bool  `yaml:"tolerate_errors"`
}

type PartitioningConfig struct {
	Flavor string        `yaml:"flavor"`
	Fields []FieldConfig `yaml:"fields"`
}

type FieldConfig struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// ConditionConfig is a single field op value comparison. Conditions of a
// filter are combined with and.
type ConditionConfig struct {
	Field string      `yaml:"field"`
	Op    string      `yaml:"op"`
	Value interface{} `yaml:"value"`
}

var fieldTypes = map[string]arrow.DataType{
	"int8":    arrow.PrimitiveTypes.Int8,
	"int16":   arrow.PrimitiveTypes.Int16,
	"int32":   arrow.PrimitiveTypes.Int32,
	"int64":   arrow.PrimitiveTypes.Int64,
	"uint8":   arrow.PrimitiveTypes.Uint8,
	"uint16":  arrow.PrimitiveTypes.Uint16,
	"uint32":  arrow.PrimitiveTypes.Uint32,
	"float32": arrow.PrimitiveTypes.Float32,
	"float64": arrow.PrimitiveTypes.Float64,
	"string":  arrow.BinaryTypes.String,
	"bool":    arrow.FixedWidthTypes.Boolean,
}

func Load(path string) (*ScanConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config file %s", path)
	}
	return Parse(data)
}

// Parse decodes and validates a configuration. Unknown keys are rejected.
func Parse(data []byte) (*ScanConfig, error) {
	cfg := &ScanConfig{}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return nil, errors.Wrap(err, "parsing config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *ScanConfig) Validate() error {
	if len(c.Bucket) == 0 {
		return errors.New("bucket config is required")
	}
	if c.BatchSize < 0 {
		return errors.Errorf("invalid batch size %d", c.BatchSize)
	}
	if c.Concurrency < 0 {
		return errors.Errorf("invalid concurrency %d", c.Concurrency)
	}
	if _, err := c.PartitioningScheme(); err != nil {
		return err
	}
	if _, err := c.FilterExpression(); err != nil {
		return err
	}
	return nil
}

// BucketConfig returns the bucket configuration in the format expected by
// the objstore client.
func (c *ScanConfig) BucketConfig() ([]byte, error) {
	return yaml.Marshal(c.Bucket)
}

// PartitioningScheme returns nil if no partitioning is configured.
func (c *ScanConfig) PartitioningScheme() (dataset.Partitioning, error) {
	if c.Partitioning == nil {
		return nil, nil
	}

	fields := make([]arrow.Field, 0, len(c.Partitioning.Fields))
	for _, f := range c.Partitioning.Fields {
		dt, ok := fieldTypes[f.Type]
		if !ok {
			return nil, errors.Errorf("unsupported type %q of partition field %q", f.Type, f.Name)
		}
		fields = append(fields, arrow.Field{Name: f.Name, Type: dt, Nullable: true})
	}
	schema := arrow.NewSchema(fields, nil)

	switch c.Partitioning.Flavor {
	case PartitioningHive, "":
		return dataset.NewHivePartitioning(schema), nil
	case PartitioningDirectory:
		return dataset.NewDirectoryPartitioning(schema), nil
	default:
		return nil, errors.Errorf("unknown partitioning flavor %q", c.Partitioning.Flavor)
	}
}

// FilterExpression is the conjunction of the configured conditions.
func (c *ScanConfig) FilterExpression() (expr.Expression, error) {
	conditions := make([]expr.Expression, 0, len(c.Filter))
	for i, cond := range c.Filter {
		if cond.Field == "" {
			return nil, errors.Errorf("filter condition %d has no field", i)
		}
		op, ok := expr.ParseCompareOp(cond.Op)
		if !ok {
			return nil, errors.Errorf("filter condition %d has unknown operator %q", i, cond.Op)
		}
		value, err := expr.NewLiteral(cond.Value)
		if err != nil {
			return nil, errors.Wrapf(err, "filter condition %d", i)
		}
		conditions = append(conditions, expr.Compare(op, expr.Field(cond.Field), value))
	}
	return expr.And(conditions...), nil
}

// Dataset creates the dataset described by the configuration over bucket.
func (c *ScanConfig) Dataset(bucket objstore.BucketReader) (*dataset.BucketDataset, error) {
	partitioning, err := c.PartitioningScheme()
	if err != nil {
		return nil, err
	}
	ds := dataset.NewBucketDataset(bucket, c.Prefix, partitioning)
	ds.ReadChunkSize = c.ReadChunkSize
	return ds, nil
}

// Apply configures builder with the projection, filter and execution
// settings.
func (c *ScanConfig) Apply(builder *scanner.Builder, logger log.Logger, reg prometheus.Registerer) (*scanner.Builder, error) {
	filter, err := c.FilterExpression()
	if err != nil {
		return nil, err
	}
	builder.Filter(filter)
	if len(c.Columns) > 0 {
		builder.Project(c.Columns...)
	}
	if c.BatchSize > 0 {
		builder.BatchSize(c.BatchSize)
	}
	return builder.Executor(
		scanner.WithLogger(logger),
		scanner.WithRegisterer(reg),
		scanner.WithConcurrency(c.Concurrency),
		scanner.WithReadahead(c.Readahead),
		scanner.WithTolerateErrors(c.TolerateErrors),
	), nil
}
