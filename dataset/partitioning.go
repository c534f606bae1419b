package dataset

import (
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/apache/arrow/go/v10/arrow"
	"github.com/pkg/errors"

	"fpetkovski/parquet-scan/expr"
)

const hiveNullValue = "__HIVE_DEFAULT_PARTITION__"

// Partitioning derives a partition expression from the path of a file
// relative to the dataset root.
type Partitioning interface {
	// Schema holds the types of the partition fields.
	Schema() *arrow.Schema
	// Parse returns the conjunction of field == value bindings encoded in the
	// directories of filePath, or nil if there are none.
	Parse(filePath string) (expr.Expression, error)
}

// HivePartitioning parses key=value directory names, e.g.
// "year=2020/region=west/part-0.parquet". Keys outside the schema are ignored.
type HivePartitioning struct {
	schema *arrow.Schema
}

func NewHivePartitioning(schema *arrow.Schema) *HivePartitioning {
	return &HivePartitioning{schema: schema}
}

func (p *HivePartitioning) Schema() *arrow.Schema { return p.schema }

func (p *HivePartitioning) Parse(filePath string) (expr.Expression, error) {
	var conjuncts []expr.Expression
	for _, segment := range directories(filePath) {
		key, value, ok := strings.Cut(segment, "=")
		if !ok {
			continue
		}
		indices := p.schema.FieldIndices(key)
		if len(indices) == 0 || value == hiveNullValue {
			continue
		}
		unescaped, err := url.PathUnescape(value)
		if err != nil {
			return nil, errors.Wrapf(err, "partition segment %q", segment)
		}
		binding, err := bind(p.schema.Field(indices[0]), unescaped)
		if err != nil {
			return nil, err
		}
		conjuncts = append(conjuncts, binding)
	}
	return conjunction(conjuncts), nil
}

// DirectoryPartitioning assigns directory names to the schema fields in
// order, e.g. "2020/west/part-0.parquet" for the fields year and region.
type DirectoryPartitioning struct {
	schema *arrow.Schema
}

func NewDirectoryPartitioning(schema *arrow.Schema) *DirectoryPartitioning {
	return &DirectoryPartitioning{schema: schema}
}

func (p *DirectoryPartitioning) Schema() *arrow.Schema { return p.schema }

func (p *DirectoryPartitioning) Parse(filePath string) (expr.Expression, error) {
	var conjuncts []expr.Expression
	for i, segment := range directories(filePath) {
		if i >= len(p.schema.Fields()) {
			break
		}
		binding, err := bind(p.schema.Field(i), segment)
		if err != nil {
			return nil, err
		}
		conjuncts = append(conjuncts, binding)
	}
	return conjunction(conjuncts), nil
}

func directories(filePath string) []string {
	dir := path.Dir(path.Clean("/" + filePath))
	dir = strings.Trim(dir, "/")
	if dir == "" {
		return nil
	}
	return strings.Split(dir, "/")
}

func conjunction(conjuncts []expr.Expression) expr.Expression {
	if len(conjuncts) == 0 {
		return nil
	}
	return expr.And(conjuncts...)
}

func bind(field arrow.Field, value string) (expr.Expression, error) {
	literal, err := parseLiteral(field.Type, value)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing partition value %q of field %q", value, field.Name)
	}
	return expr.Eq(expr.Field(field.Name), literal), nil
}

func parseLiteral(dt arrow.DataType, value string) (*expr.Literal, error) {
	switch dt.ID() {
	case arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64:
		v, err := strconv.ParseInt(value, 10, bitWidth(dt))
		if err != nil {
			return nil, err
		}
		return expr.Int(v), nil
	case arrow.UINT8, arrow.UINT16, arrow.UINT32:
		v, err := strconv.ParseUint(value, 10, bitWidth(dt))
		if err != nil {
			return nil, err
		}
		return expr.Int(int64(v)), nil
	case arrow.FLOAT32, arrow.FLOAT64:
		v, err := strconv.ParseFloat(value, bitWidth(dt))
		if err != nil {
			return nil, err
		}
		return expr.Float(v), nil
	case arrow.BOOL:
		v, err := strconv.ParseBool(value)
		if err != nil {
			return nil, err
		}
		return expr.Bool(v), nil
	case arrow.STRING, arrow.BINARY:
		return expr.String(value), nil
	default:
		return nil, errors.Errorf("unsupported partition type %s", dt)
	}
}

func bitWidth(dt arrow.DataType) int {
	return dt.(arrow.FixedWidthDataType).BitWidth()
}
