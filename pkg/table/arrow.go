package table

import (
	"fmt"
	"strings"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"

	"github.com/logflow/logtables/pkg/attr"
)

// Schema metadata keys. Lists, maps and all-null columns have no faithful
// Arrow type here and travel as strings; their kind is recorded per column.
const (
	metaTable      = "logtables.table"
	metaKindPrefix = "logtables.kind:"
)

// TimestampType is the Arrow type of timestamp columns.
var TimestampType = &arrow.TimestampType{Unit: arrow.Nanosecond, TimeZone: "UTC"}

// ArrowType returns the Arrow type used for a column kind.
func ArrowType(k attr.Kind) arrow.DataType {
	switch k {
	case attr.KindInt:
		return arrow.PrimitiveTypes.Int64
	case attr.KindFloat:
		return arrow.PrimitiveTypes.Float64
	case attr.KindBool:
		return arrow.FixedWidthTypes.Boolean
	case attr.KindTimestamp:
		return TimestampType
	default:
		return arrow.BinaryTypes.String
	}
}

// Schema returns the Arrow schema of t.
func (t *Table) Schema() *arrow.Schema {
	keys := []string{metaTable}
	vals := []string{t.name}
	fields := make([]arrow.Field, len(t.columns))
	for i, c := range t.columns {
		fields[i] = arrow.Field{Name: c.Name, Type: ArrowType(c.Kind), Nullable: true}
		switch c.Kind {
		case attr.KindList, attr.KindMap, attr.KindNull:
			keys = append(keys, metaKindPrefix+c.Name)
			vals = append(vals, c.Kind.String())
		}
	}
	md := arrow.NewMetadata(keys, vals)
	return arrow.NewSchema(fields, &md)
}

// Record converts t into a single Arrow record. The caller releases it.
func (t *Table) Record(mem memory.Allocator) arrow.Record {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	rb := array.NewRecordBuilder(mem, t.Schema())
	defer rb.Release()

	for i, c := range t.columns {
		fb := rb.Field(i)
		fb.Reserve(t.rows)
		for _, v := range c.Values {
			if v.IsNull() {
				fb.AppendNull()
				continue
			}
			switch b := fb.(type) {
			case *array.Int64Builder:
				b.Append(v.Int())
			case *array.Float64Builder:
				b.Append(v.Float())
			case *array.BooleanBuilder:
				b.Append(v.Bool())
			case *array.TimestampBuilder:
				b.Append(arrow.Timestamp(v.Nanos()))
			case *array.StringBuilder:
				if c.Kind == attr.KindList || c.Kind == attr.KindMap {
					b.Append(attr.EncodeTyped(v))
				} else {
					b.Append(v.String())
				}
			}
		}
	}
	return rb.NewRecord()
}

// FromRecord rebuilds a table from a record produced by Record or read back
// from a sink. name overrides the table name stored in the schema when set.
func FromRecord(name string, rec arrow.Record) (*Table, error) {
	return fromChunks(name, rec.Schema(), func(i int) []arrow.Array {
		return []arrow.Array{rec.Column(i)}
	})
}

// FromArrowTable is FromRecord for chunked Arrow tables.
func FromArrowTable(name string, tbl arrow.Table) (*Table, error) {
	return fromChunks(name, tbl.Schema(), func(i int) []arrow.Array {
		return tbl.Column(i).Data().Chunks()
	})
}

// FromArrowTableMetadata is FromArrowTable with the schema metadata supplied
// by the caller, for readers that return a schema without it.
func FromArrowTableMetadata(name string, tbl arrow.Table, md arrow.Metadata) (*Table, error) {
	schema := arrow.NewSchema(tbl.Schema().Fields(), &md)
	return fromChunks(name, schema, func(i int) []arrow.Array {
		return tbl.Column(i).Data().Chunks()
	})
}

func fromChunks(name string, schema *arrow.Schema, chunks func(int) []arrow.Array) (*Table, error) {
	md := schema.Metadata()
	if name == "" {
		if i := md.FindKey(metaTable); i >= 0 {
			name = md.Values()[i]
		}
	}

	cols := make([]*Column, schema.NumFields())
	for i, f := range schema.Fields() {
		declared := attr.KindNull
		hasDeclared := false
		if j := md.FindKey(metaKindPrefix + f.Name); j >= 0 {
			declared, hasDeclared = attr.ParseKind(md.Values()[j])
		}

		col := &Column{Name: f.Name}
		for _, arr := range chunks(i) {
			vals, kind, err := readArray(arr, declared, hasDeclared)
			if err != nil {
				return nil, fmt.Errorf("column %q: %w", f.Name, err)
			}
			col.Values = append(col.Values, vals...)
			col.Kind = kind
		}
		if hasDeclared {
			col.Kind = declared
		} else if col.Values == nil {
			col.Kind = kindOfType(f.Type)
			col.Values = []attr.Value{}
		}
		cols[i] = col
	}
	return New(name, cols)
}

func kindOfType(dt arrow.DataType) attr.Kind {
	switch dt.ID() {
	case arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64, arrow.UINT8, arrow.UINT16, arrow.UINT32:
		return attr.KindInt
	case arrow.FLOAT32, arrow.FLOAT64:
		return attr.KindFloat
	case arrow.BOOL:
		return attr.KindBool
	case arrow.TIMESTAMP, arrow.DATE32, arrow.DATE64:
		return attr.KindTimestamp
	case arrow.NULL:
		return attr.KindNull
	}
	return attr.KindString
}

func readArray(arr arrow.Array, declared attr.Kind, hasDeclared bool) ([]attr.Value, attr.Kind, error) {
	n := arr.Len()
	out := make([]attr.Value, n)
	kind := kindOfType(arr.DataType())

	for i := 0; i < n; i++ {
		if arr.IsNull(i) {
			continue
		}
		switch a := arr.(type) {
		case *array.Int64:
			out[i] = attr.Int(a.Value(i))
		case *array.Int32:
			out[i] = attr.Int(int64(a.Value(i)))
		case *array.Int16:
			out[i] = attr.Int(int64(a.Value(i)))
		case *array.Int8:
			out[i] = attr.Int(int64(a.Value(i)))
		case *array.Uint32:
			out[i] = attr.Int(int64(a.Value(i)))
		case *array.Uint16:
			out[i] = attr.Int(int64(a.Value(i)))
		case *array.Uint8:
			out[i] = attr.Int(int64(a.Value(i)))
		case *array.Float64:
			out[i] = attr.Float(a.Value(i))
		case *array.Float32:
			out[i] = attr.Float(float64(a.Value(i)))
		case *array.Boolean:
			out[i] = attr.Bool(a.Value(i))
		case *array.Timestamp:
			unit := a.DataType().(*arrow.TimestampType).Unit
			out[i] = attr.Timestamp(a.Value(i).ToTime(unit))
		case *array.Date32:
			out[i] = attr.Timestamp(a.Value(i).ToTime())
		case *array.Date64:
			out[i] = attr.Timestamp(a.Value(i).ToTime())
		case *array.String:
			s := a.Value(i)
			if hasDeclared && (declared == attr.KindList || declared == attr.KindMap) {
				v, err := attr.DecodeTyped(s)
				if err != nil {
					return nil, kind, fmt.Errorf("row %d: %w", i, err)
				}
				out[i] = v
			} else {
				out[i] = attr.String(s)
			}
		case *array.LargeString:
			out[i] = attr.String(a.Value(i))
		default:
			return nil, kind, fmt.Errorf("unsupported arrow type %s", strings.ToLower(arr.DataType().Name()))
		}
	}
	return out, kind, nil
}
