package persist

import (
	"fmt"
	"reflect"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"

	"codenerd/internal/value"
)

// batchWriterParallelism is the worker count xitongsys/parquet-go uses
// internally to encode row groups; a shard's buffer is small enough
// (bounded by buffer_size) that more workers would not help.
const batchWriterParallelism = 4

// rowType builds, via reflection, the Go struct type used as both the
// Parquet schema descriptor and the per-row value for one shard's
// batch files: one field per schema column (typed and tagged to match
// the column's value.Kind), plus the two TVC bookkeeping columns every
// batch carries, __time and __diff.
//
// A batch's schema is fixed once at first write for a shard (the
// relation's declared schema never changes underneath it), so building
// the struct type per WriteBatch/ReadBatch call costs nothing a cached
// schema wouldn't also pay, and keeps this package free of any
// generated-code step.
func rowType(schema value.Schema) (reflect.Type, error) {
	fields := make([]reflect.StructField, 0, len(schema.Columns)+2)
	for i, col := range schema.Columns {
		goType, tag, err := parquetFieldFor(col)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", col.Name, err)
		}
		fields = append(fields, reflect.StructField{
			Name: fmt.Sprintf("C%d", i),
			Type: goType,
			Tag:  reflect.StructTag(`parquet:"name=` + col.Name + `, ` + tag + `"`),
		})
	}
	fields = append(fields,
		reflect.StructField{Name: "Time", Type: reflect.TypeOf(int64(0)), Tag: `parquet:"name=__time, type=INT64, convertedtype=UINT_64"`},
		reflect.StructField{Name: "Diff", Type: reflect.TypeOf(int64(0)), Tag: `parquet:"name=__diff, type=INT64"`},
	)
	return reflect.StructOf(fields), nil
}

func parquetFieldFor(col value.Column) (reflect.Type, string, error) {
	switch col.Type {
	case value.KindInt32:
		return reflect.TypeOf(int32(0)), "type=INT32", nil
	case value.KindInt64, value.KindTimestamp:
		return reflect.TypeOf(int64(0)), "type=INT64", nil
	case value.KindFloat64:
		return reflect.TypeOf(float64(0)), "type=DOUBLE", nil
	case value.KindString:
		return reflect.TypeOf(""), "type=BYTE_ARRAY, convertedtype=UTF8", nil
	case value.KindBool:
		return reflect.TypeOf(false), "type=BOOLEAN", nil
	case value.KindVector:
		return reflect.TypeOf([]float32{}), "type=FLOAT, repetitiontype=REPEATED", nil
	case value.KindVectorInt8:
		return reflect.TypeOf([]int32{}), "type=INT32, repetitiontype=REPEATED", nil
	case value.KindNull:
		// A shard's declared schema is fixed before any batch is
		// written, so a live column should never resolve to
		// KindNull; fall back to a plain string column rather than
		// reject the batch outright.
		return reflect.TypeOf(""), "type=BYTE_ARRAY, convertedtype=UTF8", nil
	default:
		return nil, "", fmt.Errorf("unsupported column kind %s", col.Type)
	}
}

func setColumn(row reflect.Value, idx int, col value.Column, v value.Value) error {
	field := row.Field(idx)
	if v.IsNull() {
		return nil // zero value for the Go field stands in for null
	}
	switch col.Type {
	case value.KindInt32:
		n, _ := v.AsInt64()
		field.SetInt(n)
	case value.KindInt64, value.KindTimestamp:
		n, _ := v.AsInt64()
		field.SetInt(n)
	case value.KindFloat64:
		f, _ := v.AsFloat64()
		field.SetFloat(f)
	case value.KindString:
		s, _ := v.AsString()
		field.SetString(s)
	case value.KindBool:
		b, _ := v.AsBool()
		field.SetBool(b)
	case value.KindVector:
		vec, _ := v.AsVector()
		field.Set(reflect.ValueOf(append([]float32(nil), vec...)))
	case value.KindVectorInt8:
		vi8, _ := v.AsVectorInt8()
		widened := make([]int32, len(vi8))
		for i, b := range vi8 {
			widened[i] = int32(b)
		}
		field.Set(reflect.ValueOf(widened))
	default:
		s, _ := v.AsString()
		field.SetString(s)
	}
	return nil
}

func readColumn(row reflect.Value, idx int, col value.Column) value.Value {
	field := row.Field(idx)
	switch col.Type {
	case value.KindInt32:
		return value.Int32(int32(field.Int()))
	case value.KindInt64:
		return value.Int64(field.Int())
	case value.KindTimestamp:
		return value.TimestampMs(field.Int())
	case value.KindFloat64:
		return value.Float64(field.Float())
	case value.KindString:
		return value.String(field.String())
	case value.KindBool:
		return value.Bool(field.Bool())
	case value.KindVector:
		return value.Vector(field.Interface().([]float32))
	case value.KindVectorInt8:
		wide := field.Interface().([]int32)
		narrow := make([]int8, len(wide))
		for i, n := range wide {
			narrow[i] = int8(n)
		}
		return value.VectorInt8(narrow)
	default:
		return value.String(field.String())
	}
}

// WriteBatch consolidates updates and writes them to a new
// snappy-compressed Parquet file at path, with one physical column per
// schema column plus __time/__diff.
func WriteBatch(path string, schema value.Schema, updates []Update) error {
	rt, err := rowType(schema)
	if err != nil {
		return err
	}
	consolidated := Consolidate(updates)

	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("creating batch file %s: %w", path, err)
	}
	defer fw.Close()

	pw, err := writer.NewParquetWriter(fw, reflect.New(rt).Interface(), batchWriterParallelism)
	if err != nil {
		return fmt.Errorf("creating parquet writer for %s: %w", path, err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, u := range consolidated {
		row := reflect.New(rt).Elem()
		for i, col := range schema.Columns {
			if err := setColumn(row, i, col, u.Tuple.Values[i]); err != nil {
				return fmt.Errorf("encoding batch row: %w", err)
			}
		}
		row.FieldByName("Time").SetInt(int64(u.Time))
		row.FieldByName("Diff").SetInt(u.Diff)
		if err := pw.Write(row.Interface()); err != nil {
			return fmt.Errorf("writing batch row: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("finalizing batch file %s: %w", path, err)
	}
	return nil
}

// ReadBatch reads every update back out of the Parquet file at path,
// interpreted against schema.
func ReadBatch(path string, schema value.Schema) ([]Update, error) {
	rt, err := rowType(schema)
	if err != nil {
		return nil, err
	}

	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening batch file %s: %w", path, err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, reflect.New(rt).Interface(), batchWriterParallelism)
	if err != nil {
		return nil, fmt.Errorf("creating parquet reader for %s: %w", path, err)
	}
	defer pr.ReadStop()

	numRows := int(pr.GetNumRows())
	sliceVal := reflect.MakeSlice(reflect.SliceOf(rt), numRows, numRows)
	dst := reflect.New(sliceVal.Type())
	dst.Elem().Set(sliceVal)
	if err := pr.Read(dst.Interface()); err != nil {
		return nil, fmt.Errorf("reading batch file %s: %w", path, err)
	}

	rows := dst.Elem()
	out := make([]Update, numRows)
	for i := 0; i < numRows; i++ {
		row := rows.Index(i)
		values := make([]value.Value, len(schema.Columns))
		for c, col := range schema.Columns {
			values[c] = readColumn(row, c, col)
		}
		out[i] = Update{
			Tuple: value.Tuple{Values: values},
			Time:  uint64(row.FieldByName("Time").Int()),
			Diff:  row.FieldByName("Diff").Int(),
		}
	}
	return out, nil
}
