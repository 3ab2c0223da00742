package value

import "fmt"

// Column describes one attribute of a Schema: its name, scalar kind, and
// (for vector kinds) its declared dimension. Dim is 0 for non-vector
// columns and for variable-dimension vector columns.
type Column struct {
	Name string
	Type Kind
	Dim  int
}

// Schema is the ordered attribute list attached to a relation at first
// write and validated on every subsequent write.
type Schema struct {
	Columns []Column
}

// Arity returns the number of columns.
func (s Schema) Arity() int { return len(s.Columns) }

// IndexOf returns the column index for name, or -1.
func (s Schema) IndexOf(name string) int {
	for i, c := range s.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Validate checks a tuple's arity, per-column kind, and declared vector
// dimensions against the schema.
func (s Schema) Validate(t Tuple) error {
	if t.Arity() != s.Arity() {
		return &SchemaArityError{Expected: s.Arity(), Got: t.Arity()}
	}
	for i, c := range s.Columns {
		v := t.Values[i]
		if v.IsNull() {
			continue
		}
		if v.Kind() != c.Type {
			return &SchemaTypeError{Column: c.Name, Expected: c.Type, Got: v.Kind()}
		}
		if c.Dim > 0 && (c.Type == KindVector || c.Type == KindVectorInt8) {
			if v.Dim() != c.Dim {
				return &VectorDimensionError{Column: c.Name, Expected: c.Dim, Got: v.Dim()}
			}
		}
	}
	return nil
}

// SchemaArityError reports an arity mismatch between a tuple and a schema.
type SchemaArityError struct {
	Expected, Got int
}

func (e *SchemaArityError) Error() string {
	return fmt.Sprintf("schema violation: expected arity %d, got %d", e.Expected, e.Got)
}

// SchemaTypeError reports a column-kind mismatch.
type SchemaTypeError struct {
	Column         string
	Expected, Got  Kind
}

func (e *SchemaTypeError) Error() string {
	return fmt.Sprintf("schema violation: column %q expected %s, got %s", e.Column, e.Expected, e.Got)
}

// VectorDimensionError reports a declared-dimension violation.
type VectorDimensionError struct {
	Column        string
	Expected, Got int
}

func (e *VectorDimensionError) Error() string {
	return fmt.Sprintf("vector dimension mismatch on column %q: expected %d, got %d", e.Column, e.Expected, e.Got)
}

// Merge returns a schema identical to s but with extra columns appended,
// used by Join/Compute output-schema propagation. It does not mutate s.
func (s Schema) Merge(extra []Column) Schema {
	cols := make([]Column, 0, len(s.Columns)+len(extra))
	cols = append(cols, s.Columns...)
	cols = append(cols, extra...)
	return Schema{Columns: cols}
}

// Project returns the schema restricted to the given column indices, in
// order — the schema-level counterpart of Tuple.Project.
func (s Schema) Project(cols []int) Schema {
	out := make([]Column, len(cols))
	for i, c := range cols {
		out[i] = s.Columns[c]
	}
	return Schema{Columns: out}
}
