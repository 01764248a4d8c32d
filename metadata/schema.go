package metadata

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"
)

var (
	// ErrSchemaMismatch is returned when a record does not conform to a schema.
	ErrSchemaMismatch = errors.New("metadata: record does not match schema")

	// ErrInvalidColumn is returned for malformed column definitions.
	ErrInvalidColumn = errors.New("metadata: invalid column")
)

// FieldError describes why a single field failed validation.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("metadata: field %q: %s", e.Field, e.Reason)
}

// Unwrap returns ErrSchemaMismatch.
func (e *FieldError) Unwrap() error { return ErrSchemaMismatch }

// ColumnType is the storage type of a table column.
type ColumnType uint8

const (
	ColInvalid ColumnType = iota
	ColBool
	ColInt8
	ColInt16
	ColInt32
	ColInt64
	ColUint8
	ColUint16
	ColUint32
	ColUint64
	ColFloat32
	ColFloat64
	ColString
)

var columnTypeNames = [...]string{
	ColInvalid: "invalid",
	ColBool:    "bool",
	ColInt8:    "int8",
	ColInt16:   "int16",
	ColInt32:   "int32",
	ColInt64:   "int64",
	ColUint8:   "uint8",
	ColUint16:  "uint16",
	ColUint32:  "uint32",
	ColUint64:  "uint64",
	ColFloat32: "float32",
	ColFloat64: "float64",
	ColString:  "string",
}

func (t ColumnType) String() string {
	if int(t) < len(columnTypeNames) {
		return columnTypeNames[t]
	}
	return "invalid"
}

func (t ColumnType) isInt() bool  { return t >= ColInt8 && t <= ColInt64 }
func (t ColumnType) isUint() bool { return t >= ColUint8 && t <= ColUint64 }

// Column describes one fixed-width column. Size is the maximum number of
// bytes for string columns and ignored otherwise.
type Column struct {
	Type ColumnType
	Size int
}

// BoolCol returns a boolean column.
func BoolCol() Column { return Column{Type: ColBool} }

// Int8Col returns an int8 column.
func Int8Col() Column { return Column{Type: ColInt8} }

// Int16Col returns an int16 column.
func Int16Col() Column { return Column{Type: ColInt16} }

// Int32Col returns an int32 column.
func Int32Col() Column { return Column{Type: ColInt32} }

// Int64Col returns an int64 column.
func Int64Col() Column { return Column{Type: ColInt64} }

// Uint8Col returns a uint8 column.
func Uint8Col() Column { return Column{Type: ColUint8} }

// Uint16Col returns a uint16 column.
func Uint16Col() Column { return Column{Type: ColUint16} }

// Uint32Col returns a uint32 column.
func Uint32Col() Column { return Column{Type: ColUint32} }

// Uint64Col returns a uint64 column. Integer values are carried as int64,
// so the column holds 0 through math.MaxInt64; larger values are rejected
// with ErrSchemaMismatch.
func Uint64Col() Column { return Column{Type: ColUint64} }

// Float32Col returns a float32 column.
func Float32Col() Column { return Column{Type: ColFloat32} }

// Float64Col returns a float64 column.
func Float64Col() Column { return Column{Type: ColFloat64} }

// StringCol returns a fixed-width byte string column holding at most maxBytes.
func StringCol(maxBytes int) Column { return Column{Type: ColString, Size: maxBytes} }

// Width returns the number of bytes the column occupies in a row.
func (c Column) Width() int {
	switch c.Type {
	case ColBool, ColInt8, ColUint8:
		return 1
	case ColInt16, ColUint16:
		return 2
	case ColInt32, ColUint32, ColFloat32:
		return 4
	case ColInt64, ColUint64, ColFloat64:
		return 8
	case ColString:
		return c.Size
	default:
		return 0
	}
}

// Valid reports whether the column can be stored.
func (c Column) Valid() bool {
	if c.Type == ColString {
		return c.Size > 0
	}
	return c.Type > ColInvalid && c.Type < ColString
}

// String renders the column as "int32" or "string(20)".
func (c Column) String() string {
	if c.Type == ColString {
		return "string(" + strconv.Itoa(c.Size) + ")"
	}
	return c.Type.String()
}

// ParseColumn parses the form produced by Column.String.
func ParseColumn(s string) (Column, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if rest, ok := strings.CutPrefix(s, "string("); ok {
		n, err := strconv.Atoi(strings.TrimSuffix(rest, ")"))
		if err != nil || !strings.HasSuffix(rest, ")") || n <= 0 {
			return Column{}, fmt.Errorf("%w: %q", ErrInvalidColumn, s)
		}
		return StringCol(n), nil
	}
	for t := ColBool; t < ColString; t++ {
		if columnTypeNames[t] == s {
			return Column{Type: t}, nil
		}
	}
	return Column{}, fmt.Errorf("%w: %q", ErrInvalidColumn, s)
}

// MarshalText implements encoding.TextMarshaler.
func (c Column) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: %v", ErrInvalidColumn, c)
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Column) UnmarshalText(b []byte) error {
	parsed, err := ParseColumn(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Field is a named column at a fixed byte offset within a row.
type Field struct {
	Name   string `json:"name"`
	Column Column `json:"type"`
	Offset int    `json:"-"`
}

// Schema is an ordered set of fixed-width fields. Fields are sorted by name
// so that a schema built from a map always yields the same row layout.
type Schema struct {
	fields  []Field
	index   map[string]int
	rowSize int
}

// NewSchema builds a schema from named columns.
func NewSchema(cols map[string]Column) (*Schema, error) {
	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: schema has no columns", ErrInvalidColumn)
	}
	fields := make([]Field, 0, len(cols))
	for _, name := range slices.Sorted(maps.Keys(cols)) {
		fields = append(fields, Field{Name: name, Column: cols[name]})
	}
	return newSchema(fields)
}

// MustNewSchema is like NewSchema but panics on error.
func MustNewSchema(cols map[string]Column) *Schema {
	s, err := NewSchema(cols)
	if err != nil {
		panic(err)
	}
	return s
}

func newSchema(fields []Field) (*Schema, error) {
	s := &Schema{
		fields: fields,
		index:  make(map[string]int, len(fields)),
	}
	for i := range s.fields {
		f := &s.fields[i]
		if f.Name == "" {
			return nil, fmt.Errorf("%w: empty field name", ErrInvalidColumn)
		}
		if !f.Column.Valid() {
			return nil, fmt.Errorf("%w: field %q has type %v", ErrInvalidColumn, f.Name, f.Column)
		}
		if _, dup := s.index[f.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate field %q", ErrInvalidColumn, f.Name)
		}
		f.Offset = s.rowSize
		s.index[f.Name] = i
		s.rowSize += f.Column.Width()
	}
	return s, nil
}

// Fields returns a copy of the fields in row order.
func (s *Schema) Fields() []Field {
	return slices.Clone(s.fields)
}

// Names returns the field names in row order.
func (s *Schema) Names() []string {
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.Name
	}
	return names
}

// Field looks up a field by name.
func (s *Schema) Field(name string) (Field, bool) {
	i, ok := s.index[name]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

// Len returns the number of fields.
func (s *Schema) Len() int { return len(s.fields) }

// RowSize returns the encoded size of one row in bytes.
func (s *Schema) RowSize() int { return s.rowSize }

// Equal reports whether both schemas have the same fields.
func (s *Schema) Equal(o *Schema) bool {
	if s == nil || o == nil {
		return s == o
	}
	return slices.Equal(s.fields, o.fields)
}

func (s *Schema) String() string {
	parts := make([]string, len(s.fields))
	for i, f := range s.fields {
		parts[i] = f.Name + ":" + f.Column.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// MarshalJSON encodes the schema as an ordered list of fields.
func (s *Schema) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.fields)
}

// UnmarshalJSON accepts either the ordered list written by MarshalJSON or
// an object mapping field names to column types, e.g.
// {"exp_time": "int32", "some_string": "string(20)"}.
func (s *Schema) UnmarshalJSON(data []byte) error {
	var built *Schema
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '{' {
		var cols map[string]Column
		if err := json.Unmarshal(trimmed, &cols); err != nil {
			return err
		}
		sc, err := NewSchema(cols)
		if err != nil {
			return err
		}
		built = sc
	} else {
		var fields []Field
		if err := json.Unmarshal(data, &fields); err != nil {
			return err
		}
		sc, err := newSchema(fields)
		if err != nil {
			return err
		}
		built = sc
	}
	*s = *built
	return nil
}

// Validate checks rec against the schema without encoding it.
func (s *Schema) Validate(rec Record) error {
	for name, v := range rec {
		i, ok := s.index[name]
		if !ok {
			return &FieldError{Field: name, Reason: "not in schema"}
		}
		if _, err := checkValue(s.fields[i], v); err != nil {
			return err
		}
	}
	return nil
}

// Encode appends the fixed-width row for rec to dst. Fields missing from rec
// (or null) are stored as zero values.
func (s *Schema) Encode(dst []byte, rec Record) ([]byte, error) {
	if err := s.Validate(rec); err != nil {
		return dst, err
	}
	start := len(dst)
	dst = slices.Grow(dst, s.rowSize)
	dst = dst[:start+s.rowSize]
	row := dst[start:]
	clear(row)

	for _, f := range s.fields {
		v, ok := rec[f.Name]
		if !ok || v.Kind == KindNull {
			continue
		}
		cell := row[f.Offset : f.Offset+f.Column.Width()]
		putValue(cell, f.Column, v)
	}
	return dst, nil
}

// Decode reads one row. Every field of the schema is present in the result.
func (s *Schema) Decode(row []byte) (Record, error) {
	if len(row) != s.rowSize {
		return nil, fmt.Errorf("metadata: row is %d bytes, want %d", len(row), s.rowSize)
	}
	rec := make(Record, len(s.fields))
	for _, f := range s.fields {
		rec[f.Name] = getValue(row[f.Offset:f.Offset+f.Column.Width()], f.Column)
	}
	return rec, nil
}

// DecodeField reads a single field of a row without building a Record.
func (s *Schema) DecodeField(row []byte, name string) (Value, bool) {
	f, ok := s.Field(name)
	if !ok || len(row) != s.rowSize {
		return Value{}, false
	}
	return getValue(row[f.Offset:f.Offset+f.Column.Width()], f.Column), true
}

// checkValue returns v normalised to the column's kind.
func checkValue(f Field, v Value) (Value, error) {
	if v.Kind == KindNull {
		return v, nil
	}
	t := f.Column.Type
	switch {
	case t == ColBool:
		if v.Kind != KindBool {
			return v, &FieldError{Field: f.Name, Reason: "expected bool, got " + v.Kind.String()}
		}
	case t == ColString:
		if v.Kind != KindString {
			return v, &FieldError{Field: f.Name, Reason: "expected string, got " + v.Kind.String()}
		}
		if n := len(v.StringValue()); n > f.Column.Size {
			return v, &FieldError{Field: f.Name, Reason: fmt.Sprintf("string of %d bytes exceeds %d", n, f.Column.Size)}
		}
	case t == ColFloat32 || t == ColFloat64:
		if v.Kind != KindFloat && v.Kind != KindInt {
			return v, &FieldError{Field: f.Name, Reason: "expected number, got " + v.Kind.String()}
		}
	case t.isInt() || t.isUint():
		i, ok := integral(v)
		if !ok {
			return v, &FieldError{Field: f.Name, Reason: "expected integer, got " + v.Kind.String()}
		}
		lo, hi := intRange(t)
		if i < lo || (hi >= 0 && i > hi) {
			return v, &FieldError{Field: f.Name, Reason: fmt.Sprintf("%d out of range for %s", i, t)}
		}
		return Int(i), nil
	}
	return v, nil
}

func integral(v Value) (int64, bool) {
	switch v.Kind {
	case KindInt:
		return v.I64, true
	case KindFloat:
		if v.F64 != math.Trunc(v.F64) || v.F64 < math.MinInt64 || v.F64 >= math.MaxInt64 {
			return 0, false
		}
		return int64(v.F64), true
	}
	return 0, false
}

// intRange returns the inclusive bounds for t. hi is -1 when every
// non-negative int64 fits, which is the case for uint64.
func intRange(t ColumnType) (lo, hi int64) {
	switch t {
	case ColInt8:
		return math.MinInt8, math.MaxInt8
	case ColInt16:
		return math.MinInt16, math.MaxInt16
	case ColInt32:
		return math.MinInt32, math.MaxInt32
	case ColInt64:
		return math.MinInt64, math.MaxInt64
	case ColUint8:
		return 0, math.MaxUint8
	case ColUint16:
		return 0, math.MaxUint16
	case ColUint32:
		return 0, math.MaxUint32
	default:
		return 0, -1
	}
}

func asFloat(v Value) float64 {
	if v.Kind == KindInt {
		return float64(v.I64)
	}
	return v.F64
}

func putValue(cell []byte, c Column, v Value) {
	le := binary.LittleEndian
	switch c.Type {
	case ColBool:
		if v.B {
			cell[0] = 1
		}
	case ColInt8, ColUint8:
		i, _ := integral(v)
		cell[0] = byte(i)
	case ColInt16, ColUint16:
		i, _ := integral(v)
		le.PutUint16(cell, uint16(i))
	case ColInt32, ColUint32:
		i, _ := integral(v)
		le.PutUint32(cell, uint32(i))
	case ColInt64, ColUint64:
		i, _ := integral(v)
		le.PutUint64(cell, uint64(i))
	case ColFloat32:
		le.PutUint32(cell, math.Float32bits(float32(asFloat(v))))
	case ColFloat64:
		le.PutUint64(cell, math.Float64bits(asFloat(v)))
	case ColString:
		copy(cell, v.StringValue())
	}
}

func getValue(cell []byte, c Column) Value {
	le := binary.LittleEndian
	switch c.Type {
	case ColBool:
		return Bool(cell[0] != 0)
	case ColInt8:
		return Int(int64(int8(cell[0])))
	case ColUint8:
		return Int(int64(cell[0]))
	case ColInt16:
		return Int(int64(int16(le.Uint16(cell))))
	case ColUint16:
		return Int(int64(le.Uint16(cell)))
	case ColInt32:
		return Int(int64(int32(le.Uint32(cell))))
	case ColUint32:
		return Int(int64(le.Uint32(cell)))
	case ColInt64, ColUint64:
		return Int(int64(le.Uint64(cell)))
	case ColFloat32:
		return Float(float64(math.Float32frombits(le.Uint32(cell))))
	case ColFloat64:
		return Float(math.Float64frombits(le.Uint64(cell)))
	case ColString:
		return String(string(bytes.TrimRight(cell, "\x00")))
	default:
		return Null()
	}
}
