package sqltypes

import (
	"fmt"
	"strconv"
	"time"
)

// Kind tags the variant stored in a Value.
type Kind int

const (
	Null Kind = iota
	Integer
	Float
	Text
	Blob
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "NULL"
	case Integer:
		return "INTEGER"
	case Float:
		return "FLOAT"
	case Text:
		return "TEXT"
	case Blob:
		return "BLOB"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Value is a closed tagged variant for everything that crosses the
// boundary between the wire protocol and the embedded engine: row cells,
// bound statement parameters and metadata rows. The zero Value is NULL.
type Value struct {
	kind  Kind
	num   int64
	float float64
	raw   []byte
}

// NULL is the SQL NULL value.
var NULL = Value{}

func NewInteger(v int64) Value {
	return Value{kind: Integer, num: v}
}

func NewFloat(v float64) Value {
	return Value{kind: Float, float: v}
}

func NewText(v string) Value {
	return Value{kind: Text, raw: []byte(v)}
}

func NewBlob(v []byte) Value {
	return Value{kind: Blob, raw: v}
}

const timeFormat = "2006-01-02 15:04:05"

// FromNative converts a value scanned out of the embedded engine's driver
// into a Value. The sqlite3 driver hands back nil, int64, float64, bool,
// string, []byte or time.Time; anything else is stringified.
func FromNative(v any) Value {
	switch v := v.(type) {
	case nil:
		return NULL
	case int64:
		return NewInteger(v)
	case float64:
		return NewFloat(v)
	case bool:
		if v {
			return NewInteger(1)
		}
		return NewInteger(0)
	case string:
		return NewText(v)
	case []byte:
		return NewBlob(v)
	case time.Time:
		return NewText(v.Format(timeFormat))
	default:
		return NewText(fmt.Sprint(v))
	}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == Null }

// Int64 returns the integer payload. Only meaningful for Integer values.
func (v Value) Int64() int64 { return v.num }

// Float64 returns the float payload. Only meaningful for Float values.
func (v Value) Float64() float64 { return v.float }

// Bytes returns the raw payload of a Text or Blob value.
func (v Value) Bytes() []byte { return v.raw }

// Format renders the value the way the text protocol transmits it.
// NULL has no text rendering; callers must check IsNull first.
func (v Value) Format() string {
	switch v.kind {
	case Integer:
		return strconv.FormatInt(v.num, 10)
	case Float:
		return strconv.FormatFloat(v.float, 'f', -1, 64)
	case Text, Blob:
		return string(v.raw)
	}
	return ""
}

// Native converts the value into the form the embedded engine's driver
// accepts as a statement argument.
func (v Value) Native() any {
	switch v.kind {
	case Integer:
		return v.num
	case Float:
		return v.float
	case Text:
		return string(v.raw)
	case Blob:
		return v.raw
	}
	return nil
}
