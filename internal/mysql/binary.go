package mysql

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"

	"github.com/fauxcloud/fauxcloud/internal/sqltypes"
)

// Binary (de)serialization of scalar values for the prepared statement
// protocol: parameter decoding on the way in, typed row cells on the way
// out.

var errTruncatedValue = fmt.Errorf("binary value truncated")

// decodeBinaryValue reads one non-NULL parameter value of the given type
// starting at pos and returns it with the next position. Unknown type codes
// fall back to the length-prefixed string path so that client variance does
// not kill the connection.
func decodeBinaryValue(data []byte, pos int, typ byte, unsigned bool) (sqltypes.Value, int, error) {
	switch typ {
	case TypeNull:
		return sqltypes.NULL, pos, nil

	case TypeTiny:
		if pos+1 > len(data) {
			return sqltypes.NULL, pos, errTruncatedValue
		}
		if unsigned {
			return sqltypes.NewInteger(int64(data[pos])), pos + 1, nil
		}
		return sqltypes.NewInteger(int64(int8(data[pos]))), pos + 1, nil

	case TypeShort, TypeYear:
		if pos+2 > len(data) {
			return sqltypes.NULL, pos, errTruncatedValue
		}
		raw := binary.LittleEndian.Uint16(data[pos:])
		if unsigned {
			return sqltypes.NewInteger(int64(raw)), pos + 2, nil
		}
		return sqltypes.NewInteger(int64(int16(raw))), pos + 2, nil

	case TypeLong, TypeInt24:
		if pos+4 > len(data) {
			return sqltypes.NULL, pos, errTruncatedValue
		}
		raw := binary.LittleEndian.Uint32(data[pos:])
		if unsigned {
			return sqltypes.NewInteger(int64(raw)), pos + 4, nil
		}
		return sqltypes.NewInteger(int64(int32(raw))), pos + 4, nil

	case TypeLongLong:
		if pos+8 > len(data) {
			return sqltypes.NULL, pos, errTruncatedValue
		}
		raw := binary.LittleEndian.Uint64(data[pos:])
		if unsigned && raw > math.MaxInt64 {
			// Out of int64 range, keep the exact decimal rendering.
			return sqltypes.NewText(strconv.FormatUint(raw, 10)), pos + 8, nil
		}
		return sqltypes.NewInteger(int64(raw)), pos + 8, nil

	case TypeFloat:
		if pos+4 > len(data) {
			return sqltypes.NULL, pos, errTruncatedValue
		}
		bits := binary.LittleEndian.Uint32(data[pos:])
		return sqltypes.NewFloat(float64(math.Float32frombits(bits))), pos + 4, nil

	case TypeDouble:
		if pos+8 > len(data) {
			return sqltypes.NULL, pos, errTruncatedValue
		}
		bits := binary.LittleEndian.Uint64(data[pos:])
		return sqltypes.NewFloat(math.Float64frombits(bits)), pos + 8, nil

	case TypeDate, TypeDateTime, TypeTimestamp:
		return decodeBinaryDateTime(data, pos, typ)

	case TypeTime:
		return decodeBinaryTime(data, pos)

	case TypeTinyBlob, TypeMediumBlob, TypeLongBlob, TypeBlob, TypeBit, TypeGeometry:
		raw, next, ok := readLenEncBytes(data, pos)
		if !ok {
			return sqltypes.NULL, pos, errTruncatedValue
		}
		out := make([]byte, len(raw))
		copy(out, raw)
		return sqltypes.NewBlob(out), next, nil

	default:
		// VARCHAR, STRING, VAR_STRING, DECIMAL, NEWDECIMAL, JSON, ENUM,
		// SET and anything this emulator has never heard of.
		raw, next, ok := readLenEncBytes(data, pos)
		if !ok {
			return sqltypes.NULL, pos, errTruncatedValue
		}
		return sqltypes.NewText(string(raw)), next, nil
	}
}

// decodeBinaryDateTime handles the shared DATE/DATETIME/TIMESTAMP encoding:
// a length byte of 0, 4, 7 or 11 followed by year/month/day and optionally
// time-of-day and microseconds.
func decodeBinaryDateTime(data []byte, pos int, typ byte) (sqltypes.Value, int, error) {
	if pos+1 > len(data) {
		return sqltypes.NULL, pos, errTruncatedValue
	}
	length := int(data[pos])
	pos++
	if pos+length > len(data) {
		return sqltypes.NULL, pos, errTruncatedValue
	}

	if length == 0 {
		if typ == TypeDate {
			return sqltypes.NewText("0000-00-00"), pos, nil
		}
		return sqltypes.NewText("0000-00-00 00:00:00"), pos, nil
	}

	var (
		year                 uint16
		month, day           byte
		hour, minute, second byte
		micros               uint32
	)
	switch length {
	case 4:
		year = binary.LittleEndian.Uint16(data[pos:])
		month, day = data[pos+2], data[pos+3]
	case 7:
		year = binary.LittleEndian.Uint16(data[pos:])
		month, day = data[pos+2], data[pos+3]
		hour, minute, second = data[pos+4], data[pos+5], data[pos+6]
	case 11:
		year = binary.LittleEndian.Uint16(data[pos:])
		month, day = data[pos+2], data[pos+3]
		hour, minute, second = data[pos+4], data[pos+5], data[pos+6]
		micros = binary.LittleEndian.Uint32(data[pos+7:])
	default:
		return sqltypes.NULL, pos, fmt.Errorf("invalid datetime length %d", length)
	}
	pos += length

	if typ == TypeDate {
		return sqltypes.NewText(fmt.Sprintf("%04d-%02d-%02d", year, month, day)), pos, nil
	}
	rendered := fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d", year, month, day, hour, minute, second)
	if length == 11 && micros > 0 {
		rendered += fmt.Sprintf(".%06d", micros)
	}
	return sqltypes.NewText(rendered), pos, nil
}

// decodeBinaryTime handles the TIME encoding: a length byte of 0, 8 or 12
// followed by a negative flag, a day count, time-of-day and optionally
// microseconds. Rendered as [-]HH:MM:SS with hours folded from days.
func decodeBinaryTime(data []byte, pos int) (sqltypes.Value, int, error) {
	if pos+1 > len(data) {
		return sqltypes.NULL, pos, errTruncatedValue
	}
	length := int(data[pos])
	pos++
	if pos+length > len(data) {
		return sqltypes.NULL, pos, errTruncatedValue
	}

	if length == 0 {
		return sqltypes.NewText("00:00:00"), pos, nil
	}
	if length != 8 && length != 12 {
		return sqltypes.NULL, pos, fmt.Errorf("invalid time length %d", length)
	}

	negative := data[pos] == 1
	days := binary.LittleEndian.Uint32(data[pos+1:])
	hour, minute, second := data[pos+5], data[pos+6], data[pos+7]
	var micros uint32
	if length == 12 {
		micros = binary.LittleEndian.Uint32(data[pos+8:])
	}
	pos += length

	rendered := fmt.Sprintf("%02d:%02d:%02d", uint64(days)*24+uint64(hour), minute, second)
	if micros > 0 {
		rendered += fmt.Sprintf(".%06d", micros)
	}
	if negative {
		rendered = "-" + rendered
	}
	return sqltypes.NewText(rendered), pos, nil
}

// binaryTypeFor picks the column type declared for a result column so the
// binary row encoder and the column definition agree. Mixed-kind columns
// degrade to VAR_STRING and transmit their text rendering.
func binaryTypeFor(rows [][]sqltypes.Value, col int) byte {
	decided := TypeNull
	for _, row := range rows {
		v := row[col]
		if v.IsNull() {
			continue
		}
		var typ byte
		switch v.Kind() {
		case sqltypes.Integer:
			typ = TypeLongLong
		case sqltypes.Float:
			typ = TypeDouble
		case sqltypes.Blob:
			typ = TypeBlob
		default:
			typ = TypeVarString
		}
		if decided == TypeNull {
			decided = typ
		} else if decided != typ {
			return TypeVarString
		}
	}
	if decided == TypeNull {
		return TypeVarString
	}
	return decided
}

// appendBinaryValue encodes one non-NULL cell per the column's declared
// type.
func appendBinaryValue(b []byte, v sqltypes.Value, typ byte) []byte {
	switch typ {
	case TypeLongLong:
		var raw [8]byte
		binary.LittleEndian.PutUint64(raw[:], uint64(v.Int64()))
		return append(b, raw[:]...)
	case TypeDouble:
		var raw [8]byte
		binary.LittleEndian.PutUint64(raw[:], math.Float64bits(v.Float64()))
		return append(b, raw[:]...)
	case TypeBlob:
		return appendLenEncBytes(b, v.Bytes())
	default:
		return appendLenEncString(b, v.Format())
	}
}
