package mysql

import (
	"github.com/fauxcloud/fauxcloud/internal/sqltypes"
)

// Response payload builders. Each returns a single packet payload without
// the framing header; sequencing is the caller's concern.

func okPayload(affectedRows, lastInsertID uint64, status, warnings uint16, message string) []byte {
	b := make([]byte, 0, 16+len(message))
	b = append(b, 0x00)
	b = appendLenEncInt(b, affectedRows)
	b = appendLenEncInt(b, lastInsertID)
	b = append(b, byte(status), byte(status>>8))
	b = append(b, byte(warnings), byte(warnings>>8))
	if message != "" {
		b = append(b, message...)
	}
	return b
}

func errPayload(code uint16, sqlState, message string) []byte {
	if len(sqlState) != 5 {
		sqlState = sqlStateGeneral
	}
	b := make([]byte, 0, 9+len(message))
	b = append(b, 0xff)
	b = append(b, byte(code), byte(code>>8))
	b = append(b, '#')
	b = append(b, sqlState...)
	b = append(b, message...)
	return b
}

func eofPayload(warnings, status uint16) []byte {
	return []byte{0xfe, byte(warnings), byte(warnings >> 8), byte(status), byte(status >> 8)}
}

// columnDefinitionPayload builds a protocol 4.1 column definition block.
// Catalog is always "def" per protocol convention.
func columnDefinitionPayload(schema, table, name string, typ byte, flags uint16) []byte {
	b := make([]byte, 0, 32+len(schema)+2*len(table)+2*len(name))
	b = appendLenEncString(b, "def")
	b = appendLenEncString(b, schema)
	b = appendLenEncString(b, table)
	b = appendLenEncString(b, table) // org_table
	b = appendLenEncString(b, name)
	b = appendLenEncString(b, name) // org_name
	b = append(b, 0x0c)             // fixed-length fields below
	b = append(b, charsetUTF8, 0x00)
	b = append(b, 0xff, 0xff, 0xff, 0x00) // column length
	b = append(b, typ)
	b = append(b, byte(flags), byte(flags>>8))
	b = append(b, 0x00)       // decimals
	b = append(b, 0x00, 0x00) // filler
	return b
}

// textRowPayload encodes one result row for the text protocol: 0xfb for
// NULL, a length-encoded string for everything else.
func textRowPayload(row []sqltypes.Value) []byte {
	b := make([]byte, 0, 16*len(row))
	for _, v := range row {
		if v.IsNull() {
			b = append(b, 0xfb)
			continue
		}
		if v.Kind() == sqltypes.Blob {
			b = appendLenEncBytes(b, v.Bytes())
			continue
		}
		b = appendLenEncString(b, v.Format())
	}
	return b
}

// binaryRowPayload encodes one result row for the binary protocol: a 0x00
// header, a null bitmap with a 2-bit offset sized for columnCount+2 bits,
// then each non-NULL cell per its column's declared type.
func binaryRowPayload(row []sqltypes.Value, colTypes []byte) []byte {
	bitmap := make([]byte, (len(row)+7+2)/8)
	b := make([]byte, 0, 1+len(bitmap)+16*len(row))
	b = append(b, 0x00)
	b = append(b, bitmap...)
	for i, v := range row {
		if v.IsNull() {
			b[1+(i+2)/8] |= 1 << (uint(i+2) & 7)
			continue
		}
		b = appendBinaryValue(b, v, colTypes[i])
	}
	return b
}
