package mysql

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fauxcloud/fauxcloud/internal/sqltypes"
)

func TestDecodeBinaryValue_Integers(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		Name     string
		Data     []byte
		Type     byte
		Unsigned bool
		Expected sqltypes.Value
	}{
		{
			"Signed tiny",
			[]byte{0xff},
			TypeTiny,
			false,
			sqltypes.NewInteger(-1),
		},
		{
			"Unsigned tiny",
			[]byte{0xff},
			TypeTiny,
			true,
			sqltypes.NewInteger(255),
		},
		{
			"Signed short",
			[]byte{0x00, 0x80},
			TypeShort,
			false,
			sqltypes.NewInteger(-32768),
		},
		{
			"Unsigned long",
			[]byte{0xff, 0xff, 0xff, 0xff},
			TypeLong,
			true,
			sqltypes.NewInteger(4294967295),
		},
		{
			"Signed longlong full range",
			[]byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x80},
			TypeLongLong,
			false,
			sqltypes.NewInteger(math.MinInt64),
		},
		{
			"Unsigned longlong above int64 keeps exact digits",
			[]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
			TypeLongLong,
			true,
			sqltypes.NewText("18446744073709551615"),
		},
		{
			"Year",
			[]byte{0x7c, 0x07},
			TypeYear,
			true,
			sqltypes.NewInteger(1916),
		},
	}

	for _, aTestCase := range testCases {
		t.Run(aTestCase.Name, func(t *testing.T) {
			value, pos, err := decodeBinaryValue(aTestCase.Data, 0, aTestCase.Type, aTestCase.Unsigned)
			require.NoError(t, err)
			assert.Equal(t, aTestCase.Expected, value)
			assert.Equal(t, len(aTestCase.Data), pos)
		})
	}
}

func TestDecodeBinaryValue_Floats(t *testing.T) {
	t.Parallel()

	data := make([]byte, 4)
	binary.LittleEndian.PutUint32(data, math.Float32bits(1.5))
	value, _, err := decodeBinaryValue(data, 0, TypeFloat, false)
	require.NoError(t, err)
	assert.Equal(t, sqltypes.NewFloat(1.5), value)

	data = make([]byte, 8)
	binary.LittleEndian.PutUint64(data, math.Float64bits(-2.25))
	value, _, err = decodeBinaryValue(data, 0, TypeDouble, false)
	require.NoError(t, err)
	assert.Equal(t, sqltypes.NewFloat(-2.25), value)
}

func TestDecodeBinaryValue_Temporal(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		Name     string
		Data     []byte
		Type     byte
		Expected string
	}{
		{
			"Zero date sentinel",
			[]byte{0x00},
			TypeDate,
			"0000-00-00",
		},
		{
			"Zero datetime sentinel",
			[]byte{0x00},
			TypeDateTime,
			"0000-00-00 00:00:00",
		},
		{
			"Date only",
			[]byte{0x04, 0xe8, 0x07, 0x03, 0x01},
			TypeDate,
			"2024-03-01",
		},
		{
			"Datetime with time of day",
			[]byte{0x07, 0xe8, 0x07, 0x03, 0x01, 0x0d, 0x25, 0x00},
			TypeDateTime,
			"2024-03-01 13:37:00",
		},
		{
			"Timestamp with microseconds",
			[]byte{0x0b, 0xe8, 0x07, 0x03, 0x01, 0x0d, 0x25, 0x00, 0xe8, 0x03, 0x00, 0x00},
			TypeTimestamp,
			"2024-03-01 13:37:00.001000",
		},
		{
			"Time folds days into hours",
			[]byte{0x08, 0x00, 0x01, 0x00, 0x00, 0x00, 0x02, 0x0a, 0x00},
			TypeTime,
			"26:10:00",
		},
		{
			"Negative time with microseconds",
			[]byte{0x0c, 0x01, 0x00, 0x00, 0x00, 0x00, 0x01, 0x02, 0x03, 0x01, 0x00, 0x00, 0x00},
			TypeTime,
			"-01:02:03.000001",
		},
		{
			"Zero length time",
			[]byte{0x00},
			TypeTime,
			"00:00:00",
		},
	}

	for _, aTestCase := range testCases {
		t.Run(aTestCase.Name, func(t *testing.T) {
			value, pos, err := decodeBinaryValue(aTestCase.Data, 0, aTestCase.Type, false)
			require.NoError(t, err)
			assert.Equal(t, sqltypes.NewText(aTestCase.Expected), value)
			assert.Equal(t, len(aTestCase.Data), pos)
		})
	}
}

func TestDecodeBinaryValue_StringsAndFallback(t *testing.T) {
	t.Parallel()

	// VAR_STRING keeps text
	value, _, err := decodeBinaryValue(appendLenEncString(nil, "bar"), 0, TypeVarString, false)
	require.NoError(t, err)
	assert.Equal(t, sqltypes.NewText("bar"), value)

	// BLOB keeps raw bytes
	value, _, err = decodeBinaryValue(appendLenEncBytes(nil, []byte{0x00, 0xff}), 0, TypeBlob, false)
	require.NoError(t, err)
	assert.Equal(t, sqltypes.NewBlob([]byte{0x00, 0xff}), value)

	// An unknown type code falls back to the string path instead of failing
	value, _, err = decodeBinaryValue(appendLenEncString(nil, "mystery"), 0, 0xee, false)
	require.NoError(t, err)
	assert.Equal(t, sqltypes.NewText("mystery"), value)
}

func TestDecodeBinaryValue_Truncated(t *testing.T) {
	t.Parallel()

	_, _, err := decodeBinaryValue([]byte{0x01}, 0, TypeLong, false)
	require.Error(t, err)

	_, _, err = decodeBinaryValue([]byte{0x07, 0xe8}, 0, TypeDateTime, false)
	require.Error(t, err)
}

func TestBinaryTypeFor(t *testing.T) {
	t.Parallel()

	rows := [][]sqltypes.Value{
		{sqltypes.NewInteger(1), sqltypes.NULL, sqltypes.NewFloat(0.5), sqltypes.NewBlob([]byte{1})},
		{sqltypes.NewInteger(2), sqltypes.NewText("x"), sqltypes.NULL, sqltypes.NewBlob([]byte{2})},
	}

	assert.Equal(t, TypeLongLong, binaryTypeFor(rows, 0))
	assert.Equal(t, TypeVarString, binaryTypeFor(rows, 1))
	assert.Equal(t, TypeDouble, binaryTypeFor(rows, 2))
	assert.Equal(t, TypeBlob, binaryTypeFor(rows, 3))

	// Mixed kinds degrade to VAR_STRING
	mixed := [][]sqltypes.Value{
		{sqltypes.NewInteger(1)},
		{sqltypes.NewText("one")},
	}
	assert.Equal(t, TypeVarString, binaryTypeFor(mixed, 0))
}
