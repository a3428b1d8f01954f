package codec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeClickCount(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected uint8
	}{
		{name: "empty payload", input: nil, expected: 0},
		{name: "single byte", input: []byte{0x07}, expected: 7},
		{name: "unsigned high value", input: []byte{0xff}, expected: 255},
		{name: "trailing bytes ignored", input: []byte{0x02, 0x99}, expected: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DecodeClickCount(tt.input))
		})
	}
}

func TestDecodeTemperature(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected float64
	}{
		{name: "23.7 degrees", input: []byte{0xed, 0x00}, expected: 23.7},
		{name: "zero", input: []byte{0x00, 0x00}, expected: 0},
		{name: "unsigned max", input: []byte{0xff, 0xff}, expected: 6553.5},
		{name: "short input", input: []byte{0xed}, expected: 0},
		{name: "empty input", input: nil, expected: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, DecodeTemperature(tt.input), 1e-9)
		})
	}

	t.Run("round trip through EncodeUint16LE", func(t *testing.T) {
		assert.InDelta(t, 23.7, DecodeTemperature(EncodeUint16LE(237)), 1e-9)
	})
}

func TestInt32LE(t *testing.T) {
	assert.Equal(t, []byte{0xfb, 0xff, 0xff, 0xff}, EncodeInt32LE(-5))
	assert.Equal(t, []byte{0x2a, 0x00, 0x00, 0x00}, EncodeInt32LE(42))

	for _, v := range []int32{0, 1, -1, -5, 2147483647, -2147483648} {
		assert.Equal(t, v, DecodeInt32LE(EncodeInt32LE(v)), "MUST round-trip %d", v)
	}
	assert.Equal(t, int32(0), DecodeInt32LE([]byte{0x01, 0x02}), "MUST default short input to 0")
}

func TestDecodeTime(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected CalendarTime
	}{
		{
			name:     "seven byte payload",
			input:    []byte{0xe7, 0x07, 0x03, 0x0f, 0x0c, 0x1e, 0x00},
			expected: CalendarTime{Year: 2023, Month: 2, Day: 15, Hour: 12, Minute: 30, Second: 0},
		},
		{
			name:     "full ten byte payload",
			input:    []byte{0xe8, 0x07, 0x0c, 0x1f, 0x17, 0x3b, 0x3b, 0x02, 0x00, 0x00},
			expected: CalendarTime{Year: 2024, Month: 11, Day: 31, Hour: 23, Minute: 59, Second: 59},
		},
		{
			name:     "empty payload uses defaults",
			input:    nil,
			expected: CalendarTime{Year: 0, Month: 0},
		},
		{
			name:     "year only",
			input:    []byte{0xe7, 0x07},
			expected: CalendarTime{Year: 2023, Month: 0},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DecodeTime(tt.input))
		})
	}
}

func TestEncodeTime(t *testing.T) {
	// 2023-03-15 was a Wednesday
	ts := time.Date(2023, time.March, 15, 12, 30, 45, 0, time.UTC)

	got := EncodeTime(ts)
	require.Len(t, got, TimePayloadSize)
	assert.Equal(t, []byte{0xe7, 0x07, 0x03, 0x0f, 0x0c, 0x1e, 0x2d, 0x03, 0x00, 0x00}, got)

	sunday := EncodeTime(time.Date(2023, time.March, 19, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, uint8(0), sunday[7], "MUST encode Sunday as weekday 0")
}

func TestTimeRoundTrip(t *testing.T) {
	ts := time.Date(2025, time.October, 14, 8, 5, 9, 0, time.UTC)

	p := ParseTimePayload(EncodeTime(ts))
	assert.Equal(t, NewTimePayload(ts), p)
	assert.Equal(t, ts, p.Calendar().Time(time.UTC))
}

func TestCalendarTimeNormalization(t *testing.T) {
	// day 0 of March is the last day of February
	got := CalendarTime{Year: 2024, Month: 2, Day: 0}.Time(time.UTC)
	assert.Equal(t, time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC), got)

	// empty payload decodes to year 0, January, day 0
	got = DecodeTime(nil).Time(time.UTC)
	assert.Equal(t, time.Date(0, time.January, 0, 0, 0, 0, 0, time.UTC), got)
}
