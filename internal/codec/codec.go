// Package codec encodes and decodes the payloads of the Pixl characteristics.
//
// Every decoder is total: short or empty input yields the documented default
// instead of an error, so a malformed notification is still reported.
package codec

import (
	"encoding/binary"
	"time"
)

// TimePayloadSize is the length of an encoded Current Time value.
const TimePayloadSize = 10

// DecodeClickCount returns the unsigned click counter from byte 0, or 0 when data is empty.
func DecodeClickCount(data []byte) uint8 {
	if len(data) < 1 {
		return 0
	}
	return data[0]
}

// DecodeTemperature returns degrees Celsius from an unsigned 16-bit little-endian
// value in tenths of a degree. Input shorter than two bytes yields 0.
func DecodeTemperature(data []byte) float64 {
	if len(data) < 2 {
		return 0
	}
	return float64(binary.LittleEndian.Uint16(data)) / 10.0
}

// EncodeUint16LE returns v as two little-endian bytes.
func EncodeUint16LE(v uint16) []byte {
	return binary.LittleEndian.AppendUint16(make([]byte, 0, 2), v)
}

// EncodeInt32LE returns v as four little-endian two's-complement bytes.
func EncodeInt32LE(v int32) []byte {
	return binary.LittleEndian.AppendUint32(make([]byte, 0, 4), uint32(v))
}

// DecodeInt32LE is the inverse of EncodeInt32LE. Input shorter than four bytes yields 0.
func DecodeInt32LE(data []byte) int32 {
	if len(data) < 4 {
		return 0
	}
	return int32(binary.LittleEndian.Uint32(data))
}

// TimePayload is the wire layout of the Current Time characteristic.
type TimePayload struct {
	Year         uint16
	Month        uint8 // 1-12
	Day          uint8
	Hour         uint8
	Minute       uint8
	Second       uint8
	Weekday      uint8 // 0=Sunday .. 6=Saturday
	Fractions256 uint8
	AdjustReason uint8
}

// CalendarTime is the decoded view of an inbound time value. Month is zero-based.
type CalendarTime struct {
	Year   int
	Month  int
	Day    int
	Hour   int
	Minute int
	Second int
}

// NewTimePayload builds the outbound payload for t. Fractions and adjust reason are always 0.
func NewTimePayload(t time.Time) TimePayload {
	return TimePayload{
		Year:    uint16(t.Year()),
		Month:   uint8(t.Month()),
		Day:     uint8(t.Day()),
		Hour:    uint8(t.Hour()),
		Minute:  uint8(t.Minute()),
		Second:  uint8(t.Second()),
		Weekday: uint8(t.Weekday()),
	}
}

// Bytes serializes the payload into TimePayloadSize bytes.
func (p TimePayload) Bytes() []byte {
	b := make([]byte, 0, TimePayloadSize)
	b = binary.LittleEndian.AppendUint16(b, p.Year)
	return append(b, p.Month, p.Day, p.Hour, p.Minute, p.Second, p.Weekday, p.Fractions256, p.AdjustReason)
}

// Calendar converts the payload to a CalendarTime with a zero-based month.
func (p TimePayload) Calendar() CalendarTime {
	return CalendarTime{
		Year:   int(p.Year),
		Month:  int(p.Month) - 1,
		Day:    int(p.Day),
		Hour:   int(p.Hour),
		Minute: int(p.Minute),
		Second: int(p.Second),
	}
}

// ParseTimePayload reads as many fields as data holds. Missing fields default
// to year 0, month 1 and zero for the rest.
func ParseTimePayload(data []byte) TimePayload {
	p := TimePayload{Month: 1}
	if len(data) >= 2 {
		p.Year = binary.LittleEndian.Uint16(data)
	}
	fields := []*uint8{&p.Month, &p.Day, &p.Hour, &p.Minute, &p.Second, &p.Weekday, &p.Fractions256, &p.AdjustReason}
	for i, f := range fields {
		if len(data) <= 2+i {
			break
		}
		*f = data[2+i]
	}
	return p
}

// DecodeTime parses an inbound Current Time value.
func DecodeTime(data []byte) CalendarTime {
	return ParseTimePayload(data).Calendar()
}

// EncodeTime serializes t as a Current Time value.
func EncodeTime(t time.Time) []byte {
	return NewTimePayload(t).Bytes()
}

// Time resolves the calendar fields in loc. Out-of-range fields are normalized
// the way time.Date does (day 0 is the last day of the previous month).
func (c CalendarTime) Time(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return time.Date(c.Year, time.Month(c.Month+1), c.Day, c.Hour, c.Minute, c.Second, 0, loc)
}
