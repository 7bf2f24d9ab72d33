// Package decode implements the DCF77, MSF and WWVB frame decoders: given a
// symbol buffer ending at a station-specific minute marker, it validates
// parity/framing and decodes the calendar fields into a UTC instant.
package decode

import (
	"errors"

	"radioclkd/pkg/calendar"
	"radioclkd/pkg/pulse"
)

// ErrParity is returned when a frame's parity check fails.
var ErrParity = errors.New("decode: parity check failed")

// ErrFraming is returned when a frame's structural framing check fails
// (WWVB marker/data positions in the wrong place).
var ErrFraming = errors.New("decode: framing check failed")

// ErrSanity is returned when the decoded civil-time fields are out of range,
// or no month could be resolved from a WWVB day-of-year.
var ErrSanity = errors.New("decode: decoded civil time out of range")

// Frame is the read-only view a decoder needs of a pulse buffer: the
// classified symbols and how many of them are populated. Index 0 is
// reserved and unused, matching pulse.Buffer's layout.
type Frame struct {
	Symbols []int
	Count   int
}

// FrameFromBuffer views a pulse.Buffer as a Frame for decoding.
func FrameFromBuffer(b *pulse.Buffer) Frame {
	return Frame{Symbols: b.Symbols[:], Count: b.Count}
}

// bitsMSB extracts a BCD field of the given width starting at Symbols[from],
// MSB-first, where isSet reports whether a given symbol counts as a 1 bit.
func (f Frame) bitsMSB(from, width int, isSet func(symbol int) bool) (value int, next int) {
	for j := 0; j < width; j++ {
		if isSet(f.Symbols[from+j]) {
			value |= 1 << (width - j - 1)
		}
	}
	return value, from + width
}

// bitsLSB extracts a BCD field of the given width starting at Symbols[from],
// LSB-first (the bit order the original DCF77 decoder uses).
func (f Frame) bitsLSB(from, width int, isSet func(symbol int) bool) (value int, next int) {
	for j := 0; j < width; j++ {
		if isSet(f.Symbols[from+j]) {
			value |= 1 << j
		}
	}
	return value, from + width
}

func isOne(symbol int) bool  { return symbol == 1 }
func isFour(symbol int) bool { return symbol == 4 }

// utcTime is a small adapter over pkg/calendar so decoders can build a
// calendar.Time value without repeating field names.
func utcTime(year, month, day, hour, minute int) (int64, error) {
	return calendar.UTCTime(calendar.Time{
		Year: year, Month: month, Day: day, Hour: hour, Minute: minute, Second: 0,
	})
}
