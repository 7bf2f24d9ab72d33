// Package calendar converts broken-down civil time (year/month/day/hour/minute/second)
// into seconds since the Unix epoch, treating the fields as UTC regardless of the
// host's time zone or daylight setting.
//
// The original radioclkd used a binary search against the C library's gmtime() as an
// oracle, specifically to sidestep mktime()'s dependence on thread-local time zone
// state. Go's time package carries no such gotcha: time.UTC is a fixed Location, not a
// lookup against host configuration. So this package computes the same closed-form
// proleptic Gregorian arithmetic that backs time.Date, independent of time.Location,
// the way tzdata libraries that can't assume a populated IANA database do it.
package calendar

import "fmt"

const (
	secondsPerMinute = 60
	secondsPerHour   = 60 * secondsPerMinute
	secondsPerDay    = 24 * secondsPerHour

	daysPer400Years = 365*400 + 97
	daysPer100Years = 365*100 + 24
	daysPer4Years   = 365*4 + 1

	// absoluteZeroYear is the year of the epoch used internally by daysSinceEpoch,
	// chosen (as in the Go standard library) far enough in the past that every
	// representable year sits inside a whole number of 400-year cycles.
	absoluteZeroYear = -292277022399
)

var daysBeforeMonth = [...]int64{0, 31, 59, 90, 120, 151, 181, 212, 243, 273, 304, 334}

// Time is an already-normalised broken-down civil time. Seconds may be non-zero;
// fields are not re-derived (no weekday, no year-day).
type Time struct {
	Year, Month, Day, Hour, Minute, Second int
}

// UTCTime returns the number of seconds since 1970-01-01T00:00:00Z represented by t,
// treating every field as UTC. It returns an error if any field is out of the range
// a civil calendar can represent (month outside 1-12, or an invalid day for that
// month), matching the original's "signal failure" behaviour instead of silently
// normalising.
func UTCTime(t Time) (int64, error) {
	if t.Month < 1 || t.Month > 12 {
		return 0, fmt.Errorf("calendar: month %d out of range", t.Month)
	}
	if t.Day < 1 || t.Day > daysInMonth(t.Month, t.Year) {
		return 0, fmt.Errorf("calendar: day %d out of range for %04d-%02d", t.Day, t.Year, t.Month)
	}
	if t.Hour < 0 || t.Hour > 23 {
		return 0, fmt.Errorf("calendar: hour %d out of range", t.Hour)
	}
	if t.Minute < 0 || t.Minute > 59 {
		return 0, fmt.Errorf("calendar: minute %d out of range", t.Minute)
	}

	days := daysSinceEpoch(t.Year) + daysBeforeMonth[t.Month-1] + int64(t.Day-1)
	if t.Month > 2 && isLeapYear(t.Year) {
		days++
	}

	abs := days*secondsPerDay + int64(t.Hour)*secondsPerHour + int64(t.Minute)*secondsPerMinute + int64(t.Second)
	return abs - unixEpochAbsolute(), nil
}

// isLeapYear reports whether year is a leap year in the proleptic Gregorian calendar.
func isLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

func daysInMonth(month, year int) int {
	switch month {
	case 2:
		if isLeapYear(year) {
			return 29
		}
		return 28
	case 4, 6, 9, 11:
		return 30
	default:
		return 31
	}
}

// daysSinceEpoch returns the number of days from the absolute zero year to the start
// of year, accounting for leap days via 400/100/4-year cycles.
func daysSinceEpoch(year int) int64 {
	y := int64(year) - absoluteZeroYear

	n400 := y / 400
	y -= 400 * n400
	d := daysPer400Years * n400

	n100 := y / 100
	y -= 100 * n100
	d += daysPer100Years * n100

	n4 := y / 4
	y -= 4 * n4
	d += daysPer4Years * n4

	d += 365 * y
	return d
}

// unixEpochAbsolute is the number of "absolute" seconds (from absoluteZeroYear) at
// 1970-01-01T00:00:00Z.
func unixEpochAbsolute() int64 {
	return daysSinceEpoch(1970) * secondsPerDay
}
