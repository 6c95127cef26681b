// Copyright 2026 Peter Edge
//
// All rights reserved.

// Originally copied from https://github.com/googleapis/google-cloud-go/blob/v0.116.0/civil/civil.go
// See https://github.com/googleapis/google-cloud-go/blob/v0.116.0/LICENSE.

// Package xtime provides extensions to the standard time package.
package xtime

import (
	"fmt"
	"time"
)

// Date represents a calendar date with no time of day and no location.
//
// All arithmetic is done in UTC so that dates never shift across DST boundaries.
type Date struct {
	// Year is the year (e.g., 2014).
	Year int
	// Month is the month of the year (January = 1).
	Month time.Month
	// Day is the day of the month, starting at 1.
	Day int
}

// TimeToDate returns the Date in which a time occurs in that time's location.
func TimeToDate(t time.Time) Date {
	var d Date
	d.Year, d.Month, d.Day = t.Date()
	return d
}

// ParseDate parses a string in RFC3339 full-date format and returns the date value it represents.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, err
	}
	return TimeToDate(t), nil
}

// String returns the date in RFC3339 full-date format.
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// IsValid reports whether the date is valid.
func (d Date) IsValid() bool {
	return TimeToDate(d.In(time.UTC)) == d
}

// IsZero reports whether date fields are set to their default value.
func (d Date) IsZero() bool {
	return (d.Year == 0) && (int(d.Month) == 0) && (d.Day == 0)
}

// In returns the time corresponding to time 00:00:00 of the date in the location.
func (d Date) In(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// Start returns midnight UTC at the start of the date.
//
// Ledger timestamps are stored as naive wall-clock times in UTC, so this is the
// cutoff that separates "before d" from "on or after d".
func (d Date) Start() time.Time {
	return d.In(time.UTC)
}

// AddDays returns the date that is n days in the future.
// n can also be negative to go into the past.
func (d Date) AddDays(n int) Date {
	return TimeToDate(d.In(time.UTC).AddDate(0, 0, n))
}

// AddMonths returns the date that is n months in the future, normalized the
// same way time.AddDate normalizes (January 31 + 1 month is March 3 or 2).
func (d Date) AddMonths(n int) Date {
	return TimeToDate(d.In(time.UTC).AddDate(0, n, 0))
}

// FirstOfMonth returns the first day of the date's month.
func (d Date) FirstOfMonth() Date {
	return Date{Year: d.Year, Month: d.Month, Day: 1}
}

// FirstOfNextMonth returns the first day of the month after the date's month.
func (d Date) FirstOfNextMonth() Date {
	return d.FirstOfMonth().AddMonths(1)
}

// Weekday returns the day of the week of the date.
func (d Date) Weekday() time.Weekday {
	return d.In(time.UTC).Weekday()
}

// AddBusinessDays moves n Monday-to-Friday days away from the date, skipping
// weekends. Holidays are not taken into account.
func (d Date) AddBusinessDays(n int) Date {
	step := 1
	if n < 0 {
		step = -1
		n = -n
	}
	for n > 0 {
		d = d.AddDays(step)
		if weekday := d.Weekday(); weekday != time.Saturday && weekday != time.Sunday {
			n--
		}
	}
	return d
}

// DaysSince returns the signed number of days between the date and s, not including the end day.
// This is the inverse operation to AddDays.
func (d Date) DaysSince(s Date) (days int) {
	// We convert to Unix time so we do not have to worry about leap seconds:
	// Unix time increases by exactly 86400 seconds per day.
	deltaUnix := d.In(time.UTC).Unix() - s.In(time.UTC).Unix()
	return int(deltaUnix / 86400)
}

// Before reports whether d occurs before d2.
func (d Date) Before(d2 Date) bool {
	if d.Year != d2.Year {
		return d.Year < d2.Year
	}
	if d.Month != d2.Month {
		return d.Month < d2.Month
	}
	return d.Day < d2.Day
}

// EqualOrBefore reports whether d occurs on or before d2.
func (d Date) EqualOrBefore(d2 Date) bool {
	return d == d2 || d.Before(d2)
}

// After reports whether d occurs after d2.
func (d Date) After(d2 Date) bool {
	return d2.Before(d)
}

// EqualOrAfter reports whether d occurs on or after d2.
func (d Date) EqualOrAfter(d2 Date) bool {
	return d == d2 || d.After(d2)
}

// Compare compares d and d2. If d is before d2, it returns -1;
// if d is after d2, it returns +1; otherwise it returns 0.
func (d Date) Compare(d2 Date) int {
	if d.Before(d2) {
		return -1
	} else if d.After(d2) {
		return +1
	}
	return 0
}

// MarshalText implements the encoding.TextMarshaler interface.
// The output is the result of d.String().
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements the encoding.TextUnmarshaler interface.
// The date is expected to be a string in a format accepted by ParseDate.
func (d *Date) UnmarshalText(data []byte) error {
	var err error
	*d, err = ParseDate(string(data))
	return err
}
