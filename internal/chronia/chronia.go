// Copyright (c) 2025 Nostria
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chronia implements non-Gregorian calendar arithmetic for the
// calendar systems the client can display: the Ethiopian calendar and the
// Chronia calendar.
//
// A System is defined by a reference epoch (the Gregorian date of year 1,
// month 1, day 1), a leap-year predicate over the system's own year number,
// and a month-length table. Conversion in both directions goes through a
// day offset from the epoch, so round trips are lossless by construction.
package chronia

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrInvalidDate = errors.New("invalid calendar date")
	ErrBeforeEpoch = errors.New("date precedes calendar epoch")
	ErrUnknownName = errors.New("unknown calendar system")
)

// =============================================================================
// TYPES
// =============================================================================

// Date is a calendar date in some System. Month and Day are 1-based.
type Date struct {
	Year  int
	Month int
	Day   int
}

// System describes one calendar.
type System struct {
	// Name identifies the system ("ethiopian", "chronia").
	Name string

	// epoch is the Gregorian instant (UTC midnight) of year 1, month 1,
	// day 1 in this calendar. All conversion is day arithmetic against it.
	epoch time.Time

	// monthNames holds one name per month, in order.
	monthNames []string

	// isLeap reports whether the calendar year is a leap year.
	isLeap func(year int) bool

	// monthDays returns the length of a month (1-based) given the leap flag.
	monthDays func(month int, leap bool) int

	// minYear is the smallest representable year. Years below it are
	// rejected rather than extrapolated.
	minYear int
}

// =============================================================================
// SYSTEMS
// =============================================================================

// Ethiopian is the Ethiopian calendar: twelve 30-day months followed by
// Pagume (5 days, 6 in leap years), leap when year % 4 == 3. Anchored at
// the Ethiopian millennium: 1 Meskerem 2000 EC = 12 September 2007.
var Ethiopian = &System{
	Name: "ethiopian",
	// Year 1 derived from the millennium anchor by whole-year arithmetic:
	// years 1..1999 are 365 days each plus one leap day per year % 4 == 3.
	epoch: anchorEpoch(time.Date(2007, 9, 12, 0, 0, 0, 0, time.UTC), 2000,
		func(y int) int {
			if y%4 == 3 {
				return 366
			}
			return 365
		}),
	monthNames: []string{
		"Meskerem", "Tikimt", "Hidar", "Tahsas", "Tir", "Yekatit",
		"Megabit", "Miyazya", "Ginbot", "Sene", "Hamle", "Nehase", "Pagume",
	},
	isLeap: func(y int) bool { return y%4 == 3 },
	monthDays: func(m int, leap bool) int {
		if m < 13 {
			return 30
		}
		if leap {
			return 6
		}
		return 5
	},
	minYear: 1,
}

// Chronia is the Chronia calendar: twelve months alternating 31/30 days,
// with the final month shortened to 29 days (30 in leap years). Year 1
// begins on 1 January 2000; leap years follow the Gregorian rule applied
// to the Chronia year number. Dates before the epoch are representable
// (year 0, -1, ...).
var Chronia = &System{
	Name:  "chronia",
	epoch: time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
	monthNames: []string{
		"Protos", "Deuteros", "Tritos", "Tetartos", "Pemptos", "Hektos",
		"Hebdomos", "Ogdoos", "Enatos", "Dekatos", "Hendekatos", "Dodekatos",
	},
	isLeap: func(y int) bool {
		return y%4 == 0 && (y%100 != 0 || y%400 == 0)
	},
	monthDays: func(m int, leap bool) int {
		if m == 12 {
			if leap {
				return 30
			}
			return 29
		}
		if m%2 == 1 {
			return 31
		}
		return 30
	},
}

// Lookup returns the system with the given name.
func Lookup(name string) (*System, error) {
	switch name {
	case "ethiopian":
		return Ethiopian, nil
	case "chronia":
		return Chronia, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownName, name)
	}
}

// anchorEpoch walks an anchor date (year anchorYear, month 1, day 1) back
// to year 1, yielding the Gregorian date of year 1, month 1, day 1.
func anchorEpoch(anchor time.Time, anchorYear int, yearDays func(int) int) time.Time {
	days := 0
	for y := 1; y < anchorYear; y++ {
		days += yearDays(y)
	}
	return anchor.AddDate(0, 0, -days)
}

// =============================================================================
// CORE ARITHMETIC
// =============================================================================

// IsLeap reports whether the calendar year is a leap year.
func (s *System) IsLeap(year int) bool { return s.isLeap(year) }

// Months returns the number of months in a year.
func (s *System) Months() int { return len(s.monthNames) }

// DaysInMonth returns the length of the given month.
func (s *System) DaysInMonth(year, month int) (int, error) {
	if month < 1 || month > s.Months() {
		return 0, fmt.Errorf("%w: month %d", ErrInvalidDate, month)
	}
	return s.monthDays(month, s.isLeap(year)), nil
}

// daysInYear is the total length of a calendar year.
func (s *System) daysInYear(year int) int {
	leap := s.isLeap(year)
	total := 0
	for m := 1; m <= s.Months(); m++ {
		total += s.monthDays(m, leap)
	}
	return total
}

// Validate checks that the date names a real day in this calendar.
func (s *System) Validate(d Date) error {
	if s.minYear != 0 && d.Year < s.minYear {
		return fmt.Errorf("%w: year %d", ErrBeforeEpoch, d.Year)
	}
	if d.Month < 1 || d.Month > s.Months() {
		return fmt.Errorf("%w: month %d", ErrInvalidDate, d.Month)
	}
	max := s.monthDays(d.Month, s.isLeap(d.Year))
	if d.Day < 1 || d.Day > max {
		return fmt.Errorf("%w: day %d of month %d (max %d)",
			ErrInvalidDate, d.Day, d.Month, max)
	}
	return nil
}

// offset returns the number of days between the epoch and the date.
// Day 0 is year 1, month 1, day 1.
func (s *System) offset(d Date) int {
	days := 0
	if d.Year >= 1 {
		for y := 1; y < d.Year; y++ {
			days += s.daysInYear(y)
		}
	} else {
		for y := d.Year; y < 1; y++ {
			days -= s.daysInYear(y)
		}
	}
	leap := s.isLeap(d.Year)
	for m := 1; m < d.Month; m++ {
		days += s.monthDays(m, leap)
	}
	return days + d.Day - 1
}

// Time converts a calendar date to its Gregorian UTC midnight.
func (s *System) Time(d Date) (time.Time, error) {
	if err := s.Validate(d); err != nil {
		return time.Time{}, err
	}
	return s.epoch.AddDate(0, 0, s.offset(d)), nil
}

// FromTime converts a Gregorian time to a calendar date. The time is
// truncated to its UTC day.
func (s *System) FromTime(t time.Time) (Date, error) {
	// Day counts are computed by civil arithmetic rather than Duration
	// subtraction, which overflows on multi-millennium spans.
	off := civilDays(t) - civilDays(s.epoch)

	year := 1
	if off >= 0 {
		for off >= s.daysInYear(year) {
			off -= s.daysInYear(year)
			year++
		}
	} else {
		if s.minYear >= 1 {
			return Date{}, fmt.Errorf("%w: %s", ErrBeforeEpoch,
				t.UTC().Format("2006-01-02"))
		}
		for off < 0 {
			year--
			off += s.daysInYear(year)
		}
	}

	leap := s.isLeap(year)
	month := 1
	for off >= s.monthDays(month, leap) {
		off -= s.monthDays(month, leap)
		month++
	}
	return Date{Year: year, Month: month, Day: off + 1}, nil
}

// AddDays returns the date n days after d (n may be negative).
func (s *System) AddDays(d Date, n int) (Date, error) {
	t, err := s.Time(d)
	if err != nil {
		return Date{}, err
	}
	return s.FromTime(t.AddDate(0, 0, n))
}

// DaysBetween returns b - a in days.
func (s *System) DaysBetween(a, b Date) (int, error) {
	if err := s.Validate(a); err != nil {
		return 0, err
	}
	if err := s.Validate(b); err != nil {
		return 0, err
	}
	return s.offset(b) - s.offset(a), nil
}

// civilDays returns the number of days between the UTC day of t and
// 1970-01-01 (negative before). Proleptic Gregorian, exact over the full
// int range, after Hinnant's days_from_civil.
func civilDays(t time.Time) int {
	y, month, d := t.UTC().Date()
	m := int(month)
	if m <= 2 {
		y--
	}
	era := y / 400
	if y < 0 && y%400 != 0 {
		era--
	}
	yoe := y - era*400
	doy := (153*((m+9)%12)+2)/5 + d - 1
	doe := yoe*365 + yoe/4 - yoe/100 + doy
	return era*146097 + doe - 719468
}

// MonthName returns the name of the 1-based month.
func (s *System) MonthName(month int) string {
	if month < 1 || month > s.Months() {
		return ""
	}
	return s.monthNames[month-1]
}

// Format renders a date as "12 Meskerem 2016".
func (s *System) Format(d Date) string {
	return fmt.Sprintf("%d %s %d", d.Day, s.MonthName(d.Month), d.Year)
}
