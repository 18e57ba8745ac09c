// Copyright (c) 2025 Nostria
// SPDX-License-Identifier: AGPL-3.0-or-later

package chronia

import (
	"errors"
	"testing"
	"time"
)

func utc(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// =============================================================================
// ETHIOPIAN TESTS
// =============================================================================

func TestEthiopian_KnownDates(t *testing.T) {
	cases := []struct {
		greg time.Time
		date Date
	}{
		// Ethiopian millennium.
		{utc(2007, 9, 12), Date{2000, 1, 1}},
		// New year 2016 EC (the year after a leap year starts one day later).
		{utc(2023, 9, 12), Date{2016, 1, 1}},
		// New year 2017 EC.
		{utc(2024, 9, 11), Date{2017, 1, 1}},
		// Genna (Christmas) 2016 EC, on Tahsas 28 after a leap year.
		{utc(2024, 1, 7), Date{2016, 4, 28}},
		// Last epagomenal day of the leap year 2015 EC.
		{utc(2023, 9, 11), Date{2015, 13, 6}},
	}

	for _, tc := range cases {
		got, err := Ethiopian.FromTime(tc.greg)
		if err != nil {
			t.Fatalf("FromTime(%v): %v", tc.greg, err)
		}
		if got != tc.date {
			t.Errorf("FromTime(%v) = %+v, want %+v", tc.greg, got, tc.date)
		}

		back, err := Ethiopian.Time(tc.date)
		if err != nil {
			t.Fatalf("Time(%+v): %v", tc.date, err)
		}
		if !back.Equal(tc.greg) {
			t.Errorf("Time(%+v) = %v, want %v", tc.date, back, tc.greg)
		}
	}
}

func TestEthiopian_LeapYears(t *testing.T) {
	if !Ethiopian.IsLeap(2015) || !Ethiopian.IsLeap(2019) {
		t.Error("2015 and 2019 EC should be leap years")
	}
	if Ethiopian.IsLeap(2016) {
		t.Error("2016 EC should not be a leap year")
	}

	n, err := Ethiopian.DaysInMonth(2015, 13)
	if err != nil || n != 6 {
		t.Errorf("Pagume in leap year = %d, %v, want 6", n, err)
	}
	n, err = Ethiopian.DaysInMonth(2016, 13)
	if err != nil || n != 5 {
		t.Errorf("Pagume in common year = %d, %v, want 5", n, err)
	}
}

func TestEthiopian_Validate(t *testing.T) {
	cases := []struct {
		date Date
		err  error
	}{
		{Date{2016, 1, 1}, nil},
		{Date{2015, 13, 6}, nil},
		{Date{2016, 13, 6}, ErrInvalidDate},
		{Date{2016, 14, 1}, ErrInvalidDate},
		{Date{2016, 0, 1}, ErrInvalidDate},
		{Date{2016, 1, 31}, ErrInvalidDate},
		{Date{2016, 1, 0}, ErrInvalidDate},
		{Date{0, 1, 1}, ErrBeforeEpoch},
	}

	for _, tc := range cases {
		err := Ethiopian.Validate(tc.date)
		if tc.err == nil && err != nil {
			t.Errorf("Validate(%+v) = %v, want nil", tc.date, err)
		}
		if tc.err != nil && !errors.Is(err, tc.err) {
			t.Errorf("Validate(%+v) = %v, want %v", tc.date, err, tc.err)
		}
	}
}

func TestEthiopian_BeforeEpoch(t *testing.T) {
	_, err := Ethiopian.FromTime(utc(5, 1, 1))
	if !errors.Is(err, ErrBeforeEpoch) {
		t.Errorf("FromTime far in the past = %v, want ErrBeforeEpoch", err)
	}
}

// =============================================================================
// CHRONIA TESTS
// =============================================================================

func TestChronia_Epoch(t *testing.T) {
	d, err := Chronia.FromTime(utc(2000, 1, 1))
	if err != nil {
		t.Fatalf("FromTime: %v", err)
	}
	if (d != Date{1, 1, 1}) {
		t.Errorf("epoch = %+v, want {1 1 1}", d)
	}
}

func TestChronia_YearStartsTrackJanuary(t *testing.T) {
	// Chronia shares the Gregorian leap rule and year length, so year y
	// begins on 1 January of Gregorian year 1999+y.
	for y := 1; y <= 30; y++ {
		got, err := Chronia.Time(Date{y, 1, 1})
		if err != nil {
			t.Fatalf("Time({%d 1 1}): %v", y, err)
		}
		want := utc(1999+y, 1, 1)
		if !got.Equal(want) {
			t.Errorf("year %d starts %v, want %v", y, got, want)
		}
	}
}

func TestChronia_MonthLengths(t *testing.T) {
	// Odd months 31 days, even 30, final month 29 (30 in leap years).
	for m := 1; m <= 11; m++ {
		want := 30
		if m%2 == 1 {
			want = 31
		}
		if n, _ := Chronia.DaysInMonth(1, m); n != want {
			t.Errorf("month %d = %d days, want %d", m, n, want)
		}
	}
	if n, _ := Chronia.DaysInMonth(1, 12); n != 29 {
		t.Errorf("month 12 common = %d days, want 29", n)
	}
	if n, _ := Chronia.DaysInMonth(4, 12); n != 30 {
		t.Errorf("month 12 leap = %d days, want 30", n)
	}
}

func TestChronia_BeforeEpoch(t *testing.T) {
	d, err := Chronia.FromTime(utc(1999, 12, 31))
	if err != nil {
		t.Fatalf("FromTime: %v", err)
	}
	// Year 0 is a leap year under the Gregorian rule, so its final month
	// has 30 days.
	if (d != Date{0, 12, 30}) {
		t.Errorf("day before epoch = %+v, want {0 12 30}", d)
	}

	back, err := Chronia.Time(d)
	if err != nil {
		t.Fatalf("Time: %v", err)
	}
	if !back.Equal(utc(1999, 12, 31)) {
		t.Errorf("round trip = %v", back)
	}
}

// =============================================================================
// INVARIANT TESTS
// =============================================================================

// TestRoundTrip_Exhaustive walks a span of consecutive days through both
// systems and checks that conversion is lossless and gap-free.
func TestRoundTrip_Exhaustive(t *testing.T) {
	systems := []*System{Ethiopian, Chronia}
	start := utc(2019, 1, 1)

	for _, sys := range systems {
		var prev Date
		for i := 0; i < 3000; i++ {
			day := start.AddDate(0, 0, i)

			d, err := sys.FromTime(day)
			if err != nil {
				t.Fatalf("%s: FromTime(%v): %v", sys.Name, day, err)
			}
			if err := sys.Validate(d); err != nil {
				t.Fatalf("%s: FromTime produced invalid date %+v: %v",
					sys.Name, d, err)
			}

			back, err := sys.Time(d)
			if err != nil {
				t.Fatalf("%s: Time(%+v): %v", sys.Name, d, err)
			}
			if !back.Equal(day) {
				t.Fatalf("%s: round trip %v -> %+v -> %v", sys.Name, day, d, back)
			}

			if i > 0 {
				diff, err := sys.DaysBetween(prev, d)
				if err != nil || diff != 1 {
					t.Fatalf("%s: consecutive days %+v -> %+v differ by %d (%v)",
						sys.Name, prev, d, diff, err)
				}
			}
			prev = d
		}
	}
}

func TestAddDays(t *testing.T) {
	// Crossing Pagume into the new Ethiopian year.
	d, err := Ethiopian.AddDays(Date{2015, 13, 1}, 6)
	if err != nil {
		t.Fatalf("AddDays: %v", err)
	}
	if (d != Date{2016, 1, 1}) {
		t.Errorf("AddDays across Pagume = %+v, want {2016 1 1}", d)
	}

	// Backwards across a year boundary.
	d, err = Chronia.AddDays(Date{5, 1, 1}, -1)
	if err != nil {
		t.Fatalf("AddDays: %v", err)
	}
	if (d != Date{4, 12, 30}) {
		t.Errorf("AddDays back across leap year = %+v, want {4 12 30}", d)
	}
}

// =============================================================================
// FORMATTING / LOOKUP TESTS
// =============================================================================

func TestFormat(t *testing.T) {
	if got := Ethiopian.Format(Date{2016, 1, 12}); got != "12 Meskerem 2016" {
		t.Errorf("Format = %q", got)
	}
	if got := Chronia.Format(Date{25, 3, 7}); got != "7 Tritos 25" {
		t.Errorf("Format = %q", got)
	}
}

func TestLookup(t *testing.T) {
	for _, name := range []string{"ethiopian", "chronia"} {
		sys, err := Lookup(name)
		if err != nil || sys.Name != name {
			t.Errorf("Lookup(%q) = %v, %v", name, sys, err)
		}
	}
	if _, err := Lookup("gregorian"); !errors.Is(err, ErrUnknownName) {
		t.Errorf("Lookup(gregorian) = %v, want ErrUnknownName", err)
	}
}
