package core

import "testing"

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out Amount
		ok  bool
	}{
		{"1", 100, true},
		{"1.0", 100, true},
		{"1.23", 123, true},
		{"1,23", 123, true},
		{"0.01", 1, true},
		{"1.005", 101, true}, // half away from zero
		{"-1.005", -101, true},
		{" 2.50 ", 250, true},
		{"-150.00", -15000, true},
		{"0.1", 10, true},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got, err)
			}
		} else {
			if err == nil {
				t.Fatalf("%q expected error", tc.in)
			}
		}
	}
}

func TestToMinorRoundTrip(t *testing.T) {
	// Values exact at two decimals survive the round trip.
	for _, v := range []float64{0, 0.01, 0.1, 0.2, 0.3, 1234.56, -99.99, 1000000} {
		if got := ToDecimal(ToMinor(v)); got != v {
			t.Fatalf("round trip %v -> %v", v, got)
		}
	}
}

func TestToMinorNoFloatDrift(t *testing.T) {
	// 0.1 + 0.2 != 0.3 in binary floats; in minor units it is exact.
	if ToMinor(0.1)+ToMinor(0.2) != ToMinor(0.3) {
		t.Fatalf("fixed-point addition drifted")
	}
}

func TestToMinorRounding(t *testing.T) {
	cases := []struct {
		in  float64
		out Amount
	}{
		{1.005, 101},
		{-1.005, -101},
		{2.675, 268},
		{2.994, 299},
		{-2.996, -300},
	}
	for _, tc := range cases {
		if got := ToMinor(tc.in); got != tc.out {
			t.Fatalf("ToMinor(%v) expected %d, got %d", tc.in, tc.out, got)
		}
	}
}

func TestFormat(t *testing.T) {
	cases := []struct {
		in     Amount
		locale string
		out    string
	}{
		{123456789, "id", "1.234.567,89"},
		{123456789, "en", "1,234,567.89"},
		{-5000, "id", "-50,00"},
		{7, "en", "0.07"},
		{100, "id", "1,00"},
		{100000000, "en", "1,000,000.00"},
	}
	for _, tc := range cases {
		if got := Format(tc.in, tc.locale); got != tc.out {
			t.Fatalf("Format(%d, %q) expected %q, got %q", tc.in, tc.locale, tc.out, got)
		}
	}
}
