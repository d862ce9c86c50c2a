package domain

import (
	"errors"
	"testing"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		name    string
		input   string
		want    int64
		wantErr bool
	}{
		{name: "whole amount", input: "100.00", want: 10000},
		{name: "no fraction digits", input: "7", want: 700},
		{name: "one fraction digit", input: "10.5", want: 1050},
		{name: "smallest unit", input: "0.01", want: 1},
		{name: "zero", input: "0.00", want: 0},
		{name: "negative preserved", input: "-3.25", want: -325},
		{name: "three fraction digits rejected", input: "10.005", wantErr: true},
		{name: "not a number", input: "ten", wantErr: true},
		{name: "empty string", input: "", wantErr: true},
		{name: "exceeds int64 cents", input: "99999999999999999999.00", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseAmount(tc.input)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q, got %d", tc.input, got)
				}
				if !errors.Is(err, ErrMalformedAmount) {
					t.Fatalf("expected ErrMalformedAmount, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error for %q: %v", tc.input, err)
			}
			if got != tc.want {
				t.Fatalf("ParseAmount(%q) = %d, want %d", tc.input, got, tc.want)
			}
		})
	}
}

func TestFormatAmount(t *testing.T) {
	cases := []struct {
		cents int64
		want  string
	}{
		{cents: 10000, want: "100.00"},
		{cents: 1050, want: "10.50"},
		{cents: 1, want: "0.01"},
		{cents: 0, want: "0.00"},
		{cents: -325, want: "-3.25"},
	}

	for _, tc := range cases {
		if got := FormatAmount(tc.cents); got != tc.want {
			t.Errorf("FormatAmount(%d) = %q, want %q", tc.cents, got, tc.want)
		}
	}
}

func TestParseFormatRoundTrip(t *testing.T) {
	for _, s := range []string{"0.01", "10.50", "100.00", "9999.99"} {
		cents, err := ParseAmount(s)
		if err != nil {
			t.Fatalf("ParseAmount(%q) failed: %v", s, err)
		}
		if got := FormatAmount(cents); got != s {
			t.Errorf("round trip of %q produced %q", s, got)
		}
	}
}
