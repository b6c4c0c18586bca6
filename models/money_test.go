package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestMoneyAmount_DecimalRoundTrip(t *testing.T) {
	m := NewMoneyFromDecimal(decimal.RequireFromString("1234.56"))
	if m.Centavos() != 123456 {
		t.Fatalf("centavos %d, want 123456", m.Centavos())
	}
	if got := m.Decimal().String(); got != "1234.56" {
		t.Fatalf("decimal %q, want 1234.56", got)
	}
}

func TestMoneyAmount_FromDecimalRoundsHalfUp(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"0.005", 1},
		{"0.004", 0},
		{"10.125", 1013},
		{"-0.005", -1},
	}
	for _, tc := range cases {
		if got := NewMoneyFromDecimal(decimal.RequireFromString(tc.in)); got.Centavos() != tc.want {
			t.Fatalf("%s: got %d centavos, want %d", tc.in, got.Centavos(), tc.want)
		}
	}
}

func TestMoneyAmount_MulRateRoundsHalfUp(t *testing.T) {
	// 100,000.00 * 0.015 = 1,500.00 exactly.
	m := NewMoneyFromCentavos(10_000_000)
	if got := m.MulRate(decimal.RequireFromString("0.015")); got != NewMoneyFromCentavos(150_000) {
		t.Fatalf("got %s, want 1500.00", got)
	}
	// 0.33 * 0.5 = 0.165 -> 0.17 half-up.
	m = NewMoneyFromCentavos(33)
	if got := m.MulRate(decimal.RequireFromString("0.5")); got != NewMoneyFromCentavos(17) {
		t.Fatalf("got %s, want 0.17", got)
	}
}

func TestMoneyAmount_String(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{0, "0.00"},
		{5, "0.05"},
		{123456, "1234.56"},
		{-123456, "-1234.56"},
	}
	for _, tc := range cases {
		if got := NewMoneyFromCentavos(tc.in).String(); got != tc.want {
			t.Fatalf("%d: got %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestMoneyAmount_Min(t *testing.T) {
	a := NewMoneyFromCentavos(100)
	b := NewMoneyFromCentavos(200)
	if a.Min(b) != a || b.Min(a) != a {
		t.Fatal("Min did not pick the smaller amount")
	}
}
