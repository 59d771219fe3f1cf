package helpers

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestFormatRupiah(t *testing.T) {
	tests := []struct {
		amount   string
		expected string
	}{
		{"0", "Rp 0"},
		{"999", "Rp 999"},
		{"1000", "Rp 1.000"},
		{"12500", "Rp 12.500"},
		{"1234567.6", "Rp 1.234.568"},
		{"-45000", "Rp -45.000"},
	}

	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			got := FormatRupiah(decimal.RequireFromString(tt.amount))
			if got != tt.expected {
				t.Errorf("FormatRupiah(%s) = %s, want %s", tt.amount, got, tt.expected)
			}
		})
	}
}

func TestFormatPct(t *testing.T) {
	up, down := 30.0, -12.34
	if got := FormatPct(&up); got != "+30.0%" {
		t.Errorf("got %s", got)
	}
	if got := FormatPct(&down); got != "-12.3%" {
		t.Errorf("got %s", got)
	}
	if got := FormatPct(nil); got != "-" {
		t.Errorf("got %s", got)
	}
}
