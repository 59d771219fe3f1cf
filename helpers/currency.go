package helpers

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// FormatRupiah formats an amount as Indonesian Rupiah, rounded to whole rupiah
func FormatRupiah(amount decimal.Decimal) string {
	value := amount.Round(0)

	negative := value.IsNegative()
	if negative {
		value = value.Neg()
	}

	str := value.String()
	length := len(str)

	var b strings.Builder
	for i, digit := range str {
		if i > 0 && (length-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(digit)
	}

	if negative {
		return "Rp -" + b.String()
	}
	return "Rp " + b.String()
}

// FormatPct formats a percentage change with sign, or "-" when undefined
func FormatPct(pct *float64) string {
	if pct == nil {
		return "-"
	}
	return fmt.Sprintf("%+.1f%%", *pct)
}
