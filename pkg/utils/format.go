package utils

import (
	"fmt"
	"math"
)

// Round1 rounds x to one decimal place. Price deltas and applied totals are
// kept at this precision so toggling a task twice restores totals exactly.
func Round1(x float64) float64 {
	return math.Round(x*10) / 10
}

// FormatMoney formats a price with one decimal place and a thousands-free
// plain rendering suitable for terminal tables.
func FormatMoney(v float64) string {
	return fmt.Sprintf("%.1f", v)
}

// FormatPercent formats a fractional rate as a signed percentage.
func FormatPercent(rate float64) string {
	return fmt.Sprintf("%+.2f%%", rate*100)
}

// FormatSigned formats a price delta with an explicit sign.
func FormatSigned(v float64) string {
	return fmt.Sprintf("%+.1f", v)
}
