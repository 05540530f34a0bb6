package utils

import "math"

// ToCents converts a decimal amount to integer minor units, rounding half away from zero.
func ToCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// FromCents converts minor units back to a decimal amount for display.
func FromCents(cents int64) float64 {
	return float64(cents) / 100
}

// PercentOf returns rate percent of cents, rounded once to the nearest cent.
func PercentOf(cents int64, rate float64) int64 {
	return int64(math.Round(float64(cents) * rate / 100))
}
