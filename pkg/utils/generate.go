package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// GenerateNumericCode returns a zero-padded numeric code of the given length
// drawn from crypto/rand.
func GenerateNumericCode(length int) (string, error) {
	if length <= 0 {
		length = 6
	}

	code := make([]byte, length)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("generate code digit: %w", err)
		}
		code[i] = byte('0' + n.Int64())
	}

	return string(code), nil
}

// GenerateIdempotencyKey builds a stable key for a provider call so a retry of
// the same logical operation is deduplicated by the provider.
func GenerateIdempotencyKey(scope, id string, version int) string {
	return fmt.Sprintf("%s-%s-v%d", scope, id, version)
}

// GenerateReceiptNumber format: RCPT-YYYYMMDD-<reference>
func GenerateReceiptNumber(reference int64, at time.Time) string {
	return fmt.Sprintf("RCPT-%s-%06d", at.Format("20060102"), reference)
}
