package payments

import (
	"crypto/rand"
	"fmt"
)

// Charset avoids 0/O and 1/I so references survive being read over chat.
const referenceCharset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const referenceLength = 8

// NewOrderReference returns a customer-facing order reference like ARM-7KQ2M9XF.
func NewOrderReference() (string, error) {
	buf := make([]byte, referenceLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate order reference: %w", err)
	}
	for i, b := range buf {
		buf[i] = referenceCharset[int(b)%len(referenceCharset)]
	}
	return "ARM-" + string(buf), nil
}
