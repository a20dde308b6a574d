package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrNoSequence is returned for quotation numbers without a trailing number
var ErrNoSequence = errors.New("quotation number has no numeric suffix")

// QuotationNumber is a quotation number split into its prefix and counter
type QuotationNumber struct {
	Prefix   string
	Sequence int
	// Width is the zero-padded width of the counter
	Width int
}

// String reassembles the number keeping the padding
func (q QuotationNumber) String() string {
	return fmt.Sprintf("%s%0*d", q.Prefix, q.Width, q.Sequence)
}

// SplitQuotationNumber splits "QT-2024-0007" into "QT-2024-", 7 and width 4
func SplitQuotationNumber(s string) (QuotationNumber, error) {
	s = strings.TrimSpace(s)
	i := len(s)
	for i > 0 && s[i-1] >= '0' && s[i-1] <= '9' {
		i--
	}
	digits := s[i:]
	if digits == "" {
		return QuotationNumber{}, fmt.Errorf("%w: %q", ErrNoSequence, s)
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return QuotationNumber{}, fmt.Errorf("invalid quotation number %q: %w", s, err)
	}
	return QuotationNumber{Prefix: s[:i], Sequence: n, Width: len(digits)}, nil
}

// NextQuotationNumber returns the number following s. The counter keeps its
// padding and widens when it overflows.
func NextQuotationNumber(s string) (string, error) {
	q, err := SplitQuotationNumber(s)
	if err != nil {
		return "", err
	}
	q.Sequence++
	return q.String(), nil
}
