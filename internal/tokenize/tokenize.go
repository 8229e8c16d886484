package tokenize

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrInvalidInput is returned when a transcript is not a valid UTF-8 character sequence.
var ErrInvalidInput = errors.New("invalid input: not a valid UTF-8 character sequence")

// Words splits s into tokens on runs of Unicode whitespace. Comparison
// downstream is exact, so case and punctuation are preserved.
//
// Empty and whitespace-only input yields an empty, non-nil slice.
func Words(s string) []string {
	words := strings.Fields(s)
	if words == nil {
		return []string{}
	}
	return words
}

// Validate reports whether s can be tokenized.
func Validate(s string) error {
	if !utf8.ValidString(s) {
		return ErrInvalidInput
	}
	return nil
}

// Pair validates and tokenizes a reference/hypothesis pair.
func Pair(reference, hypothesis string) (ref, hyp []string, err error) {
	if err := Validate(reference); err != nil {
		return nil, nil, fmt.Errorf("reference: %w", err)
	}
	if err := Validate(hypothesis); err != nil {
		return nil, nil, fmt.Errorf("hypothesis: %w", err)
	}
	return Words(reference), Words(hypothesis), nil
}
