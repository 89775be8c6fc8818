package at

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrNoMoreFields is returned when a field cursor is exhausted. It lets
	// callers tell a short response apart from a garbage one.
	ErrNoMoreFields = errors.New("at: no more fields")

	// ErrMalformedField is returned when a field cannot be converted to the
	// requested type.
	ErrMalformedField = errors.New("at: malformed field")

	// ErrMissingPrefix is returned when an info line does not carry the
	// expected "+CMD:" prefix.
	ErrMissingPrefix = errors.New("at: missing response prefix")
)

// TrimPrefix removes a single leading "+CMD:" style prefix from line and
// trims surrounding whitespace from the remainder.
func TrimPrefix(line, prefix string) (string, error) {
	if !strings.HasPrefix(line, prefix) {
		return "", fmt.Errorf("%w: want %q in %q", ErrMissingPrefix, prefix, line)
	}
	return strings.TrimSpace(line[len(prefix):]), nil
}

// Unquote removes every double-quote character from s.
func Unquote(s string) string {
	return strings.ReplaceAll(s, `"`, "")
}

// StripSpace removes every whitespace character from s.
func StripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n':
			return -1
		}
		return r
	}, s)
}

// Fields is a cursor over the comma-delimited fields of one info line.
// Successive Next calls yield fields in order; an empty field between two
// commas is a valid (empty) token.
type Fields struct {
	rest string
	done bool
}

// NewFields returns a cursor over the comma-delimited fields of s.
func NewFields(s string) *Fields {
	return &Fields{rest: s}
}

// FieldsAfterPrefix strips the expected "+CMD:" prefix from line and returns
// a cursor over the remaining fields.
func FieldsAfterPrefix(line, prefix string) (*Fields, error) {
	rest, err := TrimPrefix(line, prefix)
	if err != nil {
		return nil, err
	}
	return NewFields(rest), nil
}

// More reports whether at least one field remains.
func (f *Fields) More() bool {
	return !f.done
}

// Next returns the next field with surrounding whitespace trimmed, advancing
// the cursor. It returns ErrNoMoreFields when the cursor is exhausted.
func (f *Fields) Next() (string, error) {
	if f.done {
		return "", ErrNoMoreFields
	}
	if i := strings.IndexByte(f.rest, ','); i >= 0 {
		tok := f.rest[:i]
		f.rest = f.rest[i+1:]
		return strings.TrimSpace(tok), nil
	}
	tok := f.rest
	f.rest = ""
	f.done = true
	return strings.TrimSpace(tok), nil
}

// NextUnquoted returns the next field with whitespace trimmed and all
// double quotes removed.
func (f *Fields) NextUnquoted() (string, error) {
	tok, err := f.Next()
	if err != nil {
		return "", err
	}
	return Unquote(tok), nil
}

// NextInt parses the next field as a signed integer in the given base.
// Trailing non-numeric characters are rejected.
func (f *Fields) NextInt(base, bitSize int) (int64, error) {
	tok, err := f.NextUnquoted()
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(tok, base, bitSize)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformedField, tok)
	}
	return v, nil
}

// NextUint parses the next field as an unsigned integer in the given base.
// Trailing non-numeric characters are rejected.
func (f *Fields) NextUint(base, bitSize int) (uint64, error) {
	tok, err := f.NextUnquoted()
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(tok, base, bitSize)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformedField, tok)
	}
	return v, nil
}
