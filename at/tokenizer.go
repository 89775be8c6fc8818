package at

import (
	"bufio"
	"bytes"
	"errors"
	"strconv"
	"strings"
)

// MaxPrefixLookahead bounds the scan for a data-prefix line terminator. A
// candidate marker with no terminator within this window is treated as not a
// marker, so truncated noise cannot stall classification.
const MaxPrefixLookahead = 64

// DefaultMaxPayload is the largest raw payload a data-prefix line may
// declare unless the caller configures a different bound.
const DefaultMaxPayload = 1500

// ErrBadDataPrefix is returned by the Splitter when a data-prefix line
// carries an unparseable length field or declares a payload larger than the
// configured maximum.
var ErrBadDataPrefix = errors.New("at: malformed data prefix")

// PrefixStatus is the outcome of classifying a buffer against the known
// data-prefix markers.
type PrefixStatus int

const (
	// PrefixNone means the buffer does not start with a data-prefix marker.
	PrefixNone PrefixStatus = iota
	// PrefixNeedMore means a marker was seen but the line terminator or the
	// declared payload has not fully arrived. The caller must re-invoke
	// after more bytes are available.
	PrefixNeedMore
	// PrefixComplete means the marker line and its full payload are buffered.
	PrefixComplete
	// PrefixMalformed means the marker carried an unparseable or oversized
	// length field.
	PrefixMalformed
)

// DataPrefixInfo describes a matched data-prefix line.
type DataPrefixInfo struct {
	// Marker is the literal prefix that matched, e.g. "+QIRD:".
	Marker string
	// Length is the declared payload length in bytes.
	Length int
	// Offset is the byte offset where the raw payload begins, one past the
	// marker line's terminator.
	Offset int
}

// ParseDataPrefix inspects the leading bytes of data for one of the given
// data-prefix markers. It is a pure function: classifying the same buffer
// twice yields the same result.
func ParseDataPrefix(data []byte, markers []string, maxPayload int) (DataPrefixInfo, PrefixStatus) {
	for _, m := range markers {
		if !bytes.HasPrefix(data, []byte(m)) {
			continue
		}
		win := data
		if len(win) > MaxPrefixLookahead {
			win = win[:MaxPrefixLookahead]
		}
		i := bytes.Index(win, []byte(CRLF))
		if i < 0 {
			if len(data) >= MaxPrefixLookahead {
				// No terminator within the lookahead window: not a marker.
				return DataPrefixInfo{}, PrefixNone
			}
			return DataPrefixInfo{}, PrefixNeedMore
		}
		field := strings.TrimSpace(string(data[len(m):i]))
		if c := strings.IndexByte(field, ','); c >= 0 {
			field = strings.TrimSpace(field[:c])
		}
		n, err := strconv.ParseUint(field, 10, 31)
		if err != nil || int(n) > maxPayload {
			return DataPrefixInfo{}, PrefixMalformed
		}
		info := DataPrefixInfo{Marker: m, Length: int(n), Offset: i + len(CRLF)}
		if len(data) < info.Offset+info.Length {
			return info, PrefixNeedMore
		}
		return info, PrefixComplete
	}
	return DataPrefixInfo{}, PrefixNone
}

// Splitter tokenizes the modem byte stream for a bufio.Scanner. It splits on
// CRLF line endings, recognizes the "> " data-entry prompt, and, after a
// data-prefix line such as "+QIRD: 4", emits the following declared-length
// raw payload as a single token. Use the Split method value with
// bufio.Scanner; one Splitter serves exactly one scanner since it tracks the
// pending payload length between calls.
//
// The Splitter assumes "No Echo" mode (ATE0). Echoed command lines still
// tokenize cleanly but are classified as TypeEcho and ignored upstream.
type Splitter struct {
	markers    []string
	maxPayload int
	pending    int
}

// NewSplitter returns a Splitter recognizing the given data-prefix markers.
// Nil markers selects the default set; maxPayload <= 0 selects
// DefaultMaxPayload.
func NewSplitter(markers []string, maxPayload int) *Splitter {
	if markers == nil {
		markers = DataPrefixes
	}
	if maxPayload <= 0 {
		maxPayload = DefaultMaxPayload
	}
	return &Splitter{markers: markers, maxPayload: maxPayload}
}

// Split implements bufio.SplitFunc.
func (s *Splitter) Split(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if s.pending > 0 {
		if len(data) >= s.pending {
			n := s.pending
			s.pending = 0
			return n, data[:n], nil
		}
		if atEOF {
			s.pending = 0
			return len(data), data, nil
		}
		return 0, nil, nil
	}

	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	// Data-entry prompt has no line terminator.
	if bytes.HasPrefix(data, []byte(Prompt)) {
		return len(Prompt), data[:len(Prompt)], nil
	}

	switch info, status := ParseDataPrefix(data, s.markers, s.maxPayload); status {
	case PrefixMalformed:
		return 0, nil, ErrBadDataPrefix
	case PrefixNeedMore:
		if info.Offset == 0 && !atEOF {
			// Marker line terminator not yet buffered.
			return 0, nil, nil
		}
		fallthrough
	case PrefixComplete:
		if info.Offset > 0 {
			// Emit the marker line now; the payload is the next token.
			s.pending = info.Length
			return info.Offset, data[:info.Offset-len(CRLF)], nil
		}
	}

	if i := bytes.Index(data, []byte(CRLF)); i >= 0 {
		return i + len(CRLF), data[:i], nil
	}

	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

var _ bufio.SplitFunc = NewSplitter(nil, 0).Split

// DeclaredLength extracts the payload length declared by a complete
// data-prefix line, e.g. 4 from "+QIRD: 4".
func DeclaredLength(line string) (int, error) {
	for _, m := range DataPrefixes {
		if !strings.HasPrefix(line, m) {
			continue
		}
		field := strings.TrimSpace(line[len(m):])
		if c := strings.IndexByte(field, ','); c >= 0 {
			field = strings.TrimSpace(field[:c])
		}
		n, err := strconv.ParseUint(field, 10, 31)
		if err != nil {
			return 0, ErrBadDataPrefix
		}
		return int(n), nil
	}
	return 0, ErrBadDataPrefix
}

// Classify identifies the nature of one complete line of modem output.
// It is idempotent: replaying a completed line yields the same tag.
func Classify(line string) LineType {
	if line == Prompt || line == strings.TrimSpace(Prompt) || line == PromptConnect {
		return TypePrompt
	}

	if hasAnyPrefix(line, DataPrefixes) {
		return TypeDataPrefix
	}

	for _, t := range finalTokens {
		if line == t {
			return TypeFinal
		}
	}
	if hasAnyPrefix(line, finalPrefixes) {
		return TypeFinal
	}

	for _, t := range urcTokens {
		if line == t {
			return TypeURC
		}
	}
	if hasAnyPrefix(line, urcPrefixes) {
		return TypeURC
	}

	if strings.HasPrefix(line, "AT") {
		return TypeEcho
	}

	return TypePlain
}

func hasAnyPrefix(line string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(line, p) {
			return true
		}
	}
	return false
}
