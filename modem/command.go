package modem

import (
	"time"
)

// ResponseShape declares what a command expects back from the module. The
// exchange engine matches incoming lines against the shape and reports a
// mismatch as ErrProtocolMismatch.
type ResponseShape int

const (
	// ShapeNone expects only a final result code. Stray info lines are
	// routed as unsolicited.
	ShapeNone ResponseShape = iota
	// ShapePrefix expects at least one info line carrying Prefix, then a
	// final result code.
	ShapePrefix
	// ShapeMultiline expects zero or more info lines carrying Prefix, then a
	// final result code. An immediate final with no lines is a valid empty
	// response.
	ShapeMultiline
	// ShapeData expects a data-prefix line announcing a declared-length raw
	// payload, which is copied into Sink, then a final result code.
	ShapeData
	// ShapePrompt expects a data-entry prompt ("> " or CONNECT). At the
	// prompt the Loop writes Payload verbatim and the exchange continues to
	// the final result code, so nothing can interleave between prompt and
	// payload.
	ShapePrompt
)

// Command describes one request/response exchange. It is immutable for the
// duration of the exchange.
type Command struct {
	// Text is the full command line, e.g. `AT+QIACT=1`.
	Text string

	// Payload is written verbatim when the data-entry prompt of a
	// ShapePrompt exchange arrives (socket send, file upload).
	Payload []byte

	// Shape selects the expected response form.
	Shape ResponseShape

	// Prefix is the expected info-line prefix for ShapePrefix and
	// ShapeMultiline, e.g. "+QIACT:". Empty means the first plain line is
	// accepted regardless of prefix (bare replies such as +CIMI).
	Prefix string

	// Success lists accepted success final tokens. Empty means {"OK"}.
	// Socket sends use {"SEND OK"}.
	Success []string

	// Sink receives the raw payload of a ShapeData exchange. Its length is
	// the sink capacity: a payload declaring more is truncated, the excess
	// read and discarded, and the truncation surfaced to the caller.
	Sink []byte

	// Timeout overrides the configured default exchange timeout. Slow radio
	// operations (PDN activation) set multi-minute values here.
	Timeout time.Duration
}

// succeededBy reports whether the final token resolves this command as a
// success.
func (c Command) succeededBy(final string) bool {
	if len(c.Success) == 0 {
		return final == "OK"
	}
	for _, s := range c.Success {
		if final == s {
			return true
		}
	}
	return false
}

// Line is one info line of a response, optionally owning the raw data blob
// that followed it.
type Line struct {
	Text string
	Data []byte
}

// Response is the assembled result of one exchange: the info lines in
// arrival order and the final token that terminated it. It is owned by the
// caller once the exchange resolves.
type Response struct {
	Lines []Line
	Final string

	// DataLen is the payload length declared by the data-prefix line of a
	// ShapeData exchange. It may exceed the bytes written to the sink.
	DataLen int
	// Received is the number of payload bytes written to the sink.
	Received int
	// Truncated reports that DataLen exceeded the sink capacity.
	Truncated bool
}

// FirstLine returns the text of the first info line, or an empty string.
func (r *Response) FirstLine() string {
	if len(r.Lines) == 0 {
		return ""
	}
	return r.Lines[0].Text
}

// exchangeRequest carries one Command from a caller to the Loop.
type exchangeRequest struct {
	cmd      Command
	respChan chan exchangeResult
}

// exchangeResult is what the Loop hands back when an exchange resolves.
type exchangeResult struct {
	resp *Response
	err  error
}
