// Package at implements the lexical layer of the AT command protocol:
// splitting the transport byte stream into lines, prompts and raw payload
// tokens, classifying lines, and parsing comma-delimited response fields.
package at

const (
	// Terminal Control
	CRLF          = "\r\n"
	Prompt        = "> "
	PromptConnect = "CONNECT"

	// Final result codes
	OK         = "OK"
	ERROR      = "ERROR"
	SendOK     = "SEND OK"
	SendFail   = "SEND FAIL"
	NoCarrier  = "NO CARRIER"
	NoDialtone = "NO DIALTONE"
	Busy       = "BUSY"
	NoAnswer   = "NO ANSWER"
	CmeError   = "+CME ERROR:"
	CmsError   = "+CMS ERROR:"

	// URCs (Unsolicited Result Codes)
	UrcGeneric     = "+QIURC:"
	UrcSSL         = "+QSSLURC:"
	UrcIndication  = "+QIND:"
	UrcSocketOpen  = "+QIOPEN:"
	UrcSSLOpen     = "+QSSLOPEN:"
	UrcNetworkReg  = "+CEREG:"
	UrcSimStat     = "+QSIMSTAT:"
	UrcReady       = "RDY"
	UrcAppReady    = "APP RDY"
	UrcPoweredDown = "POWERED DOWN"

	// Data-prefix markers announcing a declared-length raw payload
	DataPrefixRecv    = "+QIRD:"
	DataPrefixSSLRecv = "+QSSLRECV:"
)

// LineType tags a received line according to its role in the protocol.
type LineType int

const (
	TypeFinal      LineType = iota // OK, ERROR, SEND OK, +CME ERROR ...
	TypeURC                        // Asynchronous notifications
	TypePlain                      // Intermediate command output (+QIACT: ...)
	TypePrompt                     // "> " or CONNECT data-entry prompt
	TypeEcho                       // Command echo (only seen with ATE1)
	TypeDataPrefix                 // Marker line followed by raw payload bytes
)

// finalTokens are exact-match final result codes ending an exchange.
var finalTokens = []string{
	OK, ERROR, SendOK, SendFail, NoCarrier, NoDialtone, Busy, NoAnswer,
}

// finalPrefixes are prefix-match final result codes.
var finalPrefixes = []string{CmeError, CmsError}

// urcPrefixes are prefixes of lines the module emits on its own initiative.
var urcPrefixes = []string{
	UrcGeneric, UrcSSL, UrcIndication, UrcSocketOpen, UrcSSLOpen,
	UrcNetworkReg, UrcSimStat,
}

// urcTokens are exact-match unsolicited lines.
var urcTokens = []string{UrcReady, UrcAppReady, UrcPoweredDown}

// DataPrefixes lists the default data-prefix markers recognized by the
// Splitter. The set is configurable per command family.
var DataPrefixes = []string{DataPrefixRecv, DataPrefixSSLRecv}

// IsFinal reports whether line terminates an exchange, success or failure.
func IsFinal(line string) bool {
	return Classify(line) == TypeFinal
}

// IsFailure reports whether a final line is a device-reported failure token.
func IsFailure(line string) bool {
	switch line {
	case ERROR, SendFail, NoCarrier, NoDialtone, Busy, NoAnswer:
		return true
	}
	return hasAnyPrefix(line, finalPrefixes)
}
