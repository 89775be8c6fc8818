package modem

import (
	"errors"
	"fmt"
	"strings"

	"i4.energy/across/cellgw/at"
)

var (
	// ErrNoDialer is returned when a Modem is constructed without a Dialer.
	//
	// This indicates a configuration error. A Dialer is required in order to
	// establish a connection to the modem.
	ErrNoDialer = errors.New("no dialer configured")

	// ErrNotInitialized is returned when an operation is attempted on a Modem
	// that has not been successfully initialized.
	ErrNotInitialized = errors.New("modem not initialized")

	// ErrAlreadyClosed is returned when an operation is attempted on a Modem
	// that has been closed.
	ErrAlreadyClosed = errors.New("modem already closed")

	// ErrLoopRunning is returned when Loop is called while another Loop is
	// already running.
	ErrLoopRunning = errors.New("loop already running")

	// ErrSIMPinRequired is returned when the SIM card requires a PIN and no
	// PIN was provided in the Config.
	ErrSIMPinRequired = errors.New("SIM PIN required")

	// ErrBadParameter is returned when an operation is invoked with an
	// argument that violates its contract. No exchange is issued.
	ErrBadParameter = errors.New("bad parameter")

	// ErrNotConnected is returned when a socket operation requires an
	// established connection and the socket is not in that state.
	ErrNotConnected = errors.New("socket not connected")

	// ErrUnsupported is returned when the module reports a mode or value the
	// engine does not implement.
	ErrUnsupported = errors.New("unsupported")

	// ErrTimeout is returned when an exchange's timeout elapses before a
	// final result code arrives, or when an asynchronous result misses its
	// deadline. Any partially assembled response is discarded.
	ErrTimeout = errors.New("exchange timeout")

	// ErrDeviceFailure is returned when the module answers an exchange with
	// a failure token (ERROR, +CME ERROR, SEND FAIL, ...). The wrapped
	// message carries the literal token for diagnostics; callers should
	// branch on the sentinel, never on the raw code.
	ErrDeviceFailure = errors.New("device reported failure")

	// ErrProtocolMismatch is returned when a response does not have the shape
	// the command descriptor expects, e.g. the expected prefix is absent.
	// Distinct from ErrDeviceFailure: the module answered, but not in the
	// form the exchange was prepared for.
	ErrProtocolMismatch = errors.New("response shape mismatch")

	// ErrDataTruncated reports that a raw payload declared more bytes than
	// the caller's sink could hold. The excess was consumed from the
	// transport and discarded.
	ErrDataTruncated = errors.New("payload truncated to sink capacity")
)

// CMEError is a device-reported "+CME ERROR:" value, numeric or textual
// depending on the module's CMEE configuration. It matches ErrDeviceFailure
// under errors.Is.
type CMEError string

func (e CMEError) Error() string {
	return "CME error: " + string(e)
}

// Is reports CMEError as a kind of ErrDeviceFailure.
func (e CMEError) Is(target error) bool {
	return target == ErrDeviceFailure
}

// deviceError converts a failure final token into a typed error.
func deviceError(line string) error {
	if strings.HasPrefix(line, at.CmeError) {
		return CMEError(strings.TrimSpace(line[len(at.CmeError):]))
	}
	return fmt.Errorf("%w: %s", ErrDeviceFailure, line)
}
