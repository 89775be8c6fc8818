package modem

import (
	"context"
	"fmt"

	"i4.energy/across/cellgw/at"
)

// supportedBaudRates lists the rates the module's UART accepts.
var supportedBaudRates = map[int]bool{
	9600: true, 19200: true, 38400: true, 57600: true,
	115200: true, 230400: true, 460800: true, 921600: true,
}

// FlowControl reports whether RTS/CTS hardware flow control is enabled on
// the module's UART.
func (m *Modem) FlowControl(ctx context.Context) (bool, error) {
	resp, err := m.Exchange(ctx, Command{
		Text:   "AT+IFC?",
		Shape:  ShapePrefix,
		Prefix: "+IFC:",
	})
	if err != nil {
		return false, fmt.Errorf("query flow control: %w", err)
	}

	f, err := at.FieldsAfterPrefix(resp.FirstLine(), "+IFC:")
	if err != nil {
		return false, err
	}
	dce, err := f.NextInt(10, 32)
	if err != nil {
		return false, err
	}
	dte, err := f.NextInt(10, 32)
	if err != nil {
		return false, err
	}
	return dce == 2 && dte == 2, nil
}

// SetFlowControl enables or disables RTS/CTS hardware flow control on the
// module's UART. The host side must be reconfigured to match.
func (m *Modem) SetFlowControl(ctx context.Context, enabled bool) error {
	cmd := "AT+IFC=0,0"
	if enabled {
		cmd = "AT+IFC=2,2"
	}
	return m.expectOK(ctx, cmd)
}

// BaudRate reports the module's current UART rate.
func (m *Modem) BaudRate(ctx context.Context) (int, error) {
	resp, err := m.Exchange(ctx, Command{
		Text:   "AT+IPR?",
		Shape:  ShapePrefix,
		Prefix: "+IPR:",
	})
	if err != nil {
		return 0, fmt.Errorf("query baud rate: %w", err)
	}

	f, err := at.FieldsAfterPrefix(resp.FirstLine(), "+IPR:")
	if err != nil {
		return 0, err
	}
	baud, err := f.NextInt(10, 32)
	if err != nil {
		return 0, err
	}
	return int(baud), nil
}

// SetBaudRate reprograms the module's UART rate. The new rate takes effect
// after the OK is transmitted at the old rate; the caller must reopen the
// transport accordingly.
func (m *Modem) SetBaudRate(ctx context.Context, baud int) error {
	if !supportedBaudRates[baud] {
		return fmt.Errorf("%w: baud rate %d", ErrBadParameter, baud)
	}
	return m.expectOK(ctx, fmt.Sprintf("AT+IPR=%d", baud))
}
