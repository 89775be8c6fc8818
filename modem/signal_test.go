package modem_test

import (
	"context"
	"errors"
	"testing"

	"i4.energy/across/cellgw/modem"
)

func TestSignal(t *testing.T) {
	t.Run("LTE report decodes all fields", func(t *testing.T) {
		m, tt := newTestModem(t)
		script(t, tt, "AT+QCSQ\r", "+QCSQ: \"eMTC\",-75,-95,100,-10\r\nOK\r\n")

		sq, err := m.Signal(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if sq.RAT != "eMTC" {
			t.Errorf("unexpected RAT: %q", sq.RAT)
		}
		if sq.RSSI != -75 || sq.RSRP != -95 || sq.RSRQ != -10 {
			t.Errorf("unexpected levels: %+v", sq)
		}
		if sq.SINR != 0 {
			t.Errorf("SINR index 100 should decode to 0 dB, got %v", sq.SINR)
		}
	})

	t.Run("GSM report carries RSSI only", func(t *testing.T) {
		m, tt := newTestModem(t)
		script(t, tt, "AT+QCSQ\r", "+QCSQ: \"GSM\",-67\r\nOK\r\n")

		sq, err := m.Signal(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if sq.RAT != "GSM" || sq.RSSI != -67 {
			t.Errorf("unexpected report: %+v", sq)
		}
	})

	t.Run("NOSERVICE maps to ErrNotConnected", func(t *testing.T) {
		m, tt := newTestModem(t)
		script(t, tt, "AT+QCSQ\r", "+QCSQ: \"NOSERVICE\"\r\nOK\r\n")

		_, err := m.Signal(context.Background())
		if !errors.Is(err, modem.ErrNotConnected) {
			t.Errorf("expected ErrNotConnected, got: %v", err)
		}
	})

	t.Run("Unknown access technology maps to ErrUnsupported", func(t *testing.T) {
		m, tt := newTestModem(t)
		script(t, tt, "AT+QCSQ\r", "+QCSQ: \"WCDMA\",-80,-80,100,-10\r\nOK\r\n")

		_, err := m.Signal(context.Background())
		if !errors.Is(err, modem.ErrUnsupported) {
			t.Errorf("expected ErrUnsupported, got: %v", err)
		}
	})
}
