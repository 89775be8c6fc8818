package modem_test

import (
	"context"
	"errors"
	"testing"

	"i4.energy/across/cellgw/modem"
)

func TestSIMStatus(t *testing.T) {
	m, tt := newTestModem(t)
	script(t, tt, "AT+CPIN?\r", "+CPIN: READY\r\nOK\r\n")

	state, err := m.SIMStatus(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state != "READY" {
		t.Errorf("expected READY, got %q", state)
	}
}

func TestCardInfo(t *testing.T) {
	t.Run("Reads IMSI, home network and ICCID in order", func(t *testing.T) {
		m, tt := newTestModem(t)

		go func() {
			steps := []struct{ cmd, response string }{
				{"AT+CIMI\r", "262011234567890\r\nOK\r\n"},
				{"AT+CRSM=176,28514,0,0,0\r", "+CRSM: 144,0,\"62F210FFFF\"\r\nOK\r\n"},
				{"AT+QCCID\r", "+QCCID: 89490200001234567890\r\nOK\r\n"},
			}
			for _, s := range steps {
				w := <-tt.WriteCh()
				if string(w) != s.cmd {
					t.Errorf("unexpected command: got %q, want %q", w, s.cmd)
				}
				tt.SendData(s.response)
			}
		}()

		info, err := m.CardInfo(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if info.IMSI != "262011234567890" {
			t.Errorf("unexpected IMSI: %q", info.IMSI)
		}
		if info.MCC != "262" || info.MNC != "01" {
			t.Errorf("unexpected home network: MCC=%q MNC=%q", info.MCC, info.MNC)
		}
		if info.ICCID != "89490200001234567890" {
			t.Errorf("unexpected ICCID: %q", info.ICCID)
		}
	})

	t.Run("Aborts on the first failing read", func(t *testing.T) {
		m, tt := newTestModem(t)
		script(t, tt, "AT+CIMI\r", "+CME ERROR: SIM failure\r\n")

		_, err := m.CardInfo(context.Background())
		if !errors.Is(err, modem.ErrDeviceFailure) {
			t.Errorf("expected ErrDeviceFailure, got: %v", err)
		}
	})

	t.Run("Rejects an erased HPLMN record", func(t *testing.T) {
		m, tt := newTestModem(t)

		go func() {
			<-tt.WriteCh()
			tt.SendData("262011234567890\r\nOK\r\n")
			<-tt.WriteCh()
			tt.SendData("+CRSM: 144,0,\"FFFFFFFFFF\"\r\nOK\r\n")
		}()

		_, err := m.CardInfo(context.Background())
		if !errors.Is(err, modem.ErrProtocolMismatch) {
			t.Errorf("expected ErrProtocolMismatch, got: %v", err)
		}
	})
}
