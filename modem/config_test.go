package modem_test

import (
	"testing"
	"time"

	"go.uber.org/mock/gomock"
	"i4.energy/across/cellgw/modem"
)

func TestConfig(t *testing.T) {
	t.Run("ErrNoDialer when no dialer provided", func(t *testing.T) {
		_, err := modem.NewConfigBuilder().Build()

		if err != modem.ErrNoDialer {
			t.Errorf("expected ErrNoDialer, got: %v", err)
		}
	})

	t.Run("Defaults applied on Build", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		config, err := modem.NewConfigBuilder().
			WithDialer(modem.NewMockDialer(ctrl)).
			Build()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if config.ATTimeout != 5*time.Second {
			t.Errorf("unexpected AT timeout default: %v", config.ATTimeout)
		}
		if config.MaxPayload != 1500 {
			t.Errorf("unexpected max payload default: %d", config.MaxPayload)
		}
	})

	t.Run("Builder overrides survive Build", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		config, err := modem.NewConfigBuilder().
			WithDialer(modem.NewMockDialer(ctrl)).
			WithSimPIN("0000").
			WithATTimeout(time.Second).
			WithConnectTimeout(30 * time.Second).
			WithDNSTimeout(10 * time.Second).
			WithMaxPayload(4096).
			Build()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if config.SimPIN != "0000" {
			t.Errorf("unexpected SIM PIN: %q", config.SimPIN)
		}
		if config.ATTimeout != time.Second {
			t.Errorf("unexpected AT timeout: %v", config.ATTimeout)
		}
		if config.ConnectTimeout != 30*time.Second {
			t.Errorf("unexpected connect timeout: %v", config.ConnectTimeout)
		}
		if config.DNSTimeout != 10*time.Second {
			t.Errorf("unexpected DNS timeout: %v", config.DNSTimeout)
		}
		if config.MaxPayload != 4096 {
			t.Errorf("unexpected max payload: %d", config.MaxPayload)
		}
	})
}
