package modem

import (
	"context"
	"fmt"

	"i4.energy/across/cellgw/at"
)

// PSMTimer is one power saving mode timer in its network-coded form: a
// 3-bit unit selector and a 5-bit multiplier, transmitted as an 8-character
// binary pattern, unit bits first. Unit 7 deactivates the timer.
type PSMTimer struct {
	Unit  uint8
	Value uint8
}

// PSMTimerOff is the deactivated timer value.
var PSMTimerOff = PSMTimer{Unit: 7}

// encode renders the timer as the 8-character binary pattern the module
// expects, e.g. {Unit: 5, Value: 2} as "10100010".
func (t PSMTimer) encode() (string, error) {
	if t.Unit > 7 || t.Value > 31 {
		return "", fmt.Errorf("%w: timer unit %d value %d", ErrBadParameter, t.Unit, t.Value)
	}
	b := make([]byte, 8)
	for i := 0; i < 3; i++ {
		b[i] = '0' + (t.Unit>>(2-i))&1
	}
	for i := 0; i < 5; i++ {
		b[3+i] = '0' + (t.Value>>(4-i))&1
	}
	return string(b), nil
}

// decodePSMTimer parses an 8-character binary pattern back into its unit and
// value parts.
func decodePSMTimer(s string) (PSMTimer, error) {
	s = at.Unquote(at.StripSpace(s))
	if len(s) != 8 {
		return PSMTimer{}, fmt.Errorf("%w: timer pattern %q", ErrBadParameter, s)
	}
	var t PSMTimer
	for i, c := range []byte(s) {
		switch c {
		case '0', '1':
		default:
			return PSMTimer{}, fmt.Errorf("%w: timer pattern %q", ErrBadParameter, s)
		}
		bit := c - '0'
		if i < 3 {
			t.Unit = t.Unit<<1 | bit
		} else {
			t.Value = t.Value<<1 | bit
		}
	}
	return t, nil
}

// PSMConfig is the power saving mode state: whether PSM is requested and the
// two timers negotiated with the network.
type PSMConfig struct {
	Enabled bool
	// TAU is the requested periodic tracking area update interval (T3412).
	TAU PSMTimer
	// ActiveTime is the requested post-transfer reachability window (T3324).
	ActiveTime PSMTimer
}

// EnablePSM requests power saving mode with the given timers. The network
// may grant different values; the granted timers arrive via registration
// notifications.
func (m *Modem) EnablePSM(ctx context.Context, tau, activeTime PSMTimer) error {
	tauPat, err := tau.encode()
	if err != nil {
		return err
	}
	actPat, err := activeTime.encode()
	if err != nil {
		return err
	}
	cmd := fmt.Sprintf(`AT+CPSMS=1,,,"%s","%s"`, tauPat, actPat)
	return m.expectOK(ctx, cmd)
}

// DisablePSM withdraws the power saving mode request.
func (m *Modem) DisablePSM(ctx context.Context) error {
	return m.expectOK(ctx, "AT+CPSMS=0")
}

// PSMStatus reads back the requested power saving configuration.
func (m *Modem) PSMStatus(ctx context.Context) (*PSMConfig, error) {
	resp, err := m.Exchange(ctx, Command{
		Text:   "AT+CPSMS?",
		Shape:  ShapePrefix,
		Prefix: "+CPSMS:",
	})
	if err != nil {
		return nil, fmt.Errorf("query PSM: %w", err)
	}

	f, err := at.FieldsAfterPrefix(resp.FirstLine(), "+CPSMS:")
	if err != nil {
		return nil, err
	}
	mode, err := f.NextInt(10, 32)
	if err != nil {
		return nil, err
	}

	cfg := &PSMConfig{Enabled: mode == 1}
	if !cfg.Enabled || !f.More() {
		return cfg, nil
	}

	// Skip the two GPRS timer fields; LTE uses the trailing pair.
	for i := 0; i < 2; i++ {
		if _, err := f.Next(); err != nil {
			return nil, err
		}
	}
	tauPat, err := f.Next()
	if err != nil {
		return nil, err
	}
	actPat, err := f.Next()
	if err != nil {
		return nil, err
	}
	if cfg.TAU, err = decodePSMTimer(tauPat); err != nil {
		return nil, err
	}
	if cfg.ActiveTime, err = decodePSMTimer(actPat); err != nil {
		return nil, err
	}
	return cfg, nil
}
