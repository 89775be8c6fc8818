package modem

import (
	"context"
	"fmt"
	"strings"

	"i4.energy/across/cellgw/at"
)

// RegistrationState is the EPS network registration state.
type RegistrationState int

const (
	RegNotRegistered RegistrationState = 0
	RegHome          RegistrationState = 1
	RegSearching     RegistrationState = 2
	RegDenied        RegistrationState = 3
	RegUnknown       RegistrationState = 4
	RegRoaming       RegistrationState = 5
)

func (s RegistrationState) String() string {
	switch s {
	case RegNotRegistered:
		return "not-registered"
	case RegHome:
		return "registered-home"
	case RegSearching:
		return "searching"
	case RegDenied:
		return "denied"
	case RegRoaming:
		return "registered-roaming"
	default:
		return "unknown"
	}
}

// Registered reports whether the state allows packet traffic.
func (s RegistrationState) Registered() bool {
	return s == RegHome || s == RegRoaming
}

// RegistrationStatus queries the EPS network registration state.
func (m *Modem) RegistrationStatus(ctx context.Context) (RegistrationState, error) {
	resp, err := m.Exchange(ctx, Command{
		Text:   "AT+CEREG?",
		Shape:  ShapePrefix,
		Prefix: "+CEREG:",
	})
	if err != nil {
		return RegUnknown, fmt.Errorf("query registration: %w", err)
	}

	f, err := at.FieldsAfterPrefix(resp.FirstLine(), "+CEREG:")
	if err != nil {
		return RegUnknown, err
	}
	// Skip the <n> reporting mode field.
	if _, err := f.Next(); err != nil {
		return RegUnknown, err
	}
	stat, err := f.NextInt(10, 32)
	if err != nil {
		return RegUnknown, err
	}
	return RegistrationState(stat), nil
}

// Operator returns the registered operator name, or an empty string while
// unregistered.
func (m *Modem) Operator(ctx context.Context) (string, error) {
	resp, err := m.Exchange(ctx, Command{
		Text:   "AT+COPS?",
		Shape:  ShapePrefix,
		Prefix: "+COPS:",
	})
	if err != nil {
		return "", fmt.Errorf("query operator: %w", err)
	}

	f, err := at.FieldsAfterPrefix(resp.FirstLine(), "+COPS:")
	if err != nil {
		return "", err
	}
	// Skip <mode>; <format> and <oper> are absent while unregistered.
	if _, err := f.Next(); err != nil {
		return "", err
	}
	if !f.More() {
		return "", nil
	}
	if _, err := f.Next(); err != nil {
		return "", err
	}
	return f.NextUnquoted()
}

// RAT identifies one access technology in a scan sequence.
type RAT string

const (
	RATGSM   RAT = "GSM"
	RATeMTC  RAT = "eMTC"
	RATNBIoT RAT = "NBIoT"
)

// scanCode maps a RAT to its two-digit scan sequence code.
func scanCode(r RAT) (string, error) {
	switch r {
	case RATGSM:
		return "01", nil
	case RATeMTC:
		return "02", nil
	case RATNBIoT:
		return "03", nil
	default:
		return "", fmt.Errorf("%w: RAT %q", ErrBadParameter, string(r))
	}
}

// ratForCode is the inverse of scanCode.
func ratForCode(code string) (RAT, error) {
	switch code {
	case "01":
		return RATGSM, nil
	case "02":
		return RATeMTC, nil
	case "03":
		return RATNBIoT, nil
	default:
		return "", fmt.Errorf("%w: scan code %q", ErrProtocolMismatch, code)
	}
}

// RATPriority reports the configured network scan order.
func (m *Modem) RATPriority(ctx context.Context) ([]RAT, error) {
	resp, err := m.Exchange(ctx, Command{
		Text:   `AT+QCFG="nwscanseq"`,
		Shape:  ShapePrefix,
		Prefix: "+QCFG:",
	})
	if err != nil {
		return nil, fmt.Errorf("query scan sequence: %w", err)
	}

	f, err := at.FieldsAfterPrefix(resp.FirstLine(), "+QCFG:")
	if err != nil {
		return nil, err
	}
	// Skip the echoed "nwscanseq" setting name.
	if _, err := f.Next(); err != nil {
		return nil, err
	}
	seq, err := f.NextUnquoted()
	if err != nil {
		return nil, err
	}
	if len(seq)%2 != 0 || seq == "" {
		return nil, fmt.Errorf("%w: scan sequence %q", ErrProtocolMismatch, seq)
	}

	rats := make([]RAT, 0, len(seq)/2)
	for i := 0; i < len(seq); i += 2 {
		r, err := ratForCode(seq[i : i+2])
		if err != nil {
			return nil, err
		}
		rats = append(rats, r)
	}
	return rats, nil
}

// SetRATPriority configures the network scan order. The change takes effect
// immediately.
func (m *Modem) SetRATPriority(ctx context.Context, rats ...RAT) error {
	if len(rats) == 0 {
		return fmt.Errorf("%w: empty scan sequence", ErrBadParameter)
	}

	var seq strings.Builder
	for _, r := range rats {
		code, err := scanCode(r)
		if err != nil {
			return err
		}
		seq.WriteString(code)
	}
	return m.expectOK(ctx, fmt.Sprintf(`AT+QCFG="nwscanseq",%s,1`, seq.String()))
}
