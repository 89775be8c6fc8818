package modem

import (
	"context"
	"fmt"

	"i4.energy/across/cellgw/at"
)

// SignalQuality is the radio signal report of the serving cell. Which fields
// are populated depends on the access technology.
type SignalQuality struct {
	// RAT is the access technology, e.g. "eMTC", "NBIoT" or "GSM".
	RAT string
	// RSSI is the received signal strength in dBm. Reported by all RATs.
	RSSI int
	// RSRP is the reference signal received power in dBm. LTE only.
	RSRP int
	// SINR is the signal to interference plus noise ratio in dB. LTE only.
	SINR float64
	// RSRQ is the reference signal received quality in dB. LTE only.
	RSRQ int
}

// Signal queries the serving cell signal report. It returns ErrNotConnected
// while the module is out of service and ErrUnsupported for an access
// technology the engine does not decode.
func (m *Modem) Signal(ctx context.Context) (*SignalQuality, error) {
	resp, err := m.Exchange(ctx, Command{
		Text:   "AT+QCSQ",
		Shape:  ShapePrefix,
		Prefix: "+QCSQ:",
	})
	if err != nil {
		return nil, fmt.Errorf("query signal: %w", err)
	}
	return parseSignal(resp.FirstLine())
}

// parseSignal decodes one '+QCSQ: "<rat>",...' report line.
func parseSignal(line string) (*SignalQuality, error) {
	f, err := at.FieldsAfterPrefix(line, "+QCSQ:")
	if err != nil {
		return nil, err
	}
	rat, err := f.NextUnquoted()
	if err != nil {
		return nil, err
	}

	sq := &SignalQuality{RAT: rat}

	switch rat {
	case "NOSERVICE":
		return nil, fmt.Errorf("%w: no service", ErrNotConnected)

	case "GSM":
		rssi, err := f.NextInt(10, 32)
		if err != nil {
			return nil, err
		}
		sq.RSSI = int(rssi)
		return sq, nil

	case "eMTC", "CAT-M1", "NBIoT", "CAT-NB1":
		rssi, err := f.NextInt(10, 32)
		if err != nil {
			return nil, err
		}
		rsrp, err := f.NextInt(10, 32)
		if err != nil {
			return nil, err
		}
		sinrIdx, err := f.NextInt(10, 32)
		if err != nil {
			return nil, err
		}
		rsrq, err := f.NextInt(10, 32)
		if err != nil {
			return nil, err
		}
		sq.RSSI = int(rssi)
		sq.RSRP = int(rsrp)
		// The report carries SINR as an index in 0.2 dB steps offset by
		// -20 dB: dB = index/5 - 20.
		sq.SINR = float64(sinrIdx)/5 - 20
		sq.RSRQ = int(rsrq)
		return sq, nil

	default:
		return nil, fmt.Errorf("%w: access technology %q", ErrUnsupported, rat)
	}
}
