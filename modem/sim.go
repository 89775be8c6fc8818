package modem

import (
	"context"
	"fmt"
	"strings"

	"i4.energy/across/cellgw/at"
)

// CardInfo is the identity read off the SIM: subscriber identity, home
// network and card serial.
type CardInfo struct {
	// IMSI is the international mobile subscriber identity.
	IMSI string
	// ICCID is the card serial number.
	ICCID string
	// MCC and MNC identify the home network, decoded from the HPLMN
	// elementary file.
	MCC string
	MNC string
}

// SIMStatus returns the raw SIM state string, e.g. "READY" or "SIM PIN".
func (m *Modem) SIMStatus(ctx context.Context) (string, error) {
	resp, err := m.Exchange(ctx, Command{
		Text:   "AT+CPIN?",
		Shape:  ShapePrefix,
		Prefix: "+CPIN:",
	})
	if err != nil {
		return "", fmt.Errorf("query SIM status: %w", err)
	}
	state, err := at.TrimPrefix(resp.FirstLine(), "+CPIN:")
	if err != nil {
		return "", err
	}
	return state, nil
}

// CardInfo reads the SIM identity: IMSI, home network and ICCID, in that
// order. The first failing read aborts the sequence.
func (m *Modem) CardInfo(ctx context.Context) (*CardInfo, error) {
	info := &CardInfo{}

	// IMSI is returned as a bare digit line with no prefix.
	resp, err := m.Exchange(ctx, Command{
		Text:  "AT+CIMI",
		Shape: ShapePrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("read IMSI: %w", err)
	}
	info.IMSI = strings.TrimSpace(resp.FirstLine())

	mcc, mnc, err := m.readHPLMN(ctx)
	if err != nil {
		return nil, err
	}
	info.MCC, info.MNC = mcc, mnc

	resp, err = m.Exchange(ctx, Command{
		Text:   "AT+QCCID",
		Shape:  ShapePrefix,
		Prefix: "+QCCID:",
	})
	if err != nil {
		return nil, fmt.Errorf("read ICCID: %w", err)
	}
	iccid, err := at.TrimPrefix(resp.FirstLine(), "+QCCID:")
	if err != nil {
		return nil, err
	}
	info.ICCID = iccid

	return info, nil
}

// readHPLMN reads the home PLMN elementary file (EF 0x6F62) through the
// restricted SIM access command and decodes the first PLMN record.
func (m *Modem) readHPLMN(ctx context.Context) (mcc, mnc string, err error) {
	resp, err := m.Exchange(ctx, Command{
		Text:   "AT+CRSM=176,28514,0,0,0",
		Shape:  ShapePrefix,
		Prefix: "+CRSM:",
	})
	if err != nil {
		return "", "", fmt.Errorf("read HPLMN: %w", err)
	}

	f, err := at.FieldsAfterPrefix(resp.FirstLine(), "+CRSM:")
	if err != nil {
		return "", "", err
	}
	sw1, err := f.NextInt(10, 32)
	if err != nil {
		return "", "", err
	}
	if sw1 != 144 {
		return "", "", fmt.Errorf("%w: SIM access status %d", ErrDeviceFailure, sw1)
	}
	// Skip sw2.
	if _, err := f.Next(); err != nil {
		return "", "", err
	}
	data, err := f.NextUnquoted()
	if err != nil {
		return "", "", err
	}
	return decodeHPLMN(data)
}

// decodeHPLMN decodes a swapped-nibble PLMN record, e.g. "62F210" into MCC
// "262" and MNC "01". A two-digit MNC stores 'F' as the filler nibble; a
// third MNC digit, when present, is appended.
func decodeHPLMN(data string) (mcc, mnc string, err error) {
	t := at.StripSpace(strings.ToUpper(data))
	if len(t) < 9 || strings.HasPrefix(t, "FFFFFF") {
		return "", "", fmt.Errorf("%w: HPLMN record %q", ErrProtocolMismatch, data)
	}

	mcc = string([]byte{t[1], t[0], t[3]})
	mnc = string([]byte{t[5], t[4]})
	if t[2] != 'F' {
		mnc += string(t[2])
	}
	return mcc, mnc, nil
}
