package modem

import (
	"context"
	"fmt"
	"time"

	"i4.energy/across/cellgw/at"
)

// PDN context IDs the module accepts.
const (
	minContextID = 1
	maxContextID = 16
)

// PDNContext is the state of one packet data context as reported by the
// module.
type PDNContext struct {
	// ContextID is the context identifier, 1 through 16.
	ContextID int
	// Active reports whether the context holds a bearer.
	Active bool
	// IPType is the address family: 1 for IPv4, 2 for IPv6.
	IPType int
	// Addr is the assigned address, empty while inactive.
	Addr string
}

// APNConfig carries the access point settings bound to a PDN context.
type APNConfig struct {
	APN      string
	Username string
	Password string
}

// ConfigurePDN binds APN credentials to a PDN context. The context must be
// configured before activation.
func (m *Modem) ConfigurePDN(ctx context.Context, contextID int, cfg APNConfig) error {
	if contextID < minContextID || contextID > maxContextID {
		return fmt.Errorf("%w: context ID %d", ErrBadParameter, contextID)
	}
	if cfg.APN == "" {
		return fmt.Errorf("%w: empty APN", ErrBadParameter)
	}

	// Context type 1 (IPv4), authentication 1 (PAP) when credentials are
	// set, 0 (none) otherwise.
	auth := 0
	if cfg.Username != "" {
		auth = 1
	}
	cmd := fmt.Sprintf(`AT+QICSGP=%d,1,"%s","%s","%s",%d`,
		contextID, cfg.APN, cfg.Username, cfg.Password, auth)
	return m.expectOK(ctx, cmd)
}

// ActivatePDN brings up the bearer of a configured PDN context. Activation
// is a slow radio operation and uses the connect timeout.
func (m *Modem) ActivatePDN(ctx context.Context, contextID int) error {
	if contextID < minContextID || contextID > maxContextID {
		return fmt.Errorf("%w: context ID %d", ErrBadParameter, contextID)
	}
	_, err := m.Exchange(ctx, Command{
		Text:    fmt.Sprintf("AT+QIACT=%d", contextID),
		Shape:   ShapeNone,
		Timeout: m.config.ConnectTimeout,
	})
	if err != nil {
		return fmt.Errorf("activate context %d: %w", contextID, err)
	}
	return nil
}

// DeactivatePDN tears down the bearer of a PDN context. Sockets on the
// context are implicitly closed by the module and reported via closure
// notifications.
func (m *Modem) DeactivatePDN(ctx context.Context, contextID int) error {
	if contextID < minContextID || contextID > maxContextID {
		return fmt.Errorf("%w: context ID %d", ErrBadParameter, contextID)
	}
	_, err := m.Exchange(ctx, Command{
		Text:    fmt.Sprintf("AT+QIDEACT=%d", contextID),
		Shape:   ShapeNone,
		Timeout: 40 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("deactivate context %d: %w", contextID, err)
	}
	return nil
}

// PDNStatus lists the currently active PDN contexts. An immediate OK with no
// listing lines is a valid answer meaning no context is active.
func (m *Modem) PDNStatus(ctx context.Context) ([]PDNContext, error) {
	resp, err := m.Exchange(ctx, Command{
		Text:   "AT+QIACT?",
		Shape:  ShapeMultiline,
		Prefix: "+QIACT:",
	})
	if err != nil {
		return nil, fmt.Errorf("query contexts: %w", err)
	}

	contexts := make([]PDNContext, 0, len(resp.Lines))
	for _, line := range resp.Lines {
		pc, err := parsePDNLine(line.Text)
		if err != nil {
			return nil, fmt.Errorf("context listing %q: %w", line.Text, err)
		}
		contexts = append(contexts, pc)
	}
	return contexts, nil
}

// parsePDNLine parses one "+QIACT: <id>,<state>,<type>[,"<addr>"]" line.
func parsePDNLine(line string) (PDNContext, error) {
	f, err := at.FieldsAfterPrefix(line, "+QIACT:")
	if err != nil {
		return PDNContext{}, err
	}

	id, err := f.NextInt(10, 32)
	if err != nil {
		return PDNContext{}, err
	}
	state, err := f.NextInt(10, 32)
	if err != nil {
		return PDNContext{}, err
	}
	ipType, err := f.NextInt(10, 32)
	if err != nil {
		return PDNContext{}, err
	}

	pc := PDNContext{
		ContextID: int(id),
		Active:    state == 1,
		IPType:    int(ipType),
	}
	// Address is present only while the context is active.
	if f.More() {
		addr, err := f.NextUnquoted()
		if err != nil {
			return PDNContext{}, err
		}
		pc.Addr = addr
	}
	return pc, nil
}
