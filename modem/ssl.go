package modem

import (
	"context"
	"fmt"
)

// SSL context IDs the module accepts.
const (
	minSSLContextID = 0
	maxSSLContextID = 5
)

// TLSConfig configures one module-side SSL context referenced by
// ConnectTLS. Certificate fields name files previously stored on the module
// (see UploadFile).
type TLSConfig struct {
	// SecLevel selects certificate checking: 0 none, 1 server, 2 mutual.
	SecLevel int
	// CACert is the stored CA certificate file. Required for SecLevel >= 1.
	CACert string
	// ClientCert and ClientKey are the stored client credential files.
	// Required for SecLevel 2.
	ClientCert string
	ClientKey  string
	// IgnoreLocalTime skips certificate validity-period checks, for devices
	// without a reliable clock.
	IgnoreLocalTime bool
}

func (c TLSConfig) validate() error {
	if c.SecLevel < 0 || c.SecLevel > 2 {
		return fmt.Errorf("%w: security level %d", ErrBadParameter, c.SecLevel)
	}
	if c.SecLevel >= 1 && c.CACert == "" {
		return fmt.Errorf("%w: security level %d requires a CA certificate", ErrBadParameter, c.SecLevel)
	}
	if c.SecLevel == 2 && (c.ClientCert == "" || c.ClientKey == "") {
		return fmt.Errorf("%w: mutual TLS requires client certificate and key", ErrBadParameter)
	}
	return nil
}

// ConfigureTLS programs one SSL context on the module. Each setting is a
// separate exchange; the first failure aborts the sequence.
func (m *Modem) ConfigureTLS(ctx context.Context, sslContextID int, cfg TLSConfig) error {
	if sslContextID < minSSLContextID || sslContextID > maxSSLContextID {
		return fmt.Errorf("%w: SSL context ID %d", ErrBadParameter, sslContextID)
	}
	if err := cfg.validate(); err != nil {
		return err
	}

	// Version 4 accepts any TLS version the module supports.
	steps := []string{
		fmt.Sprintf(`AT+QSSLCFG="sslversion",%d,4`, sslContextID),
		fmt.Sprintf(`AT+QSSLCFG="ciphersuite",%d,0xFFFF`, sslContextID),
		fmt.Sprintf(`AT+QSSLCFG="seclevel",%d,%d`, sslContextID, cfg.SecLevel),
	}
	if cfg.CACert != "" {
		steps = append(steps, fmt.Sprintf(`AT+QSSLCFG="cacert",%d,"%s"`, sslContextID, cfg.CACert))
	}
	if cfg.ClientCert != "" {
		steps = append(steps, fmt.Sprintf(`AT+QSSLCFG="clientcert",%d,"%s"`, sslContextID, cfg.ClientCert))
	}
	if cfg.ClientKey != "" {
		steps = append(steps, fmt.Sprintf(`AT+QSSLCFG="clientkey",%d,"%s"`, sslContextID, cfg.ClientKey))
	}
	if cfg.IgnoreLocalTime {
		steps = append(steps, fmt.Sprintf(`AT+QSSLCFG="ignorelocaltime",%d,1`, sslContextID))
	}

	for _, cmd := range steps {
		if err := m.expectOK(ctx, cmd); err != nil {
			return fmt.Errorf("configure TLS context %d: %w", sslContextID, err)
		}
	}
	return nil
}
