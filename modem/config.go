package modem

import (
	"log/slog"
	"time"
)

// Config carries the construction parameters of a Modem.
type Config struct {
	// Dialer opens the transport. Required.
	Dialer Dialer
	// SimPIN is submitted when the SIM reports it is PIN-locked.
	SimPIN string
	// Logger receives engine diagnostics (dropped URCs, close failures).
	// Nil disables engine logging.
	Logger *slog.Logger

	// ATTimeout is the default per-exchange timeout when a Command does not
	// set its own.
	ATTimeout time.Duration
	// InitTimeout bounds the whole initialization sequence.
	InitTimeout time.Duration
	// ConnectTimeout bounds the wait for the asynchronous socket open
	// result. Establishing a bearer connection is a slow radio operation.
	ConnectTimeout time.Duration
	// DNSTimeout bounds the wait for the asynchronous DNS resolution result,
	// independently of the short command-accepted exchange.
	DNSTimeout time.Duration
	// MaxPayload is the largest raw payload a data-prefix line may declare.
	MaxPayload int
}

func (c *Config) validate() error {
	if c.Dialer == nil {
		return ErrNoDialer
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.ATTimeout == 0 {
		c.ATTimeout = 5 * time.Second
	}
	if c.InitTimeout == 0 {
		c.InitTimeout = 30 * time.Second
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 150 * time.Second
	}
	if c.DNSTimeout == 0 {
		c.DNSTimeout = 60 * time.Second
	}
	if c.MaxPayload == 0 {
		c.MaxPayload = 1500
	}
}

// ConfigBuilder assembles a Config fluently.
type ConfigBuilder struct {
	config Config
}

// NewConfigBuilder returns an empty builder.
func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{}
}

// WithDialer sets the transport dialer.
func (b *ConfigBuilder) WithDialer(d Dialer) *ConfigBuilder {
	b.config.Dialer = d
	return b
}

// WithSimPIN sets the SIM PIN submitted during initialization.
func (b *ConfigBuilder) WithSimPIN(pin string) *ConfigBuilder {
	b.config.SimPIN = pin
	return b
}

// WithLogger sets the engine diagnostics logger.
func (b *ConfigBuilder) WithLogger(l *slog.Logger) *ConfigBuilder {
	b.config.Logger = l
	return b
}

// WithATTimeout sets the default per-exchange timeout.
func (b *ConfigBuilder) WithATTimeout(d time.Duration) *ConfigBuilder {
	b.config.ATTimeout = d
	return b
}

// WithInitTimeout bounds the initialization sequence.
func (b *ConfigBuilder) WithInitTimeout(d time.Duration) *ConfigBuilder {
	b.config.InitTimeout = d
	return b
}

// WithConnectTimeout bounds the asynchronous socket open wait.
func (b *ConfigBuilder) WithConnectTimeout(d time.Duration) *ConfigBuilder {
	b.config.ConnectTimeout = d
	return b
}

// WithDNSTimeout bounds the asynchronous DNS result wait.
func (b *ConfigBuilder) WithDNSTimeout(d time.Duration) *ConfigBuilder {
	b.config.DNSTimeout = d
	return b
}

// WithMaxPayload sets the largest raw payload accepted from the module.
func (b *ConfigBuilder) WithMaxPayload(n int) *ConfigBuilder {
	b.config.MaxPayload = n
	return b
}

// Build validates the assembled Config and applies defaults.
func (b *ConfigBuilder) Build() (Config, error) {
	if err := b.config.validate(); err != nil {
		return Config{}, err
	}
	cfg := b.config
	cfg.setDefaults()
	return cfg, nil
}
