package modem

import (
	"log/slog"
	"time"
)

// Config carries the modem construction parameters. Use NewConfigBuilder
// for the fluent form, or fill the struct directly.
type Config struct {
	// Dialer opens the transport to the modem. Required.
	Dialer Dialer
	// SimPIN is the SIM card PIN code, used during the network attach
	// when the SIM reports "SIM PIN".
	SimPIN string
	// CommandCooldown is the minimum quiet period between the completion
	// of one AT command and the write of the next. The modem firmware
	// drops commands that arrive back to back.
	CommandCooldown time.Duration
	// FlowControl is the serial handshake mode negotiated during setup.
	FlowControl FlowControl
	// ATTimeout is the default response budget for commands that do not
	// carry their own.
	ATTimeout time.Duration
	// InitTimeout bounds the whole setup sequence in New.
	InitTimeout time.Duration
	// IngressBufSize caps the ingress reassembly buffer. It also bounds
	// the largest single socket read.
	IngressBufSize int
	// UrcBufSize is the per-subscription URC buffer capacity.
	UrcBufSize int
	// Logger receives the driver's diagnostics. Defaults to slog.Default.
	Logger *slog.Logger
}

func (c *Config) validate() error {
	if c.Dialer == nil {
		return ErrNoDialer
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.CommandCooldown == 0 {
		c.CommandCooldown = 100 * time.Millisecond
	}
	if c.ATTimeout == 0 {
		c.ATTimeout = 5 * time.Second
	}
	if c.InitTimeout == 0 {
		c.InitTimeout = 30 * time.Second
	}
	if c.IngressBufSize == 0 {
		c.IngressBufSize = 2048
	}
	if c.UrcBufSize == 0 {
		c.UrcBufSize = 16
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// ConfigBuilder assembles a Config fluently.
type ConfigBuilder struct {
	config Config
}

func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{}
}

func (b *ConfigBuilder) WithDialer(d Dialer) *ConfigBuilder {
	b.config.Dialer = d
	return b
}

func (b *ConfigBuilder) WithSimPIN(pin string) *ConfigBuilder {
	b.config.SimPIN = pin
	return b
}

func (b *ConfigBuilder) WithCommandCooldown(d time.Duration) *ConfigBuilder {
	b.config.CommandCooldown = d
	return b
}

func (b *ConfigBuilder) WithFlowControl(fc FlowControl) *ConfigBuilder {
	b.config.FlowControl = fc
	return b
}

func (b *ConfigBuilder) WithATTimeout(d time.Duration) *ConfigBuilder {
	b.config.ATTimeout = d
	return b
}

func (b *ConfigBuilder) WithInitTimeout(d time.Duration) *ConfigBuilder {
	b.config.InitTimeout = d
	return b
}

func (b *ConfigBuilder) WithIngressBufSize(n int) *ConfigBuilder {
	b.config.IngressBufSize = n
	return b
}

func (b *ConfigBuilder) WithUrcBufSize(n int) *ConfigBuilder {
	b.config.UrcBufSize = n
	return b
}

func (b *ConfigBuilder) WithLogger(l *slog.Logger) *ConfigBuilder {
	b.config.Logger = l
	return b
}

func (b *ConfigBuilder) Build() (Config, error) {
	if err := b.config.validate(); err != nil {
		return Config{}, err
	}
	b.config.setDefaults()
	return b.config, nil
}
