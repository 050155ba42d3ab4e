package modem_test

import (
	"testing"
	"time"

	"i4.energy/across/cellular/modem"
)

func TestConfig(t *testing.T) {
	t.Run("ErrNoDialer when no dialer provided", func(t *testing.T) {
		_, err := modem.NewConfigBuilder().Build()

		if err != modem.ErrNoDialer {
			t.Errorf("expected ErrNoDialer, got: %v", err)
		}
	})

	t.Run("Defaults applied on Build", func(t *testing.T) {
		config, err := modem.NewConfigBuilder().
			WithDialer(modem.SerialDialer{PortName: "/dev/ttyUSB0", BaudRate: 115200}).
			Build()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if config.ATTimeout == 0 {
			t.Error("expected default ATTimeout")
		}
		if config.CommandCooldown == 0 {
			t.Error("expected default CommandCooldown")
		}
		if config.IngressBufSize == 0 {
			t.Error("expected default IngressBufSize")
		}
		if config.Logger == nil {
			t.Error("expected default Logger")
		}
	})

	t.Run("Explicit values preserved", func(t *testing.T) {
		config, err := modem.NewConfigBuilder().
			WithDialer(modem.SerialDialer{PortName: "/dev/ttyUSB0", BaudRate: 115200}).
			WithATTimeout(2 * time.Second).
			WithCommandCooldown(50 * time.Millisecond).
			WithSimPIN("1234").
			WithFlowControl(modem.FlowControlRtsCts).
			WithIngressBufSize(4096).
			WithUrcBufSize(32).
			Build()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if config.ATTimeout != 2*time.Second {
			t.Errorf("ATTimeout = %v", config.ATTimeout)
		}
		if config.CommandCooldown != 50*time.Millisecond {
			t.Errorf("CommandCooldown = %v", config.CommandCooldown)
		}
		if config.SimPIN != "1234" {
			t.Errorf("SimPIN = %q", config.SimPIN)
		}
		if config.FlowControl != modem.FlowControlRtsCts {
			t.Errorf("FlowControl = %v", config.FlowControl)
		}
		if config.IngressBufSize != 4096 {
			t.Errorf("IngressBufSize = %d", config.IngressBufSize)
		}
		if config.UrcBufSize != 32 {
			t.Errorf("UrcBufSize = %d", config.UrcBufSize)
		}
	})
}
