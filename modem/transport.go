package modem

import (
	"context"
	"fmt"
	"io"

	"go.bug.st/serial"
)

//go:generate go tool mockgen -destination=mock_transport.go -package=modem -source=transport.go Transport,Dialer

// Transport represents an established, bidirectional byte stream to a GSM modem.
//
// A Transport is assumed to be already connected and ready for use. It provides
// the low-level I/O primitives required to send AT commands and receive responses.
// Typical implementations include serial ports, TCP connections to emulators,
// or in-memory fakes used for testing.
type Transport interface {
	io.ReadWriteCloser
}

// Dialer opens a Transport to a GSM modem.
//
// Dialer abstracts how the modem connection is created (for example, via a
// serial port, TCP-based emulator, or test double) and is intended to be used
// during modem construction only. Once a Transport is obtained, the Dialer is
// no longer needed.
type Dialer interface {
	// Dial is responsible for creating and returning a connected Transport. It may
	// perform blocking operations and should respect cancellation and deadlines
	// provided by the context. Dial returns an error if the transport cannot be
	// established.
	Dial(ctx context.Context) (Transport, error)
}

// FlowControl selects the serial handshake mode negotiated with the
// modem during setup (AT+IFC).
type FlowControl int

const (
	// FlowControlNone disables hardware flow control.
	FlowControlNone FlowControl = iota
	// FlowControlRtsCts enables RTS/CTS hardware flow control on both
	// directions. Strongly recommended: the modem can stall the host
	// for seconds while the radio retransmits.
	FlowControlRtsCts
)

// SerialDialer opens a GSM modem over a serial port using go.bug.st/serial.
// The port is opened 8N1 with no host-side handshake; go.bug.st/serial
// exposes no RTS/CTS handshake mode, so the flow-control negotiation is
// modem-side only, via the AT+IFC command driven by Config.FlowControl.
type SerialDialer struct {
	// PortName is the device path, e.g. "/dev/ttyUSB0".
	PortName string
	// BaudRate is the line speed, e.g. 115200.
	BaudRate int
}

func (d SerialDialer) Dial(ctx context.Context) (Transport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mode := &serial.Mode{
		BaudRate: d.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(d.PortName, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %q: %w", d.PortName, err)
	}
	return port, nil
}
