package modem

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"i4.energy/across/cellular/at"
)

// Variant is the detected SIMCOM part family. It decides the size of
// the socket multiplexer table.
type Variant int

const (
	VariantUnknown Variant = iota
	VariantSIM800
	VariantSIM900
)

func (v Variant) String() string {
	switch v {
	case VariantSIM800:
		return "SIM800"
	case VariantSIM900:
		return "SIM900"
	}
	return "unknown"
}

func (v Variant) maxSockets() int {
	switch v {
	case VariantSIM800:
		return 6
	case VariantSIM900:
		return 8
	}
	return 0
}

// Modem is a SIMCOM GPRS modem driven over AT commands. All transport
// I/O flows through a single event loop; user-facing services obtain
// responses over channels and observe asynchronous state through URCs
// and the lock-free socket table.
type Modem struct {
	transport Transport
	config    Config
	logger    *slog.Logger
	variant   Variant

	sockets *socketTable
	urcs    *urcBus

	// bgSub is the device-owned subscription whose URCs carry socket
	// state side effects. bgMu serializes draining it.
	bgSub *UrcSubscription
	bgMu  sync.Mutex

	// commands queues AT command requests for the Loop to process.
	// Unbuffered: a sender blocks until the loop is idle.
	commands chan *commandRequest

	closed      atomic.Bool
	loopRunning atomic.Bool
	dataTaken   atomic.Bool
}

// commandRequest is one AT command in flight between exec and the Loop.
type commandRequest struct {
	cmd      Command
	respChan chan commandResponse
	ctx      context.Context
}

type commandResponse struct {
	payload []byte
	err     error
}

// New dials the transport and runs the modem setup sequence: liveness
// poke, factory defaults, echo off, numeric errors, flow control, and
// part identification. The returned Modem is ready for Loop.
func New(ctx context.Context, config Config) (*Modem, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	config.setDefaults()

	transport, err := config.Dialer.Dial(ctx)
	if err != nil {
		return nil, err
	}

	m := &Modem{
		transport: transport,
		config:    config,
		logger:    config.Logger.With("component", "modem"),
		urcs:      newUrcBus(),
		commands:  make(chan *commandRequest),
	}
	m.bgSub = m.urcs.subscribe(config.UrcBufSize)

	initCtx, cancel := context.WithTimeout(ctx, config.InitTimeout)
	defer cancel()

	if err := m.setup(initCtx); err != nil {
		if transport != nil {
			transport.Close()
		}
		return nil, fmt.Errorf("initialize modem: %w", err)
	}

	return m, nil
}

// setup brings the modem to a known state and detects the part. It
// talks to the transport directly; the Loop is not running yet.
func (m *Modem) setup(ctx context.Context) error {
	alive := false
	for i := 0; i < 20 && !alive; i++ {
		pokeCtx, cancel := context.WithTimeout(ctx, time.Second)
		_, err := m.execDirect(pokeCtx, cmdAT())
		cancel()
		if errors.Is(err, ErrNotInitialized) || errors.Is(err, ErrAlreadyClosed) {
			return err
		}
		alive = err == nil
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	if !alive {
		return fmt.Errorf("modem not responding: %w", ErrNotReady)
	}

	sequence := []Command{
		cmdFactoryDefaults(),
		cmdReset(),
		cmdEchoOff(),
		cmdNumericErrors(),
		cmdFlowControl(m.config.FlowControl),
	}
	for _, cmd := range sequence {
		if _, err := m.execDirect(ctx, cmd); err != nil {
			return fmt.Errorf("%s: %w", cmd.name, err)
		}
	}

	manufacturer, err := m.execDirect(ctx, cmdManufacturer())
	if err != nil {
		return fmt.Errorf("AT+CGMI: %w", err)
	}
	if !bytes.Contains(manufacturer, []byte("SIMCOM_Ltd")) {
		return fmt.Errorf("%w: %q", ErrUnsupportedManufacturer, manufacturer)
	}

	model, err := m.execDirect(ctx, cmdModel())
	if err != nil {
		return fmt.Errorf("AT+CGMM: %w", err)
	}
	switch {
	case bytes.Contains(model, []byte("SIM800")):
		m.variant = VariantSIM800
	case bytes.Contains(model, []byte("SIM900")):
		m.variant = VariantSIM900
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedModel, model)
	}
	m.sockets = newSocketTable(m.variant.maxSockets())

	m.logger.Info("modem initialized", "variant", m.variant.String())
	return nil
}

// Variant reports the detected part family.
func (m *Modem) Variant() Variant {
	return m.variant
}

// Urcs returns a new subscription to the URC stream.
func (m *Modem) Urcs() *UrcSubscription {
	return m.urcs.subscribe(m.config.UrcBufSize)
}

// Loop is the event loop that owns all transport I/O. It must run
// before exec-based operations (Network, Data) are used, and it is the
// only goroutine that reads the transport once started.
//
// A reader goroutine feeds raw chunks into the loop; the loop
// reassembles them in the ingress buffer, digests complete frames, and
// routes them: responses and prompts to the single in-flight command,
// URCs to the broadcast bus. New commands are accepted only while no
// command is in flight and after the command cooldown has elapsed.
//
// Loop returns when the context is cancelled or the transport fails.
func (m *Modem) Loop(ctx context.Context) error {
	if !m.loopRunning.CompareAndSwap(false, true) {
		return ErrLoopRunning
	}
	defer m.loopRunning.Store(false)

	chunks := make(chan []byte, 16)
	readErrs := make(chan error, 1)

	go func() {
		defer close(chunks)
		for {
			tmp := make([]byte, 256)
			n, err := m.transport.Read(tmp)
			if n > 0 {
				select {
				case chunks <- tmp[:n]:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				select {
				case readErrs <- err:
				case <-ctx.Done():
				}
				return
			}
		}
	}()

	buf := make([]byte, 0, m.config.IngressBufSize)
	var current *commandRequest
	var lastDone time.Time

	for {
		// Only accept a new command while idle; only watch the
		// deadline while one is in flight.
		var cmdCh chan *commandRequest
		var curDone <-chan struct{}
		if current == nil {
			cmdCh = m.commands
		} else {
			curDone = current.ctx.Done()
		}

		select {
		case <-ctx.Done():
			if current != nil {
				current.respChan <- commandResponse{err: ctx.Err()}
			}
			return ctx.Err()

		case req := <-cmdCh:
			if wait := m.config.CommandCooldown - time.Since(lastDone); wait > 0 {
				timer := time.NewTimer(wait)
				select {
				case <-timer.C:
				case <-ctx.Done():
					timer.Stop()
					req.respChan <- commandResponse{err: ctx.Err()}
					return ctx.Err()
				}
			}
			if _, err := m.transport.Write(req.cmd.wire); err != nil {
				req.respChan <- commandResponse{err: fmt.Errorf("write: %w", err)}
				lastDone = time.Now()
				continue
			}
			current = req

		case chunk, ok := <-chunks:
			if !ok {
				if current != nil {
					current.respChan <- commandResponse{err: io.EOF}
				}
				return io.EOF
			}
			if len(buf)+len(chunk) > m.config.IngressBufSize {
				m.logger.Warn("ingress buffer overflow, clearing",
					"buffered", len(buf), "chunk", len(chunk))
				buf = buf[:0]
			}
			buf = append(buf, chunk...)
			for {
				out, n := at.Digest(buf)
				if n == 0 {
					break
				}
				if m.route(out, current) {
					current = nil
					lastDone = time.Now()
				}
				buf = append(buf[:0], buf[n:]...)
			}

		case <-curDone:
			// The per-command context carries both the response budget
			// and the caller's cancellation; only the former is a timeout.
			err := ErrCommandTimeout
			if errors.Is(current.ctx.Err(), context.Canceled) {
				err = current.ctx.Err()
			}
			current.respChan <- commandResponse{err: err}
			current = nil
			lastDone = time.Now()

		case err := <-readErrs:
			if current != nil {
				current.respChan <- commandResponse{err: fmt.Errorf("read: %w", err)}
				current = nil
			}
			return fmt.Errorf("transport read: %w", err)
		}
	}
}

// route dispatches one digested frame. It reports whether the frame
// completed the in-flight command.
func (m *Modem) route(out at.Outcome, current *commandRequest) bool {
	switch out.Kind {
	case at.KindResponse:
		if current == nil {
			if out.Err != nil {
				m.logger.Warn("discarding unsolicited error", "error", out.Err)
			} else {
				m.logger.Warn("discarding orphan response", "payload", string(out.Payload))
			}
			return false
		}
		resp := commandResponse{err: out.Err}
		if out.Err == nil {
			resp.payload = bytes.Clone(out.Payload)
		}
		current.respChan <- resp
		return true

	case at.KindPrompt:
		if current == nil || !current.cmd.expectPrompt {
			m.logger.Warn("unexpected data prompt")
			return false
		}
		// The payload goes out while the command still occupies the
		// in-flight slot, so no competing command can reach the wire
		// between the prompt and the data.
		if len(current.cmd.payload) > 0 {
			if _, err := m.transport.Write(current.cmd.payload); err != nil {
				current.respChan <- commandResponse{err: fmt.Errorf("write payload: %w", err)}
				return true
			}
		}
		current.respChan <- commandResponse{}
		return true

	case at.KindUrc:
		if u := at.Classify(out.Payload); u != nil {
			m.urcs.publish(u)
		} else {
			m.logger.Debug("dropping unclassified URC", "frame", string(out.Payload))
		}
		return false
	}
	return false
}

// exec sends one AT command through the Loop and waits for its final
// result. The command's own response budget applies on top of any
// caller deadline.
func (m *Modem) exec(ctx context.Context, cmd Command) ([]byte, error) {
	if m.closed.Load() {
		return nil, ErrAlreadyClosed
	}
	if m.transport == nil {
		return nil, ErrNotInitialized
	}

	timeout := cmd.timeout
	if timeout == 0 {
		timeout = m.config.ATTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := &commandRequest{
		cmd:      cmd,
		respChan: make(chan commandResponse, 1),
		ctx:      ctx,
	}

	select {
	case m.commands <- req:
	case <-ctx.Done():
		return nil, fmt.Errorf("%s not sent: %w", cmd.name, ctx.Err())
	}

	select {
	case resp := <-req.respChan:
		if resp.err != nil {
			return nil, fmt.Errorf("%s: %w", cmd.name, resp.err)
		}
		return resp.payload, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, fmt.Errorf("%s: %w", cmd.name, ctx.Err())
		}
		return nil, fmt.Errorf("%s: %w", cmd.name, ErrCommandTimeout)
	}
}

// execDirect runs one command straight against the transport, for use
// during setup before the Loop starts. URCs encountered on the way are
// still classified and published.
func (m *Modem) execDirect(ctx context.Context, cmd Command) ([]byte, error) {
	if m.closed.Load() {
		return nil, ErrAlreadyClosed
	}
	if m.transport == nil {
		return nil, ErrNotInitialized
	}

	timeout := cmd.timeout
	if timeout == 0 {
		timeout = m.config.ATTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if _, err := m.transport.Write(cmd.wire); err != nil {
		return nil, fmt.Errorf("write %s: %w", cmd.name, err)
	}

	buf := make([]byte, 0, m.config.IngressBufSize)
	tmp := make([]byte, 256)
	for {
		if err := ctx.Err(); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil, fmt.Errorf("%s: %w", cmd.name, err)
			}
			return nil, fmt.Errorf("%s: %w", cmd.name, ErrCommandTimeout)
		}
		n, err := m.transport.Read(tmp)
		if err != nil {
			return nil, fmt.Errorf("read: %w", err)
		}
		buf = append(buf, tmp[:n]...)
		for {
			out, consumed := at.Digest(buf)
			if consumed == 0 {
				break
			}
			switch out.Kind {
			case at.KindResponse:
				if out.Err != nil {
					return nil, fmt.Errorf("%s: %w", cmd.name, out.Err)
				}
				return bytes.Clone(out.Payload), nil
			case at.KindPrompt:
				if cmd.expectPrompt {
					if len(cmd.payload) > 0 {
						if _, werr := m.transport.Write(cmd.payload); werr != nil {
							return nil, fmt.Errorf("write payload: %w", werr)
						}
					}
					return nil, nil
				}
				m.logger.Warn("unexpected data prompt during setup")
			case at.KindUrc:
				if u := at.Classify(out.Payload); u != nil {
					m.urcs.publish(u)
				}
			}
			buf = append(buf[:0], buf[consumed:]...)
		}
	}
}

// drainUrcs opportunistically applies pending background URCs to the
// socket table. Contention means another goroutine is already
// draining, so skipping is safe.
func (m *Modem) drainUrcs() {
	if !m.bgMu.TryLock() {
		return
	}
	defer m.bgMu.Unlock()
	for {
		select {
		case u := <-m.bgSub.ch:
			m.handleUrc(u)
		default:
			return
		}
	}
}

// handleUrc applies the socket-state side effects of one URC.
func (m *Modem) handleUrc(u at.Urc) {
	if m.sockets == nil {
		return
	}
	size := m.sockets.size()
	switch v := u.(type) {
	case at.SendOk:
		m.sockets.setDataWritten(v.ID, true)
	case at.Closed:
		if v.ID >= 0 && v.ID < size {
			m.logger.Debug("remote closed socket", "id", v.ID)
			m.sockets.release(v.ID)
		}
	case at.DataAvailable:
		m.sockets.setDataAvailable(v.ID, true)
	case at.ReadData:
		m.sockets.setDataAvailable(v.ID, v.PendingLen > 0)
	case at.AlreadyConnect:
		m.logger.Warn("socket already connected", "id", v.ID)
	case at.PdpDeact:
		m.logger.Warn("network deactivated the PDP context")
	}
}

// Close shuts down the modem and releases the transport. After Close
// the modem cannot be reused.
func (m *Modem) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return ErrAlreadyClosed
	}
	if m.transport != nil {
		return m.transport.Close()
	}
	return nil
}
