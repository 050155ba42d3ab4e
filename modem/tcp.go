package modem

import (
	"context"
	"errors"
	"fmt"
	"time"

	"i4.energy/across/cellular/at"
)

// TcpSocket is one multiplexer slot carrying a TCP or UDP connection.
// Its lifetime is tied to the slot state: a Closed URC or a read
// timeout invalidates it, and all further operations fail with
// ErrSocketClosed.
type TcpSocket struct {
	d  *DataService
	id int
}

// ID reports the multiplexer slot of this socket.
func (s *TcpSocket) ID() int {
	return s.id
}

// Connect opens a connection through the next free multiplexer slot.
// proto is "TCP" or "UDP". Dropped slots are reaped first, so a slot
// abandoned earlier becomes available again as soon as the modem
// confirms its close.
func (d *DataService) Connect(ctx context.Context, proto, host, port string) (*TcpSocket, error) {
	m := d.m
	m.drainUrcs()
	d.closeDroppedSockets(ctx)

	id, err := m.sockets.takeUnused()
	if err != nil {
		return nil, err
	}

	sub := m.urcs.subscribe(m.config.UrcBufSize)
	defer sub.Close()

	waitCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if _, err := m.exec(waitCtx, cmdConnect(id, proto, host, port)); err != nil {
		m.sockets.drop(id)
		return nil, err
	}

	for {
		select {
		case u := <-sub.C():
			switch v := u.(type) {
			case at.ConnectOk:
				if v.ID == id {
					return &TcpSocket{d: d, id: id}, nil
				}
			case at.ConnectFail:
				if v.ID == id {
					m.sockets.drop(id)
					return nil, ErrUnableToConnect
				}
			}
			m.handleUrc(u)
		case <-waitCtx.Done():
			m.sockets.drop(id)
			return nil, ErrConnectTimeout
		}
	}
}

func (s *TcpSocket) ensureInUse() error {
	if !s.d.m.sockets.inUse(s.id) {
		return ErrSocketClosed
	}
	return nil
}

// Read fills buf with received data, requesting at most one modem-side
// chunk. A request that comes back empty arms a single re-request per
// receive notification, so data arriving in either order with the
// empty reply is picked up without busy polling. The whole exchange is
// bounded by the read budget; on expiry the socket is dropped.
func (s *TcpSocket) Read(ctx context.Context, buf []byte) (int, error) {
	m := s.d.m
	m.drainUrcs()
	if err := s.ensureInUse(); err != nil {
		return 0, err
	}
	if len(buf) == 0 {
		return 0, nil
	}

	want := len(buf)
	if want > at.MaxReadChunk {
		want = at.MaxReadChunk
	}
	// Leave headroom for the +CIPRXGET header around the raw block.
	if budget := m.config.IngressBufSize - 64; want > budget {
		want = budget
	}

	sub := m.urcs.subscribe(m.config.UrcBufSize)
	defer sub.Close()

	waitCtx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	request := func() error {
		_, err := m.exec(waitCtx, cmdRequestData(s.id, want))
		return err
	}
	if err := request(); err != nil {
		return 0, s.failRead(err)
	}

	// awaiting is true while an empty reply has been seen and no
	// receive notification has re-armed the request yet. notified
	// covers the opposite interleaving, where the notification lands
	// before the empty reply is processed.
	awaiting := false
	notified := false

	for {
		select {
		case u := <-sub.C():
			switch v := u.(type) {
			case at.ReadData:
				if v.ID != s.id {
					m.handleUrc(u)
					continue
				}
				m.sockets.setDataAvailable(s.id, v.PendingLen > 0)
				if len(v.Data) > 0 {
					return copy(buf, v.Data), nil
				}
				if notified || m.sockets.isDataAvailable(s.id) {
					notified = false
					if err := request(); err != nil {
						return 0, s.failRead(err)
					}
					continue
				}
				awaiting = true
			case at.DataAvailable:
				if v.ID != s.id {
					m.handleUrc(u)
					continue
				}
				m.sockets.setDataAvailable(s.id, true)
				if awaiting {
					awaiting = false
					if err := request(); err != nil {
						return 0, s.failRead(err)
					}
				} else {
					notified = true
				}
			case at.Closed:
				m.handleUrc(u)
				if v.ID == s.id {
					return 0, ErrSocketClosed
				}
			default:
				m.handleUrc(u)
			}
		case <-waitCtx.Done():
			return 0, s.failRead(ErrReadTimeout)
		}
	}
}

// failRead invalidates the socket: after an error mid-read the amount
// of data the modem discarded is unknown, so the stream cannot be
// resumed.
func (s *TcpSocket) failRead(err error) error {
	if errors.Is(err, ErrSocketClosed) {
		return ErrSocketClosed
	}
	s.d.m.sockets.drop(s.id)
	if errors.Is(err, ErrCommandTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return ErrReadTimeout
	}
	return err
}

// Write sends buf, chunked to the modem's send limit. Each chunk waits
// for the previous send's SEND OK, then issues the send as one
// transaction: the prompt request and the raw payload hold the command
// channel together, so nothing else can reach the wire while the modem
// is in data-entry mode. The payload itself has no response; the
// acknowledgment arrives later as a URC and gates the next write.
func (s *TcpSocket) Write(ctx context.Context, buf []byte) (int, error) {
	written := 0
	for written < len(buf) {
		chunk := buf[written:]
		if len(chunk) > at.MaxWriteChunk {
			chunk = chunk[:at.MaxWriteChunk]
		}
		if err := s.writeChunk(ctx, chunk); err != nil {
			return written, err
		}
		written += len(chunk)
	}
	return written, nil
}

func (s *TcpSocket) writeChunk(ctx context.Context, chunk []byte) error {
	m := s.d.m

	waitCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	if err := s.waitOngoingWrite(waitCtx); err != nil {
		return err
	}

	// A refused send leaves the connection intact, so the slot stays
	// Used and the caller decides what to do with the error.
	m.sockets.setDataWritten(s.id, false)
	if _, err := m.exec(waitCtx, cmdSend(s.id, chunk)); err != nil {
		m.sockets.setDataWritten(s.id, true)
		if errors.Is(err, cmeUnknown) && m.sockets.isDataAvailable(s.id) {
			return ErrMustReadBeforeWrite
		}
		return err
	}
	return nil
}

// waitOngoingWrite blocks until the previous send has been
// acknowledged. The acknowledgment is a URC applied by the background
// drain, so this polls the flag rather than the event stream.
func (s *TcpSocket) waitOngoingWrite(ctx context.Context) error {
	m := s.d.m
	for {
		m.drainUrcs()
		if err := s.ensureInUse(); err != nil {
			return err
		}
		if m.sockets.isDataWritten(s.id) {
			return nil
		}
		timer := time.NewTimer(100 * time.Millisecond)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			m.sockets.drop(s.id)
			return ErrWriteTimeout
		}
	}
}

// Flush is a no-op. Waiting for the final SEND OK here would deadlock
// callers that flush before reading the response that the peer only
// sends once all data has arrived; the wait happens at the start of
// the next write instead.
func (s *TcpSocket) Flush() error {
	return nil
}

// Close shuts the connection down cleanly and returns the slot to the
// pool. Closing an already-closed socket is a no-op: if the slot is no
// longer in use, nothing is sent.
func (s *TcpSocket) Close(ctx context.Context) error {
	m := s.d.m
	m.drainUrcs()
	if !m.sockets.inUse(s.id) {
		return nil
	}

	_, err := m.exec(ctx, cmdCloseConnection(s.id))
	switch {
	case err == nil:
		m.sockets.release(s.id)
		return nil
	case errors.Is(err, cmeUnknown):
		// Already closed on the modem side, e.g. a remote close whose
		// URC we have not drained yet.
		state, serr := s.d.socketStatus(ctx, s.id)
		if serr == nil && state == StateClosed {
			m.sockets.release(s.id)
			return nil
		}
		m.sockets.drop(s.id)
		return fmt.Errorf("close socket %d: %w", s.id, err)
	default:
		m.sockets.drop(s.id)
		return fmt.Errorf("close socket %d: %w", s.id, err)
	}
}

// Drop abandons the socket without any I/O. The slot stays reserved
// until the reaper confirms the close with the modem at the next
// connect.
func (s *TcpSocket) Drop() {
	s.d.m.sockets.drop(s.id)
}
