package modem

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"i4.energy/across/cellular/at"
)

// Apn holds the GPRS access point credentials.
type Apn struct {
	APN      string
	Username string
	Password string
}

// DNS servers configured during data setup.
const (
	primaryDNS   = "8.8.8.8"
	secondaryDNS = "8.8.4.4"
)

// cmeUnknown is how the modem answers AT+CIPCLOSE for a socket it
// already considers closed, and AT+CIPSEND while unread receive data
// is pending.
const cmeUnknown = at.CMEError(3)

const pdpContext = 1

// DataService is the exclusive handle over the modem's TCP/IP stack.
// At most one can be taken per Modem.
type DataService struct {
	m       *Modem
	logger  *slog.Logger
	localIP string

	// dnsMu single-flights DNS lookups; the modem resolves one host
	// at a time and reports the result as a URC.
	dnsMu sync.Mutex
}

// Data takes the TCP/IP stack and runs its setup sequence: PDP context
// definition, a clean CIPSHUT, manual receive mode, multiplexing, the
// APN session, and the wireless bring-up. A second call fails with
// ErrDataServiceTaken; the service is not returned on setup failure
// either, matching the stack's unknown state after a partial setup.
func (m *Modem) Data(ctx context.Context, apn Apn) (*DataService, error) {
	if !m.dataTaken.CompareAndSwap(false, true) {
		return nil, ErrDataServiceTaken
	}
	d := &DataService{
		m:      m,
		logger: m.config.Logger.With("component", "data"),
	}
	if err := d.setup(ctx, apn); err != nil {
		return nil, fmt.Errorf("data setup: %w", err)
	}
	return d, nil
}

func (d *DataService) setup(ctx context.Context, apn Apn) error {
	m := d.m

	activated, err := d.pdpState(ctx)
	if err != nil {
		return err
	}
	if activated {
		if _, err := m.exec(ctx, cmdPdpSet(pdpContext, false)); err != nil {
			return fmt.Errorf("deactivate PDP: %w", err)
		}
	}

	if _, err := m.exec(ctx, cmdDefinePdpContext(pdpContext, apn.APN)); err != nil {
		return err
	}
	if _, err := m.exec(ctx, cmdShut()); err != nil {
		return err
	}
	if _, err := m.exec(ctx, cmdManualRxMode()); err != nil {
		return err
	}
	if _, err := m.exec(ctx, cmdMultiplex()); err != nil {
		return err
	}
	if _, err := m.exec(ctx, cmdStartTask(apn.APN, apn.Username, apn.Password)); err != nil {
		return err
	}
	if _, err := m.exec(ctx, cmdBringUp()); err != nil {
		return err
	}

	activated, err = d.pdpState(ctx)
	if err != nil {
		return err
	}
	if !activated {
		if _, err := m.exec(ctx, cmdPdpSet(pdpContext, true)); err != nil {
			return fmt.Errorf("activate PDP: %w", err)
		}
	}

	if err := d.reconcileSockets(ctx); err != nil {
		return err
	}

	ip, err := m.exec(ctx, cmdLocalIP())
	if err != nil {
		return err
	}
	d.localIP = string(ip)

	if _, err := m.exec(ctx, cmdDnsConfig(primaryDNS, secondaryDNS)); err != nil {
		return err
	}

	d.logger.Info("data service ready", "local_ip", d.localIP)
	return nil
}

// pdpState queries AT+CGACT?. The state line arrives as a URC ahead of
// the final OK, so the answer is read off a subscription.
func (d *DataService) pdpState(ctx context.Context) (bool, error) {
	sub := d.m.urcs.subscribe(d.m.config.UrcBufSize)
	defer sub.Close()

	if _, err := d.m.exec(ctx, cmdPdpQuery()); err != nil {
		return false, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, urcWaitTimeout)
	defer cancel()
	for {
		select {
		case u := <-sub.C():
			if s, ok := u.(at.PdpState); ok && s.CID == pdpContext {
				return s.Activated, nil
			}
		case <-waitCtx.Done():
			return false, fmt.Errorf("PDP state: %w", waitCtx.Err())
		}
	}
}

// urcWaitTimeout bounds waits for URCs that trail a completed command.
const urcWaitTimeout = 20 * time.Second

// reconcileSockets resets the slot table from the modem's own view.
// After CIPSHUT every connection is down, so slots the modem reports
// idle or closed become Unused; anything else is left for the reaper.
func (d *DataService) reconcileSockets(ctx context.Context) error {
	for id := 0; id < d.m.sockets.size(); id++ {
		state, err := d.socketStatus(ctx, id)
		if err != nil {
			return err
		}
		switch state {
		case StateInitial, StateClosed:
			d.m.sockets.release(id)
		default:
			d.m.sockets.states[id].Store(uint32(socketDropped))
		}
	}
	return nil
}

func (d *DataService) socketStatus(ctx context.Context, id int) (ClientState, error) {
	payload, err := d.m.exec(ctx, cmdConnectionStatus(id))
	if err != nil {
		return StateUnknown, err
	}
	return parseClientState(payload)
}

// closeDroppedSockets reaps slots whose handles were abandoned without
// a clean close. Each gets one AT+CIPCLOSE attempt per pass; a CME 3
// answer means the modem already considers it closed, which a status
// query confirms before the slot is released. Anything else leaves the
// slot Dropped for the next pass.
func (d *DataService) closeDroppedSockets(ctx context.Context) {
	for id := 0; id < d.m.sockets.size(); id++ {
		if d.m.sockets.state(id) != socketDropped {
			continue
		}
		_, err := d.m.exec(ctx, cmdCloseConnection(id))
		switch {
		case err == nil:
			d.m.sockets.release(id)
		case errors.Is(err, cmeUnknown):
			state, serr := d.socketStatus(ctx, id)
			if serr == nil && state == StateClosed {
				d.m.sockets.release(id)
			} else {
				d.logger.Debug("dropped socket still open", "id", id, "state", state)
			}
		default:
			d.logger.Debug("reaping socket failed", "id", id, "error", err)
		}
	}
}

// LocalIP reports the address assigned during setup (AT+CIFSR).
func (d *DataService) LocalIP() string {
	return d.localIP
}
