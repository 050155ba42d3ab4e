package modem

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"i4.energy/across/cellular/at"
)

// Network orchestrates radio-level state: readiness, SIM PIN, operator
// selection, registration, and the GPRS attach.
type Network struct {
	m      *Modem
	logger *slog.Logger
}

// Network returns the network orchestrator for this modem.
func (m *Modem) Network() *Network {
	return &Network{m: m, logger: m.logger.With("component", "network")}
}

const (
	readyAttempts        = 20
	registrationAttempts = 60
	attachAttempts       = 10
	pollInterval         = time.Second
)

// Attach brings the modem onto the GPRS network: wait for Call Ready,
// resolve the SIM PIN state, ensure automatic operator selection, wait
// for GSM registration, attach GPRS, and wait for GPRS registration.
// It is idempotent; every step skips work already done.
func (n *Network) Attach(ctx context.Context) error {
	if err := n.waitReady(ctx); err != nil {
		return err
	}
	if err := n.ensurePin(ctx); err != nil {
		return err
	}
	if err := n.ensureAutomaticOperator(ctx); err != nil {
		return err
	}
	if err := n.waitRegistered(ctx, cmdGsmRegistration(), "+CREG: "); err != nil {
		return err
	}
	if err := n.ensureAttached(ctx); err != nil {
		return err
	}
	if err := n.waitRegistered(ctx, cmdGprsRegistration(), "+CGREG: "); err != nil {
		return err
	}
	n.logger.Info("attached to GPRS network")
	return nil
}

func (n *Network) waitReady(ctx context.Context) error {
	for i := 0; i < readyAttempts; i++ {
		payload, err := n.m.exec(ctx, cmdCallReady())
		if err == nil {
			if ready, err := parseCallReady(payload); err == nil && ready {
				return nil
			}
		}
		if err := sleep(ctx, pollInterval); err != nil {
			return err
		}
	}
	return ErrNotReady
}

func (n *Network) ensurePin(ctx context.Context) error {
	code, err := n.pinStatus(ctx)
	if err != nil {
		return err
	}
	switch code {
	case at.PinReady:
		return nil
	case at.PinSimPin:
		if n.m.config.SimPIN == "" {
			return ErrSIMPinRequired
		}
		if _, err := n.m.exec(ctx, cmdEnterPin(n.m.config.SimPIN)); err != nil {
			return fmt.Errorf("enter SIM PIN: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnexpectedPinStatus, code)
	}
}

// pinStatus queries AT+CPIN?. The status line arrives as a URC ahead of
// the final OK, so the answer is read off a subscription.
func (n *Network) pinStatus(ctx context.Context) (at.PinStatusCode, error) {
	sub := n.m.urcs.subscribe(n.m.config.UrcBufSize)
	defer sub.Close()

	if _, err := n.m.exec(ctx, cmdPinStatus()); err != nil {
		return at.PinStatusUnknown, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, urcWaitTimeout)
	defer cancel()
	for {
		select {
		case u := <-sub.C():
			if p, ok := u.(at.PinStatus); ok {
				return p.Code, nil
			}
		case <-waitCtx.Done():
			return at.PinStatusUnknown, fmt.Errorf("PIN status: %w", waitCtx.Err())
		}
	}
}

func (n *Network) ensureAutomaticOperator(ctx context.Context) error {
	payload, err := n.m.exec(ctx, cmdOperatorQuery())
	if err != nil {
		return err
	}
	mode, err := parseOperatorMode(payload)
	if err != nil {
		return err
	}
	if mode == 0 {
		return nil
	}
	n.logger.Info("switching to automatic operator selection", "mode", mode)
	_, err = n.m.exec(ctx, cmdOperatorAutomatic())
	return err
}

func (n *Network) waitRegistered(ctx context.Context, cmd Command, prefix string) error {
	for i := 0; i < registrationAttempts; i++ {
		payload, err := n.m.exec(ctx, cmd)
		if err != nil {
			return err
		}
		registered, err := parseRegistration(payload, prefix)
		if err != nil {
			return err
		}
		if registered {
			return nil
		}
		if err := sleep(ctx, pollInterval); err != nil {
			return err
		}
	}
	return ErrNotRegistered
}

func (n *Network) ensureAttached(ctx context.Context) error {
	payload, err := n.m.exec(ctx, cmdAttachQuery())
	if err != nil {
		return err
	}
	attached, err := parseAttached(payload)
	if err != nil {
		return err
	}
	if attached {
		return nil
	}

	for i := 0; i < attachAttempts; i++ {
		_, err := n.m.exec(ctx, cmdAttach(true))
		if err == nil {
			return nil
		}
		// The SIM800 sporadically answers the attach with CME 100
		// even though it eventually succeeds. Retry instead of
		// failing the whole sequence.
		var cme at.CMEError
		if n.m.variant == VariantSIM800 && errors.As(err, &cme) && cme == 100 {
			n.logger.Debug("ignoring spurious attach error", "cme", int(cme))
		} else if !errors.Is(err, ErrCommandTimeout) && !errors.Is(err, at.ErrModemError) {
			return err
		}
		if err := sleep(ctx, pollInterval); err != nil {
			return err
		}
	}
	return ErrNotAttached
}

// SignalQuality reads the current signal strength report (AT+CSQ).
func (n *Network) SignalQuality(ctx context.Context) (SignalQuality, error) {
	payload, err := n.m.exec(ctx, cmdSignalQuality())
	if err != nil {
		return SignalQuality{}, err
	}
	return parseSignalQuality(payload)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
