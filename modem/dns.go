package modem

import (
	"context"
	"errors"
	"fmt"
	"time"

	"i4.energy/across/cellular/at"
)

const (
	dnsAttempts      = 5
	dnsRetryInterval = time.Second
)

// ResolveHost resolves a hostname through the modem's DNS client
// (AT+CDNSGIP). Lookups are single-flighted: the modem resolves one
// name at a time and delivers the answer as a URC.
//
// The query command itself occasionally fails with a transient ERROR
// right after the bearer comes up; it is retried a few times before
// giving up.
func (d *DataService) ResolveHost(ctx context.Context, host string) (string, error) {
	d.dnsMu.Lock()
	defer d.dnsMu.Unlock()

	sub := d.m.urcs.subscribe(d.m.config.UrcBufSize)
	defer sub.Close()

	sent := false
	for i := 0; i < dnsAttempts; i++ {
		_, err := d.m.exec(ctx, cmdResolveHost(host))
		if err == nil {
			sent = true
			break
		}
		if !errors.Is(err, at.ErrModemError) {
			return "", err
		}
		d.logger.Debug("DNS query rejected, retrying", "host", host, "attempt", i+1)
		if err := sleep(ctx, dnsRetryInterval); err != nil {
			return "", err
		}
	}
	if !sent {
		return "", fmt.Errorf("resolve %q: %w", host, at.ErrModemError)
	}

	waitCtx, cancel := context.WithTimeout(ctx, urcWaitTimeout)
	defer cancel()
	for {
		select {
		case u := <-sub.C():
			switch v := u.(type) {
			case at.DnsOk:
				if v.Host == host {
					return v.IP, nil
				}
			case at.DnsFail:
				return "", &DNSError{Code: v.Code}
			default:
				d.m.handleUrc(u)
			}
		case <-waitCtx.Done():
			return "", fmt.Errorf("resolve %q: %w", host, waitCtx.Err())
		}
	}
}
