package modem_test

import (
	"errors"
	"testing"

	"i4.energy/across/cellular/modem"
)

const resolveWire = "AT+CDNSGIP=\"www.example.com\"\r"

func TestResolveHost(t *testing.T) {
	t.Run("Returns the resolved address", func(t *testing.T) {
		lt := NewLoopTransport(t)
		defer lt.Stop()

		d := newDataService(t, lt, map[string]string{
			resolveWire: "\r\nOK\r\n\r\n+CDNSGIP: 1,\"www.example.com\",\"93.184.216.34\"\r\n",
		})

		ip, err := d.ResolveHost(lt.Ctx(), "www.example.com")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ip != "93.184.216.34" {
			t.Errorf("ip = %q, want 93.184.216.34", ip)
		}
	})

	t.Run("DNSError carries the failure code", func(t *testing.T) {
		lt := NewLoopTransport(t)
		defer lt.Stop()

		d := newDataService(t, lt, map[string]string{
			resolveWire: "\r\nOK\r\n\r\n+CDNSGIP: 0,8\r\n",
		})

		_, err := d.ResolveHost(lt.Ctx(), "www.example.com")
		var dnsErr *modem.DNSError
		if !errors.As(err, &dnsErr) {
			t.Fatalf("expected DNSError, got: %v", err)
		}
		if dnsErr.Code != 8 {
			t.Errorf("Code = %d, want 8", dnsErr.Code)
		}
	})

	t.Run("Retries a transient query rejection", func(t *testing.T) {
		lt := NewLoopTransport(t)
		defer lt.Stop()

		d := newDataService(t, lt, nil)

		// The first query bounces with a bare ERROR, which happens
		// right after the bearer comes up.
		raw := lt.Raw()
		queries := 0
		raw.SetOnWrite(func(p []byte) {
			if string(p) != resolveWire {
				return
			}
			queries++
			if queries == 1 {
				raw.SendData("\r\nERROR\r\n")
			} else {
				raw.SendData("\r\nOK\r\n\r\n+CDNSGIP: 1,\"www.example.com\",\"93.184.216.34\"\r\n")
			}
		})

		ip, err := d.ResolveHost(lt.Ctx(), "www.example.com")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ip != "93.184.216.34" {
			t.Errorf("ip = %q, want 93.184.216.34", ip)
		}
		if queries != 2 {
			t.Errorf("query issued %d times, want 2", queries)
		}
	})
}
