package modem

import (
	"testing"

	"i4.energy/across/cellular/at"
)

func TestUrcBusFanOut(t *testing.T) {
	bus := newUrcBus()
	a := bus.subscribe(4)
	b := bus.subscribe(4)
	defer a.Close()
	defer b.Close()

	bus.publish(at.ConnectOk{ID: 1})

	for _, sub := range []*UrcSubscription{a, b} {
		select {
		case u := <-sub.C():
			if u != (at.ConnectOk{ID: 1}) {
				t.Errorf("got %#v", u)
			}
		default:
			t.Error("subscriber missed the publish")
		}
	}
}

func TestUrcBusDropsOldestWhenFull(t *testing.T) {
	bus := newUrcBus()
	sub := bus.subscribe(2)
	defer sub.Close()

	bus.publish(at.SendOk{ID: 0})
	bus.publish(at.SendOk{ID: 1})
	bus.publish(at.SendOk{ID: 2})

	if sub.Lagged() != 1 {
		t.Errorf("Lagged() = %d, want 1", sub.Lagged())
	}
	// Oldest entry gone, newer two retained in order.
	if u := <-sub.C(); u != (at.SendOk{ID: 1}) {
		t.Errorf("first buffered = %#v, want SendOk{1}", u)
	}
	if u := <-sub.C(); u != (at.SendOk{ID: 2}) {
		t.Errorf("second buffered = %#v, want SendOk{2}", u)
	}
}

func TestUrcBusClosedSubscriptionIgnored(t *testing.T) {
	bus := newUrcBus()
	sub := bus.subscribe(1)
	sub.Close()
	sub.Close() // idempotent

	bus.publish(at.CallReady{})

	select {
	case <-sub.C():
		t.Error("closed subscription received a publish")
	default:
	}
}
