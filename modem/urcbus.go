package modem

import (
	"sync"
	"sync/atomic"

	"i4.energy/across/cellular/at"
)

// urcBus fans URCs out to any number of subscribers. Publishing never
// blocks the event loop: a subscriber that falls behind loses its
// oldest buffered entry and its lag counter is bumped.
type urcBus struct {
	mu   sync.Mutex
	subs map[*UrcSubscription]struct{}
}

func newUrcBus() *urcBus {
	return &urcBus{subs: make(map[*UrcSubscription]struct{})}
}

// UrcSubscription is one subscriber's buffered view of the URC stream.
type UrcSubscription struct {
	bus    *urcBus
	ch     chan at.Urc
	lagged atomic.Uint64
	once   sync.Once
}

func (b *urcBus) subscribe(capacity int) *UrcSubscription {
	s := &UrcSubscription{
		bus: b,
		ch:  make(chan at.Urc, capacity),
	}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	return s
}

func (b *urcBus) publish(u at.Urc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.subs {
		select {
		case s.ch <- u:
		default:
			// Buffer full: drop the oldest entry to make room.
			select {
			case <-s.ch:
				s.lagged.Add(1)
			default:
			}
			select {
			case s.ch <- u:
			default:
			}
		}
	}
}

// C is the receive side of the subscription.
func (s *UrcSubscription) C() <-chan at.Urc {
	return s.ch
}

// Lagged reports how many URCs this subscription has lost to buffer
// overruns. Losses are non-fatal; socket state is reconciled from
// flags, not from the event stream alone.
func (s *UrcSubscription) Lagged() uint64 {
	return s.lagged.Load()
}

// Close detaches the subscription from the bus.
func (s *UrcSubscription) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s)
		s.bus.mu.Unlock()
	})
}
