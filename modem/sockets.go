package modem

import "sync/atomic"

// socketState is one slot in the multiplexer table. Transitions are
// lock-free so the event loop and user goroutines never contend:
//
//	Unknown -> Unused      (setup reconciliation)
//	Unused  -> Used        (takeUnused, CAS)
//	Used    -> Dropped     (handle abandoned without a clean close)
//	Used    -> Unused      (clean close, or a Closed URC)
//	Dropped -> Unused      (reaper confirms the modem-side close)
type socketState uint32

const (
	socketUnknown socketState = iota
	socketUnused
	socketUsed
	socketDropped
)

// socketTable tracks every multiplexer slot plus the two per-slot
// data flags the TCP service polls.
type socketTable struct {
	states []atomic.Uint32
	// dataWritten is true when no send is awaiting its SEND OK.
	dataWritten []atomic.Bool
	// dataAvailable is true when the modem has signaled unread
	// receive data for the slot.
	dataAvailable []atomic.Bool
}

func newSocketTable(size int) *socketTable {
	return &socketTable{
		states:        make([]atomic.Uint32, size),
		dataWritten:   make([]atomic.Bool, size),
		dataAvailable: make([]atomic.Bool, size),
	}
}

func (t *socketTable) size() int {
	return len(t.states)
}

func (t *socketTable) state(id int) socketState {
	return socketState(t.states[id].Load())
}

// takeUnused claims the first Unused slot. The winning CAS also resets
// the data flags, so a recycled slot never observes its predecessor's
// SEND OK or receive signal.
func (t *socketTable) takeUnused() (int, error) {
	for id := range t.states {
		if t.states[id].CompareAndSwap(uint32(socketUnused), uint32(socketUsed)) {
			t.dataWritten[id].Store(true)
			t.dataAvailable[id].Store(false)
			return id, nil
		}
	}
	return 0, ErrNoAvailableSockets
}

// drop abandons a Used slot without issuing any I/O. The slot stays
// unavailable until the reaper confirms a modem-side close.
func (t *socketTable) drop(id int) {
	t.states[id].CompareAndSwap(uint32(socketUsed), uint32(socketDropped))
}

// release returns a slot to the pool from any state.
func (t *socketTable) release(id int) {
	t.states[id].Store(uint32(socketUnused))
	t.dataWritten[id].Store(true)
	t.dataAvailable[id].Store(false)
}

func (t *socketTable) inUse(id int) bool {
	return t.state(id) == socketUsed
}

func (t *socketTable) setDataWritten(id int, v bool) {
	if id >= 0 && id < len(t.dataWritten) {
		t.dataWritten[id].Store(v)
	}
}

func (t *socketTable) setDataAvailable(id int, v bool) {
	if id >= 0 && id < len(t.dataAvailable) {
		t.dataAvailable[id].Store(v)
	}
}

func (t *socketTable) isDataWritten(id int) bool {
	return t.dataWritten[id].Load()
}

func (t *socketTable) isDataAvailable(id int) bool {
	return t.dataAvailable[id].Load()
}
