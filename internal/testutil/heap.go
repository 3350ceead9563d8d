package testutil

import (
	"testing"

	"github.com/roach88/refc/internal/rt"
)

// Balance snapshots heap counters so a test can assert that a call released
// everything it allocated.
type Balance struct {
	h     *rt.Heap
	live  int
	cells int
}

// Snapshot records the current live object and cell counts of h.
func Snapshot(h *rt.Heap) Balance {
	return Balance{h: h, live: h.Live(), cells: h.Cells()}
}

// Leaked returns the objects and list cells allocated since the snapshot and
// still live. Negative values mean more was released than allocated.
func (b Balance) Leaked() (objects, cells int) {
	return b.h.Live() - b.live, b.h.Cells() - b.cells
}

// AssertBalanced fails the test if objects or list cells leaked since the
// snapshot.
func (b Balance) AssertBalanced(t testing.TB) {
	t.Helper()
	objects, cells := b.Leaked()
	if objects != 0 {
		t.Errorf("heap leak: %d live objects, want %d", b.live+objects, b.live)
	}
	if cells != 0 {
		t.Errorf("heap leak: %d list cells, want %d", b.cells+cells, b.cells)
	}
}

// RecordTrace installs a heap trace and returns the collected events. The
// trace is removed when the test ends.
func RecordTrace(t testing.TB, h *rt.Heap) *[]rt.Event {
	t.Helper()
	events := &[]rt.Event{}
	h.SetTrace(func(e rt.Event) { *events = append(*events, e) })
	t.Cleanup(func() { h.SetTrace(nil) })
	return events
}
