package obs

import (
	"sync/atomic"
	"time"
)

// PassIDs hands out monotonically increasing identifiers used to tag
// reconciliation passes and batch jobs in logs.
type PassIDs struct {
	next uint64
}

// NewPassIDs returns a generator seeded with the given value.
// A zero seed starts from the current wall clock.
func NewPassIDs(seed uint64) *PassIDs {
	if seed == 0 {
		seed = uint64(time.Now().UTC().UnixNano())
	}
	return &PassIDs{next: seed}
}

// Next returns the next identifier.
func (g *PassIDs) Next() uint64 {
	if g == nil {
		return 0
	}
	return atomic.AddUint64(&g.next, 1)
}
