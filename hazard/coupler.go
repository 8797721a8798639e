// Package hazard tracks the destination ranges of transfers whose writes
// have not yet retired, so that reads with a read-after-write dependency can
// be held back until the conflicting writes complete.
package hazard

import "log"

// An AddrRange is a half-open byte range [Base, Base+NumBytes).
type AddrRange struct {
	Base     uint64
	NumBytes uint64
}

// Overlaps reports whether the two ranges share at least one byte.
func (r AddrRange) Overlaps(o AddrRange) bool {
	return r.Base < o.Base+o.NumBytes && o.Base < r.Base+r.NumBytes
}

// A Coupler serializes reads against pending overlapping writes of older
// transfers. It never blocks writes, never orders non-overlapping
// transactions, and never holds a read for a younger write (that is a
// write-after-read relation, which the in-order write pipeline already
// keeps safe). The number of tracked ranges is bounded by the number of
// queued transfers, so overlap queries are a linear scan.
type Coupler struct {
	enabled bool
	writes  map[string]trackedWrite
}

type trackedWrite struct {
	seq int
	r   AddrRange
}

// NewCoupler creates a coupler. A disabled coupler tracks nothing and blocks
// nothing; callers relying on read-after-write ordering must then serialize
// transfers themselves.
func NewCoupler(enabled bool) *Coupler {
	return &Coupler{
		enabled: enabled,
		writes:  make(map[string]trackedWrite),
	}
}

// Enabled reports whether hazard coupling is active.
func (c *Coupler) Enabled() bool {
	return c.enabled
}

// TrackWrite records a destination range whose write-out is pending. seq is
// the chain position of the owning transfer; it decides which reads the
// range can hold back.
func (c *Coupler) TrackWrite(id string, seq int, r AddrRange) {
	if !c.enabled {
		return
	}

	if _, found := c.writes[id]; found {
		log.Panicf("write %s already tracked", id)
	}

	c.writes[id] = trackedWrite{seq: seq, r: r}
}

// WriteRetired removes a completed write. Retirement may unblock any number
// of held reads; the caller re-checks them.
func (c *Coupler) WriteRetired(id string) {
	if !c.enabled {
		return
	}

	delete(c.writes, id)
}

// Blocked reports whether a read issued by the transfer at readerSeq must be
// held because it overlaps a pending write of an older transfer. Writes at
// readerSeq or later never block: a transfer is not gated on its own
// write-out, and a younger transfer's write must not hold an older read.
func (c *Coupler) Blocked(r AddrRange, readerSeq int) bool {
	if !c.enabled || r.NumBytes == 0 {
		return false
	}

	for _, w := range c.writes {
		if w.seq >= readerSeq {
			continue
		}

		if w.r.Overlaps(r) {
			return true
		}
	}

	return false
}

// OutstandingWrites returns the number of tracked ranges.
func (c *Coupler) OutstandingWrites() int {
	return len(c.writes)
}
