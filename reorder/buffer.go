// Package reorder provides the fixed-depth buffer that reassembles
// out-of-order read completions into issue order. A slot is claimed when the
// read is issued; completions land in their slot in any order; payloads leave
// strictly in the order the slots were claimed.
package reorder

import "log"

// MinDepth is the smallest buffer that can make forward progress. A depth of
// 3 keeps misaligned transfers fully pipelined.
const MinDepth = 2

type slot struct {
	completed bool
	data      []byte
}

// A Buffer holds completed reads awaiting in-order release.
type Buffer struct {
	depth      int
	slots      []slot
	headTicket uint64
	allocated  int
}

// NewBuffer creates a buffer with the given number of slots.
func NewBuffer(depth int) *Buffer {
	if depth < MinDepth {
		log.Panicf("reorder buffer depth %d is below the minimum %d",
			depth, MinDepth)
	}

	return &Buffer{
		depth: depth,
		slots: make([]slot, depth),
	}
}

// Cap returns the configured depth.
func (b *Buffer) Cap() int {
	return b.depth
}

// Len returns the number of claimed slots.
func (b *Buffer) Len() int {
	return b.allocated
}

// Full reports whether every slot is claimed. Read issuance must stall while
// the buffer is full.
func (b *Buffer) Full() bool {
	return b.allocated == b.depth
}

// Allocate claims the next slot and returns its ticket. Tickets increase
// monotonically in issue order.
func (b *Buffer) Allocate() (ticket uint64, ok bool) {
	if b.Full() {
		return 0, false
	}

	ticket = b.headTicket + uint64(b.allocated)
	b.allocated++

	return ticket, true
}

// Complete stores the payload of a finished read into its claimed slot.
func (b *Buffer) Complete(ticket uint64, data []byte) {
	if ticket < b.headTicket || ticket >= b.headTicket+uint64(b.allocated) {
		log.Panicf("ticket %d is not claimed", ticket)
	}

	s := &b.slots[ticket%uint64(b.depth)]
	if s.completed {
		log.Panicf("ticket %d completed twice", ticket)
	}

	s.completed = true
	s.data = data
}

// Peek returns the payload of the oldest claimed slot, if it has completed.
// It never returns slot N+1 before slot N has been released.
func (b *Buffer) Peek() (data []byte, ok bool) {
	if b.allocated == 0 {
		return nil, false
	}

	s := b.slots[b.headTicket%uint64(b.depth)]
	if !s.completed {
		return nil, false
	}

	return s.data, true
}

// Release frees the oldest slot. The caller must have observed it through
// Peek first.
func (b *Buffer) Release() {
	if _, ok := b.Peek(); !ok {
		panic("releasing a slot that has not completed")
	}

	b.slots[b.headTicket%uint64(b.depth)] = slot{}
	b.headTicket++
	b.allocated--
}
