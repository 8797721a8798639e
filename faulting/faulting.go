// Package faulting classifies per-transaction faults and gates their
// propagation according to the engine's configured error capability.
package faulting

// FaultKind classifies a detected fault.
type FaultKind int

const (
	FaultNone FaultKind = iota

	// FaultBusError is a transaction error reported by the memory or
	// peripheral being accessed.
	FaultBusError

	// FaultLegalization marks a request that is not protocol-conformant
	// while hardware legalization is disabled.
	FaultLegalization

	// FaultZeroLength marks a rejected zero-length transfer.
	FaultZeroLength

	// FaultChainTooLong marks a descriptor chain that exceeded the
	// traversal bound without reaching the sentinel.
	FaultChainTooLong
)

func (k FaultKind) String() string {
	switch k {
	case FaultNone:
		return "none"
	case FaultBusError:
		return "bus-error"
	case FaultLegalization:
		return "legalization-violation"
	case FaultZeroLength:
		return "zero-length-rejected"
	case FaultChainTooLong:
		return "chain-too-long"
	}

	return "unknown"
}

// An ErrorRecord describes one detected fault.
type ErrorRecord struct {
	TransferID string
	Seq        int
	Kind       FaultKind
	Addr       uint64
}

// Capability selects how much error handling the engine performs. It is
// fixed at construction time.
type Capability int

const (
	// CapNone drops faults silently; only busy/status remains observable.
	CapNone Capability = iota

	// CapReport records and surfaces one fault; processing continues with
	// subsequent descriptors.
	CapReport

	// CapHalt records one fault and stops chain processing until the
	// record is acknowledged.
	CapHalt
)

// A Handler observes terminal fault outcomes and retains at most one record
// until the external collaborator drains it.
type Handler struct {
	capability Capability
	record     *ErrorRecord
	halted     bool
	dropped    int
}

// NewHandler creates a handler with the given capability.
func NewHandler(c Capability) *Handler {
	return &Handler{capability: c}
}

// Capability returns the configured capability level.
func (h *Handler) Capability() Capability {
	return h.capability
}

// Report classifies a fault. It returns true if the fault was retained for
// external consumption. While a record is pending, further faults only bump
// the dropped counter.
func (h *Handler) Report(r ErrorRecord) bool {
	if h.capability == CapNone {
		h.dropped++
		return false
	}

	if h.capability == CapHalt {
		h.halted = true
	}

	if h.record != nil {
		h.dropped++
		return false
	}

	rec := r
	h.record = &rec

	return true
}

// ForceHalt stops chain processing even when the capability level would
// only report, as requested by a descriptor's halt-on-error hint. It has no
// effect when error handling is disabled.
func (h *Handler) ForceHalt() {
	if h.capability == CapNone {
		return
	}

	h.halted = true
}

// Pending returns the retained record, or nil.
func (h *Handler) Pending() *ErrorRecord {
	return h.record
}

// Halted reports whether chain processing is stopped pending acknowledgment.
func (h *Handler) Halted() bool {
	return h.halted
}

// Drain acknowledges and clears the retained record, leaving the halted
// state. It returns the record that was pending, or nil.
func (h *Handler) Drain() *ErrorRecord {
	rec := h.record
	h.record = nil
	h.halted = false

	return rec
}

// Dropped returns the number of faults that were not retained.
func (h *Handler) Dropped() int {
	return h.dropped
}
