package mover

import (
	"github.com/sarchlab/akita/v4/mem/mem"
	"github.com/sarchlab/akita/v4/sim"

	"github.com/planvtech/cva6-axi-dma/burst"
	"github.com/planvtech/cva6-axi-dma/faulting"
	"github.com/planvtech/cva6-axi-dma/hazard"
	"github.com/planvtech/cva6-axi-dma/reorder"
)

// A Builder can build transfer engines.
type Builder struct {
	engine           sim.Engine
	freq             sim.Freq
	addrMapper       mem.AddressToPortMapper
	faults           *faulting.Handler
	widthBytes       uint64
	maxBurstBytes    uint64
	boundaryBytes    uint64
	bufferDepth      int
	numAxInFlight    int
	legalize         bool
	hazardCoupling   bool
	rejectZeroLength bool
}

// MakeBuilder returns a Builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		freq:           1 * sim.GHz,
		widthBytes:     8,
		maxBurstBytes:  64,
		boundaryBytes:  4096,
		bufferDepth:    3,
		numAxInFlight:  8,
		legalize:       true,
		hazardCoupling: true,
	}
}

// WithEngine sets the event engine.
func (b Builder) WithEngine(engine sim.Engine) Builder {
	b.engine = engine
	return b
}

// WithFreq sets the tick frequency.
func (b Builder) WithFreq(freq sim.Freq) Builder {
	b.freq = freq
	return b
}

// WithAddressMapper sets the mapper that locates the memory behind each
// payload address.
func (b Builder) WithAddressMapper(m mem.AddressToPortMapper) Builder {
	b.addrMapper = m
	return b
}

// WithFaultHandler sets the shared fault handler.
func (b Builder) WithFaultHandler(h *faulting.Handler) Builder {
	b.faults = h
	return b
}

// WithBusWidthBytes sets the bus data width.
func (b Builder) WithBusWidthBytes(w uint64) Builder {
	b.widthBytes = w
	return b
}

// WithMaxBurstBytes sets the largest legal burst footprint.
func (b Builder) WithMaxBurstBytes(n uint64) Builder {
	b.maxBurstBytes = n
	return b
}

// WithBoundaryBytes sets the alignment boundary no burst may cross.
func (b Builder) WithBoundaryBytes(n uint64) Builder {
	b.boundaryBytes = n
	return b
}

// WithBufferDepth sets the reorder buffer depth.
func (b Builder) WithBufferDepth(n int) Builder {
	b.bufferDepth = n
	return b
}

// WithNumAxInFlight bounds the outstanding bus transactions across the read
// and write streams together.
func (b Builder) WithNumAxInFlight(n int) Builder {
	b.numAxInFlight = n
	return b
}

// WithoutLegalization bypasses hardware legalization; callers must submit
// pre-legalized requests, and violations fault.
func (b Builder) WithoutLegalization() Builder {
	b.legalize = false
	return b
}

// WithoutHazardCoupling disables read-after-write gating; callers relying on
// cross-transfer ordering must serialize manually.
func (b Builder) WithoutHazardCoupling() Builder {
	b.hazardCoupling = false
	return b
}

// WithRejectZeroLength makes zero-length transfers fault instead of retiring
// as no-ops.
func (b Builder) WithRejectZeroLength() Builder {
	b.rejectZeroLength = true
	return b
}

// Build creates a transfer engine component.
func (b Builder) Build(name string) *Comp {
	b.parametersMustBeValid()

	c := &Comp{
		addrMapper:       b.addrMapper,
		legalizer:        burst.NewLegalizer(b.widthBytes, b.maxBurstBytes, b.boundaryBytes),
		legalize:         b.legalize,
		rejectZeroLength: b.rejectZeroLength,
		coupler:          hazard.NewCoupler(b.hazardCoupling),
		reorder:          reorder.NewBuffer(b.bufferDepth),
		faults:           b.faults,
		numAxInFlight:    b.numAxInFlight,
		inflight:         make(map[string]*axRef),
	}
	c.TickingComponent = sim.NewTickingComponent(name, b.engine, b.freq, c)

	c.CtrlPort = sim.NewPort(c, 4, 4, name+".CtrlPort")
	c.MemPort = sim.NewPort(c, 16, 16, name+".MemPort")

	return c
}

func (b Builder) parametersMustBeValid() {
	if b.engine == nil {
		panic("mover requires an engine")
	}

	if b.addrMapper == nil {
		panic("mover requires an address mapper")
	}

	if b.faults == nil {
		panic("mover requires a fault handler")
	}

	if b.numAxInFlight < 1 {
		panic("mover requires at least one in-flight transaction")
	}
}
