// Package dmac assembles the full DMA engine: the register target, the
// descriptor walker, and the transfer engine, with an internal connection
// between them and a shared fault handler. Callers plug the exposed external
// ports into their own fabric.
package dmac

import (
	"github.com/sarchlab/akita/v4/mem/mem"
	"github.com/sarchlab/akita/v4/sim"
	"github.com/sarchlab/akita/v4/sim/directconnection"

	"github.com/planvtech/cva6-axi-dma/ctrl"
	"github.com/planvtech/cva6-axi-dma/faulting"
	"github.com/planvtech/cva6-axi-dma/mover"
	"github.com/planvtech/cva6-axi-dma/walker"
)

// A Comp bundles the built components. TopPort is the register slave the
// host programs, IntPort raises interrupts, DescPort fetches descriptor
// records, and DataPort moves payload bytes.
type Comp struct {
	Ctrl   *ctrl.Comp
	Walker *walker.Comp
	Mover  *mover.Comp
	Faults *faulting.Handler

	TopPort  sim.Port
	IntPort  sim.Port
	DescPort sim.Port
	DataPort sim.Port
}

// SetInterruptTarget sets the remote port that receives interrupt messages.
func (c *Comp) SetInterruptTarget(dst sim.RemotePort) {
	c.Ctrl.SetInterruptTarget(dst)
}

// A Builder can build DMA engines.
type Builder struct {
	engine     sim.Engine
	freq       sim.Freq
	descMapper mem.AddressToPortMapper
	dataMapper mem.AddressToPortMapper
	capability faulting.Capability

	baseAddr   uint64
	queueDepth int

	widthBytes    uint64
	maxBurstBytes uint64
	boundaryBytes uint64

	nSpeculation int
	maxChainLen  int

	bufferDepth   int
	numAxInFlight int

	legalize         bool
	hazardCoupling   bool
	rejectZeroLength bool
}

// MakeBuilder returns a Builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		freq:           1 * sim.GHz,
		capability:     faulting.CapHalt,
		queueDepth:     8,
		widthBytes:     8,
		maxBurstBytes:  64,
		boundaryBytes:  4096,
		nSpeculation:   2,
		maxChainLen:    1024,
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

// WithFreq sets the tick frequency of every component.
func (b Builder) WithFreq(freq sim.Freq) Builder {
	b.freq = freq
	return b
}

// WithDescriptorMapper sets the mapper that locates descriptor memory.
func (b Builder) WithDescriptorMapper(m mem.AddressToPortMapper) Builder {
	b.descMapper = m
	return b
}

// WithDataMapper sets the mapper that locates payload memory.
func (b Builder) WithDataMapper(m mem.AddressToPortMapper) Builder {
	b.dataMapper = m
	return b
}

// WithErrorCapability sets the hardware error handling level.
func (b Builder) WithErrorCapability(c faulting.Capability) Builder {
	b.capability = c
	return b
}

// WithBaseAddr sets the bus address of the register block.
func (b Builder) WithBaseAddr(addr uint64) Builder {
	b.baseAddr = addr
	return b
}

// WithQueueDepth sets the chain submission queue depth.
func (b Builder) WithQueueDepth(n int) Builder {
	b.queueDepth = n
	return b
}

// WithBusWidthBytes sets the bus data width.
func (b Builder) WithBusWidthBytes(n uint64) Builder {
	b.widthBytes = n
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

// WithNSpeculation bounds how many descriptor records the walker fetches
// ahead of the transfer engine.
func (b Builder) WithNSpeculation(n int) Builder {
	b.nSpeculation = n
	return b
}

// WithMaxChainLen bounds chain traversal.
func (b Builder) WithMaxChainLen(n int) Builder {
	b.maxChainLen = n
	return b
}

// WithBufferDepth sets the payload reorder buffer depth.
func (b Builder) WithBufferDepth(n int) Builder {
	b.bufferDepth = n
	return b
}

// WithNumAxInFlight bounds the transfer engine's outstanding bus
// transactions.
func (b Builder) WithNumAxInFlight(n int) Builder {
	b.numAxInFlight = n
	return b
}

// WithoutLegalization bypasses hardware legalization.
func (b Builder) WithoutLegalization() Builder {
	b.legalize = false
	return b
}

// WithoutHazardCoupling disables read-after-write gating.
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

// Build creates the DMA engine and wires its internal connection.
func (b Builder) Build(name string) *Comp {
	faults := faulting.NewHandler(b.capability)

	moverBuilder := mover.MakeBuilder().
		WithEngine(b.engine).
		WithFreq(b.freq).
		WithAddressMapper(b.dataMapper).
		WithFaultHandler(faults).
		WithBusWidthBytes(b.widthBytes).
		WithMaxBurstBytes(b.maxBurstBytes).
		WithBoundaryBytes(b.boundaryBytes).
		WithBufferDepth(b.bufferDepth).
		WithNumAxInFlight(b.numAxInFlight)
	if !b.legalize {
		moverBuilder = moverBuilder.WithoutLegalization()
	}
	if !b.hazardCoupling {
		moverBuilder = moverBuilder.WithoutHazardCoupling()
	}
	if b.rejectZeroLength {
		moverBuilder = moverBuilder.WithRejectZeroLength()
	}
	mv := moverBuilder.Build(name + ".Mover")

	wk := walker.MakeBuilder().
		WithEngine(b.engine).
		WithFreq(b.freq).
		WithAddressMapper(b.descMapper).
		WithEngineDst(mv.CtrlPort.AsRemote()).
		WithFaultHandler(faults).
		WithBusWidthBytes(b.widthBytes).
		WithNSpeculation(b.nSpeculation).
		WithMaxChainLen(b.maxChainLen).
		Build(name + ".Walker")

	ct := ctrl.MakeBuilder().
		WithEngine(b.engine).
		WithFreq(b.freq).
		WithBaseAddr(b.baseAddr).
		WithQueueDepth(b.queueDepth).
		WithWalkerDst(wk.CtrlPort.AsRemote()).
		WithFaultHandler(faults).
		WithBusyReporters(wk, mv).
		Build(name + ".Ctrl")

	conn := directconnection.MakeBuilder().
		WithEngine(b.engine).
		WithFreq(b.freq).
		Build(name + ".InternalConn")
	conn.PlugIn(ct.DMAPort)
	conn.PlugIn(wk.CtrlPort)
	conn.PlugIn(wk.OutPort)
	conn.PlugIn(mv.CtrlPort)

	return &Comp{
		Ctrl:   ct,
		Walker: wk,
		Mover:  mv,
		Faults: faults,

		TopPort:  ct.TopPort,
		IntPort:  ct.IntPort,
		DescPort: wk.MemPort,
		DataPort: mv.MemPort,
	}
}
