package ctrl

import (
	"github.com/sarchlab/akita/v4/sim"

	"github.com/planvtech/cva6-axi-dma/faulting"
)

// A Builder can build register targets.
type Builder struct {
	engine     sim.Engine
	freq       sim.Freq
	baseAddr   uint64
	queueDepth int
	walkerDst  sim.RemotePort
	faults     *faulting.Handler
	reporters  []BusyReporter
}

// MakeBuilder returns a Builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		freq:       1 * sim.GHz,
		queueDepth: 8,
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

// WithBaseAddr sets the bus address of the register block.
func (b Builder) WithBaseAddr(addr uint64) Builder {
	b.baseAddr = addr
	return b
}

// WithQueueDepth sets the submission queue depth.
func (b Builder) WithQueueDepth(n int) Builder {
	b.queueDepth = n
	return b
}

// WithWalkerDst sets the walker port that receives chain starts.
func (b Builder) WithWalkerDst(dst sim.RemotePort) Builder {
	b.walkerDst = dst
	return b
}

// WithFaultHandler sets the shared fault handler.
func (b Builder) WithFaultHandler(h *faulting.Handler) Builder {
	b.faults = h
	return b
}

// WithBusyReporters sets the datapath components whose busy state feeds the
// status register.
func (b Builder) WithBusyReporters(rs ...BusyReporter) Builder {
	b.reporters = append(b.reporters, rs...)
	return b
}

// Build creates a register target component.
func (b Builder) Build(name string) *Comp {
	b.parametersMustBeValid()

	c := &Comp{
		baseAddr:   b.baseAddr,
		queueDepth: b.queueDepth,
		walkerDst:  b.walkerDst,
		faults:     b.faults,
		datapath:   NewAggregator(b.reporters...),
	}
	c.TickingComponent = sim.NewTickingComponent(name, b.engine, b.freq, c)

	c.TopPort = sim.NewPort(c, 4, 4, name+".TopPort")
	c.DMAPort = sim.NewPort(c, 4, 4, name+".DMAPort")
	c.IntPort = sim.NewPort(c, 4, 4, name+".IntPort")

	return c
}

func (b Builder) parametersMustBeValid() {
	if b.engine == nil {
		panic("ctrl requires an engine")
	}

	if b.faults == nil {
		panic("ctrl requires a fault handler")
	}

	if b.queueDepth < 1 {
		panic("ctrl requires a positive queue depth")
	}

	if b.walkerDst == "" {
		panic("ctrl requires a walker destination port")
	}
}
