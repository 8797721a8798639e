package walker

import (
	"log"

	"github.com/sarchlab/akita/v4/mem/mem"
	"github.com/sarchlab/akita/v4/sim"

	"github.com/planvtech/cva6-axi-dma/desc"
	"github.com/planvtech/cva6-axi-dma/faulting"
)

// A Builder can build descriptor walkers.
type Builder struct {
	engine       sim.Engine
	freq         sim.Freq
	addrMapper   mem.AddressToPortMapper
	engineDst    sim.RemotePort
	faults       *faulting.Handler
	widthBytes   uint64
	nSpeculation int
	maxChainLen  int
}

// MakeBuilder returns a Builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		freq:         1 * sim.GHz,
		widthBytes:   8,
		nSpeculation: 2,
		maxChainLen:  1024,
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

// WithAddressMapper sets the mapper that locates the memory holding the
// descriptor records.
func (b Builder) WithAddressMapper(m mem.AddressToPortMapper) Builder {
	b.addrMapper = m
	return b
}

// WithEngineDst sets the transfer engine port that receives the walker's
// transfer requests.
func (b Builder) WithEngineDst(dst sim.RemotePort) Builder {
	b.engineDst = dst
	return b
}

// WithFaultHandler sets the shared fault handler.
func (b Builder) WithFaultHandler(h *faulting.Handler) Builder {
	b.faults = h
	return b
}

// WithBusWidthBytes sets the descriptor-fetch access width.
func (b Builder) WithBusWidthBytes(w uint64) Builder {
	b.widthBytes = w
	return b
}

// WithNSpeculation sets how many descriptors may be fetched ahead of the
// engine accepting the previous transfer.
func (b Builder) WithNSpeculation(n int) Builder {
	b.nSpeculation = n
	return b
}

// WithMaxChainLen bounds traversal so that a corrupted or cyclic chain
// faults instead of walking forever.
func (b Builder) WithMaxChainLen(n int) Builder {
	b.maxChainLen = n
	return b
}

// Build creates a walker component.
func (b Builder) Build(name string) *Comp {
	b.parametersMustBeValid()

	c := &Comp{
		addrMapper:   b.addrMapper,
		engineDst:    b.engineDst,
		faults:       b.faults,
		widthBytes:   b.widthBytes,
		nSpeculation: b.nSpeculation,
		maxChainLen:  b.maxChainLen,
	}
	c.TickingComponent = sim.NewTickingComponent(name, b.engine, b.freq, c)

	c.CtrlPort = sim.NewPort(c, 4, 4, name+".CtrlPort")
	c.MemPort = sim.NewPort(c, 16, 16, name+".MemPort")
	c.OutPort = sim.NewPort(c, 4, 4, name+".OutPort")

	return c
}

func (b Builder) parametersMustBeValid() {
	if b.engine == nil {
		panic("walker requires an engine")
	}

	if b.addrMapper == nil {
		panic("walker requires an address mapper")
	}

	if b.faults == nil {
		panic("walker requires a fault handler")
	}

	if b.widthBytes == 0 || desc.RecordBytes%b.widthBytes != 0 {
		log.Panicf("descriptor record size %d is not a multiple of the "+
			"bus width %d", desc.RecordBytes, b.widthBytes)
	}

	if b.nSpeculation < 1 {
		panic("walker requires a speculation depth of at least 1")
	}

	if b.maxChainLen < 1 {
		panic("walker requires a positive chain length bound")
	}
}
