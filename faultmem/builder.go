package faultmem

import (
	"github.com/sarchlab/akita/v4/mem/mem"
	"github.com/sarchlab/akita/v4/sim"
)

// A Builder can build fault-injecting memory controllers.
type Builder struct {
	engine        sim.Engine
	freq          sim.Freq
	capacity      uint64
	storage       *mem.Storage
	baseLatency   uint64
	jitterSpan    uint64
	widthBytes    uint64
	faultWindows  []Window
	faultOnWrites bool
}

// MakeBuilder returns a Builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		freq:        1 * sim.GHz,
		capacity:    1 * mem.MB,
		baseLatency: 4,
		widthBytes:  8,
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

// WithNewStorage creates a backing storage with the given capacity.
func (b Builder) WithNewStorage(capacity uint64) Builder {
	b.capacity = capacity
	b.storage = nil
	return b
}

// WithStorage shares an existing backing storage.
func (b Builder) WithStorage(s *mem.Storage) Builder {
	b.storage = s
	return b
}

// WithBaseLatency sets the minimum response latency in ticks.
func (b Builder) WithBaseLatency(n uint64) Builder {
	b.baseLatency = n
	return b
}

// WithJitterSpan adds an address-dependent latency component of up to n
// extra ticks. Zero disables jitter and responses come back in order.
func (b Builder) WithJitterSpan(n uint64) Builder {
	b.jitterSpan = n
	return b
}

// WithWidthBytes sets the word size used to derive the latency jitter.
func (b Builder) WithWidthBytes(n uint64) Builder {
	b.widthBytes = n
	return b
}

// WithFaultWindow adds an address range whose accesses fault.
func (b Builder) WithFaultWindow(base, numBytes uint64) Builder {
	b.faultWindows = append(b.faultWindows, Window{
		Base:     base,
		NumBytes: numBytes,
	})
	return b
}

// WithFaultOnWrites makes writes into fault windows fault too; by default
// only reads do.
func (b Builder) WithFaultOnWrites() Builder {
	b.faultOnWrites = true
	return b
}

// Build creates a fault-injecting memory controller.
func (b Builder) Build(name string) *Comp {
	if b.engine == nil {
		panic("faultmem requires an engine")
	}

	c := &Comp{
		baseLatency:   b.baseLatency,
		jitterSpan:    b.jitterSpan,
		widthBytes:    b.widthBytes,
		faultWindows:  b.faultWindows,
		faultOnWrites: b.faultOnWrites,
	}
	c.TickingComponent = sim.NewTickingComponent(name, b.engine, b.freq, c)

	c.Storage = b.storage
	if c.Storage == nil {
		c.Storage = mem.NewStorage(b.capacity)
	}

	c.TopPort = sim.NewPort(c, 16, 16, name+".TopPort")

	return c
}
