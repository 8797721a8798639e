// Package ctrl implements the register target of the DMA engine. It decodes
// the two-register programming interface, queues chain submissions, dispatches
// them to the descriptor walker one at a time, aggregates the busy state of
// the datapath, and raises interrupts on chain completion.
//
// Register map (offsets from the configured base address):
//
//	0x0  desc_addr  8B, write-only. Writing the address of the first
//	                descriptor record submits a chain. Writes while the
//	                submission queue is full are dropped.
//	0x8  status     8B, read-only. Bit 0: busy. Bit 1: fifo_full.
//	                Bit 2: error pending. Bits 15:8: error kind.
//	                Reading drains the pending error record, if any.
package ctrl

import (
	"encoding/binary"
	"log"
	"reflect"

	"github.com/sarchlab/akita/v4/mem/mem"
	"github.com/sarchlab/akita/v4/sim"
	"github.com/sarchlab/akita/v4/tracing"

	"github.com/planvtech/cva6-axi-dma/faulting"
	"github.com/planvtech/cva6-axi-dma/protocol"
)

const (
	descAddrOffset = 0x0
	statusOffset   = 0x8
	regBytes       = 8
)

// Status word bits.
const (
	StatusBusy         = 1 << 0
	StatusFifoFull     = 1 << 1
	StatusErrorPending = 1 << 2
	StatusKindShift    = 8
)

// Comp is the register target. TopPort is the bus slave that the host
// programs, DMAPort talks to the descriptor walker, and IntPort carries
// interrupt messages.
type Comp struct {
	*sim.TickingComponent

	TopPort sim.Port
	DMAPort sim.Port
	IntPort sim.Port

	baseAddr   uint64
	queueDepth int
	walkerDst  sim.RemotePort
	intDst     sim.RemotePort
	faults     *faulting.Handler
	datapath   *Aggregator

	queue      []uint64
	active     *protocol.StartChainReq
	pendingIrq *protocol.IrqMsg
}

// SetInterruptTarget sets the remote port that receives IrqMsgs. Without a
// target, completions are silent.
func (c *Comp) SetInterruptTarget(dst sim.RemotePort) {
	c.intDst = dst
}

// Busy reports whether the device as a whole has work in flight.
func (c *Comp) Busy() bool {
	return c.active != nil || len(c.queue) > 0 || c.datapath.Busy()
}

// Tick advances the controller, downstream first.
func (c *Comp) Tick() bool {
	madeProgress := false

	madeProgress = c.sendIrq() || madeProgress
	madeProgress = c.collectChainDone() || madeProgress
	madeProgress = c.dispatchChain() || madeProgress
	madeProgress = c.handleRegAccess() || madeProgress

	return madeProgress
}

func (c *Comp) handleRegAccess() bool {
	msg := c.TopPort.PeekIncoming()
	if msg == nil {
		return false
	}

	switch req := msg.(type) {
	case *mem.WriteReq:
		return c.handleRegWrite(req)
	case *mem.ReadReq:
		return c.handleRegRead(req)
	default:
		log.Panicf("can't process request of type %s", reflect.TypeOf(msg))
	}

	return false
}

func (c *Comp) handleRegWrite(req *mem.WriteReq) bool {
	if req.Address != c.baseAddr+descAddrOffset || len(req.Data) != regBytes {
		return c.respondRegFault(req.Meta().ID, req.Src, req.Address)
	}

	rsp := mem.WriteDoneRspBuilder{}.
		WithSrc(c.TopPort.AsRemote()).
		WithDst(req.Src).
		WithRspTo(req.Meta().ID).
		Build()

	if err := c.TopPort.Send(rsp); err != nil {
		return false
	}

	// A write into a full queue is dropped; fifo_full was already readable.
	if len(c.queue) < c.queueDepth {
		c.queue = append(c.queue, binary.LittleEndian.Uint64(req.Data))
	}

	c.TopPort.RetrieveIncoming()
	tracing.TraceReqReceive(req, c)
	tracing.TraceReqComplete(req, c)

	return true
}

func (c *Comp) handleRegRead(req *mem.ReadReq) bool {
	if req.Address != c.baseAddr+statusOffset ||
		req.AccessByteSize != regBytes {
		return c.respondRegFault(req.Meta().ID, req.Src, req.Address)
	}

	data := make([]byte, regBytes)
	binary.LittleEndian.PutUint64(data, c.statusWord())

	rsp := mem.DataReadyRspBuilder{}.
		WithSrc(c.TopPort.AsRemote()).
		WithDst(req.Src).
		WithRspTo(req.Meta().ID).
		WithData(data).
		Build()

	if err := c.TopPort.Send(rsp); err != nil {
		return false
	}

	// Reading the status register acknowledges the pending error record and
	// lifts a halt.
	c.faults.Drain()

	c.TopPort.RetrieveIncoming()
	tracing.TraceReqReceive(req, c)
	tracing.TraceReqComplete(req, c)

	return true
}

func (c *Comp) respondRegFault(
	rspTo string,
	dst sim.RemotePort,
	addr uint64,
) bool {
	rsp := protocol.BusFaultRspBuilder{}.
		WithSrc(c.TopPort.AsRemote()).
		WithDst(dst).
		WithRspTo(rspTo).
		WithAddr(addr).
		Build()

	if err := c.TopPort.Send(rsp); err != nil {
		return false
	}

	c.TopPort.RetrieveIncoming()

	return true
}

func (c *Comp) statusWord() uint64 {
	var w uint64

	if c.Busy() {
		w |= StatusBusy
	}

	if len(c.queue) >= c.queueDepth {
		w |= StatusFifoFull
	}

	if rec := c.faults.Pending(); rec != nil {
		w |= StatusErrorPending
		w |= uint64(rec.Kind) << StatusKindShift
	}

	return w
}

func (c *Comp) dispatchChain() bool {
	if c.active != nil || len(c.queue) == 0 {
		return false
	}

	if c.datapath.Busy() {
		return false
	}

	req := protocol.StartChainReqBuilder{}.
		WithSrc(c.DMAPort.AsRemote()).
		WithDst(c.walkerDst).
		WithDescAddr(c.queue[0]).
		Build()

	if err := c.DMAPort.Send(req); err != nil {
		return false
	}

	c.queue = c.queue[1:]
	c.active = req
	tracing.TraceReqInitiate(req, c, req.ID)

	return true
}

func (c *Comp) collectChainDone() bool {
	msg := c.DMAPort.PeekIncoming()
	if msg == nil {
		return false
	}

	rsp, ok := msg.(*protocol.ChainDoneRsp)
	if !ok {
		log.Panicf("can't process response of type %s", reflect.TypeOf(msg))
	}

	if c.active == nil || rsp.RespondTo != c.active.ID {
		log.Panicf("chain completion %s does not match the active chain",
			rsp.RespondTo)
	}

	tracing.TraceReqFinalize(c.active, c)
	c.active = nil
	c.DMAPort.RetrieveIncoming()

	if c.intDst == "" || (rsp.SuppressIrq && rsp.Fault == nil) {
		return true
	}

	b := protocol.IrqMsgBuilder{}.
		WithSrc(c.IntPort.AsRemote()).
		WithDst(c.intDst)
	if rsp.Fault == nil {
		b = b.WithCompleted()
	} else {
		b = b.WithFault(rsp.Fault)
	}
	c.pendingIrq = b.Build()

	return true
}

func (c *Comp) sendIrq() bool {
	if c.pendingIrq == nil {
		return false
	}

	if err := c.IntPort.Send(c.pendingIrq); err != nil {
		return false
	}

	c.pendingIrq = nil

	return true
}
