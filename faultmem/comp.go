// Package faultmem provides a storage-backed memory controller that reports
// bus faults for accesses falling inside configured fault windows. The
// response latency varies with the accessed address, so back-to-back reads
// complete out of order. It exists to exercise error paths and reordering
// logic that an ideal memory controller never triggers.
package faultmem

import (
	"log"
	"reflect"

	"github.com/sarchlab/akita/v4/mem/mem"
	"github.com/sarchlab/akita/v4/sim"
	"github.com/sarchlab/akita/v4/tracing"

	"github.com/planvtech/cva6-axi-dma/protocol"
)

// A Window is a half-open address range [Base, Base+NumBytes) whose accesses
// fault.
type Window struct {
	Base     uint64
	NumBytes uint64
}

func (w Window) contains(addr, n uint64) bool {
	if n == 0 {
		return false
	}

	return addr < w.Base+w.NumBytes && w.Base < addr+n
}

type pendingAccess struct {
	req sim.Msg
	due uint64
}

// Comp is the fault-injecting memory controller.
type Comp struct {
	*sim.TickingComponent

	TopPort sim.Port

	Storage *mem.Storage

	baseLatency   uint64
	jitterSpan    uint64
	widthBytes    uint64
	faultWindows  []Window
	faultOnWrites bool

	now     uint64
	pending []pendingAccess
}

// Tick accepts new requests and answers the ones whose latency elapsed.
func (c *Comp) Tick() bool {
	c.now++

	madeProgress := false

	madeProgress = c.respond() || madeProgress
	madeProgress = c.accept() || madeProgress

	return madeProgress || len(c.pending) > 0
}

func (c *Comp) accept() bool {
	msg := c.TopPort.RetrieveIncoming()
	if msg == nil {
		return false
	}

	switch msg.(type) {
	case *mem.ReadReq, *mem.WriteReq:
	default:
		log.Panicf("cannot handle request of type %s", reflect.TypeOf(msg))
	}

	c.pending = append(c.pending, pendingAccess{
		req: msg,
		due: c.now + c.latencyFor(msg),
	})
	tracing.TraceReqReceive(msg, c)

	return true
}

// latencyFor staggers completion by address so that consecutive reads return
// out of order.
func (c *Comp) latencyFor(msg sim.Msg) uint64 {
	var addr uint64
	switch req := msg.(type) {
	case *mem.ReadReq:
		addr = req.Address
	case *mem.WriteReq:
		addr = req.Address
	}

	if c.jitterSpan == 0 {
		return c.baseLatency
	}

	word := addr / c.widthBytes

	return c.baseLatency + c.jitterSpan - word%c.jitterSpan
}

func (c *Comp) respond() bool {
	madeProgress := false

	for i := 0; i < len(c.pending); i++ {
		p := c.pending[i]
		if p.due > c.now {
			continue
		}

		if !c.answer(p.req) {
			break
		}

		c.pending = append(c.pending[:i], c.pending[i+1:]...)
		i--
		madeProgress = true
	}

	return madeProgress
}

func (c *Comp) answer(msg sim.Msg) bool {
	switch req := msg.(type) {
	case *mem.ReadReq:
		return c.answerRead(req)
	case *mem.WriteReq:
		return c.answerWrite(req)
	}

	return false
}

func (c *Comp) faults(addr, n uint64, isWrite bool) bool {
	if isWrite && !c.faultOnWrites {
		return false
	}

	for _, w := range c.faultWindows {
		if w.contains(addr, n) {
			return true
		}
	}

	return false
}

func (c *Comp) answerRead(req *mem.ReadReq) bool {
	if c.faults(req.Address, req.AccessByteSize, false) {
		return c.answerFault(req.Meta().ID, req.Src, req.Address)
	}

	data, err := c.Storage.Read(req.Address, req.AccessByteSize)
	if err != nil {
		log.Panic(err)
	}

	rsp := mem.DataReadyRspBuilder{}.
		WithSrc(c.TopPort.AsRemote()).
		WithDst(req.Src).
		WithRspTo(req.ID).
		WithData(data).
		Build()

	if sendErr := c.TopPort.Send(rsp); sendErr != nil {
		return false
	}

	tracing.TraceReqComplete(req, c)

	return true
}

func (c *Comp) answerWrite(req *mem.WriteReq) bool {
	if c.faults(req.Address, uint64(len(req.Data)), true) {
		return c.answerFault(req.Meta().ID, req.Src, req.Address)
	}

	rsp := mem.WriteDoneRspBuilder{}.
		WithSrc(c.TopPort.AsRemote()).
		WithDst(req.Src).
		WithRspTo(req.ID).
		Build()

	if sendErr := c.TopPort.Send(rsp); sendErr != nil {
		return false
	}

	c.commitWrite(req)
	tracing.TraceReqComplete(req, c)

	return true
}

func (c *Comp) commitWrite(req *mem.WriteReq) {
	if req.DirtyMask == nil {
		if err := c.Storage.Write(req.Address, req.Data); err != nil {
			log.Panic(err)
		}
		return
	}

	data, err := c.Storage.Read(req.Address, uint64(len(req.Data)))
	if err != nil {
		log.Panic(err)
	}

	for i := range req.Data {
		if req.DirtyMask[i] {
			data[i] = req.Data[i]
		}
	}

	if err := c.Storage.Write(req.Address, data); err != nil {
		log.Panic(err)
	}
}

func (c *Comp) answerFault(rspTo string, dst sim.RemotePort, addr uint64) bool {
	rsp := protocol.BusFaultRspBuilder{}.
		WithSrc(c.TopPort.AsRemote()).
		WithDst(dst).
		WithRspTo(rspTo).
		WithAddr(addr).
		Build()

	return c.TopPort.Send(rsp) == nil
}
