// Package mover implements the transfer engine. It accepts normalized
// transfer requests from the descriptor walker, legalizes them into bursts,
// gates reads against outstanding overlapping writes, reassembles
// out-of-order read completions, and generates the matching write bursts,
// all within a bounded number of in-flight bus transactions.
package mover

import (
	"log"
	"reflect"

	"github.com/sarchlab/akita/v4/mem/mem"
	"github.com/sarchlab/akita/v4/sim"
	"github.com/sarchlab/akita/v4/tracing"

	"github.com/planvtech/cva6-axi-dma/burst"
	"github.com/planvtech/cva6-axi-dma/faulting"
	"github.com/planvtech/cva6-axi-dma/hazard"
	"github.com/planvtech/cva6-axi-dma/protocol"
	"github.com/planvtech/cva6-axi-dma/reorder"
)

type axKind int

const (
	axRead axKind = iota
	axWrite
)

// An axRef tracks one outstanding bus transaction.
type axRef struct {
	kind   axKind
	trans  *transferState
	req    sim.Msg
	ticket uint64
	burst  burst.Burst
}

// A releaseRef remembers, in read-issue order, which transfer the next
// released reorder slot belongs to.
type releaseRef struct {
	trans *transferState
	burst burst.Burst
}

// A transferState tracks one transfer from acceptance to its terminal
// outcome. staged holds released payload bytes that have not been written
// out yet.
type transferState struct {
	req         *protocol.TransferReq
	readBursts  []burst.Burst
	writeBursts []burst.Burst
	nextRead    int
	nextWrite   int
	writesDone  int
	pendingAx   int
	staged      []byte
	coupled     bool
	fault       *faulting.ErrorRecord
	aborted     bool
}

// Comp is the transfer engine. CtrlPort accepts transfer requests and
// delivers their terminal outcomes; MemPort is the single external bus
// master port shared by the read and write streams.
type Comp struct {
	*sim.TickingComponent

	CtrlPort sim.Port
	MemPort  sim.Port

	addrMapper       mem.AddressToPortMapper
	legalizer        burst.Legalizer
	legalize         bool
	rejectZeroLength bool
	coupler          *hazard.Coupler
	reorder          *reorder.Buffer
	faults           *faulting.Handler
	numAxInFlight    int

	join channelJoin

	transfers []*transferState
	inflight  map[string]*axRef
	releases  []releaseRef
}

// Busy reports whether any transfer, in-flight transaction, or unacknowledged
// halt state keeps the engine occupied.
func (c *Comp) Busy() bool {
	return len(c.transfers) > 0 || len(c.inflight) > 0 || c.faults.Halted()
}

// Tick advances the pipeline stages, downstream first.
func (c *Comp) Tick() bool {
	madeProgress := false

	madeProgress = c.respondCompleted() || madeProgress
	madeProgress = c.collectBusRsps() || madeProgress
	madeProgress = c.releasePayload() || madeProgress
	madeProgress = c.issueBursts() || madeProgress
	madeProgress = c.acceptTransfer() || madeProgress

	return madeProgress
}

func (c *Comp) acceptTransfer() bool {
	msg := c.CtrlPort.PeekIncoming()
	if msg == nil {
		return false
	}

	req, ok := msg.(*protocol.TransferReq)
	if !ok {
		log.Panicf("can't process request of type %s", reflect.TypeOf(msg))
	}

	t := &transferState{req: req}

	switch {
	case c.faults.Halted():
		t.aborted = true
	case req.NumBytes == 0:
		if c.rejectZeroLength {
			c.reportFault(t, faulting.ErrorRecord{
				TransferID: req.ID,
				Seq:        req.Seq,
				Kind:       faulting.FaultZeroLength,
				Addr:       req.SrcAddr,
			})
		}
		// Otherwise the transfer has no bursts and retires as a no-op.
	case c.legalize:
		t.readBursts = c.legalizer.Split(req.SrcAddr, req.NumBytes)
		t.writeBursts = c.legalizer.Split(req.DstAddr, req.NumBytes)
	default:
		c.adoptPreLegalized(t)
	}

	// The whole destination range is tracked up front so that younger reads
	// cannot slip past writes that have not issued yet.
	if !t.aborted && req.NumBytes > 0 {
		c.coupler.TrackWrite(req.ID, req.Seq, hazard.AddrRange{
			Base:     req.DstAddr,
			NumBytes: req.NumBytes,
		})
		t.coupled = true
	}

	c.transfers = append(c.transfers, t)
	c.CtrlPort.RetrieveIncoming()
	tracing.TraceReqReceive(req, c)

	return true
}

// adoptPreLegalized handles the legalization-disabled mode: the request must
// already be conformant; violations fault instead of being corrected.
func (c *Comp) adoptPreLegalized(t *transferState) {
	req := t.req

	if addr, ok := c.legalizer.Verify(req.SrcAddr, req.NumBytes); !ok {
		c.legalizationFault(t, addr)
		return
	}

	if addr, ok := c.legalizer.Verify(req.DstAddr, req.NumBytes); !ok {
		c.legalizationFault(t, addr)
		return
	}

	t.readBursts = c.legalizer.Chop(req.SrcAddr, req.NumBytes)
	t.writeBursts = c.legalizer.Chop(req.DstAddr, req.NumBytes)
}

func (c *Comp) legalizationFault(t *transferState, addr uint64) {
	c.reportFault(t, faulting.ErrorRecord{
		TransferID: t.req.ID,
		Seq:        t.req.Seq,
		Kind:       faulting.FaultLegalization,
		Addr:       addr,
	})
}

// reportFault records a classified fault against a transfer and, when the
// policy calls for it, halts the engine and aborts every younger transfer.
func (c *Comp) reportFault(t *transferState, rec faulting.ErrorRecord) {
	if t.fault == nil {
		t.fault = &rec
	}
	t.aborted = true

	c.faults.Report(rec)
	if t.req.HaltOnError {
		c.faults.ForceHalt()
	}

	if !c.faults.Halted() {
		return
	}

	for _, o := range c.transfers {
		if o.req.Seq > t.req.Seq && o.fault == nil {
			o.aborted = true
		}
	}
}

func (c *Comp) issueBursts() bool {
	madeProgress := false

	readT := c.nextReadTransfer()
	writeT := c.nextWriteTransfer()

	if c.join.readFirst(readT != nil, writeT != nil) {
		madeProgress = c.tryIssueRead(readT) || madeProgress
		madeProgress = c.tryIssueWrite(writeT) || madeProgress
	} else {
		madeProgress = c.tryIssueWrite(writeT) || madeProgress
		madeProgress = c.tryIssueRead(readT) || madeProgress
	}

	return madeProgress
}

// nextReadTransfer returns the oldest transfer with an unissued read burst.
// Reads issue strictly in that order; a held read blocks the ones behind it
// so that reorder slots are always claimed in issue order.
func (c *Comp) nextReadTransfer() *transferState {
	for _, t := range c.transfers {
		if t.aborted {
			continue
		}

		if t.nextRead < len(t.readBursts) {
			return t
		}
	}

	return nil
}

func (c *Comp) nextWriteTransfer() *transferState {
	for _, t := range c.transfers {
		if t.aborted {
			continue
		}

		if t.nextWrite < len(t.writeBursts) {
			return t
		}
	}

	return nil
}

func (c *Comp) tryIssueRead(t *transferState) bool {
	if t == nil {
		return false
	}

	if len(c.inflight) >= c.numAxInFlight || c.reorder.Full() {
		return false
	}

	b := t.readBursts[t.nextRead]
	r := hazard.AddrRange{Base: b.Lo(), NumBytes: b.OwnedBytes}
	if c.coupler.Blocked(r, t.req.Seq) {
		return false
	}

	req := mem.ReadReqBuilder{}.
		WithAddress(b.Addr).
		WithByteSize(b.NumBytes).
		WithSrc(c.MemPort.AsRemote()).
		WithDst(c.addrMapper.Find(b.Addr)).
		WithPID(0).
		Build()

	if err := c.MemPort.Send(req); err != nil {
		return false
	}

	ticket, ok := c.reorder.Allocate()
	if !ok {
		panic("reorder slot vanished between check and allocation")
	}

	c.inflight[req.ID] = &axRef{
		kind:   axRead,
		trans:  t,
		req:    req,
		ticket: ticket,
		burst:  b,
	}
	c.releases = append(c.releases, releaseRef{trans: t, burst: b})
	t.nextRead++
	t.pendingAx++
	c.join.granted(axRead)

	tracing.TraceReqInitiate(req, c, tracing.MsgIDAtReceiver(t.req, c))

	return true
}

func (c *Comp) tryIssueWrite(t *transferState) bool {
	if t == nil {
		return false
	}

	if len(c.inflight) >= c.numAxInFlight {
		return false
	}

	b := t.writeBursts[t.nextWrite]
	if uint64(len(t.staged)) < b.OwnedBytes {
		return false
	}

	data := make([]byte, b.NumBytes)
	copy(data[b.FirstOffset:], t.staged[:b.OwnedBytes])

	req := mem.WriteReqBuilder{}.
		WithAddress(b.Addr).
		WithData(data).
		WithDirtyMask(b.Strobe()).
		WithSrc(c.MemPort.AsRemote()).
		WithDst(c.addrMapper.Find(b.Addr)).
		WithPID(0).
		Build()

	if err := c.MemPort.Send(req); err != nil {
		return false
	}

	t.staged = t.staged[b.OwnedBytes:]
	c.inflight[req.ID] = &axRef{
		kind:  axWrite,
		trans: t,
		req:   req,
		burst: b,
	}
	t.nextWrite++
	t.pendingAx++
	c.join.granted(axWrite)

	tracing.TraceReqInitiate(req, c, tracing.MsgIDAtReceiver(t.req, c))

	return true
}

func (c *Comp) collectBusRsps() bool {
	msg := c.MemPort.PeekIncoming()
	if msg == nil {
		return false
	}

	switch rsp := msg.(type) {
	case *mem.DataReadyRsp:
		c.collectReadData(rsp)
	case *mem.WriteDoneRsp:
		c.collectWriteDone(rsp)
	case *protocol.BusFaultRsp:
		c.collectBusFault(rsp)
	default:
		log.Panicf("can't process response of type %s", reflect.TypeOf(msg))
	}

	c.MemPort.RetrieveIncoming()

	return true
}

func (c *Comp) takeInflight(rspTo string) *axRef {
	ref, found := c.inflight[rspTo]
	if !found {
		log.Panicf("can't find in-flight transaction for response %s", rspTo)
	}

	delete(c.inflight, rspTo)
	ref.trans.pendingAx--
	tracing.TraceReqFinalize(ref.req, c)

	return ref
}

func (c *Comp) collectReadData(rsp *mem.DataReadyRsp) {
	ref := c.takeInflight(rsp.RespondTo)
	c.reorder.Complete(ref.ticket, rsp.Data)
}

func (c *Comp) collectWriteDone(rsp *mem.WriteDoneRsp) {
	ref := c.takeInflight(rsp.RespondTo)
	ref.trans.writesDone++
}

func (c *Comp) collectBusFault(rsp *protocol.BusFaultRsp) {
	ref := c.takeInflight(rsp.RespondTo)

	if ref.kind == axRead {
		// Fill the claimed slot so in-order release never wedges.
		c.reorder.Complete(ref.ticket, make([]byte, ref.burst.NumBytes))
	}

	c.reportFault(ref.trans, faulting.ErrorRecord{
		TransferID: ref.trans.req.ID,
		Seq:        ref.trans.req.Seq,
		Kind:       faulting.FaultBusError,
		Addr:       rsp.Addr,
	})
}

// releasePayload moves the oldest completed read payload from the reorder
// buffer into its transfer's staging bytes. Payload of an aborted transfer
// is discarded, but the slot is always released in order.
func (c *Comp) releasePayload() bool {
	data, ok := c.reorder.Peek()
	if !ok {
		return false
	}

	ref := c.releases[0]
	c.releases = c.releases[1:]
	c.reorder.Release()

	if !ref.trans.aborted {
		b := ref.burst
		ref.trans.staged = append(ref.trans.staged,
			data[b.FirstOffset:b.FirstOffset+b.OwnedBytes]...)
	}

	return true
}

// respondCompleted retires the oldest transfer once it reaches its terminal
// outcome. Responses leave in issue order only.
func (c *Comp) respondCompleted() bool {
	if len(c.transfers) == 0 {
		return false
	}

	t := c.transfers[0]

	if t.aborted {
		if t.pendingAx > 0 {
			return false
		}
	} else if t.writesDone < len(t.writeBursts) {
		return false
	}

	b := protocol.TransferRspBuilder{}.
		WithSrc(c.CtrlPort.AsRemote()).
		WithDst(t.req.Src).
		WithRspTo(t.req.ID).
		WithSeq(t.req.Seq)

	if t.fault != nil && c.faults.Capability() != faulting.CapNone {
		b = b.WithFault(t.fault)
	}
	if t.fault != nil && c.faults.Halted() {
		b = b.WithHalted()
	}
	if t.aborted && t.fault == nil {
		b = b.WithAborted()
	}

	rsp := b.Build()
	if err := c.CtrlPort.Send(rsp); err != nil {
		return false
	}

	if t.coupled {
		c.coupler.WriteRetired(t.req.ID)
	}

	c.transfers = c.transfers[1:]
	tracing.TraceReqComplete(t.req, c)

	return true
}
