// Package walker implements the descriptor walker: it fetches descriptor
// records from memory, decodes them, and emits normalized transfer requests
// to the transfer engine in chain order.
package walker

import (
	"log"
	"reflect"

	"github.com/sarchlab/akita/v4/mem/mem"
	"github.com/sarchlab/akita/v4/sim"
	"github.com/sarchlab/akita/v4/tracing"

	"github.com/planvtech/cva6-axi-dma/desc"
	"github.com/planvtech/cva6-axi-dma/faulting"
	"github.com/planvtech/cva6-axi-dma/protocol"
)

// A recordFetch tracks one descriptor record whose beats may still be in
// flight. The fetches of a chain, kept in chain order, form the ordering
// buffer that turns out-of-order beat completions back into ordered records.
type recordFetch struct {
	addr      uint64
	buf       []byte
	nextBeat  uint64
	remaining int
	record    *desc.Record
}

type beatRef struct {
	fetch *recordFetch
	req   *mem.ReadReq
}

type chainState struct {
	req          *protocol.StartChainReq
	nextDescAddr uint64
	fetchReady   bool
	endSeen      bool
	halt         bool
	suppressIrq  bool
	fault        *faulting.ErrorRecord

	visited int
	fetches []*recordFetch
	tail    *recordFetch
	pending map[string]*beatRef

	out       *protocol.TransferReq
	delivered int
	accepted  int
	retired   int
}

// Comp walks descriptor chains. CtrlPort accepts StartChainReqs and delivers
// the ChainDoneRsp; MemPort is the read master dedicated to descriptor
// fetch; OutPort carries transfer requests to the engine.
type Comp struct {
	*sim.TickingComponent

	CtrlPort sim.Port
	MemPort  sim.Port
	OutPort  sim.Port

	addrMapper   mem.AddressToPortMapper
	engineDst    sim.RemotePort
	faults       *faulting.Handler
	widthBytes   uint64
	nSpeculation int
	maxChainLen  int

	chain *chainState
}

// Busy reports whether a chain is being processed.
func (c *Comp) Busy() bool {
	return c.chain != nil
}

// Tick walks the pipeline stages, downstream first.
func (c *Comp) Tick() bool {
	madeProgress := false

	madeProgress = c.completeChain() || madeProgress
	madeProgress = c.collectTransferRsps() || madeProgress
	madeProgress = c.deliverTransfer() || madeProgress
	madeProgress = c.collectFetches() || madeProgress
	madeProgress = c.issueFetch() || madeProgress
	madeProgress = c.acceptChain() || madeProgress

	return madeProgress
}

func (c *Comp) acceptChain() bool {
	if c.chain != nil {
		return false
	}

	msg := c.CtrlPort.PeekIncoming()
	if msg == nil {
		return false
	}

	req, ok := msg.(*protocol.StartChainReq)
	if !ok {
		log.Panicf("can't process request of type %s", reflect.TypeOf(msg))
	}

	c.chain = &chainState{
		req:          req,
		nextDescAddr: req.DescAddr,
		fetchReady:   req.DescAddr != desc.NextSentinel,
		endSeen:      req.DescAddr == desc.NextSentinel,
		pending:      make(map[string]*beatRef),
	}

	c.CtrlPort.RetrieveIncoming()
	tracing.TraceReqReceive(req, c)

	return true
}

// issueFetch sends at most one descriptor-fetch beat per tick. It prefers
// finishing the beats of records already being fetched before opening the
// next record, and it never runs more than nSpeculation records ahead of the
// engine accepting the previous transfer.
func (c *Comp) issueFetch() bool {
	chain := c.chain
	if chain == nil || chain.halt {
		return false
	}

	for _, f := range chain.fetches {
		if f.nextBeat < desc.RecordBytes {
			return c.issueBeat(f)
		}
	}

	if !chain.fetchReady || chain.endSeen {
		return false
	}

	if chain.visited-chain.accepted >= c.nSpeculation {
		return false
	}

	if chain.visited >= c.maxChainLen {
		c.chainFault(faulting.ErrorRecord{
			TransferID: chain.req.ID,
			Seq:        chain.visited,
			Kind:       faulting.FaultChainTooLong,
			Addr:       chain.nextDescAddr,
		})

		return true
	}

	f := &recordFetch{
		addr:      chain.nextDescAddr,
		buf:       make([]byte, desc.RecordBytes),
		remaining: int(desc.RecordBytes / c.widthBytes),
	}
	chain.fetches = append(chain.fetches, f)
	chain.tail = f
	chain.visited++
	chain.fetchReady = false

	return c.issueBeat(f)
}

func (c *Comp) issueBeat(f *recordFetch) bool {
	addr := f.addr + f.nextBeat

	req := mem.ReadReqBuilder{}.
		WithAddress(addr).
		WithByteSize(c.widthBytes).
		WithSrc(c.MemPort.AsRemote()).
		WithDst(c.addrMapper.Find(addr)).
		WithPID(0).
		Build()

	if err := c.MemPort.Send(req); err != nil {
		return false
	}

	c.chain.pending[req.ID] = &beatRef{fetch: f, req: req}
	f.nextBeat += c.widthBytes

	tracing.TraceReqInitiate(req, c,
		tracing.MsgIDAtReceiver(c.chain.req, c))

	return true
}

func (c *Comp) collectFetches() bool {
	chain := c.chain
	if chain == nil {
		return false
	}

	msg := c.MemPort.PeekIncoming()
	if msg == nil {
		return false
	}

	switch rsp := msg.(type) {
	case *mem.DataReadyRsp:
		c.collectBeat(rsp)
	case *protocol.BusFaultRsp:
		c.collectFetchFault(rsp)
	default:
		log.Panicf("can't process response of type %s", reflect.TypeOf(msg))
	}

	c.MemPort.RetrieveIncoming()

	return true
}

func (c *Comp) collectBeat(rsp *mem.DataReadyRsp) {
	chain := c.chain

	ref, found := chain.pending[rsp.RespondTo]
	if !found {
		log.Panicf("can't find descriptor fetch for response %s",
			rsp.RespondTo)
	}

	f := ref.fetch
	copy(f.buf[ref.req.Address-f.addr:], rsp.Data)
	f.remaining--
	delete(chain.pending, rsp.RespondTo)

	tracing.TraceReqFinalize(ref.req, c)

	if f.remaining > 0 {
		return
	}

	rec := desc.Decode(f.buf)
	f.record = &rec

	if f != chain.tail {
		return
	}

	if rec.Last() {
		chain.endSeen = true
		chain.suppressIrq = rec.Flags&desc.FlagSuppressIrq != 0
	} else {
		chain.nextDescAddr = rec.NextAddr
		chain.fetchReady = true
	}
}

func (c *Comp) collectFetchFault(rsp *protocol.BusFaultRsp) {
	chain := c.chain

	ref, found := chain.pending[rsp.RespondTo]
	if !found {
		log.Panicf("can't find descriptor fetch for response %s",
			rsp.RespondTo)
	}

	delete(chain.pending, rsp.RespondTo)
	tracing.TraceReqFinalize(ref.req, c)

	c.chainFault(faulting.ErrorRecord{
		TransferID: chain.req.ID,
		Seq:        chain.visited - 1,
		Kind:       faulting.FaultBusError,
		Addr:       rsp.Addr,
	})
}

// chainFault stops traversal. Transfers already handed to the engine still
// retire; nothing further is fetched or delivered.
func (c *Comp) chainFault(rec faulting.ErrorRecord) {
	chain := c.chain

	c.faults.Report(rec)

	if chain.fault == nil {
		chain.fault = &rec
	}

	chain.endSeen = true
	chain.halt = true
	chain.fetchReady = false
}

// deliverTransfer holds one request on the engine interface until the engine
// accepts it, then moves on to the next assembled record.
func (c *Comp) deliverTransfer() bool {
	chain := c.chain
	if chain == nil {
		return false
	}

	if chain.out != nil {
		if err := c.OutPort.Send(chain.out); err != nil {
			return false
		}

		chain.out = nil
		chain.accepted++

		return true
	}

	if chain.halt || len(chain.fetches) == 0 {
		return false
	}

	front := chain.fetches[0]
	if front.record == nil {
		return false
	}

	rec := *front.record
	chain.fetches = chain.fetches[1:]

	b := protocol.TransferReqBuilder{}.
		WithSrc(c.OutPort.AsRemote()).
		WithDst(c.engineDst).
		WithSeq(chain.delivered).
		WithSrcAddr(rec.SrcAddr).
		WithDstAddr(rec.DstAddr).
		WithNumBytes(uint64(rec.Length))
	if rec.Last() {
		b = b.WithLast()
	}
	if rec.Flags&desc.FlagHaltOnError != 0 {
		b = b.WithHaltOnError()
	}

	chain.out = b.Build()
	chain.delivered++

	if err := c.OutPort.Send(chain.out); err == nil {
		chain.out = nil
		chain.accepted++
	}

	return true
}

func (c *Comp) collectTransferRsps() bool {
	chain := c.chain
	if chain == nil {
		return false
	}

	msg := c.OutPort.PeekIncoming()
	if msg == nil {
		return false
	}

	rsp, ok := msg.(*protocol.TransferRsp)
	if !ok {
		log.Panicf("can't process response of type %s", reflect.TypeOf(msg))
	}

	chain.retired++

	if rsp.Fault != nil && chain.fault == nil {
		chain.fault = rsp.Fault
	}

	if rsp.Halted || rsp.Aborted {
		chain.halt = true
		chain.endSeen = true
		chain.fetchReady = false
	}

	c.OutPort.RetrieveIncoming()

	return true
}

func (c *Comp) completeChain() bool {
	chain := c.chain
	if chain == nil || !chain.endSeen {
		return false
	}

	if chain.out != nil || len(chain.pending) > 0 {
		return false
	}

	if chain.retired != chain.delivered {
		return false
	}

	if !chain.halt && len(chain.fetches) > 0 {
		return false
	}

	b := protocol.ChainDoneRspBuilder{}.
		WithSrc(c.CtrlPort.AsRemote()).
		WithDst(chain.req.Src).
		WithRspTo(chain.req.ID).
		WithTransfers(chain.retired).
		WithFault(chain.fault)
	if chain.suppressIrq {
		b = b.WithSuppressIrq()
	}
	rsp := b.Build()

	if err := c.CtrlPort.Send(rsp); err != nil {
		return false
	}

	tracing.TraceReqComplete(chain.req, c)
	c.chain = nil

	return true
}
