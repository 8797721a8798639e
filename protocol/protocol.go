// Package protocol defines the messages exchanged between the DMA engine's
// components: chain control between the register target and the descriptor
// walker, transfer requests between the walker and the transfer engine, and
// the fault response used by memory models that report bus errors.
package protocol

import (
	"reflect"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/planvtech/cva6-axi-dma/faulting"
)

// A StartChainReq asks the descriptor walker to process the chain that
// starts at DescAddr.
type StartChainReq struct {
	sim.MsgMeta

	DescAddr uint64
}

// Meta returns the metadata of the message.
func (r *StartChainReq) Meta() *sim.MsgMeta {
	return &r.MsgMeta
}

// Clone creates a copy of the StartChainReq with a new ID.
func (r *StartChainReq) Clone() sim.Msg {
	cloneMsg := *r
	cloneMsg.ID = sim.GetIDGenerator().Generate()

	return &cloneMsg
}

// StartChainReqBuilder can build StartChainReqs.
type StartChainReqBuilder struct {
	src, dst sim.RemotePort
	descAddr uint64
}

// WithSrc sets the source port of the message.
func (b StartChainReqBuilder) WithSrc(src sim.RemotePort) StartChainReqBuilder {
	b.src = src
	return b
}

// WithDst sets the destination port of the message. It should be the
// CtrlPort of the walker.
func (b StartChainReqBuilder) WithDst(dst sim.RemotePort) StartChainReqBuilder {
	b.dst = dst
	return b
}

// WithDescAddr sets the address of the first descriptor record.
func (b StartChainReqBuilder) WithDescAddr(addr uint64) StartChainReqBuilder {
	b.descAddr = addr
	return b
}

// Build creates a new StartChainReq.
func (b StartChainReqBuilder) Build() *StartChainReq {
	r := &StartChainReq{}
	r.ID = sim.GetIDGenerator().Generate()
	r.Src = b.src
	r.Dst = b.dst
	r.DescAddr = b.descAddr
	r.TrafficClass = reflect.TypeOf(StartChainReq{}).String()

	return r
}

// A ChainDoneRsp reports the terminal outcome of a chain: the number of
// transfers that retired and the fault that stopped or blemished the chain,
// if any.
type ChainDoneRsp struct {
	sim.MsgMeta

	RespondTo   string
	Transfers   int
	SuppressIrq bool
	Fault       *faulting.ErrorRecord
}

// Meta returns the metadata of the message.
func (r *ChainDoneRsp) Meta() *sim.MsgMeta {
	return &r.MsgMeta
}

// Clone creates a copy of the ChainDoneRsp with a new ID.
func (r *ChainDoneRsp) Clone() sim.Msg {
	cloneMsg := *r
	cloneMsg.ID = sim.GetIDGenerator().Generate()

	return &cloneMsg
}

// GetRspTo returns the ID of the StartChainReq this responds to.
func (r *ChainDoneRsp) GetRspTo() string {
	return r.RespondTo
}

// ChainDoneRspBuilder can build ChainDoneRsps.
type ChainDoneRspBuilder struct {
	src, dst    sim.RemotePort
	rspTo       string
	transfers   int
	suppressIrq bool
	fault       *faulting.ErrorRecord
}

// WithSrc sets the source port of the message.
func (b ChainDoneRspBuilder) WithSrc(src sim.RemotePort) ChainDoneRspBuilder {
	b.src = src
	return b
}

// WithDst sets the destination port of the message.
func (b ChainDoneRspBuilder) WithDst(dst sim.RemotePort) ChainDoneRspBuilder {
	b.dst = dst
	return b
}

// WithRspTo sets the ID of the StartChainReq being answered.
func (b ChainDoneRspBuilder) WithRspTo(id string) ChainDoneRspBuilder {
	b.rspTo = id
	return b
}

// WithTransfers sets the number of retired transfers.
func (b ChainDoneRspBuilder) WithTransfers(n int) ChainDoneRspBuilder {
	b.transfers = n
	return b
}

// WithSuppressIrq marks that the chain asked for no completion interrupt.
func (b ChainDoneRspBuilder) WithSuppressIrq() ChainDoneRspBuilder {
	b.suppressIrq = true
	return b
}

// WithFault attaches the fault that terminated the chain.
func (b ChainDoneRspBuilder) WithFault(
	f *faulting.ErrorRecord,
) ChainDoneRspBuilder {
	b.fault = f
	return b
}

// Build creates a new ChainDoneRsp.
func (b ChainDoneRspBuilder) Build() *ChainDoneRsp {
	r := &ChainDoneRsp{}
	r.ID = sim.GetIDGenerator().Generate()
	r.Src = b.src
	r.Dst = b.dst
	r.RespondTo = b.rspTo
	r.Transfers = b.transfers
	r.SuppressIrq = b.suppressIrq
	r.Fault = b.fault
	r.TrafficClass = reflect.TypeOf(ChainDoneRsp{}).String()

	return r
}

// A TransferReq carries one normalized copy operation from the walker to the
// transfer engine. The producer holds the request until the engine accepts
// it; acceptance transfers ownership exactly once.
type TransferReq struct {
	sim.MsgMeta

	Seq         int
	SrcAddr     uint64
	DstAddr     uint64
	NumBytes    uint64
	Last        bool
	HaltOnError bool
}

// Meta returns the metadata of the message.
func (r *TransferReq) Meta() *sim.MsgMeta {
	return &r.MsgMeta
}

// Clone creates a copy of the TransferReq with a new ID.
func (r *TransferReq) Clone() sim.Msg {
	cloneMsg := *r
	cloneMsg.ID = sim.GetIDGenerator().Generate()

	return &cloneMsg
}

// TransferReqBuilder can build TransferReqs.
type TransferReqBuilder struct {
	src, dst    sim.RemotePort
	seq         int
	srcAddr     uint64
	dstAddr     uint64
	numBytes    uint64
	last        bool
	haltOnError bool
}

// WithSrc sets the source port of the message.
func (b TransferReqBuilder) WithSrc(src sim.RemotePort) TransferReqBuilder {
	b.src = src
	return b
}

// WithDst sets the destination port of the message.
func (b TransferReqBuilder) WithDst(dst sim.RemotePort) TransferReqBuilder {
	b.dst = dst
	return b
}

// WithSeq sets the issue-order sequence number within the chain.
func (b TransferReqBuilder) WithSeq(seq int) TransferReqBuilder {
	b.seq = seq
	return b
}

// WithSrcAddr sets the source address of the copy.
func (b TransferReqBuilder) WithSrcAddr(addr uint64) TransferReqBuilder {
	b.srcAddr = addr
	return b
}

// WithDstAddr sets the destination address of the copy.
func (b TransferReqBuilder) WithDstAddr(addr uint64) TransferReqBuilder {
	b.dstAddr = addr
	return b
}

// WithNumBytes sets the number of bytes to copy.
func (b TransferReqBuilder) WithNumBytes(n uint64) TransferReqBuilder {
	b.numBytes = n
	return b
}

// WithLast marks the final transfer of a chain.
func (b TransferReqBuilder) WithLast() TransferReqBuilder {
	b.last = true
	return b
}

// WithHaltOnError sets the per-descriptor halt hint.
func (b TransferReqBuilder) WithHaltOnError() TransferReqBuilder {
	b.haltOnError = true
	return b
}

// Build creates a new TransferReq.
func (b TransferReqBuilder) Build() *TransferReq {
	r := &TransferReq{}
	r.ID = sim.GetIDGenerator().Generate()
	r.Src = b.src
	r.Dst = b.dst
	r.Seq = b.seq
	r.SrcAddr = b.srcAddr
	r.DstAddr = b.dstAddr
	r.NumBytes = b.numBytes
	r.Last = b.last
	r.HaltOnError = b.haltOnError
	r.TrafficClass = reflect.TypeOf(TransferReq{}).String()

	return r
}

// A TransferRsp is the terminal outcome of one TransferReq. A nil Fault with
// Aborted unset means success. Aborted transfers were discarded because the
// engine halted on an earlier fault.
type TransferRsp struct {
	sim.MsgMeta

	RespondTo string
	Seq       int
	Aborted   bool
	Halted    bool
	Fault     *faulting.ErrorRecord
}

// Meta returns the metadata of the message.
func (r *TransferRsp) Meta() *sim.MsgMeta {
	return &r.MsgMeta
}

// Clone creates a copy of the TransferRsp with a new ID.
func (r *TransferRsp) Clone() sim.Msg {
	cloneMsg := *r
	cloneMsg.ID = sim.GetIDGenerator().Generate()

	return &cloneMsg
}

// GetRspTo returns the ID of the TransferReq this responds to.
func (r *TransferRsp) GetRspTo() string {
	return r.RespondTo
}

// TransferRspBuilder can build TransferRsps.
type TransferRspBuilder struct {
	src, dst sim.RemotePort
	rspTo    string
	seq      int
	aborted  bool
	halted   bool
	fault    *faulting.ErrorRecord
}

// WithSrc sets the source port of the message.
func (b TransferRspBuilder) WithSrc(src sim.RemotePort) TransferRspBuilder {
	b.src = src
	return b
}

// WithDst sets the destination port of the message.
func (b TransferRspBuilder) WithDst(dst sim.RemotePort) TransferRspBuilder {
	b.dst = dst
	return b
}

// WithRspTo sets the ID of the TransferReq being answered.
func (b TransferRspBuilder) WithRspTo(id string) TransferRspBuilder {
	b.rspTo = id
	return b
}

// WithSeq sets the sequence number of the transfer.
func (b TransferRspBuilder) WithSeq(seq int) TransferRspBuilder {
	b.seq = seq
	return b
}

// WithAborted marks a transfer discarded by a halted engine.
func (b TransferRspBuilder) WithAborted() TransferRspBuilder {
	b.aborted = true
	return b
}

// WithHalted marks that the engine stopped chain processing at this
// transfer.
func (b TransferRspBuilder) WithHalted() TransferRspBuilder {
	b.halted = true
	return b
}

// WithFault attaches the classified fault of a failed transfer.
func (b TransferRspBuilder) WithFault(
	f *faulting.ErrorRecord,
) TransferRspBuilder {
	b.fault = f
	return b
}

// Build creates a new TransferRsp.
func (b TransferRspBuilder) Build() *TransferRsp {
	r := &TransferRsp{}
	r.ID = sim.GetIDGenerator().Generate()
	r.Src = b.src
	r.Dst = b.dst
	r.RespondTo = b.rspTo
	r.Seq = b.seq
	r.Aborted = b.aborted
	r.Halted = b.halted
	r.Fault = b.fault
	r.TrafficClass = reflect.TypeOf(TransferRsp{}).String()

	return r
}

// A BusFaultRsp is the error response of a memory model: the transaction
// completed with a fault originating in the accessed memory or peripheral.
type BusFaultRsp struct {
	sim.MsgMeta

	RespondTo string
	Addr      uint64
}

// Meta returns the metadata of the message.
func (r *BusFaultRsp) Meta() *sim.MsgMeta {
	return &r.MsgMeta
}

// Clone creates a copy of the BusFaultRsp with a new ID.
func (r *BusFaultRsp) Clone() sim.Msg {
	cloneMsg := *r
	cloneMsg.ID = sim.GetIDGenerator().Generate()

	return &cloneMsg
}

// GetRspTo returns the ID of the faulted request.
func (r *BusFaultRsp) GetRspTo() string {
	return r.RespondTo
}

// BusFaultRspBuilder can build BusFaultRsps.
type BusFaultRspBuilder struct {
	src, dst sim.RemotePort
	rspTo    string
	addr     uint64
}

// WithSrc sets the source port of the message.
func (b BusFaultRspBuilder) WithSrc(src sim.RemotePort) BusFaultRspBuilder {
	b.src = src
	return b
}

// WithDst sets the destination port of the message.
func (b BusFaultRspBuilder) WithDst(dst sim.RemotePort) BusFaultRspBuilder {
	b.dst = dst
	return b
}

// WithRspTo sets the ID of the faulted request.
func (b BusFaultRspBuilder) WithRspTo(id string) BusFaultRspBuilder {
	b.rspTo = id
	return b
}

// WithAddr sets the faulting address.
func (b BusFaultRspBuilder) WithAddr(addr uint64) BusFaultRspBuilder {
	b.addr = addr
	return b
}

// Build creates a new BusFaultRsp.
func (b BusFaultRspBuilder) Build() *BusFaultRsp {
	r := &BusFaultRsp{}
	r.ID = sim.GetIDGenerator().Generate()
	r.Src = b.src
	r.Dst = b.dst
	r.RespondTo = b.rspTo
	r.Addr = b.addr
	r.TrafficClass = reflect.TypeOf(BusFaultRsp{}).String()

	return r
}

// An IrqMsg is the interrupt/event raised on chain completion or on a
// surfaced error.
type IrqMsg struct {
	sim.MsgMeta

	Completed bool
	Fault     *faulting.ErrorRecord
}

// Meta returns the metadata of the message.
func (r *IrqMsg) Meta() *sim.MsgMeta {
	return &r.MsgMeta
}

// Clone creates a copy of the IrqMsg with a new ID.
func (r *IrqMsg) Clone() sim.Msg {
	cloneMsg := *r
	cloneMsg.ID = sim.GetIDGenerator().Generate()

	return &cloneMsg
}

// IrqMsgBuilder can build IrqMsgs.
type IrqMsgBuilder struct {
	src, dst  sim.RemotePort
	completed bool
	fault     *faulting.ErrorRecord
}

// WithSrc sets the source port of the message.
func (b IrqMsgBuilder) WithSrc(src sim.RemotePort) IrqMsgBuilder {
	b.src = src
	return b
}

// WithDst sets the destination port of the message.
func (b IrqMsgBuilder) WithDst(dst sim.RemotePort) IrqMsgBuilder {
	b.dst = dst
	return b
}

// WithCompleted marks a completion interrupt rather than an error one.
func (b IrqMsgBuilder) WithCompleted() IrqMsgBuilder {
	b.completed = true
	return b
}

// WithFault attaches a copy of the surfaced error record.
func (b IrqMsgBuilder) WithFault(f *faulting.ErrorRecord) IrqMsgBuilder {
	b.fault = f
	return b
}

// Build creates a new IrqMsg.
func (b IrqMsgBuilder) Build() *IrqMsg {
	r := &IrqMsg{}
	r.ID = sim.GetIDGenerator().Generate()
	r.Src = b.src
	r.Dst = b.dst
	r.Completed = b.completed
	r.Fault = b.fault
	r.TrafficClass = reflect.TypeOf(IrqMsg{}).String()

	return r
}
