package main

import (
	"encoding/binary"
	"log"
	"reflect"

	"github.com/sarchlab/akita/v4/mem/mem"
	"github.com/sarchlab/akita/v4/sim"

	"github.com/planvtech/cva6-axi-dma/protocol"
)

// A hostAgent plays the role of the driver: it writes chain submissions into
// the desc_addr register, then polls the status register until the engine
// goes idle. Interrupts arriving on IntPort are counted.
type hostAgent struct {
	*sim.TickingComponent

	MemPort sim.Port
	IntPort sim.Port

	regDst  sim.RemotePort
	regBase uint64

	toSubmit    []uint64
	outstanding sim.Msg
	pollWait    int

	LastStatus uint64
	IrqsSeen   int
	Done       bool
}

const pollInterval = 50

func newHostAgent(
	engine sim.Engine,
	freq sim.Freq,
	regBase uint64,
	chains []uint64,
) *hostAgent {
	a := &hostAgent{
		regBase:  regBase,
		toSubmit: chains,
	}
	a.TickingComponent = sim.NewTickingComponent("Host", engine, freq, a)

	a.MemPort = sim.NewPort(a, 4, 4, "Host.MemPort")
	a.IntPort = sim.NewPort(a, 4, 4, "Host.IntPort")

	return a
}

// setRegisterTarget points the agent at the engine's register block.
func (a *hostAgent) setRegisterTarget(dst sim.RemotePort) {
	a.regDst = dst
}

func (a *hostAgent) Tick() bool {
	if a.Done {
		return false
	}

	madeProgress := false

	madeProgress = a.collectIrqs() || madeProgress
	madeProgress = a.collectRegRsps() || madeProgress
	madeProgress = a.driveRegisters() || madeProgress

	return madeProgress || !a.Done
}

func (a *hostAgent) collectIrqs() bool {
	msg := a.IntPort.RetrieveIncoming()
	if msg == nil {
		return false
	}

	if _, ok := msg.(*protocol.IrqMsg); !ok {
		log.Panicf("can't process message of type %s", reflect.TypeOf(msg))
	}

	a.IrqsSeen++

	return true
}

func (a *hostAgent) collectRegRsps() bool {
	msg := a.MemPort.RetrieveIncoming()
	if msg == nil {
		return false
	}

	switch rsp := msg.(type) {
	case *mem.WriteDoneRsp:
	case *mem.DataReadyRsp:
		a.LastStatus = binary.LittleEndian.Uint64(rsp.Data)
		if a.LastStatus&1 == 0 && len(a.toSubmit) == 0 {
			a.Done = true
		}
	default:
		log.Panicf("can't process response of type %s", reflect.TypeOf(msg))
	}

	a.outstanding = nil

	return true
}

func (a *hostAgent) driveRegisters() bool {
	if a.outstanding != nil {
		return false
	}

	if len(a.toSubmit) > 0 {
		return a.submitChain()
	}

	// Idle-wait between polls so the status register is not hammered every
	// tick.
	if a.pollWait > 0 {
		a.pollWait--
		return false
	}

	return a.pollStatus()
}

func (a *hostAgent) submitChain() bool {
	data := make([]byte, 8)
	binary.LittleEndian.PutUint64(data, a.toSubmit[0])

	req := mem.WriteReqBuilder{}.
		WithAddress(a.regBase).
		WithData(data).
		WithSrc(a.MemPort.AsRemote()).
		WithDst(a.regDst).
		WithPID(0).
		Build()

	if err := a.MemPort.Send(req); err != nil {
		return false
	}

	a.toSubmit = a.toSubmit[1:]
	a.outstanding = req

	return true
}

func (a *hostAgent) pollStatus() bool {
	req := mem.ReadReqBuilder{}.
		WithAddress(a.regBase + 8).
		WithByteSize(8).
		WithSrc(a.MemPort.AsRemote()).
		WithDst(a.regDst).
		WithPID(0).
		Build()

	if err := a.MemPort.Send(req); err != nil {
		return false
	}

	a.outstanding = req
	a.pollWait = pollInterval

	return true
}
