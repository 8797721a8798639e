package walker

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/akita/v4/mem/mem"
	"github.com/sarchlab/akita/v4/sim"
	"github.com/sarchlab/akita/v4/sim/directconnection"
	"go.uber.org/mock/gomock"

	"github.com/planvtech/cva6-axi-dma/desc"
	"github.com/planvtech/cva6-axi-dma/faulting"
	"github.com/planvtech/cva6-axi-dma/faultmem"
	"github.com/planvtech/cva6-axi-dma/protocol"
)

const descBase = 0x1000

type walkerBench struct {
	engine   sim.Engine
	descMem  *faultmem.Comp
	stub     *engineStub
	wk       *Comp
	srcPort  *MockPort
	captured []sim.Msg
}

type walkerBenchConfig struct {
	jitterSpan    uint64
	maxChainLen   int
	engineDelay   int
	engineHold    int
	failSeq       int
	faultWindowAt uint64
}

func makeWalkerBench(
	mockCtrl *gomock.Controller,
	cfg walkerBenchConfig,
) *walkerBench {
	b := &walkerBench{}
	b.engine = sim.NewSerialEngine()

	memBuilder := faultmem.MakeBuilder().
		WithEngine(b.engine).
		WithNewStorage(1 * mem.MB).
		WithBaseLatency(2).
		WithJitterSpan(cfg.jitterSpan)
	if cfg.faultWindowAt != 0 {
		memBuilder = memBuilder.WithFaultWindow(cfg.faultWindowAt, 8)
	}
	b.descMem = memBuilder.Build("DescMem")

	b.stub = newEngineStub(b.engine, cfg.engineDelay)
	b.stub.failSeq = cfg.failSeq
	b.stub.holdTicks = cfg.engineHold

	maxChainLen := cfg.maxChainLen
	if maxChainLen == 0 {
		maxChainLen = 1024
	}

	b.wk = MakeBuilder().
		WithEngine(b.engine).
		WithAddressMapper(&mem.SinglePortMapper{
			Port: b.descMem.TopPort.AsRemote(),
		}).
		WithEngineDst(b.stub.CtrlPort.AsRemote()).
		WithFaultHandler(faulting.NewHandler(faulting.CapReport)).
		WithMaxChainLen(maxChainLen).
		Build("Walker")
	b.stub.watch = b.wk

	b.srcPort = NewMockPort(mockCtrl)
	b.srcPort.EXPECT().SetConnection(gomock.Any()).AnyTimes()
	b.srcPort.EXPECT().NotifyAvailable().AnyTimes()
	b.srcPort.EXPECT().PeekOutgoing().Return(nil).AnyTimes()
	b.srcPort.EXPECT().AsRemote().
		Return(sim.RemotePort("SrcPort")).AnyTimes()
	b.srcPort.EXPECT().Deliver(gomock.Any()).
		Do(func(msg sim.Msg) { b.captured = append(b.captured, msg) }).
		AnyTimes()

	conn := directconnection.MakeBuilder().
		WithEngine(b.engine).
		WithFreq(1 * sim.GHz).
		Build("Conn")
	conn.PlugIn(b.srcPort)
	conn.PlugIn(b.wk.CtrlPort)
	conn.PlugIn(b.wk.MemPort)
	conn.PlugIn(b.wk.OutPort)
	conn.PlugIn(b.stub.CtrlPort)
	conn.PlugIn(b.descMem.TopPort)

	return b
}

// writeChain lays out records at descBase with a fixed stride and returns
// their addresses. The last record carries the end-of-chain sentinel.
func (b *walkerBench) writeChain(recs []desc.Record) {
	for i := range recs {
		if i == len(recs)-1 {
			recs[i].NextAddr = desc.NextSentinel
		} else {
			recs[i].NextAddr = descBase + uint64(i+1)*desc.RecordBytes
		}

		addr := descBase + uint64(i)*desc.RecordBytes
		err := b.descMem.Storage.Write(addr, recs[i].Encode())
		Expect(err).To(BeNil())
	}
}

func (b *walkerBench) startChain(descAddr uint64) {
	req := protocol.StartChainReqBuilder{}.
		WithSrc(b.srcPort.AsRemote()).
		WithDst(b.wk.CtrlPort.AsRemote()).
		WithDescAddr(descAddr).
		Build()

	b.wk.CtrlPort.Deliver(req)

	Expect(b.engine.Run()).To(Succeed())
}

func (b *walkerBench) chainDone() *protocol.ChainDoneRsp {
	for _, msg := range b.captured {
		if rsp, ok := msg.(*protocol.ChainDoneRsp); ok {
			return rsp
		}
	}

	return nil
}

var _ = Describe("Walker", func() {
	var mockCtrl *gomock.Controller

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
	})

	It("should complete an empty chain immediately", func() {
		b := makeWalkerBench(mockCtrl, walkerBenchConfig{failSeq: -1})

		b.startChain(desc.NextSentinel)

		rsp := b.chainDone()
		Expect(rsp).NotTo(BeNil())
		Expect(rsp.Transfers).To(Equal(0))
		Expect(rsp.Fault).To(BeNil())
		Expect(b.stub.Received).To(BeEmpty())
		Expect(b.wk.Busy()).To(BeFalse())
	})

	It("should deliver every record of a chain in order", func() {
		b := makeWalkerBench(mockCtrl, walkerBenchConfig{failSeq: -1})
		b.writeChain([]desc.Record{
			{DstAddr: 0x20000, SrcAddr: 0x10000, Length: 256},
			{DstAddr: 0x21000, SrcAddr: 0x11000, Length: 64},
			{DstAddr: 0x22000, SrcAddr: 0x12000, Length: 512},
		})

		b.startChain(descBase)

		Expect(b.stub.Received).To(HaveLen(3))
		for i, req := range b.stub.Received {
			Expect(req.Seq).To(Equal(i))
			Expect(req.SrcAddr).To(
				Equal(uint64(0x10000 + i*0x1000)))
			Expect(req.DstAddr).To(
				Equal(uint64(0x20000 + i*0x1000)))
			Expect(req.Last).To(Equal(i == 2))
		}
		Expect(b.stub.Received[0].NumBytes).To(Equal(uint64(256)))

		rsp := b.chainDone()
		Expect(rsp).NotTo(BeNil())
		Expect(rsp.Transfers).To(Equal(3))
		Expect(rsp.Fault).To(BeNil())
	})

	It("should pass zero-length records through to the engine", func() {
		b := makeWalkerBench(mockCtrl, walkerBenchConfig{failSeq: -1})
		b.writeChain([]desc.Record{
			{DstAddr: 0x20000, SrcAddr: 0x10000, Length: 0},
			{DstAddr: 0x21000, SrcAddr: 0x11000, Length: 128},
		})

		b.startChain(descBase)

		Expect(b.stub.Received).To(HaveLen(2))
		Expect(b.stub.Received[0].NumBytes).To(Equal(uint64(0)))
		Expect(b.chainDone().Transfers).To(Equal(2))
	})

	It("should keep chain order when fetch beats return out of order",
		func() {
			b := makeWalkerBench(mockCtrl, walkerBenchConfig{
				jitterSpan: 3,
				failSeq:    -1,
			})
			b.writeChain([]desc.Record{
				{DstAddr: 0x20000, SrcAddr: 0x10000, Length: 32},
				{DstAddr: 0x21000, SrcAddr: 0x11000, Length: 32},
				{DstAddr: 0x22000, SrcAddr: 0x12000, Length: 32},
				{DstAddr: 0x23000, SrcAddr: 0x13000, Length: 32},
			})

			b.startChain(descBase)

			Expect(b.stub.Received).To(HaveLen(4))
			for i, req := range b.stub.Received {
				Expect(req.Seq).To(Equal(i))
				Expect(req.SrcAddr).To(
					Equal(uint64(0x10000 + i*0x1000)))
			}
		})

	It("should never fetch more than the prefetch bound ahead of the engine",
		func() {
			b := makeWalkerBench(mockCtrl, walkerBenchConfig{
				engineHold: 300,
				failSeq:    -1,
			})

			recs := make([]desc.Record, 8)
			for i := range recs {
				recs[i] = desc.Record{
					DstAddr: 0x20000 + uint64(i)*0x1000,
					SrcAddr: 0x10000 + uint64(i)*0x1000,
					Length:  64,
				}
			}
			b.writeChain(recs)

			b.startChain(descBase)

			// The stalled engine backs the walker up until the bound
			// saturates; it must saturate at exactly two records.
			Expect(b.stub.maxAhead).To(Equal(2))
			Expect(b.stub.Received).To(HaveLen(8))

			rsp := b.chainDone()
			Expect(rsp).NotTo(BeNil())
			Expect(rsp.Transfers).To(Equal(8))
			Expect(rsp.Fault).To(BeNil())
			Expect(b.wk.Busy()).To(BeFalse())
		})

	It("should abort a chain that exceeds the traversal bound", func() {
		b := makeWalkerBench(mockCtrl, walkerBenchConfig{
			maxChainLen: 4,
			failSeq:     -1,
		})

		// One record pointing back to itself.
		rec := desc.Record{
			DstAddr:  0x20000,
			SrcAddr:  0x10000,
			NextAddr: descBase,
			Length:   64,
		}
		err := b.descMem.Storage.Write(descBase, rec.Encode())
		Expect(err).To(BeNil())

		b.startChain(descBase)

		rsp := b.chainDone()
		Expect(rsp).NotTo(BeNil())
		Expect(rsp.Fault).NotTo(BeNil())
		Expect(rsp.Fault.Kind).To(Equal(faulting.FaultChainTooLong))
		Expect(len(b.stub.Received)).To(BeNumerically("<=", 4))
		Expect(b.wk.Busy()).To(BeFalse())
	})

	It("should stop the chain when the engine reports a halting fault",
		func() {
			b := makeWalkerBench(mockCtrl, walkerBenchConfig{
				engineDelay: 8,
				failSeq:     0,
			})
			b.writeChain([]desc.Record{
				{DstAddr: 0x20000, SrcAddr: 0x10000, Length: 64},
				{DstAddr: 0x21000, SrcAddr: 0x11000, Length: 64},
				{DstAddr: 0x22000, SrcAddr: 0x12000, Length: 64},
			})

			b.startChain(descBase)

			rsp := b.chainDone()
			Expect(rsp).NotTo(BeNil())
			Expect(rsp.Fault).NotTo(BeNil())
			Expect(rsp.Fault.Kind).To(Equal(faulting.FaultBusError))
			Expect(b.wk.Busy()).To(BeFalse())
		})

	It("should fault the chain on a descriptor fetch bus error", func() {
		b := makeWalkerBench(mockCtrl, walkerBenchConfig{
			failSeq:       -1,
			faultWindowAt: descBase + desc.RecordBytes,
		})
		b.writeChain([]desc.Record{
			{DstAddr: 0x20000, SrcAddr: 0x10000, Length: 64},
			{DstAddr: 0x21000, SrcAddr: 0x11000, Length: 64},
		})

		b.startChain(descBase)

		rsp := b.chainDone()
		Expect(rsp).NotTo(BeNil())
		Expect(rsp.Fault).NotTo(BeNil())
		Expect(rsp.Fault.Kind).To(Equal(faulting.FaultBusError))
	})

	It("should process a second chain after the first completes", func() {
		b := makeWalkerBench(mockCtrl, walkerBenchConfig{failSeq: -1})
		b.writeChain([]desc.Record{
			{DstAddr: 0x20000, SrcAddr: 0x10000, Length: 64},
		})

		b.startChain(descBase)
		b.startChain(descBase)

		Expect(b.stub.Received).To(HaveLen(2))

		done := 0
		for _, msg := range b.captured {
			if _, ok := msg.(*protocol.ChainDoneRsp); ok {
				done++
			}
		}
		Expect(done).To(Equal(2))
	})
})
