package fattree

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/fattree/sim"
)

type msgCounter struct {
	counts map[string]int
}

func (c *msgCounter) Func(ctx sim.HookCtx) {
	if ctx.Pos != sim.HookPosAfterEvent {
		return
	}

	switch ctx.Item.(*sim.Event).Msg().(type) {
	case SwitchBufferMsg:
		c.counts["switch credit"]++
	case TerminalBufferMsg:
		c.counts["terminal credit"]++
	case SwitchSendMsg:
		c.counts["switch send"]++
	}
}

type peakTracker struct {
	network *Network
	peaks   map[string]int
}

func (t *peakTracker) Func(ctx sim.HookCtx) {
	if ctx.Pos != sim.HookPosAfterEvent {
		return
	}

	for _, term := range t.network.Terminals {
		for _, l := range term.PortLevels() {
			t.peaks[l.Port] = max(t.peaks[l.Port], l.Level)
		}
	}

	for _, sw := range t.network.Switches {
		for _, l := range sw.PortLevels() {
			t.peaks[l.Port] = max(t.peaks[l.Port], l.Level)
		}
	}
}

func expectDrained(n *Network) {
	for _, t := range n.Terminals {
		ExpectWithOffset(1, t.Occupancy).To(BeZero(), t.Name)
	}

	for _, sw := range n.Switches {
		for port, occ := range sw.Occupancy {
			ExpectWithOffset(1, occ).To(BeZero(), "%s port %d", sw.Name, port)
		}
	}
}

var _ = Describe("Network", func() {
	var (
		engine  *sim.SerialEngine
		network *Network
		counter *msgCounter
		peaks   *peakTracker
	)

	BeforeEach(func() {
		engine = sim.NewSerialEngine()

		var err error
		network, err = MakeBuilder().
			WithEngine(engine).
			WithParams(twoLevelParams()).
			Build()
		Expect(err).NotTo(HaveOccurred())

		counter = &msgCounter{counts: make(map[string]int)}
		peaks = &peakTracker{network: network, peaks: make(map[string]int)}
		engine.AcceptHook(counter)
		engine.AcceptHook(peaks)
	})

	It("should register terminals before switches", func() {
		Expect(network.Terminals).To(HaveLen(16))
		Expect(network.Switches).To(HaveLen(6))
		Expect(network.TerminalLP(15)).To(Equal(sim.LPID(15)))
		Expect(network.SwitchLP(0)).To(Equal(sim.LPID(16)))
		Expect(engine.LPName(16)).To(Equal("FatTree.Switch[0]"))
	})

	It("should not build without an engine", func() {
		Expect(func() {
			_, _ = MakeBuilder().WithParams(twoLevelParams()).Build()
		}).To(Panic())
	})

	It("should deliver a packet across the tree", func() {
		engine.ScheduleInitial(network.TerminalLP(0), 0,
			GenerateMsg{Packet: Packet{DstTerminal: 15, Size: 512}})

		Expect(engine.Run()).To(Succeed())

		dst := network.Terminals[15]
		Expect(dst.PacketsFinished).To(Equal(uint64(1)))
		Expect(dst.TotalHops).To(Equal(uint64(3)))
		Expect(network.Terminals[0].PacketCounter).To(Equal(uint64(1)))

		Expect(counter.counts["switch send"]).To(Equal(3))
		Expect(counter.counts["switch credit"]).To(Equal(3))
		Expect(counter.counts["terminal credit"]).To(Equal(1))

		Expect(peaks.peaks["FatTree.Terminal[0].Uplink"]).To(Equal(1))
		Expect(peaks.peaks["FatTree.Switch[0].Port[4]"]).To(Equal(1))
		Expect(peaks.peaks["FatTree.Switch[4].Port[6]"]).To(Equal(1))
		Expect(peaks.peaks["FatTree.Switch[3].Port[3]"]).To(Equal(1))

		expectDrained(network)
	})

	It("should keep local traffic under the level-0 switch", func() {
		engine.ScheduleInitial(network.TerminalLP(0), 0,
			GenerateMsg{Packet: Packet{DstTerminal: 2, Size: 512}})

		Expect(engine.Run()).To(Succeed())

		Expect(network.Terminals[2].TotalHops).To(Equal(uint64(1)))
		Expect(counter.counts["switch send"]).To(Equal(1))
		for _, sw := range network.Switches[1:] {
			for _, traffic := range sw.Traffic {
				Expect(traffic).To(BeZero())
			}
		}
		expectDrained(network)
	})

	It("should spread a burst over the up ports", func() {
		for i := 0; i < 4; i++ {
			engine.ScheduleInitial(network.TerminalLP(i), 0,
				GenerateMsg{Packet: Packet{DstTerminal: 12 + i}})
		}

		Expect(engine.Run()).To(Succeed())

		for i := 12; i < 16; i++ {
			Expect(network.Terminals[i].PacketsFinished).To(Equal(uint64(1)))
		}
		Expect(counter.counts["switch credit"]).To(Equal(12))
		expectDrained(network)
	})

	It("should abort on a packet to a missing terminal", func() {
		engine.ScheduleInitial(network.TerminalLP(0), 0,
			GenerateMsg{Packet: Packet{DstTerminal: 99}})

		err := engine.Run()

		var routeErr *RouteError
		Expect(err).To(HaveOccurred())
		Expect(errors.As(err, &routeErr)).To(BeTrue())
	})

	It("should abort when queued packets overfill an uplink", func() {
		engine = sim.NewSerialEngine()
		p := twoLevelParams()
		p.TerminalBufferSize = 1

		var err error
		network, err = MakeBuilder().WithEngine(engine).WithParams(p).Build()
		Expect(err).NotTo(HaveOccurred())

		for i := 0; i < 3; i++ {
			engine.ScheduleInitial(network.TerminalLP(0), 0,
				GenerateMsg{Packet: Packet{DstTerminal: 15, Size: 512}})
		}

		err = engine.Run()

		var overflow *OverflowError
		Expect(errors.As(err, &overflow)).To(BeTrue())
		Expect(overflow.LP).To(Equal("FatTree.Terminal[0]"))
		Expect(network.Terminals[0].Occupancy).To(Equal(1))
	})

	It("should abort on a credit nobody waits for", func() {
		engine.ScheduleInitial(network.TerminalLP(0), 0,
			TerminalBufferMsg{PacketID: 7})

		err := engine.Run()

		var routeErr *RouteError
		Expect(errors.As(err, &routeErr)).To(BeTrue())
		Expect(network.Terminals[0].Occupancy).To(BeZero())
	})
})
