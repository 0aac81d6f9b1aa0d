package fattree

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/fattree/sim"
)

var _ = Describe("Switch", func() {
	var (
		mockCtrl *gomock.Controller
		kernel   *MockKernel
		rng      *sim.ReversibleStream
		network  *Network
		sw       *Switch
		sent     []scheduled
		now      sim.VTimeInSec
	)

	setup := func(p *Params) {
		network = buildTestNetwork(p)
		sw = network.Switches[0]

		kernel.EXPECT().Self().Return(network.SwitchLP(0)).AnyTimes()
		kernel.EXPECT().NumLPs().Return(22).AnyTimes()
		kernel.EXPECT().CurrentTime().
			DoAndReturn(func() sim.VTimeInSec { return now }).
			AnyTimes()
		kernel.EXPECT().RNG().Return(rng).AnyTimes()
	}

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		kernel = NewMockKernel(mockCtrl)
		rng = sim.NewReversibleStream(11)
		sent = nil
		now = 10
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	Context("with default buffers", func() {
		BeforeEach(func() {
			setup(twoLevelParams())
			captureSchedules(kernel, &sent)
		})

		It("should credit the sending terminal on arrival", func() {
			before := sw.Checkpoint()
			msg := SwitchArriveMsg{
				Packet: Packet{ID: 5, DstTerminal: 15},
				Hop:    HopInfo{LastHop: PeerTerminal, SenderID: 2},
			}

			undo, err := sw.Handle(kernel, msg)

			Expect(err).NotTo(HaveOccurred())
			Expect(rng.Count()).To(Equal(uint64(2)))
			Expect(sent).To(HaveLen(2))
			Expect(sent[0].dst).To(Equal(network.SwitchLP(0)))
			Expect(sent[0].msg).To(Equal(SwitchSendMsg{Packet: msg.Packet}))
			Expect(sent[1].dst).To(Equal(network.TerminalLP(2)))
			Expect(sent[1].msg).To(Equal(TerminalBufferMsg{PacketID: 5}))
			Expect(sw.CreditAt[2]).To(Equal(10 + sent[1].delay))

			sw.Reverse(kernel, msg, undo)
			Expect(sw.Checkpoint()).To(Equal(before))
			Expect(rng.Count()).To(BeZero())
		})

		It("should credit the sending switch on the sender's port", func() {
			msg := SwitchArriveMsg{
				Packet: Packet{ID: 5, DstTerminal: 1},
				Hop: HopInfo{
					LastHop:  PeerSwitch,
					Port:     1,
					Offset:   1,
					SenderID: 4,
				},
			}

			_, err := sw.Handle(kernel, msg)

			Expect(err).NotTo(HaveOccurred())
			Expect(sent[1].dst).To(Equal(network.SwitchLP(4)))
			Expect(sent[1].msg).To(Equal(SwitchBufferMsg{PacketID: 5, Port: 1}))
			Expect(sw.CreditAt[5]).NotTo(BeZero())
			Expect(sent[1].delay).To(BeNumerically(">=", 8/5.0+0.1))
		})

		It("should reject packets from non-neighbours", func() {
			_, err := sw.Handle(kernel, SwitchArriveMsg{
				Hop: HopInfo{LastHop: PeerSwitch, SenderID: 1},
			})

			var routeErr *RouteError
			Expect(err).To(BeAssignableToTypeOf(routeErr))
			Expect(rng.Count()).To(BeZero())
		})

		It("should forward on the least occupied up port", func() {
			sw.Occupancy[4] = 2
			sw.Occupancy[5] = 1
			before := sw.Checkpoint()

			msg := SwitchSendMsg{Packet: Packet{
				ID: 5, DstTerminal: 15, Size: 512, Hops: 1,
			}}
			undo, err := sw.Handle(kernel, msg)

			Expect(err).NotTo(HaveOccurred())
			Expect(sw.Occupancy[6]).To(Equal(1))
			Expect(sw.Traffic[6]).To(Equal(uint64(512)))
			Expect(sent).To(HaveLen(1))
			Expect(sent[0].dst).To(Equal(network.SwitchLP(5)))
			Expect(sent[0].delay).To(BeNumerically(">=", 0.11+512/5.0))

			arrive := sent[0].msg.(SwitchArriveMsg)
			Expect(arrive.Packet.Hops).To(Equal(2))
			Expect(arrive.Hop).To(Equal(HopInfo{
				LastHop:  PeerSwitch,
				Port:     6,
				Offset:   0,
				SenderID: 0,
			}))

			sw.Reverse(kernel, msg, undo)
			Expect(sw.Checkpoint()).To(Equal(before))
			Expect(rng.Count()).To(BeZero())
		})

		It("should deliver to a local terminal", func() {
			_, err := sw.Handle(kernel, SwitchSendMsg{Packet: Packet{
				ID: 5, DstTerminal: 3, Size: 512,
			}})

			Expect(err).NotTo(HaveOccurred())
			Expect(sent[0].dst).To(Equal(network.TerminalLP(3)))
			Expect(sent[0].msg.(TerminalArriveMsg).Hop.Port).To(Equal(3))
			Expect(sw.Occupancy[3]).To(Equal(1))
		})

		It("should never move a port's availability backwards", func() {
			msg := SwitchSendMsg{Packet: Packet{DstTerminal: 3, Size: 512}}

			last := sw.AvailableAt[3]
			for i, t := range []sim.VTimeInSec{10, 10, 4, 500, 501} {
				now = t
				busy := sw.AvailableAt[3] > now

				_, err := sw.Handle(kernel, msg)

				Expect(err).NotTo(HaveOccurred())
				Expect(sent[i].delay).To(Equal(sw.AvailableAt[3] - now))
				Expect(sw.AvailableAt[3]).To(BeNumerically(">", last))
				Expect(sw.AvailableAt[3]).To(BeNumerically(">", now))
				if busy {
					Expect(sw.AvailableAt[3]).
						To(BeNumerically(">=", last+512/5.0))
				}
				last = sw.AvailableAt[3]
			}

			Expect(sw.Occupancy[3]).To(Equal(5))
			for port, at := range sw.AvailableAt {
				if port != 3 {
					Expect(at).To(BeZero())
				}
			}
		})

		It("should apply and reverse credits", func() {
			sw.Occupancy[6] = 1

			undo, err := sw.Handle(kernel, SwitchBufferMsg{Port: 6})
			Expect(err).NotTo(HaveOccurred())
			Expect(sw.Occupancy[6]).To(BeZero())

			sw.Reverse(kernel, SwitchBufferMsg{Port: 6}, undo)
			Expect(sw.Occupancy[6]).To(Equal(1))
		})

		It("should reject credits for empty or missing ports", func() {
			_, err := sw.Handle(kernel, SwitchBufferMsg{Port: 6})
			Expect(err).To(HaveOccurred())

			_, err = sw.Handle(kernel, SwitchBufferMsg{Port: 8})
			Expect(err).To(HaveOccurred())
		})

		It("should report all its ports", func() {
			sw.Occupancy[4] = 7

			levels := sw.PortLevels()

			Expect(levels).To(HaveLen(8))
			Expect(levels[0].Cap).To(Equal(DefaultTerminalBufferSize))
			Expect(levels[4].Port).To(Equal("FatTree.Switch[0].Port[4]"))
			Expect(levels[4].Level).To(Equal(7))
			Expect(levels[4].Cap).To(Equal(DefaultBufferSize))
		})
	})

	Context("with tiny buffers", func() {
		BeforeEach(func() {
			p := twoLevelParams()
			p.BufferSize = 1
			p.TerminalBufferSize = 1
			setup(p)
		})

		It("should fail when every candidate port is full", func() {
			for port := 4; port < 8; port++ {
				sw.Occupancy[port] = 1
			}

			_, err := sw.Handle(kernel, SwitchSendMsg{Packet: Packet{
				DstTerminal: 15,
			}})

			var overflow *OverflowError
			Expect(err).To(BeAssignableToTypeOf(overflow))
			Expect(err.(*OverflowError).Port).To(Equal(4))
			Expect(err.(*OverflowError).Capacity).To(Equal(1))
			Expect(rng.Count()).To(BeZero())
		})

		It("should use the terminal capacity on terminal ports", func() {
			sw.Occupancy[1] = 1

			_, err := sw.Handle(kernel, SwitchSendMsg{Packet: Packet{
				DstTerminal: 1,
			}})

			var overflow *OverflowError
			Expect(err).To(BeAssignableToTypeOf(overflow))
		})
	})
})
