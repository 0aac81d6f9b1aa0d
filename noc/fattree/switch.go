package fattree

import (
	"fmt"
	"log"

	"github.com/sarchlab/fattree/datarecording"
	"github.com/sarchlab/fattree/monitoring"
	"github.com/sarchlab/fattree/sim"
)

// SwitchState is the mutable per-port state of a switch. All the slices are
// indexed by port and sized to the radix.
type SwitchState struct {
	AvailableAt []sim.VTimeInSec
	CreditAt    []sim.VTimeInSec
	Occupancy   []int
	Traffic     []uint64
}

func newSwitchState(radix int) SwitchState {
	return SwitchState{
		AvailableAt: make([]sim.VTimeInSec, radix),
		CreditAt:    make([]sim.VTimeInSec, radix),
		Occupancy:   make([]int, radix),
		Traffic:     make([]uint64, radix),
	}
}

func (s SwitchState) clone() SwitchState {
	return SwitchState{
		AvailableAt: append([]sim.VTimeInSec(nil), s.AvailableAt...),
		CreditAt:    append([]sim.VTimeInSec(nil), s.CreditAt...),
		Occupancy:   append([]int(nil), s.Occupancy...),
		Traffic:     append([]uint64(nil), s.Traffic...),
	}
}

// LinkTrafficEntry is the row a switch records for each of its ports when the
// simulation ends.
type LinkTrafficEntry struct {
	SwitchID int
	Level    int
	Port     int
	PeerKind string
	PeerID   int
	Traffic  uint64
}

// A Switch is a crossbar that forwards packets on the least occupied of the
// output ports leading to the destination.
type Switch struct {
	SwitchLayout
	SwitchState

	Name string

	network  *Network
	recorder datarecording.DataRecorder
}

// Checkpoint returns a deep copy of the port state.
func (s *Switch) Checkpoint() any {
	return s.SwitchState.clone()
}

// Handle applies a message to the switch.
func (s *Switch) Handle(k sim.Kernel, msg sim.Msg) (sim.Undo, error) {
	switch msg := msg.(type) {
	case SwitchArriveMsg:
		return s.arrive(k, msg)
	case SwitchSendMsg:
		return s.send(k, msg)
	case SwitchBufferMsg:
		return s.bufferUpdate(msg)
	default:
		return nil, &UnsupportedMsgError{LP: s.Name, Msg: msg}
	}
}

// Reverse undoes a message applied by Handle.
func (s *Switch) Reverse(k sim.Kernel, msg sim.Msg, undo sim.Undo) {
	switch msg := msg.(type) {
	case SwitchArriveMsg:
		u := undo.(switchArriveUndo)
		s.CreditAt[u.creditPort] = u.nextCreditAt
		k.RNG().Reverse()
		k.RNG().Reverse()
	case SwitchSendMsg:
		u := undo.(switchSendUndo)
		s.AvailableAt[u.port] = u.availableAt
		s.Occupancy[u.port]--
		s.Traffic[u.port] -= uint64(msg.Packet.Size)
		k.RNG().Reverse()
	case SwitchBufferMsg:
		s.Occupancy[msg.Port]++
	default:
		log.Panicf("%s cannot reverse %T", s.Name, msg)
	}
}

// arrive returns a credit to the previous hop and schedules the packet to be
// forwarded.
func (s *Switch) arrive(k sim.Kernel, msg SwitchArriveMsg) (sim.Undo, error) {
	p := s.network.params
	now := k.CurrentTime()

	port, err := s.creditPort(msg.Hop)
	if err != nil {
		return nil, &RouteError{LP: s.Name, Reason: err.Error()}
	}

	rng := k.RNG()

	sendDelay := p.Lookahead + 0.1 + rng.Exponential(p.ProcessingJitter())
	k.Schedule(k.Self(), sim.VTimeInSec(sendDelay),
		SwitchSendMsg{Packet: msg.Packet})

	undo := switchArriveUndo{creditPort: port, nextCreditAt: s.CreditAt[port]}

	_, bw := s.portClass(port)
	creditDelay := creditSize / bw
	delay := sim.VTimeInSec(creditDelay + 0.1 +
		rng.Exponential(creditDelay/1000))
	s.CreditAt[port] = maxTime(s.CreditAt[port], now) + delay

	if msg.Hop.LastHop == PeerTerminal {
		k.Schedule(s.network.TerminalLP(msg.Hop.SenderID), s.CreditAt[port]-now,
			TerminalBufferMsg{PacketID: msg.Packet.ID})
	} else {
		k.Schedule(s.network.SwitchLP(msg.Hop.SenderID), s.CreditAt[port]-now,
			SwitchBufferMsg{PacketID: msg.Packet.ID, Port: msg.Hop.Port})
	}

	return undo, nil
}

// send routes the packet and puts it on the chosen output link.
func (s *Switch) send(k sim.Kernel, msg SwitchSendMsg) (sim.Undo, error) {
	p := s.network.params
	now := k.CurrentTime()
	pkt := msg.Packet

	start, end, err := s.candidatePorts(p, pkt.DstTerminal)
	if err != nil {
		return nil, &RouteError{LP: s.Name, Reason: err.Error()}
	}

	port := leastLoaded(s.Occupancy, start, end)

	capacity, bw := s.portClass(port)
	if s.Occupancy[port] >= capacity {
		return nil, &OverflowError{
			LP:        s.Name,
			Port:      port,
			Occupancy: s.Occupancy[port],
			Capacity:  capacity,
		}
	}

	undo := switchSendUndo{port: port, availableAt: s.AvailableAt[port]}

	delay := p.Lookahead + 0.1 + float64(p.PacketSize)/bw +
		k.RNG().Exponential(float64(p.PacketSize)/200)
	s.AvailableAt[port] = maxTime(s.AvailableAt[port], now) +
		sim.VTimeInSec(delay)

	pkt.Hops++
	hop := HopInfo{
		LastHop:  PeerSwitch,
		Port:     port,
		Offset:   s.LinkOffset(port),
		SenderID: s.ID,
	}

	peer := s.Peers[port]
	if peer.Kind == PeerTerminal {
		k.Schedule(s.network.TerminalLP(peer.ID), s.AvailableAt[port]-now,
			TerminalArriveMsg{Packet: pkt, Hop: hop})
	} else {
		k.Schedule(s.network.SwitchLP(peer.ID), s.AvailableAt[port]-now,
			SwitchArriveMsg{Packet: pkt, Hop: hop})
	}

	s.Occupancy[port]++
	s.Traffic[port] += uint64(pkt.Size)

	return undo, nil
}

func (s *Switch) bufferUpdate(msg SwitchBufferMsg) (sim.Undo, error) {
	if msg.Port < 0 || msg.Port >= s.NumPorts {
		return nil, &RouteError{
			LP:     s.Name,
			Reason: fmt.Sprintf("credit for port %d out of range", msg.Port),
		}
	}

	if s.Occupancy[msg.Port] <= 0 {
		return nil, &RouteError{
			LP:     s.Name,
			Reason: fmt.Sprintf("credit for empty port %d", msg.Port),
		}
	}

	s.Occupancy[msg.Port]--

	return nil, nil
}

// portClass returns the buffer capacity and the bandwidth of a port.
func (s *Switch) portClass(port int) (int, float64) {
	p := s.network.params

	if s.IsTerminalPort(port) {
		return p.TerminalBufferSize, p.TerminalBandwidth
	}

	return p.BufferSize, p.LinkBandwidth
}

// PortLevels reports the occupancy of every connected port.
func (s *Switch) PortLevels() []monitoring.PortLevel {
	levels := make([]monitoring.PortLevel, s.NumPorts)
	for port := range levels {
		capacity, _ := s.portClass(port)
		levels[port] = monitoring.PortLevel{
			Port:  fmt.Sprintf("%s.Port[%d]", s.Name, port),
			Level: s.Occupancy[port],
			Cap:   capacity,
		}
	}

	return levels
}

// Finalize records the traffic of every connected port.
func (s *Switch) Finalize(_ sim.VTimeInSec) {
	if s.recorder == nil {
		return
	}

	for port := 0; port < s.NumPorts; port++ {
		s.recorder.InsertData(LinkTrafficTable, LinkTrafficEntry{
			SwitchID: s.ID,
			Level:    s.Level,
			Port:     port,
			PeerKind: s.Peers[port].Kind.String(),
			PeerID:   s.Peers[port].ID,
			Traffic:  s.Traffic[port],
		})
	}
}
