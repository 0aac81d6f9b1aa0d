package fattree

import (
	"fmt"
	"log"

	"github.com/sarchlab/fattree/datarecording"
	"github.com/sarchlab/fattree/monitoring"
	"github.com/sarchlab/fattree/sim"
)

// TerminalState is the mutable state of a terminal.
type TerminalState struct {
	// Occupancy counts the packets sent to the switch that have not been
	// credited back yet.
	Occupancy     int
	AvailableAt   sim.VTimeInSec
	NextCreditAt  sim.VTimeInSec
	PacketCounter uint64

	PacketsFinished uint64
	TotalHops       uint64
	TotalLatency    sim.VTimeInSec
	MaxLatency      sim.VTimeInSec
}

// TerminalStatsEntry is the row a terminal records when the simulation ends.
type TerminalStatsEntry struct {
	TerminalID     int
	SwitchID       int
	PacketsSent    uint64
	PacketsRecv    uint64
	AvgHops        float64
	AvgLatency     float64
	MaxLatency     float64
	FinalOccupancy int
}

// A Terminal is the network interface of a compute node. It has a single
// link to its level-0 switch.
type Terminal struct {
	TerminalState

	Name     string
	ID       int
	SwitchID int

	network    *Network
	dispatcher sim.LPID
	recorder   datarecording.DataRecorder
}

// Checkpoint returns a copy of the state.
func (t *Terminal) Checkpoint() any {
	return t.TerminalState
}

// Handle applies a message to the terminal.
func (t *Terminal) Handle(k sim.Kernel, msg sim.Msg) (sim.Undo, error) {
	switch msg := msg.(type) {
	case GenerateMsg:
		return t.generate(k, msg)
	case TerminalSendMsg:
		return t.send(k, msg)
	case TerminalArriveMsg:
		return t.arrive(k, msg)
	case TerminalBufferMsg:
		return t.bufferUpdate(msg)
	case IdleMsg:
		return nil, nil
	default:
		return nil, &UnsupportedMsgError{LP: t.Name, Msg: msg}
	}
}

// Reverse undoes a message applied by Handle.
func (t *Terminal) Reverse(k sim.Kernel, msg sim.Msg, undo sim.Undo) {
	switch msg := msg.(type) {
	case GenerateMsg:
		k.RNG().Reverse()
		k.RNG().Reverse()
	case TerminalSendMsg:
		t.reverseSend(k, undo.(terminalSendUndo))
	case TerminalArriveMsg:
		t.reverseArrive(k, msg, undo.(terminalArriveUndo))
	case TerminalBufferMsg:
		t.Occupancy++
	case IdleMsg:
	default:
		log.Panicf("%s cannot reverse %T", t.Name, msg)
	}
}

func (t *Terminal) generate(k sim.Kernel, msg GenerateMsg) (sim.Undo, error) {
	p := t.network.params

	if msg.Packet.DstTerminal < 0 ||
		msg.Packet.DstTerminal >= p.NumTerminals() {
		return nil, &RouteError{
			LP: t.Name,
			Reason: fmt.Sprintf("destination terminal %d does not exist",
				msg.Packet.DstTerminal),
		}
	}

	if err := t.uplinkMustHaveSpace(); err != nil {
		return nil, err
	}

	rng := k.RNG()
	base := int64(k.Self()) + int64(k.NumLPs())*int64(t.PacketCounter)

	pkt := msg.Packet
	pkt.ID = uint64(base + rng.Integer(0, base))
	pkt.SrcTerminal = t.ID
	pkt.InjectedAt = k.CurrentTime()
	pkt.Hops = 0

	delay := p.Lookahead + 0.1 + rng.Exponential(p.ProcessingJitter())
	k.Schedule(k.Self(), sim.VTimeInSec(delay), TerminalSendMsg{Packet: pkt})

	return nil, nil
}

func (t *Terminal) send(k sim.Kernel, msg TerminalSendMsg) (sim.Undo, error) {
	if err := t.uplinkMustHaveSpace(); err != nil {
		return nil, err
	}

	p := t.network.params
	now := k.CurrentTime()
	undo := terminalSendUndo{availableAt: t.AvailableAt}

	head := float64(p.PacketSize) / p.TerminalBandwidth
	delay := sim.VTimeInSec(head + k.RNG().Exponential(head/200))
	t.AvailableAt = maxTime(t.AvailableAt, now) + delay

	pkt := msg.Packet
	pkt.LocalEvent = nil
	pkt.LocalEventSize = 0

	k.Schedule(t.network.SwitchLP(t.SwitchID), t.AvailableAt-now,
		SwitchArriveMsg{
			Packet: pkt,
			Hop: HopInfo{
				LastHop:  PeerTerminal,
				SenderID: t.ID,
			},
		})

	k.Schedule(t.dispatcherLP(k),
		t.network.localLatency(k)+t.AvailableAt-now,
		IdleMsg{Terminal: t.ID, FreeAt: t.AvailableAt})

	if msg.Packet.LocalEventSize > 0 {
		delay := p.Lookahead +
			float64(msg.Packet.LocalEventSize)/p.TerminalBandwidth
		k.Schedule(msg.Packet.Sender, sim.VTimeInSec(delay),
			msg.Packet.LocalEvent)
	}

	t.PacketCounter++
	t.Occupancy++

	return undo, nil
}

// uplinkMustHaveSpace fails when the packets waiting for credits fill the
// buffer of the switch port.
func (t *Terminal) uplinkMustHaveSpace() error {
	capacity := t.network.params.TerminalBufferSize
	if t.Occupancy < capacity {
		return nil
	}

	return &OverflowError{
		LP:        t.Name,
		Occupancy: t.Occupancy,
		Capacity:  capacity,
	}
}

func (t *Terminal) bufferUpdate(msg TerminalBufferMsg) (sim.Undo, error) {
	if t.Occupancy <= 0 {
		return nil, &RouteError{
			LP: t.Name,
			Reason: fmt.Sprintf("credit for packet %d on an empty uplink",
				msg.PacketID),
		}
	}

	t.Occupancy--

	return nil, nil
}

func (t *Terminal) reverseSend(k sim.Kernel, undo terminalSendUndo) {
	t.AvailableAt = undo.availableAt
	t.PacketCounter--
	t.Occupancy--

	t.network.reverseLocalLatency(k)
	k.RNG().Reverse()
}

func (t *Terminal) arrive(
	k sim.Kernel,
	msg TerminalArriveMsg,
) (sim.Undo, error) {
	p := t.network.params
	now := k.CurrentTime()
	pkt := msg.Packet

	if pkt.DstTerminal != t.ID {
		return nil, &RouteError{
			LP: t.Name,
			Reason: fmt.Sprintf("packet %d for terminal %d delivered here",
				pkt.ID, pkt.DstTerminal),
		}
	}

	undo := terminalArriveUndo{
		nextCreditAt: t.NextCreditAt,
		totalLatency: t.TotalLatency,
		maxLatency:   t.MaxLatency,
	}

	if pkt.RemoteEventSize > 0 {
		delay := p.Lookahead + 0.1 +
			float64(pkt.RemoteEventSize)/p.TerminalBandwidth
		k.Schedule(pkt.FinalDest, sim.VTimeInSec(delay), pkt.RemoteEvent)
	}

	creditDelay := creditSize / p.TerminalBandwidth
	delay := sim.VTimeInSec(creditDelay + 0.1 +
		k.RNG().Exponential(creditDelay/1000))
	t.NextCreditAt = maxTime(t.NextCreditAt, now) + delay

	k.Schedule(t.network.SwitchLP(t.SwitchID), t.NextCreditAt-now,
		SwitchBufferMsg{PacketID: pkt.ID, Port: msg.Hop.Port})

	latency := now - pkt.InjectedAt
	t.PacketsFinished++
	t.TotalHops += uint64(pkt.Hops)
	t.TotalLatency += latency
	if latency > t.MaxLatency {
		t.MaxLatency = latency
	}

	return undo, nil
}

func (t *Terminal) reverseArrive(
	k sim.Kernel,
	msg TerminalArriveMsg,
	undo terminalArriveUndo,
) {
	t.NextCreditAt = undo.nextCreditAt
	t.TotalLatency = undo.totalLatency
	t.MaxLatency = undo.maxLatency
	t.PacketsFinished--
	t.TotalHops -= uint64(msg.Packet.Hops)

	k.RNG().Reverse()
}

func (t *Terminal) dispatcherLP(k sim.Kernel) sim.LPID {
	if t.dispatcher < 0 {
		return k.Self()
	}

	return t.dispatcher
}

// PortLevels reports the occupancy of the uplink.
func (t *Terminal) PortLevels() []monitoring.PortLevel {
	return []monitoring.PortLevel{{
		Port:  t.Name + ".Uplink",
		Level: t.Occupancy,
		Cap:   t.network.params.TerminalBufferSize,
	}}
}

// Finalize records the delivery statistics of the terminal.
func (t *Terminal) Finalize(_ sim.VTimeInSec) {
	if t.recorder == nil {
		return
	}

	entry := TerminalStatsEntry{
		TerminalID:     t.ID,
		SwitchID:       t.SwitchID,
		PacketsSent:    t.PacketCounter,
		PacketsRecv:    t.PacketsFinished,
		MaxLatency:     float64(t.MaxLatency),
		FinalOccupancy: t.Occupancy,
	}

	if t.PacketsFinished > 0 {
		n := float64(t.PacketsFinished)
		entry.AvgHops = float64(t.TotalHops) / n
		entry.AvgLatency = float64(t.TotalLatency) / n
	}

	t.recorder.InsertData(TerminalStatsTable, entry)
}

func maxTime(a, b sim.VTimeInSec) sim.VTimeInSec {
	if a > b {
		return a
	}

	return b
}
