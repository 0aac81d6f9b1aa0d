package fattree

import "github.com/sarchlab/fattree/sim"

// localLatencyJitter bounds the random part of the time it takes to hand a
// message to a local network interface.
const localLatencyJitter = 0.0001

// A PacketRequest is what a workload asks the network to deliver.
type PacketRequest struct {
	Category string

	SrcTerminal int
	DstTerminal int
	FinalDest   sim.LPID

	Size     int
	IsPull   bool
	PullSize int

	// Offset delays the packet in addition to the local latency.
	Offset sim.VTimeInSec

	// IsLast marks the last packet of a message. Only the last packet
	// carries the remote and the local completion events.
	IsLast          bool
	RemoteEventSize int
	RemoteEvent     sim.Msg
	LocalEventSize  int
	LocalEvent      sim.Msg
}

// InjectPacket hands a packet to its source terminal. It must be called from
// a handler of the sending logical process, draws one random number and
// returns the delay before the terminal sees the packet.
func (n *Network) InjectPacket(k sim.Kernel, req PacketRequest) sim.VTimeInSec {
	latency := n.localLatency(k)

	pkt := Packet{
		Category:    req.Category,
		SrcTerminal: req.SrcTerminal,
		DstTerminal: req.DstTerminal,
		Sender:      k.Self(),
		FinalDest:   req.FinalDest,
		Size:        req.Size,
		IsPull:      req.IsPull,
		PullSize:    req.PullSize,
	}

	if pkt.Size == 0 {
		pkt.Size = n.params.PacketSize
	}

	if req.IsLast {
		pkt.RemoteEventSize = req.RemoteEventSize
		pkt.RemoteEvent = req.RemoteEvent
		pkt.LocalEventSize = req.LocalEventSize
		pkt.LocalEvent = req.LocalEvent
	}

	k.Schedule(n.TerminalLP(req.SrcTerminal), latency+req.Offset,
		GenerateMsg{Packet: pkt})

	return latency
}

// ReverseInjectPacket undoes InjectPacket.
func (n *Network) ReverseInjectPacket(k sim.Kernel) {
	n.reverseLocalLatency(k)
}

func (n *Network) localLatency(k sim.Kernel) sim.VTimeInSec {
	return sim.VTimeInSec(n.params.Lookahead +
		k.RNG().Unif()*localLatencyJitter)
}

func (n *Network) reverseLocalLatency(k sim.Kernel) {
	k.RNG().Reverse()
}
