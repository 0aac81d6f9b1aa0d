package fattree

import "github.com/sarchlab/fattree/sim"

// A Packet is the unit of data that travels through the tree. It is copied
// into every message and never modified after being scheduled.
type Packet struct {
	ID       uint64
	Category string

	SrcTerminal int
	DstTerminal int

	// Sender receives the local completion event; FinalDest receives the
	// remote event.
	Sender    sim.LPID
	FinalDest sim.LPID

	Size     int
	IsPull   bool
	PullSize int

	RemoteEventSize int
	RemoteEvent     sim.Msg
	LocalEventSize  int
	LocalEvent      sim.Msg

	InjectedAt sim.VTimeInSec
	Hops       int
}

// HopInfo describes the previous hop of a packet, so that the receiver can
// return a credit on the right port.
type HopInfo struct {
	LastHop PeerKind

	// Port is the sender's output port.
	Port int

	// Offset is the sender's position inside the group of parallel links.
	Offset int

	// SenderID is the terminal ID or the global switch ID of the sender.
	SenderID int
}

// GenerateMsg asks a terminal to create a packet.
type GenerateMsg struct {
	Packet Packet
}

// TerminalSendMsg asks a terminal to put a generated packet on its link.
type TerminalSendMsg struct {
	Packet Packet
}

// TerminalArriveMsg delivers a packet to its destination terminal.
type TerminalArriveMsg struct {
	Packet Packet
	Hop    HopInfo
}

// TerminalBufferMsg is a credit returned to a terminal.
type TerminalBufferMsg struct {
	PacketID uint64
}

// SwitchArriveMsg delivers a packet to a switch.
type SwitchArriveMsg struct {
	Packet Packet
	Hop    HopInfo
}

// SwitchSendMsg asks a switch to forward a packet it has received.
type SwitchSendMsg struct {
	Packet Packet
}

// SwitchBufferMsg is a credit returned to a switch for one of its ports.
type SwitchBufferMsg struct {
	PacketID uint64
	Port     int
}

// IdleMsg tells the dispatcher of a terminal when the terminal can accept
// more work.
type IdleMsg struct {
	Terminal int
	FreeAt   sim.VTimeInSec
}

// terminalSendUndo restores a terminal after a send.
type terminalSendUndo struct {
	availableAt sim.VTimeInSec
}

// terminalArriveUndo restores a terminal after a delivery.
type terminalArriveUndo struct {
	nextCreditAt sim.VTimeInSec
	totalLatency sim.VTimeInSec
	maxLatency   sim.VTimeInSec
}

// switchArriveUndo restores a switch after it returned a credit.
type switchArriveUndo struct {
	creditPort   int
	nextCreditAt sim.VTimeInSec
}

// switchSendUndo restores a switch after it forwarded a packet.
type switchSendUndo struct {
	port        int
	availableAt sim.VTimeInSec
}
