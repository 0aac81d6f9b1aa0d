package trafficgen

import (
	"log"

	"github.com/sarchlab/fattree/monitoring"
	"github.com/sarchlab/fattree/noc/fattree"
	"github.com/sarchlab/fattree/sim"
)

// InjectMsg is the timer that makes a source inject its next packet.
type InjectMsg struct{}

// RemoteCompletion is delivered to the source attached to the destination
// terminal when the last packet of a message arrives.
type RemoteCompletion struct {
	SrcTerminal int
	Index       int
}

// LocalCompletion is delivered back to the sending source when the last
// packet of a message leaves its terminal.
type LocalCompletion struct {
	DstTerminal int
	Index       int
}

// SourceState is the mutable state of a source.
type SourceState struct {
	Injected  int
	Delivered int
	LocalDone int
	IdleSeen  int
	FreeAt    sim.VTimeInSec
}

// A Source injects the packets of one terminal and receives the completions
// addressed to it.
type Source struct {
	SourceState

	Name     string
	Terminal int

	network      *fattree.Network
	workload     *Workload
	destinations []int
	sources      []sim.LPID
	progress     *monitoring.ProgressBar
}

type idleUndo struct {
	freeAt sim.VTimeInSec
}

// Checkpoint returns a copy of the state.
func (s *Source) Checkpoint() any {
	return s.SourceState
}

// Done tells if the source has injected all its packets.
func (s *Source) Done() bool {
	return s.Injected >= len(s.destinations)
}

// Handle applies a message to the source.
func (s *Source) Handle(k sim.Kernel, msg sim.Msg) (sim.Undo, error) {
	switch msg := msg.(type) {
	case InjectMsg:
		return s.inject(k), nil
	case RemoteCompletion:
		s.Delivered++
		if s.progress != nil {
			s.progress.IncrementFinished(1)
		}
		return nil, nil
	case LocalCompletion:
		s.LocalDone++
		return nil, nil
	case fattree.IdleMsg:
		undo := idleUndo{freeAt: s.FreeAt}
		s.IdleSeen++
		s.FreeAt = msg.FreeAt
		return undo, nil
	default:
		return nil, &fattree.UnsupportedMsgError{LP: s.Name, Msg: msg}
	}
}

// Reverse undoes a message applied by Handle.
func (s *Source) Reverse(k sim.Kernel, msg sim.Msg, undo sim.Undo) {
	switch msg := msg.(type) {
	case InjectMsg:
		if undo.(bool) {
			s.reverseInject(k)
		}
	case RemoteCompletion:
		s.Delivered--
		if s.progress != nil {
			s.progress.DecrementFinished(1)
		}
	case LocalCompletion:
		s.LocalDone--
	case fattree.IdleMsg:
		s.IdleSeen--
		s.FreeAt = undo.(idleUndo).freeAt
	default:
		log.Panicf("%s cannot reverse %T", s.Name, msg)
	}
}

// inject returns whether a packet was injected.
func (s *Source) inject(k sim.Kernel) bool {
	if s.Done() {
		return false
	}

	index := s.Injected
	dst := s.destinations[index]
	isLast := (index+1)%s.workload.MessagePackets == 0 ||
		index+1 == len(s.destinations)

	req := fattree.PacketRequest{
		Category:    "synthetic",
		SrcTerminal: s.Terminal,
		DstTerminal: dst,
		FinalDest:   s.sources[dst],
		IsLast:      isLast,
	}

	if isLast {
		req.RemoteEventSize = s.workload.RemoteEventSize
		req.RemoteEvent = RemoteCompletion{SrcTerminal: s.Terminal, Index: index}
		req.LocalEventSize = s.workload.LocalEventSize
		req.LocalEvent = LocalCompletion{DstTerminal: dst, Index: index}
	}

	s.network.InjectPacket(k, req)
	s.Injected++

	if !s.Done() {
		gap := k.RNG().Exponential(s.workload.MeanGap)
		k.Schedule(k.Self(), sim.VTimeInSec(gap), InjectMsg{})
	}

	return true
}

func (s *Source) reverseInject(k sim.Kernel) {
	if !s.Done() {
		k.RNG().Reverse()
	}

	s.Injected--
	s.network.ReverseInjectPacket(k)
}
