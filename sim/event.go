package sim

// VTimeInSec defines the time in the simulated space. The fat-tree model
// measures it in nanoseconds; the kernel does not care about the unit.
type VTimeInSec float64

// LPID identifies a logical process registered with an engine.
type LPID int

// Msg is the payload carried by an event. Models define their own variants.
type Msg interface{}

// Undo is the token a forward handler returns so that its paired reverse
// handler can restore the exact pre-event state.
type Undo interface{}

// An Event is a message delivered to a logical process at a virtual time.
//
// Events are created by the kernel when a logical process schedules a
// message. The payload is never mutated after scheduling.
type Event struct {
	ID string

	time VTimeInSec
	src  LPID
	dst  LPID
	seq  uint64
	msg  Msg

	cancelled bool
}

// Time returns the time that the event happens.
func (e *Event) Time() VTimeInSec {
	return e.time
}

// Src returns the logical process that scheduled the event. Events injected
// from outside of any logical process have a negative source.
func (e *Event) Src() LPID {
	return e.src
}

// Dst returns the logical process that handles the event.
func (e *Event) Dst() LPID {
	return e.dst
}

// Msg returns the payload of the event.
func (e *Event) Msg() Msg {
	return e.msg
}

// Cancelled tells if the event has been invalidated by a rollback.
func (e *Event) Cancelled() bool {
	return e.cancelled
}

// before defines the kernel-owned total order of events. Ties in time are
// broken by the scheduling logical process and its send sequence, which are
// restored on rollback, so that re-execution reproduces the same order.
func (e *Event) before(other *Event) bool {
	if e.time != other.time {
		return e.time < other.time
	}

	if e.src != other.src {
		return e.src < other.src
	}

	return e.seq < other.seq
}

// A Handler defines the behavior of a logical process.
//
// Handle applies the forward transition of a message and returns the undo
// token. Reverse must restore every field Handle changed, using only the
// message and the token, and must undo exactly as many random draws as Handle
// made. A Handle that returns an error must not have changed any state.
type Handler interface {
	Handle(k Kernel, msg Msg) (Undo, error)
	Reverse(k Kernel, msg Msg, undo Undo)
}

// A Finalizer is a logical process that wants to be notified when the
// simulation ends.
type Finalizer interface {
	Finalize(now VTimeInSec)
}

// A Checkpointer can return a deep copy of its state. The engine compares
// checkpoints to verify reverse handlers.
type Checkpointer interface {
	Checkpoint() any
}
