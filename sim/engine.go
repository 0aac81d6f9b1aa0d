package sim

// TimeTeller can be used to get the current time.
type TimeTeller interface {
	CurrentTime() VTimeInSec
}

// A Kernel is the view of the engine that a logical process receives while
// one of its handlers runs.
type Kernel interface {
	TimeTeller

	// Self returns the logical process that is handling the event.
	Self() LPID

	// NumLPs returns the number of logical processes in the simulation.
	NumLPs() int

	// Schedule delivers msg to dst after delay. The delay must not be
	// negative.
	Schedule(dst LPID, delay VTimeInSec, msg Msg)

	// RNG returns the random stream owned by the logical process.
	RNG() RandStream
}

// A SimulationEndHandler is a handler that is called after the simulation ends.
type SimulationEndHandler interface {
	Handle(now VTimeInSec)
}

// An Engine is a unit that keeps the discrete event simulation run.
type Engine interface {
	Hookable
	TimeTeller

	// RegisterLP adds a logical process and returns its ID. IDs are dense
	// and assigned in registration order.
	RegisterLP(name string, h Handler) LPID

	// LPName returns the name a logical process was registered with.
	LPName(id LPID) string

	// ScheduleInitial injects a message from outside of any logical process,
	// typically before the simulation starts.
	ScheduleInitial(dst LPID, t VTimeInSec, msg Msg)

	// Run will process all the events until the simulation finishes
	Run() error

	// Pause will pause the simulation until continue is called.
	Pause()

	// Continue will continue the paused simulation
	Continue()

	// RegisterSimulationEndHandler registers a handler that perform some
	// actions after the simulation is finished.
	RegisterSimulationEndHandler(handler SimulationEndHandler)

	// Finished finalizes all the logical processes and invokes all the
	// registered SimulationEndHandler.
	Finished()
}
