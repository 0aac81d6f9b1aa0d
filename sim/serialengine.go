package sim

import (
	"fmt"
	"log"
	"reflect"
	"sync"
)

const fossilCollectInterval = 1024

type lpRecord struct {
	id      LPID
	name    string
	handler Handler
	rng     *ReversibleStream
	sendSeq uint64
}

// processedEvent is what the engine remembers about a handled event so that
// it can be rolled back.
type processedEvent struct {
	evt      *Event
	undo     Undo
	children []*Event
	sendSeq  uint64
	draws    uint64
}

// lpKernel is the Kernel handed to a logical process while it handles one
// event.
type lpKernel struct {
	engine    *SerialEngine
	lp        *lpRecord
	now       VTimeInSec
	reversing bool
	scheduled []*Event
}

func (k *lpKernel) CurrentTime() VTimeInSec {
	return k.now
}

func (k *lpKernel) Self() LPID {
	return k.lp.id
}

func (k *lpKernel) NumLPs() int {
	return len(k.engine.lps)
}

func (k *lpKernel) RNG() RandStream {
	return k.lp.rng
}

func (k *lpKernel) Schedule(dst LPID, delay VTimeInSec, msg Msg) {
	if k.reversing {
		log.Panicf("%s scheduled an event in a reverse handler", k.lp.name)
	}

	if delay < 0 {
		log.Panicf("%s scheduled %T with negative delay %.10f",
			k.lp.name, msg, delay)
	}

	k.engine.lpMustExist(dst)

	evt := &Event{
		ID:   GetIDGenerator().Generate(),
		time: k.now + delay,
		src:  k.lp.id,
		dst:  dst,
		seq:  k.lp.sendSeq,
		msg:  msg,
	}
	k.lp.sendSeq++
	k.scheduled = append(k.scheduled, evt)
	k.engine.queue.Push(evt)
}

// EngineStats summarizes the work done by an engine.
type EngineStats struct {
	Processed  uint64 `json:"processed"`
	RolledBack uint64 `json:"rolled_back"`
	Pending    int    `json:"pending"`
	History    int    `json:"history"`
}

// A SerialEngine is an Engine that always run events one after another.
//
// It keeps the history of processed events so that an arbitrary suffix can
// be rolled back, the way an optimistic kernel would after a straggler. In
// reverse-check mode, every event is handled, reversed, compared against the
// checkpoint taken before it and handled again.
type SerialEngine struct {
	HookableBase

	timeLock sync.RWMutex
	time     VTimeInSec
	queue    EventQueue

	seed       uint64
	lps        []*lpRecord
	initialSeq uint64
	endTime    VTimeInSec

	keepHistory   bool
	historyWindow VTimeInSec
	history       []processedEvent
	reverseCheck  bool

	statsLock sync.Mutex
	stats     EngineStats

	isPaused     bool
	isPausedLock sync.Mutex
	pauseLock    sync.Mutex

	singleRunLock sync.Mutex

	simulationEndHandlers []SimulationEndHandler
}

// NewSerialEngine creates a SerialEngine
func NewSerialEngine() *SerialEngine {
	e := new(SerialEngine)

	e.queue = NewEventQueue()
	e.seed = 1

	return e
}

// WithSeed sets the seed that all the per-LP random streams derive from. It
// must be called before any logical process is registered.
func (e *SerialEngine) WithSeed(seed uint64) *SerialEngine {
	if len(e.lps) > 0 {
		log.Panic("cannot change the seed after registering logical processes")
	}

	e.seed = seed
	return e
}

// WithEndTime stops the simulation before the first event later than t. A
// zero end time runs until no event is left.
func (e *SerialEngine) WithEndTime(t VTimeInSec) *SerialEngine {
	e.endTime = t
	return e
}

// WithRollback keeps the processed events younger than window so that they
// can be rolled back. A zero window keeps everything.
func (e *SerialEngine) WithRollback(window VTimeInSec) *SerialEngine {
	e.keepHistory = true
	e.historyWindow = window
	return e
}

// WithReverseCheck turns on reverse-check mode.
func (e *SerialEngine) WithReverseCheck() *SerialEngine {
	e.reverseCheck = true
	return e
}

// RegisterLP adds a logical process.
func (e *SerialEngine) RegisterLP(name string, h Handler) LPID {
	id := LPID(len(e.lps))
	e.lps = append(e.lps, &lpRecord{
		id:      id,
		name:    name,
		handler: h,
		rng:     NewReversibleStream(DeriveSeed(e.seed, id)),
	})

	return id
}

// LPName returns the name a logical process was registered with.
func (e *SerialEngine) LPName(id LPID) string {
	e.lpMustExist(id)
	return e.lps[id].name
}

// NumLPs returns the number of registered logical processes.
func (e *SerialEngine) NumLPs() int {
	return len(e.lps)
}

// Handler returns the handler of a logical process.
func (e *SerialEngine) Handler(id LPID) Handler {
	e.lpMustExist(id)
	return e.lps[id].handler
}

// RNG returns the random stream of a logical process. It is exposed for
// inspection; handlers must use the stream from their Kernel.
func (e *SerialEngine) RNG(id LPID) RandStream {
	e.lpMustExist(id)
	return e.lps[id].rng
}

func (e *SerialEngine) lpMustExist(id LPID) {
	if id < 0 || int(id) >= len(e.lps) {
		log.Panicf("logical process %d does not exist", id)
	}
}

// ScheduleInitial injects a message from outside of any logical process.
func (e *SerialEngine) ScheduleInitial(dst LPID, t VTimeInSec, msg Msg) {
	e.lpMustExist(dst)

	now := e.readNow()
	if t < now {
		log.Panic("scheduling an event earlier than current time")
	}

	evt := &Event{
		ID:   GetIDGenerator().Generate(),
		time: t,
		src:  -1,
		dst:  dst,
		seq:  e.initialSeq,
		msg:  msg,
	}
	e.initialSeq++
	e.queue.Push(evt)
}

func (e *SerialEngine) readNow() VTimeInSec {
	e.timeLock.RLock()
	t := e.time
	e.timeLock.RUnlock()
	return t
}

func (e *SerialEngine) writeNow(t VTimeInSec) {
	e.timeLock.Lock()
	e.time = t
	e.timeLock.Unlock()
}

// Run processes all the events scheduled in the SerialEngine. It stops at
// the first handler error and returns it.
func (e *SerialEngine) Run() error {
	e.singleRunLock.Lock()
	defer e.singleRunLock.Unlock()

	for {
		e.pauseLock.Lock()

		evt := e.nextEvent()
		if evt == nil {
			e.pauseLock.Unlock()
			return nil
		}

		err := e.process(evt)

		e.pauseLock.Unlock()

		if err != nil {
			return err
		}
	}
}

// RunUntil processes the events that happen no later than t.
func (e *SerialEngine) RunUntil(t VTimeInSec) error {
	saved := e.endTime
	e.endTime = t
	defer func() { e.endTime = saved }()

	return e.Run()
}

// HasPendingEvents tells if there is any live event left in the queue.
func (e *SerialEngine) HasPendingEvents() bool {
	for e.queue.Len() > 0 {
		if !e.queue.Peek().cancelled {
			return true
		}
		e.queue.Pop()
	}

	return false
}

// nextEvent pops the next live event, or returns nil if the simulation is
// over.
func (e *SerialEngine) nextEvent() *Event {
	for e.queue.Len() > 0 {
		evt := e.queue.Peek()
		if evt.cancelled {
			e.queue.Pop()
			continue
		}

		if e.endTime > 0 && evt.time > e.endTime {
			return nil
		}

		return e.queue.Pop()
	}

	return nil
}

func (e *SerialEngine) process(evt *Event) error {
	now := e.readNow()
	if evt.time < now {
		log.Panicf(
			"cannot run event in the past, evt %s @ %.10f, now %.10f",
			reflect.TypeOf(evt.msg), evt.time, now,
		)
	}
	e.writeNow(evt.time)

	lp := e.lps[evt.dst]

	hookCtx := HookCtx{
		Domain: e,
		Pos:    HookPosBeforeEvent,
		Item:   evt,
		Detail: lp.name,
	}
	e.InvokeHook(hookCtx)

	var before any
	checkpointer, canCheckpoint := lp.handler.(Checkpointer)
	if e.reverseCheck && canCheckpoint {
		before = checkpointer.Checkpoint()
	}

	rec, err := e.forward(lp, evt)
	if err != nil {
		return fmt.Errorf("%s handling %T at %.10f: %w",
			lp.name, evt.msg, evt.time, err)
	}

	if e.reverseCheck {
		e.reverse(rec)

		if canCheckpoint {
			after := checkpointer.Checkpoint()
			if !reflect.DeepEqual(before, after) {
				log.Panicf("reversing %T did not restore %s:\n%+v\n%+v",
					evt.msg, lp.name, before, after)
			}
		}

		rec, err = e.forward(lp, evt)
		if err != nil {
			return fmt.Errorf("%s re-handling %T at %.10f: %w",
				lp.name, evt.msg, evt.time, err)
		}
	}

	if e.keepHistory {
		e.history = append(e.history, rec)
	}

	e.statsLock.Lock()
	e.stats.Processed++
	processed := e.stats.Processed
	e.statsLock.Unlock()

	hookCtx.Pos = HookPosAfterEvent
	e.InvokeHook(hookCtx)

	if e.keepHistory && e.historyWindow > 0 &&
		processed%fossilCollectInterval == 0 {
		e.FossilCollect(evt.time - e.historyWindow)
	}

	return nil
}

func (e *SerialEngine) forward(lp *lpRecord, evt *Event) (processedEvent, error) {
	rec := processedEvent{
		evt:     evt,
		sendSeq: lp.sendSeq,
		draws:   lp.rng.Count(),
	}

	k := &lpKernel{engine: e, lp: lp, now: evt.time}
	undo, err := lp.handler.Handle(k, evt.msg)
	if err != nil {
		for _, c := range k.scheduled {
			c.cancelled = true
		}
		lp.sendSeq = rec.sendSeq
		for lp.rng.Count() > rec.draws {
			lp.rng.Reverse()
		}

		return rec, err
	}

	rec.undo = undo
	rec.children = k.scheduled

	return rec, nil
}

// reverse undoes a handled event and invalidates everything it scheduled.
func (e *SerialEngine) reverse(rec processedEvent) {
	lp := e.lps[rec.evt.dst]

	k := &lpKernel{engine: e, lp: lp, now: rec.evt.time, reversing: true}
	lp.handler.Reverse(k, rec.evt.msg, rec.undo)

	for _, c := range rec.children {
		c.cancelled = true
	}
	lp.sendSeq = rec.sendSeq

	if lp.rng.Count() != rec.draws {
		log.Panicf("reversing %T on %s left %d random draws, expected %d",
			rec.evt.msg, lp.name, lp.rng.Count(), rec.draws)
	}

	e.InvokeHook(HookCtx{
		Domain: e,
		Pos:    HookPosReverseEvent,
		Item:   rec.evt,
		Detail: lp.name,
	})
}

// Rollback undoes every processed event later than t, in reverse order, and
// puts them back into the queue. Events they scheduled are cancelled. It must
// not be called while Run is processing events.
func (e *SerialEngine) Rollback(t VTimeInSec) error {
	if !e.keepHistory {
		return fmt.Errorf("rollback is not enabled")
	}

	if len(e.history) > 0 && e.history[0].evt.time > t {
		return fmt.Errorf("cannot roll back to %.10f, history starts at %.10f",
			t, e.history[0].evt.time)
	}

	n := len(e.history)
	for n > 0 && e.history[n-1].evt.time > t {
		rec := e.history[n-1]
		e.history[n-1] = processedEvent{}
		n--

		e.reverse(rec)
		rec.evt.cancelled = false
		e.queue.Push(rec.evt)

		e.statsLock.Lock()
		e.stats.RolledBack++
		e.statsLock.Unlock()
	}
	e.history = e.history[:n]

	if e.readNow() > t {
		e.writeNow(t)
	}

	return nil
}

// FossilCollect forgets processed events earlier than gvt. They can no longer
// be rolled back.
func (e *SerialEngine) FossilCollect(gvt VTimeInSec) {
	i := 0
	for i < len(e.history) && e.history[i].evt.time < gvt {
		i++
	}

	if i == 0 {
		return
	}

	remaining := make([]processedEvent, len(e.history)-i)
	copy(remaining, e.history[i:])
	e.history = remaining
}

// Stats returns the counters of the engine.
func (e *SerialEngine) Stats() EngineStats {
	e.statsLock.Lock()
	defer e.statsLock.Unlock()

	s := e.stats
	s.Pending = e.queue.Len()
	s.History = len(e.history)

	return s
}

// Pause prevents the SerialEngine to trigger more events.
func (e *SerialEngine) Pause() {
	e.isPausedLock.Lock()
	defer e.isPausedLock.Unlock()

	if e.isPaused {
		return
	}

	e.pauseLock.Lock()
	e.isPaused = true
}

// Continue allows the SerialEngine to trigger more events.
func (e *SerialEngine) Continue() {
	e.isPausedLock.Lock()
	defer e.isPausedLock.Unlock()

	if !e.isPaused {
		return
	}

	e.pauseLock.Unlock()
	e.isPaused = false
}

// CurrentTime returns the current time at which the engine is at.
// Specifically, the run time of the current event.
func (e *SerialEngine) CurrentTime() VTimeInSec {
	return e.readNow()
}

// RegisterSimulationEndHandler registers a handler to be called by Finished.
func (e *SerialEngine) RegisterSimulationEndHandler(
	handler SimulationEndHandler,
) {
	e.simulationEndHandlers = append(e.simulationEndHandlers, handler)
}

// Finished should be called after the simulation ends. It finalizes every
// logical process once, in registration order, and then calls all the
// registered SimulationEndHandler.
func (e *SerialEngine) Finished() {
	now := e.readNow()

	for _, lp := range e.lps {
		if f, ok := lp.handler.(Finalizer); ok {
			f.Finalize(now)
		}
	}

	for _, h := range e.simulationEndHandlers {
		h.Handle(now)
	}
}
