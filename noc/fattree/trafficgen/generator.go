package trafficgen

import (
	"fmt"

	"github.com/sarchlab/fattree/monitoring"
	"github.com/sarchlab/fattree/noc/fattree"
	"github.com/sarchlab/fattree/sim"
)

// A Generator owns one source per terminal of a network.
type Generator struct {
	Sources []*Source
	LPs     []sim.LPID

	workload Workload
	progress *monitoring.ProgressBar
}

// Workload returns the workload with its defaults filled.
func (g *Generator) Workload() Workload {
	return g.workload
}

// Injected returns the number of packets injected so far.
func (g *Generator) Injected() int {
	n := 0
	for _, s := range g.Sources {
		n += s.Injected
	}

	return n
}

// Delivered returns the number of messages whose last packet arrived.
func (g *Generator) Delivered() int {
	n := 0
	for _, s := range g.Sources {
		n += s.Delivered
	}

	return n
}

// ExpectedMessages returns the number of messages the workload sends.
func (g *Generator) ExpectedMessages() int {
	n := 0
	for _, s := range g.Sources {
		n += s.numMessages()
	}

	return n
}

func (s *Source) numMessages() int {
	total := len(s.destinations)
	per := s.workload.MessagePackets

	return (total + per - 1) / per
}

// Builder can build generators.
type Builder struct {
	engine   sim.Engine
	network  *fattree.Network
	workload Workload
	monitor  *monitoring.Monitor
	name     string
	seed     uint64
}

// MakeBuilder creates a builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		name: "TrafficGen",
		seed: 1,
	}
}

// WithSeed sets the seed the destinations are drawn with.
func (b Builder) WithSeed(seed uint64) Builder {
	b.seed = seed
	return b
}

// WithEngine sets the engine that the sources are registered to.
func (b Builder) WithEngine(engine sim.Engine) Builder {
	b.engine = engine
	return b
}

// WithNetwork sets the network to inject into.
func (b Builder) WithNetwork(n *fattree.Network) Builder {
	b.network = n
	return b
}

// WithWorkload sets the workload.
func (b Builder) WithWorkload(w Workload) Builder {
	b.workload = w
	return b
}

// WithMonitor makes the generator report the delivered messages on a
// progress bar.
func (b Builder) WithMonitor(m *monitoring.Monitor) Builder {
	b.monitor = m
	return b
}

// Build registers one source per terminal, makes it the dispatcher of its
// terminal and schedules its first injection at time 0.
func (b Builder) Build() (*Generator, error) {
	b.engineMustBeGiven()
	b.networkMustBeGiven()

	numTerminals := b.network.Params().NumTerminals()

	w := b.workload
	if err := w.Validate(numTerminals); err != nil {
		return nil, err
	}

	g := &Generator{workload: w}

	for t := 0; t < numTerminals; t++ {
		s := &Source{
			Name:         fmt.Sprintf("%s.Source[%d]", b.name, t),
			Terminal:     t,
			network:      b.network,
			workload:     &w,
			destinations: w.Destinations(b.seed, numTerminals, t),
		}

		lp := b.engine.RegisterLP(s.Name, s)
		b.network.SetDispatcher(t, lp)

		g.Sources = append(g.Sources, s)
		g.LPs = append(g.LPs, lp)
	}

	if b.monitor != nil {
		g.progress = b.monitor.CreateProgressBar(
			"Delivered messages", uint64(g.ExpectedMessages()))
	}

	for i, s := range g.Sources {
		s.sources = g.LPs
		s.progress = g.progress

		if !s.Done() {
			b.engine.ScheduleInitial(g.LPs[i], 0, InjectMsg{})
		}
	}

	return g, nil
}

func (b Builder) engineMustBeGiven() {
	if b.engine == nil {
		panic("engine is not given")
	}
}

func (b Builder) networkMustBeGiven() {
	if b.network == nil {
		panic("network is not given")
	}
}
