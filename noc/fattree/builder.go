package fattree

import (
	"fmt"

	"github.com/sarchlab/fattree/datarecording"
	"github.com/sarchlab/fattree/sim"
)

// Tables written to the recorder when the simulation ends.
const (
	LinkTrafficTable   = "link_traffic"
	TerminalStatsTable = "terminal_stats"
)

// A Network is a fat tree whose terminals and switches are registered as
// logical processes of an engine.
type Network struct {
	params *Params

	Terminals []*Terminal
	Switches  []*Switch

	terminalLPs []sim.LPID
	switchLPs   []sim.LPID
}

// Params returns the validated parameters of the network.
func (n *Network) Params() *Params {
	return n.params
}

// TerminalLP returns the logical process of a terminal.
func (n *Network) TerminalLP(terminalID int) sim.LPID {
	return n.terminalLPs[terminalID]
}

// SwitchLP returns the logical process of a switch.
func (n *Network) SwitchLP(switchID int) sim.LPID {
	return n.switchLPs[switchID]
}

// SetDispatcher sets the logical process that receives the idle
// notifications of a terminal. It must be called before the simulation
// starts.
func (n *Network) SetDispatcher(terminalID int, lp sim.LPID) {
	n.Terminals[terminalID].dispatcher = lp
}

// Builder can build fat-tree networks.
type Builder struct {
	engine   sim.Engine
	params   *Params
	recorder datarecording.DataRecorder
	name     string
}

// MakeBuilder creates a builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		name: "FatTree",
	}
}

// WithEngine sets the engine that the logical processes are registered to.
func (b Builder) WithEngine(engine sim.Engine) Builder {
	b.engine = engine
	return b
}

// WithParams sets the parameters of the tree.
func (b Builder) WithParams(p *Params) Builder {
	b.params = p
	return b
}

// WithRecorder sets the recorder that the statistics are written to when
// the simulation ends.
func (b Builder) WithRecorder(r datarecording.DataRecorder) Builder {
	b.recorder = r
	return b
}

// WithName sets the prefix of the logical process names.
func (b Builder) WithName(name string) Builder {
	b.name = name
	return b
}

// Build validates the parameters and registers all the terminals, and then
// all the switches.
func (b Builder) Build() (*Network, error) {
	b.engineMustBeGiven()
	b.paramsMustBeGiven()

	if err := b.params.Validate(); err != nil {
		return nil, err
	}

	p := b.params
	n := &Network{params: p}

	layouts := make([]SwitchLayout, p.TotalSwitches())
	for id := range layouts {
		l, err := BuildSwitchLayout(p, id)
		if err != nil {
			return nil, err
		}

		layouts[id] = l
	}

	for id := 0; id < p.NumTerminals(); id++ {
		t := &Terminal{
			Name:       fmt.Sprintf("%s.Terminal[%d]", b.name, id),
			ID:         id,
			SwitchID:   p.TerminalSwitch(id),
			network:    n,
			dispatcher: -1,
			recorder:   b.recorder,
		}

		n.Terminals = append(n.Terminals, t)
		n.terminalLPs = append(n.terminalLPs, b.engine.RegisterLP(t.Name, t))
	}

	for id, l := range layouts {
		s := &Switch{
			SwitchLayout: l,
			SwitchState:  newSwitchState(l.Radix),
			Name:         fmt.Sprintf("%s.Switch[%d]", b.name, id),
			network:      n,
			recorder:     b.recorder,
		}

		n.Switches = append(n.Switches, s)
		n.switchLPs = append(n.switchLPs, b.engine.RegisterLP(s.Name, s))
	}

	if b.recorder != nil {
		b.recorder.CreateTable(LinkTrafficTable, LinkTrafficEntry{})
		b.recorder.CreateTable(TerminalStatsTable, TerminalStatsEntry{})
	}

	return n, nil
}

func (b Builder) engineMustBeGiven() {
	if b.engine == nil {
		panic("engine is not given")
	}
}

func (b Builder) paramsMustBeGiven() {
	if b.params == nil {
		panic("fat-tree parameters are not given")
	}
}
