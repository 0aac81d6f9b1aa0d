package fattree

import "fmt"

// PeerKind tells what is connected to a port.
type PeerKind int

// Kinds of peers.
const (
	PeerNone PeerKind = iota
	PeerTerminal
	PeerSwitch
)

func (k PeerKind) String() string {
	switch k {
	case PeerTerminal:
		return "terminal"
	case PeerSwitch:
		return "switch"
	default:
		return "none"
	}
}

// A Peer is the device at the other end of a port. Terminals are identified
// by terminal ID and switches by global switch ID.
type Peer struct {
	Kind PeerKind
	ID   int
}

// SwitchLayout is the static wiring of one switch.
//
// Ports [0, NumLocal) go down; each down neighbour in [StartLocal, EndLocal)
// owns ConPerLocal consecutive ports. Ports [NumLocal, NumPorts) go up; each
// up neighbour in [StartUp, EndUp) owns ConPerUp consecutive ports.
type SwitchLayout struct {
	ID    int
	Level int
	Radix int

	NumLocal    int
	NumPorts    int
	StartLocal  int
	EndLocal    int
	ConPerLocal int
	StartUp     int
	EndUp       int
	ConPerUp    int

	Peers []Peer
}

// BuildSwitchLayout derives the wiring of a switch from the parameters.
func BuildSwitchLayout(p *Params, switchID int) (SwitchLayout, error) {
	p.mustBeValidated()

	l := SwitchLayout{ID: switchID, Level: p.LevelOf(switchID)}
	if l.Level < 0 {
		return l, configErrorf("switch_count",
			"switch %d does not exist", switchID)
	}
	l.Radix = p.SwitchRadix[l.Level]

	switch l.Level {
	case 0:
		l.buildLevel0(p)
	case 1:
		l.buildLevel1(p)
	case 2:
		l.buildLevel2(p)
	}

	if err := l.validate(); err != nil {
		return l, err
	}

	l.connect()

	return l, nil
}

func (l *SwitchLayout) buildLevel0(p *Params) {
	half0 := p.TerminalsPerSwitch()

	l.NumLocal = half0
	l.StartLocal = l.ID * half0
	l.EndLocal = l.StartLocal + half0
	l.ConPerLocal = 1

	l1Set := l.StartLocal / p.L1TermSize()
	l.ConPerUp = half0 / p.L1SetSize
	l.StartUp = p.NumSwitches[0] + l1Set*p.L1SetSize
	l.EndUp = l.StartUp + p.L1SetSize
	l.NumPorts = l.NumLocal + p.L1SetSize*l.ConPerUp
}

func (l *SwitchLayout) buildLevel1(p *Params) {
	half0 := p.TerminalsPerSwitch()
	l.ConPerLocal = half0 / p.L1SetSize

	if p.NumLevels == 2 {
		l.StartLocal = 0
		l.EndLocal = p.NumSwitches[0]
		l.NumLocal = p.NumSwitches[0] * l.ConPerLocal
		l.NumPorts = l.NumLocal
		l.StartUp = p.NumSwitches[0] + p.NumSwitches[1]
		l.EndUp = l.StartUp

		return
	}

	l0SetSize := p.L1TermSize() / half0
	group := (l.ID - p.NumSwitches[0]) / p.L1SetSize
	l.StartLocal = group * l0SetSize
	l.EndLocal = l.StartLocal + l0SetSize
	l.NumLocal = l0SetSize * l.ConPerLocal

	upPorts := p.SwitchRadix[1] / 2
	l.ConPerUp = upPorts / p.NumSwitches[2]
	l.StartUp = p.NumSwitches[0] + p.NumSwitches[1]
	l.EndUp = l.StartUp + p.NumSwitches[2]
	l.NumPorts = l.NumLocal + p.NumSwitches[2]*l.ConPerUp
}

func (l *SwitchLayout) buildLevel2(p *Params) {
	l.ConPerLocal = p.NumTerminals() / (p.NumSwitches[1] * p.NumSwitches[2])
	l.StartLocal = p.NumSwitches[0]
	l.EndLocal = l.StartLocal + p.NumSwitches[1]
	l.NumLocal = p.NumSwitches[1] * l.ConPerLocal
	l.NumPorts = l.NumLocal
	l.StartUp = l.EndLocal + p.NumSwitches[2]
	l.EndUp = l.StartUp
}

func (l *SwitchLayout) validate() error {
	if l.ConPerLocal <= 0 {
		return configErrorf("switch_radix",
			"switch %d has no link to its down neighbours", l.ID)
	}

	if l.EndUp > l.StartUp && l.ConPerUp <= 0 {
		return configErrorf("switch_radix",
			"switch %d has no link to its up neighbours", l.ID)
	}

	if l.NumPorts > l.Radix {
		return configErrorf("switch_radix",
			"switch %d needs %d ports, radix is %d",
			l.ID, l.NumPorts, l.Radix)
	}

	return nil
}

func (l *SwitchLayout) connect() {
	l.Peers = make([]Peer, l.Radix)

	kind := PeerSwitch
	if l.Level == 0 {
		kind = PeerTerminal
	}

	for port := 0; port < l.NumLocal; port++ {
		l.Peers[port] = Peer{
			Kind: kind,
			ID:   l.StartLocal + port/l.ConPerLocal,
		}
	}

	for port := l.NumLocal; port < l.NumPorts; port++ {
		l.Peers[port] = Peer{
			Kind: PeerSwitch,
			ID:   l.StartUp + (port-l.NumLocal)/l.ConPerUp,
		}
	}
}

// IsLocal tells if a neighbour ID falls in the down-neighbour range.
func (l *SwitchLayout) IsLocal(id int) bool {
	return id >= l.StartLocal && id < l.EndLocal
}

// IsTerminalPort tells if a port leads to a terminal.
func (l *SwitchLayout) IsTerminalPort(port int) bool {
	return l.Level == 0 && port < l.NumLocal
}

// LinkOffset returns the position of a port inside the group of parallel
// links to the same neighbour.
func (l *SwitchLayout) LinkOffset(port int) int {
	if port < l.NumLocal {
		return port % l.ConPerLocal
	}

	return (port - l.NumLocal) % l.ConPerUp
}

// String describes the layout in one line.
func (l SwitchLayout) String() string {
	return fmt.Sprintf("switch %d level %d radix %d: "+
		"down [%d, %d) x%d on ports [0, %d), up [%d, %d) x%d on ports [%d, %d)",
		l.ID, l.Level, l.Radix,
		l.StartLocal, l.EndLocal, l.ConPerLocal, l.NumLocal,
		l.StartUp, l.EndUp, l.ConPerUp, l.NumLocal, l.NumPorts)
}
