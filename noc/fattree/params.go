// Package fattree models a 2- or 3-level fat-tree interconnect as logical
// processes of an optimistic discrete event simulation.
//
// Terminals generate packets and inject them into their level-0 switch.
// Switches route every packet to the least occupied of the equal-cost output
// ports and return a credit to the previous hop as soon as the packet
// arrives. Every forward handler returns an Undo token that its reverse
// handler uses to restore the exact state, so that the kernel can roll back
// any suffix of processed events.
package fattree

import (
	"github.com/sirupsen/logrus"
)

// Defaults applied by Params.Validate when a value is not given.
const (
	DefaultBufferSize         = 2048
	DefaultTerminalBufferSize = 1024
	DefaultPacketSize         = 512
	DefaultBandwidth          = 5.0
	DefaultMeanInterval       = 200.0
	DefaultLookahead          = 0.01
)

// creditSize is the number of bytes a credit occupies on a link.
const creditSize = 8

// jitterDivisor scales MeanInterval down to the processing jitter.
const jitterDivisor = 200

// Params is the immutable configuration of a fat tree. It is built once,
// validated, and shared by pointer by every logical process.
type Params struct {
	NumLevels   int
	NumSwitches []int
	SwitchRadix []int

	// Bandwidths are in bytes per nanosecond.
	LinkBandwidth     float64
	TerminalBandwidth float64

	BufferSize         int
	TerminalBufferSize int
	PacketSize         int

	// L1SetSize is the number of level-1 switches in a group that fully
	// connects the same set of level-0 switches. Only configurable with 3
	// levels; with 2 levels it is the number of level-1 switches.
	L1SetSize int

	// TerminalGroupSize is the number of terminals the configuration
	// groups under each level-0 switch. When given, it must be half of the
	// level-0 radix.
	TerminalGroupSize int

	// MeanInterval sets the processing jitter of packet generation and
	// switch forwarding. The jitter is exponential with a mean of
	// MeanInterval/200.
	// generation and switch processing.
	MeanInterval float64

	// Lookahead is added to every delay between logical processes.
	Lookahead float64

	validated bool
}

// Validate fills the defaults and checks that the topology is consistent.
// It must be called, and succeed, before the parameters are used.
func (p *Params) Validate() error {
	if err := p.validateLevels(); err != nil {
		return err
	}

	p.fillDefaults()

	if err := p.validateRates(); err != nil {
		return err
	}

	if err := p.validateBisection(); err != nil {
		return err
	}

	if err := p.validateGroups(); err != nil {
		return err
	}

	p.validated = true

	return nil
}

func (p *Params) validateLevels() error {
	if p.NumLevels <= 0 {
		return configErrorf("num_levels", "too few levels (%d)", p.NumLevels)
	}

	if p.NumLevels < 2 || p.NumLevels > 3 {
		return configErrorf("num_levels",
			"only 2 or 3 levels are supported, got %d", p.NumLevels)
	}

	if len(p.NumSwitches) != p.NumLevels {
		return configErrorf("switch_count",
			"need %d switch counts, got %d", p.NumLevels, len(p.NumSwitches))
	}

	if len(p.SwitchRadix) != p.NumLevels {
		return configErrorf("switch_radix",
			"need %d switch radices, got %d", p.NumLevels, len(p.SwitchRadix))
	}

	for i := 0; i < p.NumLevels; i++ {
		if p.NumSwitches[i] <= 0 {
			return configErrorf("switch_count",
				"invalid switch count %d at level %d", p.NumSwitches[i], i)
		}

		if p.SwitchRadix[i] <= 0 {
			return configErrorf("switch_radix",
				"invalid switch radix %d at level %d", p.SwitchRadix[i], i)
		}
	}

	if p.SwitchRadix[0]%2 != 0 {
		return configErrorf("switch_radix",
			"level-0 radix %d must be even", p.SwitchRadix[0])
	}

	return nil
}

func (p *Params) fillDefaults() {
	if p.BufferSize == 0 {
		p.BufferSize = DefaultBufferSize
		logrus.Warnf("Buffer size of global channels not specified, "+
			"setting to %d", p.BufferSize)
	}

	if p.TerminalBufferSize == 0 {
		p.TerminalBufferSize = DefaultTerminalBufferSize
		logrus.Warnf("Buffer size of compute node channels not specified, "+
			"setting to %d", p.TerminalBufferSize)
	}

	if p.PacketSize == 0 {
		p.PacketSize = DefaultPacketSize
		logrus.Warnf("Packet size is not specified, setting to %d",
			p.PacketSize)
	}

	if p.LinkBandwidth == 0 {
		p.LinkBandwidth = DefaultBandwidth
		logrus.Warnf("Bandwidth of links not specified, setting to %f",
			p.LinkBandwidth)
	}

	if p.TerminalBandwidth == 0 {
		p.TerminalBandwidth = DefaultBandwidth
		logrus.Warnf("Bandwidth of compute node channels not specified, "+
			"setting to %f", p.TerminalBandwidth)
	}

	if p.MeanInterval == 0 {
		p.MeanInterval = DefaultMeanInterval
	}

	if p.Lookahead == 0 {
		p.Lookahead = DefaultLookahead
	}

	if p.NumLevels == 2 {
		p.L1SetSize = p.NumSwitches[1]
	}
}

// validateRates rejects the timing parameters that would make a delay
// negative or infinite.
func (p *Params) validateRates() error {
	switch {
	case p.LinkBandwidth <= 0:
		return configErrorf("link_bandwidth",
			"link bandwidth must be positive, got %f", p.LinkBandwidth)
	case p.TerminalBandwidth <= 0:
		return configErrorf("cn_bandwidth",
			"compute node bandwidth must be positive, got %f",
			p.TerminalBandwidth)
	case p.MeanInterval <= 0:
		return configErrorf("mean_interval",
			"mean interval must be positive, got %f", p.MeanInterval)
	case p.Lookahead <= 0:
		return configErrorf("lookahead",
			"lookahead must be positive, got %f", p.Lookahead)
	}

	return nil
}

// validateBisection checks that each level offers at least as much upward
// capacity as the level below pushes into it. Levels below the top use half
// of their ports in each direction; the top level uses all its ports
// downwards.
func (p *Params) validateBisection() error {
	top := p.NumLevels - 1

	for i := 1; i < top; i++ {
		if p.NumSwitches[i-1]*p.SwitchRadix[i-1] >
			p.NumSwitches[i]*p.SwitchRadix[i] {
			return configErrorf("switch_count", "not enough switches/radix "+
				"at level %d for full bisection bandwidth", i)
		}
	}

	if p.NumSwitches[top-1]*p.SwitchRadix[top-1] >
		2*p.NumSwitches[top]*p.SwitchRadix[top] {
		return configErrorf("switch_count", "not enough switches/radix "+
			"at level %d for full bisection bandwidth", top)
	}

	return nil
}

func (p *Params) validateGroups() error {
	half0 := p.SwitchRadix[0] / 2

	if p.BufferSize < 0 || p.TerminalBufferSize < 0 || p.PacketSize < 0 {
		return configErrorf("vc_size", "buffer and packet sizes must be positive")
	}

	if p.TerminalGroupSize != 0 && p.TerminalGroupSize != half0 {
		return configErrorf("terminal_group_size", "%d terminals per group, "+
			"expected half of the level-0 radix (%d)",
			p.TerminalGroupSize, half0)
	}

	if p.NumLevels == 3 && p.SwitchRadix[1]%2 != 0 {
		return configErrorf("switch_radix",
			"level-1 radix %d must be even", p.SwitchRadix[1])
	}

	if p.NumLevels == 3 && p.L1SetSize <= 0 {
		return configErrorf("l1_set_size", "l1_set_size not specified")
	}

	if p.L1SetSize > p.NumSwitches[1] || p.NumSwitches[1]%p.L1SetSize != 0 {
		return configErrorf("l1_set_size",
			"%d level-1 switches cannot be split into groups of %d",
			p.NumSwitches[1], p.L1SetSize)
	}

	if half0%p.L1SetSize != 0 {
		return configErrorf("l1_set_size", "%d terminal-side ports per "+
			"level-0 switch cannot be spread over %d level-1 switches",
			half0, p.L1SetSize)
	}

	if p.NumLevels == 3 {
		half1 := p.SwitchRadix[1] / 2
		width := p.L1SetSize * half1
		if width%half0 != 0 {
			return configErrorf("l1_set_size", "a level-1 group reaches %d "+
				"terminals, not a multiple of %d", width, half0)
		}

		numGroups := p.NumSwitches[1] / p.L1SetSize
		if numGroups*(width/half0) != p.NumSwitches[0] {
			return configErrorf("switch_count", "%d level-1 groups of %d "+
				"level-0 switches do not cover %d level-0 switches",
				numGroups, width/half0, p.NumSwitches[0])
		}

		if half1%p.NumSwitches[2] != 0 {
			return configErrorf("switch_count", "%d up ports per level-1 "+
				"switch cannot be spread over %d level-2 switches",
				half1, p.NumSwitches[2])
		}

		if p.NumTerminals()%(p.NumSwitches[1]*p.NumSwitches[2]) != 0 {
			return configErrorf("switch_count", "%d terminals cannot be "+
				"spread evenly between %d level-1 and %d level-2 switches",
				p.NumTerminals(), p.NumSwitches[1], p.NumSwitches[2])
		}
	}

	return nil
}

// ProcessingJitter returns the mean of the exponential delay a terminal
// adds before sending a generated packet and a switch adds before
// forwarding an arrived one.
func (p *Params) ProcessingJitter() float64 {
	return p.MeanInterval / jitterDivisor
}

// NumTerminals returns the number of compute nodes in the tree.
func (p *Params) NumTerminals() int {
	return p.NumSwitches[0] * p.TerminalsPerSwitch()
}

// TerminalsPerSwitch returns the number of terminals attached to a level-0
// switch.
func (p *Params) TerminalsPerSwitch() int {
	return p.SwitchRadix[0] / 2
}

// TotalSwitches returns the number of switches over all levels.
func (p *Params) TotalSwitches() int {
	sum := 0
	for _, n := range p.NumSwitches {
		sum += n
	}
	return sum
}

// L1TermSize returns the number of terminals under one level-1 group.
func (p *Params) L1TermSize() int {
	if p.NumLevels == 2 {
		return p.NumTerminals()
	}

	half0 := p.TerminalsPerSwitch()
	size := p.L1SetSize * (p.SwitchRadix[1] / 2)

	return (size / half0) * half0
}

// LevelOf returns the level of a switch, the first level whose cumulative
// switch count exceeds the ID.
func (p *Params) LevelOf(switchID int) int {
	sum := 0
	for level := 0; level < p.NumLevels; level++ {
		sum += p.NumSwitches[level]
		if switchID < sum {
			return level
		}
	}

	return -1
}

// TerminalSwitch returns the level-0 switch a terminal is attached to.
func (p *Params) TerminalSwitch(terminalID int) int {
	return terminalID / p.TerminalsPerSwitch()
}

func (p *Params) mustBeValidated() {
	if !p.validated {
		panic("fat-tree parameters must be validated before use")
	}
}
