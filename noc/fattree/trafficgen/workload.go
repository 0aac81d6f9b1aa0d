// Package trafficgen provides logical processes that inject synthetic
// traffic into a fat tree and count what is delivered.
package trafficgen

import (
	"fmt"

	"github.com/iti/rngstream"
	"golang.org/x/exp/slices"

	"github.com/sarchlab/fattree/sim"
)

// Pattern decides where the packets of a terminal go.
type Pattern string

// Supported patterns.
const (
	// PatternUniform picks every destination uniformly among the other
	// terminals.
	PatternUniform Pattern = "uniform"

	// PatternShift sends everything from terminal i to terminal i+Shift.
	PatternShift Pattern = "shift"
)

const defaultEventSize = 16

// streamSeedModulus keeps every word of a stream seed below the modulus of
// the second rngstream component.
const streamSeedModulus = 4294944443

// Patterns lists the supported patterns.
var Patterns = []Pattern{PatternUniform, PatternShift}

// Workload describes the traffic of every terminal.
type Workload struct {
	Pattern            Pattern
	PacketsPerTerminal int
	MeanGap            float64
	MessagePackets     int
	Shift              int
	RemoteEventSize    int
	LocalEventSize     int
}

// Validate fills the defaults and checks the workload.
func (w *Workload) Validate(numTerminals int) error {
	if w.Pattern == "" {
		w.Pattern = PatternUniform
	}

	if w.MeanGap == 0 {
		w.MeanGap = 100
	}

	if w.MessagePackets == 0 {
		w.MessagePackets = 1
	}

	if w.Shift == 0 {
		w.Shift = numTerminals / 2
	}

	if w.RemoteEventSize == 0 {
		w.RemoteEventSize = defaultEventSize
	}

	if w.LocalEventSize == 0 {
		w.LocalEventSize = defaultEventSize
	}

	switch {
	case numTerminals < 2:
		return fmt.Errorf("need at least 2 terminals, got %d", numTerminals)
	case !slices.Contains(Patterns, w.Pattern):
		return fmt.Errorf("unknown traffic pattern %q", w.Pattern)
	case w.PacketsPerTerminal < 0:
		return fmt.Errorf("negative packet count %d", w.PacketsPerTerminal)
	case w.MeanGap < 0:
		return fmt.Errorf("negative injection gap %f", w.MeanGap)
	case w.MessagePackets < 0:
		return fmt.Errorf("negative message length %d", w.MessagePackets)
	case w.Shift%numTerminals == 0:
		return fmt.Errorf("shift %d sends terminals to themselves", w.Shift)
	}

	return nil
}

// Destinations returns the destination of every packet a terminal sends.
// Uniform destinations are drawn from a stream seeded by the run seed and the
// terminal, so the list is fixed before the simulation starts and the same
// seed always gives the same list.
func (w *Workload) Destinations(seed uint64, numTerminals, terminal int) []int {
	dsts := make([]int, w.PacketsPerTerminal)

	if w.Pattern == PatternShift {
		dst := ((terminal+w.Shift)%numTerminals + numTerminals) % numTerminals
		for i := range dsts {
			dsts[i] = dst
		}

		return dsts
	}

	rng := destinationStream(seed, terminal)
	for i := range dsts {
		dst := int(rng.RandU01() * float64(numTerminals-1))
		if dst >= numTerminals-1 {
			dst = numTerminals - 2
		}

		if dst >= terminal {
			dst++
		}

		dsts[i] = dst
	}

	return dsts
}

func destinationStream(seed uint64, terminal int) *rngstream.RngStream {
	base := sim.DeriveSeed(seed, sim.LPID(terminal))

	words := make([]uint64, 6)
	for i := range words {
		words[i] = sim.DeriveSeed(base, sim.LPID(i))%(streamSeedModulus-1) + 1
	}

	rng := rngstream.New(fmt.Sprintf("trafficgen-%d", terminal))
	if !rng.SetSeed(words) {
		panic("invalid destination stream seed")
	}

	return rng
}
