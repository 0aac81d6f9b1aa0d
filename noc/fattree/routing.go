package fattree

import "fmt"

// candidatePorts returns the range of output ports [start, end) that lead
// to the destination terminal on a shortest path.
func (l *SwitchLayout) candidatePorts(p *Params, dst int) (int, int, error) {
	var start, end int

	switch l.Level {
	case 0:
		if l.IsLocal(dst) {
			port := dst - l.StartLocal
			return port, port + 1, nil
		}

		start, end = l.NumLocal, l.NumPorts
	case 1:
		dstSwitch := p.TerminalSwitch(dst)
		if p.NumLevels == 2 || l.IsLocal(dstSwitch) {
			start = (dstSwitch - l.StartLocal) * l.ConPerLocal
			end = start + l.ConPerLocal
		} else {
			start, end = l.NumLocal, l.NumPorts
		}
	case 2:
		group := dst / p.L1TermSize()
		width := p.L1SetSize * l.ConPerLocal
		start = group * width
		end = start + width
	}

	if start < 0 || start >= end || end > l.NumPorts {
		return 0, 0, fmt.Errorf("no route to terminal %d, "+
			"candidate ports [%d, %d) outside [0, %d)",
			dst, start, end, l.NumPorts)
	}

	return start, end, nil
}

// leastLoaded returns the port in [start, end) with the lowest occupancy.
// The first minimum wins, and the scan stops at the first empty port.
func leastLoaded(occupancy []int, start, end int) int {
	port := start
	load := occupancy[start]

	for i := start + 1; i < end && load != 0; i++ {
		if occupancy[i] < load {
			load = occupancy[i]
			port = i
		}
	}

	return port
}

// creditPort returns the local port a packet came in through, the inverse of
// the sender's port assignment.
func (l *SwitchLayout) creditPort(hop HopInfo) (int, error) {
	var base, width int

	switch {
	case hop.LastHop == PeerTerminal:
		if l.Level != 0 || !l.IsLocal(hop.SenderID) {
			return 0, fmt.Errorf("terminal %d is not attached", hop.SenderID)
		}
		base = hop.SenderID - l.StartLocal
		width = 1
	case hop.LastHop == PeerSwitch && l.Level > 0 && l.IsLocal(hop.SenderID):
		base = (hop.SenderID - l.StartLocal) * l.ConPerLocal
		width = l.ConPerLocal
	case hop.LastHop == PeerSwitch &&
		hop.SenderID >= l.StartUp && hop.SenderID < l.EndUp:
		base = l.NumLocal + (hop.SenderID-l.StartUp)*l.ConPerUp
		width = l.ConPerUp
	default:
		return 0, fmt.Errorf("%s %d is not a neighbour",
			hop.LastHop, hop.SenderID)
	}

	if hop.Offset < 0 || hop.Offset >= width {
		return 0, fmt.Errorf("link offset %d from %s %d out of [0, %d)",
			hop.Offset, hop.LastHop, hop.SenderID, width)
	}

	return base + hop.Offset, nil
}
