package fattree

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
)

// TopologyGraph is the undirected graph of all the terminals and switches of
// a tree. Terminal t is node t; switch s is node NumTerminals + s.
type TopologyGraph struct {
	params  *Params
	layouts []SwitchLayout
	g       *simple.WeightedUndirectedGraph
	trees   map[int64]path.Shortest
}

// BuildGraph validates the parameters and builds the graph of the tree.
func BuildGraph(p *Params) (*TopologyGraph, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	t := &TopologyGraph{
		params: p,
		g:      simple.NewWeightedUndirectedGraph(0, math.Inf(1)),
		trees:  make(map[int64]path.Shortest),
	}

	numNodes := p.NumTerminals() + p.TotalSwitches()
	for id := 0; id < numNodes; id++ {
		t.g.AddNode(simple.Node(id))
	}

	for id := 0; id < p.TotalSwitches(); id++ {
		l, err := BuildSwitchLayout(p, id)
		if err != nil {
			return nil, err
		}

		t.layouts = append(t.layouts, l)

		for port := 0; port < l.NumPorts; port++ {
			peer := t.peerNode(l.Peers[port])
			self := t.SwitchNode(id)
			if peer == self {
				continue
			}

			t.g.SetWeightedEdge(simple.WeightedEdge{
				F: simple.Node(self),
				T: simple.Node(peer),
				W: 1,
			})
		}
	}

	return t, nil
}

// Layouts returns the layout of every switch, indexed by switch ID.
func (t *TopologyGraph) Layouts() []SwitchLayout {
	return t.layouts
}

// TerminalNode returns the node of a terminal.
func (t *TopologyGraph) TerminalNode(id int) int64 {
	return int64(id)
}

// SwitchNode returns the node of a switch.
func (t *TopologyGraph) SwitchNode(id int) int64 {
	return int64(t.params.NumTerminals() + id)
}

func (t *TopologyGraph) peerNode(peer Peer) int64 {
	if peer.Kind == PeerTerminal {
		return t.TerminalNode(peer.ID)
	}

	return t.SwitchNode(peer.ID)
}

// Graph exposes the underlying graph.
func (t *TopologyGraph) Graph() graph.Graph {
	return t.g
}

// NumLinks returns the number of distinct neighbour pairs.
func (t *TopologyGraph) NumLinks() int {
	return t.g.Edges().Len()
}

// HopDistance returns the number of links on a shortest path between two
// terminals, or -1 if they are not connected.
func (t *TopologyGraph) HopDistance(src, dst int) int {
	from := t.TerminalNode(src)

	tree, ok := t.trees[from]
	if !ok {
		tree = path.DijkstraFrom(t.g.Node(from), t.g)
		t.trees[from] = tree
	}

	w := tree.WeightTo(t.TerminalNode(dst))
	if math.IsInf(w, 1) {
		return -1
	}

	return int(w)
}

// RouteLength follows the routing decisions of empty switches from src to
// dst and returns the number of links traversed.
func (t *TopologyGraph) RouteLength(src, dst int) (int, error) {
	if src == dst {
		return 0, nil
	}

	sw := t.params.TerminalSwitch(src)
	links := 1

	for hops := 0; hops <= 2*t.params.NumLevels; hops++ {
		l := &t.layouts[sw]

		port, _, err := l.candidatePorts(t.params, dst)
		if err != nil {
			return 0, err
		}

		links++

		peer := l.Peers[port]
		if peer.Kind == PeerTerminal {
			if peer.ID != dst {
				return 0, fmt.Errorf("route from %d to %d ends at terminal %d",
					src, dst, peer.ID)
			}

			return links, nil
		}

		sw = peer.ID
	}

	return 0, fmt.Errorf("route from %d to %d does not terminate", src, dst)
}

// VerifyConnectivity checks that every pair of terminals is connected and
// that routing always follows a shortest path.
func (t *TopologyGraph) VerifyConnectivity() error {
	n := t.params.NumTerminals()

	for src := 0; src < n; src++ {
		for dst := 0; dst < n; dst++ {
			if src == dst {
				continue
			}

			shortest := t.HopDistance(src, dst)
			if shortest < 0 {
				return fmt.Errorf("terminal %d cannot reach terminal %d",
					src, dst)
			}

			routed, err := t.RouteLength(src, dst)
			if err != nil {
				return err
			}

			if routed != shortest {
				return fmt.Errorf("route from %d to %d takes %d links, "+
					"shortest path has %d", src, dst, routed, shortest)
			}
		}
	}

	return nil
}
