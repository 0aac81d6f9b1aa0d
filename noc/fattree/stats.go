package fattree

import (
	"context"

	"github.com/sarchlab/fattree/datarecording"
)

// TerminalSummary aggregates the terminal_stats table over all terminals.
type TerminalSummary struct {
	Terminals   int
	PacketsSent uint64
	PacketsRecv uint64
	AvgHops     float64
	AvgLatency  float64
	MaxLatency  float64
}

// LevelTraffic is the number of bytes the switches of a level sent.
type LevelTraffic struct {
	Level   int
	Links   int
	Traffic uint64
}

// BusiestLinks reads the top links by traffic and counts all the links that
// carried any.
func BusiestLinks(
	ctx context.Context,
	r *datarecording.Reader,
	top int,
) ([]LinkTrafficEntry, int, error) {
	sel := datarecording.Selection{
		Where:   "Traffic > 0",
		OrderBy: "Traffic DESC, SwitchID, Port",
		Limit:   top,
	}

	links, err := datarecording.Select[LinkTrafficEntry](
		ctx, r, LinkTrafficTable, sel)
	if err != nil {
		return nil, 0, err
	}

	busy, err := r.Count(ctx, LinkTrafficTable, sel)
	if err != nil {
		return nil, 0, err
	}

	return links, busy, nil
}

// TrafficByLevel sums the recorded link traffic of every switch level.
func TrafficByLevel(
	ctx context.Context,
	r *datarecording.Reader,
) ([]LevelTraffic, error) {
	links, err := datarecording.Select[LinkTrafficEntry](
		ctx, r, LinkTrafficTable,
		datarecording.Selection{OrderBy: "Level"})
	if err != nil {
		return nil, err
	}

	var levels []LevelTraffic
	for _, l := range links {
		if len(levels) == 0 || levels[len(levels)-1].Level != l.Level {
			levels = append(levels, LevelTraffic{Level: l.Level})
		}

		last := &levels[len(levels)-1]
		last.Links++
		last.Traffic += l.Traffic
	}

	return levels, nil
}

// SummarizeTerminals weights the per-terminal averages by the packets each
// terminal received.
func SummarizeTerminals(
	ctx context.Context,
	r *datarecording.Reader,
) (TerminalSummary, error) {
	var (
		s                  TerminalSummary
		sent, recv         int64
		hopSum, latencySum float64
	)

	err := r.QueryRow(ctx, `SELECT
		COUNT(*),
		COALESCE(SUM(PacketsSent), 0),
		COALESCE(SUM(PacketsRecv), 0),
		COALESCE(SUM(AvgHops * PacketsRecv), 0),
		COALESCE(SUM(AvgLatency * PacketsRecv), 0),
		COALESCE(MAX(MaxLatency), 0)
		FROM `+TerminalStatsTable).
		Scan(&s.Terminals, &sent, &recv, &hopSum, &latencySum, &s.MaxLatency)
	if err != nil {
		return TerminalSummary{}, err
	}

	s.PacketsSent = uint64(sent)
	s.PacketsRecv = uint64(recv)

	if recv > 0 {
		s.AvgHops = hopSum / float64(recv)
		s.AvgLatency = latencySum / float64(recv)
	}

	return s, nil
}
