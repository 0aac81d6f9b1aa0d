package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sarchlab/fattree/datarecording"
	"github.com/sarchlab/fattree/noc/fattree"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarize a statistics database.",
	Long: "`report --db run.sqlite3` prints the busiest links and the " +
		"delivery statistics recorded by a previous run.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		db, _ := cmd.Flags().GetString("db")
		top, _ := cmd.Flags().GetInt("top")

		return printReport(cmd.Context(), db, top)
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().String("db", "", "Statistics database.")
	reportCmd.Flags().Int("top", 10, "Number of links to list.")
	_ = reportCmd.MarkFlagRequired("db")
}

func printReport(ctx context.Context, db string, top int) error {
	if ctx == nil {
		ctx = context.Background()
	}

	reader, err := datarecording.OpenReader(db)
	if err != nil {
		return err
	}
	defer reader.Close()

	links, busy, err := fattree.BusiestLinks(ctx, reader, top)
	if err != nil {
		return err
	}

	fmt.Printf("%d links carried traffic, busiest %d:\n", busy, len(links))
	for _, l := range links {
		fmt.Printf("  switch %4d (level %d) port %3d -> %-8s %4d: %d bytes\n",
			l.SwitchID, l.Level, l.Port, l.PeerKind, l.PeerID, l.Traffic)
	}

	levels, err := fattree.TrafficByLevel(ctx, reader)
	if err != nil {
		return err
	}

	for _, l := range levels {
		fmt.Printf("level %d: %d ports sent %d bytes\n",
			l.Level, l.Links, l.Traffic)
	}

	summary, err := fattree.SummarizeTerminals(ctx, reader)
	if err != nil {
		return err
	}

	fmt.Printf("%d terminals sent %d packets and received %d\n",
		summary.Terminals, summary.PacketsSent, summary.PacketsRecv)

	if summary.PacketsRecv > 0 {
		fmt.Printf("average hops %.2f, average latency %.2f ns, "+
			"max latency %.2f ns\n",
			summary.AvgHops, summary.AvgLatency, summary.MaxLatency)
	}

	return nil
}
