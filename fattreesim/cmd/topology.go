package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sarchlab/fattree/config"
	"github.com/sarchlab/fattree/noc/fattree"
)

var topologyCmd = &cobra.Command{
	Use:   "topology",
	Short: "Print the wiring of every switch of a fat tree.",
	Long: "`topology --config tree.yaml` prints the port layout of every " +
		"switch and checks that routing takes a shortest path between " +
		"every pair of terminals.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		path, _ := cmd.Flags().GetString("config")
		verify, _ := cmd.Flags().GetBool("verify")

		return printTopology(path, verify)
	},
}

func init() {
	rootCmd.AddCommand(topologyCmd)

	topologyCmd.Flags().String("config", "", "Configuration file.")
	topologyCmd.Flags().Bool("verify", true,
		"Check connectivity and route lengths.")
	_ = topologyCmd.MarkFlagRequired("config")
}

func printTopology(path string, verify bool) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	params, err := cfg.Params()
	if err != nil {
		return fmt.Errorf("invalid topology: %w", err)
	}

	g, err := fattree.BuildGraph(params)
	if err != nil {
		return err
	}

	fmt.Printf("%d levels, %d terminals, %d switches, %d links\n",
		params.NumLevels, params.NumTerminals(), params.TotalSwitches(),
		g.NumLinks())

	for _, l := range g.Layouts() {
		fmt.Println(l)
	}

	if !verify {
		return nil
	}

	if err := g.VerifyConnectivity(); err != nil {
		return err
	}

	fmt.Println("every pair of terminals is routed on a shortest path")

	return nil
}
