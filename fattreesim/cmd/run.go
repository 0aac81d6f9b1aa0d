package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/pkg/browser"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sarchlab/fattree/config"
	"github.com/sarchlab/fattree/noc/fattree"
	"github.com/sarchlab/fattree/noc/fattree/trafficgen"
	"github.com/sarchlab/fattree/sim"
	"github.com/sarchlab/fattree/simulation"
)

type runOptions struct {
	configPath    string
	seed          uint64
	packets       int
	endTime       float64
	reverseCheck  bool
	rollbackEvery float64
	rollbackDepth float64
	monitor       bool
	monitorPort   int
	openMonitor   bool
	output        string
	noRecord      bool
}

var runOpts runOptions

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a synthetic workload on a fat tree.",
	Long: "`run --config tree.yaml` builds the tree described by the " +
		"configuration, injects its workload, and records link and " +
		"terminal statistics into a SQLite database.",
	RunE: func(_ *cobra.Command, _ []string) error {
		return runSimulation(runOpts)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	f := runCmd.Flags()
	f.StringVar(&runOpts.configPath, "config", "",
		"Configuration file (.yaml, .yml or .json).")
	f.Uint64Var(&runOpts.seed, "seed", 1, "Seed of the random streams.")
	f.IntVar(&runOpts.packets, "packets", 0,
		"Packets per terminal, overriding the configuration.")
	f.Float64Var(&runOpts.endTime, "end-time", 0,
		"Stop at this simulated time in ns. 0 runs to completion.")
	f.BoolVar(&runOpts.reverseCheck, "reverse-check", false,
		"Reverse and replay every event, checking the state is restored.")
	f.Float64Var(&runOpts.rollbackEvery, "rollback-every", 0,
		"Roll back periodically, every given ns of simulated time.")
	f.Float64Var(&runOpts.rollbackDepth, "rollback-depth", 0,
		"How far each periodic rollback goes, in ns. "+
			"Defaults to half of the interval.")
	f.BoolVar(&runOpts.monitor, "monitor", false,
		"Serve the monitoring web page.")
	f.IntVar(&runOpts.monitorPort, "monitor-port", 0,
		"Port of the monitoring server. Random if not given.")
	f.BoolVar(&runOpts.openMonitor, "open-monitor", false,
		"Open the monitoring page in a browser. Implies --monitor.")
	f.StringVar(&runOpts.output, "output", "",
		"Name of the statistics database, without the .sqlite3 suffix. "+
			"Defaults to $"+statsEnvVar+".")
	f.BoolVar(&runOpts.noRecord, "no-record", false,
		"Do not write a statistics database.")

	_ = runCmd.MarkFlagRequired("config")
}

func (o runOptions) simulationBuilder() simulation.Builder {
	b := simulation.MakeBuilder().
		WithSeed(o.seed).
		WithEndTime(sim.VTimeInSec(o.endTime))

	if o.reverseCheck {
		b = b.WithReverseCheck()
	}

	if o.rollbackEvery > 0 {
		depth := o.rollbackDepth
		if depth == 0 {
			depth = o.rollbackEvery / 2
		}

		b = b.WithPeriodicRollback(
			sim.VTimeInSec(o.rollbackEvery), sim.VTimeInSec(depth))
	}

	if o.monitor || o.openMonitor {
		b = b.WithMonitorPort(o.monitorPort)
	} else {
		b = b.WithoutMonitoring()
	}

	output := o.output
	if output == "" {
		output = os.Getenv(statsEnvVar)
	}

	if o.noRecord {
		b = b.WithoutRecording()
	} else if output != "" {
		b = b.WithOutputFileName(output)
	}

	if logrus.IsLevelEnabled(logrus.DebugLevel) {
		b = b.WithEventLogger(logrus.StandardLogger())
	}

	return b
}

func runSimulation(o runOptions) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}

	params, err := cfg.Params()
	if err != nil {
		return fmt.Errorf("invalid topology: %w", err)
	}

	workload := cfg.TrafficWorkload()
	if o.packets > 0 {
		workload.PacketsPerTerminal = o.packets
	}

	s := o.simulationBuilder().Build()

	network, err := fattree.MakeBuilder().
		WithEngine(s.GetEngine()).
		WithParams(params).
		WithRecorder(s.GetDataRecorder()).
		Build()
	if err != nil {
		return err
	}

	gen, err := trafficgen.MakeBuilder().
		WithSeed(o.seed).
		WithEngine(s.GetEngine()).
		WithNetwork(network).
		WithWorkload(workload).
		WithMonitor(s.GetMonitor()).
		Build()
	if err != nil {
		return fmt.Errorf("invalid workload: %w", err)
	}

	s.RegisterLPs()

	if r := s.GetDataRecorder(); r != nil {
		r.SetRunInfo("Configuration", o.configPath)
		r.SetRunInfo("Topology", fmt.Sprintf("%d levels, %d terminals, "+
			"%d switches", params.NumLevels, params.NumTerminals(),
			params.TotalSwitches()))
		r.SetRunInfo("Traffic Pattern", string(gen.Workload().Pattern))
	}

	logrus.WithFields(logrus.Fields{
		"levels":    params.NumLevels,
		"terminals": params.NumTerminals(),
		"switches":  params.TotalSwitches(),
		"messages":  gen.ExpectedMessages(),
	}).Info("fat tree built")

	if o.openMonitor && s.MonitorURL() != "" {
		if err := browser.OpenURL(s.MonitorURL()); err != nil {
			logrus.Warnf("cannot open %s: %v", s.MonitorURL(), err)
		}
	}

	start := time.Now()
	runErr := s.Run()
	stats := s.GetEngine().Stats()

	logrus.WithFields(logrus.Fields{
		"sim_time":    float64(s.GetEngine().CurrentTime()),
		"wall_time":   time.Since(start).String(),
		"processed":   stats.Processed,
		"rolled_back": stats.RolledBack,
		"injected":    gen.Injected(),
		"delivered":   gen.Delivered(),
	}).Info("simulation finished")

	if err := s.Terminate(); err != nil {
		return err
	}

	if runErr != nil {
		return fmt.Errorf("simulation aborted: %w", runErr)
	}

	if o.endTime == 0 && gen.Delivered() != gen.ExpectedMessages() {
		return fmt.Errorf("%d of %d messages delivered",
			gen.Delivered(), gen.ExpectedMessages())
	}

	return nil
}
