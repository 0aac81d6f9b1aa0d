package simulation

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/fattree/datarecording"
	"github.com/sarchlab/fattree/noc/fattree"
	"github.com/sarchlab/fattree/noc/fattree/trafficgen"
	"github.com/sarchlab/fattree/sim"
)

func buildModel(s *Simulation) (*fattree.Network, *trafficgen.Generator) {
	network, err := fattree.MakeBuilder().
		WithEngine(s.GetEngine()).
		WithRecorder(s.GetDataRecorder()).
		WithParams(&fattree.Params{
			NumLevels:   2,
			NumSwitches: []int{4, 2},
			SwitchRadix: []int{8, 8},
		}).
		Build()
	ExpectWithOffset(1, err).NotTo(HaveOccurred())

	gen, err := trafficgen.MakeBuilder().
		WithEngine(s.GetEngine()).
		WithNetwork(network).
		WithWorkload(trafficgen.Workload{
			Pattern:            trafficgen.PatternShift,
			PacketsPerTerminal: 4,
			MeanGap:            30,
		}).
		Build()
	ExpectWithOffset(1, err).NotTo(HaveOccurred())

	s.RegisterLPs()

	return network, gen
}

func terminalStates(n *fattree.Network) []fattree.TerminalState {
	var states []fattree.TerminalState
	for _, t := range n.Terminals {
		states = append(states, t.TerminalState)
	}

	return states
}

var _ = Describe("Simulation", func() {
	var (
		dir        string
		simulation *Simulation
	)

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "simulation")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if simulation != nil {
			Expect(simulation.Terminate()).To(Succeed())
			simulation = nil
		}

		os.RemoveAll(dir)
	})

	It("should write the database to the given file", func() {
		simulation = MakeBuilder().
			WithoutMonitoring().
			WithOutputFileName(filepath.Join(dir, "out")).
			Build()

		Expect(simulation.GetDataRecorder()).NotTo(BeNil())
		Expect(simulation.GetMonitor()).To(BeNil())
		Expect(simulation.ID()).NotTo(BeEmpty())
		Expect(filepath.Join(dir, "out.sqlite3")).To(BeAnExistingFile())
	})

	It("should record the run settings", func() {
		output := filepath.Join(dir, "settings")
		simulation = MakeBuilder().
			WithoutMonitoring().
			WithSeed(42).
			WithPeriodicRollback(100, 30).
			WithOutputFileName(output).
			Build()
		id := simulation.ID()

		Expect(simulation.Terminate()).To(Succeed())
		simulation = nil

		reader, err := datarecording.OpenReader(output + ".sqlite3")
		Expect(err).NotTo(HaveOccurred())
		defer reader.Close()

		rows, err := datarecording.Select[datarecording.RunProperty](
			context.Background(), reader, datarecording.RunInfoTable,
			datarecording.Selection{})
		Expect(err).NotTo(HaveOccurred())

		properties := make(map[string]string)
		for _, row := range rows {
			properties[row.Property] = row.Value
		}

		Expect(properties).To(HaveKeyWithValue("Simulation ID", id))
		Expect(properties).To(HaveKeyWithValue("Seed", "42"))
		Expect(properties).To(HaveKeyWithValue("Rollback Every", "100"))
		Expect(properties).To(HaveKeyWithValue("Rollback Depth", "30"))
		Expect(properties).To(HaveKeyWithValue("Reverse Check", "false"))
		Expect(properties).NotTo(HaveKey("End Time Limit"))
	})

	It("should index logical processes by name", func() {
		simulation = MakeBuilder().
			WithoutMonitoring().
			WithoutRecording().
			Build()

		network, gen := buildModel(simulation)

		Expect(simulation.LPs()).To(HaveLen(16 + 6 + 16))
		Expect(simulation.GetLPByName("FatTree.Switch[2]")).
			To(BeIdenticalTo(network.Switches[2]))
		Expect(simulation.GetLPByName("TrafficGen.Source[3]")).
			To(BeIdenticalTo(gen.Sources[3]))
		Expect(func() { simulation.GetLPByName("nothing") }).To(Panic())
	})

	It("should register logical processes with the monitor", func() {
		simulation = MakeBuilder().WithoutRecording().Build()

		buildModel(simulation)

		Expect(simulation.MonitorURL()).To(HavePrefix("http://localhost:"))
		Expect(simulation.GetMonitor()).NotTo(BeNil())
	})

	It("should reject inconsistent options", func() {
		Expect(func() {
			MakeBuilder().WithoutMonitoring().WithMonitorPort(8080).Build()
		}).To(Panic())

		Expect(func() {
			MakeBuilder().WithoutRecording().WithOutputFileName("x").Build()
		}).To(Panic())

		Expect(func() {
			MakeBuilder().WithPeriodicRollback(0, 5).Build()
		}).To(Panic())
	})

	It("should match a straight run when rolling back periodically", func() {
		straight := MakeBuilder().
			WithoutMonitoring().
			WithoutRecording().
			WithSeed(4).
			Build()
		straightNet, straightGen := buildModel(straight)
		Expect(straight.Run()).To(Succeed())

		simulation = MakeBuilder().
			WithoutMonitoring().
			WithoutRecording().
			WithSeed(4).
			WithPeriodicRollback(40, 25).
			Build()
		network, gen := buildModel(simulation)
		Expect(simulation.Run()).To(Succeed())

		Expect(simulation.GetEngine().Stats().RolledBack).
			To(BeNumerically(">", 0))
		Expect(gen.Delivered()).To(Equal(straightGen.Delivered()))
		Expect(terminalStates(network)).To(Equal(terminalStates(straightNet)))

		Expect(straight.Terminate()).To(Succeed())
	})

	It("should stop at the end time", func() {
		simulation = MakeBuilder().
			WithoutMonitoring().
			WithoutRecording().
			WithEndTime(50).
			WithPeriodicRollback(20, 10).
			Build()
		buildModel(simulation)

		Expect(simulation.Run()).To(Succeed())

		Expect(simulation.GetEngine().CurrentTime()).
			To(BeNumerically("<=", sim.VTimeInSec(50)))
		Expect(simulation.GetEngine().HasPendingEvents()).To(BeTrue())
	})
})
