package simulation

import (
	"strconv"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"github.com/sarchlab/fattree/datarecording"
	"github.com/sarchlab/fattree/monitoring"
	"github.com/sarchlab/fattree/sim"
)

// Builder can be used to build a simulation.
type Builder struct {
	seed           uint64
	endTime        sim.VTimeInSec
	reverseCheck   bool
	rollbackEvery  sim.VTimeInSec
	rollbackDepth  sim.VTimeInSec
	monitorOn      bool
	monitorPort    int
	recordOn       bool
	outputFileName string
	eventLogger    *logrus.Logger
}

// MakeBuilder creates a new builder.
func MakeBuilder() Builder {
	return Builder{
		seed:      1,
		monitorOn: true,
		recordOn:  true,
	}
}

// WithSeed sets the seed of the random streams.
func (b Builder) WithSeed(seed uint64) Builder {
	b.seed = seed
	return b
}

// WithEndTime stops the simulation at the given time.
func (b Builder) WithEndTime(t sim.VTimeInSec) Builder {
	b.endTime = t
	return b
}

// WithReverseCheck makes the engine reverse and replay every event.
func (b Builder) WithReverseCheck() Builder {
	b.reverseCheck = true
	return b
}

// WithPeriodicRollback makes the simulation stop every interval, roll back
// by depth, and run forward again, the way an optimistic kernel recovers
// from stragglers.
func (b Builder) WithPeriodicRollback(every, depth sim.VTimeInSec) Builder {
	b.rollbackEvery = every
	b.rollbackDepth = depth
	return b
}

// WithoutMonitoring sets the simulation to not use monitoring.
func (b Builder) WithoutMonitoring() Builder {
	b.monitorOn = false
	return b
}

// WithMonitorPort sets the port number for the monitoring server.
func (b Builder) WithMonitorPort(port int) Builder {
	b.monitorPort = port
	return b
}

// WithoutRecording sets the simulation to not write a database.
func (b Builder) WithoutRecording() Builder {
	b.recordOn = false
	return b
}

// WithOutputFileName sets the custom output file name for the data recorder.
func (b Builder) WithOutputFileName(filename string) Builder {
	b.outputFileName = filename
	return b
}

// WithEventLogger logs every handled and reversed event at debug level.
func (b Builder) WithEventLogger(logger *logrus.Logger) Builder {
	b.eventLogger = logger
	return b
}

func (b Builder) parametersMustBeValid() {
	if !b.monitorOn && b.monitorPort != 0 {
		panic("monitor port cannot be set when monitoring is disabled")
	}

	if !b.recordOn && b.outputFileName != "" {
		panic("output file cannot be set when recording is disabled")
	}

	if b.rollbackEvery < 0 || b.rollbackDepth < 0 {
		panic("rollback interval and depth must not be negative")
	}

	if b.rollbackDepth > 0 && b.rollbackEvery == 0 {
		panic("rollback depth is set without a rollback interval")
	}
}

// Build builds the simulation.
func (b Builder) Build() *Simulation {
	b.parametersMustBeValid()

	s := &Simulation{
		lpNameIndex:   make(map[string]sim.LPID),
		endTime:       b.endTime,
		rollbackEvery: b.rollbackEvery,
		rollbackDepth: b.rollbackDepth,
	}

	s.id = xid.New().String()

	s.engine = sim.NewSerialEngine().
		WithSeed(b.seed).
		WithEndTime(b.endTime)
	if b.reverseCheck {
		s.engine.WithReverseCheck()
	}
	if b.rollbackEvery > 0 {
		s.engine.WithRollback(0)
	}

	if b.eventLogger != nil {
		s.engine.AcceptHook(sim.NewEventLogger(b.eventLogger))
	}

	if b.recordOn {
		outputPath := b.outputFileName
		if outputPath == "" {
			outputPath = "fattree_sim_" + s.id
		}
		s.dataRecorder = datarecording.New(outputPath)
		b.recordSettings(s)
	}

	if b.monitorOn {
		s.monitor = monitoring.NewMonitor()
		if b.monitorPort > 0 {
			s.monitor.WithPortNumber(b.monitorPort)
		}
		s.monitor.RegisterEngine(s.engine)
		s.monitorURL = s.monitor.StartServer()
	}

	return s
}

func (b Builder) recordSettings(s *Simulation) {
	r := s.dataRecorder

	r.SetRunInfo("Simulation ID", s.id)
	r.SetRunInfo("Seed", strconv.FormatUint(b.seed, 10))
	r.SetRunInfo("Reverse Check", strconv.FormatBool(b.reverseCheck))

	if b.endTime > 0 {
		r.SetRunInfo("End Time Limit", formatTime(b.endTime))
	}

	if b.rollbackEvery > 0 {
		r.SetRunInfo("Rollback Every", formatTime(b.rollbackEvery))
		r.SetRunInfo("Rollback Depth", formatTime(b.rollbackDepth))
	}
}

func formatTime(t sim.VTimeInSec) string {
	return strconv.FormatFloat(float64(t), 'f', -1, 64)
}
