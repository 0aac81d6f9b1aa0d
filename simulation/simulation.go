// Package simulation assembles the engine, the data recorder and the
// monitor that a fat-tree run needs.
package simulation

import (
	"github.com/sirupsen/logrus"

	"github.com/sarchlab/fattree/datarecording"
	"github.com/sarchlab/fattree/monitoring"
	"github.com/sarchlab/fattree/sim"
)

// A Simulation provides the service requires to define a simulation.
type Simulation struct {
	id     string
	engine *sim.SerialEngine

	dataRecorder datarecording.DataRecorder
	monitor      *monitoring.Monitor
	monitorURL   string

	endTime       sim.VTimeInSec
	rollbackEvery sim.VTimeInSec
	rollbackDepth sim.VTimeInSec

	lps         []sim.Handler
	lpNameIndex map[string]sim.LPID
}

// ID returns the unique ID of the simulation.
func (s *Simulation) ID() string {
	return s.id
}

// GetEngine returns the engine used in the simulation.
func (s *Simulation) GetEngine() *sim.SerialEngine {
	return s.engine
}

// GetDataRecorder returns the data recorder used in the simulation. It is
// nil when recording is disabled.
func (s *Simulation) GetDataRecorder() datarecording.DataRecorder {
	return s.dataRecorder
}

// GetMonitor returns the monitor used in the simulation. It is nil when
// monitoring is disabled.
func (s *Simulation) GetMonitor() *monitoring.Monitor {
	return s.monitor
}

// MonitorURL returns the address of the monitoring server.
func (s *Simulation) MonitorURL() string {
	return s.monitorURL
}

// RegisterLPs indexes the logical processes registered with the engine
// since the last call and exposes them on the monitor.
func (s *Simulation) RegisterLPs() {
	for id := len(s.lps); id < s.engine.NumLPs(); id++ {
		lpID := sim.LPID(id)
		name := s.engine.LPName(lpID)
		h := s.engine.Handler(lpID)

		if _, found := s.lpNameIndex[name]; found {
			panic("logical process " + name + " already registered")
		}

		s.lps = append(s.lps, h)
		s.lpNameIndex[name] = lpID

		if s.monitor != nil {
			s.monitor.RegisterLP(name, h)
		}
	}
}

// LPs returns all the registered logical processes.
func (s *Simulation) LPs() []sim.Handler {
	return s.lps
}

// GetLPByName returns the logical process with the given name.
func (s *Simulation) GetLPByName(name string) sim.Handler {
	id, found := s.lpNameIndex[name]
	if !found {
		panic("logical process " + name + " not found")
	}

	return s.lps[id]
}

// Run processes events until none is left or the end time is reached.
func (s *Simulation) Run() error {
	if s.rollbackEvery <= 0 {
		return s.engine.Run()
	}

	for t := s.rollbackEvery; ; t += s.rollbackEvery {
		last := false
		if s.endTime > 0 && t >= s.endTime {
			t = s.endTime
			last = true
		}

		if err := s.runAndRollback(t); err != nil {
			return err
		}

		if last || !s.engine.HasPendingEvents() {
			return nil
		}
	}
}

func (s *Simulation) runAndRollback(t sim.VTimeInSec) error {
	if err := s.engine.RunUntil(t); err != nil {
		return err
	}

	target := t - s.rollbackDepth
	if target < 0 {
		return nil
	}

	before := s.engine.Stats().RolledBack
	if err := s.engine.Rollback(target); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"from":   float64(t),
		"to":     float64(target),
		"events": s.engine.Stats().RolledBack - before,
	}).Debug("rolled back")

	return s.engine.RunUntil(t)
}

// Terminate finalizes the logical processes, writes the database and stops
// the monitoring server.
func (s *Simulation) Terminate() error {
	s.engine.Finished()

	if s.monitor != nil {
		s.monitor.StopServer()
	}

	if s.dataRecorder != nil {
		return s.dataRecorder.Close()
	}

	return nil
}
