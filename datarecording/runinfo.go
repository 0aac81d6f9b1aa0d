package datarecording

import (
	"os"
	"runtime"
	"strings"
	"time"
)

// RunInfoTable holds one row per property of the run that produced the
// recording.
const RunInfoTable = "run_info"

const runTimeLayout = "2006-01-02 15:04:05.000000000"

// RunProperty is a row of the run_info table.
type RunProperty struct {
	Property string
	Value    string
}

// runInfo collects the properties of a run and writes them when the
// recorder closes, so that later values replace earlier ones.
type runInfo struct {
	recorder   DataRecorder
	started    time.Time
	properties []RunProperty
}

func newRunInfo(recorder DataRecorder) *runInfo {
	recorder.CreateTable(RunInfoTable, RunProperty{})

	return &runInfo{
		recorder: recorder,
		started:  time.Now(),
	}
}

func (i *runInfo) set(property, value string) {
	for k := range i.properties {
		if i.properties[k].Property == property {
			i.properties[k].Value = value
			return
		}
	}

	i.properties = append(i.properties, RunProperty{property, value})
}

// describeProcess records the command line and where it ran.
func (i *runInfo) describeProcess() {
	i.set("Start Time", i.started.Format(runTimeLayout))
	i.set("Command", strings.Join(os.Args, " "))
	i.set("Go Version", runtime.Version())

	if host, err := os.Hostname(); err == nil {
		i.set("Host", host)
	}
}

func (i *runInfo) end() {
	now := time.Now()
	i.set("End Time", now.Format(runTimeLayout))
	i.set("Wall Time", now.Sub(i.started).String())

	for _, p := range i.properties {
		i.recorder.InsertData(RunInfoTable, p)
	}

	i.properties = nil
}
