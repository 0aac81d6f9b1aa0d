// Package config reads fat-tree experiment descriptions from YAML or JSON
// files.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"

	"github.com/sarchlab/fattree/noc/fattree"
	"github.com/sarchlab/fattree/noc/fattree/trafficgen"
)

var yamlExtensions = []string{".yaml", ".yml"}

// File is the content of an experiment description. Per-level values are
// comma separated lists, lowest level first.
type File struct {
	NumLevels         int     `yaml:"num_levels" json:"num_levels"`
	SwitchCount       string  `yaml:"switch_count" json:"switch_count"`
	SwitchRadix       string  `yaml:"switch_radix" json:"switch_radix"`
	L1SetSize         int     `yaml:"l1_set_size" json:"l1_set_size"`
	TerminalGroupSize int     `yaml:"terminal_group_size" json:"terminal_group_size"`
	VCSize            int     `yaml:"vc_size" json:"vc_size"`
	CNVCSize          int     `yaml:"cn_vc_size" json:"cn_vc_size"`
	PacketSize        int     `yaml:"packet_size" json:"packet_size"`
	LinkBandwidth     float64 `yaml:"link_bandwidth" json:"link_bandwidth"`
	CNBandwidth       float64 `yaml:"cn_bandwidth" json:"cn_bandwidth"`
	MeanInterval      float64 `yaml:"mean_interval" json:"mean_interval"`
	Lookahead         float64 `yaml:"lookahead" json:"lookahead"`

	Workload WorkloadSection `yaml:"workload" json:"workload"`
}

// WorkloadSection describes the synthetic traffic.
type WorkloadSection struct {
	Pattern            string  `yaml:"pattern" json:"pattern"`
	PacketsPerTerminal int     `yaml:"packets_per_terminal" json:"packets_per_terminal"`
	MeanGap            float64 `yaml:"mean_gap" json:"mean_gap"`
	MessagePackets     int     `yaml:"message_packets" json:"message_packets"`
	Shift              int     `yaml:"shift" json:"shift"`
	RemoteEventSize    int     `yaml:"remote_event_size" json:"remote_event_size"`
	LocalEventSize     int     `yaml:"local_event_size" json:"local_event_size"`
}

// Load reads a description. The extension of the path selects the format:
// .yaml and .yml are YAML, .json is JSON.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading configuration: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".json" && !slices.Contains(yamlExtensions, ext) {
		return nil, fmt.Errorf("configuration %s: unknown extension %q",
			path, ext)
	}

	f, err := Parse(data, ext != ".json")
	if err != nil {
		return nil, fmt.Errorf("configuration %s: %w", path, err)
	}

	return f, nil
}

// Parse decodes a description held in memory.
func Parse(data []byte, useYAML bool) (*File, error) {
	f := &File{}

	var err error
	if useYAML {
		err = yaml.Unmarshal(data, f)
	} else {
		err = json.Unmarshal(data, f)
	}

	if err != nil {
		return nil, err
	}

	return f, nil
}

// Params converts the description into validated fat-tree parameters.
func (f *File) Params() (*fattree.Params, error) {
	counts, err := parseList(f.SwitchCount)
	if err != nil {
		return nil, &fattree.ConfigError{Field: "switch_count", Reason: err.Error()}
	}

	radices, err := parseList(f.SwitchRadix)
	if err != nil {
		return nil, &fattree.ConfigError{Field: "switch_radix", Reason: err.Error()}
	}

	p := &fattree.Params{
		NumLevels:          f.NumLevels,
		NumSwitches:        counts,
		SwitchRadix:        radices,
		L1SetSize:          f.L1SetSize,
		TerminalGroupSize:  f.TerminalGroupSize,
		BufferSize:         f.VCSize,
		TerminalBufferSize: f.CNVCSize,
		PacketSize:         f.PacketSize,
		LinkBandwidth:      f.LinkBandwidth,
		TerminalBandwidth:  f.CNBandwidth,
		MeanInterval:       f.MeanInterval,
		Lookahead:          f.Lookahead,
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}

	return p, nil
}

// TrafficWorkload converts the workload section. Defaults are filled when
// the workload is validated against a network.
func (f *File) TrafficWorkload() trafficgen.Workload {
	w := f.Workload

	return trafficgen.Workload{
		Pattern:            trafficgen.Pattern(w.Pattern),
		PacketsPerTerminal: w.PacketsPerTerminal,
		MeanGap:            w.MeanGap,
		MessagePackets:     w.MessagePackets,
		Shift:              w.Shift,
		RemoteEventSize:    w.RemoteEventSize,
		LocalEventSize:     w.LocalEventSize,
	}
}

func parseList(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, fmt.Errorf("empty list")
	}

	fields := strings.Split(s, ",")
	values := make([]int, 0, len(fields))

	for _, field := range fields {
		v, err := strconv.Atoi(strings.TrimSpace(field))
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", field)
		}

		values = append(values, v)
	}

	return values, nil
}
