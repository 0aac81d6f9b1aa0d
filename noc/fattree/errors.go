package fattree

import (
	"fmt"

	"github.com/sarchlab/fattree/sim"
)

// A ConfigError reports a topology or parameter set that is not
// self-consistent. It is fatal.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("fat-tree configuration error (%s): %s",
		e.Field, e.Reason)
}

func configErrorf(field, format string, args ...any) *ConfigError {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// An OverflowError is returned when a packet is about to be sent on a port
// whose occupancy already reached the capacity of its class. It means that
// the credit discipline failed, and the run must be aborted.
type OverflowError struct {
	LP        string
	Port      int
	Occupancy int
	Capacity  int
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("%s: buffer overflow on port %d, occupancy %d, "+
		"capacity %d", e.LP, e.Port, e.Occupancy, e.Capacity)
}

// An UnsupportedMsgError is returned when a logical process receives a
// message kind it does not handle.
type UnsupportedMsgError struct {
	LP  string
	Msg sim.Msg
}

func (e *UnsupportedMsgError) Error() string {
	return fmt.Sprintf("%s: message type %T not supported", e.LP, e.Msg)
}

// A RouteError is returned when a switch cannot resolve a valid port for a
// packet or a credit.
type RouteError struct {
	LP     string
	Reason string
}

func (e *RouteError) Error() string {
	return fmt.Sprintf("%s: %s", e.LP, e.Reason)
}
