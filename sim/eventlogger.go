package sim

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// EventLogger is a hook that writes one debug line per handled or reversed
// event.
type EventLogger struct {
	Logger *logrus.Logger
}

// NewEventLogger returns a new EventLogger which will write in to the logger
func NewEventLogger(logger *logrus.Logger) *EventLogger {
	return &EventLogger{Logger: logger}
}

// Func writes the event information into the logger
func (h *EventLogger) Func(ctx HookCtx) {
	if ctx.Pos != HookPosBeforeEvent && ctx.Pos != HookPosReverseEvent {
		return
	}

	evt, ok := ctx.Item.(*Event)
	if !ok {
		return
	}

	entry := h.Logger.WithFields(logrus.Fields{
		"time": float64(evt.Time()),
		"lp":   ctx.Detail,
		"msg":  fmt.Sprintf("%T", evt.Msg()),
	})

	if ctx.Pos == HookPosReverseEvent {
		entry.Debug("reverse")
		return
	}

	entry.Debug("handle")
}
