package observability

import (
	"log/slog"

	"fanfund/core/events"
	"fanfund/core/types"
)

type attributed interface {
	Event() *types.Event
}

// LogEmitter forwards engine events to structured logs. It is the daemon's
// default emitter.
type LogEmitter struct {
	Logger *slog.Logger
}

// Emit implements the events.Emitter interface.
func (l LogEmitter) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []any{slog.String("event", evt.EventType())}
	if carrier, ok := evt.(attributed); ok {
		if payload := carrier.Event(); payload != nil {
			for key, value := range payload.Attributes {
				attrs = append(attrs, slog.String(key, value))
			}
		}
	}
	logger.Info("ledger event", attrs...)
}

var _ events.Emitter = LogEmitter{}
