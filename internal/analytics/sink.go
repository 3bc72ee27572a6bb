package analytics

import (
	"go.uber.org/zap"

	"cogmux/internal/mode"
)

// ZapSink writes every engine event to a structured log. Useful on its
// own in tests and composed behind Multi in the real wiring.
type ZapSink struct {
	log *zap.Logger
}

// NewZapSink wraps a logger as an event sink.
func NewZapSink(log *zap.Logger) *ZapSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &ZapSink{log: log}
}

func (s *ZapSink) Publish(ev mode.Event) {
	fields := []zap.Field{
		zap.String("session", ev.SessionID),
		zap.Time("at", ev.At),
	}
	if ev.Mode != "" {
		fields = append(fields, zap.String("mode", ev.Mode))
	}
	if ev.PreviousMode != "" {
		fields = append(fields, zap.String("previous", ev.PreviousMode))
	}
	if ev.Trigger != "" {
		fields = append(fields, zap.String("trigger", string(ev.Trigger)))
	}
	if ev.Confidence > 0 {
		fields = append(fields, zap.Float64("confidence", ev.Confidence))
	}
	if ev.ErrKind != "" {
		fields = append(fields, zap.String("error_kind", string(ev.ErrKind)))
	}
	if ev.Duration > 0 {
		fields = append(fields, zap.Duration("duration", ev.Duration))
	}
	s.log.Info(string(ev.Type), fields...)
}

// Multi fans one event out to several sinks in order.
func Multi(sinks ...mode.Sink) mode.Sink {
	out := make(multiSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

type multiSink []mode.Sink

func (m multiSink) Publish(ev mode.Event) {
	for _, s := range m {
		s.Publish(ev)
	}
}
