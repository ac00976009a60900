package composite

import (
	"context"

	"tradefeed/internal/application/port"
	"tradefeed/internal/domain/model"
)

// Sink 把每根 K 线写给全部下游，全部尝试一遍后返回第一个错误
type Sink struct {
	sinks []port.TickSink
}

func New(sinks ...port.TickSink) *Sink {
	// nil sinks are allowed; filter in constructor for safety
	out := make([]port.TickSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return &Sink{sinks: out}
}

func (s *Sink) WriteTick(ctx context.Context, key string, point model.KLinePoint) error {
	var firstErr error
	for _, sink := range s.sinks {
		if err := sink.WriteTick(ctx, key, point); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *Sink) Close() error {
	var firstErr error
	for _, sink := range s.sinks {
		if err := sink.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var _ port.TickSink = (*Sink)(nil)
