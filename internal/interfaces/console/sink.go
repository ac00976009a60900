package console

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"tradefeed/internal/application/port"
	"tradefeed/internal/domain/model"
)

// Sink 把实时 K 线逐行打印到终端
type Sink struct {
	mu  sync.Mutex
	out io.Writer
}

func NewSink() port.TickSink { return NewWriterSink(os.Stdout) }

func NewWriterSink(w io.Writer) *Sink { return &Sink{out: w} }

func (s *Sink) WriteTick(ctx context.Context, key string, p model.KLinePoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := time.UnixMilli(p.Timestamp).UTC().Format("2006-01-02 15:04:05")
	_, err := fmt.Fprintf(s.out, "%s %s O=%g H=%g L=%g C=%g V=%g\n", ts, key, p.Open, p.High, p.Low, p.Close, p.Volume)
	return err
}

func (s *Sink) Close() error { return nil }
