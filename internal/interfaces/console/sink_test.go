package console

import (
	"bytes"
	"context"
	"testing"

	"tradefeed/internal/domain/model"
)

func TestWriteTickLine(t *testing.T) {
	var buf bytes.Buffer
	s := NewWriterSink(&buf)
	err := s.WriteTick(context.Background(), "CRYPTO:BTC@USDT_SPOT|1m", model.KLinePoint{
		Timestamp: 0, Open: 1, High: 2.5, Low: 0.5, Close: 2, Volume: 10,
	})
	if err != nil {
		t.Fatal(err)
	}
	want := "1970-01-01 00:00:00 CRYPTO:BTC@USDT_SPOT|1m O=1 H=2.5 L=0.5 C=2 V=10\n"
	if got := buf.String(); got != want {
		t.Errorf("line = %q, want %q", got, want)
	}
}
