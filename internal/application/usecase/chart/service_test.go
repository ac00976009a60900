package chart

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tradefeed/internal/application/port"
	"tradefeed/internal/domain/feederr"
	"tradefeed/internal/domain/instrument"
	"tradefeed/internal/domain/model"
)

type fakeProvider struct {
	mu          sync.Mutex
	history     []model.KLinePoint
	ticks       map[string]port.TickFunc
	unsubscribe []string
	subscribed  chan string
}

func newFakeProvider(history []model.KLinePoint) *fakeProvider {
	return &fakeProvider{history: history, ticks: make(map[string]port.TickFunc), subscribed: make(chan string, 4)}
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) OnReady(ctx context.Context) <-chan model.DatafeedConfig {
	ch := make(chan model.DatafeedConfig, 1)
	ch <- model.DatafeedConfig{}
	close(ch)
	return ch
}

func (f *fakeProvider) SearchSymbols(ctx context.Context, query string) []model.SymbolInfo { return nil }

func (f *fakeProvider) ResolveSymbol(ctx context.Context, ticker string) (model.SymbolInfo, error) {
	inst := instrument.Parse(ticker)
	if !inst.IsValid() {
		return model.SymbolInfo{}, feederr.ErrSymbolNotFound
	}
	return model.NewSymbolInfo(inst, "fake", "FAKE"), nil
}

func (f *fakeProvider) GetHistoryKLineData(ctx context.Context, inst instrument.Instrument, period model.Period, params port.HistoryParams) (port.HistoryResult, error) {
	if !params.FirstDataRequest {
		return port.HistoryResult{}, errors.New("expected first data request")
	}
	return port.HistoryResult{Bars: f.history, NoData: len(f.history) == 0, More: true}, nil
}

func (f *fakeProvider) Subscribe(inst instrument.Instrument, period model.Period, onTick port.TickFunc, listenerID string) error {
	f.mu.Lock()
	f.ticks[listenerID] = onTick
	f.mu.Unlock()
	f.subscribed <- listenerID
	return nil
}

func (f *fakeProvider) Unsubscribe(listenerID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.ticks, listenerID)
	f.unsubscribe = append(f.unsubscribe, listenerID)
}

func (f *fakeProvider) push(id string, p model.KLinePoint) {
	f.mu.Lock()
	fn := f.ticks[id]
	f.mu.Unlock()
	fn(p)
}

func (f *fakeProvider) Close() error { return nil }

type memStore struct {
	mu   sync.Mutex
	bars map[string][]model.KLinePoint
}

func (m *memStore) UpsertBars(ctx context.Context, key string, bars []model.KLinePoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bars[key] = model.NormalizeBars(append(m.bars[key], bars...))
	return nil
}

func (m *memStore) Bars(ctx context.Context, key string, limit int) ([]model.KLinePoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.KLinePoint(nil), m.bars[key]...), nil
}

func (m *memStore) Close() error { return nil }

type chanSink struct{ ch chan model.KLinePoint }

func (c *chanSink) WriteTick(ctx context.Context, key string, p model.KLinePoint) error {
	c.ch <- p
	return nil
}

func (c *chanSink) Close() error { return nil }

func TestRunBackfillsStreamsAndUnsubscribes(t *testing.T) {
	history := []model.KLinePoint{
		{Timestamp: 60_000, Close: 100, Volume: 1},
		{Timestamp: 120_000, Close: 101, Volume: 1},
	}
	provider := newFakeProvider(history)
	store := &memStore{bars: make(map[string][]model.KLinePoint)}
	sink := &chanSink{ch: make(chan model.KLinePoint, 4)}
	period := model.MustParsePeriod("1m")
	symbol := "CRYPTO:BTC@USDT_SPOT"

	svc := NewService(ServiceDeps{Provider: provider, Symbols: []string{symbol}, Period: period, Store: store, Sink: sink})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	var id string
	select {
	case id = <-provider.subscribed:
	case <-time.After(2 * time.Second):
		t.Fatal("subscribe not called")
	}
	if id == "" {
		t.Fatal("empty listener id")
	}

	provider.push(id, model.KLinePoint{Timestamp: 120_000, Close: 103, Volume: 2})
	select {
	case p := <-sink.ch:
		if p.Close != 103 {
			t.Errorf("sink got %+v", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("tick not forwarded")
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run = %v", err)
	}

	key := StreamKey(instrument.Parse(symbol), period)
	bars, _ := store.Bars(context.Background(), key, 0)
	if len(bars) != 2 || bars[1].Close != 103 {
		t.Errorf("stored bars = %+v, want live update of last bar", bars)
	}

	provider.mu.Lock()
	unsub := provider.unsubscribe
	provider.mu.Unlock()
	if len(unsub) != 1 || unsub[0] != id {
		t.Errorf("unsubscribed = %v, want [%s]", unsub, id)
	}

	snap := svc.State().Snapshot()
	if len(snap) != 1 || snap[0].Dir != DirUp || snap[0].Ticks != 1 {
		t.Errorf("state = %+v", snap)
	}
}

func TestRunFailsOnUnresolvableSymbol(t *testing.T) {
	provider := newFakeProvider(nil)
	svc := NewService(ServiceDeps{
		Provider: provider,
		Symbols:  []string{"CRYPTO:BTC@USDT_SPOT", "garbage"},
		Period:   model.MustParsePeriod("1m"),
		Store:    &memStore{bars: make(map[string][]model.KLinePoint)},
		Sink:     &chanSink{ch: make(chan model.KLinePoint, 1)},
	})

	err := svc.Run(context.Background())
	if !errors.Is(err, feederr.ErrSymbolNotFound) {
		t.Fatalf("Run = %v, want ErrSymbolNotFound", err)
	}
	if len(provider.unsubscribe) != 1 {
		t.Errorf("earlier listener not released: %v", provider.unsubscribe)
	}
}

func TestRunWithoutSymbols(t *testing.T) {
	if err := NewService(ServiceDeps{}).Run(context.Background()); !errors.Is(err, ErrNoSymbols) {
		t.Errorf("Run = %v", err)
	}
}

func TestStateApply(t *testing.T) {
	s := NewState()
	s.Seed("k", model.KLinePoint{Close: 10}, true)
	if !s.Apply("k", model.KLinePoint{Close: 9}) {
		t.Error("price change not reported")
	}
	if s.Apply("k", model.KLinePoint{Close: 9}) {
		t.Error("unchanged close reported as change")
	}
	if st := s.Snapshot()[0]; st.Dir != DirSame || st.Ticks != 2 {
		t.Errorf("state = %+v", st)
	}
}
