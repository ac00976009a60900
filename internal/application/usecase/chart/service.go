// Package chart 图表会话：解析品种、回补历史、订阅实时 K 线并写入下游
package chart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"tradefeed/internal/application/port"
	"tradefeed/internal/domain/instrument"
	"tradefeed/internal/domain/model"
)

// ErrNoSymbols 没有配置任何图表品种
var ErrNoSymbols = errors.New("no chart symbols")

type ServiceDeps struct {
	Provider port.DatafeedProvider
	Symbols  []string
	Period   model.Period
	Store    port.BarStore
	Sink     port.TickSink
	// StatusEvery 大于 0 时定期打印各流最新状态
	StatusEvery time.Duration
}

type tick struct {
	key   string
	point model.KLinePoint
}

type Service struct {
	deps ServiceDeps
	st   *State
}

func NewService(deps ServiceDeps) *Service {
	return &Service{deps: deps, st: NewState()}
}

// State 会话状态，只读使用
func (s *Service) State() *State { return s.st }

// StreamKey BarStore 和 TickSink 使用的 key
func StreamKey(inst instrument.Instrument, period model.Period) string {
	return inst.Identifier() + "|" + period.String()
}

// Run 阻塞直到 ctx 取消；退出时退订全部监听者
func (s *Service) Run(ctx context.Context) error {
	if len(s.deps.Symbols) == 0 {
		return ErrNoSymbols
	}

	merged := make(chan tick, 1024)
	var listeners []string
	defer func() {
		for _, id := range listeners {
			s.deps.Provider.Unsubscribe(id)
		}
	}()

	for _, symbol := range s.deps.Symbols {
		id, err := s.open(ctx, symbol, merged)
		if err != nil {
			return err
		}
		listeners = append(listeners, id)
	}

	var status <-chan time.Time
	if s.deps.StatusEvery > 0 {
		t := time.NewTicker(s.deps.StatusEvery)
		defer t.Stop()
		status = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-status:
			for _, st := range s.st.Snapshot() {
				log.Info().Str("stream", st.Key).Float64("close", st.Last.Close).
					Int("dir", int(st.Dir)).Int("ticks", st.Ticks).Msg("chart status")
			}

		case t := <-merged:
			s.st.Apply(t.key, t.point)
			if err := s.deps.Store.UpsertBars(ctx, t.key, []model.KLinePoint{t.point}); err != nil {
				log.Warn().Str("stream", t.key).Err(err).Msg("store tick failed")
			}
			if err := s.deps.Sink.WriteTick(ctx, t.key, t.point); err != nil {
				log.Warn().Str("stream", t.key).Err(err).Msg("sink tick failed")
			}
		}
	}
}

// open 解析、回补、订阅一个品种，返回监听者 ID
func (s *Service) open(ctx context.Context, symbol string, merged chan<- tick) (string, error) {
	info, err := s.deps.Provider.ResolveSymbol(ctx, symbol)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", symbol, err)
	}
	inst := info.Instrument()
	key := StreamKey(inst, s.deps.Period)

	res, err := s.deps.Provider.GetHistoryKLineData(ctx, inst, s.deps.Period, port.HistoryParams{
		To:               time.Now(),
		FirstDataRequest: true,
	})
	if err != nil {
		return "", fmt.Errorf("history %s: %w", symbol, err)
	}
	if err := s.deps.Store.UpsertBars(ctx, key, res.Bars); err != nil {
		return "", fmt.Errorf("store history %s: %w", symbol, err)
	}
	var last model.KLinePoint
	if n := len(res.Bars); n > 0 {
		last = res.Bars[n-1]
	}
	s.st.Seed(key, last, len(res.Bars) > 0)

	id := uuid.NewString()
	onTick := func(p model.KLinePoint) {
		select {
		case merged <- tick{key: key, point: p}:
		case <-ctx.Done():
		}
	}
	if err := s.deps.Provider.Subscribe(inst, s.deps.Period, onTick, id); err != nil {
		return "", fmt.Errorf("subscribe %s: %w", symbol, err)
	}

	log.Info().Str("symbol", info.Ticker).Str("provider", info.Provider).Str("period", s.deps.Period.String()).
		Int("bars", len(res.Bars)).Bool("more", res.More).Msg("chart opened")
	return id, nil
}
