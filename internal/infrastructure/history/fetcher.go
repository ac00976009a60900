// Package history 历史 K 线回补：有界的 REST 区间查询 + 稀疏序列补齐策略
package history

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"

	"tradefeed/internal/domain/feederr"
	"tradefeed/internal/domain/instrument"
	"tradefeed/internal/domain/model"
)

const (
	DefaultFirstPageSize = 500
	DefaultPageSize      = 200
	DefaultMaxRetries    = 2
)

// Query 发给具体行情源的一次区间查询
// From 为零表示取 To 之前最近的 Limit 根；To 为不包含的上界，零表示当前
type Query struct {
	Instrument instrument.Instrument
	Period     model.Period
	From       time.Time
	To         time.Time
	Limit      int
}

// Page 行情源返回的一页
type Page struct {
	Bars []model.KLinePoint
	// End 上游明确表示没有更多历史
	End bool
}

// Source 各行情源的 REST 实现
type Source interface {
	FetchBars(ctx context.Context, q Query) (Page, error)
}

// SourceFunc 函数适配
type SourceFunc func(ctx context.Context, q Query) (Page, error)

func (f SourceFunc) FetchBars(ctx context.Context, q Query) (Page, error) {
	return f(ctx, q)
}

// Range 调用方给出的区间
type Range struct {
	From             time.Time
	To               time.Time // 不包含
	CountBack        int
	FirstDataRequest bool
}

// Result 历史数据 + 元信息
type Result struct {
	Bars   []model.KLinePoint
	NoData bool
	More   bool
}

// Options Fetcher 配置
type Options struct {
	Name          string
	FirstPageSize int
	PageSize      int
	FillGaps      bool // 无成交也会出 K 线的市场需要打开
	MaxRetries    int
	RetryInterval time.Duration
}

// Fetcher 历史数据获取器
type Fetcher struct {
	opts   Options
	source Source
}

func NewFetcher(source Source, opts Options) *Fetcher {
	if opts.FirstPageSize <= 0 {
		opts.FirstPageSize = DefaultFirstPageSize
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 500 * time.Millisecond
	}
	return &Fetcher{opts: opts, source: source}
}

// GetHistory 获取一页历史 K 线
func (f *Fetcher) GetHistory(ctx context.Context, inst instrument.Instrument, period model.Period, rng Range) (Result, error) {
	limit := f.opts.PageSize
	if rng.FirstDataRequest {
		limit = f.opts.FirstPageSize
	}
	if rng.CountBack > limit {
		limit = rng.CountBack
	}

	q := Query{
		Instrument: inst,
		Period:     period,
		From:       rng.From,
		To:         rng.To,
		Limit:      limit,
	}

	page, err := f.fetchWithRetry(ctx, q)
	if err != nil {
		return Result{}, err
	}

	bars := clip(page.Bars, rng.From, rng.To)
	bars = model.NormalizeBars(bars)
	if f.opts.FillGaps {
		bars = model.FillGaps(bars)
	}

	return Result{
		Bars:   bars,
		NoData: len(bars) == 0,
		More:   len(bars) > 0 && !page.End,
	}, nil
}

func (f *Fetcher) fetchWithRetry(ctx context.Context, q Query) (Page, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.opts.RetryInterval
	b.Reset()

	for attempt := 0; ; attempt++ {
		page, err := f.source.FetchBars(ctx, q)
		if err == nil {
			return page, nil
		}
		if attempt >= f.opts.MaxRetries || !feederr.IsRetryable(err) {
			return Page{}, err
		}

		wait := b.NextBackOff()
		log.Warn().Str("feed", f.opts.Name).Str("symbol", q.Instrument.Identifier()).
			Int("attempt", attempt+1).Int64("delay_ms", wait.Milliseconds()).Err(err).
			Msg("history fetch failed, retrying")
		select {
		case <-ctx.Done():
			return Page{}, ctx.Err()
		case <-time.After(wait):
		}
	}
}

// clip 丢掉区间外的 K 线，To 不包含
func clip(bars []model.KLinePoint, from, to time.Time) []model.KLinePoint {
	if from.IsZero() && to.IsZero() {
		return bars
	}
	out := bars[:0]
	for _, b := range bars {
		if !from.IsZero() && b.Timestamp < from.UnixMilli() {
			continue
		}
		if !to.IsZero() && b.Timestamp >= to.UnixMilli() {
			continue
		}
		out = append(out, b)
	}
	return out
}
