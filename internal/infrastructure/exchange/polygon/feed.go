// Package polygon 美股行情源：鉴权 WebSocket 分钟聚合 + aggs REST 回补
package polygon

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"tradefeed/internal/application/port"
	"tradefeed/internal/domain/feederr"
	"tradefeed/internal/domain/instrument"
	"tradefeed/internal/domain/model"
	"tradefeed/internal/infrastructure/datafeed"
	"tradefeed/internal/infrastructure/exchange"
	"tradefeed/internal/infrastructure/history"
	"tradefeed/internal/infrastructure/transport"
)

const (
	Name = "polygon"

	DefaultWSURL   = "wss://socket.polygon.io/stocks"
	DefaultRESTURL = "https://api.polygon.io"

	maxSearchResults = 20
)

var ErrMissingAPIKey = errors.New("polygon api_key is required")

type Feed struct {
	rest    *exchange.RESTClient
	stream  *exchange.StreamFeed
	fetcher *history.Fetcher
}

var (
	_ port.DatafeedProvider = (*Feed)(nil)
	_ datafeed.Capability   = (*Feed)(nil)
	_ history.Source        = (*Feed)(nil)
)

func New(opts datafeed.Options) (*Feed, error) {
	if opts.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if opts.WSURL == "" {
		opts.WSURL = DefaultWSURL
	}
	if opts.RESTURL == "" {
		opts.RESTURL = DefaultRESTURL
	}

	f := &Feed{rest: exchange.NewRESTClient(Name, opts.RESTURL, opts.HTTPClient)}
	f.rest.SetHeader("Authorization", "Bearer "+opts.APIKey)
	f.stream = exchange.NewStreamFeed(transport.Options{
		Name:           Name,
		URL:            opts.WSURL,
		Auth:           authenticator{apiKey: opts.APIKey},
		ReconnectDelay: opts.ReconnectDelay,
	}, protocol{})
	f.fetcher = history.NewFetcher(f, history.Options{
		Name:          Name,
		FirstPageSize: opts.FirstPageSize,
		PageSize:      opts.PageSize,
		MaxRetries:    opts.MaxRetries,
	})
	return f, nil
}

func (f *Feed) Name() string { return Name }

func (f *Feed) Supports(inst instrument.Instrument) bool {
	return inst.AssetClass() == instrument.AssetUSStock
}

func (f *Feed) OnReady(ctx context.Context) <-chan model.DatafeedConfig {
	return exchange.Ready(model.DatafeedConfig{
		SupportedResolutions: exchange.DefaultResolutions,
		Exchanges: []model.Exchange{
			{Value: "XNAS", Name: "NASDAQ", Desc: "Nasdaq"},
			{Value: "XNYS", Name: "NYSE", Desc: "New York Stock Exchange"},
		},
	})
}

func (f *Feed) SearchSymbols(ctx context.Context, query string) []model.SymbolInfo {
	refs, err := f.searchTickers(ctx, query, maxSearchResults)
	if err != nil {
		log.Warn().Str("feed", Name).Str("query", query).Err(err).Msg("ticker search failed")
		return []model.SymbolInfo{}
	}
	out := make([]model.SymbolInfo, 0, len(refs))
	for _, ref := range refs {
		out = append(out, symbolInfo(ref))
	}
	return out
}

func (f *Feed) ResolveSymbol(ctx context.Context, ticker string) (model.SymbolInfo, error) {
	inst := instrument.Parse(ticker)
	if !f.Supports(inst) {
		return model.SymbolInfo{}, fmt.Errorf("%w: %s", feederr.ErrSymbolNotFound, ticker)
	}
	ref, err := f.tickerDetails(ctx, inst.BaseSymbol())
	if err != nil {
		return model.SymbolInfo{}, err
	}
	return symbolInfo(ref), nil
}

func (f *Feed) GetHistoryKLineData(ctx context.Context, inst instrument.Instrument, period model.Period, params port.HistoryParams) (port.HistoryResult, error) {
	res, err := f.fetcher.GetHistory(ctx, inst, period, exchange.HistoryRange(params))
	if err != nil {
		return port.HistoryResult{}, err
	}
	return exchange.HistoryResult(res), nil
}

// Subscribe 非 1 分钟周期由分钟聚合滚动合成，每个监听者一个 Rollup
func (f *Feed) Subscribe(inst instrument.Instrument, period model.Period, onTick port.TickFunc, listenerID string) error {
	key, err := StreamKey(inst, period)
	if err != nil {
		return err
	}
	if period != (model.Period{Multiplier: 1, Timespan: model.Minute}) {
		onTick = exchange.NewRollup(period).Wrap(onTick)
	}
	return f.stream.Listen(listenerID, key, onTick)
}

func (f *Feed) Unsubscribe(listenerID string) {
	f.stream.Unlisten(listenerID)
}

func (f *Feed) Close() error {
	return f.stream.Close()
}
