// Package binance Binance 现货行情源
package binance

import (
	"context"
	"fmt"
	"sync"
	"time"

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
	Name = "binance"

	DefaultWSURL   = "wss://stream.binance.com:9443/ws"
	DefaultRESTURL = "https://api.binance.com"

	maxSearchResults = 50
	symbolCacheTTL   = time.Hour
)

// Feed 现货 K 线：WebSocket 推送 + /api/v3/klines 回补
type Feed struct {
	rest    *exchange.RESTClient
	stream  *exchange.StreamFeed
	fetcher *history.Fetcher

	mu        sync.Mutex
	symbols   []symbolMeta
	symbolsAt time.Time
}

var (
	_ port.DatafeedProvider = (*Feed)(nil)
	_ datafeed.Capability   = (*Feed)(nil)
	_ history.Source        = (*Feed)(nil)
)

func New(opts datafeed.Options) (*Feed, error) {
	if opts.WSURL == "" {
		opts.WSURL = DefaultWSURL
	}
	if opts.RESTURL == "" {
		opts.RESTURL = DefaultRESTURL
	}

	f := &Feed{rest: exchange.NewRESTClient(Name, opts.RESTURL, opts.HTTPClient)}
	f.stream = exchange.NewStreamFeed(transport.Options{
		Name:           Name,
		URL:            opts.WSURL,
		ReconnectDelay: opts.ReconnectDelay,
	}, &protocol{})
	f.fetcher = history.NewFetcher(f, history.Options{
		Name:          Name,
		FirstPageSize: opts.FirstPageSize,
		PageSize:      opts.PageSize,
		MaxRetries:    opts.MaxRetries,
	})
	return f, nil
}

func (f *Feed) Name() string { return Name }

// Supports 只负责加密货币现货
func (f *Feed) Supports(inst instrument.Instrument) bool {
	return inst.AssetClass() == instrument.AssetCrypto && inst.ProductType() == instrument.ProductSpot
}

func (f *Feed) OnReady(ctx context.Context) <-chan model.DatafeedConfig {
	return exchange.Ready(model.DatafeedConfig{
		SupportedResolutions: exchange.DefaultResolutions,
		Exchanges:            []model.Exchange{{Value: "BINANCE", Name: "Binance", Desc: "Binance Spot"}},
	})
}

// SearchSymbols 交易对列表缓存一小时；失败返回空列表
func (f *Feed) SearchSymbols(ctx context.Context, query string) []model.SymbolInfo {
	symbols, err := f.cachedSymbols(ctx)
	if err != nil {
		log.Warn().Str("feed", Name).Err(err).Msg("load exchange info failed")
		return []model.SymbolInfo{}
	}

	out := make([]model.SymbolInfo, 0)
	for _, m := range symbols {
		if m.Status != "TRADING" || !exchange.MatchQuery(query, m.Symbol, m.BaseAsset) {
			continue
		}
		out = append(out, symbolInfo(m))
		if len(out) >= maxSearchResults {
			break
		}
	}
	return out
}

func (f *Feed) cachedSymbols(ctx context.Context) ([]symbolMeta, error) {
	f.mu.Lock()
	if f.symbols != nil && time.Since(f.symbolsAt) < symbolCacheTTL {
		symbols := f.symbols
		f.mu.Unlock()
		return symbols, nil
	}
	f.mu.Unlock()

	symbols, err := f.exchangeInfo(ctx, "")
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.symbols, f.symbolsAt = symbols, time.Now()
	f.mu.Unlock()
	return symbols, nil
}

func (f *Feed) ResolveSymbol(ctx context.Context, ticker string) (model.SymbolInfo, error) {
	inst := instrument.Parse(ticker)
	if !f.Supports(inst) {
		return model.SymbolInfo{}, fmt.Errorf("%w: %s", feederr.ErrSymbolNotFound, ticker)
	}
	metas, err := f.exchangeInfo(ctx, exchange.VenueSymbol(inst, ""))
	if err != nil {
		return model.SymbolInfo{}, err
	}
	if len(metas) == 0 {
		return model.SymbolInfo{}, fmt.Errorf("%w: %s", feederr.ErrSymbolNotFound, ticker)
	}
	return symbolInfo(metas[0]), nil
}

func (f *Feed) GetHistoryKLineData(ctx context.Context, inst instrument.Instrument, period model.Period, params port.HistoryParams) (port.HistoryResult, error) {
	if _, err := interval(period); err != nil {
		return port.HistoryResult{}, err
	}
	res, err := f.fetcher.GetHistory(ctx, inst, period, exchange.HistoryRange(params))
	if err != nil {
		return port.HistoryResult{}, err
	}
	return exchange.HistoryResult(res), nil
}

func (f *Feed) Subscribe(inst instrument.Instrument, period model.Period, onTick port.TickFunc, listenerID string) error {
	key, err := StreamKey(inst, period)
	if err != nil {
		return err
	}
	return f.stream.Listen(listenerID, key, onTick)
}

func (f *Feed) Unsubscribe(listenerID string) {
	f.stream.Unlisten(listenerID)
}

func (f *Feed) Close() error {
	return f.stream.Close()
}
