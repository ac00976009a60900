// Package okx OKX 衍生品行情源（永续、交割、期权）
package okx

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
	Name = "okx"

	// K 线频道在 business 端点
	DefaultWSURL   = "wss://ws.okx.com:8443/ws/v5/business"
	DefaultRESTURL = "https://www.okx.com"

	maxSearchResults = 50
	symbolCacheTTL   = time.Hour
)

var instTypes = map[instrument.ProductType]string{
	instrument.ProductPerp:    "SWAP",
	instrument.ProductFutures: "FUTURES",
	instrument.ProductOption:  "OPTION",
}

// 搜索只覆盖永续和交割；期权列表按 instFamily 查询，数量过大
var searchTypes = []string{"SWAP", "FUTURES"}

type Feed struct {
	rest    *exchange.RESTClient
	stream  *exchange.StreamFeed
	fetcher *history.Fetcher

	mu       sync.Mutex
	listed   []instrumentMeta
	listedAt time.Time
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

// Supports 加密货币衍生品
func (f *Feed) Supports(inst instrument.Instrument) bool {
	_, ok := instTypes[inst.ProductType()]
	return inst.AssetClass() == instrument.AssetCrypto && ok
}

func (f *Feed) OnReady(ctx context.Context) <-chan model.DatafeedConfig {
	return exchange.Ready(model.DatafeedConfig{
		SupportedResolutions: exchange.DefaultResolutions,
		Exchanges:            []model.Exchange{{Value: "OKX", Name: "OKX", Desc: "OKX Derivatives"}},
	})
}

func (f *Feed) SearchSymbols(ctx context.Context, query string) []model.SymbolInfo {
	listed, err := f.cachedInstruments(ctx)
	if err != nil {
		log.Warn().Str("feed", Name).Err(err).Msg("load instruments failed")
		return []model.SymbolInfo{}
	}

	out := make([]model.SymbolInfo, 0)
	for _, m := range listed {
		if m.State != "live" || !exchange.MatchQuery(query, m.InstID) {
			continue
		}
		info, ok := symbolInfo(m)
		if !ok {
			continue
		}
		out = append(out, info)
		if len(out) >= maxSearchResults {
			break
		}
	}
	return out
}

func (f *Feed) cachedInstruments(ctx context.Context) ([]instrumentMeta, error) {
	f.mu.Lock()
	if f.listed != nil && time.Since(f.listedAt) < symbolCacheTTL {
		listed := f.listed
		f.mu.Unlock()
		return listed, nil
	}
	f.mu.Unlock()

	var listed []instrumentMeta
	for _, t := range searchTypes {
		metas, err := f.instruments(ctx, t, "", "")
		if err != nil {
			return nil, err
		}
		listed = append(listed, metas...)
	}

	f.mu.Lock()
	f.listed, f.listedAt = listed, time.Now()
	f.mu.Unlock()
	return listed, nil
}

func (f *Feed) ResolveSymbol(ctx context.Context, ticker string) (model.SymbolInfo, error) {
	inst := instrument.Parse(ticker)
	if !f.Supports(inst) {
		return model.SymbolInfo{}, fmt.Errorf("%w: %s", feederr.ErrSymbolNotFound, ticker)
	}
	instType := instTypes[inst.ProductType()]
	family := ""
	if instType == "OPTION" {
		family = inst.BaseSymbol() + "-" + inst.QuoteCurrency()
	}

	metas, err := f.instruments(ctx, instType, InstID(inst), family)
	if err != nil {
		return model.SymbolInfo{}, err
	}
	if len(metas) == 0 {
		return model.SymbolInfo{}, fmt.Errorf("%w: %s", feederr.ErrSymbolNotFound, ticker)
	}
	info, ok := symbolInfo(metas[0])
	if !ok {
		return model.SymbolInfo{}, fmt.Errorf("%w: %s", feederr.ErrSymbolNotFound, ticker)
	}
	return info, nil
}

func symbolInfo(m instrumentMeta) (model.SymbolInfo, bool) {
	inst, ok := FromInstID(m.InstType, m.InstID)
	if !ok {
		return model.SymbolInfo{}, false
	}
	info := model.NewSymbolInfo(inst, Name, "OKX")
	info.Description = m.InstID
	if m.TickSz != "" {
		info.PriceScale = exchange.PriceScale(m.TickSz)
	}
	info.SupportedResolutions = exchange.DefaultResolutions
	return info, true
}

func (f *Feed) GetHistoryKLineData(ctx context.Context, inst instrument.Instrument, period model.Period, params port.HistoryParams) (port.HistoryResult, error) {
	if _, err := bar(period); err != nil {
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
