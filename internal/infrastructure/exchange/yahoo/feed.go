// Package yahoo 港股 / A 股行情源：没有推送通道，用定时轮询 chart 接口模拟订阅
package yahoo

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"tradefeed/internal/application/port"
	"tradefeed/internal/domain/feederr"
	"tradefeed/internal/domain/instrument"
	"tradefeed/internal/domain/model"
	"tradefeed/internal/infrastructure/datafeed"
	"tradefeed/internal/infrastructure/exchange"
	"tradefeed/internal/infrastructure/history"
)

const (
	Name = "yahoo"

	DefaultRESTURL = "https://query1.finance.yahoo.com"

	maxSearchResults = 20
	userAgent        = "Mozilla/5.0 (compatible; tradefeed)"
)

// market 后缀 -> 资产类别、计价货币、时区、交易时段
type marketSpec struct {
	asset    instrument.AssetClass
	quote    string
	timezone string
	session  string
	exchange string
}

var markets = map[string]marketSpec{
	"HK": {instrument.AssetHKStock, "HKD", "Asia/Hong_Kong", "0930-1200,1300-1600", "HKEX"},
	"SS": {instrument.AssetCNStock, "CNY", "Asia/Shanghai", "0930-1130,1300-1500", "SSE"},
	"SZ": {instrument.AssetCNStock, "CNY", "Asia/Shanghai", "0930-1130,1300-1500", "SZSE"},
}

type Feed struct {
	rest    *exchange.RESTClient
	poll    *exchange.PollFeed
	fetcher *history.Fetcher
}

var (
	_ port.DatafeedProvider = (*Feed)(nil)
	_ datafeed.Capability   = (*Feed)(nil)
	_ history.Source        = (*Feed)(nil)
)

func New(opts datafeed.Options) (*Feed, error) {
	if opts.RESTURL == "" {
		opts.RESTURL = DefaultRESTURL
	}

	f := &Feed{rest: exchange.NewRESTClient(Name, opts.RESTURL, opts.HTTPClient)}
	f.rest.SetHeader("User-Agent", userAgent)
	f.poll = exchange.NewPollFeed(Name, opts.PollInterval, f.latest)
	// 停牌和午休时段 chart 返回 null，必须补齐
	f.fetcher = history.NewFetcher(f, history.Options{
		Name:          Name,
		FirstPageSize: opts.FirstPageSize,
		PageSize:      opts.PageSize,
		MaxRetries:    opts.MaxRetries,
		FillGaps:      true,
	})
	return f, nil
}

func (f *Feed) Name() string { return Name }

func (f *Feed) Supports(inst instrument.Instrument) bool {
	switch inst.AssetClass() {
	case instrument.AssetHKStock, instrument.AssetCNStock:
		return true
	}
	return false
}

func (f *Feed) OnReady(ctx context.Context) <-chan model.DatafeedConfig {
	return exchange.Ready(model.DatafeedConfig{
		SupportedResolutions: []string{"1", "5", "15", "30", "60", "1D", "1W", "1M"},
		Exchanges: []model.Exchange{
			{Value: "HKEX", Name: "HKEX", Desc: "Hong Kong Exchanges"},
			{Value: "SSE", Name: "SSE", Desc: "Shanghai Stock Exchange"},
			{Value: "SZSE", Name: "SZSE", Desc: "Shenzhen Stock Exchange"},
		},
	})
}

// FromSymbol Yahoo 代码 -> 规范标识符，例: 0700.HK -> HK_STOCK:0700.HK@HKD_SPOT
func FromSymbol(symbol string) (instrument.Instrument, bool) {
	code, suffix, ok := strings.Cut(strings.ToUpper(symbol), ".")
	if !ok {
		return instrument.Instrument{}, false
	}
	spec, ok := markets[suffix]
	if !ok {
		return instrument.Instrument{}, false
	}
	return instrument.Build(spec.asset, code, suffix, spec.quote, instrument.ProductSpot), true
}

func symbolInfo(inst instrument.Instrument, description string) model.SymbolInfo {
	spec := markets[inst.Market()]
	info := model.NewSymbolInfo(inst, Name, spec.exchange)
	if description != "" {
		info.Description = description
	}
	info.Timezone = spec.timezone
	info.Session = spec.session
	info.PriceScale = 1000
	info.SupportedResolutions = []string{"1", "5", "15", "30", "60", "1D", "1W", "1M"}
	return info
}

type searchResponse struct {
	Quotes []struct {
		Symbol    string `json:"symbol"`
		ShortName string `json:"shortname"`
		LongName  string `json:"longname"`
		QuoteType string `json:"quoteType"`
	} `json:"quotes"`
}

// SearchSymbols 只保留港股、沪深股票
func (f *Feed) SearchSymbols(ctx context.Context, query string) []model.SymbolInfo {
	params := url.Values{}
	params.Set("q", query)
	params.Set("quotesCount", strconv.Itoa(maxSearchResults))
	params.Set("newsCount", "0")

	var resp searchResponse
	if err := f.rest.GetJSON(ctx, "/v1/finance/search", params, &resp); err != nil {
		log.Warn().Str("feed", Name).Str("query", query).Err(err).Msg("symbol search failed")
		return []model.SymbolInfo{}
	}

	out := make([]model.SymbolInfo, 0, len(resp.Quotes))
	for _, q := range resp.Quotes {
		if q.QuoteType != "EQUITY" {
			continue
		}
		inst, ok := FromSymbol(q.Symbol)
		if !ok {
			continue
		}
		name := q.LongName
		if name == "" {
			name = q.ShortName
		}
		out = append(out, symbolInfo(inst, name))
	}
	return out
}

// ResolveSymbol 通过一次日线 chart 请求确认代码存在
func (f *Feed) ResolveSymbol(ctx context.Context, ticker string) (model.SymbolInfo, error) {
	inst := instrument.Parse(ticker)
	if !f.Supports(inst) {
		return model.SymbolInfo{}, fmt.Errorf("%w: %s", feederr.ErrSymbolNotFound, ticker)
	}
	if _, ok := markets[inst.Market()]; !ok {
		return model.SymbolInfo{}, fmt.Errorf("%w: %s", feederr.ErrSymbolNotFound, ticker)
	}

	params := url.Values{}
	params.Set("interval", "1d")
	params.Set("range", "5d")
	res, err := f.chart(ctx, inst.BaseSymbol(), params)
	if err != nil {
		return model.SymbolInfo{}, err
	}
	name := res.Meta.LongName
	if name == "" {
		name = res.Meta.ShortName
	}
	return symbolInfo(inst, name), nil
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
	return f.poll.Listen(listenerID, key, onTick)
}

func (f *Feed) Unsubscribe(listenerID string) {
	f.poll.Unlisten(listenerID)
}

func (f *Feed) Close() error {
	return f.poll.Close()
}
