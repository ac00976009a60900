// Package polymarket 预测市场行情源：gamma 元数据 + CLOB 价格，轮询模拟订阅
package polymarket

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
)

const (
	Name = "polymarket"

	DefaultGammaURL = "https://gamma-api.polymarket.com"
	DefaultCLOBURL  = "https://clob.polymarket.com"
)

var resolutions = []string{"1", "5", "15", "60", "240", "1D"}

type cachedToken struct {
	tokenID string
	market  market
}

type Feed struct {
	gamma   *exchange.RESTClient
	clob    *exchange.RESTClient
	poll    *exchange.PollFeed
	fetcher *history.Fetcher
	now     func() time.Time

	mu      sync.Mutex
	tokens  map[string]cachedToken // identifier -> token
	rollups map[string]*exchange.Rollup
}

var (
	_ port.DatafeedProvider = (*Feed)(nil)
	_ datafeed.Capability   = (*Feed)(nil)
	_ history.Source        = (*Feed)(nil)
)

// New RESTURL 为 gamma 地址，HistoryURL 为 CLOB 地址
func New(opts datafeed.Options) (*Feed, error) {
	if opts.RESTURL == "" {
		opts.RESTURL = DefaultGammaURL
	}
	if opts.HistoryURL == "" {
		opts.HistoryURL = DefaultCLOBURL
	}

	f := &Feed{
		gamma:   exchange.NewRESTClient(Name, opts.RESTURL, opts.HTTPClient),
		clob:    exchange.NewRESTClient(Name, opts.HistoryURL, opts.HTTPClient),
		now:     time.Now,
		tokens:  make(map[string]cachedToken),
		rollups: make(map[string]*exchange.Rollup),
	}
	f.poll = exchange.NewPollFeed(Name, opts.PollInterval, f.latest)
	f.poll.OnRelease(f.dropRollup)
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
	return inst.AssetClass() == instrument.AssetPrediction && inst.ProductType().IsOutcome()
}

func (f *Feed) OnReady(ctx context.Context) <-chan model.DatafeedConfig {
	return exchange.Ready(model.DatafeedConfig{
		SupportedResolutions: resolutions,
		Exchanges:            []model.Exchange{{Value: "POLYMARKET", Name: "Polymarket", Desc: "Polymarket prediction markets"}},
	})
}

// SearchSymbols 每个市场的每个结果各算一个品种
func (f *Feed) SearchSymbols(ctx context.Context, query string) []model.SymbolInfo {
	markets, err := f.search(ctx, query)
	if err != nil {
		log.Warn().Str("feed", Name).Str("query", query).Err(err).Msg("market search failed")
		return []model.SymbolInfo{}
	}

	out := make([]model.SymbolInfo, 0, len(markets)*2)
	for _, m := range markets {
		outcomes, err := m.outcomes()
		if err != nil {
			log.Debug().Str("feed", Name).Str("market", m.Slug).Err(err).Msg("skip market")
			continue
		}
		for _, o := range outcomes {
			out = append(out, symbolInfo(m, o))
		}
	}
	return out
}

func (f *Feed) ResolveSymbol(ctx context.Context, ticker string) (model.SymbolInfo, error) {
	inst := instrument.Parse(ticker)
	if !f.Supports(inst) {
		return model.SymbolInfo{}, fmt.Errorf("%w: %s", feederr.ErrSymbolNotFound, ticker)
	}
	token, m, err := f.tokenFor(ctx, inst)
	if err != nil {
		return model.SymbolInfo{}, err
	}
	outcomes, _ := m.outcomes()
	for _, o := range outcomes {
		if o.TokenID == token {
			return symbolInfo(m, o), nil
		}
	}
	return model.SymbolInfo{}, fmt.Errorf("%w: %s", feederr.ErrSymbolNotFound, ticker)
}

func (f *Feed) GetHistoryKLineData(ctx context.Context, inst instrument.Instrument, period model.Period, params port.HistoryParams) (port.HistoryResult, error) {
	if _, err := fidelity(period); err != nil {
		return port.HistoryResult{}, err
	}
	res, err := f.fetcher.GetHistory(ctx, inst, period, exchange.HistoryRange(params))
	if err != nil {
		return port.HistoryResult{}, err
	}
	return exchange.HistoryResult(res), nil
}

// StreamKey 例: PREDICTION:will-btc-hit-100k@USD_OUTCOME_YES|5m
func StreamKey(inst instrument.Instrument, p model.Period) (string, error) {
	if _, err := fidelity(p); err != nil {
		return "", err
	}
	return inst.Identifier() + "|" + p.String(), nil
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
