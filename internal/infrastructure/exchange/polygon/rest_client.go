package polygon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"tradefeed/internal/domain/feederr"
	"tradefeed/internal/domain/instrument"
	"tradefeed/internal/domain/model"
	"tradefeed/internal/infrastructure/exchange"
	"tradefeed/internal/infrastructure/history"
)

const (
	maxAggsLimit = 50000
	// 没有 From 时向前放宽的时间窗口，跨周末和休市
	minLookback = 7 * 24 * time.Hour
)

type aggBar struct {
	Volume float64 `json:"v"`
	VWAP   float64 `json:"vw"`
	Open   float64 `json:"o"`
	Close  float64 `json:"c"`
	High   float64 `json:"h"`
	Low    float64 `json:"l"`
	Start  int64   `json:"t"`
}

type aggsResponse struct {
	Status       string   `json:"status"`
	ResultsCount int      `json:"resultsCount"`
	Results      []aggBar `json:"results"`
}

type tickerRef struct {
	Ticker          string `json:"ticker"`
	Name            string `json:"name"`
	Market          string `json:"market"`
	PrimaryExchange string `json:"primary_exchange"`
	CurrencyName    string `json:"currency_name"`
	Active          bool   `json:"active"`
}

// FetchBars 实现 history.Source
// GET /v2/aggs/ticker/{ticker}/range/{multiplier}/{timespan}/{from}/{to}，sort=desc 取最近 limit 根
func (f *Feed) FetchBars(ctx context.Context, q history.Query) (history.Page, error) {
	if !q.Period.Valid() {
		return history.Page{}, fmt.Errorf("%w: polygon period %s", feederr.ErrUnsupported, q.Period)
	}

	to := exchange.MillisOrNow(q.To) - 1
	from := q.From.UnixMilli()
	if q.From.IsZero() {
		lookback := time.Duration(q.Limit) * q.Period.Duration() * 5
		lookback = max(lookback, minLookback)
		from = to - lookback.Milliseconds()
	}
	limit := min(q.Limit, maxAggsLimit)

	path := fmt.Sprintf("/v2/aggs/ticker/%s/range/%d/%s/%d/%d",
		url.PathEscape(q.Instrument.BaseSymbol()), q.Period.Multiplier, q.Period.Timespan, from, to)
	params := url.Values{}
	params.Set("adjusted", "true")
	params.Set("sort", "desc")
	params.Set("limit", strconv.Itoa(limit))

	var resp aggsResponse
	if err := f.rest.GetJSON(ctx, path, params, &resp); err != nil {
		return history.Page{}, classify(err)
	}

	bars := make([]model.KLinePoint, 0, len(resp.Results))
	for _, b := range resp.Results {
		turnover := b.VWAP * b.Volume
		bars = append(bars, model.KLinePoint{
			Timestamp: b.Start,
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
			Turnover:  &turnover,
		})
	}
	return history.Page{Bars: bars}, nil
}

func (f *Feed) searchTickers(ctx context.Context, query string, limit int) ([]tickerRef, error) {
	params := url.Values{}
	params.Set("search", query)
	params.Set("market", "stocks")
	params.Set("active", "true")
	params.Set("limit", strconv.Itoa(limit))

	var resp struct {
		Results []tickerRef `json:"results"`
	}
	if err := f.rest.GetJSON(ctx, "/v3/reference/tickers", params, &resp); err != nil {
		return nil, classify(err)
	}
	return resp.Results, nil
}

func (f *Feed) tickerDetails(ctx context.Context, ticker string) (tickerRef, error) {
	var resp struct {
		Results tickerRef `json:"results"`
	}
	if err := f.rest.GetJSON(ctx, "/v3/reference/tickers/"+url.PathEscape(ticker), nil, &resp); err != nil {
		return tickerRef{}, classify(err)
	}
	if resp.Results.Ticker == "" {
		return tickerRef{}, fmt.Errorf("%w: %s", feederr.ErrSymbolNotFound, ticker)
	}
	return resp.Results, nil
}

// classify 404 -> ErrSymbolNotFound；401/403 -> ErrAuthFailure
func classify(err error) error {
	var ue *feederr.UpstreamError
	if !errors.As(err, &ue) {
		return err
	}
	switch ue.Status {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", feederr.ErrSymbolNotFound, ue.Message)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", feederr.ErrAuthFailure, ue.Message)
	}
	return err
}

func symbolInfo(ref tickerRef) model.SymbolInfo {
	inst := instrument.Build(instrument.AssetUSStock, ref.Ticker, "", "USD", instrument.ProductSpot)
	info := model.NewSymbolInfo(inst, Name, ref.PrimaryExchange)
	if ref.Name != "" {
		info.Description = ref.Name
	}
	info.Timezone = "America/New_York"
	info.Session = "0930-1600"
	info.SupportedResolutions = exchange.DefaultResolutions
	return info
}
