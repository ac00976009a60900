package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"tradefeed/internal/domain/feederr"
	"tradefeed/internal/domain/instrument"
	"tradefeed/internal/domain/model"
	"tradefeed/internal/infrastructure/exchange"
	"tradefeed/internal/infrastructure/history"
)

// Binance 单次最多返回 1000 根
const maxKlineLimit = 1000

// 参数错误码 -1121: Invalid symbol
const codeInvalidSymbol = -1121

type symbolFilter struct {
	FilterType string `json:"filterType"`
	TickSize   string `json:"tickSize"`
}

type symbolMeta struct {
	Symbol     string         `json:"symbol"`
	Status     string         `json:"status"`
	BaseAsset  string         `json:"baseAsset"`
	QuoteAsset string         `json:"quoteAsset"`
	Filters    []symbolFilter `json:"filters"`
}

func (m symbolMeta) tickSize() string {
	for _, f := range m.Filters {
		if f.FilterType == "PRICE_FILTER" {
			return f.TickSize
		}
	}
	return ""
}

type exchangeInfo struct {
	Symbols []symbolMeta `json:"symbols"`
}

type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// exchangeInfo symbol 为空时返回全部交易对
func (f *Feed) exchangeInfo(ctx context.Context, symbol string) ([]symbolMeta, error) {
	q := url.Values{}
	if symbol != "" {
		q.Set("symbol", symbol)
	}
	var info exchangeInfo
	if err := f.rest.GetJSON(ctx, "/api/v3/exchangeInfo", q, &info); err != nil {
		return nil, classify(err)
	}
	return info.Symbols, nil
}

// classify 把 Binance 的错误码映射为领域错误
func classify(err error) error {
	var ue *feederr.UpstreamError
	if !errors.As(err, &ue) {
		return err
	}
	var body apiError
	if json.Unmarshal([]byte(ue.Message), &body) == nil && body.Code != 0 {
		ue.Code = strconv.Itoa(body.Code)
		ue.Message = body.Msg
		if body.Code == codeInvalidSymbol {
			return fmt.Errorf("%w: %s", feederr.ErrSymbolNotFound, body.Msg)
		}
	}
	return ue
}

// FetchBars 实现 history.Source: GET /api/v3/klines
// [openTime, open, high, low, close, volume, closeTime, quoteVolume, ...]
func (f *Feed) FetchBars(ctx context.Context, q history.Query) (history.Page, error) {
	iv, err := interval(q.Period)
	if err != nil {
		return history.Page{}, err
	}
	limit := q.Limit
	if limit > maxKlineLimit {
		limit = maxKlineLimit
	}

	params := url.Values{}
	params.Set("symbol", exchange.VenueSymbol(q.Instrument, ""))
	params.Set("interval", iv)
	params.Set("limit", strconv.Itoa(limit))
	if !q.From.IsZero() {
		params.Set("startTime", strconv.FormatInt(q.From.UnixMilli(), 10))
	}
	if !q.To.IsZero() {
		// endTime 包含
		params.Set("endTime", strconv.FormatInt(q.To.UnixMilli()-1, 10))
	}

	var rows [][]json.RawMessage
	if err := f.rest.GetJSON(ctx, "/api/v3/klines", params, &rows); err != nil {
		return history.Page{}, classify(err)
	}

	bars := make([]model.KLinePoint, 0, len(rows))
	for _, row := range rows {
		if p, ok := parseKlineRow(row); ok {
			bars = append(bars, p)
		}
	}
	return history.Page{Bars: bars}, nil
}

func parseKlineRow(row []json.RawMessage) (model.KLinePoint, bool) {
	if len(row) < 8 {
		return model.KLinePoint{}, false
	}
	var ts int64
	if err := json.Unmarshal(row[0], &ts); err != nil {
		return model.KLinePoint{}, false
	}
	str := func(i int) float64 {
		var s string
		_ = json.Unmarshal(row[i], &s)
		return exchange.ParseFloat(s)
	}
	turnover := str(7)
	return model.KLinePoint{
		Timestamp: ts,
		Open:      str(1),
		High:      str(2),
		Low:       str(3),
		Close:     str(4),
		Volume:    str(5),
		Turnover:  &turnover,
	}, true
}

func symbolInfo(m symbolMeta) model.SymbolInfo {
	inst := instrument.Build(instrument.AssetCrypto, m.BaseAsset, "", m.QuoteAsset, instrument.ProductSpot)
	info := model.NewSymbolInfo(inst, Name, "BINANCE")
	info.Description = m.BaseAsset + "/" + m.QuoteAsset + " Binance Spot"
	if tick := m.tickSize(); tick != "" {
		info.PriceScale = exchange.PriceScale(tick)
	}
	info.SupportedResolutions = exchange.DefaultResolutions
	return info
}
