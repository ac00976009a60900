package okx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"tradefeed/internal/domain/feederr"
	"tradefeed/internal/domain/model"
	"tradefeed/internal/infrastructure/history"
)

// history-candles 单次最多 100 根
const maxCandleLimit = 100

// 51001: Instrument ID does not exist
const codeInstrumentNotFound = "51001"

type envelope[T any] struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data T      `json:"data"`
}

func (e envelope[T]) err() error {
	if e.Code == "0" || e.Code == "" {
		return nil
	}
	if e.Code == codeInstrumentNotFound {
		return fmt.Errorf("%w: %s", feederr.ErrSymbolNotFound, e.Msg)
	}
	return &feederr.UpstreamError{Provider: Name, Status: 200, Code: e.Code, Message: e.Msg}
}

type instrumentMeta struct {
	InstType string `json:"instType"`
	InstID   string `json:"instId"`
	State    string `json:"state"`
	TickSz   string `json:"tickSz"`
}

// instruments OPTION 必须带 instFamily，例如 BTC-USD
func (f *Feed) instruments(ctx context.Context, instType, instID, family string) ([]instrumentMeta, error) {
	q := url.Values{}
	q.Set("instType", instType)
	if instID != "" {
		q.Set("instId", instID)
	}
	if family != "" {
		q.Set("instFamily", family)
	}
	var resp envelope[[]instrumentMeta]
	if err := f.rest.GetJSON(ctx, "/api/v5/public/instruments", q, &resp); err != nil {
		return nil, err
	}
	if err := resp.err(); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// FetchBars 实现 history.Source: GET /api/v5/market/history-candles，新的在前
// after: 早于该时间（不包含）；before: 晚于该时间（不包含）
func (f *Feed) FetchBars(ctx context.Context, q history.Query) (history.Page, error) {
	b, err := bar(q.Period)
	if err != nil {
		return history.Page{}, err
	}
	limit := q.Limit
	if limit > maxCandleLimit {
		limit = maxCandleLimit
	}

	params := url.Values{}
	params.Set("instId", InstID(q.Instrument))
	params.Set("bar", b)
	params.Set("limit", strconv.Itoa(limit))
	if !q.To.IsZero() {
		params.Set("after", strconv.FormatInt(q.To.UnixMilli(), 10))
	}
	if !q.From.IsZero() {
		params.Set("before", strconv.FormatInt(q.From.UnixMilli()-1, 10))
	}

	var resp envelope[[][]json.RawMessage]
	if err := f.rest.GetJSON(ctx, "/api/v5/market/history-candles", params, &resp); err != nil {
		return history.Page{}, err
	}
	if err := resp.err(); err != nil {
		return history.Page{}, err
	}

	out := make([]model.KLinePoint, 0, len(resp.Data))
	for _, row := range resp.Data {
		if p, ok := parseCandle(row); ok {
			out = append(out, p)
		}
	}
	return history.Page{Bars: out}, nil
}
