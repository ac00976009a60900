package yahoo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"tradefeed/internal/domain/feederr"
	"tradefeed/internal/domain/instrument"
	"tradefeed/internal/domain/model"
	"tradefeed/internal/infrastructure/exchange"
	"tradefeed/internal/infrastructure/history"
)

// Yahoo chart 周期写法
var intervals = map[string]string{
	"1m": "1m", "2m": "2m", "5m": "5m", "15m": "15m", "30m": "30m",
	"1h": "60m", "1d": "1d", "5d": "5d", "1w": "1wk", "1M": "1mo", "3M": "3mo",
}

func interval(p model.Period) (string, error) {
	iv, ok := intervals[p.String()]
	if !p.Valid() || !ok {
		return "", fmt.Errorf("%w: yahoo interval %s", feederr.ErrUnsupported, p)
	}
	return iv, nil
}

// 轮询最新 K 线时使用的时间范围
func latestRange(p model.Period) string {
	switch p.Timespan {
	case model.Minute, model.Hour:
		return "1d"
	case model.Day:
		return "1mo"
	}
	return "2y"
}

type chartMeta struct {
	Symbol       string `json:"symbol"`
	Currency     string `json:"currency"`
	ExchangeName string `json:"exchangeName"`
	Timezone     string `json:"exchangeTimezoneName"`
	LongName     string `json:"longName"`
	ShortName    string `json:"shortName"`
}

// quote 字段在停牌/无成交的时间点为 null
type quote struct {
	Open   []*float64 `json:"open"`
	High   []*float64 `json:"high"`
	Low    []*float64 `json:"low"`
	Close  []*float64 `json:"close"`
	Volume []*float64 `json:"volume"`
}

type chartResult struct {
	Meta       chartMeta `json:"meta"`
	Timestamp  []int64   `json:"timestamp"`
	Indicators struct {
		Quote []quote `json:"quote"`
	} `json:"indicators"`
}

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// chart GET /v8/finance/chart/{symbol}
func (f *Feed) chart(ctx context.Context, symbol string, params url.Values) (chartResult, error) {
	var resp chartResponse
	err := f.rest.GetJSON(ctx, "/v8/finance/chart/"+url.PathEscape(symbol), params, &resp)
	if err != nil {
		var ue *feederr.UpstreamError
		if errors.As(err, &ue) && ue.Status == http.StatusNotFound {
			return chartResult{}, fmt.Errorf("%w: %s", feederr.ErrSymbolNotFound, symbol)
		}
		return chartResult{}, err
	}
	if e := resp.Chart.Error; e != nil {
		if e.Code == "Not Found" {
			return chartResult{}, fmt.Errorf("%w: %s", feederr.ErrSymbolNotFound, symbol)
		}
		return chartResult{}, &feederr.UpstreamError{Provider: Name, Status: http.StatusOK, Code: e.Code, Message: e.Description}
	}
	if len(resp.Chart.Result) == 0 {
		return chartResult{}, fmt.Errorf("%w: %s", feederr.ErrSymbolNotFound, symbol)
	}
	return resp.Chart.Result[0], nil
}

// points null 的时间点保留为零成交 K 线，交给 FillGaps 补齐
func (r chartResult) points() []model.KLinePoint {
	if len(r.Indicators.Quote) == 0 {
		return nil
	}
	q := r.Indicators.Quote[0]
	at := func(s []*float64, i int) float64 {
		if i < len(s) && s[i] != nil {
			return *s[i]
		}
		return 0
	}

	out := make([]model.KLinePoint, 0, len(r.Timestamp))
	for i, ts := range r.Timestamp {
		p := model.KLinePoint{Timestamp: ts * 1000}
		if i < len(q.Close) && q.Close[i] != nil {
			p.Open, p.High, p.Low, p.Close = at(q.Open, i), at(q.High, i), at(q.Low, i), at(q.Close, i)
			p.Volume = at(q.Volume, i)
		}
		out = append(out, p)
	}
	return out
}

// FetchBars 实现 history.Source
func (f *Feed) FetchBars(ctx context.Context, q history.Query) (history.Page, error) {
	iv, err := interval(q.Period)
	if err != nil {
		return history.Page{}, err
	}

	to := exchange.MillisOrNow(q.To) / 1000
	from := q.From.Unix()
	if q.From.IsZero() {
		from = to - int64(q.Limit)*int64(q.Period.Duration().Seconds())
	}

	params := url.Values{}
	params.Set("interval", iv)
	params.Set("period1", strconv.FormatInt(from, 10))
	params.Set("period2", strconv.FormatInt(to, 10))
	params.Set("includePrePost", "false")

	res, err := f.chart(ctx, q.Instrument.BaseSymbol(), params)
	if err != nil {
		return history.Page{}, err
	}
	return history.Page{Bars: res.points()}, nil
}

// latest 轮询：取最近一根有成交的 K 线
func (f *Feed) latest(ctx context.Context, key string) (model.KLinePoint, bool, error) {
	symbol, period, err := splitKey(key)
	if err != nil {
		return model.KLinePoint{}, false, err
	}
	iv, err := interval(period)
	if err != nil {
		return model.KLinePoint{}, false, err
	}

	params := url.Values{}
	params.Set("interval", iv)
	params.Set("range", latestRange(period))

	res, err := f.chart(ctx, symbol, params)
	if err != nil {
		return model.KLinePoint{}, false, err
	}
	points := res.points()
	for i := len(points) - 1; i >= 0; i-- {
		if points[i].Close != 0 {
			return points[i], true, nil
		}
	}
	return model.KLinePoint{}, false, nil
}

// StreamKey 例: 0700.HK|1m
func StreamKey(inst instrument.Instrument, p model.Period) (string, error) {
	if _, err := interval(p); err != nil {
		return "", err
	}
	return inst.BaseSymbol() + "|" + p.String(), nil
}

func splitKey(key string) (string, model.Period, error) {
	symbol, ps, ok := strings.Cut(key, "|")
	if !ok {
		return "", model.Period{}, fmt.Errorf("yahoo stream key %q", key)
	}
	p, err := model.ParsePeriod(ps)
	return symbol, p, err
}
