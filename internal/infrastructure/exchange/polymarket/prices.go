package polymarket

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"tradefeed/internal/domain/feederr"
	"tradefeed/internal/domain/instrument"
	"tradefeed/internal/domain/model"
	"tradefeed/internal/infrastructure/exchange"
	"tradefeed/internal/infrastructure/history"
)

type pricePoint struct {
	T int64   `json:"t"` // 秒
	P float64 `json:"p"`
}

type priceHistory struct {
	History []pricePoint `json:"history"`
}

// fidelity 以分钟为单位的采样间隔
func fidelity(p model.Period) (int, error) {
	if !p.Valid() || p.Duration() < time.Minute {
		return 0, fmt.Errorf("%w: polymarket period %s", feederr.ErrUnsupported, p)
	}
	return int(p.Duration() / time.Minute), nil
}

// FetchBars 实现 history.Source: GET /prices-history
// 只有价格采样，没有成交量；一个采样点即一根 K 线
func (f *Feed) FetchBars(ctx context.Context, q history.Query) (history.Page, error) {
	fid, err := fidelity(q.Period)
	if err != nil {
		return history.Page{}, err
	}
	token, _, err := f.tokenFor(ctx, q.Instrument)
	if err != nil {
		return history.Page{}, err
	}

	end := exchange.MillisOrNow(q.To)/1000 - 1
	start := q.From.Unix()
	if q.From.IsZero() {
		start = end - int64(q.Limit)*int64(q.Period.Duration().Seconds())
	}

	params := url.Values{}
	params.Set("market", token)
	params.Set("startTs", strconv.FormatInt(start, 10))
	params.Set("endTs", strconv.FormatInt(end, 10))
	params.Set("fidelity", strconv.Itoa(fid))

	var resp priceHistory
	if err := f.clob.GetJSON(ctx, "/prices-history", params, &resp); err != nil {
		return history.Page{}, err
	}

	bars := make([]model.KLinePoint, 0, len(resp.History))
	for _, pt := range resp.History {
		bars = append(bars, model.KLinePoint{
			Timestamp: pt.T * 1000,
			Open:      pt.P,
			High:      pt.P,
			Low:       pt.P,
			Close:     pt.P,
		})
	}

	// 市场的第一条采样晚于请求起点一个周期以上，说明更早的历史不存在
	period := int64(q.Period.Duration().Seconds())
	exhausted := len(resp.History) == 0 || resp.History[0].T-start > period
	return history.Page{Bars: bars, End: exhausted}, nil
}

type midpoint struct {
	Mid string `json:"mid"`
}

// latest 轮询中间价，按周期滚动成当前这一根
func (f *Feed) latest(ctx context.Context, key string) (model.KLinePoint, bool, error) {
	id, ps, ok := strings.Cut(key, "|")
	if !ok {
		return model.KLinePoint{}, false, fmt.Errorf("polymarket stream key %q", key)
	}
	period, err := model.ParsePeriod(ps)
	if err != nil {
		return model.KLinePoint{}, false, err
	}
	token, _, err := f.tokenFor(ctx, instrument.Parse(id))
	if err != nil {
		return model.KLinePoint{}, false, err
	}

	params := url.Values{}
	params.Set("token_id", token)
	var mid midpoint
	if err := f.clob.GetJSON(ctx, "/midpoint", params, &mid); err != nil {
		return model.KLinePoint{}, false, err
	}
	price, err := strconv.ParseFloat(mid.Mid, 64)
	if err != nil {
		return model.KLinePoint{}, false, nil
	}

	sample := model.KLinePoint{Timestamp: f.now().UnixMilli(), Open: price, High: price, Low: price, Close: price}
	point, ok := f.rollupFor(key, period).Add(sample)
	return point, ok, nil
}

func (f *Feed) rollupFor(key string, period model.Period) *exchange.Rollup {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rollups[key]
	if !ok {
		r = exchange.NewRollup(period)
		f.rollups[key] = r
	}
	return r
}

func (f *Feed) dropRollup(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rollups, key)
}
