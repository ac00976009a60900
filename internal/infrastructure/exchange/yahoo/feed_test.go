package yahoo

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"tradefeed/internal/application/port"
	"tradefeed/internal/domain/feederr"
	"tradefeed/internal/domain/instrument"
	"tradefeed/internal/domain/model"
	"tradefeed/internal/infrastructure/datafeed"
)

var tencent = instrument.Parse("HK_STOCK:0700.HK@HKD_SPOT")

const chartBody = `{"chart":{"result":[{
	"meta":{"symbol":"0700.HK","currency":"HKD","exchangeName":"HKG","longName":"Tencent Holdings Limited"},
	"timestamp":[1700000000,1700000060,1700000120,1700000180],
	"indicators":{"quote":[{
		"open":[300,null,301,302],
		"high":[301,null,303,302],
		"low":[299,null,300,301],
		"close":[300.5,null,302,301.5],
		"volume":[1000,null,500,800]
	}]}
}],"error":null}}`

func newServer(t *testing.T, chartHits *atomic.Int32) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/v8/finance/chart/0700.HK", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			t.Errorf("missing user agent")
		}
		if chartHits != nil {
			chartHits.Add(1)
		}
		_, _ = w.Write([]byte(chartBody))
	})
	mux.HandleFunc("/v8/finance/chart/9999.HK", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`))
	})
	mux.HandleFunc("/v1/finance/search", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"quotes":[
			{"symbol":"0700.HK","shortname":"TENCENT","longname":"Tencent Holdings Limited","quoteType":"EQUITY"},
			{"symbol":"TCEHY","shortname":"Tencent ADR","quoteType":"EQUITY"},
			{"symbol":"600519.SS","shortname":"KWEICHOW MOUTAI","quoteType":"EQUITY"},
			{"symbol":"2800.HK","shortname":"TRACKER FUND","quoteType":"ETF"}
		]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFromSymbol(t *testing.T) {
	cases := map[string]string{
		"0700.HK":   "HK_STOCK:0700.HK@HKD_SPOT",
		"600519.SS": "CN_STOCK:600519.SS@CNY_SPOT",
		"000001.SZ": "CN_STOCK:000001.SZ@CNY_SPOT",
	}
	for sym, want := range cases {
		inst, ok := FromSymbol(sym)
		if !ok || inst.Identifier() != want {
			t.Errorf("FromSymbol(%s) = %q", sym, inst.Identifier())
		}
		if inst.BaseSymbol() != sym {
			t.Errorf("base symbol = %q, want %q", inst.BaseSymbol(), sym)
		}
	}
	if _, ok := FromSymbol("AAPL"); ok {
		t.Error("US ticker should not map")
	}
}

// TestHistoryFillsGaps 午休/停牌的 null 时间点按前一根收盘价补齐
func TestHistoryFillsGaps(t *testing.T) {
	srv := newServer(t, nil)
	f, _ := New(datafeed.Options{RESTURL: srv.URL})
	defer f.Close()

	res, err := f.GetHistoryKLineData(context.Background(), tencent, model.MustParsePeriod("1m"),
		port.HistoryParams{FirstDataRequest: true})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(res.Bars) != 4 {
		t.Fatalf("bars = %d, want 4", len(res.Bars))
	}
	gap := res.Bars[1]
	if gap.Timestamp != 1700000060000 || gap.Open != 300.5 || gap.High != 300.5 || gap.Low != 300.5 || gap.Close != 300.5 || gap.Volume != 0 {
		t.Errorf("gap bar = %+v", gap)
	}
	if res.Bars[2].Close != 302 {
		t.Errorf("real bar altered: %+v", res.Bars[2])
	}
}

func TestResolveAndSearch(t *testing.T) {
	srv := newServer(t, nil)
	f, _ := New(datafeed.Options{RESTURL: srv.URL})
	defer f.Close()
	ctx := context.Background()

	info, err := f.ResolveSymbol(ctx, "HK_STOCK:0700.HK@HKD_SPOT")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if info.Name != "0700 (HK)" || info.Description != "Tencent Holdings Limited" || info.Timezone != "Asia/Hong_Kong" {
		t.Errorf("info = %+v", info)
	}

	if _, err := f.ResolveSymbol(ctx, "HK_STOCK:9999.HK@HKD_SPOT"); !errors.Is(err, feederr.ErrSymbolNotFound) {
		t.Errorf("missing symbol err = %v", err)
	}

	found := f.SearchSymbols(ctx, "tencent")
	if len(found) != 2 || found[0].Ticker != "HK_STOCK:0700.HK@HKD_SPOT" || found[1].Ticker != "CN_STOCK:600519.SS@CNY_SPOT" {
		t.Errorf("search = %+v", found)
	}
}

// TestPolledSubscription 轮询得到最新一根；内容不变时不重复推送
func TestPolledSubscription(t *testing.T) {
	var hits atomic.Int32
	srv := newServer(t, &hits)
	f, _ := New(datafeed.Options{RESTURL: srv.URL, PollInterval: 10 * time.Millisecond})
	defer f.Close()

	var ticks atomic.Int32
	last := make(chan model.KLinePoint, 16)
	err := f.Subscribe(tencent, model.MustParsePeriod("1m"), func(p model.KLinePoint) {
		ticks.Add(1)
		select {
		case last <- p:
		default:
		}
	}, "L1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	select {
	case p := <-last:
		if p.Timestamp != 1700000180000 || p.Close != 301.5 {
			t.Errorf("tick = %+v", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no polled tick")
	}

	deadline := time.Now().Add(2 * time.Second)
	for hits.Load() < 4 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n := ticks.Load(); n != 1 {
		t.Errorf("ticks = %d after %d polls, want 1", n, hits.Load())
	}

	f.Unsubscribe("L1")
	if keys := f.poll.Poller().Keys(); len(keys) != 0 {
		t.Errorf("poller keys after unsubscribe = %v", keys)
	}
}
