package exchange

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"tradefeed/internal/domain/feederr"
	"tradefeed/internal/domain/instrument"
	"tradefeed/internal/domain/model"
)

func TestBuildQueryURL(t *testing.T) {
	got, err := BuildQueryURL("https://api.example.com/base/", "/v1/klines", "a=1")
	if err != nil || got != "https://api.example.com/base/v1/klines?a=1" {
		t.Errorf("BuildQueryURL = %q, %v", got, err)
	}
	if _, err := BuildQueryURL("  ", "/x", ""); err == nil {
		t.Error("empty base should fail")
	}
}

func TestGetJSONClassifiesErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			if r.Header.Get("X-Key") != "secret" {
				t.Errorf("missing header")
			}
			_, _ = w.Write([]byte(`{"v":1}`))
		case "/busy":
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("try later"))
		case "/bad":
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"msg":"bad"}`))
		case "/garbage":
			_, _ = w.Write([]byte(`not json`))
		}
	}))
	defer srv.Close()

	c := NewRESTClient("test", srv.URL, nil)
	c.SetHeader("X-Key", "secret")
	ctx := context.Background()

	var out struct{ V int }
	if err := c.GetJSON(ctx, "/ok", nil, &out); err != nil || out.V != 1 {
		t.Fatalf("ok: %v %+v", err, out)
	}

	err := c.GetJSON(ctx, "/busy", nil, &out)
	var ue *feederr.UpstreamError
	if !errors.As(err, &ue) || ue.Status != 503 || !feederr.IsRetryable(err) {
		t.Errorf("busy err = %v", err)
	}

	err = c.GetJSON(ctx, "/bad", nil, &out)
	if !errors.As(err, &ue) || ue.Status != 400 || feederr.IsRetryable(err) {
		t.Errorf("bad err = %v", err)
	}

	if err := c.GetJSON(ctx, "/garbage", nil, &out); !errors.As(err, &ue) {
		t.Errorf("garbage err = %v", err)
	}

	down := NewRESTClient("test", "http://127.0.0.1:1", nil)
	err = down.GetJSON(ctx, "/ok", nil, &out)
	var ne *feederr.NetworkError
	if !errors.As(err, &ne) || !feederr.IsRetryable(err) {
		t.Errorf("network err = %v", err)
	}
}

func TestSymbolHelpers(t *testing.T) {
	inst := instrument.Parse("CRYPTO:BTC@USDT_SPOT")
	if got := VenueSymbol(inst, ""); got != "BTCUSDT" {
		t.Errorf("VenueSymbol = %q", got)
	}
	if got := VenueSymbol(inst, "-"); got != "BTC-USDT" {
		t.Errorf("VenueSymbol = %q", got)
	}
	for tick, want := range map[string]int{"0.01000000": 100, "1.00000000": 1, "0.5": 10, "1": 1} {
		if got := PriceScale(tick); got != want {
			t.Errorf("PriceScale(%s) = %d, want %d", tick, got, want)
		}
	}
	if !MatchQuery("btc", "BTCUSDT") || MatchQuery("eth", "BTCUSDT") || !MatchQuery("", "x") {
		t.Error("MatchQuery")
	}
}

// TestRollup 1 分钟 K 线合成 5 分钟
func TestRollup(t *testing.T) {
	r := NewRollup(model.MustParsePeriod("5m"))
	const m = 60_000

	in := []model.KLinePoint{
		{Timestamp: 0, Open: 10, High: 11, Low: 9, Close: 10.5, Volume: 1},
		{Timestamp: 1 * m, Open: 10.5, High: 13, Low: 10, Close: 12, Volume: 2},
		{Timestamp: 1 * m, Open: 10.5, High: 13, Low: 10, Close: 12, Volume: 2}, // 重复
		{Timestamp: 5 * m, Open: 12, High: 12, Low: 8, Close: 8, Volume: 4},
	}
	var out []model.KLinePoint
	emit := r.Wrap(func(p model.KLinePoint) { out = append(out, p) })
	for _, p := range in {
		emit(p)
	}

	if len(out) != 3 {
		t.Fatalf("emitted %d bars, want 3", len(out))
	}
	if b := out[1]; b.Timestamp != 0 || b.Open != 10 || b.High != 13 || b.Low != 9 || b.Close != 12 || b.Volume != 3 {
		t.Errorf("rolled bar = %+v", b)
	}
	if b := out[2]; b.Timestamp != 5*m || b.Open != 12 || b.Volume != 4 {
		t.Errorf("next bucket = %+v", b)
	}
}
