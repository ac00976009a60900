package polygon

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"tradefeed/internal/application/port"
	"tradefeed/internal/domain/feederr"
	"tradefeed/internal/domain/instrument"
	"tradefeed/internal/domain/model"
	"tradefeed/internal/infrastructure/datafeed"
	"tradefeed/internal/infrastructure/transport"
)

var aapl = instrument.Parse("US_STOCK:AAPL@USD_SPOT")

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New(datafeed.Options{}); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("New without key = %v", err)
	}
}

func TestStreamKey(t *testing.T) {
	for _, p := range []string{"1m", "5m", "1h"} {
		key, err := StreamKey(aapl, model.MustParsePeriod(p))
		if err != nil || key != "AM.AAPL" {
			t.Errorf("StreamKey(%s) = %q, %v", p, key, err)
		}
	}
	if _, err := StreamKey(aapl, model.MustParsePeriod("1D")); !errors.Is(err, feederr.ErrUnsupported) {
		t.Errorf("daily push err = %v", err)
	}
}

func TestAuthenticator(t *testing.T) {
	a := authenticator{apiKey: "k"}
	b, _ := a.AuthPayload()
	if string(b) != `{"action":"auth","params":"k"}` {
		t.Errorf("auth payload = %s", b)
	}

	done, err := a.VerifyAuth([]byte(`[{"ev":"status","status":"connected","message":"Connected Successfully"}]`))
	if done || err != nil {
		t.Errorf("connected status: done=%v err=%v", done, err)
	}
	done, err = a.VerifyAuth([]byte(`[{"ev":"status","status":"auth_success","message":"authenticated"}]`))
	if !done || err != nil {
		t.Errorf("auth_success: done=%v err=%v", done, err)
	}
	if _, err = a.VerifyAuth([]byte(`[{"ev":"status","status":"auth_failed","message":"bad key"}]`)); err == nil {
		t.Error("auth_failed should be an error")
	}
}

const batchMsg = `[{"ev":"AM","sym":"AAPL","o":190,"h":191,"l":189,"c":190.5,"v":1000,"vw":190.2,"s":1700000040000},
	{"ev":"status","status":"success"},
	{"ev":"AM","sym":"MSFT","o":410,"h":412,"l":409,"c":411,"v":500,"vw":410.5,"s":1700000040000}]`

func TestDecodeBatch(t *testing.T) {
	ups := protocol{}.Decode([]byte(batchMsg))
	if len(ups) != 2 || ups[0].Key != "AM.AAPL" || ups[1].Key != "AM.MSFT" {
		t.Fatalf("Decode = %+v", ups)
	}
	if ups[1].Point.Close != 411 || ups[1].Point.Turnover == nil || *ups[1].Point.Turnover != 410.5*500 {
		t.Errorf("MSFT point = %+v", ups[1].Point)
	}
	if got := (protocol{}).Decode([]byte(`[{"ev":"status","status":"connected"}]`)); len(got) != 0 {
		t.Errorf("status message decoded to %+v", got)
	}
}

// TestBatchReachesEveryListener 一条消息里的多只股票都要分发到各自的监听者，顺序与消息一致
func TestBatchReachesEveryListener(t *testing.T) {
	f, err := New(datafeed.Options{APIKey: "k"})
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var order []string
	reg := f.stream.Registry()
	reg.Subscribe("L1", "AM.AAPL", func(p model.KLinePoint) { order = append(order, "AAPL") })
	reg.Subscribe("L2", "AM.MSFT", func(p model.KLinePoint) { order = append(order, "MSFT") })

	f.stream.OnMessage([]byte(batchMsg))
	if len(order) != 2 || order[0] != "AAPL" || order[1] != "MSFT" {
		t.Errorf("dispatched = %v, want [AAPL MSFT]", order)
	}
}

// fakeSocket 模拟 polygon 推送：先 connected，鉴权通过后才接受订阅
type fakeSocket struct {
	key string

	mu    sync.Mutex
	order []string
}

func (s *fakeSocket) record(action string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = append(s.order, action)
}

func (s *fakeSocket) actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

func (s *fakeSocket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{}
	c, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer c.Close()
	_ = c.WriteMessage(websocket.TextMessage, []byte(`[{"ev":"status","status":"connected"}]`))

	for {
		_, msg, err := c.ReadMessage()
		if err != nil {
			return
		}
		var cmd command
		if json.Unmarshal(msg, &cmd) != nil {
			continue
		}
		s.record(cmd.Action)
		switch cmd.Action {
		case "auth":
			status := "auth_failed"
			if cmd.Params == s.key {
				status = "auth_success"
			}
			_ = c.WriteMessage(websocket.TextMessage, []byte(`[{"ev":"status","status":"`+status+`"}]`))
		case "subscribe":
			for i := 0; i < 50; i++ {
				err := c.WriteMessage(websocket.TextMessage, []byte(
					`[{"ev":"AM","sym":"AAPL","o":190,"h":191,"l":189,"c":190.5,"v":1000,"vw":190.2,"s":1700000040000,"e":1700000100000}]`))
				if err != nil {
					return
				}
				time.Sleep(20 * time.Millisecond)
			}
		}
	}
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestAuthThenSubscribe(t *testing.T) {
	sock := &fakeSocket{key: "good"}
	srv := httptest.NewServer(sock)
	defer srv.Close()

	f, err := New(datafeed.Options{APIKey: "good", WSURL: wsURL(srv), RESTURL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	got := make(chan model.KLinePoint, 64)
	err = f.Subscribe(aapl, model.MustParsePeriod("1m"), func(p model.KLinePoint) {
		select {
		case got <- p:
		default:
		}
	}, "L1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	select {
	case p := <-got:
		if p.Timestamp != 1700000040000 || p.Close != 190.5 {
			t.Errorf("tick = %+v", p)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no tick received")
	}

	acts := sock.actions()
	if len(acts) < 2 || acts[0] != "auth" || acts[1] != "subscribe" {
		t.Errorf("actions = %v, want auth before subscribe", acts)
	}
}

func TestAuthRejectedNeverSubscribes(t *testing.T) {
	sock := &fakeSocket{key: "good"}
	srv := httptest.NewServer(sock)
	defer srv.Close()

	f, _ := New(datafeed.Options{APIKey: "bad", WSURL: wsURL(srv), RESTURL: srv.URL, ReconnectDelay: time.Hour})
	defer f.Close()

	_ = f.Subscribe(aapl, model.MustParsePeriod("1m"), func(model.KLinePoint) {}, "L1")

	deadline := time.Now().Add(2 * time.Second)
	for !f.stream.Connection().ReconnectPending() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if !f.stream.Connection().ReconnectPending() {
		t.Fatal("rejected auth did not schedule a reconnect")
	}
	if st := f.stream.Connection().State(); st == transport.StateConnected {
		t.Errorf("state = %s after auth_failed", st)
	}
	for _, a := range sock.actions() {
		if a == "subscribe" {
			t.Error("subscribe sent before auth success")
		}
	}
}

func TestHistoryAggs(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/aggs/ticker/AAPL/range/5/minute/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer k" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Query().Get("sort") != "desc" || r.URL.Query().Get("limit") != "200" {
			t.Errorf("query = %v", r.URL.Query())
		}
		_, _ = w.Write([]byte(`{"status":"OK","resultsCount":2,"results":[
			{"v":200,"vw":10.5,"o":10,"c":11,"h":11,"l":10,"t":1700000300000},
			{"v":100,"vw":10,"o":9,"c":10,"h":10,"l":9,"t":1700000000000}
		]}`))
	})
	mux.HandleFunc("/v3/reference/tickers/NOPE", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"status":"NOT_FOUND"}`))
	})
	mux.HandleFunc("/v3/reference/tickers/AAPL", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":{"ticker":"AAPL","name":"Apple Inc.","market":"stocks","primary_exchange":"XNAS","active":true}}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f, _ := New(datafeed.Options{APIKey: "k", RESTURL: srv.URL, WSURL: "ws://127.0.0.1:1"})
	defer f.Close()
	ctx := context.Background()

	res, err := f.GetHistoryKLineData(ctx, aapl, model.MustParsePeriod("5m"),
		port.HistoryParams{To: time.UnixMilli(1700000600000)})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(res.Bars) != 2 || res.Bars[0].Timestamp != 1700000000000 || *res.Bars[1].Turnover != 2100 {
		t.Errorf("bars = %+v", res.Bars)
	}

	info, err := f.ResolveSymbol(ctx, "US_STOCK:AAPL@USD_SPOT")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if info.Name != "AAPL" || info.Description != "Apple Inc." || info.Exchange != "XNAS" || info.Timezone != "America/New_York" {
		t.Errorf("info = %+v", info)
	}
	if _, err := f.ResolveSymbol(ctx, "US_STOCK:NOPE@USD_SPOT"); !errors.Is(err, feederr.ErrSymbolNotFound) {
		t.Errorf("missing ticker err = %v", err)
	}
}
