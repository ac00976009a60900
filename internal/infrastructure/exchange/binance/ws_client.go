package binance

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"

	"tradefeed/internal/domain/feederr"
	"tradefeed/internal/domain/instrument"
	"tradefeed/internal/domain/model"
	"tradefeed/internal/infrastructure/exchange"
)

// Binance 支持的 K 线周期
var intervals = map[string]bool{
	"1m": true, "3m": true, "5m": true, "15m": true, "30m": true,
	"1h": true, "2h": true, "4h": true, "6h": true, "8h": true, "12h": true,
	"1d": true, "3d": true, "1w": true, "1M": true,
}

// interval Period -> Binance interval，例: 1m / 4h / 1d / 1M
func interval(p model.Period) (string, error) {
	s := p.String()
	if !p.Valid() || !intervals[s] {
		return "", fmt.Errorf("%w: binance interval %s", feederr.ErrUnsupported, s)
	}
	return s, nil
}

// StreamKey 例: btcusdt@kline_1m
func StreamKey(inst instrument.Instrument, p model.Period) (string, error) {
	iv, err := interval(p)
	if err != nil {
		return "", err
	}
	return strings.ToLower(exchange.VenueSymbol(inst, "")) + "@kline_" + iv, nil
}

type wsCommand struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     uint64   `json:"id"`
}

type klineEvent struct {
	Event  string    `json:"e"`
	Symbol string    `json:"s"`
	Kline  klineBody `json:"k"`
}

type klineBody struct {
	Start       int64  `json:"t"`
	Interval    string `json:"i"`
	Open        string `json:"o"`
	Close       string `json:"c"`
	High        string `json:"h"`
	Low         string `json:"l"`
	Volume      string `json:"v"`
	QuoteVolume string `json:"q"`
	Closed      bool   `json:"x"`
}

// protocol {"method":"SUBSCRIBE","params":["btcusdt@kline_1m"],"id":1}
type protocol struct {
	nextID atomic.Uint64
}

func (p *protocol) command(method, key string) ([]byte, error) {
	return json.Marshal(wsCommand{Method: method, Params: []string{key}, ID: p.nextID.Add(1)})
}

func (p *protocol) SubscribeCommand(key string) ([]byte, error) {
	return p.command("SUBSCRIBE", key)
}

func (p *protocol) UnsubscribeCommand(key string) ([]byte, error) {
	return p.command("UNSUBSCRIBE", key)
}

func (p *protocol) Decode(msg []byte) []exchange.Update {
	var ev klineEvent
	if err := json.Unmarshal(msg, &ev); err != nil || ev.Event != "kline" {
		return nil
	}
	k := ev.Kline
	turnover := exchange.ParseFloat(k.QuoteVolume)
	point := model.KLinePoint{
		Timestamp: k.Start,
		Open:      exchange.ParseFloat(k.Open),
		High:      exchange.ParseFloat(k.High),
		Low:       exchange.ParseFloat(k.Low),
		Close:     exchange.ParseFloat(k.Close),
		Volume:    exchange.ParseFloat(k.Volume),
		Turnover:  &turnover,
	}
	return []exchange.Update{{Key: strings.ToLower(ev.Symbol) + "@kline_" + k.Interval, Point: point}}
}
