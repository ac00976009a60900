package okx

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"tradefeed/internal/domain/feederr"
	"tradefeed/internal/domain/instrument"
	"tradefeed/internal/domain/model"
	"tradefeed/internal/infrastructure/exchange"
)

// OKX K 线周期写法：分钟小写，其余大写
var bars = map[string]string{
	"1m": "1m", "3m": "3m", "5m": "5m", "15m": "15m", "30m": "30m",
	"1h": "1H", "2h": "2H", "4h": "4H", "6h": "6H", "12h": "12H",
	"1d": "1D", "2d": "2D", "3d": "3D", "1w": "1W", "1M": "1M", "3M": "3M",
}

// bar Period -> OKX bar，例: 1m / 1H / 1D
func bar(p model.Period) (string, error) {
	b, ok := bars[p.String()]
	if !p.Valid() || !ok {
		return "", fmt.Errorf("%w: okx bar %s", feederr.ErrUnsupported, p)
	}
	return b, nil
}

// InstID 规范标识符 -> OKX instId
// PERP: BTC-USDT-SWAP；FUTURES: BTC-USD-240329；OPTION: BTC-USD-240329-50000-C
func InstID(inst instrument.Instrument) string {
	if inst.ProductType() == instrument.ProductPerp {
		return inst.Ticker()
	}
	base := inst.BaseSymbol()
	return base + "-" + inst.QuoteCurrency() + strings.TrimPrefix(inst.UnderlyingIdentifier(), base)
}

// FromInstID OKX instId -> 规范标识符
func FromInstID(instType, instID string) (instrument.Instrument, bool) {
	parts := strings.Split(instID, "-")
	if len(parts) < 2 {
		return instrument.Instrument{}, false
	}
	base, quote := parts[0], parts[1]
	switch instType {
	case "SWAP":
		return instrument.Build(instrument.AssetCrypto, base, "", quote, instrument.ProductPerp), true
	case "FUTURES":
		if len(parts) < 3 {
			return instrument.Instrument{}, false
		}
		return instrument.Build(instrument.AssetCrypto, base+"-"+parts[2], "", quote, instrument.ProductFutures), true
	case "OPTION":
		if len(parts) < 5 {
			return instrument.Instrument{}, false
		}
		underlying := base + "-" + strings.Join(parts[2:], "-")
		return instrument.Build(instrument.AssetCrypto, underlying, "", quote, instrument.ProductOption), true
	}
	return instrument.Instrument{}, false
}

// StreamKey 例: candle1m:BTC-USDT-SWAP
func StreamKey(inst instrument.Instrument, p model.Period) (string, error) {
	b, err := bar(p)
	if err != nil {
		return "", err
	}
	return "candle" + b + ":" + InstID(inst), nil
}

type subArg struct {
	Channel string `json:"channel"`
	InstID  string `json:"instId"`
}

type subReq struct {
	Op   string   `json:"op"`
	Args []subArg `json:"args"`
}

type candleMsg struct {
	Event string              `json:"event,omitempty"`
	Arg   subArg              `json:"arg"`
	Data  [][]json.RawMessage `json:"data,omitempty"`
}

// protocol {"op":"subscribe","args":[{"channel":"candle1m","instId":"BTC-USDT-SWAP"}]}
type protocol struct{}

func splitKey(key string) (subArg, error) {
	channel, instID, ok := strings.Cut(key, ":")
	if !ok {
		return subArg{}, fmt.Errorf("okx stream key %q", key)
	}
	return subArg{Channel: channel, InstID: instID}, nil
}

func (protocol) command(op, key string) ([]byte, error) {
	arg, err := splitKey(key)
	if err != nil {
		return nil, err
	}
	return json.Marshal(subReq{Op: op, Args: []subArg{arg}})
}

func (p protocol) SubscribeCommand(key string) ([]byte, error) {
	return p.command("subscribe", key)
}

func (p protocol) UnsubscribeCommand(key string) ([]byte, error) {
	return p.command("unsubscribe", key)
}

func (protocol) Decode(msg []byte) []exchange.Update {
	if string(msg) == "pong" {
		return nil
	}
	var m candleMsg
	if err := json.Unmarshal(msg, &m); err != nil || m.Event != "" || len(m.Data) == 0 {
		return nil
	}
	if !strings.HasPrefix(m.Arg.Channel, "candle") {
		return nil
	}
	key := m.Arg.Channel + ":" + m.Arg.InstID
	out := make([]exchange.Update, 0, len(m.Data))
	for _, row := range m.Data {
		if point, ok := parseCandle(row); ok {
			out = append(out, exchange.Update{Key: key, Point: point})
		}
	}
	return out
}

// parseCandle [ts, o, h, l, c, vol, volCcy, volCcyQuote, confirm]，全部为字符串
func parseCandle(row []json.RawMessage) (model.KLinePoint, bool) {
	if len(row) < 6 {
		return model.KLinePoint{}, false
	}
	fields := make([]string, len(row))
	for i, raw := range row {
		if err := json.Unmarshal(raw, &fields[i]); err != nil {
			return model.KLinePoint{}, false
		}
	}
	ts, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil || ts <= 0 {
		return model.KLinePoint{}, false
	}
	point := model.KLinePoint{
		Timestamp: ts,
		Open:      exchange.ParseFloat(fields[1]),
		High:      exchange.ParseFloat(fields[2]),
		Low:       exchange.ParseFloat(fields[3]),
		Close:     exchange.ParseFloat(fields[4]),
		Volume:    exchange.ParseFloat(fields[5]),
	}
	if len(fields) > 7 {
		turnover := exchange.ParseFloat(fields[7])
		point.Turnover = &turnover
	}
	return point, true
}
