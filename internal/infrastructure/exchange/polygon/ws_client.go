package polygon

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"tradefeed/internal/domain/feederr"
	"tradefeed/internal/domain/instrument"
	"tradefeed/internal/domain/model"
	"tradefeed/internal/infrastructure/exchange"
)

// 推送只有分钟聚合（AM）；其他周期在客户端由 exchange.Rollup 合成
const minuteChannel = "AM."

// StreamKey 例: AM.AAPL；同一股票的所有周期共用一条流
func StreamKey(inst instrument.Instrument, p model.Period) (string, error) {
	if !pushable(p) {
		return "", fmt.Errorf("%w: polygon push period %s", feederr.ErrUnsupported, p)
	}
	return minuteChannel + strings.ToUpper(inst.BaseSymbol()), nil
}

// pushable 分钟/小时周期可以由分钟聚合合成
func pushable(p model.Period) bool {
	return p.Valid() && (p.Timespan == model.Minute || p.Timespan == model.Hour)
}

type command struct {
	Action string `json:"action"`
	Params string `json:"params"`
}

type event struct {
	Ev      string  `json:"ev"`
	Status  string  `json:"status,omitempty"`
	Message string  `json:"message,omitempty"`
	Sym     string  `json:"sym,omitempty"`
	Open    float64 `json:"o"`
	High    float64 `json:"h"`
	Low     float64 `json:"l"`
	Close   float64 `json:"c"`
	Volume  float64 `json:"v"`
	VWAP    float64 `json:"vw"`
	Start   int64   `json:"s"`
}

// protocol {"action":"subscribe","params":"AM.AAPL"}
type protocol struct{}

func (protocol) SubscribeCommand(key string) ([]byte, error) {
	return json.Marshal(command{Action: "subscribe", Params: key})
}

func (protocol) UnsubscribeCommand(key string) ([]byte, error) {
	return json.Marshal(command{Action: "unsubscribe", Params: key})
}

// Decode 服务端总是推送数组，一条消息可能带多只股票的分钟聚合
func (protocol) Decode(msg []byte) []exchange.Update {
	var events []event
	if err := json.Unmarshal(msg, &events); err != nil {
		return nil
	}
	var out []exchange.Update
	for _, e := range events {
		if e.Ev != "AM" || e.Sym == "" {
			continue
		}
		turnover := e.VWAP * e.Volume
		out = append(out, exchange.Update{Key: minuteChannel + e.Sym, Point: model.KLinePoint{
			Timestamp: e.Start,
			Open:      e.Open,
			High:      e.High,
			Low:       e.Low,
			Close:     e.Close,
			Volume:    e.Volume,
			Turnover:  &turnover,
		}})
	}
	return out
}

// authenticator {"action":"auth","params":"<key>"}，等待 auth_success
type authenticator struct {
	apiKey string
}

var errAuthFailed = errors.New("polygon auth_failed")

func (a authenticator) AuthPayload() ([]byte, error) {
	if a.apiKey == "" {
		return nil, errors.New("polygon api key empty")
	}
	return json.Marshal(command{Action: "auth", Params: a.apiKey})
}

func (a authenticator) VerifyAuth(msg []byte) (bool, error) {
	var events []event
	if err := json.Unmarshal(msg, &events); err != nil {
		return false, nil
	}
	for _, e := range events {
		if e.Ev != "status" {
			continue
		}
		switch e.Status {
		case "auth_success":
			return true, nil
		case "auth_failed":
			return false, fmt.Errorf("%w: %s", errAuthFailed, e.Message)
		}
	}
	return false, nil
}
