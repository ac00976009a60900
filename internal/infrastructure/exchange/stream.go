package exchange

import (
	"github.com/rs/zerolog/log"

	"tradefeed/internal/application/port"
	"tradefeed/internal/domain/model"
	"tradefeed/internal/infrastructure/subscription"
	"tradefeed/internal/infrastructure/transport"
)

// Protocol 推送通道的订阅命令与消息解码
type Protocol interface {
	SubscribeCommand(streamKey string) ([]byte, error)
	UnsubscribeCommand(streamKey string) ([]byte, error)
	// Decode 一条消息可能带多个流的 K 线，按消息内顺序返回；心跳、订阅回执等返回空
	Decode(msg []byte) []Update
}

// Update 解码出的一根 K 线及其所属流
type Update struct {
	Key   string
	Point model.KLinePoint
}

// StreamFeed WebSocket 行情源共用骨架：一条连接 + 一个订阅表
type StreamFeed struct {
	name     string
	proto    Protocol
	conn     *transport.Connection
	registry *subscription.Registry
}

func NewStreamFeed(opts transport.Options, proto Protocol) *StreamFeed {
	f := &StreamFeed{name: opts.Name, proto: proto}
	f.registry = subscription.NewRegistry(opts.Name, f)
	f.conn = transport.NewConnection(opts, f)
	return f
}

// Listen 注册监听者；第一次调用时建立连接
func (f *StreamFeed) Listen(listenerID, streamKey string, onTick port.TickFunc) error {
	if f.conn.State() == transport.StateClosed {
		return transport.ErrClosed
	}
	f.registry.Subscribe(listenerID, streamKey, subscription.TickFunc(onTick))
	return f.conn.Connect()
}

// Unlisten 未知 listenerID 为 no-op
func (f *StreamFeed) Unlisten(listenerID string) {
	f.registry.Unsubscribe(listenerID)
}

func (f *StreamFeed) Registry() *subscription.Registry { return f.registry }

func (f *StreamFeed) Connection() *transport.Connection { return f.conn }

func (f *StreamFeed) Close() error {
	return f.conn.Close()
}

// Subscribe 实现 subscription.Upstream
func (f *StreamFeed) Subscribe(streamKey string) error {
	cmd, err := f.proto.SubscribeCommand(streamKey)
	if err != nil {
		return err
	}
	return f.conn.Send(cmd)
}

// Unsubscribe 实现 subscription.Upstream
func (f *StreamFeed) Unsubscribe(streamKey string) error {
	cmd, err := f.proto.UnsubscribeCommand(streamKey)
	if err != nil {
		return err
	}
	return f.conn.Send(cmd)
}

func (f *StreamFeed) OnConnected() {
	f.registry.Resume()
}

func (f *StreamFeed) OnDisconnected(err error) {
	f.registry.Suspend()
}

func (f *StreamFeed) OnMessage(msg []byte) {
	for _, u := range f.proto.Decode(msg) {
		log.Trace().Str("feed", f.name).Str("stream", u.Key).Int64("ts", u.Point.Timestamp).Msg("kline")
		f.registry.Dispatch(u.Key, u.Point)
	}
}
