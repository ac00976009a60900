package exchange

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"tradefeed/internal/application/port"
	"tradefeed/internal/domain/model"
	"tradefeed/internal/infrastructure/subscription"
	"tradefeed/internal/infrastructure/transport"
)

// LatestFunc 拉取某个 key 当前最新的一根 K 线；ok=false 表示暂无数据
type LatestFunc func(ctx context.Context, streamKey string) (point model.KLinePoint, ok bool, err error)

// PollFeed 没有推送通道的行情源：用 transport.Poller 定时拉取最新 K 线。
// 没有监听者时停掉轮询；key 被释放后其去重状态一并丢弃。
type PollFeed struct {
	name     string
	latest   LatestFunc
	poller   *transport.Poller
	registry *subscription.Registry

	// Listen/Unlisten 串行，避免"最后一个离开"与新订阅交错时误停轮询
	lifecycle sync.Mutex

	mu        sync.Mutex
	last      map[string]model.KLinePoint
	polled    map[string]struct{} // 拉取过、尚未释放的 key
	onRelease func(streamKey string)
}

func NewPollFeed(name string, interval time.Duration, latest LatestFunc) *PollFeed {
	f := &PollFeed{
		name:   name,
		latest: latest,
		last:   make(map[string]model.KLinePoint),
		polled: make(map[string]struct{}),
	}
	f.poller = transport.NewPoller(name, interval, f.poll, f)
	f.registry = subscription.NewRegistry(name, f)
	return f
}

// OnRelease 注册 key 被释放时的回调，供行情源清理按 key 缓存的状态；在 Listen 之前调用
func (f *PollFeed) OnRelease(fn func(streamKey string)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onRelease = fn
}

// Listen 注册监听者；轮询未运行时启动
func (f *PollFeed) Listen(listenerID, streamKey string, onTick port.TickFunc) error {
	f.lifecycle.Lock()
	defer f.lifecycle.Unlock()
	if f.poller.State() == transport.StateClosed {
		return transport.ErrClosed
	}
	f.registry.Subscribe(listenerID, streamKey, subscription.TickFunc(onTick))
	return f.poller.Connect()
}

// Unlisten 最后一个监听者离开时停止轮询，下次 Listen 重新启动
func (f *PollFeed) Unlisten(listenerID string) {
	f.lifecycle.Lock()
	defer f.lifecycle.Unlock()
	f.registry.Unsubscribe(listenerID)
	if f.registry.Len() == 0 {
		f.poller.Disconnect()
	}
}

func (f *PollFeed) Registry() *subscription.Registry { return f.registry }

func (f *PollFeed) Poller() *transport.Poller { return f.poller }

func (f *PollFeed) Close() error {
	return f.poller.Close()
}

// Subscribe 实现 subscription.Upstream
func (f *PollFeed) Subscribe(streamKey string) error {
	return f.poller.Subscribe(streamKey)
}

// Unsubscribe 实现 subscription.Upstream；轮询集合移除失败也要丢掉本地状态
func (f *PollFeed) Unsubscribe(streamKey string) error {
	err := f.poller.Unsubscribe(streamKey)

	f.mu.Lock()
	delete(f.last, streamKey)
	delete(f.polled, streamKey)
	f.mu.Unlock()
	f.release(streamKey)
	return err
}

func (f *PollFeed) release(keys ...string) {
	f.mu.Lock()
	fn := f.onRelease
	f.mu.Unlock()
	if fn == nil {
		return
	}
	for _, k := range keys {
		fn(k)
	}
}

func (f *PollFeed) OnConnected() {
	f.registry.Resume()
}

func (f *PollFeed) OnDisconnected(err error) {
	f.registry.Suspend()

	// 轮询协程已退出，不会再有新的拉取
	f.mu.Lock()
	keys := make([]string, 0, len(f.polled))
	for k := range f.polled {
		keys = append(keys, k)
	}
	f.last = make(map[string]model.KLinePoint)
	f.polled = make(map[string]struct{})
	f.mu.Unlock()
	f.release(keys...)
}

func (f *PollFeed) poll(ctx context.Context, keys []string) {
	for _, key := range keys {
		f.mu.Lock()
		f.polled[key] = struct{}{}
		f.mu.Unlock()

		point, ok, err := f.latest(ctx, key)
		if f.released(key) {
			// 拉取期间最后一个监听者离开，丢弃结果并清理拉取时重建的状态
			f.release(key)
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().Str("feed", f.name).Str("stream", key).Err(err).Msg("poll failed")
			continue
		}
		if !ok || !f.changed(key, point) {
			continue
		}
		f.registry.Dispatch(key, point)
	}
}

func (f *PollFeed) released(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.polled[key]
	return !ok
}

// changed 与上次推送的 K 线相同则不再推送
func (f *PollFeed) changed(key string, point model.KLinePoint) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	prev, ok := f.last[key]
	if ok && prev.Timestamp == point.Timestamp && prev.Close == point.Close &&
		prev.High == point.High && prev.Low == point.Low && prev.Volume == point.Volume {
		return false
	}
	f.last[key] = point
	return true
}
