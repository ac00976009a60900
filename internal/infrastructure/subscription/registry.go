// Package subscription 把 N 个监听者复用到 M 条底层推送流上（M <= N）。
//
// 每个不同的 streamKey 只发送一次底层订阅；最后一个监听者离开时只发送一次退订；
// 每次连接进入 CONNECTED 时重放全部活跃 key。
package subscription

import (
	"sync"

	"github.com/rs/zerolog/log"

	"tradefeed/internal/domain/model"
)

// TickFunc 推送回调
type TickFunc func(model.KLinePoint)

// Upstream 底层订阅命令的发送方（WebSocket 行情源或 transport.Poller）
type Upstream interface {
	Subscribe(streamKey string) error
	Unsubscribe(streamKey string) error
}

type listener struct {
	id     string
	onTick TickFunc
}

type stream struct {
	key       string
	listeners []listener
}

// Registry 每个行情源实例独占一个，不做进程级单例
type Registry struct {
	name     string
	upstream Upstream

	mu         sync.Mutex
	connected  bool
	streams    map[string]*stream
	order      []string          // streamKey 创建顺序，重放时使用
	byListener map[string]string // listenerID -> streamKey
}

func NewRegistry(name string, upstream Upstream) *Registry {
	return &Registry{
		name:       name,
		upstream:   upstream,
		streams:    make(map[string]*stream),
		byListener: make(map[string]string),
	}
}

// Subscribe 注册监听者；同一 listenerID 重复订阅是替换而不是叠加
func (r *Registry) Subscribe(listenerID, streamKey string, onTick TickFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.byListener[listenerID]; ok {
		if prev == streamKey {
			s := r.streams[streamKey]
			for i := range s.listeners {
				if s.listeners[i].id == listenerID {
					s.listeners[i].onTick = onTick
				}
			}
			return
		}
		r.removeLocked(listenerID)
	}

	s, ok := r.streams[streamKey]
	if !ok {
		s = &stream{key: streamKey}
		r.streams[streamKey] = s
		r.order = append(r.order, streamKey)
		// 未连接时依赖连接成功后的 Resume 重放
		if r.connected {
			r.send(r.upstream.Subscribe, "subscribe", streamKey)
		}
	}
	s.listeners = append(s.listeners, listener{id: listenerID, onTick: onTick})
	r.byListener[listenerID] = streamKey
}

// Unsubscribe 未知 listenerID 为 no-op；最后一个监听者离开时发送一次底层退订
func (r *Registry) Unsubscribe(listenerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(listenerID)
}

func (r *Registry) removeLocked(listenerID string) {
	key, ok := r.byListener[listenerID]
	if !ok {
		return
	}
	delete(r.byListener, listenerID)

	s := r.streams[key]
	for i := range s.listeners {
		if s.listeners[i].id == listenerID {
			s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
			break
		}
	}
	if len(s.listeners) > 0 {
		return
	}

	delete(r.streams, key)
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	// 断线期间服务端本就没有这个订阅，离开活跃集合即可
	if r.connected {
		r.send(r.upstream.Unsubscribe, "unsubscribe", key)
	}
}

// Dispatch 按注册顺序调用该 key 的全部监听者；回调在锁外执行
func (r *Registry) Dispatch(streamKey string, point model.KLinePoint) {
	r.mu.Lock()
	s, ok := r.streams[streamKey]
	if !ok {
		r.mu.Unlock()
		return
	}
	targets := make([]TickFunc, 0, len(s.listeners))
	for _, l := range s.listeners {
		targets = append(targets, l.onTick)
	}
	r.mu.Unlock()

	for _, fn := range targets {
		fn(point)
	}
}

// Resume 连接进入 CONNECTED 时调用：服务端不保留跨连接的订阅，重放完整活跃集合
func (r *Registry) Resume() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connected = true
	for _, key := range r.order {
		r.send(r.upstream.Subscribe, "subscribe", key)
	}
	log.Info().Str("feed", r.name).Int("streams", len(r.order)).Msg("subscriptions restored")
}

// Suspend 掉线时调用
func (r *Registry) Suspend() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connected = false
}

func (r *Registry) send(fn func(string) error, op, key string) {
	if err := fn(key); err != nil {
		log.Warn().Str("feed", r.name).Str("stream", key).Err(err).Msg(op + " failed")
	}
}

// Keys 活跃 streamKey，按创建顺序
func (r *Registry) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Listeners 某个 key 的监听者 ID，按注册顺序
func (r *Registry) Listeners(streamKey string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.streams[streamKey]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(s.listeners))
	for _, l := range s.listeners {
		out = append(out, l.id)
	}
	return out
}

// Len 监听者总数
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byListener)
}
