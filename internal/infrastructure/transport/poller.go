package transport

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// PollFunc 每个周期针对当前活跃的 key 拉取一次
type PollFunc func(ctx context.Context, keys []string)

// Poller 没有推送能力的行情源用轮询模拟订阅：
// "连接" = 启动定时器，"断开" = 停止定时器；Subscribe/Unsubscribe 维护被轮询的 key 集合，
// 与 Connection 暴露相同的状态机，subscription.Registry 的去重/重放逻辑无需区分。
type Poller struct {
	name     string
	interval time.Duration
	poll     PollFunc
	listener StateListener

	mu     sync.Mutex
	state  State
	keys   []string
	kick   chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPoller(name string, interval time.Duration, poll PollFunc, listener StateListener) *Poller {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Poller{
		name:     name,
		interval: interval,
		poll:     poll,
		listener: listener,
		state:    StateDisconnected,
		kick:     make(chan struct{}, 1),
	}
}

func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Connect 启动定时器；幂等
func (p *Poller) Connect() error {
	p.mu.Lock()
	switch p.state {
	case StateClosed:
		p.mu.Unlock()
		return ErrClosed
	case StateConnecting, StateConnected:
		p.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.state = StateConnected
	p.mu.Unlock()

	log.Info().Str("feed", p.name).Dur("interval", p.interval).Msg("poller started")
	if p.listener != nil {
		p.listener.OnConnected()
	}

	p.wg.Add(1)
	go p.run(ctx)
	return nil
}

// Disconnect 停止定时器，保持可再次 Connect
func (p *Poller) Disconnect() {
	p.mu.Lock()
	if p.state != StateConnected {
		p.mu.Unlock()
		return
	}
	p.state = StateDisconnected
	p.keys = nil
	cancel := p.cancel
	p.mu.Unlock()

	cancel()
	p.wg.Wait()
	log.Info().Str("feed", p.name).Msg("poller stopped")
	if p.listener != nil {
		p.listener.OnDisconnected(nil)
	}
}

// Close 终态
func (p *Poller) Close() error {
	p.mu.Lock()
	if p.state == StateClosed {
		p.mu.Unlock()
		return nil
	}
	cancel := p.cancel
	p.state = StateClosed
	p.keys = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
	return nil
}

// Subscribe 把 key 加入轮询集合
func (p *Poller) Subscribe(key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateConnected {
		return ErrNotConnected
	}
	for _, k := range p.keys {
		if k == key {
			return nil
		}
	}
	p.keys = append(p.keys, key)
	// 新 key 不等下一个周期
	select {
	case p.kick <- struct{}{}:
	default:
	}
	return nil
}

// Unsubscribe 从轮询集合移除 key
func (p *Poller) Unsubscribe(key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateConnected {
		return ErrNotConnected
	}
	for i, k := range p.keys {
		if k == key {
			p.keys = append(p.keys[:i], p.keys[i+1:]...)
			break
		}
	}
	return nil
}

// Keys 当前轮询集合的快照
func (p *Poller) Keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.keys))
	copy(out, p.keys)
	return out
}

func (p *Poller) run(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// 启动后立即拉一次
	p.pollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollOnce(ctx)
		case <-p.kick:
			p.pollOnce(ctx)
		}
	}
}

func (p *Poller) pollOnce(ctx context.Context) {
	keys := p.Keys()
	if len(keys) == 0 {
		return
	}
	p.poll(ctx, keys)
}
