package transport

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"tradefeed/internal/domain/feederr"
)

const (
	DefaultReconnectDelay = 5000 * time.Millisecond
	DefaultDialTimeout    = 10 * time.Second
)

// Options 连接配置
type Options struct {
	Name           string        // 日志里的 feed 名称
	URL            string        // e.g. wss://stream.binance.com:9443/ws
	Dialer         Dialer        // 默认 WSDialer
	Auth           Authenticator // nil 表示不需要鉴权
	ReconnectDelay time.Duration // 固定重连间隔
	DialTimeout    time.Duration
}

// Connection 每个行情源实例独占一条连接
//
// 任一时刻最多只有一个待触发的重连定时器；gen 用来丢弃已被替换的 socket 上的事件。
type Connection struct {
	opts    Options
	handler Handler

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	state    State
	conn     Conn
	gen      uint64
	timer    *time.Timer
	timerSeq uint64

	writeMu sync.Mutex
}

// NewConnection 创建连接，不会立即拨号
func NewConnection(opts Options, handler Handler) *Connection {
	opts.URL = strings.TrimSpace(opts.URL)
	if opts.Dialer == nil {
		opts.Dialer = NewWSDialer(nil)
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = DefaultDialTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		opts:    opts,
		handler: handler,
		ctx:     ctx,
		cancel:  cancel,
		state:   StateDisconnected,
	}
}

// State 当前状态
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ReconnectPending 是否有待触发的重连
func (c *Connection) ReconnectPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timer != nil
}

// Connect 幂等：CONNECTING / CONNECTED 时直接返回，防止并发重复拨号
func (c *Connection) Connect() error {
	c.mu.Lock()
	switch c.state {
	case StateClosed:
		c.mu.Unlock()
		return ErrClosed
	case StateConnecting, StateConnected:
		c.mu.Unlock()
		return nil
	}
	c.stopTimerLocked()
	c.state = StateConnecting
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	log.Info().Str("feed", c.opts.Name).Str("url", c.opts.URL).Msg("ws connecting")
	go c.open(gen)
	return nil
}

func (c *Connection) open(gen uint64) {
	dctx, cancel := context.WithTimeout(c.ctx, c.opts.DialTimeout)
	conn, err := c.opts.Dialer.Dial(dctx, c.opts.URL)
	cancel()
	if err != nil {
		log.Error().Str("feed", c.opts.Name).Err(err).Msg("ws dial failed")
		c.drop(gen, &feederr.NetworkError{Op: "dial", Err: err})
		return
	}

	c.mu.Lock()
	if c.gen != gen || c.state != StateConnecting {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop(gen, conn)

	if c.opts.Auth == nil {
		c.markConnected(gen)
		return
	}

	// 发送鉴权后停留在 CONNECTING，直到服务端明确返回成功
	payload, err := c.opts.Auth.AuthPayload()
	if err != nil {
		c.drop(gen, fmt.Errorf("%w: %v", feederr.ErrAuthFailure, err))
		return
	}
	if err := c.write(conn, payload); err != nil {
		c.drop(gen, &feederr.NetworkError{Op: "auth write", Err: err})
	}
}

func (c *Connection) readLoop(gen uint64, conn Conn) {
	for {
		msg, err := conn.ReadMessage()
		if err != nil {
			c.drop(gen, &feederr.NetworkError{Op: "read", Err: err})
			return
		}

		c.mu.Lock()
		current, state := c.gen == gen, c.state
		c.mu.Unlock()
		if !current {
			return
		}

		if state == StateConnecting && c.opts.Auth != nil {
			done, err := c.opts.Auth.VerifyAuth(msg)
			if err != nil {
				log.Error().Str("feed", c.opts.Name).Err(err).Msg("ws auth rejected")
				c.drop(gen, fmt.Errorf("%w: %v", feederr.ErrAuthFailure, err))
				return
			}
			if done {
				c.markConnected(gen)
			}
			continue
		}

		c.handler.OnMessage(msg)
	}
}

func (c *Connection) markConnected(gen uint64) {
	c.mu.Lock()
	if c.gen != gen || c.state != StateConnecting {
		c.mu.Unlock()
		return
	}
	c.state = StateConnected
	c.mu.Unlock()

	log.Info().Str("feed", c.opts.Name).Msg("ws connected")
	c.handler.OnConnected()
}

// drop 进入 DISCONNECTED 并安排重连；对已被替换或已关闭的连接无效
func (c *Connection) drop(gen uint64, cause error) {
	c.mu.Lock()
	if c.gen != gen || c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.gen++
	conn := c.conn
	c.conn = nil
	c.state = StateDisconnected
	c.scheduleReconnectLocked()
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	log.Warn().Str("feed", c.opts.Name).Err(cause).
		Int64("delay_ms", c.opts.ReconnectDelay.Milliseconds()).
		Msg("ws disconnected, reconnecting")
	c.handler.OnDisconnected(cause)
}

// scheduleReconnectLocked 先取消旧定时器再安排新的
func (c *Connection) scheduleReconnectLocked() {
	c.stopTimerLocked()
	c.timerSeq++
	seq := c.timerSeq
	c.timer = time.AfterFunc(c.opts.ReconnectDelay, func() { c.onReconnectTimer(seq) })
}

func (c *Connection) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Connection) onReconnectTimer(seq uint64) {
	c.mu.Lock()
	if c.timer == nil || seq != c.timerSeq {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.mu.Unlock()

	if err := c.Connect(); err != nil {
		log.Debug().Str("feed", c.opts.Name).Err(err).Msg("reconnect skipped")
	}
}

// Send 只在 CONNECTED 时发送；否则丢弃并返回 ErrNotConnected，
// 订阅意图由 subscription.Registry 在下一次连上时重放
func (c *Connection) Send(data []byte) error {
	c.mu.Lock()
	if c.state != StateConnected || c.conn == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	conn := c.conn
	c.mu.Unlock()
	return c.write(conn, data)
}

func (c *Connection) write(conn Conn, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(data)
}

// Close 显式关闭，进入终态 CLOSED
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = StateClosed
	c.gen++
	c.stopTimerLocked()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	c.cancel()
	log.Info().Str("feed", c.opts.Name).Msg("ws closed")
	if conn != nil {
		return conn.Close()
	}
	return nil
}
