// Package transport 推送类行情连接：WebSocket 连接状态机，以及用定时器模拟连接的轮询变体。
//
// 状态：DISCONNECTED -> CONNECTING -> CONNECTED；任何关闭/错误回到 DISCONNECTED 并
// 安排一次重连；CLOSED 只能由调用方显式 Close 进入，之后不再自动重连。
package transport

import (
	"context"
	"errors"
)

var (
	ErrNotConnected = errors.New("not connected")
	ErrClosed       = errors.New("connection closed")
)

// State 连接状态
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateClosed:
		return "CLOSED"
	}
	return "UNKNOWN"
}

// Conn 一条底层双向连接
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Dialer 建立底层连接
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// Authenticator 需要鉴权的行情源实现
type Authenticator interface {
	// AuthPayload 连接打开后立即发送
	AuthPayload() ([]byte, error)
	// VerifyAuth 处理鉴权阶段收到的消息；done 为 true 表示鉴权成功，err 表示被拒绝
	VerifyAuth(msg []byte) (done bool, err error)
}

// StateListener 连接状态回调
type StateListener interface {
	// OnConnected 每次进入 CONNECTED（包括重连）
	OnConnected()
	// OnDisconnected 每次掉线
	OnDisconnected(err error)
}

// Handler WebSocket 连接的回调
type Handler interface {
	StateListener
	OnMessage(msg []byte)
}
