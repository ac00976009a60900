package transport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	pingInterval = 25 * time.Second
	readTimeout  = 60 * time.Second
	writeTimeout = 5 * time.Second
)

// WSDialer gorilla/websocket 实现
type WSDialer struct {
	header       http.Header
	PingInterval time.Duration
	ReadTimeout  time.Duration
}

func NewWSDialer(header http.Header) *WSDialer {
	return &WSDialer{
		header:       header,
		PingInterval: pingInterval,
		ReadTimeout:  readTimeout,
	}
}

func (d *WSDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: DefaultDialTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, url, d.header)
	if err != nil {
		return nil, err
	}

	wc := &wsConn{
		conn:        conn,
		readTimeout: d.ReadTimeout,
		done:        make(chan struct{}),
	}
	_ = conn.SetReadDeadline(time.Now().Add(wc.readTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wc.readTimeout))
		return nil
	})
	go wc.pingLoop(d.PingInterval)
	return wc, nil
}

type wsConn struct {
	conn        *websocket.Conn
	readTimeout time.Duration
	done        chan struct{}
	closeOnce   sync.Once
}

func (w *wsConn) ReadMessage() ([]byte, error) {
	_, b, err := w.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	_ = w.conn.SetReadDeadline(time.Now().Add(w.readTimeout))
	return b, nil
}

func (w *wsConn) WriteMessage(data []byte) error {
	_ = w.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

func (w *wsConn) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		_ = w.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		err = w.conn.Close()
	})
	return err
}

func (w *wsConn) pingLoop(interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			_ = w.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeTimeout))
		}
	}
}
