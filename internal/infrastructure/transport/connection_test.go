package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// fakeConn 内存连接：in 为服务端推送，writes 记录客户端发送
type fakeConn struct {
	in        chan []byte
	writes    chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan []byte, 16),
		writes: make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (f *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case m := <-f.in:
		return m, nil
	case <-f.closed:
		return nil, errors.New("use of closed connection")
	}
}

func (f *fakeConn) WriteMessage(data []byte) error {
	select {
	case <-f.closed:
		return errors.New("use of closed connection")
	default:
	}
	f.writes <- append([]byte(nil), data...)
	return nil
}

func (f *fakeConn) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

// fakeDialer 每次拨号返回一条新的 fakeConn
type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	fail  atomic.Bool
	dials atomic.Int32
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (Conn, error) {
	d.dials.Add(1)
	if d.fail.Load() {
		return nil, errors.New("connection refused")
	}
	c := newFakeConn()
	d.mu.Lock()
	d.conns = append(d.conns, c)
	d.mu.Unlock()
	return c, nil
}

func (d *fakeDialer) last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

type recordingHandler struct {
	connected    atomic.Int32
	disconnected atomic.Int32
	messages     chan []byte
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{messages: make(chan []byte, 16)}
}

func (h *recordingHandler) OnConnected()             { h.connected.Add(1) }
func (h *recordingHandler) OnDisconnected(err error) { h.disconnected.Add(1) }
func (h *recordingHandler) OnMessage(msg []byte)     { h.messages <- msg }

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

func newTestConnection(d Dialer, auth Authenticator, h Handler) *Connection {
	return NewConnection(Options{
		Name:           "test",
		URL:            "ws://test",
		Dialer:         d,
		Auth:           auth,
		ReconnectDelay: 20 * time.Millisecond,
	}, h)
}

// TestConnectIdempotent CONNECTING/CONNECTED 时重复 Connect 不会再拨号
func TestConnectIdempotent(t *testing.T) {
	d := &fakeDialer{}
	h := newRecordingHandler()
	c := newTestConnection(d, nil, h)
	defer c.Close()

	for i := 0; i < 5; i++ {
		if err := c.Connect(); err != nil {
			t.Fatalf("Connect: %v", err)
		}
	}
	waitFor(t, "connected", func() bool { return c.State() == StateConnected })
	_ = c.Connect()

	if n := d.dials.Load(); n != 1 {
		t.Errorf("dials = %d, want 1", n)
	}
	if n := h.connected.Load(); n != 1 {
		t.Errorf("OnConnected = %d, want 1", n)
	}
}

func TestSendRequiresConnected(t *testing.T) {
	d := &fakeDialer{}
	c := newTestConnection(d, nil, newRecordingHandler())
	defer c.Close()

	if err := c.Send([]byte("x")); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Send before connect = %v, want ErrNotConnected", err)
	}
	_ = c.Connect()
	waitFor(t, "connected", func() bool { return c.State() == StateConnected })
	if err := c.Send([]byte("hello")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got := string(<-d.last().writes); got != "hello" {
		t.Errorf("written = %q", got)
	}
}

func TestMessagesDeliveredInOrder(t *testing.T) {
	d := &fakeDialer{}
	h := newRecordingHandler()
	c := newTestConnection(d, nil, h)
	defer c.Close()

	_ = c.Connect()
	waitFor(t, "connected", func() bool { return c.State() == StateConnected })
	fc := d.last()
	for _, m := range []string{"a", "b", "c"} {
		fc.in <- []byte(m)
	}
	for _, want := range []string{"a", "b", "c"} {
		if got := string(<-h.messages); got != want {
			t.Fatalf("message = %q, want %q", got, want)
		}
	}
}

// TestReconnectAfterDrop 掉线后按固定间隔重连，并再次触发 OnConnected
func TestReconnectAfterDrop(t *testing.T) {
	d := &fakeDialer{}
	h := newRecordingHandler()
	c := newTestConnection(d, nil, h)
	defer c.Close()

	_ = c.Connect()
	waitFor(t, "connected", func() bool { return c.State() == StateConnected })

	_ = d.last().Close()
	waitFor(t, "disconnected", func() bool { return h.disconnected.Load() == 1 })
	waitFor(t, "reconnected", func() bool { return h.connected.Load() == 2 })

	if n := d.dials.Load(); n != 2 {
		t.Errorf("dials = %d, want 2", n)
	}
	if c.ReconnectPending() {
		t.Error("no reconnect should be pending once connected")
	}
}

func TestDialFailureSchedulesSingleTimer(t *testing.T) {
	d := &fakeDialer{}
	d.fail.Store(true)
	h := newRecordingHandler()
	c := NewConnection(Options{Name: "test", URL: "ws://test", Dialer: d, ReconnectDelay: time.Hour}, h)
	defer c.Close()

	_ = c.Connect()
	waitFor(t, "disconnected", func() bool { return c.State() == StateDisconnected && c.ReconnectPending() })

	// 再次手动 Connect 会取消旧定时器，失败后只保留一个新的
	_ = c.Connect()
	waitFor(t, "second dial", func() bool { return d.dials.Load() == 2 && c.State() == StateDisconnected })
	if !c.ReconnectPending() {
		t.Error("reconnect should be pending")
	}
}

func TestCloseIsTerminal(t *testing.T) {
	d := &fakeDialer{}
	h := newRecordingHandler()
	c := newTestConnection(d, nil, h)

	_ = c.Connect()
	waitFor(t, "connected", func() bool { return c.State() == StateConnected })

	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if c.State() != StateClosed {
		t.Fatalf("state = %s, want CLOSED", c.State())
	}
	if err := c.Connect(); !errors.Is(err, ErrClosed) {
		t.Errorf("Connect after Close = %v, want ErrClosed", err)
	}

	time.Sleep(60 * time.Millisecond)
	if n := d.dials.Load(); n != 1 {
		t.Errorf("dials after close = %d, want 1", n)
	}
	if c.ReconnectPending() {
		t.Error("closed connection must not reconnect")
	}
	if h.disconnected.Load() != 0 {
		t.Error("explicit close should not report a disconnect")
	}
}

type tokenAuth struct{}

func (a tokenAuth) AuthPayload() ([]byte, error) {
	return []byte(`{"action":"auth","params":"secret"}`), nil
}

func (a tokenAuth) VerifyAuth(msg []byte) (bool, error) {
	switch string(msg) {
	case "auth_success":
		return true, nil
	case "auth_failed":
		return false, errors.New("invalid key")
	}
	return false, nil
}

// TestAuthHandshake 发送鉴权后停留在 CONNECTING，收到成功信号才进入 CONNECTED
func TestAuthHandshake(t *testing.T) {
	d := &fakeDialer{}
	h := newRecordingHandler()
	c := newTestConnection(d, tokenAuth{}, h)
	defer c.Close()

	_ = c.Connect()
	waitFor(t, "dialed", func() bool { return d.last() != nil })
	fc := d.last()

	if got := string(<-fc.writes); !strings.Contains(got, `"action":"auth"`) {
		t.Fatalf("first write = %q, want auth payload", got)
	}
	fc.in <- []byte("connected")
	time.Sleep(20 * time.Millisecond)
	if c.State() != StateConnecting {
		t.Fatalf("state = %s, want CONNECTING before auth success", c.State())
	}
	if err := c.Send([]byte("sub")); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send during auth = %v, want ErrNotConnected", err)
	}

	fc.in <- []byte("auth_success")
	waitFor(t, "connected", func() bool { return c.State() == StateConnected })
	if h.connected.Load() != 1 {
		t.Errorf("OnConnected = %d, want 1", h.connected.Load())
	}
	select {
	case m := <-h.messages:
		t.Errorf("auth messages should not reach the handler, got %q", m)
	default:
	}
}

func TestAuthRejectedReconnects(t *testing.T) {
	d := &fakeDialer{}
	h := newRecordingHandler()
	c := newTestConnection(d, tokenAuth{}, h)
	defer c.Close()

	_ = c.Connect()
	waitFor(t, "dialed", func() bool { return d.last() != nil })
	d.last().in <- []byte("auth_failed")

	waitFor(t, "redial", func() bool { return d.dials.Load() >= 2 })
	if h.connected.Load() != 0 {
		t.Error("rejected auth must not report connected")
	}
}

// TestWSDialerRoundTrip 使用 gorilla Upgrader 起一个真实的 websocket 服务
func TestWSDialerRoundTrip(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, b, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var req map[string]any
			if json.Unmarshal(b, &req) != nil {
				continue
			}
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"echo":true}`))
		}
	}))
	defer srv.Close()

	h := newRecordingHandler()
	c := NewConnection(Options{Name: "ws", URL: "ws" + strings.TrimPrefix(srv.URL, "http")}, h)
	defer c.Close()

	_ = c.Connect()
	waitFor(t, "connected", func() bool { return c.State() == StateConnected })
	if err := c.Send([]byte(`{"op":"ping"}`)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	select {
	case m := <-h.messages:
		if !strings.Contains(string(m), "echo") {
			t.Errorf("message = %q", m)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no echo received")
	}
}
