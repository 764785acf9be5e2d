package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Transport 与模型服务之间的双工连接。
type Transport interface {
	// Send 以文本帧发送一个 JSON 对象，并发安全。
	Send(v any) error
	// Receive 阻塞读取下一帧（文本或二进制）。
	Receive() ([]byte, error)
	// Close 发送关闭帧并释放连接，可重复调用。
	Close() error
}

// Dialer 建立 Transport。
type Dialer interface {
	Dial(ctx context.Context) (Transport, error)
}

// DialOptions WebSocket 连接选项。
type DialOptions struct {
	URL              string
	APIKey           string
	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	PingInterval     time.Duration
	MaxRetries       int
}

func (o DialOptions) withDefaults() DialOptions {
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 10 * time.Second
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 2*o.PingInterval + 10*time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.MaxRetries < 1 {
		o.MaxRetries = 1
	}
	return o
}

// WebsocketDialer 基于 gorilla/websocket 的拨号器，可重试错误按线性退避重连。
type WebsocketDialer struct {
	opts   DialOptions
	logger *zap.Logger
}

func NewWebsocketDialer(opts DialOptions, logger *zap.Logger) *WebsocketDialer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebsocketDialer{
		opts:   opts.withDefaults(),
		logger: logger.With(zap.String("component", "live.transport")),
	}
}

// Dial 带重试的连接建立。
func (d *WebsocketDialer) Dial(ctx context.Context) (Transport, error) {
	endpoint, err := buildEndpoint(d.opts.URL, d.opts.APIKey)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for i := 0; i < d.opts.MaxRetries; i++ {
		conn, err := d.connect(ctx, endpoint)
		if err == nil {
			return newWSTransport(conn, d.opts, d.logger), nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !IsRetryableError(err) || i == d.opts.MaxRetries-1 {
			break
		}

		retryDelay := time.Duration(i+1) * time.Second
		d.logger.Warn("[websocket] dial failed, retrying",
			zap.Int("attempt", i+1),
			zap.Duration("delay", retryDelay),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryDelay):
		}
	}

	return nil, fmt.Errorf("failed to connect to live endpoint: %w", lastErr)
}

func (d *WebsocketDialer) connect(ctx context.Context, endpoint string) (*websocket.Conn, error) {
	dialer := &websocket.Dialer{
		HandshakeTimeout: d.opts.HandshakeTimeout,
		Proxy:            websocket.DefaultDialer.Proxy,
	}

	conn, resp, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil {
			return nil, &HandshakeError{StatusCode: resp.StatusCode, Err: err}
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

// HandshakeError 服务端以非 101 状态拒绝升级。
type HandshakeError struct {
	StatusCode int
	Err        error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("websocket handshake rejected with status %d: %v", e.StatusCode, e.Err)
}

func (e *HandshakeError) Unwrap() error { return e.Err }

func buildEndpoint(raw, apiKey string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("invalid live url %q: %w", raw, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("invalid live url %q: scheme must be ws or wss", raw)
	}
	if apiKey != "" {
		q := u.Query()
		q.Set("key", apiKey)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// IsRetryableError 判断拨号或连接错误是否值得重试。
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var hs *HandshakeError
	if errors.As(err, &hs) {
		return hs.StatusCode >= 500 || hs.StatusCode == 429
	}

	if websocket.IsCloseError(err, websocket.CloseAbnormalClosure, websocket.CloseGoingAway) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// wsTransport 写操作串行化；pong 延长读超时；后台定期 ping。
type wsTransport struct {
	conn   *websocket.Conn
	opts   DialOptions
	logger *zap.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

func newWSTransport(conn *websocket.Conn, opts DialOptions, logger *zap.Logger) *wsTransport {
	t := &wsTransport{
		conn:   conn,
		opts:   opts,
		logger: logger,
		done:   make(chan struct{}),
	}

	_ = conn.SetReadDeadline(time.Now().Add(opts.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(opts.ReadTimeout))
	})

	go t.pingLoop()
	return t
}

func (t *wsTransport) Send(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	select {
	case <-t.done:
		return net.ErrClosed
	default:
	}

	_ = t.conn.SetWriteDeadline(time.Now().Add(t.opts.WriteTimeout))
	return t.conn.WriteMessage(websocket.TextMessage, payload)
}

func (t *wsTransport) Receive() ([]byte, error) {
	for {
		msgType, data, err := t.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		_ = t.conn.SetReadDeadline(time.Now().Add(t.opts.ReadTimeout))
		if msgType == websocket.TextMessage || msgType == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (t *wsTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.writeMu.Lock()
		close(t.done)
		_ = t.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		t.writeMu.Unlock()
		err = t.conn.Close()
	})
	return err
}

func (t *wsTransport) pingLoop() {
	ticker := time.NewTicker(t.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			t.writeMu.Lock()
			err := t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(t.opts.WriteTimeout))
			t.writeMu.Unlock()
			if err != nil {
				t.logger.Debug("[websocket] ping failed", zap.Error(err))
				return
			}
		}
	}
}
