package live

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/emi-live/backend/internal/config"
	"github.com/zhouzirui/emi-live/backend/internal/service/capture"
)

// fakeTransport 内存传输：inbound 模拟服务端下行，sent 记录上行帧。
type fakeTransport struct {
	mu   sync.Mutex
	sent []map[string]any

	inbound   chan []byte
	failures  chan error
	closed    chan struct{}
	closeOnce sync.Once
	// hold 非 nil 时，已读出的帧要等 hold 关闭才交给调用方。
	hold chan struct{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		inbound:  make(chan []byte, 16),
		failures: make(chan error, 1),
		closed:   make(chan struct{}),
	}
}

func (t *fakeTransport) Send(v any) error {
	select {
	case <-t.closed:
		return websocket.ErrCloseSent
	default:
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var frame map[string]any
	if err := json.Unmarshal(payload, &frame); err != nil {
		return err
	}
	t.mu.Lock()
	t.sent = append(t.sent, frame)
	t.mu.Unlock()
	return nil
}

func (t *fakeTransport) Receive() ([]byte, error) {
	select {
	case data := <-t.inbound:
		t.mu.Lock()
		hold := t.hold
		t.mu.Unlock()
		if hold != nil {
			<-hold
		}
		return data, nil
	case err := <-t.failures:
		return nil, err
	case <-t.closed:
		return nil, &websocket.CloseError{Code: websocket.CloseNormalClosure}
	}
}

func (t *fakeTransport) Close() error {
	t.closeOnce.Do(func() { close(t.closed) })
	return nil
}

func (t *fakeTransport) isClosed() bool {
	select {
	case <-t.closed:
		return true
	default:
		return false
	}
}

// holdDelivery 之后读出的帧暂扣，直到调用返回的 release。
func (t *fakeTransport) holdDelivery() (release func()) {
	hold := make(chan struct{})
	t.mu.Lock()
	t.hold = hold
	t.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(hold) }) }
}

func (t *fakeTransport) push(raw string) {
	t.inbound <- []byte(raw)
}

// frames 返回顶层键为 key 的上行帧。
func (t *fakeTransport) frames(key string) []map[string]any {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []map[string]any
	for _, frame := range t.sent {
		if body, ok := frame[key].(map[string]any); ok {
			out = append(out, body)
		}
	}
	return out
}

type fakeDialer struct {
	transport *fakeTransport
	err       error
	dials     atomic.Int32
	// gate 非 nil 时 Dial 阻塞到 gate 关闭。
	gate chan struct{}
}

func (d *fakeDialer) Dial(ctx context.Context) (Transport, error) {
	d.dials.Add(1)
	if d.gate != nil {
		select {
		case <-d.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if d.err != nil {
		return nil, d.err
	}
	return d.transport, nil
}

// fakeMic 每 10ms 产出一块固定采样。
type fakeMic struct {
	opened atomic.Int32
	err    error
}

func (m *fakeMic) Open(context.Context, int) (capture.AudioStream, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.opened.Add(1)
	return &fakeStream{done: make(chan struct{})}, nil
}

type fakeStream struct {
	done chan struct{}
	once sync.Once
}

func (s *fakeStream) Read() ([]float32, error) {
	select {
	case <-s.done:
		return nil, io.EOF
	case <-time.After(10 * time.Millisecond):
	}
	samples := make([]float32, 160)
	for i := range samples {
		samples[i] = 0.25
	}
	return samples, nil
}

func (s *fakeStream) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

func testLiveConfig() config.LiveConfig {
	return config.LiveConfig{
		APIKey:            "test-key",
		Model:             "models/test",
		Voice:             "Puck",
		TranscriptEnabled: true,
		HistoryLimit:      10,
	}
}

var errBoom = errors.New("boom")

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond, msg)
}
