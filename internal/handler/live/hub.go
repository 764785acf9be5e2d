package live

import (
	"sync"

	"go.uber.org/zap"

	liveservice "github.com/zhouzirui/emi-live/backend/internal/service/live"
)

// Event 推送给 SSE 订阅者的会话事件。
type Event struct {
	Type  string `json:"type"`
	Text  string `json:"text,omitempty"`
	State string `json:"state,omitempty"`
	Error string `json:"error,omitempty"`
}

const (
	EventText   = "text"
	EventAudio  = "audio"
	EventStatus = "status"
)

// Hub 把会话回调扇出到多个订阅者。订阅者处理不过来时丢弃事件，不阻塞会话。
type Hub struct {
	logger *zap.Logger

	mu   sync.Mutex
	subs map[chan Event]struct{}
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		logger: logger.With(zap.String("component", "live.hub")),
		subs:   make(map[chan Event]struct{}),
	}
}

// OnSessionEvent 与会话回调签名一致，直接作为 live.Options.OnEvent。
func (h *Hub) OnSessionEvent(text *string, audioPresent bool) {
	if text != nil {
		h.Publish(Event{Type: EventText, Text: *text})
	}
	if audioPresent {
		h.Publish(Event{Type: EventAudio})
	}
}

// OnStateChange 与状态回调签名一致，直接作为 live.Options.OnState。
func (h *Hub) OnStateChange(state liveservice.State, errText string) {
	h.Publish(Event{Type: EventStatus, State: state.String(), Error: errText})
}

func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.logger.Debug("[sse] subscriber lagging, event dropped", zap.String("type", ev.Type))
		}
	}
}

// Subscribe 返回事件通道和取消函数；取消后通道被关闭。
func (h *Hub) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 32
	}
	ch := make(chan Event, buffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers 当前订阅数。
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
