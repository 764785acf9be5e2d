// Package live 实时会话的 HTTP 控制面：连接、断开、发送文本、状态查询与事件流。
package live

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	liveservice "github.com/zhouzirui/emi-live/backend/internal/service/live"
	"github.com/zhouzirui/emi-live/backend/pkg/utils"
)

// Session 会话客户端中被 HTTP 层使用的部分。
type Session interface {
	Connect(ctx context.Context) error
	Disconnect()
	SendMessage(ctx context.Context, text string) error
	State() liveservice.State
	Connected() bool
	Streaming() bool
	Err() string
	VolumeLevel() float64
}

// Status 会话状态快照。
type Status struct {
	State     string  `json:"state"`
	Connected bool    `json:"connected"`
	Streaming bool    `json:"streaming"`
	Error     string  `json:"error,omitempty"`
	Volume    float64 `json:"volume"`
}

// Handler 实时会话 HTTP 处理器
type Handler struct {
	session   Session
	hub       *Hub
	logger    *zap.Logger
	heartbeat time.Duration
}

// New 创建处理器
func New(session Session, hub *Hub, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		session:   session,
		hub:       hub,
		logger:    logger.With(zap.String("component", "handler.live")),
		heartbeat: 15 * time.Second,
	}
}

// RegisterRoutes 注册 /live 路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/live", func(r chi.Router) {
		r.Post("/connect", h.handleConnect)
		r.Post("/disconnect", h.handleDisconnect)
		r.Post("/messages", h.handleSendMessage)
		r.Get("/status", h.handleStatus)
		r.Get("/events", h.handleEvents)
	})
}

func (h *Handler) status() Status {
	return Status{
		State:     h.session.State().String(),
		Connected: h.session.Connected(),
		Streaming: h.session.Streaming(),
		Error:     h.session.Err(),
		Volume:    h.session.VolumeLevel(),
	}
}

func (h *Handler) publishStatus() {
	st := h.status()
	h.hub.Publish(Event{Type: EventStatus, State: st.State, Error: st.Error})
}

func (h *Handler) handleConnect(w http.ResponseWriter, r *http.Request) {
	// 会话生命周期不跟随请求。
	ctx := context.WithoutCancel(r.Context())
	if err := h.session.Connect(ctx); err != nil {
		h.logger.Warn("[live] connect failed", zap.Error(err))
		status := http.StatusBadGateway
		if errors.Is(err, liveservice.ErrNotConfigured) {
			status = http.StatusServiceUnavailable
		}
		utils.RespondError(w, status, err.Error())
		h.publishStatus()
		return
	}
	h.publishStatus()
	utils.RespondJSON(w, http.StatusAccepted, h.status())
}

func (h *Handler) handleDisconnect(w http.ResponseWriter, _ *http.Request) {
	h.session.Disconnect()
	h.publishStatus()
	utils.RespondJSON(w, http.StatusOK, h.status())
}

func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Text string `json:"text"`
	}
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	err := h.session.SendMessage(r.Context(), payload.Text)
	switch {
	case err == nil:
		utils.RespondJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
	case errors.Is(err, liveservice.ErrEmptyMessage):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, liveservice.ErrNotActive):
		utils.RespondError(w, http.StatusConflict, err.Error())
	default:
		utils.RespondError(w, http.StatusBadGateway, err.Error())
	}
}

func (h *Handler) handleStatus(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.status())
}

// handleEvents 以 SSE 推送模型文本、音频到达和状态变化。
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	sse, err := utils.NewSSEWriter(w)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	events, cancel := h.hub.Subscribe(64)
	defer cancel()

	h.logger.Debug("[sse] subscriber attached")
	st := h.status()
	if err := sse.Event(EventStatus, Event{Type: EventStatus, State: st.State, Error: st.Error}); err != nil {
		return
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			h.logger.Debug("[sse] subscriber detached")
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := sse.Event(ev.Type, ev); err != nil {
				return
			}
		case <-ticker.C:
			if err := sse.Comment("heartbeat"); err != nil {
				return
			}
		}
	}
}
