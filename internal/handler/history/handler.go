// Package history 对话历史的只读 HTTP 接口。
package history

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	chatService "github.com/zhouzirui/emi-live/backend/internal/service/chat"
	"github.com/zhouzirui/emi-live/backend/pkg/utils"
)

const defaultLimit = 20

// Handler 历史记录处理器
type Handler struct {
	chatSvc *chatService.Service
}

// New 创建历史记录处理器
func New(chatSvc *chatService.Service) *Handler {
	return &Handler{chatSvc: chatSvc}
}

// RegisterRoutes 注册历史相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/history", h.handleRecent)
	r.Get("/history/{sessionID}", h.handleTranscript)
}

// handleRecent 跨会话的最近消息
func (h *Handler) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit := defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			utils.RespondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	utils.RespondJSON(w, http.StatusOK, h.chatSvc.Recent(r.Context(), limit))
}

// handleTranscript 某个会话的全部消息
func (h *Handler) handleTranscript(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	session, err := h.chatSvc.GetSession(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, chatService.ErrSessionNotFound) {
			utils.RespondError(w, http.StatusNotFound, err.Error())
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	messages, err := h.chatSvc.LoadTranscript(r.Context(), sessionID)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"session":  session,
		"messages": messages,
	})
}
