// Package profile 用户资料的 HTTP 处理器。
package profile

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/emi-live/backend/internal/model/profile"
	"github.com/zhouzirui/emi-live/backend/pkg/utils"
)

// Handler 资料服务的HTTP处理器
type Handler struct {
	store  profile.Store
	logger *zap.Logger
}

// New 创建资料处理器
func New(store profile.Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, logger: logger.With(zap.String("component", "handler.profile"))}
}

// RegisterRoutes 注册资料相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/profile", h.handleGet)
	r.Patch("/profile", h.handlePatch)
	r.Post("/profile/tags", h.handleAddTag)
	r.Delete("/profile/tags/{tag}", h.handleRemoveTag)
}

func (h *Handler) handleGet(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.store.Snapshot())
}

func (h *Handler) handlePatch(w http.ResponseWriter, r *http.Request) {
	var patch profile.Patch
	if err := utils.DecodeJSON(w, r, &patch); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	p, err := h.store.Update(patch)
	h.respond(w, p, err)
}

func (h *Handler) handleAddTag(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Tag string `json:"tag"`
	}
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(payload.Tag) == "" {
		utils.RespondError(w, http.StatusBadRequest, "tag is required")
		return
	}
	p, err := h.store.AddTag(payload.Tag)
	h.respond(w, p, err)
}

func (h *Handler) handleRemoveTag(w http.ResponseWriter, r *http.Request) {
	p, err := h.store.RemoveTag(chi.URLParam(r, "tag"))
	h.respond(w, p, err)
}

func (h *Handler) respond(w http.ResponseWriter, p profile.Profile, err error) {
	if err != nil {
		if errors.Is(err, profile.ErrInvalid) {
			utils.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("profile update failed", zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, "profile update failed")
		return
	}
	utils.RespondJSON(w, http.StatusOK, p)
}
