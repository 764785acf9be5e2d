package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/zhouzirui/emi-live/backend/internal/config"
	"github.com/zhouzirui/emi-live/backend/internal/handler/live"
	"github.com/zhouzirui/emi-live/backend/internal/metrics"
	"github.com/zhouzirui/emi-live/backend/internal/model/profile"
	chatService "github.com/zhouzirui/emi-live/backend/internal/service/chat"
	liveService "github.com/zhouzirui/emi-live/backend/internal/service/live"
)

func newTestRouter() http.Handler {
	client := liveService.NewClient(liveService.Options{Config: config.LiveConfig{Model: "models/test"}})
	return NewRouter(Deps{
		Session:  client,
		Events:   live.NewHub(nil),
		Profiles: profile.NewMemoryStore(profile.Default()),
		History:  chatService.NewService(10),
		Metrics:  metrics.NewCollector("emi", nil),
		Logger:   zap.NewNop(),
	})
}

func TestRouterRoutes(t *testing.T) {
	r := newTestRouter()

	cases := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/healthz", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/api/live/status", http.StatusOK},
		{http.MethodPost, "/api/live/connect", http.StatusServiceUnavailable},
		{http.MethodGet, "/api/profile", http.StatusOK},
		{http.MethodGet, "/api/history", http.StatusOK},
		{http.MethodGet, "/api/unknown", http.StatusNotFound},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, nil).WithContext(context.Background())
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		assert.Equal(t, tc.want, rec.Code, "%s %s", tc.method, tc.path)
	}
}

func TestRouterAllowsAnyOriginByDefault(t *testing.T) {
	r := newTestRouter()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}
