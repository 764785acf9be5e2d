package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/zhouzirui/emi-live/backend/internal/handler/history"
	"github.com/zhouzirui/emi-live/backend/internal/handler/live"
	profileHandler "github.com/zhouzirui/emi-live/backend/internal/handler/profile"
	"github.com/zhouzirui/emi-live/backend/internal/metrics"
	middlewarePkg "github.com/zhouzirui/emi-live/backend/internal/middleware"
	"github.com/zhouzirui/emi-live/backend/internal/model/profile"
	chatService "github.com/zhouzirui/emi-live/backend/internal/service/chat"
	"github.com/zhouzirui/emi-live/backend/pkg/utils"
)

// Deps 路由依赖。
type Deps struct {
	Session        live.Session
	Events         *live.Hub
	Profiles       profile.Store
	History        *chatService.Service
	Metrics        *metrics.Collector
	Logger         *zap.Logger
	AllowedOrigins []string
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(deps.AllowedOrigins))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())

	r.Route("/api", func(api chi.Router) {
		if deps.Session != nil {
			events := deps.Events
			if events == nil {
				events = live.NewHub(logger)
			}
			live.New(deps.Session, events, logger).RegisterRoutes(api)
		}
		if deps.Profiles != nil {
			profileHandler.New(deps.Profiles, logger).RegisterRoutes(api)
		}
		if deps.History != nil {
			history.New(deps.History).RegisterRoutes(api)
		}
	})

	return r
}
