package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"gorm.io/gorm"

	"metricflow/config"
	"metricflow/internal/infra"
	"metricflow/internal/middleware"
	"metricflow/internal/usecase"
	"metricflow/pkg/httputil"
)

// Handlers はルーターに登録するハンドラ群。
type Handlers struct {
	Auth    *AuthHandler
	KPI     *KPIHandler
	Entry   *EntryHandler
	Insight *InsightHandler
	Room    *RoomHandler
	User    *UserHandler
}

// NewRouter はルーターを生成する。
func NewRouter(h *Handlers, authSvc *usecase.AuthService, db *gorm.DB, cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	// ミドルウェア
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)

	// レートリミット。認証系は総当たり対策で厳しめにする。
	defaultLimiter := middleware.NewRateLimiter(middleware.DefaultRequestsPerMinute)
	strictLimiter := middleware.NewRateLimiter(middleware.StrictRequestsPerMinute)

	authenticate := middleware.Authenticator(authSvc)

	// 死活監視用エンドポイント
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		if err := infra.Ping(db); err != nil {
			httputil.Error(w, http.StatusServiceUnavailable, "UNHEALTHY", "database is not reachable")
			return
		}
		httputil.JSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]string{
			"service": cfg.OtelServiceName,
			"status":  "running",
		})
	})

	// ルート定義
	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(strictLimiter.Middleware).Post("/register-org", h.Auth.Register)
			r.With(strictLimiter.Middleware).Post("/login", h.Auth.Login)
			r.With(strictLimiter.Middleware).Post("/refresh", h.Auth.Refresh)
			r.Post("/logout", h.Auth.Logout)
			r.With(authenticate).Post("/change-password", h.Auth.ChangePassword)
			r.With(authenticate).Get("/me", h.Auth.Me)
		})

		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Use(defaultLimiter.Middleware)

			r.Route("/kpis", func(r chi.Router) {
				r.Get("/", h.KPI.ListKPIs)
				r.Post("/", h.KPI.CreateKPI)
				r.Get("/available-presets", h.KPI.ListPresets)
				r.Post("/seed-presets", h.KPI.SeedPresets)
				r.Get("/{kpi_id}", h.KPI.GetKPI)
				r.Put("/{kpi_id}", h.KPI.UpdateKPI)
				r.Delete("/{kpi_id}", h.KPI.DeleteKPI)
				r.Get("/{kpi_id}/statistics", h.KPI.GetStatistics)
				r.Get("/{kpi_id}/trend", h.KPI.GetTrend)
			})

			r.Route("/entries", func(r chi.Router) {
				r.Get("/", h.Entry.ListEntries)
				r.Post("/", h.Entry.SubmitEntries)
				r.Delete("/{entry_id}", h.Entry.DeleteEntry)
			})

			r.Route("/insights", func(r chi.Router) {
				r.Get("/", h.Insight.ListInsights)
				r.Post("/generate", h.Insight.GenerateInsights)
			})

			r.Route("/rooms", func(r chi.Router) {
				r.Get("/", h.Room.ListRooms)
				r.Post("/", h.Room.CreateRoom)
				r.Get("/{room_id}", h.Room.GetRoom)
				r.Put("/{room_id}", h.Room.UpdateRoom)
				r.Delete("/{room_id}", h.Room.DeleteRoom)
				r.Get("/{room_id}/kpis", h.Room.ListRoomKPIs)
				r.Post("/{room_id}/kpis", h.Room.AssignKPI)
				r.Delete("/{room_id}/kpis/{kpi_id}", h.Room.UnassignKPI)
				r.Post("/{room_id}/users", h.Room.AssignUser)
			})

			r.Route("/users", func(r chi.Router) {
				r.Get("/", h.User.ListUsers)
				r.Post("/invite", h.User.InviteUser)
				r.Put("/{user_id}/role", h.User.UpdateUserRole)
			})
		})
	})

	if cfg.OtelEnabled {
		return otelhttp.NewHandler(r, "metricflow-api")
	}
	return r
}
