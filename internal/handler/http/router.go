package http

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/cmlabs-hris/hris-live-attendance/internal/config"
	"github.com/cmlabs-hris/hris-live-attendance/internal/handler/http/middleware"
	"github.com/cmlabs-hris/hris-live-attendance/internal/pkg/jwt"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v3"
	"github.com/go-chi/jwtauth/v5"
)

func NewRouter(cfg *config.Config, JWTService jwt.Service, attendanceHandler AttendanceHandler, liveHandler LiveHandler) *chi.Mux {
	r := chi.NewRouter()
	logFormat := httplog.SchemaECS.Concise(cfg.App.Env != "development")
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		ReplaceAttr: logFormat.ReplaceAttr,
	})).With(
		slog.String("app", "hris-live-attendance"),
		slog.String("version", "v1.0.0"),
		slog.String("env", cfg.App.Env),
	)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		MaxAge:           300,
	}))

	r.Use(middleware.RedactQueryToken)
	r.Use(httplog.RequestLogger(logger, &httplog.Options{
		Level:  cfg.LogLevel(),
		Schema: httplog.SchemaECS,
	}))

	r.Use(chiMiddleware.AllowContentEncoding("application/json"))
	r.Use(chiMiddleware.CleanPath)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/"))

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/live", func(r chi.Router) {
			// Authenticated by the short-lived token in the query string
			r.Get("/stream", liveHandler.Stream)

			r.Group(func(r chi.Router) {
				r.Use(authenticated(JWTService)...)
				r.Get("/", liveHandler.Get)
				r.Post("/refresh", liveHandler.Refresh)
				r.Post("/reconnect", liveHandler.Reconnect)
				r.Post("/visibility", liveHandler.SetVisibility)
				r.Post("/stream-token", liveHandler.StreamToken)
			})
		})

		r.Route("/attendance", func(r chi.Router) {
			r.Use(authenticated(JWTService)...)
			r.Post("/clock-in", attendanceHandler.ClockIn)
			r.Post("/break-start", attendanceHandler.StartBreak)
			r.Post("/break-end", attendanceHandler.EndBreak)
			r.Post("/clock-out", attendanceHandler.ClockOut)
			r.Get("/{employeeID}/{date}", attendanceHandler.GetSession)
		})
	})
	return r
}

// authenticated requires a company-scoped access token.
func authenticated(JWTService jwt.Service) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		jwtauth.Verifier(JWTService.JWTAuth()),
		middleware.AuthRequired(JWTService.JWTAuth()),
		middleware.RequireCompany,
	}
}
