package web

import (
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kozaktomas/face-attendance/internal/web/handlers"
	"github.com/kozaktomas/face-attendance/internal/web/middleware"
	"github.com/kozaktomas/face-attendance/internal/web/static"
)

func (s *Server) setupRoutes() {
	authHandler := handlers.NewAuthHandler(s.config.Auth.AdminPassword, s.sessionManager)
	recognitionHandler := handlers.NewRecognitionHandler(s.deps.Recognition)
	streamHandler := handlers.NewStreamHandler(s.deps.Frames, nil)
	attendanceHandler := handlers.NewAttendanceHandler(s.deps.Records, s.config.Recognition.Location())

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", handlers.HealthCheck)
		if s.deps.Gatherer != nil {
			r.Handle("/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))
		}

		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/logout", authHandler.Logout)
		r.Get("/auth/status", authHandler.Status)

		r.Group(func(r chi.Router) {
			// An empty admin password leaves the control surface open, for kiosk setups.
			if s.config.Auth.AdminPassword != "" {
				r.Use(middleware.RequireAuth(s.sessionManager))
			}

			r.Group(func(r chi.Router) {
				r.Use(chiMiddleware.Timeout(time.Minute))

				r.Post("/recognition/start", recognitionHandler.Start)
				r.Post("/recognition/stop", recognitionHandler.Stop)
				r.Get("/recognition/status", recognitionHandler.Status)
				r.Get("/recognition/config", recognitionHandler.GetConfig)
				r.Put("/recognition/config", recognitionHandler.UpdateConfig)

				r.Get("/attendance/today", attendanceHandler.Today)
				r.Get("/stream/frame", streamHandler.Frame)
			})

			r.Get("/stream/video", streamHandler.Video)
			r.Get("/stream/ws", streamHandler.WebSocket)
		})
	})

	s.router.Get("/*", s.serveDashboard)
}

var contentTypes = map[string]string{
	".html": "text/html; charset=utf-8",
	".css":  "text/css; charset=utf-8",
	".js":   "application/javascript; charset=utf-8",
	".svg":  "image/svg+xml",
	".png":  "image/png",
	".ico":  "image/x-icon",
}

// serveDashboard serves the embedded operator dashboard, falling back to index.html
func (s *Server) serveDashboard(w http.ResponseWriter, r *http.Request) {
	fs := static.GetFileSystem()
	p := r.URL.Path
	if p == "/" {
		p = "/index.html"
	}

	f, err := fs.Open(p)
	if err == nil {
		defer f.Close()
		if stat, err := f.Stat(); err == nil && !stat.IsDir() {
			if ct, ok := contentTypes[path.Ext(p)]; ok {
				w.Header().Set("Content-Type", ct)
			}
			w.WriteHeader(http.StatusOK)
			io.Copy(w, f)
			return
		}
	}

	if strings.HasPrefix(p, "/api/") {
		http.NotFound(w, r)
		return
	}

	index, err := fs.Open("/index.html")
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer index.Close()
	w.Header().Set("Content-Type", contentTypes[".html"])
	w.WriteHeader(http.StatusOK)
	io.Copy(w, index)
}
