package web

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/memoria/memoria/internal/auth"
	"github.com/memoria/memoria/internal/cache"
	"github.com/memoria/memoria/internal/config"
	"github.com/memoria/memoria/internal/logger"
	"github.com/memoria/memoria/internal/objectstore"
	"github.com/memoria/memoria/internal/storage"
	"github.com/memoria/memoria/internal/upload"
	"github.com/memoria/memoria/internal/web/handlers"
	"github.com/memoria/memoria/internal/worker"
)

// Server веб-сервер галереи
type Server struct {
	cfg          *config.Config
	store        *storage.Store
	objects      objectstore.Store
	auth         *auth.Auth
	router       *chi.Mux
	cache        *cache.RecordCache
	uploads      *upload.Manager
	orchestrator *upload.Orchestrator
	workerPool   *worker.Pool
}

// NewServer создает новый веб-сервер
func NewServer(
	cfg *config.Config,
	store *storage.Store,
	objects objectstore.Store,
	authService *auth.Auth,
	recordCache *cache.RecordCache,
	uploads *upload.Manager,
	orchestrator *upload.Orchestrator,
	workerPool *worker.Pool,
) *Server {
	s := &Server{
		cfg:          cfg,
		store:        store,
		objects:      objects,
		auth:         authService,
		cache:        recordCache,
		uploads:      uploads,
		orchestrator: orchestrator,
		workerPool:   workerPool,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(middleware.Timeout(60 * time.Second))

	h := handlers.NewHandlers(s.cfg, s.store, s.objects, s.auth, s.cache, s.uploads, s.orchestrator, s.workerPool)

	// Публичные маршруты
	r.Post("/api/login", h.Login)

	// Защищенные маршруты
	r.Group(func(r chi.Router) {
		r.Use(s.auth.Middleware)

		r.Post("/api/logout", h.Logout)
		r.Get("/api/session", h.SessionInfo)

		// Галерея
		r.Get("/api/records", h.ListRecords)
		r.Get("/api/records/{id}", h.GetRecord)
		r.Put("/api/records/{id}/tags", h.UpdateTags)
		r.Get("/api/timeline", h.Timeline)
		r.Get("/api/timeline/{month}", h.TimelineMonth)
		r.Get("/api/stats", h.Stats)

		// Объекты хранилища
		r.Get("/objects/*", h.ServeObject)

		// Загрузка
		r.Post("/api/uploads", h.CreateUpload)
		r.Get("/api/uploads/{id}", h.UploadStatus)
		r.Delete("/api/uploads/{id}", h.DiscardUpload)
		r.Post("/api/uploads/{id}/files", h.StageFile)
		r.Delete("/api/uploads/{id}/files/{index}", h.RemoveFile)
		r.Post("/api/uploads/{id}/files/{index}/move", h.MoveFile)
		r.Post("/api/uploads/{id}/commit", h.CommitUpload)

		// Мониторинг
		r.Get("/api/queue", h.QueueStats)

		// Администрирование: для остальных этих маршрутов не существует
		r.Group(func(r chi.Router) {
			r.Use(s.auth.RequireAdmin)
			r.Delete("/api/records/{id}", h.DeleteRecord)
			r.Get("/api/duplicates", h.Duplicates)
		})
	})

	s.router = r
}

// Router возвращает HTTP-роутер сервера
func (s *Server) Router() http.Handler {
	return s.router
}

// Start запускает веб-сервер
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	logger.InfoLog.Printf("Starting server on http://%s", addr)
	return http.ListenAndServe(addr, s.router)
}
