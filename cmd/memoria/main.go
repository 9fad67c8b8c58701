package main

import (
	"flag"
	"log"
	"os"

	"github.com/memoria/memoria/internal/auth"
	"github.com/memoria/memoria/internal/cache"
	"github.com/memoria/memoria/internal/config"
	"github.com/memoria/memoria/internal/logger"
	"github.com/memoria/memoria/internal/media"
	"github.com/memoria/memoria/internal/objectstore"
	"github.com/memoria/memoria/internal/storage"
	"github.com/memoria/memoria/internal/upload"
	"github.com/memoria/memoria/internal/web"
	"github.com/memoria/memoria/internal/worker"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = config.Default()
	}

	if err := logger.Init(cfg.Storage.LogsPath); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Cleanup()

	store, err := storage.NewStore(cfg.Storage.DBPath)
	if err != nil {
		logger.ErrorLog.Fatalf("Failed to open storage: %v", err)
	}
	defer store.Close()

	objects, err := objectstore.NewLocal(cfg.Storage.ObjectsPath)
	if err != nil {
		logger.ErrorLog.Fatalf("Failed to initialize object store: %v", err)
	}

	// Незавершённые партии не переживают рестарт
	os.RemoveAll(cfg.Storage.SpoolPath)
	if err := os.MkdirAll(cfg.Storage.SpoolPath, 0755); err != nil {
		logger.ErrorLog.Fatalf("Failed to create spool directory: %v", err)
	}

	authService := auth.NewAuth(cfg, store)
	if cfg.Auth.AdminUsername != "" && cfg.Auth.AdminPassword != "" {
		if err := authService.EnsureAdminUser(); err != nil {
			logger.ErrorLog.Fatalf("Failed to ensure admin user: %v", err)
		}
	}

	thumbGen := media.NewThumbnailGenerator(cfg)
	recordCache := cache.NewRecordCache()
	defer recordCache.Stop()

	pool := worker.NewPool(0, 0)
	pool.Start()
	defer pool.Stop()

	repair := worker.NewRepairService(pool, store, objects, thumbGen)
	if err := repair.QueueRepairs(); err != nil {
		logger.ErrorLog.Printf("Failed to queue record repairs: %v", err)
	}

	// Следим за изменениями в хранилище объектов, чтобы сбрасывать
	// кэш при внешних изменениях файлов
	watcher, err := objectstore.NewWatcher(objects)
	if err != nil {
		logger.ErrorLog.Printf("Object watcher unavailable: %v", err)
	} else {
		watcher.AddHandler(func(event objectstore.ObjectEvent) {
			recordCache.Clear()
		})
		if err := watcher.Start(); err != nil {
			logger.ErrorLog.Printf("Failed to start object watcher: %v", err)
		} else {
			defer watcher.Stop()
		}
	}

	uploads := upload.NewManager(cfg.Storage.SpoolPath, cfg.Upload.MaxBatchBytes)
	orchestrator := upload.NewOrchestrator(store, objects, thumbGen)

	server := web.NewServer(cfg, store, objects, authService, recordCache, uploads, orchestrator, pool)
	if err := server.Start(); err != nil {
		logger.ErrorLog.Fatalf("Server error: %v", err)
	}
}
