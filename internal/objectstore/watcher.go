package objectstore

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/memoria/memoria/internal/logger"
)

// ObjectEvent представляет внешнее изменение в корне хранилища
type ObjectEvent struct {
	Key       string
	Operation string // create, remove
	Time      time.Time
}

// EventHandler обрабатывает события хранилища
type EventHandler func(event ObjectEvent)

// Watcher наблюдает за корнем локального хранилища и сообщает о внешних
// удалениях и появлениях объектов. Запись, чей объект удалили мимо
// приложения, остаётся висячей ссылкой — наблюдатель хотя бы фиксирует это.
type Watcher struct {
	local    *Local
	watcher  *fsnotify.Watcher
	handlers []EventHandler

	mu       sync.RWMutex
	running  bool
	stopChan chan struct{}

	// Debouncing - группировка событий
	pendingEvents map[string]*ObjectEvent
	debounceTimer *time.Timer
	debounceMu    sync.Mutex
}

// NewWatcher создает наблюдатель для локального хранилища
func NewWatcher(local *Local) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		local:         local,
		watcher:       fsWatcher,
		handlers:      make([]EventHandler, 0),
		stopChan:      make(chan struct{}),
		pendingEvents: make(map[string]*ObjectEvent),
	}, nil
}

// AddHandler добавляет обработчик событий
func (w *Watcher) AddHandler(handler EventHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers = append(w.handlers, handler)
}

// Start запускает наблюдение
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.addRecursive(w.local.Root()); err != nil {
		logger.ErrorLog.Printf("Watcher: error adding root %s: %v", w.local.Root(), err)
	}

	go w.eventLoop()

	logger.InfoLog.Println("Object store watcher started")
	return nil
}

// Stop останавливает наблюдение. Единственная точка отмены:
// повторный вызов безопасен и ничего не делает.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopChan)
	w.watcher.Close()

	w.debounceMu.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceMu.Unlock()

	logger.InfoLog.Println("Object store watcher stopped")
	return nil
}

// addRecursive добавляет директорию и все поддиректории
func (w *Watcher) addRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Продолжаем при ошибках доступа
		}

		if info.IsDir() {
			if strings.HasPrefix(info.Name(), ".") && path != root {
				return filepath.SkipDir
			}
			if err := w.watcher.Add(path); err != nil {
				logger.ErrorLog.Printf("Watcher: failed to watch %s: %v", path, err)
			}
		}

		return nil
	})
}

func (w *Watcher) eventLoop() {
	for {
		select {
		case <-w.stopChan:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleFSEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.ErrorLog.Printf("Watcher error: %v", err)
		}
	}
}

func (w *Watcher) handleFSEvent(event fsnotify.Event) {
	var op string
	switch {
	case event.Op&fsnotify.Create == fsnotify.Create:
		op = "create"
	case event.Op&fsnotify.Remove == fsnotify.Remove,
		event.Op&fsnotify.Rename == fsnotify.Rename:
		op = "remove"
	default:
		return
	}

	// Временные файлы Put не интересны
	if strings.HasPrefix(filepath.Base(event.Name), ".put-") {
		return
	}

	// Новая директория добавляется в наблюдение
	if op == "create" {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(event.Name); err != nil {
				logger.ErrorLog.Printf("Watcher: failed to add directory %s: %v", event.Name, err)
			}
			return
		}
	}

	key, err := filepath.Rel(w.local.Root(), event.Name)
	if err != nil {
		return
	}

	objEvent := &ObjectEvent{
		Key:       filepath.ToSlash(key),
		Operation: op,
		Time:      time.Now(),
	}

	// Debouncing - откладываем обработку для группировки событий
	w.debounceMu.Lock()
	w.pendingEvents[objEvent.Key] = objEvent

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(500*time.Millisecond, w.processPendingEvents)
	w.debounceMu.Unlock()
}

func (w *Watcher) processPendingEvents() {
	w.debounceMu.Lock()
	events := w.pendingEvents
	w.pendingEvents = make(map[string]*ObjectEvent)
	w.debounceMu.Unlock()

	w.mu.RLock()
	handlers := w.handlers
	w.mu.RUnlock()

	for _, event := range events {
		logger.InfoLog.Printf("Watcher: %s %s", event.Operation, event.Key)

		for _, handler := range handlers {
			handler(*event)
		}
	}
}

// IsRunning возвращает состояние наблюдателя
func (w *Watcher) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}
