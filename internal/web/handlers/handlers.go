package handlers

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/memoria/memoria/internal/auth"
	"github.com/memoria/memoria/internal/cache"
	"github.com/memoria/memoria/internal/config"
	"github.com/memoria/memoria/internal/gallery"
	"github.com/memoria/memoria/internal/logger"
	"github.com/memoria/memoria/internal/media"
	"github.com/memoria/memoria/internal/objectstore"
	"github.com/memoria/memoria/internal/storage"
	"github.com/memoria/memoria/internal/upload"
	"github.com/memoria/memoria/internal/worker"
)

// Handlers содержит все HTTP-обработчики
type Handlers struct {
	cfg          *config.Config
	store        *storage.Store
	objects      objectstore.Store
	auth         *auth.Auth
	cache        *cache.RecordCache
	uploads      *upload.Manager
	orchestrator *upload.Orchestrator
	workerPool   *worker.Pool
}

// NewHandlers создает новый экземпляр обработчиков
func NewHandlers(
	cfg *config.Config,
	store *storage.Store,
	objects objectstore.Store,
	authService *auth.Auth,
	recordCache *cache.RecordCache,
	uploads *upload.Manager,
	orchestrator *upload.Orchestrator,
	workerPool *worker.Pool,
) *Handlers {
	return &Handlers{
		cfg:          cfg,
		store:        store,
		objects:      objects,
		auth:         authService,
		cache:        recordCache,
		uploads:      uploads,
		orchestrator: orchestrator,
		workerPool:   workerPool,
	}
}

// === Аутентификация ===

// Login обрабатывает вход пользователя
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	session, err := h.auth.Login(req.Username, req.Password)
	if err != nil {
		h.jsonError(w, "Invalid username or password", http.StatusUnauthorized)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "session",
		Value:    session.ID,
		Path:     "/",
		MaxAge:   h.cfg.Auth.SessionMaxAge,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})

	h.jsonResponse(w, map[string]interface{}{
		"username": session.Username,
		"role":     session.Role,
	})
}

// Logout выполняет выход пользователя
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie("session")
	if err == nil {
		h.auth.Logout(cookie.Value)
	}

	http.SetCookie(w, &http.Cookie{
		Name:   "session",
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})

	h.jsonResponse(w, map[string]string{"status": "logged_out"})
}

// SessionInfo возвращает текущую сессию.
// По is_admin клиент решает, существуют ли для него админ-элементы.
func (h *Handlers) SessionInfo(w http.ResponseWriter, r *http.Request) {
	sess := auth.GetSession(r)
	if sess == nil {
		h.jsonError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	h.jsonResponse(w, map[string]interface{}{
		"username": sess.Username,
		"role":     sess.Role,
		"is_admin": sess.IsAdmin(),
	})
}

// === Галерея ===

// ListRecords возвращает записи, отфильтрованные по заголовку
func (h *Handlers) ListRecords(w http.ResponseWriter, r *http.Request) {
	records, err := h.listAll()
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	result := gallery.Filter(records, r.URL.Query().Get("q"))
	h.jsonResponse(w, result)
}

// GetRecord возвращает запись вместе с соседями для навигации.
// Соседи считаются в том же отфильтрованном порядке, что и грид:
// переключение в просмотрщике повторяет порядок галереи.
func (h *Handlers) GetRecord(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, found := h.cache.GetRecord(id)
	if !found {
		var err error
		rec, err = h.store.GetRecord(id)
		if err != nil {
			h.jsonError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if rec == nil {
			http.NotFound(w, r)
			return
		}
		h.cache.SetRecord(rec)
	}

	records, err := h.listAll()
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	filtered := gallery.Filter(records, r.URL.Query().Get("q"))
	prev, next := gallery.Neighbors(filtered.Records, id)

	h.jsonResponse(w, map[string]interface{}{
		"record": rec,
		"prev":   prev,
		"next":   next,
	})
}

// Timeline возвращает ленту: годы и месяцы по убыванию
func (h *Handlers) Timeline(w http.ResponseWriter, r *http.Request) {
	records, err := h.listAll()
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.jsonResponse(w, gallery.Timeline(records))
}

// TimelineMonth возвращает записи одного месяца.
// Месяц читается из индекса, без полного прохода по базе: лента
// раскрывает месяцы по одному.
func (h *Handlers) TimelineMonth(w http.ResponseWriter, r *http.Request) {
	month := chi.URLParam(r, "month")
	if _, err := time.Parse("2006-01", month); err != nil {
		h.jsonError(w, "Invalid month, expected YYYY-MM", http.StatusBadRequest)
		return
	}

	records, err := h.store.ListRecordsByMonth(month)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.jsonResponse(w, map[string]interface{}{
		"month":   month,
		"records": records,
		"count":   len(records),
	})
}

// UpdateTags заменяет набор тегов записи целиком
func (h *Handlers) UpdateTags(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		Tags []string `json:"tags"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	rec, err := h.store.GetRecord(id)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if rec == nil {
		http.NotFound(w, r)
		return
	}

	rec.Tags = req.Tags
	if err := h.store.SaveRecord(rec); err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.cache.Invalidate(id)
	h.jsonResponse(w, rec)
}

// Stats возвращает статистику галереи
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats, found := h.cache.GetStats()
	if !found {
		var err error
		stats, err = h.store.GetStats()
		if err != nil {
			h.jsonError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		h.cache.SetStats(stats)
	}

	h.jsonResponse(w, stats)
}

// ServeObject отдает объект из хранилища
func (h *Handlers) ServeObject(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	if key == "" {
		http.NotFound(w, r)
		return
	}

	obj, err := h.objects.Open(r.Context(), key)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer obj.Close()

	if ct := mime.TypeByExtension(filepath.Ext(key)); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set("Cache-Control", "public, max-age=86400")

	if _, err := io.Copy(w, obj); err != nil {
		logger.ErrorLog.Printf("Failed to serve object %s: %v", key, err)
	}
}

// === Загрузка ===

// CreateUpload открывает новую сессию загрузки
func (h *Handlers) CreateUpload(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode       string `json:"mode"`
		AlbumTitle string `json:"album_title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	sess, err := h.uploads.Create(upload.Mode(req.Mode), req.AlbumTitle)
	if err != nil {
		h.uploadError(w, err)
		return
	}

	h.jsonResponse(w, sess.Status())
}

// StageFile добавляет файл в сессию загрузки.
// Поле source говорит, откуда файл пришёл: из диалога выбора или
// из drag-and-drop. Не-медиа из drag-and-drop пропускается молча.
func (h *Handlers) StageFile(w http.ResponseWriter, r *http.Request) {
	sess, err := h.uploads.Get(chi.URLParam(r, "id"))
	if err != nil {
		http.NotFound(w, r)
		return
	}

	if err := r.ParseMultipartForm(h.cfg.Upload.MaxBatchBytes + 1<<20); err != nil {
		h.jsonError(w, "Invalid multipart form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.jsonError(w, "Missing file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.jsonError(w, "Failed to read file", http.StatusBadRequest)
		return
	}

	// Имя файла подставляется только когда клиент вовсе не прислал
	// заголовок. Присланный пустым остаётся пустым и ловится валидацией.
	title := r.FormValue("title")
	if _, ok := r.MultipartForm.Value["title"]; !ok {
		title = strings.TrimSuffix(header.Filename, filepath.Ext(header.Filename))
	}

	source := upload.Source(r.FormValue("source"))
	if source != upload.SourceDrop {
		source = upload.SourcePicker
	}

	staged, err := sess.Stage(title, source, data)
	if err != nil {
		h.uploadError(w, err)
		return
	}

	h.jsonResponse(w, map[string]interface{}{
		"staged": staged,
		"status": sess.Status(),
	})
}

// RemoveFile удаляет файл из сессии
func (h *Handlers) RemoveFile(w http.ResponseWriter, r *http.Request) {
	sess, err := h.uploads.Get(chi.URLParam(r, "id"))
	if err != nil {
		http.NotFound(w, r)
		return
	}

	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		h.jsonError(w, "Invalid file index", http.StatusBadRequest)
		return
	}

	if err := sess.Remove(index); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.jsonResponse(w, sess.Status())
}

// MoveFile переставляет файл внутри сессии
func (h *Handlers) MoveFile(w http.ResponseWriter, r *http.Request) {
	sess, err := h.uploads.Get(chi.URLParam(r, "id"))
	if err != nil {
		http.NotFound(w, r)
		return
	}

	from, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		h.jsonError(w, "Invalid file index", http.StatusBadRequest)
		return
	}

	var req struct {
		To int `json:"to"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if err := sess.Move(from, req.To); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.jsonResponse(w, sess.Status())
}

// CommitUpload запускает выполнение партии.
// Валидация происходит синхронно, сама партия выполняется в фоне:
// клиент опрашивает статус сессии для прогресса.
func (h *Handlers) CommitUpload(w http.ResponseWriter, r *http.Request) {
	sess, err := h.uploads.Get(chi.URLParam(r, "id"))
	if err != nil {
		http.NotFound(w, r)
		return
	}

	if err := sess.Validate(); err != nil {
		h.uploadError(w, err)
		return
	}

	// Контекст запроса умирает вместе с ответом, партии нужен свой
	go func() {
		if err := h.orchestrator.Commit(context.Background(), sess); err != nil {
			logger.ErrorLog.Printf("Upload commit %s: %v", sess.ID, err)
		}
		h.cache.Clear()
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(sess.Status())
}

// UploadStatus возвращает состояние сессии загрузки
func (h *Handlers) UploadStatus(w http.ResponseWriter, r *http.Request) {
	sess, err := h.uploads.Get(chi.URLParam(r, "id"))
	if err != nil {
		http.NotFound(w, r)
		return
	}

	h.jsonResponse(w, sess.Status())
}

// DiscardUpload отменяет сессию загрузки.
// Начатую партию отменить нельзя, она доработает до конца.
func (h *Handlers) DiscardUpload(w http.ResponseWriter, r *http.Request) {
	h.uploads.Discard(chi.URLParam(r, "id"))
	h.jsonResponse(w, map[string]string{"status": "discarded"})
}

// === Администрирование ===

// DeleteRecord удаляет запись вместе со всеми её объектами.
// Сначала удаляются объекты хранилища, включая каждый снимок
// альбома, и только потом сама запись: при сбое хранилища запись
// остаётся видимой и удаление можно повторить.
func (h *Handlers) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, err := h.store.GetRecord(id)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if rec == nil {
		http.NotFound(w, r)
		return
	}

	if err := h.objects.Remove(r.Context(), rec.ObjectKeys); err != nil {
		logger.ErrorLog.Printf("Failed to remove objects for record %s: %v", id, err)
		h.jsonError(w, "Failed to delete stored files", http.StatusInternalServerError)
		return
	}

	if err := h.store.DeleteRecord(id); err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.cache.Invalidate(id)
	h.jsonResponse(w, map[string]string{"status": "deleted"})
}

// Duplicates возвращает группы потенциальных дубликатов:
// точные совпадения по контрольной сумме и визуально близкие
// снимки по perceptual hash.
func (h *Handlers) Duplicates(w http.ResponseWriter, r *http.Request) {
	records, err := h.listAll()
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	type group struct {
		Kind    string                  `json:"kind"` // exact или similar
		Records []*storage.MemoryRecord `json:"records"`
	}

	var groups []group
	seen := make(map[string]bool)
	checked := make(map[string]bool)

	// Точные дубликаты через индекс контрольных сумм
	for _, rec := range records {
		if rec.Checksum == "" || checked[rec.Checksum] {
			continue
		}
		checked[rec.Checksum] = true

		same, err := h.store.ListRecordsByChecksum(rec.Checksum)
		if err != nil {
			h.jsonError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if len(same) > 1 {
			groups = append(groups, group{Kind: "exact", Records: same})
			for _, dup := range same {
				seen[dup.ID] = true
			}
		}
	}

	// Визуально похожие по perceptual hash
	var hashed []*storage.MemoryRecord
	for _, rec := range records {
		if rec.ImageHash != 0 && !seen[rec.ID] {
			hashed = append(hashed, rec)
		}
	}
	for i := 0; i < len(hashed); i++ {
		for j := i + 1; j < len(hashed); j++ {
			if media.HashDistance(hashed[i].ImageHash, hashed[j].ImageHash) < 10 {
				groups = append(groups, group{
					Kind:    "similar",
					Records: []*storage.MemoryRecord{hashed[i], hashed[j]},
				})
			}
		}
	}

	h.jsonResponse(w, map[string]interface{}{
		"groups": groups,
		"count":  len(groups),
	})
}

// === Мониторинг ===

// QueueStats возвращает статистику пула воркеров
func (h *Handlers) QueueStats(w http.ResponseWriter, r *http.Request) {
	stats := h.workerPool.Stats()
	h.jsonResponse(w, map[string]interface{}{
		"total":     stats.TotalTasks,
		"completed": stats.CompletedTasks,
		"failed":    stats.FailedTasks,
		"queued":    stats.QueuedTasks,
		"active":    stats.ActiveWorkers,
		"length":    h.workerPool.QueueLength(),
	})
}

// === Вспомогательные методы ===

// listAll возвращает все записи через кэш
func (h *Handlers) listAll() ([]*storage.MemoryRecord, error) {
	if records, found := h.cache.GetList(); found {
		return records, nil
	}

	records, err := h.store.ListRecords()
	if err != nil {
		return nil, err
	}

	h.cache.SetList(records)
	return records, nil
}

// uploadError переводит ошибку загрузки в HTTP-ответ.
// Ошибки валидации показываются как есть, остальное прячется
// за общим сообщением.
func (h *Handlers) uploadError(w http.ResponseWriter, err error) {
	if upload.IsValidationError(err) {
		h.jsonError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	logger.ErrorLog.Printf("Upload error: %v", err)
	h.jsonError(w, "Upload failed, please try again", http.StatusInternalServerError)
}

func (h *Handlers) jsonResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (h *Handlers) jsonError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
