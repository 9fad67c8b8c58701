package worker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/memoria/memoria/internal/logger"
	"github.com/memoria/memoria/internal/media"
	"github.com/memoria/memoria/internal/objectstore"
	"github.com/memoria/memoria/internal/storage"
)

// RepairService чинит записи, нарушающие ожидания галереи:
// видео без превью и снимки без perceptual hash. Такие записи
// появляются после сбоя партии или миграции со старых версий.
type RepairService struct {
	pool    *Pool
	store   *storage.Store
	objects objectstore.Store
	thumbs  *media.ThumbnailGenerator

	mu         sync.RWMutex
	processing map[string]bool
}

// NewRepairService создает сервис починки записей
func NewRepairService(pool *Pool, store *storage.Store, objects objectstore.Store, thumbs *media.ThumbnailGenerator) *RepairService {
	svc := &RepairService{
		pool:       pool,
		store:      store,
		objects:    objects,
		thumbs:     thumbs,
		processing: make(map[string]bool),
	}

	pool.RegisterHandler(TaskRepairThumbnail, svc.handleThumbnail)
	pool.RegisterHandler(TaskRescanHashes, svc.handleHashes)

	return svc
}

// QueueRepairs ставит в очередь починку всех дефектных записей
func (s *RepairService) QueueRepairs() error {
	records, err := s.store.ListRecords()
	if err != nil {
		return fmt.Errorf("failed to list records: %w", err)
	}

	queued := 0
	for _, rec := range records {
		if rec.Type == storage.RecordTypeVideo && rec.Thumbnail == "" {
			if s.queue(TaskRepairThumbnail, rec.ID) {
				queued++
			}
		}
		if rec.Type == storage.RecordTypePhoto && rec.ImageHash == 0 && len(rec.ObjectKeys) > 0 {
			if s.queue(TaskRescanHashes, rec.ID) {
				queued++
			}
		}
	}

	if queued > 0 {
		logger.InfoLog.Printf("Queued %d record repair tasks", queued)
	}
	return nil
}

func (s *RepairService) queue(taskType TaskType, recordID string) bool {
	key := string(taskType) + ":" + recordID

	s.mu.Lock()
	if s.processing[key] {
		s.mu.Unlock()
		return false
	}
	s.processing[key] = true
	s.mu.Unlock()

	task := &Task{
		ID:        storage.GenerateID()[:16],
		Type:      taskType,
		RecordID:  recordID,
		CreatedAt: time.Now(),
	}

	if !s.pool.Submit(task) {
		s.mu.Lock()
		delete(s.processing, key)
		s.mu.Unlock()
		return false
	}

	return true
}

// handleThumbnail достраивает превью для видео.
// Объект скачивается во временный файл, потому что ffmpeg
// работает с путями, а не с потоками.
func (s *RepairService) handleThumbnail(ctx context.Context, task *Task) (*TaskResult, error) {
	defer s.release(TaskRepairThumbnail, task.RecordID)

	rec, err := s.store.GetRecord(task.RecordID)
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	if rec == nil || rec.Type != storage.RecordTypeVideo || rec.Thumbnail != "" {
		return nil, nil
	}
	if len(rec.ObjectKeys) == 0 {
		return nil, fmt.Errorf("record %s has no stored objects", rec.ID)
	}

	tmpPath, err := s.fetchToTemp(ctx, rec.Src)
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmpPath)

	thumb, err := s.thumbs.FromVideoFile(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("failed to build thumbnail for %s: %w", rec.ID, err)
	}

	thumbKey := rec.ObjectKeys[0] + "_thumb.jpg"
	thumbPath, err := s.objects.Put(ctx, thumbKey, bytes.NewReader(thumb))
	if err != nil {
		return nil, fmt.Errorf("failed to upload thumbnail: %w", err)
	}

	rec.Thumbnail = s.objects.PublicURL(thumbPath)
	rec.ObjectKeys = append(rec.ObjectKeys, thumbKey)

	if err := s.store.SaveRecord(rec); err != nil {
		return nil, fmt.Errorf("failed to save repaired record: %w", err)
	}

	return nil, nil
}

// handleHashes досчитывает checksum и perceptual hash снимка
func (s *RepairService) handleHashes(ctx context.Context, task *Task) (*TaskResult, error) {
	defer s.release(TaskRescanHashes, task.RecordID)

	rec, err := s.store.GetRecord(task.RecordID)
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	if rec == nil || rec.Type != storage.RecordTypePhoto || len(rec.ObjectKeys) == 0 {
		return nil, nil
	}

	r, err := s.objects.Open(ctx, rec.ObjectKeys[0])
	if err != nil {
		return nil, fmt.Errorf("failed to open object: %w", err)
	}
	data, err := io.ReadAll(r)
	r.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to read object: %w", err)
	}

	rec.Checksum = media.Checksum(data)
	if hash, err := media.PerceptualHash(data); err == nil {
		rec.ImageHash = hash
	}

	if err := s.store.SaveRecord(rec); err != nil {
		return nil, fmt.Errorf("failed to save record hashes: %w", err)
	}

	return nil, nil
}

func (s *RepairService) fetchToTemp(ctx context.Context, path string) (string, error) {
	r, err := s.objects.Open(ctx, path)
	if err != nil {
		return "", fmt.Errorf("failed to open object: %w", err)
	}
	defer r.Close()

	tmp, err := os.CreateTemp("", "repair-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to fetch object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}

	return tmp.Name(), nil
}

func (s *RepairService) release(taskType TaskType, recordID string) {
	s.mu.Lock()
	delete(s.processing, string(taskType)+":"+recordID)
	s.mu.Unlock()
}

// ProcessingCount возвращает количество задач в обработке
func (s *RepairService) ProcessingCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.processing)
}
