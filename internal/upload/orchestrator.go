package upload

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/memoria/memoria/internal/logger"
	"github.com/memoria/memoria/internal/media"
	"github.com/memoria/memoria/internal/objectstore"
	"github.com/memoria/memoria/internal/storage"
)

// RecordStore операции над записями, нужные оркестратору
type RecordStore interface {
	SaveRecord(rec *storage.MemoryRecord) error
}

// Сообщение пользователю при любой сетевой ошибке партии.
// Детали уходят в лог, наружу — общий совет повторить.
const genericUploadError = "upload failed, please try again"

// Orchestrator превращает набор staged-файлов в записи галереи.
// Файлы обрабатываются строго последовательно: загрузка, превью и
// запись одного файла завершаются до начала следующего. Это
// ограничивает нагрузку на бэкенд и упрощает расчёт прогресса ценой
// линейного времени партии.
type Orchestrator struct {
	records RecordStore
	objects objectstore.Store
	thumbs  *media.ThumbnailGenerator
}

// NewOrchestrator создает оркестратор загрузки
func NewOrchestrator(records RecordStore, objects objectstore.Store, thumbs *media.ThumbnailGenerator) *Orchestrator {
	return &Orchestrator{
		records: records,
		objects: objects,
		thumbs:  thumbs,
	}
}

// Commit проверяет сессию и выполняет партию.
// Ошибка валидации возвращается сразу, до любых обращений к хранилищу.
// Отката нет: файл, упавший в середине партии, прерывает остаток,
// но уже записанные записи остаются.
func (o *Orchestrator) Commit(ctx context.Context, sess *Session) error {
	sess.mu.Lock()
	if sess.state != StateStaging {
		sess.mu.Unlock()
		return fmt.Errorf("session already committed")
	}
	if err := sess.validateLocked(); err != nil {
		sess.mu.Unlock()
		return err
	}
	sess.state = StateRunning
	sess.mu.Unlock()

	defer sess.cleanup()

	var err error
	if sess.Mode == ModeAlbum {
		err = o.commitAlbum(ctx, sess)
	} else {
		err = o.commitSingle(ctx, sess)
	}

	if err != nil {
		logger.ErrorLog.Printf("Upload session %s failed: %v", sess.ID, err)
		sess.setState(StateFailed, genericUploadError)
		return err
	}

	sess.setState(StateDone, "")
	return nil
}

// commitAlbum загружает все снимки по порядку и пишет одну запись.
// Первый загруженный URL становится обложкой. Запись создаётся только
// после того, как все объекты легли в хранилище.
func (o *Orchestrator) commitAlbum(ctx context.Context, sess *Session) error {
	files := sess.snapshotFiles()

	var photos []storage.AlbumPhoto
	var keys []string
	var cover string
	var coverChecksum string
	var coverHash uint64
	var date time.Time

	for i, f := range files {
		data, err := os.ReadFile(f.spoolPath)
		if err != nil {
			return fmt.Errorf("failed to read spooled file: %w", err)
		}

		data, meta := preparePhoto(data)

		key := newObjectKey(f.Extension)
		path, err := o.objects.Put(ctx, key, bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("failed to upload %s: %w", key, err)
		}
		url := o.objects.PublicURL(path)

		if i == 0 {
			cover = url
			coverChecksum = media.Checksum(data)
			if hash, err := media.PerceptualHash(data); err == nil {
				coverHash = hash
			}
			date = meta.TakenAt
		}

		photos = append(photos, storage.AlbumPhoto{Src: url})
		keys = append(keys, key)

		sess.setProgress(i+1, len(files))
	}

	if date.IsZero() {
		date = time.Now()
	}

	rec := &storage.MemoryRecord{
		ID:          storage.GenerateID(),
		Type:        storage.RecordTypePhoto,
		Title:       sess.AlbumTitle,
		Src:         cover,
		Date:        date,
		AlbumPhotos: photos,
		ObjectKeys:  keys,
		Checksum:    coverChecksum,
		ImageHash:   coverHash,
	}

	if err := o.records.SaveRecord(rec); err != nil {
		return fmt.Errorf("failed to save album record: %w", err)
	}

	return nil
}

// commitSingle создаёт отдельную запись на каждый файл
func (o *Orchestrator) commitSingle(ctx context.Context, sess *Session) error {
	files := sess.snapshotFiles()

	for i, f := range files {
		data, err := os.ReadFile(f.spoolPath)
		if err != nil {
			return fmt.Errorf("failed to read spooled file: %w", err)
		}

		var rec *storage.MemoryRecord
		if f.Kind == media.KindVideo {
			rec, err = o.uploadVideo(ctx, f, data)
		} else {
			rec, err = o.uploadPhoto(ctx, f, data)
		}
		if err != nil {
			return err
		}

		if err := o.records.SaveRecord(rec); err != nil {
			return fmt.Errorf("failed to save record: %w", err)
		}

		sess.setProgress(i+1, len(files))
	}

	return nil
}

// uploadPhoto загружает снимок и строит запись с публичным URL.
// Дата берётся из EXIF, если она там есть.
func (o *Orchestrator) uploadPhoto(ctx context.Context, f *StagedFile, data []byte) (*storage.MemoryRecord, error) {
	data, meta := preparePhoto(data)

	key := newObjectKey(f.Extension)
	path, err := o.objects.Put(ctx, key, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to upload %s: %w", key, err)
	}

	date := meta.TakenAt
	if date.IsZero() {
		date = time.Now()
	}

	var imageHash uint64
	if hash, err := media.PerceptualHash(data); err == nil {
		imageHash = hash
	}

	return &storage.MemoryRecord{
		ID:         storage.GenerateID(),
		Type:       storage.RecordTypePhoto,
		Title:      f.Title,
		Src:        o.objects.PublicURL(path),
		Date:       date,
		ObjectKeys: []string{key},
		Checksum:   media.Checksum(data),
		ImageHash:  imageHash,
	}, nil
}

// uploadVideo загружает видео вместе с локально построенным превью.
// В Src записи уходит путь хранения, не публичный URL: просмотрщик
// резолвит его при показе. Thumbnail обязателен и хранит публичный URL.
func (o *Orchestrator) uploadVideo(ctx context.Context, f *StagedFile, data []byte) (*storage.MemoryRecord, error) {
	thumb, err := o.thumbs.FromVideoFile(f.spoolPath)
	if err != nil {
		return nil, fmt.Errorf("failed to build video thumbnail: %w", err)
	}

	key := newObjectKey(f.Extension)
	path, err := o.objects.Put(ctx, key, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to upload %s: %w", key, err)
	}

	thumbKey := key + "_thumb.jpg"
	thumbPath, err := o.objects.Put(ctx, thumbKey, bytes.NewReader(thumb))
	if err != nil {
		return nil, fmt.Errorf("failed to upload thumbnail %s: %w", thumbKey, err)
	}

	return &storage.MemoryRecord{
		ID:         storage.GenerateID(),
		Type:       storage.RecordTypeVideo,
		Title:      f.Title,
		Src:        path,
		Thumbnail:  o.objects.PublicURL(thumbPath),
		Date:       time.Now(),
		ObjectKeys: []string{key, thumbKey},
		Checksum:   media.Checksum(data),
	}, nil
}

// preparePhoto читает EXIF и разворачивает снимок в вертикальное
// положение до загрузки: хранилище держит уже выпрямленные байты,
// контрольные суммы считаются по ним же. Снимок, который не удалось
// развернуть, уходит как есть.
func preparePhoto(data []byte) ([]byte, media.PhotoMeta) {
	meta := media.ExtractPhotoMeta(data)
	if meta.Orientation > 1 {
		if upright, err := media.NormalizeOrientation(data, meta.Orientation); err == nil {
			data = upright
		}
	}
	return data, meta
}

// newObjectKey генерирует устойчивый к коллизиям ключ хранения
func newObjectKey(ext string) string {
	return storage.GenerateID() + "." + ext
}
