package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memoria/memoria/internal/config"
	"github.com/memoria/memoria/internal/media"
	"github.com/memoria/memoria/internal/storage"
)

type fakeRecords struct {
	mu      sync.Mutex
	records []*storage.MemoryRecord
	failOn  int // Номер вызова SaveRecord, который упадёт (0 = никогда)
	calls   int
}

func (f *fakeRecords) SaveRecord(rec *storage.MemoryRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failOn > 0 && f.calls >= f.failOn {
		return fmt.Errorf("store is down")
	}
	f.records = append(f.records, rec)
	return nil
}

type fakeObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	failOn  int // Номер вызова Put, который упадёт (0 = никогда)
	puts    int
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: make(map[string][]byte)}
}

func (f *fakeObjects) Put(ctx context.Context, key string, r io.Reader) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	if f.failOn > 0 && f.puts >= f.failOn {
		return "", fmt.Errorf("storage unavailable")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	f.objects[key] = data
	return key, nil
}

func (f *fakeObjects) PublicURL(path string) string {
	return "/objects/" + path
}

func (f *fakeObjects) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[path]
	if !ok {
		return nil, fmt.Errorf("object not found: %s", path)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeObjects) Remove(ctx context.Context, keys []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, key := range keys {
		delete(f.objects, key)
	}
	return nil
}

func stageImages(t *testing.T, sess *Session, titles ...string) {
	t.Helper()
	for i, title := range titles {
		data := jpegBytes(t, 0)
		// Разное содержимое, чтобы контрольные суммы отличались
		data = append(data, byte(i))
		_, err := sess.Stage(title, SourcePicker, data)
		require.NoError(t, err)
	}
}

func TestCommitSinglePhotos(t *testing.T) {
	sess := newTestSession(t, ModeSingle, "", 15<<20)
	stageImages(t, sess, "Первое", "Второе")

	records := &fakeRecords{}
	objects := newFakeObjects()
	orch := NewOrchestrator(records, objects, nil)

	require.NoError(t, orch.Commit(context.Background(), sess))

	require.Len(t, records.records, 2)
	assert.Equal(t, "Первое", records.records[0].Title)
	assert.Equal(t, storage.RecordTypePhoto, records.records[0].Type)

	for _, rec := range records.records {
		assert.True(t, strings.HasPrefix(rec.Src, "/objects/"))
		assert.Empty(t, rec.Thumbnail)
		assert.Len(t, rec.ObjectKeys, 1)
		assert.NotEmpty(t, rec.Checksum)
		assert.False(t, rec.Date.IsZero())
	}

	status := sess.Status()
	assert.Equal(t, StateDone, status.State)
	assert.Equal(t, 100, status.Progress)

	// Spool-директория удалена после коммита
	_, err := os.Stat(sess.spoolDir)
	assert.True(t, os.IsNotExist(err))
}

func TestCommitAlbum(t *testing.T) {
	sess := newTestSession(t, ModeAlbum, "Отпуск", 15<<20)
	stageImages(t, sess, "a", "b", "c")

	records := &fakeRecords{}
	objects := newFakeObjects()
	orch := NewOrchestrator(records, objects, nil)

	require.NoError(t, orch.Commit(context.Background(), sess))

	// Вся партия становится одной записью
	require.Len(t, records.records, 1)
	rec := records.records[0]

	assert.Equal(t, storage.RecordTypePhoto, rec.Type)
	assert.Equal(t, "Отпуск", rec.Title)
	assert.True(t, rec.IsAlbum())
	require.Len(t, rec.AlbumPhotos, 3)
	assert.Len(t, rec.ObjectKeys, 3)
	assert.Empty(t, rec.Thumbnail)

	// Обложка — первый снимок в пользовательском порядке
	assert.Equal(t, rec.AlbumPhotos[0].Src, rec.Src)

	assert.Equal(t, StateDone, sess.Status().State)
	assert.Len(t, objects.objects, 3)
}

func TestCommitValidatesBeforeUpload(t *testing.T) {
	sess := newTestSession(t, ModeSingle, "", 15<<20)

	records := &fakeRecords{}
	objects := newFakeObjects()
	orch := NewOrchestrator(records, objects, nil)

	err := orch.Commit(context.Background(), sess)
	require.Error(t, err)
	assert.True(t, IsValidationError(err))

	// До хранилища дело не дошло
	assert.Equal(t, 0, objects.puts)
	assert.Empty(t, records.records)
	assert.Equal(t, StateStaging, sess.Status().State)
}

func TestCommitAbortsOnFailure(t *testing.T) {
	sess := newTestSession(t, ModeSingle, "", 15<<20)
	stageImages(t, sess, "a", "b", "c")

	records := &fakeRecords{}
	objects := newFakeObjects()
	objects.failOn = 2 // Второй файл упадёт
	orch := NewOrchestrator(records, objects, nil)

	err := orch.Commit(context.Background(), sess)
	require.Error(t, err)

	// Первый файл уже записан и остаётся, остаток партии не выполняется
	assert.Len(t, records.records, 1)

	status := sess.Status()
	assert.Equal(t, StateFailed, status.State)
	assert.Equal(t, genericUploadError, status.Error)
}

func TestCommitAlbumFailureWritesNoRecord(t *testing.T) {
	sess := newTestSession(t, ModeAlbum, "Отпуск", 15<<20)
	stageImages(t, sess, "a", "b")

	records := &fakeRecords{}
	objects := newFakeObjects()
	objects.failOn = 2
	orch := NewOrchestrator(records, objects, nil)

	err := orch.Commit(context.Background(), sess)
	require.Error(t, err)

	// Запись альбома создаётся только после всех объектов
	assert.Empty(t, records.records)
	assert.Equal(t, StateFailed, sess.Status().State)
}

func TestCommitSingleVideo(t *testing.T) {
	// Подменяем ffmpeg скриптом, который печатает готовый кадр:
	// сам ffmpeg в тестовом окружении недоступен
	frame := jpegBytes(t, 0)
	dir := t.TempDir()
	framePath := filepath.Join(dir, "frame.jpg")
	require.NoError(t, os.WriteFile(framePath, frame, 0644))

	script := filepath.Join(dir, "ffmpeg")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\ncat "+framePath+"\n"), 0755))

	cfg := config.Default()
	cfg.Tools.Ffmpeg = script
	thumbs := media.NewThumbnailGenerator(cfg)

	sess := newTestSession(t, ModeSingle, "", 15<<20)
	mp4 := append([]byte{0, 0, 0, 0x18}, []byte("ftypmp42")...)
	mp4 = append(mp4, make([]byte, 200)...)
	_, err := sess.Stage("Ролик", SourcePicker, mp4)
	require.NoError(t, err)

	records := &fakeRecords{}
	objects := newFakeObjects()
	orch := NewOrchestrator(records, objects, thumbs)

	require.NoError(t, orch.Commit(context.Background(), sess))

	require.Len(t, records.records, 1)
	rec := records.records[0]

	assert.Equal(t, storage.RecordTypeVideo, rec.Type)
	assert.Equal(t, "Ролик", rec.Title)

	// Src видео — путь хранения, не публичный URL; превью обязательно
	assert.False(t, strings.HasPrefix(rec.Src, "/objects/"))
	assert.True(t, strings.HasPrefix(rec.Thumbnail, "/objects/"))
	assert.NotEmpty(t, rec.Thumbnail)

	// Видео и его превью лежат в хранилище под своими ключами
	require.Len(t, rec.ObjectKeys, 2)
	assert.Contains(t, objects.objects, rec.ObjectKeys[0])
	assert.Contains(t, objects.objects, rec.ObjectKeys[1])
}

func TestCommitTwice(t *testing.T) {
	sess := newTestSession(t, ModeSingle, "", 15<<20)
	stageImages(t, sess, "a")

	records := &fakeRecords{}
	orch := NewOrchestrator(records, newFakeObjects(), nil)

	require.NoError(t, orch.Commit(context.Background(), sess))
	assert.Error(t, orch.Commit(context.Background(), sess))
	assert.Len(t, records.records, 1)
}
