package worker

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memoria/memoria/internal/logger"
	"github.com/memoria/memoria/internal/objectstore"
	"github.com/memoria/memoria/internal/storage"
)

func TestMain(m *testing.M) {
	logsDir, err := os.MkdirTemp("", "worker-test-logs")
	if err != nil {
		os.Exit(1)
	}
	if err := logger.Init(logsDir); err != nil {
		os.Exit(1)
	}

	code := m.Run()

	logger.Cleanup()
	os.RemoveAll(logsDir)
	os.Exit(code)
}

func TestPoolProcessesTasks(t *testing.T) {
	pool := NewPool(2, 10)

	var processed int64
	pool.RegisterHandler(TaskRescanHashes, func(ctx context.Context, task *Task) (*TaskResult, error) {
		atomic.AddInt64(&processed, 1)
		return nil, nil
	})

	pool.Start()

	for i := 0; i < 5; i++ {
		ok := pool.Submit(&Task{ID: storage.GenerateID()[:8], Type: TaskRescanHashes, CreatedAt: time.Now()})
		assert.True(t, ok)
	}

	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&processed) == 5
	}, 2*time.Second, 10*time.Millisecond)

	pool.Stop()

	stats := pool.Stats()
	assert.Equal(t, int64(5), stats.TotalTasks)
	assert.Equal(t, int64(5), stats.CompletedTasks)
	assert.Equal(t, int64(0), stats.FailedTasks)
}

func TestPoolRejectsAfterStop(t *testing.T) {
	pool := NewPool(1, 10)
	pool.Start()
	pool.Stop()

	ok := pool.Submit(&Task{ID: "x", Type: TaskRescanHashes})
	assert.False(t, ok)
}

func jpegBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for x := 0; x < 32; x++ {
		for y := 0; y < 32; y++ {
			img.Set(x, y, color.RGBA{uint8(x * 8), uint8(y * 8), 120, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func TestRepairServiceRescansHashes(t *testing.T) {
	store, err := storage.NewStore(filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)
	defer store.Close()

	objects, err := objectstore.NewLocal(filepath.Join(t.TempDir(), "objects"))
	require.NoError(t, err)

	data := jpegBytes(t)
	key := "photo.jpg"
	_, err = objects.Put(context.Background(), key, bytes.NewReader(data))
	require.NoError(t, err)

	// Запись без хэшей, как после миграции со старой версии
	rec := &storage.MemoryRecord{
		ID:         "r1",
		Type:       storage.RecordTypePhoto,
		Title:      "old",
		Src:        "/objects/" + key,
		Date:       time.Now(),
		ObjectKeys: []string{key},
	}
	require.NoError(t, store.SaveRecord(rec))

	pool := NewPool(1, 10)
	svc := NewRepairService(pool, store, objects, nil)
	pool.Start()
	defer pool.Stop()

	require.NoError(t, svc.QueueRepairs())

	require.Eventually(t, func() bool {
		got, err := store.GetRecord("r1")
		return err == nil && got != nil && got.Checksum != ""
	}, 2*time.Second, 20*time.Millisecond)

	got, err := store.GetRecord("r1")
	require.NoError(t, err)
	assert.NotEmpty(t, got.Checksum)
	assert.NotZero(t, got.ImageHash)
}
