package upload

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memoria/memoria/internal/logger"
)

func TestMain(m *testing.M) {
	logsDir, err := os.MkdirTemp("", "upload-test-logs")
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

func jpegBytes(t *testing.T, size int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for x := 0; x < 16; x++ {
		for y := 0; y < 16; y++ {
			img.Set(x, y, color.RGBA{uint8(x * 16), uint8(y * 16), 50, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))

	// Добиваем до нужного размера мусорным хвостом, magic bytes в начале
	data := buf.Bytes()
	if size > len(data) {
		data = append(data, make([]byte, size-len(data))...)
	}
	return data
}

func newTestSession(t *testing.T, mode Mode, albumTitle string, maxBytes int64) *Session {
	t.Helper()
	sess, err := newSession(mode, albumTitle, t.TempDir(), maxBytes)
	require.NoError(t, err)
	t.Cleanup(sess.cleanup)
	return sess
}

func TestStage(t *testing.T) {
	sess := newTestSession(t, ModeSingle, "", 15<<20)

	staged, err := sess.Stage("Фото", SourcePicker, jpegBytes(t, 0))
	require.NoError(t, err)
	assert.True(t, staged)

	status := sess.Status()
	assert.Equal(t, StateStaging, status.State)
	assert.Equal(t, []string{"Фото"}, status.Files)
}

func TestStageRejectsUnsupportedFromPicker(t *testing.T) {
	sess := newTestSession(t, ModeSingle, "", 15<<20)

	staged, err := sess.Stage("doc", SourcePicker, []byte("plain text file"))
	assert.False(t, staged)
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestStageSilentlySkipsDroppedJunk(t *testing.T) {
	sess := newTestSession(t, ModeSingle, "", 15<<20)

	// Не-медиа из drag-and-drop пропускается молча, без ошибки
	staged, err := sess.Stage("doc", SourceDrop, []byte("plain text file"))
	assert.False(t, staged)
	assert.NoError(t, err)
	assert.Empty(t, sess.Status().Files)
}

func TestStageAlbumRejectsVideo(t *testing.T) {
	sess := newTestSession(t, ModeAlbum, "Отпуск", 15<<20)

	// MP4 ftyp box: достаточно для определения типа
	mp4 := append([]byte{0, 0, 0, 0x18}, []byte("ftypmp42")...)
	mp4 = append(mp4, make([]byte, 100)...)

	staged, err := sess.Stage("видео", SourcePicker, mp4)
	assert.False(t, staged)
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
	assert.Contains(t, err.Error(), "images only")
}

func TestStageBatchLimit(t *testing.T) {
	sess := newTestSession(t, ModeSingle, "", 2000)

	_, err := sess.Stage("a", SourcePicker, jpegBytes(t, 1500))
	require.NoError(t, err)

	// Второй файл превышает суммарный лимит и отклоняется до записи
	staged, err := sess.Stage("b", SourcePicker, jpegBytes(t, 1500))
	assert.False(t, staged)
	require.Error(t, err)
	assert.True(t, IsValidationError(err))

	// На диске остался только первый spool-файл
	entries, readErr := os.ReadDir(sess.spoolDir)
	require.NoError(t, readErr)
	assert.Len(t, entries, 1)
}

func TestRemove(t *testing.T) {
	sess := newTestSession(t, ModeSingle, "", 15<<20)

	_, err := sess.Stage("a", SourcePicker, jpegBytes(t, 0))
	require.NoError(t, err)
	_, err = sess.Stage("b", SourcePicker, jpegBytes(t, 0))
	require.NoError(t, err)

	require.NoError(t, sess.Remove(0))
	assert.Equal(t, []string{"b"}, sess.Status().Files)

	assert.Error(t, sess.Remove(5))
}

func TestMoveRoundTrip(t *testing.T) {
	sess := newTestSession(t, ModeSingle, "", 15<<20)

	for _, title := range []string{"a", "b", "c", "d"} {
		_, err := sess.Stage(title, SourcePicker, jpegBytes(t, 0))
		require.NoError(t, err)
	}

	require.NoError(t, sess.Move(0, 2))
	assert.Equal(t, []string{"b", "c", "a", "d"}, sess.Status().Files)

	// Обратная перестановка восстанавливает исходный порядок
	require.NoError(t, sess.Move(2, 0))
	assert.Equal(t, []string{"a", "b", "c", "d"}, sess.Status().Files)

	require.NoError(t, sess.Move(3, 1))
	assert.Equal(t, []string{"a", "d", "b", "c"}, sess.Status().Files)
	require.NoError(t, sess.Move(1, 3))
	assert.Equal(t, []string{"a", "b", "c", "d"}, sess.Status().Files)

	assert.Error(t, sess.Move(0, 9))
}

func TestValidateSingle(t *testing.T) {
	sess := newTestSession(t, ModeSingle, "", 15<<20)

	err := sess.Validate()
	require.Error(t, err)
	assert.True(t, IsValidationError(err))

	_, err = sess.Stage("  ", SourcePicker, jpegBytes(t, 0))
	require.NoError(t, err)

	err = sess.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "title")
}

func TestValidateAlbum(t *testing.T) {
	sess := newTestSession(t, ModeAlbum, "Отпуск", 15<<20)

	_, err := sess.Stage("one", SourcePicker, jpegBytes(t, 0))
	require.NoError(t, err)

	// Одного снимка мало для альбома
	err = sess.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 2")

	_, err = sess.Stage("two", SourcePicker, jpegBytes(t, 0))
	require.NoError(t, err)
	assert.NoError(t, sess.Validate())
}

func TestValidateAlbumBlankTitle(t *testing.T) {
	sess := newTestSession(t, ModeAlbum, "   ", 15<<20)

	for _, title := range []string{"one", "two"} {
		_, err := sess.Stage(title, SourcePicker, jpegBytes(t, 0))
		require.NoError(t, err)
	}

	err := sess.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "album title")
}

func TestManager(t *testing.T) {
	mgr := NewManager(t.TempDir(), 15<<20)

	sess, err := mgr.Create(ModeSingle, "")
	require.NoError(t, err)

	got, err := mgr.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)

	_, err = mgr.Get("missing")
	assert.Error(t, err)

	mgr.Discard(sess.ID)
	_, err = mgr.Get(sess.ID)
	assert.Error(t, err)

	// Spool-директория удалена вместе с сессией
	_, statErr := os.Stat(sess.spoolDir)
	assert.True(t, os.IsNotExist(statErr))
}

func TestDiscardReleasesFinishedSession(t *testing.T) {
	mgr := NewManager(t.TempDir(), 15<<20)

	sess, err := mgr.Create(ModeSingle, "")
	require.NoError(t, err)
	_, err = sess.Stage("Фото", SourcePicker, jpegBytes(t, 0))
	require.NoError(t, err)

	orch := NewOrchestrator(&fakeRecords{}, newFakeObjects(), nil)
	require.NoError(t, orch.Commit(context.Background(), sess))
	require.Equal(t, StateDone, sess.Status().State)

	// Завершённая сессия уходит из реестра по Discard
	mgr.Discard(sess.ID)
	_, err = mgr.Get(sess.ID)
	assert.Error(t, err)
}

func TestDiscardKeepsRunningSession(t *testing.T) {
	mgr := NewManager(t.TempDir(), 15<<20)

	sess, err := mgr.Create(ModeSingle, "")
	require.NoError(t, err)
	_, err = sess.Stage("Фото", SourcePicker, jpegBytes(t, 0))
	require.NoError(t, err)

	sess.setState(StateRunning, "")

	// Начатую партию отменить нельзя, прогресс остаётся доступен
	mgr.Discard(sess.ID)
	got, err := mgr.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, StateRunning, got.Status().State)
}

func TestCreatePrunesAbandonedSessions(t *testing.T) {
	mgr := NewManager(t.TempDir(), 15<<20)

	old, err := mgr.Create(ModeSingle, "")
	require.NoError(t, err)
	old.CreatedAt = time.Now().Add(-48 * time.Hour)

	_, err = mgr.Create(ModeSingle, "")
	require.NoError(t, err)

	_, err = mgr.Get(old.ID)
	assert.Error(t, err)

	_, statErr := os.Stat(old.spoolDir)
	assert.True(t, os.IsNotExist(statErr))
}

func TestManagerRejectsUnknownMode(t *testing.T) {
	mgr := NewManager(t.TempDir(), 15<<20)

	_, err := mgr.Create("weird", "")
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}
