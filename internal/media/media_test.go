package media

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memoria/memoria/internal/config"
)

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{uint8(x % 256), uint8(y % 256), 100, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestSniff(t *testing.T) {
	res := Sniff(jpegBytes(t, 8, 8))
	assert.Equal(t, KindImage, res.Kind)
	assert.Equal(t, "image/jpeg", res.MIME)
	assert.Equal(t, "jpg", res.Extension)

	res = Sniff(pngBytes(t))
	assert.Equal(t, KindImage, res.Kind)
	assert.Equal(t, "png", res.Extension)

	res = Sniff([]byte("just some text, definitely not media"))
	assert.Equal(t, KindOther, res.Kind)
	assert.Empty(t, res.MIME)
}

func TestChecksum(t *testing.T) {
	a := Checksum([]byte("hello"))
	b := Checksum([]byte("hello"))
	c := Checksum([]byte("world"))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestPerceptualHash(t *testing.T) {
	data := jpegBytes(t, 64, 64)

	h1, err := PerceptualHash(data)
	require.NoError(t, err)
	h2, err := PerceptualHash(data)
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Equal(t, 0, HashDistance(h1, h2))

	_, err = PerceptualHash([]byte("not an image"))
	assert.Error(t, err)
}

func TestHashDistance(t *testing.T) {
	assert.Equal(t, 0, HashDistance(0, 0))
	assert.Equal(t, 1, HashDistance(0, 1))
	assert.Equal(t, 64, HashDistance(0, ^uint64(0)))
}

func TestExtractPhotoMetaNoExif(t *testing.T) {
	// Снимок без EXIF не считается ошибкой
	meta := ExtractPhotoMeta(jpegBytes(t, 8, 8))
	assert.True(t, meta.TakenAt.IsZero())
}

func TestNormalizeOrientation(t *testing.T) {
	// Ориентация 6 поворачивает на 90 градусов: стороны меняются местами
	upright, err := NormalizeOrientation(jpegBytes(t, 200, 100), 6)
	require.NoError(t, err)

	img, _, err := image.Decode(bytes.NewReader(upright))
	require.NoError(t, err)
	assert.Equal(t, 100, img.Bounds().Dx())
	assert.Equal(t, 200, img.Bounds().Dy())
}

func TestNormalizeOrientationNoop(t *testing.T) {
	// Вертикальный снимок не перекодируется
	data := jpegBytes(t, 200, 100)

	same, err := NormalizeOrientation(data, 1)
	require.NoError(t, err)
	assert.Equal(t, data, same)

	same, err = NormalizeOrientation(data, 0)
	require.NoError(t, err)
	assert.Equal(t, data, same)
}

func TestNormalizeOrientationInvalid(t *testing.T) {
	_, err := NormalizeOrientation([]byte("garbage"), 6)
	assert.Error(t, err)
}

func TestThumbnailFromVideoFile(t *testing.T) {
	// Подменяем ffmpeg скриптом, который печатает готовый кадр
	dir := t.TempDir()
	framePath := filepath.Join(dir, "frame.jpg")
	require.NoError(t, os.WriteFile(framePath, jpegBytes(t, 1200, 900), 0644))

	script := filepath.Join(dir, "ffmpeg")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\ncat "+framePath+"\n"), 0755))

	cfg := config.Default()
	cfg.Tools.Ffmpeg = script
	gen := NewThumbnailGenerator(cfg)

	thumb, err := gen.FromVideoFile(filepath.Join(dir, "video.mp4"))
	require.NoError(t, err)

	img, _, err := image.Decode(bytes.NewReader(thumb))
	require.NoError(t, err)
	assert.LessOrEqual(t, img.Bounds().Dx(), 800)
	assert.LessOrEqual(t, img.Bounds().Dy(), 600)
}

func TestThumbnailFromVideoFileNoFfmpeg(t *testing.T) {
	cfg := config.Default()
	cfg.Tools.Ffmpeg = filepath.Join(t.TempDir(), "missing-ffmpeg")
	gen := NewThumbnailGenerator(cfg)

	_, err := gen.FromVideoFile("video.mp4")
	assert.Error(t, err)
}
