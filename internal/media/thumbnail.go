package media

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"os/exec"

	"github.com/disintegration/imaging"

	"github.com/memoria/memoria/internal/config"
)

// ThumbnailGenerator генерирует превью для медиа-файлов
type ThumbnailGenerator struct {
	maxWidth  int
	maxHeight int
	quality   int
	ffmpeg    string
}

// NewThumbnailGenerator создает новый генератор превью
func NewThumbnailGenerator(cfg *config.Config) *ThumbnailGenerator {
	return &ThumbnailGenerator{
		maxWidth:  cfg.Upload.ThumbMaxWidth,
		maxHeight: cfg.Upload.ThumbMaxHeight,
		quality:   cfg.Upload.ThumbQuality,
		ffmpeg:    cfg.Tools.Ffmpeg,
	}
}

// Качество перекодирования при развороте: сжимаем повторно только
// повёрнутые снимки, поэтому держим качество близким к исходному
const normalizeQuality = 95

// NormalizeOrientation разворачивает снимок в вертикальное положение
// по EXIF-ориентации. Снимок без разворота возвращается как есть,
// без перекодирования.
func NormalizeOrientation(data []byte, orientation int) ([]byte, error) {
	if orientation <= 1 {
		return data, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, applyOrientation(img, orientation), &jpeg.Options{Quality: normalizeQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	return buf.Bytes(), nil
}

// FromVideoFile извлекает кадр из видео-файла и строит JPEG-превью.
// Кадр берётся с отметки в 1 секунду, чтобы не попасть на чёрный
// первый кадр; если видео короче, берётся кадр с начала.
func (t *ThumbnailGenerator) FromVideoFile(path string) ([]byte, error) {
	frame, err := t.extractVideoFrame(path)
	if err != nil {
		return nil, err
	}

	thumb := imaging.Fit(frame, t.maxWidth, t.maxHeight, imaging.Lanczos)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: t.quality}); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}

	return buf.Bytes(), nil
}

// extractVideoFrame извлекает кадр из видео через ffmpeg
func (t *ThumbnailGenerator) extractVideoFrame(path string) (image.Image, error) {
	// ffmpeg -i video.mp4 -ss 00:00:01 -vframes 1 -f image2pipe -vcodec mjpeg -
	cmd := exec.Command(t.ffmpeg,
		"-i", path,
		"-ss", "00:00:01",
		"-vframes", "1",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-",
	)

	output, err := cmd.Output()
	if err != nil {
		// Пробуем с начала файла, если 1 секунда недоступна
		cmd = exec.Command(t.ffmpeg,
			"-i", path,
			"-vframes", "1",
			"-f", "image2pipe",
			"-vcodec", "mjpeg",
			"-",
		)
		output, err = cmd.Output()
		if err != nil {
			return nil, fmt.Errorf("ffmpeg failed: %w", err)
		}
	}

	img, _, err := image.Decode(bytes.NewReader(output))
	if err != nil {
		return nil, fmt.Errorf("failed to decode ffmpeg output: %w", err)
	}

	return img, nil
}

// applyOrientation применяет EXIF ориентацию к изображению
func applyOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	default:
		return img
	}
}
