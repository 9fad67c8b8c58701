package media

import (
	"bytes"
	"time"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/mknote"
)

func init() {
	// Регистрируем парсеры maker notes для разных производителей
	exif.RegisterParsers(mknote.All...)
}

// PhotoMeta содержит метаданные, извлечённые из EXIF снимка
type PhotoMeta struct {
	TakenAt     time.Time // Нулевое значение если EXIF нет или дата не записана
	Orientation int
}

// ExtractPhotoMeta извлекает дату съёмки и ориентацию из EXIF.
// Отсутствие EXIF не ошибка: возвращаются нулевые значения.
func ExtractPhotoMeta(data []byte) PhotoMeta {
	var meta PhotoMeta

	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return meta
	}

	if tm, err := x.DateTime(); err == nil {
		meta.TakenAt = tm
	}

	if tag, err := x.Get(exif.Orientation); err == nil {
		if val, err := tag.Int(0); err == nil {
			meta.Orientation = val
		}
	}

	return meta
}
