// Package objectstore абстрагирует объектное хранилище медиа-файлов.
// Галерея работает только через интерфейс Store, поэтому логика загрузки
// и удаления тестируется без реального бэкенда.
package objectstore

import (
	"context"
	"io"
)

// Store контракт объектного хранилища
type Store interface {
	// Put записывает содержимое под ключом и возвращает путь хранения
	Put(ctx context.Context, key string, r io.Reader) (string, error)
	// PublicURL возвращает публичный URL для пути хранения
	PublicURL(path string) string
	// Open открывает объект для чтения
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	// Remove удаляет объекты по ключам; отсутствие объекта не ошибка
	Remove(ctx context.Context, keys []string) error
}
