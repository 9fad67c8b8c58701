package objectstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Local хранит объекты в директории на диске.
// Ключи становятся относительными путями внутри корня,
// публичные URL отдаются веб-сервером под /objects/.
type Local struct {
	root      string
	urlPrefix string
}

// NewLocal создает локальное хранилище с корнем root
func NewLocal(root string) (*Local, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve objects root: %w", err)
	}
	if err := os.MkdirAll(absRoot, 0755); err != nil {
		return nil, fmt.Errorf("failed to create objects root: %w", err)
	}
	return &Local{root: absRoot, urlPrefix: "/objects/"}, nil
}

// Root возвращает абсолютный путь к корню хранилища
func (l *Local) Root() string {
	return l.root
}

// Put записывает объект на диск через временный файл.
// Запись становится видимой атомарно, после rename.
func (l *Local) Put(ctx context.Context, key string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	path, err := l.resolve(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create object directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".put-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp object: %w", err)
	}

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write object %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to close object %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to store object %s: %w", key, err)
	}

	return key, nil
}

// PublicURL возвращает URL, по которому веб-сервер отдаёт объект
func (l *Local) PublicURL(path string) string {
	return l.urlPrefix + path
}

// Open открывает объект для чтения
func (l *Local) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	full, err := l.resolve(path)
	if err != nil {
		return nil, err
	}
	return os.Open(full)
}

// Remove удаляет объекты. Уже отсутствующий объект пропускается,
// первая реальная ошибка прерывает удаление.
func (l *Local) Remove(ctx context.Context, keys []string) error {
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}

		path, err := l.resolve(key)
		if err != nil {
			return err
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove object %s: %w", key, err)
		}
	}
	return nil
}

// resolve проверяет ключ и возвращает абсолютный путь внутри корня
func (l *Local) resolve(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	full := filepath.Join(l.root, clean)
	if !strings.HasPrefix(full, l.root+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid object key: %s", key)
	}
	return full, nil
}
