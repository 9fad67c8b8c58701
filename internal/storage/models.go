package storage

import (
	"time"
)

// RecordType определяет тип записи галереи
type RecordType string

const (
	RecordTypePhoto RecordType = "photo"
	RecordTypeVideo RecordType = "video"
)

// Роли пользователей
const (
	RoleAdmin  = "admin"  // Полный доступ, удаление записей
	RoleViewer = "viewer" // Просмотр и загрузка
)

// AlbumPhoto один снимок внутри альбомной записи
type AlbumPhoto struct {
	Src string `json:"src"` // Публичный URL снимка
}

// MemoryRecord представляет одну запись галереи: фото, видео или альбом.
// Инварианты:
//   - у видео Thumbnail всегда непустой, а Src хранит путь в объектном
//     хранилище, не публичный URL;
//   - у альбома Src совпадает с AlbumPhotos[0].Src (обложка), а длина
//     AlbumPhotos не меньше двух.
type MemoryRecord struct {
	ID          string       `json:"id"`
	Type        RecordType   `json:"type"`
	Title       string       `json:"title"`
	Src         string       `json:"src"`
	Thumbnail   string       `json:"thumbnail,omitempty"`
	Date        time.Time    `json:"date"` // Ключ сортировки (по убыванию) и группировки timeline
	Tags        []string     `json:"tags,omitempty"`
	AlbumPhotos []AlbumPhoto `json:"album_photos,omitempty"`
	ObjectKeys  []string     `json:"object_keys,omitempty"` // Все ключи объектов записи (для удаления)
	Checksum    string       `json:"checksum,omitempty"`    // SHA256 исходного файла
	ImageHash   uint64       `json:"image_hash,omitempty"`  // Perceptual hash (только фото)
}

// IsAlbum возвращает true, если запись является альбомом
func (m *MemoryRecord) IsAlbum() bool {
	return len(m.AlbumPhotos) > 1
}

// User представляет пользователя системы
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash"`
	Role         string    `json:"role"` // admin, viewer
	CreatedAt    time.Time `json:"created_at"`
	LastLogin    time.Time `json:"last_login"`
}

// Session представляет сессию пользователя
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsAdmin возвращает true для привилегированной сессии
func (s *Session) IsAdmin() bool {
	return s.Role == RoleAdmin
}

// Stats содержит статистику галереи
type Stats struct {
	TotalRecords int `json:"total_records"`
	TotalPhotos  int `json:"total_photos"`
	TotalVideos  int `json:"total_videos"`
	TotalAlbums  int `json:"total_albums"`
}
