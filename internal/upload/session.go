package upload

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/memoria/memoria/internal/media"
	"github.com/memoria/memoria/internal/storage"
)

// Mode режим партии загрузки
type Mode string

const (
	ModeSingle Mode = "single" // Каждый файл становится отдельной записью
	ModeAlbum  Mode = "album"  // Все файлы складываются в один альбом
)

// Source откуда пришёл файл
type Source string

const (
	SourcePicker Source = "picker" // Диалог выбора файлов (фильтр по типам на клиенте)
	SourceDrop   Source = "drop"   // Drag-and-drop (прилетает что угодно)
)

// State состояние сессии загрузки
type State string

const (
	StateStaging State = "staging" // Файлы набираются, можно переставлять и удалять
	StateRunning State = "running" // Коммит в процессе, файлы по одному уходят в хранилище
	StateDone    State = "done"
	StateFailed  State = "failed"
)

// StagedFile файл, выбранный пользователем, но ещё не загруженный.
// Содержимое лежит во временном spool-файле, который обязан быть
// удалён на любом пути выхода: remove, discard или завершение коммита.
type StagedFile struct {
	Title     string
	Size      int64
	Kind      media.Kind
	MIME      string
	Extension string

	spoolPath string
}

// Session сессия загрузки: упорядоченный набор staged-файлов
// плюс прогресс коммита
type Session struct {
	ID         string
	Mode       Mode
	AlbumTitle string
	CreatedAt  time.Time

	maxBatchBytes int64
	spoolDir      string

	mu       sync.Mutex
	files    []*StagedFile
	state    State
	progress int
	errMsg   string
}

// Status снимок состояния сессии для API
type Status struct {
	ID         string   `json:"id"`
	Mode       Mode     `json:"mode"`
	AlbumTitle string   `json:"album_title,omitempty"`
	State      State    `json:"state"`
	Progress   int      `json:"progress"`
	Error      string   `json:"error,omitempty"`
	Files      []string `json:"files"` // Заголовки в пользовательском порядке
}

func newSession(mode Mode, albumTitle, spoolRoot string, maxBatchBytes int64) (*Session, error) {
	id := storage.GenerateID()
	spoolDir := filepath.Join(spoolRoot, id)
	if err := os.MkdirAll(spoolDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create spool directory: %w", err)
	}

	return &Session{
		ID:            id,
		Mode:          mode,
		AlbumTitle:    albumTitle,
		CreatedAt:     time.Now(),
		maxBatchBytes: maxBatchBytes,
		spoolDir:      spoolDir,
		state:         StateStaging,
	}, nil
}

// Stage добавляет файл в конец набора.
// Возвращает (false, nil) если файл молча отфильтрован: при drag-and-drop
// не-медиа содержимое пропускается без ошибки. Превышение суммарного
// лимита отклоняется до записи чего-либо на диск.
func (s *Session) Stage(title string, source Source, data []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateStaging {
		return false, fmt.Errorf("session is not accepting files")
	}

	sniffed := media.Sniff(data)
	if sniffed.Kind == media.KindOther {
		if source == SourceDrop {
			return false, nil // Молча пропускаем мусор из drag-and-drop
		}
		return false, &ValidationError{Message: "unsupported file type"}
	}

	if s.Mode == ModeAlbum && sniffed.Kind != media.KindImage {
		return false, &ValidationError{Message: "albums accept images only"}
	}

	// Лимит проверяется до любых обращений к хранилищу
	total := int64(len(data))
	for _, f := range s.files {
		total += f.Size
	}
	if total > s.maxBatchBytes {
		return false, &ValidationError{
			Message: fmt.Sprintf("total upload size exceeds the %d MiB limit", s.maxBatchBytes>>20),
		}
	}

	spoolPath := filepath.Join(s.spoolDir, fmt.Sprintf("%03d-%s.%s", len(s.files), storage.GenerateID()[:8], sniffed.Extension))
	if err := os.WriteFile(spoolPath, data, 0644); err != nil {
		return false, fmt.Errorf("failed to spool file: %w", err)
	}

	s.files = append(s.files, &StagedFile{
		Title:     title,
		Size:      int64(len(data)),
		Kind:      sniffed.Kind,
		MIME:      sniffed.MIME,
		Extension: sniffed.Extension,
		spoolPath: spoolPath,
	})

	return true, nil
}

// Remove удаляет файл из набора и освобождает его spool-файл
func (s *Session) Remove(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateStaging {
		return fmt.Errorf("session is not accepting changes")
	}
	if index < 0 || index >= len(s.files) {
		return fmt.Errorf("file index out of range")
	}

	os.Remove(s.files[index].spoolPath)
	s.files = append(s.files[:index], s.files[index+1:]...)
	return nil
}

// Move переставляет файл с позиции from на позицию to.
// Промежуточные элементы сдвигаются на один, относительный порядок
// остальных сохраняется. Move(i, j) и Move(j, i) взаимно обратны.
func (s *Session) Move(from, to int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateStaging {
		return fmt.Errorf("session is not accepting changes")
	}
	if from < 0 || from >= len(s.files) || to < 0 || to >= len(s.files) {
		return fmt.Errorf("file index out of range")
	}
	if from == to {
		return nil
	}

	moved := s.files[from]
	rest := append(s.files[:from:from], s.files[from+1:]...)
	s.files = append(rest[:to:to], append([]*StagedFile{moved}, rest[to:]...)...)
	return nil
}

// Validate проверяет готовность набора к коммиту
func (s *Session) Validate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.validateLocked()
}

func (s *Session) validateLocked() error {
	if len(s.files) == 0 {
		return &ValidationError{Message: "no files staged"}
	}

	if s.Mode == ModeAlbum {
		images := 0
		for _, f := range s.files {
			if f.Kind == media.KindImage {
				images++
			}
		}
		if images < 2 {
			return &ValidationError{Message: "an album needs at least 2 images"}
		}
		if strings.TrimSpace(s.AlbumTitle) == "" {
			return &ValidationError{Message: "album title must not be blank"}
		}
		return nil
	}

	for _, f := range s.files {
		if strings.TrimSpace(f.Title) == "" {
			return &ValidationError{Message: "every file needs a title"}
		}
	}
	return nil
}

// Status возвращает снимок состояния
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	titles := make([]string, len(s.files))
	for i, f := range s.files {
		titles[i] = f.Title
	}

	return Status{
		ID:         s.ID,
		Mode:       s.Mode,
		AlbumTitle: s.AlbumTitle,
		State:      s.state,
		Progress:   s.progress,
		Error:      s.errMsg,
		Files:      titles,
	}
}

// snapshotFiles фиксирует порядок файлов на момент коммита
func (s *Session) snapshotFiles() []*StagedFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	files := make([]*StagedFile, len(s.files))
	copy(files, s.files)
	return files
}

func (s *Session) setProgress(completed, total int) {
	s.mu.Lock()
	s.progress = completed * 100 / total
	s.mu.Unlock()
}

func (s *Session) setState(state State, errMsg string) {
	s.mu.Lock()
	s.state = state
	s.errMsg = errMsg
	s.mu.Unlock()
}

// cleanup удаляет spool-директорию сессии со всеми файлами
func (s *Session) cleanup() {
	os.RemoveAll(s.spoolDir)
}
