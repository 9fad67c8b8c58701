package upload

import (
	"fmt"
	"sync"
	"time"
)

// Брошенные сессии старше этого возраста вычищаются при создании новой
const abandonedSessionAge = 24 * time.Hour

// Manager хранит активные сессии загрузки в памяти.
// Сессии не переживают рестарт сервера: spool-директория чистится
// при старте, клиент начинает партию заново.
type Manager struct {
	mu            sync.Mutex
	sessions      map[string]*Session
	spoolRoot     string
	maxBatchBytes int64
}

// NewManager создает менеджер сессий загрузки
func NewManager(spoolRoot string, maxBatchBytes int64) *Manager {
	return &Manager{
		sessions:      make(map[string]*Session),
		spoolRoot:     spoolRoot,
		maxBatchBytes: maxBatchBytes,
	}
}

// Create открывает новую сессию загрузки
func (m *Manager) Create(mode Mode, albumTitle string) (*Session, error) {
	if mode != ModeSingle && mode != ModeAlbum {
		return nil, &ValidationError{Message: "unknown upload mode"}
	}

	sess, err := newSession(mode, albumTitle, m.spoolRoot, m.maxBatchBytes)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.pruneLocked()
	m.sessions[sess.ID] = sess
	m.mu.Unlock()

	return sess, nil
}

// Get возвращает сессию по ID
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("upload session not found")
	}
	return sess, nil
}

// Discard отменяет или освобождает сессию.
// Набираемая сессия удаляется вместе со spool-файлами, завершённая
// или упавшая просто убирается из реестра. Начатую партию отменить
// нельзя: файлы продолжают уходить в хранилище до конца или первой
// ошибки, сессия остаётся доступной для опроса прогресса.
func (m *Manager) Discard(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.discardLocked(id)
}

func (m *Manager) discardLocked(id string) {
	sess, ok := m.sessions[id]
	if !ok {
		return
	}

	sess.mu.Lock()
	state := sess.state
	sess.mu.Unlock()

	if state == StateRunning {
		return
	}

	delete(m.sessions, id)
	if state == StateStaging {
		sess.cleanup()
	}
}

// pruneLocked вычищает сессии, которые клиент бросил не закрыв:
// без этого реестр растёт по одной сессии на каждую партию
func (m *Manager) pruneLocked() {
	cutoff := time.Now().Add(-abandonedSessionAge)
	for id, sess := range m.sessions {
		if sess.CreatedAt.Before(cutoff) {
			m.discardLocked(id)
		}
	}
}
