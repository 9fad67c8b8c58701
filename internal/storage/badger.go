package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/dgraph-io/badger/v4"
)

// Префиксы ключей для разных типов данных
const (
	prefixRecord     = "record:"
	prefixUser       = "user:"
	prefixSession    = "session:"
	prefixByMonth    = "idx:month:"    // Индекс: YYYY-MM -> record IDs
	prefixByChecksum = "idx:checksum:" // Индекс: SHA256 -> record IDs
)

// Store обертка над BadgerDB
type Store struct {
	db *badger.DB
}

// NewStore создает новое хранилище
func NewStore(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	opts := badger.DefaultOptions(dbPath)
	opts.Logger = nil // Отключаем логирование BadgerDB

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	return &Store{db: db}, nil
}

// Close закрывает хранилище
func (s *Store) Close() error {
	return s.db.Close()
}

// === Record операции ===

// SaveRecord сохраняет запись галереи и обновляет индексы
func (s *Store) SaveRecord(m *MemoryRecord) error {
	return s.db.Update(func(txn *badger.Txn) error {
		data, err := json.Marshal(m)
		if err != nil {
			return err
		}

		if err := txn.Set([]byte(prefixRecord+m.ID), data); err != nil {
			return err
		}

		// Индекс по месяцу (YYYY-MM) для timeline
		if !m.Date.IsZero() {
			monthKey := prefixByMonth + m.Date.Format("2006-01")
			if err := s.addToIndex(txn, monthKey, m.ID); err != nil {
				return err
			}
		}

		// Индекс по контрольной сумме для поиска дубликатов
		if m.Checksum != "" {
			if err := s.addToIndex(txn, prefixByChecksum+m.Checksum, m.ID); err != nil {
				return err
			}
		}

		return nil
	})
}

// GetRecord получает запись по ID
func (s *Store) GetRecord(id string) (*MemoryRecord, error) {
	var rec MemoryRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixRecord + id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// DeleteRecord удаляет запись и её индексы
func (s *Store) DeleteRecord(id string) error {
	rec, err := s.GetRecord(id)
	if err != nil {
		return err
	}
	if rec == nil {
		return nil
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if !rec.Date.IsZero() {
			monthKey := prefixByMonth + rec.Date.Format("2006-01")
			if err := s.removeFromIndex(txn, monthKey, id); err != nil {
				return err
			}
		}

		if rec.Checksum != "" {
			if err := s.removeFromIndex(txn, prefixByChecksum+rec.Checksum, id); err != nil {
				return err
			}
		}

		return txn.Delete([]byte(prefixRecord + id))
	})
}

// ListRecords возвращает все записи, отсортированные по дате (новые первые)
func (s *Store) ListRecords() ([]*MemoryRecord, error) {
	var result []*MemoryRecord
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchSize = 100
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixRecord)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				var rec MemoryRecord
				if err := json.Unmarshal(val, &rec); err != nil {
					return err
				}
				result = append(result, &rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Date.After(result[j].Date)
	})

	return result, nil
}

// ListRecordsByMonth возвращает записи за период YYYY-MM
func (s *Store) ListRecordsByMonth(month string) ([]*MemoryRecord, error) {
	ids, err := s.getIndex(prefixByMonth + month)
	if err != nil {
		return nil, err
	}

	var result []*MemoryRecord
	for _, id := range ids {
		rec, err := s.GetRecord(id)
		if err != nil {
			continue
		}
		if rec != nil {
			result = append(result, rec)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Date.After(result[j].Date)
	})

	return result, nil
}

// ListRecordsByChecksum возвращает записи с одинаковой контрольной суммой
func (s *Store) ListRecordsByChecksum(checksum string) ([]*MemoryRecord, error) {
	ids, err := s.getIndex(prefixByChecksum + checksum)
	if err != nil {
		return nil, err
	}

	var result []*MemoryRecord
	for _, id := range ids {
		rec, err := s.GetRecord(id)
		if err != nil {
			continue
		}
		if rec != nil {
			result = append(result, rec)
		}
	}
	return result, nil
}

// GetStats возвращает статистику галереи
func (s *Store) GetStats() (*Stats, error) {
	records, err := s.ListRecords()
	if err != nil {
		return nil, err
	}

	stats := &Stats{}
	for _, rec := range records {
		stats.TotalRecords++
		switch {
		case rec.IsAlbum():
			stats.TotalAlbums++
		case rec.Type == RecordTypeVideo:
			stats.TotalVideos++
		default:
			stats.TotalPhotos++
		}
	}
	return stats, nil
}

// === User операции ===

// SaveUser сохраняет пользователя
func (s *Store) SaveUser(u *User) error {
	return s.db.Update(func(txn *badger.Txn) error {
		data, err := json.Marshal(u)
		if err != nil {
			return err
		}
		return txn.Set([]byte(prefixUser+u.Username), data)
	})
}

// GetUser получает пользователя по username
func (s *Store) GetUser(username string) (*User, error) {
	var user User
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixUser + username))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &user)
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// === Session операции ===

// SaveSession сохраняет сессию
func (s *Store) SaveSession(sess *Session) error {
	return s.db.Update(func(txn *badger.Txn) error {
		data, err := json.Marshal(sess)
		if err != nil {
			return err
		}
		return txn.Set([]byte(prefixSession+sess.ID), data)
	})
}

// GetSession получает сессию
func (s *Store) GetSession(id string) (*Session, error) {
	var sess Session
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixSession + id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &sess)
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// DeleteSession удаляет сессию
func (s *Store) DeleteSession(id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(prefixSession + id))
	})
}

// === Вспомогательные функции для индексов ===

func (s *Store) addToIndex(txn *badger.Txn, key, id string) error {
	var ids []string

	item, err := txn.Get([]byte(key))
	if err == nil {
		err = item.Value(func(val []byte) error {
			return json.Unmarshal(val, &ids)
		})
		if err != nil {
			return err
		}
	} else if err != badger.ErrKeyNotFound {
		return err
	}

	for _, existingID := range ids {
		if existingID == id {
			return nil
		}
	}

	ids = append(ids, id)
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return txn.Set([]byte(key), data)
}

func (s *Store) removeFromIndex(txn *badger.Txn, key, id string) error {
	var ids []string

	item, err := txn.Get([]byte(key))
	if err == badger.ErrKeyNotFound {
		return nil
	}
	if err != nil {
		return err
	}

	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &ids)
	})
	if err != nil {
		return err
	}

	var newIDs []string
	for _, existingID := range ids {
		if existingID != id {
			newIDs = append(newIDs, existingID)
		}
	}

	if len(newIDs) == 0 {
		return txn.Delete([]byte(key))
	}

	data, err := json.Marshal(newIDs)
	if err != nil {
		return err
	}
	return txn.Set([]byte(key), data)
}

func (s *Store) getIndex(key string) ([]string, error) {
	var ids []string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &ids)
		})
	})
	return ids, err
}
