package cache

import (
	"time"

	"github.com/memoria/memoria/internal/storage"
)

const listKey = "records:all"

// RecordCache кэш записей галереи поверх BadgerDB.
// Список записей и статистика инвалидируются целиком на любом
// изменении: объём данных личной галереи делает это дешевле
// точечного пересчёта.
type RecordCache struct {
	recordCache *Cache
	listCache   *Cache
	statsCache  *Cache
}

// NewRecordCache создает кэш записей
func NewRecordCache() *RecordCache {
	return &RecordCache{
		recordCache: New(Config{
			DefaultExpiration: 10 * time.Minute,
			CleanupInterval:   5 * time.Minute,
			MaxItems:          5000,
		}),
		listCache: New(Config{
			DefaultExpiration: 2 * time.Minute,
			CleanupInterval:   1 * time.Minute,
			MaxItems:          10,
		}),
		statsCache: New(Config{
			DefaultExpiration: 30 * time.Second,
			CleanupInterval:   1 * time.Minute,
			MaxItems:          10,
		}),
	}
}

// GetRecord получает запись из кэша
func (rc *RecordCache) GetRecord(id string) (*storage.MemoryRecord, bool) {
	val, found := rc.recordCache.Get("record:" + id)
	if !found {
		return nil, false
	}
	if rec, ok := val.(*storage.MemoryRecord); ok {
		return rec, true
	}
	return nil, false
}

// SetRecord сохраняет запись в кэш
func (rc *RecordCache) SetRecord(rec *storage.MemoryRecord) {
	rc.recordCache.Set("record:"+rec.ID, rec)
}

// GetList получает полный список записей
func (rc *RecordCache) GetList() ([]*storage.MemoryRecord, bool) {
	val, found := rc.listCache.Get(listKey)
	if !found {
		return nil, false
	}
	if recs, ok := val.([]*storage.MemoryRecord); ok {
		return recs, true
	}
	return nil, false
}

// SetList сохраняет полный список записей
func (rc *RecordCache) SetList(recs []*storage.MemoryRecord) {
	rc.listCache.Set(listKey, recs)
}

// GetStats получает статистику из кэша
func (rc *RecordCache) GetStats() (*storage.Stats, bool) {
	val, found := rc.statsCache.Get("stats")
	if !found {
		return nil, false
	}
	if stats, ok := val.(*storage.Stats); ok {
		return stats, true
	}
	return nil, false
}

// SetStats сохраняет статистику в кэш
func (rc *RecordCache) SetStats(stats *storage.Stats) {
	rc.statsCache.Set("stats", stats)
}

// Invalidate сбрасывает кэш после изменения записи
func (rc *RecordCache) Invalidate(id string) {
	rc.recordCache.Delete("record:" + id)
	rc.listCache.Delete(listKey)
	rc.statsCache.Delete("stats")
}

// Clear очищает все кэши
func (rc *RecordCache) Clear() {
	rc.recordCache.Clear()
	rc.listCache.Clear()
	rc.statsCache.Clear()
}

// Stop останавливает все кэши
func (rc *RecordCache) Stop() {
	rc.recordCache.Stop()
	rc.listCache.Stop()
	rc.statsCache.Stop()
}
