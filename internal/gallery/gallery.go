package gallery

import (
	"sort"
	"strings"

	"github.com/memoria/memoria/internal/storage"
)

// FilterResult результат фильтрации по заголовку
type FilterResult struct {
	Records   []*storage.MemoryRecord `json:"records"`
	Total     int                     `json:"total"`
	Query     string                  `json:"query,omitempty"`
	NoResults bool                    `json:"no_results"`
}

// Filter отбирает записи по подстроке заголовка без учёта регистра.
// Пустой запрос возвращает все записи и не считается "ничего не найдено".
func Filter(records []*storage.MemoryRecord, query string) FilterResult {
	query = strings.TrimSpace(query)
	if query == "" {
		return FilterResult{Records: records, Total: len(records)}
	}

	needle := strings.ToLower(query)
	matched := make([]*storage.MemoryRecord, 0)
	for _, rec := range records {
		if strings.Contains(strings.ToLower(rec.Title), needle) {
			matched = append(matched, rec)
		}
	}

	return FilterResult{
		Records:   matched,
		Total:     len(matched),
		Query:     query,
		NoResults: len(matched) == 0,
	}
}

// MonthGroup месяц в ленте времени
type MonthGroup struct {
	Month   int                     `json:"month"`
	Label   string                  `json:"label"`
	Records []*storage.MemoryRecord `json:"records"`
}

// YearGroup год в ленте времени
type YearGroup struct {
	Year   int          `json:"year"`
	Months []MonthGroup `json:"months"`
}

var monthLabels = [...]string{
	"January", "February", "March", "April", "May", "June",
	"July", "August", "September", "October", "November", "December",
}

// Timeline группирует записи в ленту: годы по убыванию, внутри года
// месяцы по убыванию. Записи внутри месяца сохраняют переданный
// порядок (ожидается сортировка по дате от новых к старым).
func Timeline(records []*storage.MemoryRecord) []YearGroup {
	type monthKey struct {
		year  int
		month int
	}

	byMonth := make(map[monthKey][]*storage.MemoryRecord)
	for _, rec := range records {
		key := monthKey{year: rec.Date.Year(), month: int(rec.Date.Month())}
		byMonth[key] = append(byMonth[key], rec)
	}

	byYear := make(map[int][]MonthGroup)
	for key, recs := range byMonth {
		byYear[key.year] = append(byYear[key.year], MonthGroup{
			Month:   key.month,
			Label:   monthLabels[key.month-1],
			Records: recs,
		})
	}

	years := make([]YearGroup, 0, len(byYear))
	for year, months := range byYear {
		sort.Slice(months, func(i, j int) bool {
			return months[i].Month > months[j].Month
		})
		years = append(years, YearGroup{Year: year, Months: months})
	}
	sort.Slice(years, func(i, j int) bool {
		return years[i].Year > years[j].Year
	})

	return years
}

// Neighbors возвращает ID соседей записи в переданном порядке.
// На краях списка соседа нет: навигация в ленте не зацикливается.
func Neighbors(records []*storage.MemoryRecord, id string) (prev, next string) {
	for i, rec := range records {
		if rec.ID != id {
			continue
		}
		if i > 0 {
			prev = records[i-1].ID
		}
		if i < len(records)-1 {
			next = records[i+1].ID
		}
		return prev, next
	}
	return "", ""
}

// AlbumStep шаг по снимкам альбома с переходом через край.
// delta +1 или -1, индекс всегда остаётся в границах альбома.
func AlbumStep(index, delta, size int) int {
	if size <= 0 {
		return 0
	}
	return ((index+delta)%size + size) % size
}
