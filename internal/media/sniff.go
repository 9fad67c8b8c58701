package media

import (
	"github.com/h2non/filetype"
)

// Kind вид содержимого по magic bytes
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
	KindOther Kind = "other"
)

// SniffResult результат определения формата по содержимому
type SniffResult struct {
	Kind      Kind
	MIME      string // Пустая строка для KindOther
	Extension string // Без точки: jpg, png, mp4...
}

// Sniff определяет вид файла по содержимому, а не по имени.
// Расширению из имени файла доверять нельзя: при drag-and-drop
// прилетает что угодно.
func Sniff(data []byte) SniffResult {
	head := data
	if len(head) > 512 {
		head = head[:512]
	}

	t, err := filetype.Match(head)
	if err != nil || t == filetype.Unknown {
		return SniffResult{Kind: KindOther}
	}

	switch t.MIME.Type {
	case "image":
		return SniffResult{Kind: KindImage, MIME: t.MIME.Value, Extension: t.Extension}
	case "video":
		return SniffResult{Kind: KindVideo, MIME: t.MIME.Value, Extension: t.Extension}
	default:
		return SniffResult{Kind: KindOther}
	}
}
