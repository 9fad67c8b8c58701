package storage

import (
	"crypto/rand"
	"encoding/hex"
)

// GenerateID генерирует случайный идентификатор записи
func GenerateID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}
