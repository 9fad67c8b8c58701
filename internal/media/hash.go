package media

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"

	"github.com/corona10/goimagehash"
)

// Checksum вычисляет SHA256 содержимого
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// PerceptualHash вычисляет perceptual hash изображения (dHash)
func PerceptualHash(data []byte) (uint64, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("failed to decode image: %w", err)
	}

	// DifferenceHash хорошо работает для поиска похожих изображений
	hash, err := goimagehash.DifferenceHash(img)
	if err != nil {
		return 0, fmt.Errorf("failed to calculate hash: %w", err)
	}

	return hash.GetHash(), nil
}

// HashDistance возвращает Hamming distance двух perceptual hash.
// distance < 10 обычно означает похожие изображения.
func HashDistance(hash1, hash2 uint64) int {
	xor := hash1 ^ hash2
	distance := 0
	for xor != 0 {
		distance++
		xor &= xor - 1 // Сбрасываем младший установленный бит
	}
	return distance
}
