package domain

import (
	"crypto/sha256"
	"encoding/hex"
)

// ImageHashLength — длина короткого хэша URL в callback-данных.
const ImageHashLength = 16

// ImageHash возвращает первые ImageHashLength символов SHA-256 от URL изображения.
func ImageHash(imageURL string) string {
	sum := sha256.Sum256([]byte(imageURL))
	full := hex.EncodeToString(sum[:])
	return full[:ImageHashLength]
}
