// Пакет guesttoken — генерация и хэширование токенов гостевого доступа.
// Plaintext-токен существует только в ответе на приглашение; в БД хранится
// исключительно SHA-256 хэш.
package guesttoken

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// ByteLength — энтропия токена в байтах (256 бит).
	ByteLength = 32
	// Length — длина токена в hex-представлении.
	Length = ByteLength * 2
)

// Generate создаёт новый токен из CSPRNG: 64 hex-символа в нижнем регистре.
func Generate() (string, error) {
	buf := make([]byte, ByteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("генерация токена: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Hash возвращает SHA-256 хэш токена в hex.
// Токен приводится к нижнему регистру: варианты регистра одного токена дают один хэш.
func Hash(token string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(token)))
	return hex.EncodeToString(sum[:])
}

// WellFormed проверяет форму токена (ровно 64 hex-символа, регистр не важен).
// Используется до обращения к хранилищу, чтобы дёшево отсеять мусор.
func WellFormed(token string) bool {
	if len(token) != Length {
		return false
	}
	for i := 0; i < len(token); i++ {
		c := token[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
