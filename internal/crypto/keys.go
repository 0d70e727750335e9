package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// Параметры Argon2id для ключа хранения токена
const (
	// Argon2Time - количество итераций (time cost)
	Argon2Time = 1
	// Argon2Memory - объем памяти в KB (64MB = 64*1024 KB)
	Argon2Memory = 64 * 1024
	// Argon2Threads - количество параллельных потоков
	Argon2Threads = 4
	// KeyLen - длина выходного ключа в байтах (AES-256)
	KeyLen = 32
	// SaltSize - размер соли в байтах
	SaltSize = 16
)

// GenerateSaltBase64 генерирует криптографически случайную соль в Base64
func GenerateSaltBase64() (string, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	return base64.StdEncoding.EncodeToString(salt), nil
}

// DeriveKey derives the token sealing key from a local secret.
// The salt is stored next to the sealed token.
func DeriveKey(secret, saltBase64 string) ([]byte, error) {
	if secret == "" {
		return nil, fmt.Errorf("secret cannot be empty")
	}
	salt, err := base64.StdEncoding.DecodeString(saltBase64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode salt: %w", err)
	}
	if len(salt) != SaltSize {
		return nil, fmt.Errorf("salt must be %d bytes, got %d", SaltSize, len(salt))
	}

	return argon2.IDKey([]byte(secret), salt, Argon2Time, Argon2Memory, Argon2Threads, KeyLen), nil
}
