package crypto

import (
	"encoding/binary"
	"encoding/hex"
	"strings"
	"unicode"

	"golang.org/x/crypto/blake2b"
)

// idempotencyPrefix отделяет ключи разных версий схемы
const idempotencyPrefix = "v1"

// IdempotencyKey derives a stable key from the identifying parts of a write.
// Parts are length-prefixed before hashing so ("ab","c") and ("a","bc") differ.
func IdempotencyKey(parts ...string) string {
	h, _ := blake2b.New256(nil) // без ключа ошибка невозможна
	h.Write([]byte(idempotencyPrefix))
	for _, p := range parts {
		var n [8]byte
		binary.BigEndian.PutUint64(n[:], uint64(len(p)))
		h.Write(n[:])
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// NormalizeText приводит текст к каноническому виду для дедупликации:
// нижний регистр, пробельные последовательности схлопываются в один пробел
func NormalizeText(s string) string {
	fields := strings.FieldsFunc(strings.ToLower(s), unicode.IsSpace)
	return strings.Join(fields, " ")
}
