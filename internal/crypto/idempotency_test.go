package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdempotencyKey_Deterministic(t *testing.T) {
	key1 := IdempotencyKey("delivery", "wamid.123")
	key2 := IdempotencyKey("delivery", "wamid.123")

	assert.Equal(t, key1, key2)
	assert.Len(t, key1, 64, "blake2b-256 в hex")
}

func TestIdempotencyKey_PartBoundaries(t *testing.T) {
	assert.NotEqual(t, IdempotencyKey("ab", "c"), IdempotencyKey("a", "bc"))
	assert.NotEqual(t, IdempotencyKey("a"), IdempotencyKey("a", ""))
	assert.NotEqual(t, IdempotencyKey("delivery", "1"), IdempotencyKey("delivery", "2"))
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Agendamento  Confirmado", "agendamento confirmado"},
		{"  linha\n\tquebrada  ", "linha quebrada"},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeText(tt.in))
	}
}
