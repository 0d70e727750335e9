package boltdb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/clinicsync/internal/client/storage"
)

func TestStorage_SaveGetDeleteAuth(t *testing.T) {
	ctx := context.Background()
	store := createTestStorage(t)

	auth := &storage.AuthData{
		ExpiresAt:   time.Now().Add(time.Hour).UTC().Truncate(time.Second),
		UserID:      "user-id-123",
		Phone:       "+5511999990000",
		AccessToken: "token",
	}

	// Проверяем что GetAuth до сохранения выдаст ErrAuthNotFound
	_, err := store.GetAuth(ctx)
	assert.ErrorIs(t, err, storage.ErrAuthNotFound)

	require.NoError(t, store.SaveAuth(ctx, auth))

	got, err := store.GetAuth(ctx)
	require.NoError(t, err)
	assert.Equal(t, auth.UserID, got.UserID)
	assert.Equal(t, auth.Phone, got.Phone)
	assert.Equal(t, auth.AccessToken, got.AccessToken)
	assert.True(t, auth.ExpiresAt.Equal(got.ExpiresAt))

	// Удаляем и проверяем повторное удаление
	require.NoError(t, store.DeleteAuth(ctx))
	_, err = store.GetAuth(ctx)
	assert.ErrorIs(t, err, storage.ErrAuthNotFound)
	assert.ErrorIs(t, store.DeleteAuth(ctx), storage.ErrAuthNotFound)
}

func TestAuthData_Expired(t *testing.T) {
	now := time.Now()

	assert.False(t, (&storage.AuthData{}).Expired(now))
	assert.False(t, (&storage.AuthData{ExpiresAt: now.Add(time.Minute)}).Expired(now))
	assert.True(t, (&storage.AuthData{ExpiresAt: now.Add(-time.Minute)}).Expired(now))
}
