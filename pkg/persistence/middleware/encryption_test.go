package middleware_test

import (
	"context"
	"crypto/rand"
	"io"
	"testing"

	"github.com/aretw0/netviz/pkg/adapters/memory"
	"github.com/aretw0/netviz/pkg/domain"
	"github.com/aretw0/netviz/pkg/persistence/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateKey(t *testing.T) []byte {
	t.Helper()
	k := make([]byte, 32)
	_, err := io.ReadFull(rand.Reader, k)
	require.NoError(t, err)
	return k
}

func secretFact() domain.Fact {
	f := domain.NewFact("alice", "pays", "bob")
	f.Predicate.Data = map[string]any{"amount": 42.0, "color": "red"}
	return f
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	ctx := context.Background()
	underlying := memory.NewStore()
	mw, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	require.NoError(t, err)
	secure := mw(underlying)

	original := secretFact()
	require.NoError(t, secure.Put(ctx, original))
	assert.Equal(t, 42.0, original.Predicate.Data["amount"], "caller's fact is untouched")

	stored, err := underlying.Get(ctx, domain.Pattern{Subject: "alice"})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.NotContains(t, stored[0].Predicate.Data, "amount")
	assert.Contains(t, stored[0].Predicate.Data, middleware.EnvelopeKey)
	assert.Equal(t, original.Key(), stored[0].Key(), "keys stay in the clear")

	loaded, err := secure.Get(ctx, domain.Pattern{Predicate: "pays"})
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, original.Predicate.Data, loaded[0].Predicate.Data)
}

func TestEncryptionMiddleware_NoDataPassesThrough(t *testing.T) {
	ctx := context.Background()
	underlying := memory.NewStore()
	mw, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	require.NoError(t, err)
	secure := mw(underlying)

	require.NoError(t, secure.Put(ctx, domain.NewFact("a", "likes", "b")))
	facts, err := secure.Get(ctx, domain.Pattern{})
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Empty(t, facts[0].Predicate.Data)
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	ctx := context.Background()
	underlying := memory.NewStore()
	oldKey, newKey := generateKey(t), generateKey(t)

	oldMW, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: oldKey})
	require.NoError(t, err)
	require.NoError(t, oldMW(underlying).Put(ctx, secretFact()))

	t.Run("fallback key decrypts", func(t *testing.T) {
		mw, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
			ActiveKey:    newKey,
			FallbackKeys: [][]byte{oldKey},
		})
		require.NoError(t, err)
		facts, err := mw(underlying).Get(ctx, domain.Pattern{})
		require.NoError(t, err)
		require.Len(t, facts, 1)
		assert.Equal(t, 42.0, facts[0].Predicate.Data["amount"])
	})

	t.Run("unknown key fails", func(t *testing.T) {
		mw, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: newKey})
		require.NoError(t, err)
		_, err = mw(underlying).Get(ctx, domain.Pattern{})
		assert.ErrorIs(t, err, domain.ErrStore)
	})
}

func TestEncryptionMiddleware_PlainDataRejected(t *testing.T) {
	ctx := context.Background()
	underlying := memory.NewStore()
	require.NoError(t, underlying.Put(ctx, secretFact()))

	mw, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	require.NoError(t, err)
	_, err = mw(underlying).Get(ctx, domain.Pattern{})
	assert.ErrorIs(t, err, domain.ErrStore)
}

func TestNewEncryptionMiddleware_BadKeys(t *testing.T) {
	tests := []struct {
		name string
		cfg  middleware.EncryptionConfig
	}{
		{"short active key", middleware.EncryptionConfig{ActiveKey: []byte("short")}},
		{"short fallback key", middleware.EncryptionConfig{ActiveKey: make([]byte, 32), FallbackKeys: [][]byte{{1, 2}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := middleware.NewEncryptionMiddleware(tt.cfg)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}
