package middleware_test

import (
	"context"
	"testing"

	"github.com/aretw0/netviz/pkg/adapters/memory"
	"github.com/aretw0/netviz/pkg/domain"
	"github.com/aretw0/netviz/pkg/persistence/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPIIMiddleware_Masking(t *testing.T) {
	ctx := context.Background()
	underlying := memory.NewStore()
	mw, err := middleware.NewPIIMiddleware([]string{"password", "ssn"})
	require.NoError(t, err)
	secure := mw(underlying)

	f := domain.NewFact("jdoe", "owns", "account-1")
	f.Predicate.Data = map[string]any{
		"username":      "jdoe",
		"user_password": "secret123",
		"details": map[string]any{
			"address":    "123 St",
			"ssn_number": "999-99-9999",
		},
	}
	require.NoError(t, secure.Put(ctx, f))

	assert.Equal(t, "secret123", f.Predicate.Data["user_password"], "caller's fact is untouched")
	assert.Equal(t, "999-99-9999", f.Predicate.Data["details"].(map[string]any)["ssn_number"])

	stored, err := underlying.Get(ctx, domain.PatternFor(f.Key()))
	require.NoError(t, err)
	require.Len(t, stored, 1)
	data := stored[0].Predicate.Data
	assert.Equal(t, "jdoe", data["username"])
	assert.Equal(t, middleware.Mask, data["user_password"])
	details := data["details"].(map[string]any)
	assert.Equal(t, "123 St", details["address"])
	assert.Equal(t, middleware.Mask, details["ssn_number"])
}

func TestNewPIIMiddleware_BadPattern(t *testing.T) {
	_, err := middleware.NewPIIMiddleware([]string{"("})
	assert.Error(t, err)
}

func TestChain_OutermostFirst(t *testing.T) {
	ctx := context.Background()
	underlying := memory.NewStore()
	pii, err := middleware.NewPIIMiddleware([]string{"secret"})
	require.NoError(t, err)
	enc, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: make([]byte, 32)})
	require.NoError(t, err)
	store := middleware.Chain(underlying, pii, enc)

	f := domain.NewFact("a", "knows", "b")
	f.Predicate.Data = map[string]any{"secret": "x", "weight": 1.0}
	require.NoError(t, store.Put(ctx, f))

	got, err := store.Get(ctx, domain.Pattern{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, middleware.Mask, got[0].Predicate.Data["secret"], "masked before sealing")
	assert.Equal(t, 1.0, got[0].Predicate.Data["weight"])

	raw, err := underlying.Get(ctx, domain.Pattern{})
	require.NoError(t, err)
	assert.Contains(t, raw[0].Predicate.Data, middleware.EnvelopeKey)
}
