package redis_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/netviz/pkg/adapters/redis"
	"github.com/aretw0/netviz/pkg/domain"
	"github.com/aretw0/netviz/pkg/ports"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStore_Contract(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	defer mr.Close()

	client := backend.NewClient(&backend.Options{
		Addr: mr.Addr(),
	})

	store := redis.NewFromClient(client)
	ports.RunTripletStoreContract(t, store)
}

func TestRedisStore_Prefix(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := backend.NewClient(&backend.Options{
		Addr: mr.Addr(),
	})

	store := redis.NewFromClient(client, redis.WithPrefix("custom:app:"))
	ctx := context.Background()

	err = store.Put(ctx, domain.NewFact("a", "likes", "b"))
	require.NoError(t, err)

	assert.True(t, mr.Exists("custom:app:facts"), "Expected index with custom prefix to exist")
	assert.True(t, mr.Exists("custom:app:s:a"))
	assert.True(t, mr.Exists("custom:app:p:likes"))
	assert.True(t, mr.Exists("custom:app:o:b"))

	require.NoError(t, store.Delete(ctx, domain.NewFact("a", "likes", "b")))
	assert.False(t, mr.Exists("custom:app:facts"), "empty sets are removed by redis")
}

func TestRedisStore_SkipsIndexWithoutBody(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	store := redis.NewFromClient(client)
	ctx := context.Background()

	f := domain.NewFact("a", "likes", "b")
	require.NoError(t, store.Put(ctx, f))
	mr.Del("netviz:fact:" + f.Key().String())

	got, err := store.Get(ctx, domain.Pattern{})
	require.NoError(t, err)
	assert.Empty(t, got)
}
