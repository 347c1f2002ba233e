package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aretw0/netviz/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// Store implements ports.TripletStore using Redis.
//
// Each fact body is a string key; three sets index fact ids by subject, predicate and
// object, and one set holds every id for unfiltered scans.
type Store struct {
	client *backend.Client
	prefix string
}

type Option func(*Store)

// WithPrefix sets the key prefix for facts and indexes.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: "netviz:",
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Client returns the underlying client, for sharing with a Locker.
func (s *Store) Client() *backend.Client {
	return s.client
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) factKey(id string) string      { return s.prefix + "fact:" + id }
func (s *Store) allKey() string                { return s.prefix + "facts" }
func (s *Store) subjectKey(hash string) string { return s.prefix + "s:" + hash }
func (s *Store) predicateKey(t string) string  { return s.prefix + "p:" + t }
func (s *Store) objectKey(hash string) string  { return s.prefix + "o:" + hash }

// Put writes bodies and index entries in one MULTI/EXEC.
func (s *Store) Put(ctx context.Context, facts ...domain.Fact) error {
	pipe := s.client.TxPipeline()
	for _, f := range facts {
		data, err := json.Marshal(f)
		if err != nil {
			return fmt.Errorf("failed to marshal fact: %w", err)
		}
		k := f.Key()
		id := k.String()
		pipe.Set(ctx, s.factKey(id), data, 0)
		pipe.SAdd(ctx, s.allKey(), id)
		pipe.SAdd(ctx, s.subjectKey(k.Subject), id)
		pipe.SAdd(ctx, s.predicateKey(k.Predicate), id)
		pipe.SAdd(ctx, s.objectKey(k.Object), id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	return nil
}

// Delete removes bodies and index entries in one MULTI/EXEC.
func (s *Store) Delete(ctx context.Context, facts ...domain.Fact) error {
	if len(facts) == 0 {
		return nil
	}
	pipe := s.client.TxPipeline()
	for _, f := range facts {
		k := f.Key()
		id := k.String()
		pipe.Del(ctx, s.factKey(id))
		pipe.SRem(ctx, s.allKey(), id)
		pipe.SRem(ctx, s.subjectKey(k.Subject), id)
		pipe.SRem(ctx, s.predicateKey(k.Predicate), id)
		pipe.SRem(ctx, s.objectKey(k.Object), id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete from redis: %w", err)
	}
	return nil
}

// Get intersects the index sets of the bound fields and fetches the bodies.
func (s *Store) Get(ctx context.Context, pattern domain.Pattern) ([]domain.Fact, error) {
	var sets []string
	if pattern.Subject != "" {
		sets = append(sets, s.subjectKey(pattern.Subject))
	}
	if pattern.Predicate != "" {
		sets = append(sets, s.predicateKey(pattern.Predicate))
	}
	if pattern.Object != "" {
		sets = append(sets, s.objectKey(pattern.Object))
	}

	var ids []string
	var err error
	switch len(sets) {
	case 0:
		ids, err = s.client.SMembers(ctx, s.allKey()).Result()
	case 1:
		ids, err = s.client.SMembers(ctx, sets[0]).Result()
	default:
		ids, err = s.client.SInter(ctx, sets...).Result()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query index: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.factKey(id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	out := make([]domain.Fact, 0, len(vals))
	for _, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue // index entry without body
		}
		var f domain.Fact
		if err := json.Unmarshal([]byte(str), &f); err != nil {
			return nil, fmt.Errorf("failed to unmarshal fact: %w", err)
		}
		out = append(out, f)
	}
	return out, nil
}
