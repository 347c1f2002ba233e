// Package badger implements ports.TripletStore on BadgerDB.
//
// Facts are kept as a hexastore: the JSON body lives under the spo key, and the pos and
// osp keys are empty index entries, so every pattern resolves to one prefix scan.
package badger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/netviz/pkg/domain"
	"github.com/dgraph-io/badger/v4"
)

// sep terminates every key component so "a" never prefix-matches "ab".
const sep = byte(0)

var (
	prefixSPO = []byte("spo:")
	prefixPOS = []byte("pos:")
	prefixOSP = []byte("osp:")
)

// Config configures the store.
type Config struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives BadgerDB's internal logs. Nil disables them.
	Logger *slog.Logger
}

// InMemoryConfig returns a config suited for tests.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Store implements ports.TripletStore using BadgerDB.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) the database described by cfg.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put writes the fact body and its index entries in one transaction.
func (s *Store) Put(ctx context.Context, facts ...domain.Fact) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, f := range facts {
			body, err := json.Marshal(f)
			if err != nil {
				return fmt.Errorf("marshal fact: %w", err)
			}
			k := f.Key()
			if err := txn.Set(spoKey(k), body); err != nil {
				return err
			}
			if err := txn.Set(posKey(k), nil); err != nil {
				return err
			}
			if err := txn.Set(ospKey(k), nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("badger put: %w", err)
	}
	return nil
}

// Delete removes the fact body and its index entries.
func (s *Store) Delete(ctx context.Context, facts ...domain.Fact) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, f := range facts {
			k := f.Key()
			for _, key := range [][]byte{spoKey(k), posKey(k), ospKey(k)} {
				if err := txn.Delete(key); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("badger delete: %w", err)
	}
	return nil
}

// Get resolves the pattern to the narrowest index prefix and scans it.
func (s *Store) Get(ctx context.Context, pattern domain.Pattern) ([]domain.Fact, error) {
	var out []domain.Fact
	err := s.db.View(func(txn *badger.Txn) error {
		if pattern.Subject != "" && pattern.Predicate != "" && pattern.Object != "" {
			f, found, err := loadFact(txn, spoKey(domain.FactKey{
				Subject: pattern.Subject, Predicate: pattern.Predicate, Object: pattern.Object,
			}))
			if err != nil || !found {
				return err
			}
			out = append(out, f)
			return nil
		}

		prefix, index := plan(pattern)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = index == nil
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			var f domain.Fact
			if index == nil {
				if err := item.Value(func(val []byte) error {
					return json.Unmarshal(val, &f)
				}); err != nil {
					return fmt.Errorf("decode fact %q: %w", item.Key(), err)
				}
			} else {
				k, err := index(item.KeyCopy(nil))
				if err != nil {
					return err
				}
				var found bool
				f, found, err = loadFact(txn, spoKey(k))
				if err != nil {
					return err
				}
				if !found {
					continue
				}
			}
			if pattern.Matches(f) {
				out = append(out, f)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger get: %w", err)
	}
	return out, nil
}

// plan picks the index for a pattern. A nil decoder means the prefix is on spo and
// values are fact bodies.
func plan(p domain.Pattern) ([]byte, func([]byte) (domain.FactKey, error)) {
	switch {
	case p.Subject != "" && p.Predicate != "":
		return compose(prefixSPO, p.Subject, p.Predicate), nil
	case p.Subject != "" && p.Object != "":
		return compose(prefixOSP, p.Object, p.Subject), decodeOSP
	case p.Subject != "":
		return compose(prefixSPO, p.Subject), nil
	case p.Predicate != "" && p.Object != "":
		return compose(prefixPOS, p.Predicate, p.Object), decodePOS
	case p.Predicate != "":
		return compose(prefixPOS, p.Predicate), decodePOS
	case p.Object != "":
		return compose(prefixOSP, p.Object), decodeOSP
	default:
		return prefixSPO, nil
	}
}

func loadFact(txn *badger.Txn, key []byte) (domain.Fact, bool, error) {
	var f domain.Fact
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return f, false, nil
	}
	if err != nil {
		return f, false, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &f)
	})
	if err != nil {
		return f, false, fmt.Errorf("decode fact %q: %w", key, err)
	}
	return f, true, nil
}

func compose(prefix []byte, parts ...string) []byte {
	var b bytes.Buffer
	b.Write(prefix)
	for _, p := range parts {
		b.WriteString(p)
		b.WriteByte(sep)
	}
	return b.Bytes()
}

func spoKey(k domain.FactKey) []byte { return compose(prefixSPO, k.Subject, k.Predicate, k.Object) }
func posKey(k domain.FactKey) []byte { return compose(prefixPOS, k.Predicate, k.Object, k.Subject) }
func ospKey(k domain.FactKey) []byte { return compose(prefixOSP, k.Object, k.Subject, k.Predicate) }

func split(key, prefix []byte) ([]string, error) {
	rest := bytes.TrimSuffix(key[len(prefix):], []byte{sep})
	parts := bytes.Split(rest, []byte{sep})
	if len(parts) != 3 {
		return nil, fmt.Errorf("malformed index key %q", key)
	}
	return []string{string(parts[0]), string(parts[1]), string(parts[2])}, nil
}

func decodePOS(key []byte) (domain.FactKey, error) {
	p, err := split(key, prefixPOS)
	if err != nil {
		return domain.FactKey{}, err
	}
	return domain.FactKey{Predicate: p[0], Object: p[1], Subject: p[2]}, nil
}

func decodeOSP(key []byte) (domain.FactKey, error) {
	p, err := split(key, prefixOSP)
	if err != nil {
		return domain.FactKey{}, err
	}
	return domain.FactKey{Object: p[0], Subject: p[1], Predicate: p[2]}, nil
}
