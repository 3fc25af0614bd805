// Package badgerrows implements guard.RowStore on an embedded BadgerDB. Each
// conditional update is one read-modify-write transaction; badger's own
// conflict detection rejects the loser of a concurrent commit.
package badgerrows

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/goliatone/go-settings/pkg/guard"
)

const (
	keyPrefix       = "row/"
	namespacePrefix = "ns/"
)

var errPrecondition = errors.New("badgerrows: precondition failed")

// Config holds configuration for the embedded database.
type Config struct {
	// Path is the database directory. Ignored when InMemory is true.
	Path string
	// InMemory keeps everything in RAM; used by tests.
	InMemory bool
	// SyncWrites fsyncs every commit.
	SyncWrites bool
	// Logger receives badger's internal logs. Nil disables them.
	Logger *slog.Logger
	// GCInterval runs value log GC periodically. Zero disables it.
	GCInterval time.Duration
	// GCDiscardRatio is the garbage ratio that triggers a rewrite.
	GCDiscardRatio float64
}

// DefaultConfig returns production defaults for path.
func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns configuration for tests.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts slog.Logger to badger.Logger.
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

// Store owns a badger database. It is itself a guard.RowStore over the
// default key space; Namespace returns further, disjoint row stores.
type Store struct {
	*Bucket
	db     *badger.DB
	logger *slog.Logger

	stopGC    chan struct{}
	gcDone    chan struct{}
	closeOnce sync.Once
}

// Bucket is a guard.RowStore over one key prefix of a shared database.
type Bucket struct {
	db     *badger.DB
	now    func() time.Time
	prefix string
}

var (
	_ guard.RowStore = (*Store)(nil)
	_ guard.RowStore = (*Bucket)(nil)
)

// Open opens the database described by cfg.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("badgerrows: path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("badgerrows: create database directory %s: %w", cfg.Path, err)
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
		return nil, fmt.Errorf("badgerrows: open: %w", err)
	}
	s := &Store{
		Bucket: &Bucket{db: db, now: time.Now, prefix: keyPrefix},
		db:     db,
		logger: cfg.Logger,
	}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.startGC(cfg.GCInterval, cfg.GCDiscardRatio)
	}
	return s, nil
}

// Namespace returns the rows stored under name. Namespaces never see each
// other's rows or the default key space.
func (s *Store) Namespace(name string) *Bucket {
	return &Bucket{db: s.db, now: s.now, prefix: namespacePrefix + name + "/"}
}

// Close stops GC and closes the database. Safe to call more than once.
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.stopGC != nil {
			close(s.stopGC)
			<-s.gcDone
		}
		err = s.db.Close()
	})
	return err
}

// envelope is the stored value.
type envelope struct {
	Payload   []byte `json:"p"`
	Version   int64  `json:"v"`
	UpdatedAt int64  `json:"u"`
}

func (b *Bucket) Load(_ context.Context, id string) (guard.Row, bool, error) {
	var (
		row   guard.Row
		found bool
	)
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		row, found, err = b.get(txn, id)
		return err
	})
	if err != nil {
		return guard.Row{}, false, fmt.Errorf("badgerrows: load %q: %w", id, err)
	}
	return row, found, nil
}

func (b *Bucket) List(_ context.Context) ([]guard.Row, error) {
	var out []guard.Row
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(b.prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			id := string(item.Key()[len(b.prefix):])
			err := item.Value(func(val []byte) error {
				row, err := decode(id, val)
				if err != nil {
					return err
				}
				out = append(out, row)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badgerrows: list: %w", err)
	}
	return out, nil
}

func (b *Bucket) Insert(_ context.Context, id string, payload []byte) (guard.Row, bool, error) {
	row := guard.Row{ID: id, Payload: payload, Version: guard.InitialVersion, UpdatedAt: b.now().UTC()}
	ok, err := b.update(id, func(txn *badger.Txn) error {
		if _, found, err := b.get(txn, id); err != nil {
			return err
		} else if found {
			return errPrecondition
		}
		return b.put(txn, row)
	})
	if err != nil || !ok {
		return guard.Row{}, false, err
	}
	return row, true, nil
}

func (b *Bucket) Swap(_ context.Context, id string, expected int64, payload []byte) (guard.Row, bool, error) {
	row := guard.Row{ID: id, Payload: payload, Version: expected + 1, UpdatedAt: b.now().UTC()}
	ok, err := b.update(id, func(txn *badger.Txn) error {
		current, found, err := b.get(txn, id)
		if err != nil {
			return err
		}
		if !found || current.Version != expected {
			return errPrecondition
		}
		return b.put(txn, row)
	})
	if err != nil || !ok {
		return guard.Row{}, false, err
	}
	return row, true, nil
}

func (b *Bucket) Remove(_ context.Context, id string, expected int64) (bool, error) {
	return b.update(id, func(txn *badger.Txn) error {
		current, found, err := b.get(txn, id)
		if err != nil {
			return err
		}
		if !found || current.Version != expected {
			return errPrecondition
		}
		return txn.Delete(b.key(id))
	})
}

// update runs fn in a read-write transaction. A failed precondition or a
// commit conflict both report ok=false; the caller disambiguates.
func (b *Bucket) update(id string, fn func(txn *badger.Txn) error) (bool, error) {
	err := b.db.Update(fn)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errPrecondition), errors.Is(err, badger.ErrConflict):
		return false, nil
	default:
		return false, fmt.Errorf("badgerrows: update %q: %w", id, err)
	}
}

func (s *Store) startGC(interval time.Duration, ratio float64) {
	s.stopGC = make(chan struct{})
	s.gcDone = make(chan struct{})
	go func() {
		defer close(s.gcDone)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stopGC:
				return
			case <-ticker.C:
				err := s.db.RunValueLogGC(ratio)
				if err != nil && !errors.Is(err, badger.ErrNoRewrite) && s.logger != nil {
					s.logger.Warn("badger value log GC error", slog.String("error", err.Error()))
				}
			}
		}
	}()
}

func (b *Bucket) key(id string) []byte {
	return []byte(b.prefix + id)
}

func (b *Bucket) get(txn *badger.Txn, id string) (guard.Row, bool, error) {
	item, err := txn.Get(b.key(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return guard.Row{}, false, nil
	}
	if err != nil {
		return guard.Row{}, false, err
	}
	var row guard.Row
	err = item.Value(func(val []byte) error {
		row, err = decode(id, val)
		return err
	})
	if err != nil {
		return guard.Row{}, false, err
	}
	return row, true, nil
}

func (b *Bucket) put(txn *badger.Txn, row guard.Row) error {
	raw, err := json.Marshal(envelope{Payload: row.Payload, Version: row.Version, UpdatedAt: row.UpdatedAt.UnixNano()})
	if err != nil {
		return err
	}
	return txn.Set(b.key(row.ID), raw)
}

func decode(id string, val []byte) (guard.Row, error) {
	var env envelope
	if err := json.Unmarshal(val, &env); err != nil {
		return guard.Row{}, fmt.Errorf("decode %q: %w", id, err)
	}
	return guard.Row{
		ID:        id,
		Payload:   env.Payload,
		Version:   env.Version,
		UpdatedAt: time.Unix(0, env.UpdatedAt).UTC(),
	}, nil
}
