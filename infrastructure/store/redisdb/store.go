package redisdb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/qubic/go-se-ledger/business/table"
	"github.com/redis/go-redis/v9"
)

var (
	ErrReadOnly         = errors.New("write in read only view")
	ErrTooManyConflicts = errors.New("too many concurrent modifications")
)

const (
	defaultTimeout     = 5 * time.Second
	defaultMaxAttempts = 10
)

// Store keeps every table in one redis hash named "table:<name>". Updates use optimistic locking: all
// touched hashes are watched, writes are buffered and applied in one MULTI/EXEC. A conflicting write by
// another client restarts the update.
type Store struct {
	rdb         redis.UniversalClient
	timeout     time.Duration
	maxAttempts int
}

type Option func(*Store)

func WithTimeout(timeout time.Duration) Option {
	return func(s *Store) {
		s.timeout = timeout
	}
}

func WithMaxAttempts(attempts int) Option {
	return func(s *Store) {
		s.maxAttempts = max(attempts, 1)
	}
}

func NewLedgerStore(rdb redis.UniversalClient, opts ...Option) *Store {
	s := &Store{rdb: rdb, timeout: defaultTimeout, maxAttempts: defaultMaxAttempts}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect creates a client and checks the connection.
func Connect(ctx context.Context, addr, password string, db int) (redis.UniversalClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("pinging redis at [%s]: %w", addr, err)
	}
	return rdb, nil
}

// Update runs fn until its writes are applied without a conflicting modification. fn may therefore be
// called more than once and must not have side effects outside the store.
func (rs *Store) Update(fn func(store table.Store) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), rs.timeout)
	defer cancel()

	for attempt := 0; attempt < rs.maxAttempts; attempt++ {
		err := rs.rdb.Watch(ctx, func(tx *redis.Tx) error {
			ts := &txStore{ctx: ctx, tx: tx, watched: make(map[string]bool), pending: make(map[string]map[string]any)}
			if err := fn(ts); err != nil {
				return err
			}
			if ts.err != nil {
				return ts.err
			}
			if len(ts.pending) == 0 {
				return nil
			}
			_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				for hash, fields := range ts.pending {
					pipe.HSet(ctx, hash, fields)
				}
				return nil
			})
			return err
		})
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("updating after [%d] attempts: %w", rs.maxAttempts, ErrTooManyConflicts)
}

// View reads directly from redis. Reads of different keys are not isolated from concurrent updates.
func (rs *Store) View(fn func(store table.Store) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), rs.timeout)
	defer cancel()

	return fn(&viewStore{ctx: ctx, rdb: rs.rdb})
}

func (rs *Store) Close() error {
	return rs.rdb.Close()
}

type txStore struct {
	ctx     context.Context
	tx      *redis.Tx
	watched map[string]bool
	pending map[string]map[string]any
	err     error
}

func (ts *txStore) Table(name string) table.Table {
	hash := hashName(name)
	if !ts.watched[hash] && ts.err == nil {
		if err := ts.tx.Watch(ts.ctx, hash).Err(); err != nil {
			ts.err = fmt.Errorf("watching table [%s]: %w", name, err)
		}
		ts.watched[hash] = true
	}
	return &txTable{name: name, hash: hash, store: ts}
}

type txTable struct {
	name  string
	hash  string
	store *txStore
}

func (tt *txTable) Get(key string) (string, error) {
	if tt.store.err != nil {
		return "", tt.store.err
	}
	if value, ok := tt.store.pending[tt.hash][key]; ok {
		return value.(string), nil
	}
	return hget(tt.store.ctx, tt.store.tx, tt.name, key)
}

func (tt *txTable) Set(key, value string) error {
	if tt.store.err != nil {
		return tt.store.err
	}
	fields, ok := tt.store.pending[tt.hash]
	if !ok {
		fields = make(map[string]any)
		tt.store.pending[tt.hash] = fields
	}
	fields[key] = value
	return nil
}

type viewStore struct {
	ctx context.Context
	rdb redis.UniversalClient
}

func (vs *viewStore) Table(name string) table.Table {
	return &viewTable{name: name, store: vs}
}

type viewTable struct {
	name  string
	store *viewStore
}

func (vt *viewTable) Get(key string) (string, error) {
	return hget(vt.store.ctx, vt.store.rdb, vt.name, key)
}

func (vt *viewTable) Set(key, _ string) error {
	return fmt.Errorf("setting key [%s] in table [%s]: %w", key, vt.name, ErrReadOnly)
}

func hget(ctx context.Context, c redis.Cmdable, tableName, key string) (string, error) {
	value, err := c.HGet(ctx, hashName(tableName), key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("getting key [%s] in table [%s]: %w", key, tableName, err)
	}
	return value, nil
}

func hashName(tableName string) string {
	return "table:" + tableName
}
