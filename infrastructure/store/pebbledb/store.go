package pebbledb

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/qubic/go-se-ledger/business/table"
)

var ErrReadOnly = errors.New("write in read only view")

const tableKeySeparator = 0x00

type reader interface {
	Get(key []byte) ([]byte, io.Closer, error)
}

// Store keeps all tables in one pebble db. Keys are prefixed with the table name.
type Store struct {
	db        *pebble.DB
	writeLock sync.Mutex
}

func NewLedgerStore(storeDir string) (*Store, error) {
	db, err := pebble.Open(filepath.Join(storeDir, "se-ledger-store"), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("opening pebble db: %v", err)
	}

	return &Store{db: db}, nil
}

// Update runs fn against an indexed batch, so fn reads its own writes. The batch is committed only if fn
// succeeds. Calls are serialized, which makes read-modify-write sequences on the key index safe.
func (ps *Store) Update(fn func(store table.Store) error) error {
	ps.writeLock.Lock()
	defer ps.writeLock.Unlock()

	batch := ps.db.NewIndexedBatch()
	defer batch.Close()

	if err := fn(&batchStore{batch: batch}); err != nil {
		return err
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("committing batch: %v", err)
	}
	return nil
}

func (ps *Store) View(fn func(store table.Store) error) error {
	snapshot := ps.db.NewSnapshot()
	defer snapshot.Close()

	return fn(&snapshotStore{snapshot: snapshot})
}

func (ps *Store) Close() error {
	return ps.db.Close()
}

type batchStore struct {
	batch *pebble.Batch
}

func (bs *batchStore) Table(name string) table.Table {
	return &batchTable{name: name, batch: bs.batch}
}

type batchTable struct {
	name  string
	batch *pebble.Batch
}

func (bt *batchTable) Get(key string) (string, error) {
	return get(bt.batch, bt.name, key)
}

func (bt *batchTable) Set(key, value string) error {
	err := bt.batch.Set(tableKey(bt.name, key), []byte(value), nil)
	if err != nil {
		return fmt.Errorf("setting key [%s] in table [%s]: %v", key, bt.name, err)
	}
	return nil
}

type snapshotStore struct {
	snapshot *pebble.Snapshot
}

func (ss *snapshotStore) Table(name string) table.Table {
	return &snapshotTable{name: name, snapshot: ss.snapshot}
}

type snapshotTable struct {
	name     string
	snapshot *pebble.Snapshot
}

func (st *snapshotTable) Get(key string) (string, error) {
	return get(st.snapshot, st.name, key)
}

func (st *snapshotTable) Set(key, _ string) error {
	return fmt.Errorf("setting key [%s] in table [%s]: %w", key, st.name, ErrReadOnly)
}

func get(r reader, tableName, key string) (string, error) {
	value, closer, err := r.Get(tableKey(tableName, key))
	if errors.Is(err, pebble.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("getting key [%s] in table [%s]: %v", key, tableName, err)
	}
	defer closer.Close()

	return string(value), nil
}

func tableKey(tableName, key string) []byte {
	k := make([]byte, 0, len(tableName)+1+len(key))
	k = append(k, tableName...)
	k = append(k, tableKeySeparator)
	return append(k, key...)
}
