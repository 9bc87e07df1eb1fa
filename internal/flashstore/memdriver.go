package flashstore

// memdriver registers an in-process walletdb driver backing the
// flash-wallet store. The real device persists these buckets to
// write-protected flash; during development and in tests the exact
// same walletdb.DB/Tx/Bucket contract is satisfied by a process-memory
// map, the same way a bbolt-backed walletdb driver is used in
// production with an in-memory stand-in for tests.

import (
	"sort"
	"sync"

	"github.com/btcsuite/btcwallet/walletdb"
)

const driverType = "x1flash"

func init() {
	driver := walletdb.Driver{
		DbType: driverType,
		Create: createDB,
		Open:   createDB,
	}
	// Registering twice (e.g. package re-imported in tests) is
	// harmless to ignore; walletdb.Register itself panics on a true
	// duplicate type string from two different driver implementations,
	// which cannot happen within this package.
	_ = walletdb.RegisterDriver(driver)
}

func createDB(args ...interface{}) (walletdb.DB, error) {
	return &memDB{buckets: make(map[string]*memBucket)}, nil
}

type memDB struct {
	mu      sync.Mutex
	buckets map[string]*memBucket
}

func (db *memDB) snapshot() map[string]*memBucket {
	clone := make(map[string]*memBucket, len(db.buckets))
	for k, b := range db.buckets {
		clone[k] = b.clone()
	}
	return clone
}

func (db *memDB) BeginReadTx() (walletdb.ReadTx, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return &memTx{db: db, buckets: db.snapshot(), writable: false}, nil
}

func (db *memDB) BeginReadWriteTx() (walletdb.ReadWriteTx, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return &memTx{db: db, buckets: db.snapshot(), writable: true}, nil
}

func (db *memDB) Copy(interface{}) error { return nil }
func (db *memDB) Close() error           { return nil }
func (db *memDB) PrintStats() string     { return "x1flash in-memory store" }

func (db *memDB) View(f func(tx walletdb.ReadTx) error, reset func()) error {
	if reset != nil {
		reset()
	}
	tx, err := db.BeginReadTx()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	return f(tx)
}

func (db *memDB) Update(f func(tx walletdb.ReadWriteTx) error, reset func()) error {
	if reset != nil {
		reset()
	}
	tx, err := db.BeginReadWriteTx()
	if err != nil {
		return err
	}
	if err := f(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// memTx is a copy-on-write snapshot of the database's top-level
// buckets. Writes mutate the snapshot only; Commit publishes it back
// to the parent db under lock, and Rollback simply discards it. This
// gives the same all-or-nothing visibility the flash ping-pong scheme
// requires: a reader never observes a partially written set of
// buckets.
type memTx struct {
	db       *memDB
	buckets  map[string]*memBucket
	writable bool
	onCommit []func()
}

func (tx *memTx) ReadBucket(key []byte) walletdb.ReadBucket {
	b, ok := tx.buckets[string(key)]
	if !ok {
		return nil
	}
	return b
}

func (tx *memTx) ReadWriteBucket(key []byte) walletdb.ReadWriteBucket {
	b, ok := tx.buckets[string(key)]
	if !ok {
		return nil
	}
	return b
}

func (tx *memTx) CreateTopLevelBucket(key []byte) (walletdb.ReadWriteBucket, error) {
	name := string(key)
	if b, ok := tx.buckets[name]; ok {
		return b, nil
	}
	b := newMemBucket()
	tx.buckets[name] = b
	return b, nil
}

func (tx *memTx) DeleteTopLevelBucket(key []byte) error {
	delete(tx.buckets, string(key))
	return nil
}

func (tx *memTx) Rollback() error {
	return nil
}

func (tx *memTx) Commit() error {
	tx.db.mu.Lock()
	tx.db.buckets = tx.buckets
	tx.db.mu.Unlock()
	for _, f := range tx.onCommit {
		f()
	}
	return nil
}

func (tx *memTx) OnCommit(f func()) {
	tx.onCommit = append(tx.onCommit, f)
}

type memBucket struct {
	data map[string][]byte
	seq  uint64
}

func newMemBucket() *memBucket {
	return &memBucket{data: make(map[string][]byte)}
}

func (b *memBucket) clone() *memBucket {
	clone := newMemBucket()
	clone.seq = b.seq
	for k, v := range b.data {
		cp := make([]byte, len(v))
		copy(cp, v)
		clone.data[k] = cp
	}
	return clone
}

func (b *memBucket) NestedReadBucket(key []byte) walletdb.ReadBucket {
	return nil
}

func (b *memBucket) ReadCursor() walletdb.ReadCursor {
	return newMemCursor(b)
}

func (b *memBucket) ReadWriteCursor() walletdb.ReadWriteCursor {
	return newMemCursor(b)
}

func (b *memBucket) Tx() walletdb.ReadWriteTx {
	return nil
}

func (b *memBucket) NestedReadWriteBucket(key []byte) walletdb.ReadWriteBucket {
	return nil
}

func (b *memBucket) CreateBucket(key []byte) (walletdb.ReadWriteBucket, error) {
	return nil, walletdb.ErrBucketNotFound
}

func (b *memBucket) CreateBucketIfNotExists(key []byte) (walletdb.ReadWriteBucket, error) {
	return nil, walletdb.ErrBucketNotFound
}

func (b *memBucket) DeleteNestedBucket(key []byte) error {
	return walletdb.ErrBucketNotFound
}

func (b *memBucket) ForEach(fn func(k, v []byte) error) error {
	keys := make([]string, 0, len(b.data))
	for k := range b.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := fn([]byte(k), b.data[k]); err != nil {
			return err
		}
	}
	return nil
}

func (b *memBucket) Get(key []byte) []byte {
	v, ok := b.data[string(key)]
	if !ok {
		return nil
	}
	return v
}

func (b *memBucket) Put(key, value []byte) error {
	cp := make([]byte, len(value))
	copy(cp, value)
	b.data[string(key)] = cp
	return nil
}

func (b *memBucket) Delete(key []byte) error {
	delete(b.data, string(key))
	return nil
}

func (b *memBucket) NextSequence() (uint64, error) {
	b.seq++
	return b.seq, nil
}

func (b *memBucket) SetSequence(v uint64) error {
	b.seq = v
	return nil
}

func (b *memBucket) Sequence() uint64 {
	return b.seq
}

// memCursor walks a sorted snapshot of the bucket's keys taken at
// cursor-creation time; it is never used concurrently with a write to
// the same transaction's bucket, so this is safe.
type memCursor struct {
	keys []string
	b    *memBucket
	pos  int
}

func newMemCursor(b *memBucket) *memCursor {
	keys := make([]string, 0, len(b.data))
	for k := range b.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return &memCursor{keys: keys, b: b, pos: -1}
}

func (c *memCursor) First() (key, value []byte) {
	c.pos = 0
	return c.current()
}

func (c *memCursor) Next() (key, value []byte) {
	c.pos++
	return c.current()
}

func (c *memCursor) Seek(seek []byte) (key, value []byte) {
	target := string(seek)
	for i, k := range c.keys {
		if k >= target {
			c.pos = i
			return c.current()
		}
	}
	c.pos = len(c.keys)
	return nil, nil
}

func (c *memCursor) Delete() error {
	if c.pos < 0 || c.pos >= len(c.keys) {
		return nil
	}
	delete(c.b.data, c.keys[c.pos])
	return nil
}

func (c *memCursor) current() (key, value []byte) {
	if c.pos < 0 || c.pos >= len(c.keys) {
		return nil, nil
	}
	k := c.keys[c.pos]
	return []byte(k), c.b.data[k]
}
