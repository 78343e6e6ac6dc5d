package dummydb

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"github.com/trezcool/masomo-fees/core"
	"github.com/trezcool/masomo-fees/core/fee"
	"github.com/trezcool/masomo-fees/core/parent"
)

var errNoSQL = errors.New("dummydb: SQL is not supported")

type (
	// DB is an in-memory store for tests and local runs.
	// Transactions are serialized and rolled back by restoring a snapshot of the tables.
	DB struct {
		txMu sync.Mutex // held for the whole of a transaction, or of a single write outside one
		mu   sync.RWMutex
		data *tables
	}

	tables struct {
		parents     map[int64]parent.Parent
		categories  map[int]fee.Category
		payments    map[int64]fee.Payment
		allocations map[int64]fee.Allocation

		parentSeq     int64
		categorySeq   int
		paymentSeq    int64
		allocationSeq int64
	}

	// Tx is the executor handed to transaction bodies. It only marks calls as transactional.
	Tx struct {
		db *DB
	}
)

var (
	_ core.TxRunner   = (*DB)(nil) // interface compliance check
	_ core.DBExecutor = (*Tx)(nil)
)

func Open() *DB {
	return &DB{data: newTables()}
}

func newTables() *tables {
	return &tables{
		parents:     make(map[int64]parent.Parent),
		categories:  make(map[int]fee.Category),
		payments:    make(map[int64]fee.Payment),
		allocations: make(map[int64]fee.Allocation),
	}
}

func (t *tables) clone() *tables {
	c := *t
	c.parents = make(map[int64]parent.Parent, len(t.parents))
	for k, v := range t.parents {
		c.parents[k] = v
	}
	c.categories = make(map[int]fee.Category, len(t.categories))
	for k, v := range t.categories {
		c.categories[k] = v
	}
	c.payments = make(map[int64]fee.Payment, len(t.payments))
	for k, v := range t.payments {
		c.payments[k] = v
	}
	c.allocations = make(map[int64]fee.Allocation, len(t.allocations))
	for k, v := range t.allocations {
		c.allocations[k] = v
	}
	return &c
}

// Reset empties every table.
func (db *DB) Reset() {
	db.txMu.Lock()
	defer db.txMu.Unlock()
	db.mu.Lock()
	defer db.mu.Unlock()
	db.data = newTables()
}

func (db *DB) InTx(ctx context.Context, fn func(tx core.DBExecutor) error) (err error) {
	db.txMu.Lock()
	defer db.txMu.Unlock()

	db.mu.RLock()
	snapshot := db.data.clone()
	db.mu.RUnlock()

	rollback := func() {
		db.mu.Lock()
		db.data = snapshot
		db.mu.Unlock()
	}
	defer func() {
		if p := recover(); p != nil {
			rollback()
			panic(p)
		}
	}()

	if err = ctx.Err(); err == nil {
		err = fn(&Tx{db: db})
	}
	if err != nil {
		rollback()
	}
	return err
}

// write runs fn with the tables locked for writing,
// serialized with transactions unless the call already belongs to one.
func (db *DB) write(exec []core.DBExecutor, fn func(t *tables) error) error {
	if !inTx(exec) {
		db.txMu.Lock()
		defer db.txMu.Unlock()
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	return fn(db.data)
}

func (db *DB) read(fn func(t *tables) error) error {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return fn(db.data)
}

func inTx(exec []core.DBExecutor) bool {
	if len(exec) == 0 {
		return false
	}
	_, ok := exec[0].(*Tx)
	return ok
}

func (tx *Tx) Exec(string, ...interface{}) (sql.Result, error) { return nil, errNoSQL }
func (tx *Tx) ExecContext(context.Context, string, ...interface{}) (sql.Result, error) {
	return nil, errNoSQL
}
func (tx *Tx) Query(string, ...interface{}) (*sql.Rows, error) { return nil, errNoSQL }
func (tx *Tx) QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error) {
	return nil, errNoSQL
}
func (tx *Tx) QueryRow(string, ...interface{}) *sql.Row                         { return nil }
func (tx *Tx) QueryRowContext(context.Context, string, ...interface{}) *sql.Row { return nil }
