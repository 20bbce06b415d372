// Package memstore is a process-local storage backend for development and
// tests. Tables register with a Store; Store.InTx serialises writers and
// keeps a transaction's writes pending until fn returns nil. Readers outside
// the transaction see committed rows only.
package memstore

import (
	"context"
	"slices"
	"sync"
)

type txKey struct{}

type participant interface {
	commit()
	discard()
}

// Store coordinates transactions across the tables registered with it.
type Store struct {
	txMu sync.Mutex

	mu     sync.Mutex
	tables []participant
}

func New() *Store {
	return &Store{}
}

func (s *Store) register(t participant) {
	s.mu.Lock()
	s.tables = append(s.tables, t)
	s.mu.Unlock()
}

func (s *Store) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*Store)
	return owner == s
}

// InTx runs fn with exclusive write access. Nested calls on the same store
// join the outer transaction. Table writes made through the context passed
// to fn are published when fn returns nil and dropped otherwise.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if s.inTx(ctx) {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	committed := false
	defer func() {
		s.mu.Lock()
		tables := slices.Clone(s.tables)
		s.mu.Unlock()
		for _, t := range tables {
			if committed {
				t.commit()
			} else {
				t.discard()
			}
		}
	}()

	if err = fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		return err
	}
	committed = true
	return nil
}

// Ping always succeeds; it lets the store stand in for a pool in health checks.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Table is a keyed collection of values. Values are stored and returned by
// copy, so callers never share memory with the table. A write outside a
// transaction runs as its own one-statement transaction.
type Table[K comparable, V any] struct {
	store *Store
	clone func(V) V

	mu    sync.RWMutex
	rows  map[K]V
	order []K

	// writes of the open transaction; a nil value marks a delete
	pending map[K]*V
	added   []K
}

// NewTable registers a table with s. clone deep-copies a value; nil means
// values are copied by assignment.
func NewTable[K comparable, V any](s *Store, clone func(V) V) *Table[K, V] {
	if clone == nil {
		clone = func(v V) V { return v }
	}
	t := &Table[K, V]{store: s, rows: make(map[K]V), clone: clone}
	s.register(t)
	return t
}

func (t *Table[K, V]) commit() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, k := range t.added {
		if t.pending[k] != nil {
			t.order = append(t.order, k)
		}
	}
	for k, v := range t.pending {
		if v != nil {
			t.rows[k] = *v
			continue
		}
		if _, ok := t.rows[k]; ok {
			delete(t.rows, k)
			t.order = slices.DeleteFunc(t.order, func(key K) bool { return key == k })
		}
	}
	t.pending, t.added = nil, nil
}

func (t *Table[K, V]) discard() {
	t.mu.Lock()
	t.pending, t.added = nil, nil
	t.mu.Unlock()
}

// lookup returns the value of k visible to ctx. Callers hold t.mu.
func (t *Table[K, V]) lookup(ctx context.Context, k K) (V, bool) {
	if t.store.inTx(ctx) {
		if v, ok := t.pending[k]; ok {
			if v == nil {
				var zero V
				return zero, false
			}
			return *v, true
		}
	}
	v, ok := t.rows[k]
	return v, ok
}

// each calls fn for every row visible to ctx in insertion order until fn
// returns false. Callers hold t.mu.
func (t *Table[K, V]) each(ctx context.Context, fn func(V) bool) {
	for _, k := range t.order {
		if v, ok := t.lookup(ctx, k); ok && !fn(v) {
			return
		}
	}
	if !t.store.inTx(ctx) {
		return
	}
	for _, k := range t.added {
		if v := t.pending[k]; v != nil && !fn(*v) {
			return
		}
	}
}

func (t *Table[K, V]) Get(ctx context.Context, k K) (V, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.lookup(ctx, k)
	if !ok {
		return v, false
	}
	return t.clone(v), true
}

// Put inserts or replaces the value stored under k.
func (t *Table[K, V]) Put(ctx context.Context, k K, v V) {
	if !t.store.inTx(ctx) {
		_ = t.store.InTx(ctx, func(ctx context.Context) error {
			t.Put(ctx, k, v)
			return nil
		})
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending == nil {
		t.pending = make(map[K]*V)
	}
	if _, ok := t.rows[k]; !ok && !slices.Contains(t.added, k) {
		t.added = append(t.added, k)
	}
	c := t.clone(v)
	t.pending[k] = &c
}

func (t *Table[K, V]) Delete(ctx context.Context, k K) {
	if !t.store.inTx(ctx) {
		_ = t.store.InTx(ctx, func(ctx context.Context) error {
			t.Delete(ctx, k)
			return nil
		})
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending == nil {
		t.pending = make(map[K]*V)
	}
	t.pending[k] = nil
}

// Find returns copies of every value matching pred, in insertion order.
func (t *Table[K, V]) Find(ctx context.Context, pred func(V) bool) []V {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []V
	t.each(ctx, func(v V) bool {
		if pred == nil || pred(v) {
			out = append(out, t.clone(v))
		}
		return true
	})
	return out
}

// First returns the first value matching pred in insertion order.
func (t *Table[K, V]) First(ctx context.Context, pred func(V) bool) (V, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var (
		out   V
		found bool
	)
	t.each(ctx, func(v V) bool {
		if pred(v) {
			out, found = t.clone(v), true
			return false
		}
		return true
	})
	return out, found
}

func (t *Table[K, V]) Len(ctx context.Context) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	t.each(ctx, func(V) bool {
		n++
		return true
	})
	return n
}
