package docstore

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type docKey struct {
	collection string
	id         string
}

type memDoc struct {
	data    map[string]any
	version uint64
	created time.Time
	updated time.Time
}

// memoryStore implements Store in process memory. Each document carries a
// version; a transaction commits only if every document it read still has
// the version it observed.
type memoryStore struct {
	mu       sync.RWMutex
	docs     map[docKey]*memDoc
	version  uint64
	closed   bool
	watchers map[string]map[uint64]chan struct{}
	nextID   uint64

	opts   options
	now    func() time.Time
	logger zerolog.Logger
}

// NewMemoryStore creates an empty in-memory document store.
func NewMemoryStore(logger zerolog.Logger, opts ...Option) Store {
	return &memoryStore{
		docs:     make(map[docKey]*memDoc),
		watchers: make(map[string]map[uint64]chan struct{}),
		opts:     applyOptions(opts),
		now:      time.Now,
		logger:   logger.With().Str("component", "docstore-memory").Logger(),
	}
}

func (s *memoryStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	doc, _ := s.snapshotLocked(docKey{collection, id})
	if doc == nil {
		return nil, ErrNotFound
	}
	return doc, nil
}

func (s *memoryStore) Set(ctx context.Context, collection, id string, data map[string]any, opts ...SetOption) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		return tx.Set(collection, id, data, opts...)
	})
}

func (s *memoryStore) Update(ctx context.Context, collection, id string, updates []Update) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		return tx.Update(collection, id, updates)
	})
}

func (s *memoryStore) Delete(ctx context.Context, collection, id string) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		return tx.Delete(collection, id)
	})
}

func (s *memoryStore) List(ctx context.Context, collection string) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	return s.listLocked(collection), nil
}

func (s *memoryStore) listLocked(collection string) []Document {
	docs := []Document{}
	for key := range s.docs {
		if key.collection != collection {
			continue
		}
		doc, _ := s.snapshotLocked(key)
		docs = append(docs, *doc)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs
}

// snapshotLocked returns a copy of the document and its version. The
// version of an absent document is zero.
func (s *memoryStore) snapshotLocked(key docKey) (*Document, uint64) {
	d, ok := s.docs[key]
	if !ok {
		return nil, 0
	}
	return &Document{
		ID:         key.id,
		Data:       copyData(d.data),
		CreateTime: d.created,
		UpdateTime: d.updated,
	}, d.version
}

func (s *memoryStore) RunTransaction(ctx context.Context, fn TxFunc, opts ...TxOption) error {
	return runWithRetry(ctx, s.opts, opts, isMemoryRetryable, s.logger, func(ctx context.Context) error {
		tx := &memoryTx{store: s, reads: make(map[docKey]uint64)}
		if err := fn(ctx, tx); err != nil {
			return err
		}
		return s.commit(tx)
	})
}

func isMemoryRetryable(err error) bool {
	return errors.Is(err, errConflict)
}

func (s *memoryStore) commit(tx *memoryTx) error {
	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}

	for key, seen := range tx.reads {
		var current uint64
		if d, ok := s.docs[key]; ok {
			current = d.version
		}
		if current != seen {
			s.mu.Unlock()
			return errConflict
		}
	}

	if tx.buf.empty() {
		s.mu.Unlock()
		return nil
	}

	// Stage every write before touching the live map so that a failing write
	// leaves no trace.
	now := s.now()
	staged := make(map[docKey]*memDoc)
	order := []docKey{}
	for _, w := range tx.buf.writes {
		key := docKey{w.collection, w.id}
		cur, seen := staged[key]
		if !seen {
			cur = s.docs[key]
			order = append(order, key)
		}

		var data map[string]any
		exists := cur != nil
		if exists {
			data = cur.data
		}
		next, err := w.apply(data, exists, now)
		if err != nil {
			s.mu.Unlock()
			return err
		}

		if next == nil {
			staged[key] = nil
			continue
		}
		created := now
		if exists {
			created = cur.created
		}
		staged[key] = &memDoc{data: next, created: created, updated: now}
	}

	s.version++
	changed := map[string]struct{}{}
	for _, key := range order {
		d := staged[key]
		if d == nil {
			delete(s.docs, key)
		} else {
			d.version = s.version
			s.docs[key] = d
		}
		changed[key.collection] = struct{}{}
	}

	for collection := range changed {
		for _, ch := range s.watchers[collection] {
			select {
			case ch <- struct{}{}:
			default:
			}
		}
	}
	s.mu.Unlock()

	return nil
}

func (s *memoryStore) Watch(ctx context.Context, collection string, fn func([]Document)) (func(), error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	s.nextID++
	id := s.nextID
	signal := make(chan struct{}, 1)
	signal <- struct{}{}
	if s.watchers[collection] == nil {
		s.watchers[collection] = make(map[uint64]chan struct{})
	}
	s.watchers[collection][id] = signal
	s.mu.Unlock()

	watchCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			select {
			case <-watchCtx.Done():
				return
			case <-signal:
			}

			s.mu.RLock()
			if s.closed {
				s.mu.RUnlock()
				return
			}
			docs := s.listLocked(collection)
			s.mu.RUnlock()

			fn(docs)
		}
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			<-done
			s.mu.Lock()
			delete(s.watchers[collection], id)
			s.mu.Unlock()
		})
	}
	return stop, nil
}

func (s *memoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for _, ws := range s.watchers {
		for _, ch := range ws {
			select {
			case ch <- struct{}{}:
			default:
			}
		}
	}
	return nil
}

// memoryTx records the version of each document it reads and buffers writes
// until commit.
type memoryTx struct {
	store *memoryStore
	reads map[docKey]uint64
	buf   writeBuffer
}

func (t *memoryTx) Get(collection, id string) (*Document, error) {
	if !t.buf.empty() {
		return nil, ErrReadAfterWrite
	}

	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	if t.store.closed {
		return nil, ErrClosed
	}
	key := docKey{collection, id}
	doc, version := t.store.snapshotLocked(key)
	if prev, ok := t.reads[key]; ok && prev != version {
		return nil, errConflict
	}
	t.reads[key] = version
	if doc == nil {
		return nil, ErrNotFound
	}
	return doc, nil
}

func (t *memoryTx) Set(collection, id string, data map[string]any, opts ...SetOption) error {
	return t.buf.set(collection, id, data, opts)
}

func (t *memoryTx) Update(collection, id string, updates []Update) error {
	return t.buf.update(collection, id, updates)
}

func (t *memoryTx) Delete(collection, id string) error {
	return t.buf.delete(collection, id)
}
