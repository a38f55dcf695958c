package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// NotifyChannel is the PostgreSQL channel carrying the names of collections
// changed by a committed transaction.
const NotifyChannel = "docstore_changes"

// Schema creates the table backing the postgres store.
const Schema = `
	CREATE TABLE IF NOT EXISTS documents (
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		data JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (collection, id)
	);
`

// PostgreSQL error codes that indicate the transaction lost a race and can be retried.
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgUniqueViolation      = "23505"
)

// postgresStore implements Store on a PostgreSQL table of JSONB documents.
// Transactions run at SERIALIZABLE isolation, which gives optimistic
// read-set conflict detection; conflicting attempts are retried.
type postgresStore struct {
	pool     *pgxpool.Pool
	listener *changeListener
	opts     options
	logger   zerolog.Logger
}

// NewPostgresStore creates a document store on an existing connection pool.
// Call Migrate before first use on a fresh database. Watch feeds share one
// extra connection opened with the pool's connection settings.
func NewPostgresStore(pool *pgxpool.Pool, logger zerolog.Logger, opts ...Option) Store {
	logger = logger.With().Str("component", "docstore-postgres").Logger()
	return &postgresStore{
		pool:     pool,
		listener: newChangeListener(pool.Config().ConnConfig, logger),
		opts:     applyOptions(opts),
		logger:   logger,
	}
}

// Migrate creates the documents table if it does not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create documents table: %w", err)
	}
	return nil
}

func (s *postgresStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	return getDocument(ctx, s.pool, collection, id)
}

func (s *postgresStore) Set(ctx context.Context, collection, id string, data map[string]any, opts ...SetOption) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		return tx.Set(collection, id, data, opts...)
	})
}

func (s *postgresStore) Update(ctx context.Context, collection, id string, updates []Update) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		return tx.Update(collection, id, updates)
	})
}

func (s *postgresStore) Delete(ctx context.Context, collection, id string) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		return tx.Delete(collection, id)
	})
}

func (s *postgresStore) List(ctx context.Context, collection string) ([]Document, error) {
	query := `
		SELECT id, data, created_at, updated_at
		FROM documents
		WHERE collection = $1
		ORDER BY id
	`

	rows, err := s.pool.Query(ctx, query, collection)
	if err != nil {
		s.logger.Error().Err(err).Str("collection", collection).Msg("failed to query documents")
		return nil, fmt.Errorf("failed to list %s: %w", collection, err)
	}
	defer rows.Close()

	docs := []Document{}
	for rows.Next() {
		var (
			doc Document
			raw []byte
		)
		if err := rows.Scan(&doc.ID, &raw, &doc.CreateTime, &doc.UpdateTime); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		if doc.Data, err = decodeData(raw); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating documents: %w", err)
	}

	return docs, nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getDocument(ctx context.Context, q querier, collection, id string) (*Document, error) {
	query := `
		SELECT data, created_at, updated_at
		FROM documents
		WHERE collection = $1 AND id = $2
	`

	doc := Document{ID: id}
	var raw []byte
	err := q.QueryRow(ctx, query, collection, id).Scan(&raw, &doc.CreateTime, &doc.UpdateTime)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get %s/%s: %w", collection, id, err)
	}
	if doc.Data, err = decodeData(raw); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (s *postgresStore) RunTransaction(ctx context.Context, fn TxFunc, opts ...TxOption) error {
	return runWithRetry(ctx, s.opts, opts, isPostgresRetryable, s.logger, func(ctx context.Context) error {
		return s.attempt(ctx, fn)
	})
}

func (s *postgresStore) attempt(ctx context.Context, fn TxFunc) (err error) {
	pgxTx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	// Ensure transaction is rolled back on error
	defer func() {
		if err != nil {
			if rbErr := pgxTx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				s.logger.Error().Err(rbErr).Msg("failed to rollback transaction")
			}
		}
	}()

	tx := &postgresTx{ctx: ctx, tx: pgxTx}
	if err = fn(ctx, tx); err != nil {
		return err
	}

	if err = s.flush(ctx, pgxTx, tx.buf.writes); err != nil {
		return err
	}

	if err = pgxTx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// flush applies buffered writes in order and queues change notifications,
// which PostgreSQL delivers only if the transaction commits.
func (s *postgresStore) flush(ctx context.Context, tx pgx.Tx, writes []write) error {
	if len(writes) == 0 {
		return nil
	}

	upsert := `
		INSERT INTO documents (collection, id, data, created_at, updated_at)
		VALUES (@collection, @id, @data, @now, @now)
		ON CONFLICT (collection, id) DO UPDATE SET
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at
	`
	remove := `DELETE FROM documents WHERE collection = $1 AND id = $2`

	now := time.Now().UTC()
	changed := map[string]struct{}{}
	for _, w := range writes {
		var (
			current map[string]any
			exists  bool
		)
		if w.merge || w.kind == writeUpdate {
			doc, err := getDocument(ctx, tx, w.collection, w.id)
			switch {
			case err == nil:
				current, exists = doc.Data, true
			case errors.Is(err, ErrNotFound):
			default:
				return err
			}
		}

		next, err := w.apply(current, exists, now)
		if err != nil {
			return err
		}

		if next == nil {
			if _, err := tx.Exec(ctx, remove, w.collection, w.id); err != nil {
				return fmt.Errorf("failed to delete %s/%s: %w", w.collection, w.id, err)
			}
		} else {
			raw, err := json.Marshal(next)
			if err != nil {
				return fmt.Errorf("failed to encode %s/%s: %w", w.collection, w.id, err)
			}
			args := pgx.NamedArgs{
				"collection": w.collection,
				"id":         w.id,
				"data":       string(raw),
				"now":        now,
			}
			if _, err := tx.Exec(ctx, upsert, args); err != nil {
				return fmt.Errorf("failed to write %s/%s: %w", w.collection, w.id, err)
			}
		}
		changed[w.collection] = struct{}{}
	}

	for collection := range changed {
		if _, err := tx.Exec(ctx, "SELECT pg_notify($1, $2)", NotifyChannel, collection); err != nil {
			return fmt.Errorf("failed to queue change notification: %w", err)
		}
	}
	return nil
}

func isPostgresRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFailure, pgDeadlockDetected, pgUniqueViolation:
			return true
		}
	}
	return false
}

func (s *postgresStore) Watch(ctx context.Context, collection string, fn func([]Document)) (func(), error) {
	sub, err := s.listener.subscribe(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to listen for changes: %w", err)
	}

	logger := s.logger.With().Str("collection", collection).Logger()
	watchCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	emit := func() {
		docs, err := s.List(watchCtx, collection)
		if err != nil {
			if watchCtx.Err() == nil {
				logger.Error().Err(err).Msg("failed to load collection snapshot")
			}
			return
		}
		fn(docs)
	}

	go func() {
		defer close(done)
		emit()
		for {
			select {
			case <-watchCtx.Done():
				return
			case <-s.listener.stopped:
				return
			case <-sub.notify:
				emit()
			}
		}
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			<-done
			s.listener.unsubscribe(sub)
		})
	}
	return stop, nil
}

// Close stops the change listener. The pool belongs to the caller.
func (s *postgresStore) Close() error {
	s.listener.close()
	return nil
}

// postgresTx reads inside a SERIALIZABLE transaction and buffers writes until commit.
type postgresTx struct {
	ctx context.Context
	tx  pgx.Tx
	buf writeBuffer
}

func (t *postgresTx) Get(collection, id string) (*Document, error) {
	if !t.buf.empty() {
		return nil, ErrReadAfterWrite
	}
	return getDocument(t.ctx, t.tx, collection, id)
}

func (t *postgresTx) Set(collection, id string, data map[string]any, opts ...SetOption) error {
	return t.buf.set(collection, id, data, opts)
}

func (t *postgresTx) Update(collection, id string, updates []Update) error {
	return t.buf.update(collection, id, updates)
}

func (t *postgresTx) Delete(collection, id string) error {
	return t.buf.delete(collection, id)
}
