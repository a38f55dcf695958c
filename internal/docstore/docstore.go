// Package docstore provides a small document database abstraction with
// multi-document optimistic transactions and collection change feeds.
//
// Documents are JSON-shaped maps addressed by (collection, id). Values are
// normalised through encoding/json on write, so numbers read back as
// json.Number and timestamps as RFC 3339 strings regardless of backend.
package docstore

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrReadAfterWrite is returned by Tx.Get once a transaction has staged a write.
	ErrReadAfterWrite = errors.New("transaction reads must precede writes")

	// ErrTooManyRetries is returned when a transaction keeps conflicting.
	ErrTooManyRetries = errors.New("transaction retry budget exhausted")

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("document store closed")
)

// Document is a snapshot of a stored document.
type Document struct {
	ID         string
	Data       map[string]any
	CreateTime time.Time
	UpdateTime time.Time
}

// Update changes a single top-level field. Value may be a plain value or a
// field transform (ArrayUnion, ArrayRemove, ServerTimestamp, Delete).
type Update struct {
	Path  string
	Value any
}

// TxFunc is a transaction body. It may be invoked more than once.
type TxFunc func(ctx context.Context, tx Tx) error

// Store is a document database.
type Store interface {
	// Get returns the document or ErrNotFound.
	Get(ctx context.Context, collection, id string) (*Document, error)

	// Set replaces the document, or merges top-level fields when Merge() is given.
	Set(ctx context.Context, collection, id string, data map[string]any, opts ...SetOption) error

	// Update modifies fields of an existing document. Fails with ErrNotFound when absent.
	Update(ctx context.Context, collection, id string, updates []Update) error

	// Delete removes the document. Deleting an absent document is not an error.
	Delete(ctx context.Context, collection, id string) error

	// List returns all documents of a collection ordered by id.
	List(ctx context.Context, collection string) ([]Document, error)

	// RunTransaction runs fn atomically. Reads performed through tx form the
	// read set; if any of them changed before commit, fn is run again. An error
	// returned by fn aborts the transaction and is returned unchanged.
	RunTransaction(ctx context.Context, fn TxFunc, opts ...TxOption) error

	// Watch calls fn with a full snapshot of the collection, first immediately
	// and then after every committed change. The returned func stops the feed.
	Watch(ctx context.Context, collection string, fn func([]Document)) (func(), error)

	// Close releases resources held by the store.
	Close() error
}

// Tx is the view of the store inside a transaction body.
type Tx interface {
	Get(collection, id string) (*Document, error)
	Set(collection, id string, data map[string]any, opts ...SetOption) error
	Update(collection, id string, updates []Update) error
	Delete(collection, id string) error
}

// SetOption configures a Set call.
type SetOption func(*setOptions)

type setOptions struct {
	merge bool
}

// Merge makes Set merge the given fields into the existing document
// instead of replacing it. The document is created if absent.
func Merge() SetOption {
	return func(o *setOptions) { o.merge = true }
}

func applySetOptions(opts []SetOption) setOptions {
	var o setOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// TxOption configures a RunTransaction call.
type TxOption func(*txOptions)

type txOptions struct {
	maxAttempts int
}

// MaxAttempts overrides the store's retry budget for one transaction.
func MaxAttempts(n int) TxOption {
	return func(o *txOptions) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// Option configures a store backend.
type Option func(*options)

type options struct {
	maxAttempts int
	baseBackoff time.Duration
}

// DefaultMaxAttempts is the default number of times a transaction body runs.
const DefaultMaxAttempts = 5

// WithMaxAttempts sets the default transaction retry budget.
func WithMaxAttempts(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// WithBaseBackoff sets the initial delay between conflicting attempts.
func WithBaseBackoff(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.baseBackoff = d
		}
	}
}

func applyOptions(opts []Option) options {
	o := options{
		maxAttempts: DefaultMaxAttempts,
		baseBackoff: 5 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
