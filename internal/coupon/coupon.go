package coupon

import (
	"context"
)

// CodeSet is an insertion-ordered set of raw codes.
type CodeSet interface {
	// Size returns the number of codes in the set.
	Size() int

	// Codes returns the codes in first-seen order.
	Codes() []string
}

// Loader defines the interface for loading bulk code lists.
type Loader interface {
	// Load reads a newline-separated code list, plain or gzipped, and
	// returns its non-blank entries without duplicates.
	Load(ctx context.Context, path string) (CodeSet, error)
}
