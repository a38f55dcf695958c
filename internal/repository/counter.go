package repository

import (
	"errors"
	"fmt"

	"sgl-admin/internal/docstore"
)

// documentCounter keeps the promo sequence in a single document so that its
// reads and writes join the caller's transaction.
type documentCounter struct {
	collection string
	id         string
}

// NewDocumentCounter returns the counter stored at redeemCodes/_promo_sequence.
func NewDocumentCounter() Counter {
	return &documentCounter{collection: CodesCollection, id: SequenceDocID}
}

// Last returns the last allocated sequence number, zero if none was allocated yet.
func (c *documentCounter) Last(tx docstore.Tx) (int, error) {
	doc, err := tx.Get(c.collection, c.id)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read promo sequence: %w", err)
	}

	raw, present := doc.Data[fieldLastIndex]
	if !present {
		return 0, nil
	}
	n, ok := toInt(raw)
	if !ok || n < 0 {
		return 0, fmt.Errorf("promo sequence holds invalid lastIndex %v", raw)
	}
	return n, nil
}

// Set stages n as the last allocated sequence number.
func (c *documentCounter) Set(tx docstore.Tx, n int) error {
	return tx.Set(c.collection, c.id, map[string]any{fieldLastIndex: n}, docstore.Merge())
}
