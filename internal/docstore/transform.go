package docstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

type arrayUnion struct{ elems []any }

type arrayRemove struct{ elems []any }

type serverTimestamp struct{}

type deleteField struct{}

// ArrayUnion adds each element not already present in the array field.
// A missing or non-array field is treated as empty.
func ArrayUnion(elems ...any) any { return arrayUnion{elems: elems} }

// ArrayRemove removes every occurrence of each element from the array field.
func ArrayRemove(elems ...any) any { return arrayRemove{elems: elems} }

// ServerTimestamp is replaced by the commit time.
var ServerTimestamp any = serverTimestamp{}

// Delete removes the field.
var Delete any = deleteField{}

type writeKind int

const (
	writeSet writeKind = iota
	writeUpdate
	writeDelete
)

type write struct {
	kind       writeKind
	collection string
	id         string
	data       map[string]any
	merge      bool
	updates    []Update
}

// writeBuffer collects the writes of one transaction attempt.
type writeBuffer struct {
	writes []write
}

func (b *writeBuffer) empty() bool { return len(b.writes) == 0 }

func (b *writeBuffer) set(collection, id string, data map[string]any, opts []SetOption) error {
	if err := checkKey(collection, id); err != nil {
		return err
	}
	o := applySetOptions(opts)
	b.writes = append(b.writes, write{kind: writeSet, collection: collection, id: id, data: data, merge: o.merge})
	return nil
}

func (b *writeBuffer) update(collection, id string, updates []Update) error {
	if err := checkKey(collection, id); err != nil {
		return err
	}
	for _, u := range updates {
		if u.Path == "" {
			return fmt.Errorf("update of %s/%s: empty field path", collection, id)
		}
	}
	b.writes = append(b.writes, write{kind: writeUpdate, collection: collection, id: id, updates: updates})
	return nil
}

func (b *writeBuffer) delete(collection, id string) error {
	if err := checkKey(collection, id); err != nil {
		return err
	}
	b.writes = append(b.writes, write{kind: writeDelete, collection: collection, id: id})
	return nil
}

func checkKey(collection, id string) error {
	if collection == "" || id == "" {
		return fmt.Errorf("invalid document key %q/%q", collection, id)
	}
	return nil
}

// apply computes the next state of a document. It returns nil data when the
// write deletes the document.
func (w write) apply(current map[string]any, exists bool, now time.Time) (map[string]any, error) {
	switch w.kind {
	case writeDelete:
		return nil, nil

	case writeSet:
		next := map[string]any{}
		if w.merge && exists {
			next = cloneMap(current)
		}
		for k, v := range w.data {
			if err := applyField(next, k, v, now); err != nil {
				return nil, err
			}
		}
		return normalizeMap(next)

	case writeUpdate:
		if !exists {
			return nil, fmt.Errorf("update %s/%s: %w", w.collection, w.id, ErrNotFound)
		}
		next := cloneMap(current)
		for _, u := range w.updates {
			if err := applyField(next, u.Path, u.Value, now); err != nil {
				return nil, err
			}
		}
		return normalizeMap(next)
	}
	return nil, fmt.Errorf("unknown write kind %d", w.kind)
}

func applyField(doc map[string]any, key string, value any, now time.Time) error {
	switch v := value.(type) {
	case deleteField:
		delete(doc, key)
	case serverTimestamp:
		doc[key] = now.UTC()
	case arrayUnion:
		elems, err := normalizeSlice(v.elems)
		if err != nil {
			return err
		}
		existing := asSlice(doc[key])
		seen := make(map[string]struct{}, len(existing)+len(elems))
		out := make([]any, 0, len(existing)+len(elems))
		for _, e := range existing {
			seen[valueKey(e)] = struct{}{}
			out = append(out, e)
		}
		for _, e := range elems {
			k := valueKey(e)
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, e)
		}
		doc[key] = out
	case arrayRemove:
		elems, err := normalizeSlice(v.elems)
		if err != nil {
			return err
		}
		drop := make(map[string]struct{}, len(elems))
		for _, e := range elems {
			drop[valueKey(e)] = struct{}{}
		}
		out := []any{}
		for _, e := range asSlice(doc[key]) {
			if _, ok := drop[valueKey(e)]; !ok {
				out = append(out, e)
			}
		}
		doc[key] = out
	default:
		doc[key] = value
	}
	return nil
}

func asSlice(v any) []any {
	if s, ok := v.([]any); ok {
		return s
	}
	return nil
}

func valueKey(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%#v", v)
	}
	return string(b)
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// normalizeMap round-trips m through JSON so that stored values have the
// same shape in every backend.
func normalizeMap(m map[string]any) (map[string]any, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return decodeData(b)
}

func normalizeSlice(s []any) ([]any, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode array elements: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var out []any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode array elements: %w", err)
	}
	return out, nil
}

func decodeData(b []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	out := map[string]any{}
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return out, nil
}

// copyData returns a deep copy of normalised document data.
func copyData(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return copyData(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = copyValue(e)
		}
		return out
	default:
		return v
	}
}
