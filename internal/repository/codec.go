package repository

import (
	"encoding/json"
	"math"
	"strconv"
	"time"

	"sgl-admin/internal/coupon"
	"sgl-admin/internal/docstore"
	"sgl-admin/internal/model"
)

// Field names of ledger documents. The snake_case spellings are written by
// older dashboard builds and are only ever read.
const (
	fieldType       = "type"
	fieldCardID     = "cardId"
	fieldCodes      = "codes"
	fieldCreatedAt  = "createdAt"
	fieldMaxUsers   = "maxUsers"
	fieldUsedBy     = "usedBy"
	fieldLastIndex  = "lastIndex"
	fieldPromoCodes = "promoCodes"

	legacyMaxUsage  = "max_usage"
	legacyUsedBy    = "used_by"
	legacyCreatedAt = "created_at"
	legacyCardID    = "card_id"
)

// DocumentKind is the classification of a document in the codes collection.
type DocumentKind int

const (
	KindRedeemBucket DocumentKind = iota
	KindPromo
	KindSequence
)

// Classify decides what a codes collection document holds. Documents written
// by this service carry an explicit type; untagged documents are classified
// as promo codes if any of these hold:
// - a usage cap or redeemer list under either spelling
// - the id has the Promo#### shape
// - the codes array contains a Promo#### entry
func Classify(doc docstore.Document) DocumentKind {
	if doc.ID == SequenceDocID {
		return KindSequence
	}

	if t, ok := doc.Data[fieldType].(string); ok {
		switch model.DocumentType(t) {
		case model.DocumentTypePromo:
			return KindPromo
		case model.DocumentTypeRedeem:
			return KindRedeemBucket
		}
	}

	for _, field := range []string{fieldMaxUsers, legacyMaxUsage, fieldUsedBy, legacyUsedBy} {
		if _, ok := doc.Data[field]; ok {
			return KindPromo
		}
	}

	if coupon.IsSequenceName(doc.ID) {
		return KindPromo
	}
	for _, code := range toStrings(doc.Data[fieldCodes]) {
		if coupon.IsSequenceName(code) {
			return KindPromo
		}
	}

	return KindRedeemBucket
}

// decodePromo builds the canonical promo code from either field spelling.
// Redeemers listed under both spellings are merged.
func decodePromo(doc docstore.Document) *model.PromoCode {
	maxUsers, ok := toInt(doc.Data[fieldMaxUsers])
	if !ok {
		maxUsers, _ = toInt(doc.Data[legacyMaxUsage])
	}

	usedBy := unionStrings(toStrings(doc.Data[fieldUsedBy]), toStrings(doc.Data[legacyUsedBy]))

	cardID, _ := doc.Data[fieldCardID].(string)
	if cardID == "" {
		cardID, _ = doc.Data[legacyCardID].(string)
	}

	return &model.PromoCode{
		Code:      doc.ID,
		CardID:    cardID,
		MaxUsers:  maxUsers,
		UsedBy:    usedBy,
		CreatedAt: documentCreatedAt(doc),
	}
}

func decodeBucket(doc docstore.Document) *model.RedeemCode {
	cardID, _ := doc.Data[fieldCardID].(string)
	if cardID == "" {
		cardID = doc.ID
	}
	return &model.RedeemCode{
		CardID:    cardID,
		Codes:     toStrings(doc.Data[fieldCodes]),
		CreatedAt: documentCreatedAt(doc),
	}
}

func documentCreatedAt(doc docstore.Document) time.Time {
	if t, ok := toTime(doc.Data[fieldCreatedAt]); ok {
		return t
	}
	if t, ok := toTime(doc.Data[legacyCreatedAt]); ok {
		return t
	}
	return doc.CreateTime
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i), true
		}
		if f, err := n.Float64(); err == nil && f == math.Trunc(f) {
			return int(f), true
		}
	case string:
		if i, err := strconv.Atoi(n); err == nil {
			return i, true
		}
	}
	return 0, false
}

func toStrings(v any) []string {
	out := []string{}
	switch s := v.(type) {
	case []string:
		out = append(out, s...)
	case []any:
		for _, e := range s {
			if str, ok := e.(string); ok {
				out = append(out, str)
			}
		}
	}
	return out
}

// toTime accepts RFC 3339 strings and exported Firestore timestamps
// ({"seconds": ..., "nanoseconds": ...} or the underscored variant).
func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	case map[string]any:
		secs, ok := toInt(t["seconds"])
		if !ok {
			if secs, ok = toInt(t["_seconds"]); !ok {
				return time.Time{}, false
			}
		}
		nanos, ok := toInt(t["nanoseconds"])
		if !ok {
			nanos, _ = toInt(t["_nanoseconds"])
		}
		return time.Unix(int64(secs), int64(nanos)).UTC(), true
	}
	return time.Time{}, false
}

func unionStrings(lists ...[]string) []string {
	seen := map[string]struct{}{}
	out := []string{}
	for _, list := range lists {
		for _, s := range list {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

func toAnySlice(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
