package coupon

import "strings"

// orderedCodeSet implements CodeSet with a map for O(1) lookups and a slice for order.
type orderedCodeSet struct {
	index map[string]struct{}
	codes []string
}

// NewCodeSet creates a new ordered code set.
func NewCodeSet(capacity int) CodeSet {
	return &orderedCodeSet{
		index: make(map[string]struct{}, capacity),
		codes: make([]string, 0, capacity),
	}
}

func (s *orderedCodeSet) contains(code string) bool {
	_, exists := s.index[code]
	return exists
}

// Size returns the number of codes in the set.
func (s *orderedCodeSet) Size() int {
	return len(s.codes)
}

// Codes returns the codes in first-seen order.
func (s *orderedCodeSet) Codes() []string {
	out := make([]string, len(s.codes))
	copy(out, s.codes)
	return out
}

// Add adds a code to the set. It reports whether the code was new.
func (s *orderedCodeSet) Add(code string) bool {
	if s.contains(code) {
		return false
	}
	s.index[code] = struct{}{}
	s.codes = append(s.codes, code)
	return true
}

// NormalizeCodes trims every entry, drops blank ones and removes duplicates,
// keeping the first occurrence.
func NormalizeCodes(codes []string) []string {
	set := NewCodeSet(len(codes)).(*orderedCodeSet)
	for _, code := range codes {
		if code = strings.TrimSpace(code); code != "" {
			set.Add(code)
		}
	}
	return set.codes
}
