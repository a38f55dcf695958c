package coupon

import (
	"fmt"
	"regexp"
	"strings"

	"sgl-admin/internal/model"
)

// SequencePrefix is the prefix of auto-generated promo code names.
const SequencePrefix = "Promo"

var (
	sequenceNamePattern = regexp.MustCompile(`^Promo\d{4}$`)
	customNamePattern   = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]{2,31}$`)
)

// ValidateName checks whether name is an acceptable promo code name.
// A valid name is either:
// - an auto-generated name, "Promo" followed by four digits
// - a custom name of 3 to 32 characters starting with a letter, the rest
//   letters, digits, '_' or '-'
func ValidateName(name string) error {
	if sequenceNamePattern.MatchString(name) || customNamePattern.MatchString(name) {
		return nil
	}
	return model.ErrInvalidPromoName.WithMessage(fmt.Sprintf("Invalid promo code name %q", name))
}

// reservedNames are valid names that collide with fixed routes under
// /api/promo-codes and so cannot be created.
var reservedNames = map[string]struct{}{
	"stream": {},
}

// ValidateNewName is ValidateName plus the reserved-name check applied when a
// custom promo code is created. Lookups keep using ValidateName.
func ValidateNewName(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if IsReservedName(name) {
		return model.ErrInvalidPromoName.WithMessage(fmt.Sprintf("Promo code name %q is reserved", name))
	}
	return nil
}

// IsReservedName reports whether name is reserved. The check ignores case.
func IsReservedName(name string) bool {
	_, ok := reservedNames[strings.ToLower(name)]
	return ok
}

// IsSequenceName reports whether name has the auto-generated Promo#### shape.
func IsSequenceName(name string) bool {
	return sequenceNamePattern.MatchString(name)
}

// FormatSequenceName returns the auto-generated name for sequence number n.
func FormatSequenceName(n int) string {
	return fmt.Sprintf("%s%04d", SequencePrefix, n)
}
