package model

import "errors"

// ErrorResponse represents a standardised error response.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	CorrelationID string `json:"correlationId,omitempty"`
}

// Standard error codes for API responses
const (
	ErrCodeInvalidJSON         = "INVALID_JSON"
	ErrCodeMissingCardID       = "MISSING_CARD_ID"
	ErrCodeInvalidCardID       = "INVALID_CARD_ID"
	ErrCodeCardIDConflict      = "CARD_ID_CONFLICT"
	ErrCodeMissingUserID       = "MISSING_USER_ID"
	ErrCodeMissingSource       = "MISSING_SOURCE"
	ErrCodeInvalidSource       = "INVALID_SOURCE"
	ErrCodeTooManyCodes        = "TOO_MANY_CODES"
	ErrCodeInvalidPromoName    = "INVALID_PROMO_NAME"
	ErrCodeInvalidMaxUsage     = "INVALID_MAX_USAGE"
	ErrCodeEmptyCodeList       = "EMPTY_CODE_LIST"
	ErrCodePromoCodeExists     = "PROMO_CODE_EXISTS"
	ErrCodePromoCodeNotFound   = "PROMO_CODE_NOT_FOUND"
	ErrCodeAlreadyRedeemed     = "ALREADY_REDEEMED"
	ErrCodeNoRemainingUses     = "NO_REMAINING_USES"
	ErrCodeInvalidPromoConfig  = "INVALID_PROMO_CONFIG"
	ErrCodeUnauthorised        = "UNAUTHORIZED"
	ErrCodeStoreUnavailable    = "STORE_UNAVAILABLE"
	ErrCodeCodeSourceNotLoaded = "CODE_SOURCE_NOT_LOADED"
	ErrCodeInternalError       = "INTERNAL_ERROR"
)

// ErrorKind classifies domain errors by how callers should react to them.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindValidation
	KindConflict
	KindNotFound
	KindState
	KindAuth
	KindTransient
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindState:
		return "state"
	case KindAuth:
		return "auth"
	case KindTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// Domain errors for business logic
type DomainError struct {
	Kind    ErrorKind
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a DomainError with the same code.
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewDomainError creates a new domain error
func NewDomainError(kind ErrorKind, code, message string) *DomainError {
	return &DomainError{
		Kind:    kind,
		Code:    code,
		Message: message,
	}
}

// Wrap returns a copy of e carrying cause. errors.Is still matches e.
func (e *DomainError) Wrap(cause error) *DomainError {
	return &DomainError{
		Kind:    e.Kind,
		Code:    e.Code,
		Message: e.Message,
		Err:     cause,
	}
}

// WithMessage returns a copy of e with a more specific message.
func (e *DomainError) WithMessage(message string) *DomainError {
	return &DomainError{
		Kind:    e.Kind,
		Code:    e.Code,
		Message: message,
		Err:     e.Err,
	}
}

// KindOf returns the kind of the first DomainError in err's chain.
func KindOf(err error) ErrorKind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUnknown
}

// Common domain errors
var (
	ErrInvalidPromoName   = NewDomainError(KindValidation, ErrCodeInvalidPromoName, "Invalid promo code name")
	ErrMissingCardID      = NewDomainError(KindValidation, ErrCodeMissingCardID, "Card ID is required")
	ErrInvalidCardID      = NewDomainError(KindValidation, ErrCodeInvalidCardID, "Card ID is reserved")
	ErrCardIDConflict     = NewDomainError(KindConflict, ErrCodeCardIDConflict, "Card ID is already used by a promo code")
	ErrMissingUserID      = NewDomainError(KindValidation, ErrCodeMissingUserID, "User ID is required")
	ErrMissingSource      = NewDomainError(KindValidation, ErrCodeMissingSource, "Code source is required")
	ErrInvalidSource      = NewDomainError(KindValidation, ErrCodeInvalidSource, "Code source must be a relative path inside the import directory")
	ErrTooManyCodes       = NewDomainError(KindValidation, ErrCodeTooManyCodes, "Too many codes in one request")
	ErrInvalidMaxUsage    = NewDomainError(KindValidation, ErrCodeInvalidMaxUsage, "Max usage must be at least 1")
	ErrEmptyCodeList      = NewDomainError(KindValidation, ErrCodeEmptyCodeList, "At least one code is required")
	ErrPromoCodeExists    = NewDomainError(KindConflict, ErrCodePromoCodeExists, "Promo code already exists")
	ErrPromoCodeNotFound  = NewDomainError(KindNotFound, ErrCodePromoCodeNotFound, "Promo code not found")
	ErrAlreadyRedeemed    = NewDomainError(KindState, ErrCodeAlreadyRedeemed, "Promo code already redeemed by this user")
	ErrNoRemainingUses    = NewDomainError(KindState, ErrCodeNoRemainingUses, "Promo code has no remaining uses")
	ErrInvalidPromoConfig = NewDomainError(KindState, ErrCodeInvalidPromoConfig, "Invalid promo code configuration")
	ErrUnauthenticated    = NewDomainError(KindAuth, ErrCodeUnauthorised, "Authentication required")
	ErrStoreUnavailable   = NewDomainError(KindTransient, ErrCodeStoreUnavailable, "Document store unavailable")
	ErrCodeSourceFailed   = NewDomainError(KindTransient, ErrCodeCodeSourceNotLoaded, "Failed to load code source")
)
