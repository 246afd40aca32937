package cache

import (
	goerrors "github.com/goliatone/go-errors"
)

// Error categories reported by this module.
var (
	// CategoryInvalidPolicy marks configuration errors: a malformed policy
	// descriptor, an object whose type exposes no usable identity, or a
	// shape mismatch between the keys and the values an operation returned.
	CategoryInvalidPolicy = goerrors.CategoryValidation.Extend("invalid_policy")

	// CategoryCacheUnavailable marks backend I/O failures. The mediators
	// never surface these to callers; they log them and move on.
	CategoryCacheUnavailable = goerrors.CategoryExternal.Extend("cache_unavailable")
)

// Text codes attached to InvalidPolicy errors.
const (
	CodeEmptyNamespace       = "EMPTY_NAMESPACE"
	CodeEmptyObjectID        = "EMPTY_OBJECT_ID"
	CodeInvalidNamespace     = "INVALID_NAMESPACE"
	CodeKeyMethodMissing     = "KEY_METHOD_MISSING"
	CodeKeyMethodAmbiguous   = "KEY_METHOD_AMBIGUOUS"
	CodeKeyMethodSignature   = "KEY_METHOD_SIGNATURE"
	CodeEmptyIdentity        = "EMPTY_IDENTITY"
	CodeInvalidDescriptor    = "INVALID_DESCRIPTOR"
	CodeShapeMismatch        = "SHAPE_MISMATCH"
	CodeKeyIndexOutOfRange   = "KEY_INDEX_OUT_OF_RANGE"
	CodeBackendUnavailable   = "BACKEND_UNAVAILABLE"
	CodeUnsupportedOperation = "UNSUPPORTED_OPERATION"
)

// NewInvalidPolicy returns an InvalidPolicy error with the given text code.
func NewInvalidPolicy(code, message string) *goerrors.Error {
	return goerrors.New(message, CategoryInvalidPolicy).WithTextCode(code)
}

// WrapUnavailable marks err as a backend failure for the named operation.
// It returns nil when err is nil.
func WrapUnavailable(err error, op string) error {
	if err == nil {
		return nil
	}
	return &goerrors.Error{
		Category: CategoryCacheUnavailable,
		TextCode: CodeBackendUnavailable,
		Message:  "cache " + op + " failed",
		Source:   err,
		Severity: goerrors.SeverityError,
	}
}

// IsInvalidPolicy reports whether err, or any error it wraps, is a policy
// configuration error.
func IsInvalidPolicy(err error) bool {
	return goerrors.HasCategory(err, CategoryInvalidPolicy)
}

// IsCacheUnavailable reports whether err carries the backend failure category.
func IsCacheUnavailable(err error) bool {
	return goerrors.HasCategory(err, CategoryCacheUnavailable)
}

// HasCode reports whether err is a categorized error with the given text code.
func HasCode(err error, code string) bool {
	var e *goerrors.Error
	for err != nil {
		if goerrors.As(err, &e) {
			if e.TextCode == code {
				return true
			}
			err = e.Source
			continue
		}
		return false
	}
	return false
}
