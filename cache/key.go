package cache

import (
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

const (
	// KeySeparator joins the namespace and the object id of a cache key.
	KeySeparator = "::"

	// MaxKeyLength is the longest key handed to a backend. Longer keys have
	// their object id replaced by a digest.
	MaxKeyLength = 250

	digestMarker = "#"

	// MaxNamespaceLength is the longest namespace whose digested keys still
	// fit in MaxKeyLength.
	MaxNamespaceLength = MaxKeyLength - len(KeySeparator) - len(digestMarker) - 16
)

const emptyComponentMessage = "must contain at least 1 character"

// BuildKey combines an object id and a namespace into a cache key.
//
// Both parts must be non-empty. The result contains both of them verbatim
// unless it would exceed MaxKeyLength, in which case the object id is
// replaced by a stable 64-bit xxhash digest so the key stays within the
// limits of memcached style backends.
func BuildKey(objectID, namespace string) (string, error) {
	if err := ValidateNamespace(namespace); err != nil {
		return "", err
	}
	if objectID == "" {
		return "", NewInvalidPolicy(CodeEmptyObjectID, "object id "+emptyComponentMessage)
	}

	key := namespace + KeySeparator + objectID
	if len(key) <= MaxKeyLength {
		return key, nil
	}

	return namespace + KeySeparator + digestMarker + strconv.FormatUint(xxhash.Sum64String(objectID), 16), nil
}

// ValidateNamespace reports whether namespace can prefix a cache key: it must
// be non-empty, free of KeySeparator and at most MaxNamespaceLength bytes.
func ValidateNamespace(namespace string) error {
	switch {
	case namespace == "":
		return NewInvalidPolicy(CodeEmptyNamespace, "namespace "+emptyComponentMessage)
	case strings.Contains(namespace, KeySeparator):
		return NewInvalidPolicy(CodeInvalidNamespace, "namespace must not contain "+strconv.Quote(KeySeparator))
	case len(namespace) > MaxNamespaceLength:
		return NewInvalidPolicy(CodeInvalidNamespace,
			"namespace must be at most "+strconv.Itoa(MaxNamespaceLength)+" bytes").
			WithMetadata(map[string]any{"length": len(namespace)})
	}
	return nil
}

// BuildKeys builds one key per object id. It stops at the first error.
func BuildKeys(objectIDs []string, namespace string) ([]string, error) {
	keys := make([]string, len(objectIDs))
	for i, id := range objectIDs {
		key, err := BuildKey(id, namespace)
		if err != nil {
			return nil, err
		}
		keys[i] = key
	}
	return keys, nil
}
