// Package kv provides a small key-value store interface with hierarchical
// path-based keys. Keys are string slices (e.g., ["cache", "text", "ab12"])
// encoded internally with a configurable separator (default ':').
//
// The package includes a BadgerDB-backed implementation for restart-survivable
// storage and an in-memory implementation for tests and ephemeral runs.
package kv

import (
	"context"
	"errors"
	"iter"
	"strings"
)

// ErrNotFound is returned when a key does not exist in the store.
var ErrNotFound = errors.New("kv: not found")

// Key is a hierarchical path represented as a slice of string segments.
// Segments must not contain the configured separator character.
type Key []string

// String returns the key as a human-readable string using ':' as separator.
// For display and logging only; storage encoding goes through Options.
func (k Key) String() string {
	return strings.Join(k, ":")
}

// Entry is a key-value pair yielded by List.
type Entry struct {
	Key   Key
	Value []byte
}

// Store is the interface for a key-value store with path-based keys.
type Store interface {
	// Get retrieves the value for a key. Returns ErrNotFound if not present.
	Get(ctx context.Context, key Key) ([]byte, error)

	// Set stores a key-value pair. Overwrites any existing value.
	Set(ctx context.Context, key Key, value []byte) error

	// Delete removes a key. No error if the key does not exist.
	Delete(ctx context.Context, key Key) error

	// List iterates over all entries whose key starts with the given prefix,
	// in lexicographic order of the encoded key.
	List(ctx context.Context, prefix Key) iter.Seq2[Entry, error]

	// Close releases any resources held by the store.
	Close() error
}

// DefaultSeparator is the separator byte used to encode key segments.
const DefaultSeparator byte = ':'

// Options configures store behavior.
type Options struct {
	// Separator is the byte used to join key segments when encoding to
	// storage. Default is ':' if zero.
	Separator byte
}

func (o *Options) sep() byte {
	if o != nil && o.Separator != 0 {
		return o.Separator
	}
	return DefaultSeparator
}

// encode converts a Key to its byte representation using the separator.
func (o *Options) encode(k Key) []byte {
	s := o.sep()
	n := 0
	for i, seg := range k {
		if i > 0 {
			n++
		}
		n += len(seg)
	}
	buf := make([]byte, 0, n)
	for i, seg := range k {
		if i > 0 {
			buf = append(buf, s)
		}
		buf = append(buf, seg...)
	}
	return buf
}

// decode converts a byte representation back to a Key using the separator.
func (o *Options) decode(b []byte) Key {
	parts := strings.Split(string(b), string(o.sep()))
	return Key(parts)
}
