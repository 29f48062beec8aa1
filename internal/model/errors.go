package model

import "errors"

var (
	// ErrInvalidShard signals a configuration conflict on creation: an
	// existing row at the same (tablePrefix, hostname) with a different
	// class or adapter types, or a uniqueness violation at insert time.
	ErrInvalidShard = errors.New("invalid shard")

	// ErrNonExistentShard signals an operation that targeted a shard id,
	// location pair, or tree edge that is not present.
	ErrNonExistentShard = errors.New("non-existent shard")

	// ErrNoForwarding signals a forwarding lookup that found nothing.
	// Distinct from ErrNonExistentShard: the shard may exist while its
	// forwarding does not.
	ErrNoForwarding = errors.New("no such forwarding")

	// ErrMalformedTree signals a cycle in the parent relation. Well-formed
	// data is an invariant the directory assumes; the traversal guard
	// exists so corruption fails loudly instead of looping.
	ErrMalformedTree = errors.New("malformed shard tree")

	// ErrConflict signals a lost race against a concurrent writer, e.g. a
	// duplicate-key insert after an update-then-insert forwarding upsert.
	ErrConflict = errors.New("conflict")
)
