package cmt

import "errors"

var (
	// ErrInvalidTreeConfig is returned when depth, buffer size or canopy depth are unusable.
	ErrInvalidTreeConfig = errors.New("invalid tree config")

	// ErrIndexOutOfBounds is returned for leaf indices beyond the tree's capacity,
	// or beyond the appended range for replacements.
	ErrIndexOutOfBounds = errors.New("leaf index out of bounds")

	// ErrTreeFull is returned by Append once every leaf slot has been appended.
	ErrTreeFull = errors.New("tree is full")

	// ErrCannotAppendEmptyLeaf is returned when appending the default node.
	ErrCannotAppendEmptyLeaf = errors.New("cannot append the empty leaf")

	// ErrInvalidProof is returned when a proof cannot be reconciled with any
	// committed root. State is never modified.
	ErrInvalidProof = errors.New("invalid proof")

	// ErrStaleProofUnrecoverable is returned when a proof was built against a
	// root that is no longer in the change log, or the same leaf changed since.
	// Callers should rebuild the proof from the current root and retry.
	ErrStaleProofUnrecoverable = errors.New("stale proof cannot be recovered")

	// ErrCorruptAccount is returned when a serialized tree fails validation.
	ErrCorruptAccount = errors.New("corrupt tree account data")
)
