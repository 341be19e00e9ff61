package client

import "errors"

var (
	ErrWrongTree      = errors.New("event belongs to a different tree")
	ErrSequenceGap    = errors.New("event sequence gap")
	ErrOutOfSync      = errors.New("mirror root does not match the tree")
	ErrDuplicateIndex = errors.New("batch updates the same leaf more than once")
)
