// Package keyvalue defines the persistence interface the ledger writes its
// committed state through. Implementations live in subpackages; the ledger
// itself never sees a concrete engine.
package keyvalue

import (
	"context"
	"errors"
)

var (
	ErrClosed      = errors.New("store is closed")
	ErrKeyNotFound = errors.New("key not found")
)

// Store is the minimal key-value contract the ledger needs: point reads
// and writes, atomic batches, and prefix iteration for state reload.
type Store interface {
	Read(ctx context.Context, key []byte) ([]byte, error)
	Write(ctx context.Context, key, value []byte) error
	Delete(ctx context.Context, key []byte) error

	Batch(ctx context.Context, ops []BatchOperation) error
	Iterator(ctx context.Context, start, end []byte) (Iterator, error)

	Close() error
}

// Iterator traverses store entries in key order.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Error() error
	Close() error
}

// BatchOperation is a single mutation in an atomic batch.
type BatchOperation struct {
	Type  BatchOpType
	Key   []byte
	Value []byte
}

type BatchOpType int

const (
	BatchPut BatchOpType = iota
	BatchDelete
)
