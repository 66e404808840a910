package trie

import (
	"errors"
	"fmt"
)

// StorageInternalError wraps an unexpected I/O failure from the backing
// store: the record may or may not exist, the store itself could not
// answer. Callers should treat this as transient and distinct from a
// confirmed-absent record.
type StorageInternalError struct {
	Err error
}

func (e *StorageInternalError) Error() string {
	return fmt.Sprintf("trie: storage internal error: %v", e.Err)
}

func (e *StorageInternalError) Unwrap() error { return e.Err }

// StorageInconsistentState means the backing store answered definitively,
// but the answer violates an invariant the prefetch cache relies on: a
// record genuinely missing where one must exist, or bookkeeping (e.g. the
// staging area's byte budget) caught in a state no valid sequence of
// operations should produce.
type StorageInconsistentState struct {
	Reason string
}

func (e *StorageInconsistentState) Error() string {
	return fmt.Sprintf("trie: storage inconsistent state: %s", e.Reason)
}

// translateBackingErr turns a raw KVStore error into the typed taxonomy
// §7 describes: ErrKVNotFound becomes a StorageInconsistentState naming
// the missing record, anything else becomes a StorageInternalError.
func translateBackingErr(hash Hash, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrKVNotFound) {
		return &StorageInconsistentState{Reason: fmt.Sprintf("trie node missing: %s", hash)}
	}
	return &StorageInternalError{Err: err}
}
