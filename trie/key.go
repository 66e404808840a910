package trie

import "github.com/eth2030/eth2030/types"

// Hash is the content hash used throughout the prefetch cache to address
// trie nodes: the Keccak-256 hash of a node's RLP encoding.
type Hash = types.Hash

// Key identifies a trie node to prefetch, independent of any particular
// runtime's key schema. Implementations only need to name a path into a
// trie as raw bytes.
type Key interface {
	ToBytes() []byte
}

// RawKey is a Key backed directly by a byte slice.
type RawKey []byte

// ToBytes implements Key.
func (k RawKey) ToBytes() []byte { return []byte(k) }
