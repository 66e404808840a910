package trie

import (
	"errors"

	"github.com/eth2030/eth2030/types"
)

var (
	ErrNodeNotFound = errors.New("trie: node not found in database")
)

// NodeReader retrieves trie nodes by hash. Any component that can answer
// "give me the RLP-encoded node with this hash" satisfies it: a plain
// in-memory map in tests, or the layered shard-cache/staging-area/KVStore
// storage the prefetch cache builds on top of it.
type NodeReader interface {
	// Node retrieves the RLP-encoded trie node with the given hash.
	Node(hash types.Hash) ([]byte, error)
}

// ResolvableTrie is a Trie whose hashNode references are resolved lazily
// through a NodeReader, so a read path can walk a trie that was never
// built in memory, one node at a time.
type ResolvableTrie struct {
	Trie
	reader NodeReader
}

// NewResolvableTrie opens a trie rooted at the given hash, resolved on
// demand through reader. A zero or empty root yields an empty trie with
// no reads against reader.
func NewResolvableTrie(root types.Hash, reader NodeReader) (*ResolvableTrie, error) {
	t := &ResolvableTrie{reader: reader}
	if root == emptyRoot || root == (types.Hash{}) {
		return t, nil
	}

	rootNode, err := t.resolveHash(hashNode(root[:]))
	if err != nil {
		return nil, err
	}
	t.root = rootNode
	return t, nil
}

// Get retrieves a value from the trie, resolving hash nodes as needed. A
// storage failure partway through the walk (a StorageInternalError, a
// StorageInconsistentState, or any other NodeReader error) is returned
// as-is rather than folded into ErrNotFound, so callers can tell "key
// genuinely absent" apart from "storage failed mid-walk" (§6, §7).
func (t *ResolvableTrie) Get(key []byte) ([]byte, error) {
	value, found, err := t.resolveGet(t.root, keybytesToHex(key), 0)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	return value, nil
}

func (t *ResolvableTrie) resolveGet(n node, key []byte, pos int) ([]byte, bool, error) {
	switch n := n.(type) {
	case nil:
		return nil, false, nil
	case valueNode:
		return []byte(n), true, nil
	case *shortNode:
		if len(key)-pos < len(n.Key) || !keysEqual(n.Key, key[pos:pos+len(n.Key)]) {
			return nil, false, nil
		}
		return t.resolveGet(n.Val, key, pos+len(n.Key))
	case *fullNode:
		if pos >= len(key) {
			return t.resolveGet(n.Children[16], key, pos)
		}
		return t.resolveGet(n.Children[key[pos]], key, pos+1)
	case hashNode:
		resolved, err := t.resolveHash(n)
		if err != nil {
			return nil, false, err
		}
		return t.resolveGet(resolved, key, pos)
	default:
		return nil, false, nil
	}
}

// resolveHash loads a node from reader by its hash and decodes it.
func (t *ResolvableTrie) resolveHash(hash hashNode) (node, error) {
	h := types.BytesToHash(hash)
	data, err := t.reader.Node(h)
	if err != nil {
		return nil, err
	}
	return decodeNode(hash, data)
}

// Hash computes the root hash.
func (t *ResolvableTrie) Hash() types.Hash {
	return t.Trie.Hash()
}
