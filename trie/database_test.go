package trie

import (
	"testing"

	"github.com/eth2030/eth2030/crypto"
	"github.com/eth2030/eth2030/types"
)

func hashBytes(t *testing.T, enc []byte) []byte {
	t.Helper()
	return crypto.Keccak256(enc)
}

func TestResolvableTrie_EmptyRoot(t *testing.T) {
	rt, err := NewResolvableTrie(types.Hash{}, &mapNodeReader{store: map[types.Hash][]byte{}})
	if err != nil {
		t.Fatalf("NewResolvableTrie error: %v", err)
	}
	if rt.root != nil {
		t.Fatalf("expected nil root for empty hash")
	}
	if rt.Hash() != emptyRoot {
		t.Fatalf("expected emptyRoot hash")
	}
}

func TestResolvableTrie_ResolvesFromReader(t *testing.T) {
	// Build an in-memory trie, hash it, encode every node into a reader
	// store, and confirm a ResolvableTrie can walk it hash-node by
	// hash-node without ever seeing the in-memory node values directly.
	tr := New()
	entries := map[string]string{
		"doe":    "reindeer",
		"dog":    "puppy",
		"do":     "verb",
		"doge":   "coin",
		"horse":  "stallion",
		"abc":    "def",
		"abcdef": "ghij",
	}
	for k, v := range entries {
		if err := tr.Put([]byte(k), []byte(v)); err != nil {
			t.Fatalf("Put(%q) error: %v", k, err)
		}
	}
	root := tr.Hash()

	store := make(map[types.Hash][]byte)
	collectNodes(t, tr.root, store)
	reader := &mapNodeReader{store: store}
	rt, err := NewResolvableTrie(root, reader)
	if err != nil {
		t.Fatalf("NewResolvableTrie error: %v", err)
	}

	for k, want := range entries {
		got, err := rt.Get([]byte(k))
		if err != nil {
			t.Fatalf("Get(%q) error: %v", k, err)
		}
		if string(got) != want {
			t.Fatalf("Get(%q) = %q, want %q", k, got, want)
		}
	}
}

func TestResolvableTrie_NotFound(t *testing.T) {
	tr := New()
	tr.Put([]byte("exists"), []byte("yes"))
	root := tr.Hash()

	store := make(map[types.Hash][]byte)
	collectNodes(t, tr.root, store)

	rt, err := NewResolvableTrie(root, &mapNodeReader{store: store})
	if err != nil {
		t.Fatalf("NewResolvableTrie error: %v", err)
	}

	_, err = rt.Get([]byte("missing"))
	if err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResolvableTrie_MissingNodePropagatesError(t *testing.T) {
	tr := New()
	tr.Put([]byte("a-long-enough-key-to-force-a-hash-node"), []byte("value"))
	root := tr.Hash()

	// Reader has nothing stored: resolving the root hash node must fail.
	_, err := NewResolvableTrie(root, &mapNodeReader{store: map[types.Hash][]byte{}})
	if err != ErrNodeNotFound {
		t.Fatalf("expected ErrNodeNotFound, got %v", err)
	}
}

func TestDecodeNode_LeafNode(t *testing.T) {
	tr := New()
	tr.Put([]byte("abc"), []byte("value"))

	h := newHasher()
	collapsed, _ := h.hashChildren(tr.root)
	enc, err := encodeNode(collapsed)
	if err != nil {
		t.Fatalf("encode error: %v", err)
	}

	decoded, err := decodeNode(nil, enc)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if decoded == nil {
		t.Fatal("decoded node is nil")
	}
}

// collectNodes walks an in-memory trie and stores the RLP encoding of
// every node reachable only by hash, keyed by that hash, as if the trie
// had been committed to a backing store node-by-node.
func collectNodes(t *testing.T, n node, store map[types.Hash][]byte) {
	t.Helper()
	hashAndStore(t, n, store, n != nil)
}

// hashAndStore mirrors hasher.hash/hashChildren/store but, instead of
// caching the computed hash back onto the tree, records every node whose
// encoding is 32 bytes or larger into store. force matches the top-level
// Trie.Hash() behavior of always hashing the root even if small.
func hashAndStore(t *testing.T, n node, store map[types.Hash][]byte, force bool) node {
	t.Helper()
	switch n := n.(type) {
	case nil, valueNode, hashNode:
		return n
	case *shortNode:
		cp := n.copy()
		cp.Key = hexToCompact(n.Key)
		if _, ok := n.Val.(valueNode); !ok {
			cp.Val = hashAndStore(t, n.Val, store, false)
		}
		return storeIfLarge(t, cp, store, force)
	case *fullNode:
		cp := n.copy()
		for i := 0; i < 16; i++ {
			if n.Children[i] != nil {
				cp.Children[i] = hashAndStore(t, n.Children[i], store, false)
			}
		}
		return storeIfLarge(t, cp, store, force)
	default:
		return n
	}
}

func storeIfLarge(t *testing.T, n node, store map[types.Hash][]byte, force bool) node {
	t.Helper()
	enc, err := encodeNode(n)
	if err != nil {
		t.Fatalf("encode error: %v", err)
	}
	if len(enc) < 32 && !force {
		return n
	}
	h := types.BytesToHash(hashBytes(t, enc))
	store[h] = enc
	return hashNode(h[:])
}

type mapNodeReader struct {
	store map[types.Hash][]byte
}

func (r *mapNodeReader) Node(hash types.Hash) ([]byte, error) {
	data, ok := r.store[hash]
	if !ok {
		return nil, ErrNodeNotFound
	}
	return data, nil
}
