// Package accountsdata implements the validator accounts-data cache: a
// deduplicating, versioned, signature-verified store of per-account
// metadata broadcast across a peer network.
package accountsdata

import (
	"encoding/hex"

	"github.com/eth2030/eth2030/crypto"
)

// AccountKey identifies a validator account key within an epoch. It is
// the compressed secp256k1 public key, stored as a fixed-size array so
// it is directly usable as a map key and comparable with ==.
type AccountKey [33]byte

// NewAccountKey derives an AccountKey from a public key.
func NewAccountKey(pub *crypto.PublicKey) AccountKey {
	var k AccountKey
	copy(k[:], pub.Bytes())
	return k
}

// PublicKey reconstructs the secp256k1 public key this AccountKey names.
func (k AccountKey) PublicKey() (*crypto.PublicKey, error) {
	return crypto.ParsePublicKey(k[:])
}

// String returns the hex encoding of the key.
func (k AccountKey) String() string {
	return hex.EncodeToString(k[:])
}
