package crypto

import (
	"errors"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

var (
	ErrInvalidHashLen      = errors.New("crypto: hash must be 32 bytes")
	ErrInvalidSignatureLen = errors.New("crypto: signature must be 65 bytes")
	ErrInvalidPubkey       = errors.New("crypto: invalid public key encoding")
)

// PrivateKey is a secp256k1 signing key.
type PrivateKey struct {
	key *secp256k1.PrivateKey
}

// PublicKey is a secp256k1 verification key.
type PublicKey struct {
	key *secp256k1.PublicKey
}

// GenerateKey creates a new random secp256k1 private key.
func GenerateKey() (*PrivateKey, error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key: key}, nil
}

// Public returns the public key corresponding to priv.
func (priv *PrivateKey) Public() *PublicKey {
	return &PublicKey{key: priv.key.PubKey()}
}

// Bytes returns the raw 32-byte scalar of the private key.
func (priv *PrivateKey) Bytes() []byte {
	return priv.key.Serialize()
}

// Bytes returns the 33-byte compressed encoding of the public key.
func (pub *PublicKey) Bytes() []byte {
	return pub.key.SerializeCompressed()
}

// Equal reports whether two public keys are the same point.
func (pub *PublicKey) Equal(other *PublicKey) bool {
	if pub == nil || other == nil {
		return pub == other
	}
	return pub.key.IsEqual(other.key)
}

// ParsePublicKey decodes a compressed or uncompressed secp256k1 public key.
func ParsePublicKey(data []byte) (*PublicKey, error) {
	key, err := secp256k1.ParsePubKey(data)
	if err != nil {
		return nil, ErrInvalidPubkey
	}
	return &PublicKey{key: key}, nil
}

// Sign produces a 65-byte [R(32) || S(32) || V(1)] recoverable signature
// over hash. V is in {0,1}, matching the layout the rest of the corpus
// uses for recoverable signatures.
func Sign(hash []byte, priv *PrivateKey) ([]byte, error) {
	if len(hash) != 32 {
		return nil, ErrInvalidHashLen
	}
	compact := ecdsa.SignCompact(priv.key, hash, false)
	// compact is [recoveryID+27, R(32), S(32)]; re-pack as [R || S || V].
	sig := make([]byte, 65)
	copy(sig[0:32], compact[1:33])
	copy(sig[32:64], compact[33:65])
	sig[64] = (compact[0] - 27) & 0x03
	return sig, nil
}

// Verify reports whether sig (65-byte [R || S || V]) is a valid signature
// of hash under pub. The recovery byte V is not used for verification;
// it matters only for key recovery, which this package does not need.
func Verify(pub *PublicKey, hash, sig []byte) bool {
	if len(hash) != 32 || len(sig) != 65 {
		return false
	}
	var r, s secp256k1.ModNScalar
	if overflow := r.SetByteSlice(sig[0:32]); overflow {
		return false
	}
	if overflow := s.SetByteSlice(sig[32:64]); overflow {
		return false
	}
	signature := ecdsa.NewSignature(&r, &s)
	return signature.Verify(hash, pub.key)
}
