package accountsdata

import "github.com/eth2030/eth2030/crypto"

// LocalSigner is the capability to sign AccountData as this node's own
// validator account, used to publish and, on self-override, re-publish
// this node's own record.
type LocalSigner struct {
	priv *crypto.PrivateKey
	pub  *crypto.PublicKey
	key  AccountKey
}

// NewLocalSigner wraps priv as a LocalSigner.
func NewLocalSigner(priv *crypto.PrivateKey) *LocalSigner {
	pub := priv.Public()
	return &LocalSigner{priv: priv, pub: pub, key: NewAccountKey(pub)}
}

// PublicKey returns the signer's AccountKey.
func (s *LocalSigner) PublicKey() AccountKey {
	return s.key
}

// Sign produces a SignedAccountData for data at version, signed by this key.
func (s *LocalSigner) Sign(version uint64, data AccountData) (*SignedAccountData, error) {
	return Sign(s.priv, s.key, version, data)
}
