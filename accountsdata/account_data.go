package accountsdata

import (
	"errors"
	"math/big"

	"github.com/eth2030/eth2030/crypto"
	"github.com/eth2030/eth2030/rlp"
	"github.com/eth2030/eth2030/types"
	"github.com/holiman/uint256"
)

// MaxAccountDataSizeBytes bounds the encoded payload carried inside a
// SignedAccountData. Ingesting anything larger is a protocol violation.
const MaxAccountDataSizeBytes = 512

var (
	// ErrDataTooLarge is returned when an incoming payload exceeds
	// MaxAccountDataSizeBytes.
	ErrDataTooLarge = errors.New("accountsdata: payload exceeds size limit")
	// ErrSingleAccountMultipleData is returned when a single ingest batch
	// contains more than one entry for the same account key.
	ErrSingleAccountMultipleData = errors.New("accountsdata: duplicate account key within batch")
	// ErrInvalidSignature is returned when at least one batch element
	// fails signature verification.
	ErrInvalidSignature = errors.New("accountsdata: invalid signature")
)

// AccountData is the unsigned metadata a validator account publishes
// about itself: which peer it currently runs behind, which epoch it
// claims to be active in, and how reachable it is.
type AccountData struct {
	PeerID         string
	EpochID        types.Hash
	AccountID      string
	Timestamp      *uint256.Int
	ProxyAddresses []string
}

// accountDataWire mirrors AccountData with a wire-encodable Timestamp;
// the RLP encoder recognizes *big.Int directly but not uint256.Int.
type accountDataWire struct {
	PeerID         string
	EpochID        types.Hash
	AccountID      string
	Timestamp      *big.Int
	ProxyAddresses []string
}

func (d AccountData) wire() accountDataWire {
	ts := new(big.Int)
	if d.Timestamp != nil {
		ts = d.Timestamp.ToBig()
	}
	return accountDataWire{
		PeerID:         d.PeerID,
		EpochID:        d.EpochID,
		AccountID:      d.AccountID,
		Timestamp:      ts,
		ProxyAddresses: d.ProxyAddresses,
	}
}

// Encode produces the canonical RLP serialization of d.
func (d AccountData) Encode() ([]byte, error) {
	return rlp.EncodeToBytes(d.wire())
}

// DecodeAccountData parses the canonical serialization produced by Encode.
func DecodeAccountData(data []byte) (AccountData, error) {
	var w accountDataWire
	if err := rlp.DecodeBytes(data, &w); err != nil {
		return AccountData{}, err
	}
	ts := new(uint256.Int)
	if w.Timestamp != nil {
		if overflow := ts.SetFromBig(w.Timestamp); overflow {
			return AccountData{}, errors.New("accountsdata: timestamp overflows 256 bits")
		}
	}
	return AccountData{
		PeerID:         w.PeerID,
		EpochID:        w.EpochID,
		AccountID:      w.AccountID,
		Timestamp:      ts,
		ProxyAddresses: w.ProxyAddresses,
	}, nil
}

// SignedAccountData is AccountData plus the versioning and signature
// metadata that make it safe to broadcast and deduplicate across peers.
type SignedAccountData struct {
	AccountKey AccountKey
	Version    uint64
	Payload    []byte // canonical encoding of the signed AccountData
	Signature  []byte
}

// Sign builds a SignedAccountData for data at the given version, signed
// by signer.
func Sign(signer *crypto.PrivateKey, key AccountKey, version uint64, data AccountData) (*SignedAccountData, error) {
	payload, err := data.Encode()
	if err != nil {
		return nil, err
	}
	if len(payload) > MaxAccountDataSizeBytes {
		return nil, ErrDataTooLarge
	}
	hash := crypto.Keccak256Hash(payload, encodeVersion(version))
	sig, err := crypto.Sign(hash[:], signer)
	if err != nil {
		return nil, err
	}
	return &SignedAccountData{
		AccountKey: key,
		Version:    version,
		Payload:    payload,
		Signature:  sig,
	}, nil
}

// Verify reports whether d's signature is valid over its payload and
// version, under d.AccountKey.
func (d *SignedAccountData) Verify() error {
	if len(d.Payload) > MaxAccountDataSizeBytes {
		return ErrDataTooLarge
	}
	pub, err := d.AccountKey.PublicKey()
	if err != nil {
		return err
	}
	hash := crypto.Keccak256Hash(d.Payload, encodeVersion(d.Version))
	if !crypto.Verify(pub, hash[:], d.Signature) {
		return ErrInvalidSignature
	}
	return nil
}

// Data decodes the AccountData carried in d's payload.
func (d *SignedAccountData) Data() (AccountData, error) {
	return DecodeAccountData(d.Payload)
}

func encodeVersion(version uint64) []byte {
	return rlp.EncodeUint64(version)
}
