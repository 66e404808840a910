package accountsdata

import (
	"testing"

	"github.com/eth2030/eth2030/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

// fakeClock is a Clock with a fixed, advanceable value, grounded on the
// original source's test_utils fake-clock pattern for deterministic
// timestamps in tests.
type fakeClock struct {
	now uint64
}

func newFakeClock(start uint64) *fakeClock { return &fakeClock{now: start} }

func (c *fakeClock) NowUTC() *uint256.Int {
	return uint256.NewInt(c.now)
}

func (c *fakeClock) advance(n uint64) { c.now += n }

// newTestKey generates a fresh random AccountKey with its backing
// private key, mirroring test_utils.rs's random-key-fixed-epoch helper.
func newTestKey(t *testing.T) (*crypto.PrivateKey, AccountKey) {
	t.Helper()
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	return priv, NewAccountKey(priv.Public())
}

// signTestData builds a signed, valid AccountData at the given version
// for key, using a fixed epoch id and monotonically chosen version, the
// pattern test_utils.rs uses to build fake SignedAccountData.
func signTestData(t *testing.T, priv *crypto.PrivateKey, key AccountKey, version uint64) *SignedAccountData {
	t.Helper()
	d, err := Sign(priv, key, version, AccountData{
		PeerID:    "peer",
		AccountID: "acct",
	})
	require.NoError(t, err)
	return d
}
