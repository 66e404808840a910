package accountsdata

import (
	"time"

	"github.com/holiman/uint256"
)

// Clock abstracts wall-clock time so tests can control the timestamps
// written into rebuilt AccountData.
type Clock interface {
	NowUTC() *uint256.Int
}

// SystemClock is a Clock backed by the system wall clock, reporting
// Unix nanoseconds.
type SystemClock struct{}

// NowUTC implements Clock.
func (SystemClock) NowUTC() *uint256.Int {
	return uint256.NewInt(uint64(time.Now().UTC().UnixNano()))
}
