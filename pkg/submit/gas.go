package submit

import (
	"math/big"
	"time"
)

const (
	// Replacement transactions need at least a 10% gas price bump or nodes
	// reject them as underpriced.
	gasBumpNumerator   = 11
	gasBumpDenominator = 10

	// BlockFinalityThreshold is how many blocks must pass after a
	// transaction mines before its outcome is treated as final.
	BlockFinalityThreshold = 3

	// expiryGracePeriod is how long past order expiry an unmined
	// transaction is still watched. A fill broadcast just before expiry
	// can legitimately mine shortly after it.
	expiryGracePeriod = 2 * time.Minute
)

// ShouldResubmit reports whether the proposed gas price is high enough to
// replace the current one. Integer math keeps the 10% threshold exact:
// proposed*10 >= current*11.
func ShouldResubmit(current, proposed *big.Int) bool {
	if current == nil || proposed == nil {
		return false
	}
	left := new(big.Int).Mul(proposed, big.NewInt(gasBumpDenominator))
	right := new(big.Int).Mul(current, big.NewInt(gasBumpNumerator))
	return left.Cmp(right) >= 0
}

// IsBlockConfirmed reports whether a transaction mined at minedBlock has
// reached finality depth at currentBlock.
func IsBlockConfirmed(currentBlock, minedBlock int64) bool {
	return currentBlock-minedBlock >= BlockFinalityThreshold
}

func watchDeadline(expiryUnix int64) time.Time {
	return time.Unix(expiryUnix, 0).Add(expiryGracePeriod)
}
