// Package identity derives the opaque per-user key shared by storage, quota
// accounting and the on-chain membership registry.
package identity

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Key returns the 0x-prefixed keccak256 of the decimal Telegram user id.
// The registry contract indexes members by exactly this value.
func Key(userID int64) string {
	return Hash(userID).Hex()
}

// Hash is Key as a 32 byte word.
func Hash(userID int64) common.Hash {
	return crypto.Keccak256Hash([]byte(strconv.FormatInt(userID, 10)))
}

// ParseKey converts a key produced by Key back into a 32 byte word.
func ParseKey(key string) (common.Hash, bool) {
	b, err := hexBytes(key)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, false
	}
	return common.BytesToHash(b), true
}
