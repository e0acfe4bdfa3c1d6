package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// GenerateChargeID produces side-ledger charge identifiers. Reservations
// and blocks use UUIDs; charges keep a prefixed shape so they are easy to
// grep in payment-processor dashboards.
func GenerateChargeID() string {
	timestamp := time.Now().Unix()
	randomNum, _ := rand.Int(rand.Reader, big.NewInt(999999))
	return fmt.Sprintf("chg_%d_%06d", timestamp, randomNum.Int64())
}
