package memorystore

import (
	"fmt"

	"odinwatch/pkg/odin"
)

// Fingerprint identifies a trade event across overlapping polls.
// Two trades with the same id, price, amount and trader are the same event.
type Fingerprint string

// FingerprintOf derives the key "<id>_<price>_<amount>_<user>" from a trade.
func FingerprintOf(t odin.Trade) Fingerprint {
	return Fingerprint(fmt.Sprintf("%s_%s_%s_%s", t.ID, t.Price.String(), t.AmountToken.String(), t.User))
}
