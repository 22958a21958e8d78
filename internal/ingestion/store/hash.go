package store

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/zeebo/blake3"

	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/corpus"
)

// listingDomainKey keys the BLAKE3 hash so listing hashes never collide
// with hashes computed for other purposes over the same bytes.
var listingDomainKey = [32]byte{
	'c', 'a', 'r', 's', 'e', 'a', 'r', 'c', 'h', '.', 'l', 'i', 's', 't', 'i', 'n',
	'g', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// ContentHash identifies a listing by source and attributes. Attributes
// are hashed in their canonical JSON form (object keys sorted), so two
// submissions of the same record hash equal regardless of key order.
func ContentHash(source string, attrs corpus.Record) (string, error) {
	canonical, err := json.Marshal(attrs)
	if err != nil {
		return "", fmt.Errorf("encoding attributes: %w", err)
	}
	hasher, err := blake3.NewKeyed(listingDomainKey[:])
	if err != nil {
		return "", fmt.Errorf("initializing hasher: %w", err)
	}
	hasher.Write([]byte(source))
	hasher.Write([]byte{0})
	hasher.Write(canonical)
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
