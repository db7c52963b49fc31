// Package component provides content-addressed snapshots used for change detection.
package component

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Snapshot is a piece of sink state together with the checksum of its
// canonical JSON encoding. Two snapshots with equal checksums hold equal data.
type Snapshot struct {
	ID       string          `json:"id"`
	Checksum string          `json:"checksum"`
	Data     json.RawMessage `json:"data"`
}

// New serializes data and computes its checksum. Callers must pass data in a
// canonical form (sorted slices); maps are ordered by encoding/json.
func New(id string, data interface{}) (Snapshot, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to marshal %s: %w", id, err)
	}

	return Snapshot{
		ID:       id,
		Checksum: Checksum(jsonData),
		Data:     json.RawMessage(jsonData),
	}, nil
}

// Checksum returns the hex SHA256 of raw.
func Checksum(raw []byte) string {
	hash := sha256.Sum256(raw)
	return hex.EncodeToString(hash[:])
}

// Equal reports whether both snapshots carry the same content.
func (s Snapshot) Equal(other Snapshot) bool {
	return s.Checksum == other.Checksum
}
