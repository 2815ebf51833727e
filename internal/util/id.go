package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns a 32-char random hex id, prefixed like "brd_<hex>" when a
// prefix is given so ids are recognizable in logs and payloads.
func NewID(prefix string) string {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		panic("util: rand.Read failed: " + err.Error())
	}
	id := hex.EncodeToString(raw)
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}
