package repl

import (
	"crypto/rand"
	"encoding/hex"
)

const sentinelBytes = 20

// NewSentinel returns a prompt token that is astronomically unlikely to show up
// in real output: 20 random bytes, hex encoded, fenced with dashes.
func NewSentinel() string {
	b := make([]byte, sentinelBytes)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand never fails on supported platforms.
		panic(err)
	}
	return "--" + hex.EncodeToString(b) + "--"
}
