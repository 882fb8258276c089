package id

import (
	"crypto/rand"
	"encoding/hex"
)

// Token returns a 32-character hex session token (128 random bits), opaque
// and unreasonable to guess.
func Token() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return hex.EncodeToString(b)
}
