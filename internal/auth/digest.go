// Package auth implements the shared-secret checks used by the terminal
// channel and the token cookie guarding the control API.
package auth

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
)

// Digest returns the lowercase hex MD5 of s. Browser clients compute the same
// value, so the algorithm is part of the wire contract.
func Digest(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// DoubleDigest is the terminal credential: Digest applied twice.
func DoubleDigest(s string) string {
	return Digest(Digest(s))
}

// Equal compares two credentials in constant time.
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
