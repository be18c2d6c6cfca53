package core

import "crypto/subtle"

// ConstantTimeEqual reports whether a and b hold the same bytes,
// taking time independent of where they first differ. Used to compare
// client-supplied content hashes against stored values at confirm,
// where a timing side-channel would let an attacker learn the hash
// one byte at a time.
func ConstantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}
