// Package crypto provides the hashing and key primitives shared by the
// marketplace core: the canonical SHA-256 digests used for economics
// fingerprints and group IDs, account address derivation, and secp256k1
// keypairs for leg signing.
package crypto

import (
	"crypto/sha256"

	"github.com/decred/dcrd/crypto/ripemd160"
)

// Sha256 hashes the concatenation of all inputs.
func Sha256(inputs ...[]byte) [32]byte {
	h := sha256.New()
	for _, in := range inputs {
		h.Write(in)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Sha256Joined hashes the inputs joined by the given separator byte.
// This is the canonical form used for the economics configuration digest:
// field boundaries are part of the hashed material, so shifting bytes
// between adjacent fields changes the digest.
func Sha256Joined(sep byte, inputs ...[]byte) [32]byte {
	h := sha256.New()
	for i, in := range inputs {
		if i > 0 {
			h.Write([]byte{sep})
		}
		h.Write(in)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// AccountIDFromPubKey derives a 20-byte account ID from a serialized
// public key: RIPEMD160(SHA256(pubkey)).
func AccountIDFromPubKey(pubKey []byte) [20]byte {
	sha := sha256.Sum256(pubKey)
	r := ripemd160.New()
	r.Write(sha[:])
	var id [20]byte
	copy(id[:], r.Sum(nil))
	return id
}

// AccountIDFromData derives a 20-byte account ID from arbitrary program
// data. Used for program-controlled accounts (the escrow authority), whose
// "identity" is the hash of the logic that governs them rather than a key.
func AccountIDFromData(data ...[]byte) [20]byte {
	sha := Sha256(data...)
	r := ripemd160.New()
	r.Write(sha[:])
	var id [20]byte
	copy(id[:], r.Sum(nil))
	return id
}
