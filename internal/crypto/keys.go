package crypto

import (
	"errors"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// KeyPair holds a secp256k1 keypair and the address it controls.
type KeyPair struct {
	priv *secp256k1.PrivateKey
	pub  *secp256k1.PublicKey
}

// GenerateKeyPair creates a fresh random keypair.
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	return &KeyPair{priv: priv, pub: priv.PubKey()}, nil
}

// KeyPairFromSeed derives a deterministic keypair from seed material.
// Used by tests and demo data generation; not for production wallets.
func KeyPairFromSeed(seed []byte) *KeyPair {
	digest := Sha256(seed)
	priv := secp256k1.PrivKeyFromBytes(digest[:])
	return &KeyPair{priv: priv, pub: priv.PubKey()}
}

// PubKeyBytes returns the compressed public key serialization.
func (k *KeyPair) PubKeyBytes() []byte {
	return k.pub.SerializeCompressed()
}

// Address returns the base58check address controlled by this keypair.
func (k *KeyPair) Address() string {
	return EncodeAddress(AccountIDFromPubKey(k.PubKeyBytes()))
}

// Sign produces a DER-encoded ECDSA signature over the given digest.
func (k *KeyPair) Sign(digest [32]byte) []byte {
	sig := ecdsa.Sign(k.priv, digest[:])
	return sig.Serialize()
}

// VerifySignature checks a DER-encoded signature over digest against a
// compressed public key.
func VerifySignature(pubKey []byte, digest [32]byte, signature []byte) bool {
	pk, err := secp256k1.ParsePubKey(pubKey)
	if err != nil {
		return false
	}
	sig, err := ecdsa.ParseDERSignature(signature)
	if err != nil {
		return false
	}
	return sig.Verify(digest[:], pk)
}

// VerifySigner checks that signature over digest was produced by the key
// controlling addr.
func VerifySigner(addr string, pubKey []byte, digest [32]byte, signature []byte) error {
	id, err := DecodeAddress(addr)
	if err != nil {
		return err
	}
	if AccountIDFromPubKey(pubKey) != id {
		return errors.New("signing key does not control account")
	}
	if !VerifySignature(pubKey, digest, signature) {
		return errors.New("signature verification failed")
	}
	return nil
}
