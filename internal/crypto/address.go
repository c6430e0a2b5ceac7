package crypto

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"math/big"
)

// Addresses are base58check-encoded 20-byte account IDs with a fixed
// version byte, so every address renders with a 'T' prefix.
const addressVersion byte = 0x41

const alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

var (
	ErrInvalidAddress  = errors.New("invalid address")
	ErrInvalidChecksum = errors.New("invalid address checksum")
)

// EncodeAddress encodes a 20-byte account ID as a versioned base58check string.
func EncodeAddress(accountID [20]byte) string {
	payload := make([]byte, 0, 25)
	payload = append(payload, addressVersion)
	payload = append(payload, accountID[:]...)
	check := checksum(payload)
	payload = append(payload, check[:]...)
	return base58Encode(payload)
}

// DecodeAddress decodes a base58check address back to its 20-byte account ID.
func DecodeAddress(addr string) ([20]byte, error) {
	var id [20]byte
	payload, err := base58Decode(addr)
	if err != nil {
		return id, err
	}
	if len(payload) != 25 || payload[0] != addressVersion {
		return id, ErrInvalidAddress
	}
	body, check := payload[:21], payload[21:]
	expected := checksum(body)
	if !bytes.Equal(check, expected[:]) {
		return id, ErrInvalidChecksum
	}
	copy(id[:], body[1:])
	return id, nil
}

// IsValidAddress reports whether addr decodes to a well-formed account ID.
func IsValidAddress(addr string) bool {
	_, err := DecodeAddress(addr)
	return err == nil
}

// checksum returns the first 4 bytes of a double SHA-256 over the payload.
func checksum(payload []byte) [4]byte {
	first := sha256.Sum256(payload)
	second := sha256.Sum256(first[:])
	var out [4]byte
	copy(out[:], second[:4])
	return out
}

func base58Encode(input []byte) string {
	x := new(big.Int).SetBytes(input)
	base := big.NewInt(58)
	zero := big.NewInt(0)
	mod := new(big.Int)

	var encoded []byte
	for x.Cmp(zero) > 0 {
		x.DivMod(x, base, mod)
		encoded = append(encoded, alphabet[mod.Int64()])
	}

	// Leading zero bytes become leading '1' characters.
	for _, b := range input {
		if b != 0 {
			break
		}
		encoded = append(encoded, alphabet[0])
	}

	for i, j := 0, len(encoded)-1; i < j; i, j = i+1, j-1 {
		encoded[i], encoded[j] = encoded[j], encoded[i]
	}
	return string(encoded)
}

func base58Decode(input string) ([]byte, error) {
	x := big.NewInt(0)
	base := big.NewInt(58)
	for _, c := range input {
		idx := bytes.IndexByte([]byte(alphabet), byte(c))
		if idx < 0 {
			return nil, ErrInvalidAddress
		}
		x.Mul(x, base)
		x.Add(x, big.NewInt(int64(idx)))
	}

	decoded := x.Bytes()

	// Restore leading zero bytes from leading '1' characters.
	leading := 0
	for _, c := range input {
		if byte(c) != alphabet[0] {
			break
		}
		leading++
	}

	out := make([]byte, leading+len(decoded))
	copy(out[leading:], decoded)
	return out, nil
}
