// Package economics defines the immutable sale terms embedded in every
// ticket asset at mint time, and the canonical digest both the marketplace
// program and the escrow authority use to detect parameter tampering.
package economics

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/tokility/tokilityd/internal/crypto"
)

// NumConfigArgs is the number of positional configuration arguments every
// marketplace call carries after the method name.
const NumConfigArgs = 8

var (
	ErrMissingCreator   = errors.New("creator address is required")
	ErrInvalidCreator   = errors.New("creator address is malformed")
	ErrZeroPrimaryPrice = errors.New("primary price must be positive")
	ErrCapBelowFee      = errors.New("resale cap must cover the creator fee")
	ErrBadArgCount      = errors.New("wrong number of configuration arguments")
	ErrBadArgEncoding   = errors.New("malformed configuration argument")
)

// Configuration is the complete economic term sheet of one ticket asset.
// It is written once at mint time; every later marketplace call re-supplies
// these fields and proves them against the asset's embedded digest.
type Configuration struct {
	PrimaryPrice   uint64 `json:"primary_price" mapstructure:"primary_price"`
	PlatformFee    uint64 `json:"platform_fee" mapstructure:"platform_fee"`
	ResaleCap      uint64 `json:"resale_cap" mapstructure:"resale_cap"`
	CreatorFee     uint64 `json:"creator_fee" mapstructure:"creator_fee"`
	ResaleAllowed  bool   `json:"resale_allowed" mapstructure:"resale_allowed"`
	ResaleDeadline int64  `json:"resale_deadline" mapstructure:"resale_deadline"`
	GiftingAllowed bool   `json:"gifting_allowed" mapstructure:"gifting_allowed"`
	CreatorAddress string `json:"creator_address" mapstructure:"creator_address"`
}

// Validate checks structural soundness of the term sheet before minting.
func (c *Configuration) Validate() error {
	if c.CreatorAddress == "" {
		return ErrMissingCreator
	}
	if !crypto.IsValidAddress(c.CreatorAddress) {
		return ErrInvalidCreator
	}
	if c.PrimaryPrice == 0 {
		return ErrZeroPrimaryPrice
	}
	if c.ResaleAllowed && c.ResaleCap < c.CreatorFee {
		return ErrCapBelowFee
	}
	return nil
}

// CheckAskPrice enforces the resale price ceiling: the creator fee plus the
// requested ask must not exceed the resale cap.
func (c *Configuration) CheckAskPrice(ask uint64) error {
	if ask > c.ResaleCap || c.CreatorFee > c.ResaleCap-ask {
		return fmt.Errorf("ask %d plus creator fee %d exceeds resale cap %d",
			ask, c.CreatorFee, c.ResaleCap)
	}
	return nil
}

// Args returns the 8 positional byte-string arguments in canonical order:
// numeric fields as 8-byte big-endian, booleans as 0/1 in the same width,
// and the creator's raw 20-byte account ID last.
func (c *Configuration) Args() ([][]byte, error) {
	creator, err := crypto.DecodeAddress(c.CreatorAddress)
	if err != nil {
		return nil, err
	}
	return [][]byte{
		itob(c.PrimaryPrice),
		itob(c.PlatformFee),
		itob(c.ResaleCap),
		itob(c.CreatorFee),
		itob(btoi(c.ResaleAllowed)),
		itob(uint64(c.ResaleDeadline)),
		itob(btoi(c.GiftingAllowed)),
		creator[:],
	}, nil
}

// FromArgs parses the 8 positional configuration arguments back into a
// Configuration. The inverse of Args.
func FromArgs(args [][]byte) (*Configuration, error) {
	if len(args) != NumConfigArgs {
		return nil, ErrBadArgCount
	}
	for _, a := range args[:7] {
		if len(a) != 8 {
			return nil, ErrBadArgEncoding
		}
	}
	if len(args[7]) != 20 {
		return nil, ErrBadArgEncoding
	}
	var creator [20]byte
	copy(creator[:], args[7])
	return &Configuration{
		PrimaryPrice:   btou(args[0]),
		PlatformFee:    btou(args[1]),
		ResaleCap:      btou(args[2]),
		CreatorFee:     btou(args[3]),
		ResaleAllowed:  btou(args[4]) != 0,
		ResaleDeadline: int64(btou(args[5])),
		GiftingAllowed: btou(args[6]) != 0,
		CreatorAddress: crypto.EncodeAddress(creator),
	}, nil
}

// Digest returns the canonical fingerprint of the term sheet: SHA-256 over
// the 8 positional arguments joined by '-'. The separator makes field
// boundaries part of the hashed material.
func (c *Configuration) Digest() ([32]byte, error) {
	args, err := c.Args()
	if err != nil {
		return [32]byte{}, err
	}
	return DigestArgs(args)
}

// DigestArgs computes the configuration digest directly from positional
// arguments, without parsing them first. Validators use this form so a
// caller cannot smuggle in bytes that parse to the same struct but hash
// differently.
func DigestArgs(args [][]byte) ([32]byte, error) {
	if len(args) != NumConfigArgs {
		return [32]byte{}, ErrBadArgCount
	}
	return crypto.Sha256Joined('-', args...), nil
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func btou(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

func btoi(v bool) uint64 {
	if v {
		return 1
	}
	return 0
}
