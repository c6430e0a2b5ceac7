package testing

import (
	"github.com/tokility/tokilityd/internal/crypto"
)

// Account represents a test account with its keypair and address. Accounts
// are derived deterministically from their name, so the same name always
// produces the same keys and tests stay reproducible.
type Account struct {
	// Name is a human-readable identifier, used in failure messages.
	Name string

	// Keys is the account's signing keypair.
	Keys *crypto.KeyPair

	// Address is the account's marketplace address.
	Address string
}

// NewAccount creates a test account with a keypair derived from the name.
func NewAccount(name string) *Account {
	kp := crypto.KeyPairFromSeed([]byte("tokility/test/" + name))
	return &Account{Name: name, Keys: kp, Address: kp.Address()}
}
