// Package testing provides the marketplace test harness: an in-memory
// ledger with a manual clock, deterministic accounts, and helpers that
// deploy the marketplace, mint escrowed tickets, and build the standard
// flow groups. Production code never imports this package.
package testing

import (
	"testing"
	"time"

	"github.com/tokility/tokilityd/internal/core/dex"
	"github.com/tokility/tokilityd/internal/core/economics"
	"github.com/tokility/tokilityd/internal/core/escrow"
	"github.com/tokility/tokilityd/internal/core/ledger"
	"github.com/tokility/tokilityd/internal/core/ticket"
	"github.com/tokility/tokilityd/internal/core/tx"
	"github.com/tokility/tokilityd/internal/orchestrator"
)

// DefaultBalance is the starting balance given to funded test accounts.
const DefaultBalance = 10_000_000

// TestEnv manages a test marketplace environment. It wraps an in-memory
// ledger under a manual clock and provides a simplified interface for
// funding accounts, minting tickets, and submitting groups.
type TestEnv struct {
	t        *testing.T
	ledger   *ledger.Ledger
	clock    *ManualClock
	accounts map[string]*Account
}

// NewTestEnv creates a fresh environment with an empty ledger.
func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()
	clock := NewManualClock()
	return &TestEnv{
		t:        t,
		ledger:   ledger.New(clock),
		clock:    clock,
		accounts: make(map[string]*Account),
	}
}

// Ledger exposes the underlying ledger for direct state inspection.
func (env *TestEnv) Ledger() *ledger.Ledger { return env.ledger }

// Clock exposes the manual clock.
func (env *TestEnv) Clock() *ManualClock { return env.clock }

// Fund creates and funds an account with the default balance.
func (env *TestEnv) Fund(name string) *Account {
	return env.FundWith(name, DefaultBalance)
}

// FundWith creates and funds an account with a specific balance.
func (env *TestEnv) FundWith(name string, balance uint64) *Account {
	env.t.Helper()
	acc := NewAccount(name)
	if err := env.ledger.CreateAccount(acc.Address, balance); err != nil {
		env.t.Fatalf("fund account %s: %v", name, err)
	}
	env.accounts[name] = acc
	return acc
}

// DeployMarketplace deploys the marketplace program with the platform
// account as its fee sink and returns the app ID.
func (env *TestEnv) DeployMarketplace(creator, platform *Account) uint64 {
	env.t.Helper()
	appID, err := env.ledger.CreateApp(creator.Address, platform.Address, dex.New())
	if err != nil {
		env.t.Fatalf("deploy marketplace: %v", err)
	}
	return appID
}

// OptIn opens an account's local state namespace for the app.
func (env *TestEnv) OptIn(acc *Account, appID uint64) {
	env.t.Helper()
	if err := env.ledger.OptInApp(acc.Address, appID); err != nil {
		env.t.Fatalf("opt in %s: %v", acc.Name, err)
	}
}

// MintTicket mints an escrow-controlled ticket asset under the given term
// sheet and returns a flow builder bound to it. The creator holds the
// asset until the first buy.
func (env *TestEnv) MintTicket(appID uint64, creator *Account, config economics.Configuration) (uint64, *escrow.Authority, *orchestrator.FlowBuilder) {
	env.t.Helper()

	digest, err := config.Digest()
	if err != nil {
		env.t.Fatalf("configuration digest: %v", err)
	}
	meta, err := DefaultTicket(config).Encode()
	if err != nil {
		env.t.Fatalf("encode ticket metadata: %v", err)
	}

	var auth *escrow.Authority
	assetID, err := env.ledger.MintAsset(ledger.AssetParams{
		Creator:        creator.Address,
		UnitName:       "TOK",
		AssetName:      "Tokility Ticket",
		Total:          1,
		DefaultFrozen:  true,
		MetadataDigest: digest,
		Metadata:       meta,
	}, func(assetID uint64) (ledger.TransferAuthority, error) {
		var bindErr error
		auth, bindErr = escrow.New(appID, assetID, config)
		return auth, bindErr
	})
	if err != nil {
		env.t.Fatalf("mint ticket: %v", err)
	}

	app, ok := env.ledger.App(appID)
	if !ok {
		env.t.Fatalf("app %d not found after deploy", appID)
	}
	return assetID, auth, orchestrator.NewFlowBuilder(appID, assetID, auth.Address(), app.PlatformFeeAddress, &config)
}

// Submit applies a group and returns the result.
func (env *TestEnv) Submit(g *tx.Group) tx.Result {
	env.t.Helper()
	return env.ledger.ApplyGroup(g)
}

// Balance returns an account's balance.
func (env *TestEnv) Balance(acc *Account) uint64 {
	return env.ledger.Balance(acc.Address)
}

// Holding returns how many units of the asset the account holds.
func (env *TestEnv) Holding(acc *Account, assetID uint64) uint64 {
	return env.ledger.Holding(acc.Address, assetID)
}

// Offer reads an account's stored sell offer, if any.
func (env *TestEnv) Offer(acc *Account, appID, assetID uint64) ([]byte, bool) {
	return env.ledger.LocalState(acc.Address, appID, assetID)
}

// DefaultConfig returns a workable term sheet issued by the given creator:
// resale and gifting allowed, a deadline one year past the default clock,
// and a resale ceiling double the primary price.
func DefaultConfig(creator *Account) economics.Configuration {
	return economics.Configuration{
		PrimaryPrice:   1_000_000,
		PlatformFee:    10_000,
		ResaleCap:      2_000_000,
		CreatorFee:     100_000,
		ResaleAllowed:  true,
		ResaleDeadline: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).Unix(),
		GiftingAllowed: true,
		CreatorAddress: creator.Address,
	}
}

// DefaultTicket wraps a term sheet in concert metadata.
func DefaultTicket(config economics.Configuration) *ticket.Ticket {
	return &ticket.Ticket{
		Configuration: config,
		BusinessType:  ticket.Concert,
		Issuer:        config.CreatorAddress,
		Concert: &ticket.ConcertDetails{
			Type:     "concert",
			Name:     "Tokility Live",
			Location: "Main Arena",
			Datetime: "2024-06-01T20:00:00Z",
		},
	}
}
