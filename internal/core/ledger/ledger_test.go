package ledger_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tokility/tokilityd/internal/core/dex"
	"github.com/tokility/tokilityd/internal/core/economics"
	"github.com/tokility/tokilityd/internal/core/escrow"
	"github.com/tokility/tokilityd/internal/core/ledger"
	"github.com/tokility/tokilityd/internal/core/tx"
	"github.com/tokility/tokilityd/internal/crypto"
	"github.com/tokility/tokilityd/internal/storage/keyvalue/pebbledb"
)

func newKeyPair(name string) *crypto.KeyPair {
	return crypto.KeyPairFromSeed([]byte("ledger-test-" + name))
}

func payment(from *crypto.KeyPair, to string, amount, fee uint64) *tx.Group {
	leg := &tx.PaymentLeg{
		LegCommon:   tx.LegCommon{Fee: fee},
		Account:     from.Address(),
		Destination: to,
		Amount:      amount,
	}
	g := tx.NewGroup(leg)
	g.Bind()
	tx.SignLeg(leg, from)
	return g
}

func TestCreateAccountDuplicate(t *testing.T) {
	l := ledger.New(nil)
	alice := newKeyPair("alice")
	require.NoError(t, l.CreateAccount(alice.Address(), 1000))
	require.ErrorIs(t, l.CreateAccount(alice.Address(), 1000), ledger.ErrAccountExists)
}

func TestPayment(t *testing.T) {
	l := ledger.New(nil)
	alice := newKeyPair("alice")
	bob := newKeyPair("bob")
	require.NoError(t, l.CreateAccount(alice.Address(), 10_000))
	require.NoError(t, l.CreateAccount(bob.Address(), 0))

	require.Equal(t, tx.TesSUCCESS, l.ApplyGroup(payment(alice, bob.Address(), 4_000, 100)))

	// The fee is burned: it leaves the sender and lands nowhere.
	require.Equal(t, uint64(5_900), l.Balance(alice.Address()))
	require.Equal(t, uint64(4_000), l.Balance(bob.Address()))

	acc, ok := l.Account(alice.Address())
	require.True(t, ok)
	require.Equal(t, uint64(1), acc.Sequence)
}

func TestPaymentUnfunded(t *testing.T) {
	l := ledger.New(nil)
	alice := newKeyPair("alice")
	bob := newKeyPair("bob")
	require.NoError(t, l.CreateAccount(alice.Address(), 1_000))
	require.NoError(t, l.CreateAccount(bob.Address(), 0))

	require.Equal(t, tx.TecUNFUNDED, l.ApplyGroup(payment(alice, bob.Address(), 1_000, 100)))
	require.Equal(t, uint64(1_000), l.Balance(alice.Address()))
	require.Equal(t, uint64(0), l.Balance(bob.Address()))
}

func TestPaymentAmountOverflow(t *testing.T) {
	l := ledger.New(nil)
	alice := newKeyPair("alice")
	bob := newKeyPair("bob")
	require.NoError(t, l.CreateAccount(alice.Address(), 10_000))
	require.NoError(t, l.CreateAccount(bob.Address(), 10_000))

	// amount+fee wraps to 499 here; the leg must still read as unfunded,
	// not debit 499 and credit a wrapped amount.
	require.Equal(t, tx.TecUNFUNDED, l.ApplyGroup(payment(alice, bob.Address(), math.MaxUint64-500, 1000)))
	require.Equal(t, uint64(10_000), l.Balance(alice.Address()))
	require.Equal(t, uint64(10_000), l.Balance(bob.Address()))
}

func TestPaymentUnknownSender(t *testing.T) {
	l := ledger.New(nil)
	alice := newKeyPair("alice")
	bob := newKeyPair("bob")
	require.NoError(t, l.CreateAccount(bob.Address(), 0))

	require.Equal(t, tx.TecNO_ACCOUNT, l.ApplyGroup(payment(alice, bob.Address(), 100, 10)))
}

func TestPaymentBadSignature(t *testing.T) {
	l := ledger.New(nil)
	alice := newKeyPair("alice")
	bob := newKeyPair("bob")
	require.NoError(t, l.CreateAccount(alice.Address(), 10_000))
	require.NoError(t, l.CreateAccount(bob.Address(), 0))

	leg := &tx.PaymentLeg{
		LegCommon:   tx.LegCommon{Fee: 10},
		Account:     alice.Address(),
		Destination: bob.Address(),
		Amount:      100,
	}
	g := tx.NewGroup(leg)
	g.Bind()
	tx.SignLeg(leg, bob)

	require.Equal(t, tx.TemBAD_SIGNATURE, l.ApplyGroup(g))
}

func TestFeeCeiling(t *testing.T) {
	l := ledger.New(nil)
	alice := newKeyPair("alice")
	bob := newKeyPair("bob")
	require.NoError(t, l.CreateAccount(alice.Address(), 10_000))
	require.NoError(t, l.CreateAccount(bob.Address(), 0))

	require.Equal(t, tx.TemBAD_FEE, l.ApplyGroup(payment(alice, bob.Address(), 100, tx.MaxLegFee+1)))
}

func TestUnboundGroupRejected(t *testing.T) {
	l := ledger.New(nil)
	alice := newKeyPair("alice")
	bob := newKeyPair("bob")
	require.NoError(t, l.CreateAccount(alice.Address(), 10_000))
	require.NoError(t, l.CreateAccount(bob.Address(), 0))

	leg := &tx.PaymentLeg{
		Account:     alice.Address(),
		Destination: bob.Address(),
		Amount:      100,
	}
	g := tx.NewGroup(leg)
	// Deliberately not bound.
	require.Equal(t, tx.TemBAD_GROUP_ID, l.ApplyGroup(g))
}

func TestTransferNeedsEscrowSender(t *testing.T) {
	l := ledger.New(nil)
	alice := newKeyPair("alice")
	creator := newKeyPair("creator")
	require.NoError(t, l.CreateAccount(alice.Address(), 10_000))
	require.NoError(t, l.CreateAccount(creator.Address(), 10_000))

	config := testConfig(creator.Address())
	assetID := mintTestAsset(t, l, 1, creator.Address(), config)

	// A transfer sent by anyone but the clawback authority never reaches
	// the authority predicate.
	leg := &tx.AssetTransferLeg{
		LegCommon:        tx.LegCommon{Fee: 10},
		Account:          alice.Address(),
		RevocationTarget: creator.Address(),
		Destination:      alice.Address(),
		AssetID:          assetID,
		Amount:           1,
	}
	g := tx.NewGroup(leg)
	g.Bind()
	require.Equal(t, tx.TemBAD_SENDER, l.ApplyGroup(g))

	leg.AssetID = assetID + 99
	g.Bind()
	require.Equal(t, tx.TecNO_ASSET, l.ApplyGroup(g))
}

func testConfig(creator string) economics.Configuration {
	return economics.Configuration{
		PrimaryPrice:   1_000_000,
		PlatformFee:    10_000,
		ResaleCap:      2_000_000,
		CreatorFee:     100_000,
		ResaleAllowed:  true,
		ResaleDeadline: 1_900_000_000,
		GiftingAllowed: true,
		CreatorAddress: creator,
	}
}

func mintTestAsset(t *testing.T, l *ledger.Ledger, appID uint64, creator string, config economics.Configuration) uint64 {
	t.Helper()
	digest, err := config.Digest()
	require.NoError(t, err)
	assetID, err := l.MintAsset(ledger.AssetParams{
		Creator:        creator,
		UnitName:       "TOK",
		AssetName:      "Ticket",
		Total:          1,
		DefaultFrozen:  true,
		MetadataDigest: digest,
	}, func(assetID uint64) (ledger.TransferAuthority, error) {
		return escrow.New(appID, assetID, config)
	})
	require.NoError(t, err)
	return assetID
}

func TestMintRejectsBadShape(t *testing.T) {
	l := ledger.New(nil)
	creator := newKeyPair("creator")
	require.NoError(t, l.CreateAccount(creator.Address(), 10_000))
	config := testConfig(creator.Address())

	_, err := l.MintAsset(ledger.AssetParams{
		Creator: creator.Address(),
		Total:   2,
	}, func(assetID uint64) (ledger.TransferAuthority, error) {
		return escrow.New(1, assetID, config)
	})
	require.Error(t, err)

	// Not default-frozen: the authority would not have exclusive control.
	_, err = l.MintAsset(ledger.AssetParams{
		Creator: creator.Address(),
		Total:   1,
	}, func(assetID uint64) (ledger.TransferAuthority, error) {
		return escrow.New(1, assetID, config)
	})
	require.ErrorIs(t, err, ledger.ErrNotEscrowShaped)
}

func TestPersistenceReload(t *testing.T) {
	dir := t.TempDir()
	creator := newKeyPair("creator")
	platform := newKeyPair("platform")
	config := testConfig(creator.Address())

	store, err := pebbledb.Open(dir)
	require.NoError(t, err)

	l, err := ledger.Open(store, nil)
	require.NoError(t, err)
	require.NoError(t, l.CreateAccount(creator.Address(), 5_000_000))
	appID, err := l.CreateApp(creator.Address(), platform.Address(), dex.New())
	require.NoError(t, err)
	assetID := mintTestAsset(t, l, appID, creator.Address(), config)
	require.NoError(t, l.OptInApp(creator.Address(), appID))
	require.NoError(t, store.Close())

	store, err = pebbledb.Open(dir)
	require.NoError(t, err)
	defer store.Close()

	reloaded, err := ledger.Open(store, nil)
	require.NoError(t, err)

	require.Equal(t, uint64(5_000_000), reloaded.Balance(creator.Address()))
	require.Equal(t, uint64(1), reloaded.Holding(creator.Address(), assetID))

	asset, ok := reloaded.Asset(assetID)
	require.True(t, ok)
	digest, err := config.Digest()
	require.NoError(t, err)
	require.Equal(t, digest, asset.MetadataDigest)

	app, ok := reloaded.App(appID)
	require.True(t, ok)
	require.Equal(t, platform.Address(), app.PlatformFeeAddress)

	acc, ok := reloaded.Account(creator.Address())
	require.True(t, ok)
	require.True(t, acc.OptedIn[appID])

	// ID allocation continues past the reloaded entries.
	next := mintTestAsset(t, reloaded, appID, creator.Address(), config)
	require.Equal(t, assetID+1, next)
}

func TestCommitEvents(t *testing.T) {
	l := ledger.New(nil)
	alice := newKeyPair("alice")
	bob := newKeyPair("bob")
	require.NoError(t, l.CreateAccount(alice.Address(), 10_000))
	require.NoError(t, l.CreateAccount(bob.Address(), 0))

	events := l.Subscribe()
	g := payment(alice, bob.Address(), 100, 10)
	require.Equal(t, tx.TesSUCCESS, l.ApplyGroup(g))

	select {
	case ev := <-events:
		require.Equal(t, g.ComputeID(), ev.GroupID)
	default:
		t.Fatal("expected a commit event")
	}

	// Rejected groups publish nothing.
	require.Equal(t, tx.TecUNFUNDED, l.ApplyGroup(payment(alice, bob.Address(), 1_000_000, 10)))
	select {
	case <-events:
		t.Fatal("unexpected event for rejected group")
	default:
	}
}
