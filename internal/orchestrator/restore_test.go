package orchestrator_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/tokility/tokilityd/internal/core/ledger"
	"github.com/tokility/tokilityd/internal/crypto"
	"github.com/tokility/tokilityd/internal/orchestrator"
	"github.com/tokility/tokilityd/internal/storage/keyvalue/pebbledb"
	tok "github.com/tokility/tokilityd/internal/testing"
)

// A daemon restart reloads state from pebble and must reconstruct the
// exact program and authorities that minted the assets.
func TestRestoreAfterReload(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	creator := crypto.KeyPairFromSeed([]byte("restore-creator"))
	platform := crypto.KeyPairFromSeed([]byte("restore-platform"))
	alice := crypto.KeyPairFromSeed([]byte("restore-alice"))
	bob := crypto.KeyPairFromSeed([]byte("restore-bob"))

	// Manual clock keeps the resale window open regardless of wall time.
	clock := tok.NewManualClock()

	store, err := pebbledb.Open(dir)
	require.NoError(t, err)
	l, err := ledger.Open(store, clock)
	require.NoError(t, err)
	for _, addr := range []string{creator.Address(), platform.Address(), alice.Address(), bob.Address()} {
		require.NoError(t, l.CreateAccount(addr, 10_000_000))
	}

	orch := orchestrator.New(l, zerolog.Nop())
	appID, err := orch.DeployMarketplace(creator.Address(), platform.Address())
	require.NoError(t, err)

	config := tok.DefaultConfig(&tok.Account{Address: creator.Address()})
	assetID, builder, err := orch.MintTicket(appID, tok.DefaultTicket(config))
	require.NoError(t, err)

	result, err := orch.InitialBuy(ctx, builder, alice)
	require.NoError(t, err)
	require.True(t, result.Success())
	require.NoError(t, orch.OptIn(alice.Address(), appID))
	result, err = orch.MakeSellOffer(ctx, builder, alice, 900_000)
	require.NoError(t, err)
	require.True(t, result.Success())
	require.NoError(t, store.Close())

	// Restart.
	store, err = pebbledb.Open(dir)
	require.NoError(t, err)
	defer store.Close()
	reloaded, err := ledger.Open(store, clock)
	require.NoError(t, err)

	restoredApp, err := orchestrator.Restore(reloaded)
	require.NoError(t, err)
	require.Equal(t, appID, restoredApp)

	// The standing offer survives the restart and is still buyable.
	orch2 := orchestrator.New(reloaded, zerolog.Nop())
	builder2, err := orch2.BuilderForAsset(appID, assetID)
	require.NoError(t, err)

	result, err = orch2.BuyFromSeller(ctx, builder2, bob, alice.Address(), 900_000)
	require.NoError(t, err)
	require.True(t, result.Success(), "got %s", result)
	require.Equal(t, uint64(1), reloaded.Holding(bob.Address(), assetID))
}

func TestRestoreEmptyLedger(t *testing.T) {
	l := ledger.New(nil)
	_, err := orchestrator.Restore(l)
	require.ErrorIs(t, err, orchestrator.ErrNoMarketplace)
}
