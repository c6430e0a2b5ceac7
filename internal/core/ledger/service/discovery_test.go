package service_test

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/tokility/tokilityd/internal/core/ledger/service"
	tok "github.com/tokility/tokilityd/internal/testing"
)

func TestPrimaryOffers(t *testing.T) {
	env := tok.NewTestEnv(t)
	creator := env.Fund("creator")
	platform := env.Fund("platform")
	alice := env.Fund("alice")

	appID := env.DeployMarketplace(creator, platform)
	config := tok.DefaultConfig(creator)
	assetID, _, builder := env.MintTicket(appID, creator, config)

	svc, err := service.New(env.Ledger(), appID, zerolog.Nop())
	require.NoError(t, err)

	offers := svc.PrimaryOffers()
	require.Len(t, offers, 1)
	require.Equal(t, assetID, offers[0].AssetID)
	require.Equal(t, config.PrimaryPrice, offers[0].Price)
	require.False(t, offers[0].SecondHand)
	require.Equal(t, creator.Address, offers[0].SellerAddress())
	require.Equal(t, config.PrimaryPrice, offers[0].TotalCost())

	// Once sold, the ticket leaves the primary listing.
	g, err := builder.InitialBuy(alice.Keys)
	require.NoError(t, err)
	tok.RequireTxSuccess(t, env.Submit(g))
	require.Empty(t, svc.PrimaryOffers())
}

func TestSecondaryOffers(t *testing.T) {
	env := tok.NewTestEnv(t)
	creator := env.Fund("creator")
	platform := env.Fund("platform")
	alice := env.Fund("alice")
	bob := env.Fund("bob")

	appID := env.DeployMarketplace(creator, platform)
	config := tok.DefaultConfig(creator)
	assetID, _, builder := env.MintTicket(appID, creator, config)

	svc, err := service.New(env.Ledger(), appID, zerolog.Nop())
	require.NoError(t, err)

	g, err := builder.InitialBuy(alice.Keys)
	require.NoError(t, err)
	tok.RequireTxSuccess(t, env.Submit(g))
	require.Empty(t, svc.SecondaryOffers())

	env.OptIn(alice, appID)
	sell, err := builder.MakeSellOffer(alice.Keys, 900_000)
	require.NoError(t, err)
	tok.RequireTxSuccess(t, env.Submit(sell))

	offers := svc.SecondaryOffers()
	require.Len(t, offers, 1)
	require.Equal(t, assetID, offers[0].AssetID)
	require.Equal(t, alice.Address, offers[0].Seller)
	require.Equal(t, uint64(900_000), offers[0].Price)
	require.True(t, offers[0].SecondHand)
	require.Equal(t, alice.Address, offers[0].SellerAddress())
	require.Equal(t, 900_000+config.CreatorFee+config.PlatformFee, offers[0].TotalCost())

	one, ok := svc.Offer(alice.Address, assetID)
	require.True(t, ok)
	require.Equal(t, uint64(900_000), one.Price)

	// Buying consumes the listing.
	buy, err := builder.BuyFromSeller(bob.Keys, alice.Address, 900_000)
	require.NoError(t, err)
	tok.RequireTxSuccess(t, env.Submit(buy))
	require.Empty(t, svc.SecondaryOffers())
	_, ok = svc.Offer(alice.Address, assetID)
	require.False(t, ok)
}

func TestOfferListingsAreStable(t *testing.T) {
	env := tok.NewTestEnv(t)
	creator := env.Fund("creator")
	platform := env.Fund("platform")

	appID := env.DeployMarketplace(creator, platform)
	config := tok.DefaultConfig(creator)
	first, _, _ := env.MintTicket(appID, creator, config)
	second, _, _ := env.MintTicket(appID, creator, config)

	svc, err := service.New(env.Ledger(), appID, zerolog.Nop())
	require.NoError(t, err)

	offers := svc.PrimaryOffers()
	require.Len(t, offers, 2)
	require.Equal(t, first, offers[0].AssetID)
	require.Equal(t, second, offers[1].AssetID)
}
