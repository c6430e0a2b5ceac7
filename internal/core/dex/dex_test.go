package dex_test

import (
	"encoding/binary"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tokility/tokilityd/internal/core/economics"
	"github.com/tokility/tokilityd/internal/core/escrow"
	"github.com/tokility/tokilityd/internal/core/tx"
	"github.com/tokility/tokilityd/internal/crypto"
	"github.com/tokility/tokilityd/internal/orchestrator"
	tok "github.com/tokility/tokilityd/internal/testing"
)

type marketFixture struct {
	env      *tok.TestEnv
	creator  *tok.Account
	platform *tok.Account
	alice    *tok.Account
	bob      *tok.Account
	appID    uint64
	assetID  uint64
	auth     *escrow.Authority
	builder  *orchestrator.FlowBuilder
	config   economics.Configuration
}

// newMarket stands up a deployed marketplace with one minted ticket held
// by the creator. mutate lets a test adjust the term sheet before minting.
func newMarket(t *testing.T, mutate func(*economics.Configuration)) *marketFixture {
	t.Helper()
	env := tok.NewTestEnv(t)
	f := &marketFixture{
		env:      env,
		creator:  env.Fund("creator"),
		platform: env.Fund("platform"),
		alice:    env.Fund("alice"),
		bob:      env.Fund("bob"),
	}
	f.config = tok.DefaultConfig(f.creator)
	if mutate != nil {
		mutate(&f.config)
	}
	f.appID = env.DeployMarketplace(f.creator, f.platform)
	f.assetID, f.auth, f.builder = env.MintTicket(f.appID, f.creator, f.config)
	return f
}

// reseal rebinds and re-signs a group after a test mutated one of its
// legs. The escrow transfer leg stays unsigned.
func reseal(t *testing.T, g *tx.Group, signers ...*crypto.KeyPair) {
	t.Helper()
	g.Bind()
	byAddr := make(map[string]*crypto.KeyPair, len(signers))
	for _, kp := range signers {
		byAddr[kp.Address()] = kp
	}
	for _, leg := range g.Legs {
		if _, ok := leg.(*tx.AssetTransferLeg); ok {
			continue
		}
		kp, ok := byAddr[leg.Sender()]
		require.True(t, ok, "no key for %s", leg.Sender())
		tx.SignLeg(leg, kp)
	}
}

func (f *marketFixture) initialBuy(t *testing.T, buyer *tok.Account) {
	t.Helper()
	g, err := f.builder.InitialBuy(buyer.Keys)
	require.NoError(t, err)
	tok.RequireTxSuccess(t, f.env.Submit(g))
}

func (f *marketFixture) listForSale(t *testing.T, seller *tok.Account, ask uint64) {
	t.Helper()
	f.env.OptIn(seller, f.appID)
	g, err := f.builder.MakeSellOffer(seller.Keys, ask)
	require.NoError(t, err)
	tok.RequireTxSuccess(t, f.env.Submit(g))
}

func TestInitialBuy(t *testing.T) {
	f := newMarket(t, nil)
	f.initialBuy(t, f.alice)

	// The buyer pays the primary price plus the payment leg fee; the fee
	// is burned, not routed.
	tok.RequireBalance(t, f.env, f.alice, tok.DefaultBalance-f.config.PrimaryPrice-orchestrator.DefaultLegFee)
	tok.RequireBalance(t, f.env, f.creator, tok.DefaultBalance+f.config.PrimaryPrice)
	tok.RequireHolding(t, f.env, f.alice, f.assetID, 1)
	tok.RequireHolding(t, f.env, f.creator, f.assetID, 0)
}

func TestInitialBuyWrongPrice(t *testing.T) {
	f := newMarket(t, nil)
	g, err := f.builder.InitialBuy(f.alice.Keys)
	require.NoError(t, err)
	g.Legs[1].(*tx.PaymentLeg).Amount = f.config.PrimaryPrice - 1
	reseal(t, g, f.alice.Keys)

	tok.RequireTxFail(t, f.env.Submit(g), tx.TemBAD_AMOUNT)
	tok.RequireHolding(t, f.env, f.creator, f.assetID, 1)
}

func TestInitialBuyTamperedTerms(t *testing.T) {
	f := newMarket(t, nil)
	g, err := f.builder.InitialBuy(f.alice.Keys)
	require.NoError(t, err)

	// Rewrite the primary price argument and make the payment leg agree
	// with it. The digest gate catches the substitution anyway.
	call := g.Legs[0].(*tx.AppCallLeg)
	cheap := make([]byte, 8)
	binary.BigEndian.PutUint64(cheap, 1)
	call.Args[1] = cheap
	g.Legs[1].(*tx.PaymentLeg).Amount = 1
	reseal(t, g, f.alice.Keys)

	tok.RequireTxFail(t, f.env.Submit(g), tx.TecCONFIG_MISMATCH)
	tok.RequireBalance(t, f.env, f.alice, tok.DefaultBalance)
	tok.RequireHolding(t, f.env, f.creator, f.assetID, 1)
}

func TestSellOffer(t *testing.T) {
	f := newMarket(t, nil)
	f.initialBuy(t, f.alice)
	f.listForSale(t, f.alice, 900_000)

	tok.RequireOffer(t, f.env, f.alice, f.appID, f.assetID, 900_000)
	// Listing does not move the asset.
	tok.RequireHolding(t, f.env, f.alice, f.assetID, 1)
}

func TestSellOfferLastWriterWins(t *testing.T) {
	f := newMarket(t, nil)
	f.initialBuy(t, f.alice)
	f.listForSale(t, f.alice, 900_000)

	g, err := f.builder.MakeSellOffer(f.alice.Keys, 800_000)
	require.NoError(t, err)
	tok.RequireTxSuccess(t, f.env.Submit(g))
	tok.RequireOffer(t, f.env, f.alice, f.appID, f.assetID, 800_000)
}

func TestSellOfferRequiresOptIn(t *testing.T) {
	f := newMarket(t, nil)
	f.initialBuy(t, f.alice)
	g, err := f.builder.MakeSellOffer(f.alice.Keys, 900_000)
	require.NoError(t, err)
	tok.RequireTxFail(t, f.env.Submit(g), tx.TecNOT_OPTED_IN)
}

func TestSellOfferRequiresHolding(t *testing.T) {
	f := newMarket(t, nil)
	f.env.OptIn(f.alice, f.appID)
	g, err := f.builder.MakeSellOffer(f.alice.Keys, 900_000)
	require.NoError(t, err)
	tok.RequireTxFail(t, f.env.Submit(g), tx.TecNOT_HOLDER)
}

func TestSellOfferResaleForbidden(t *testing.T) {
	f := newMarket(t, func(c *economics.Configuration) { c.ResaleAllowed = false })
	f.initialBuy(t, f.alice)
	f.env.OptIn(f.alice, f.appID)
	g, err := f.builder.MakeSellOffer(f.alice.Keys, 900_000)
	require.NoError(t, err)
	tok.RequireTxFail(t, f.env.Submit(g), tx.TecRESALE_FORBIDDEN)
}

func TestSellOfferAfterDeadline(t *testing.T) {
	f := newMarket(t, nil)
	f.initialBuy(t, f.alice)
	f.env.OptIn(f.alice, f.appID)

	f.env.Clock().Set(time.Unix(f.config.ResaleDeadline, 0))
	g, err := f.builder.MakeSellOffer(f.alice.Keys, 900_000)
	require.NoError(t, err)
	tok.RequireTxFail(t, f.env.Submit(g), tx.TecRESALE_EXPIRED)
}

func TestSellOfferAboveCeiling(t *testing.T) {
	f := newMarket(t, nil)
	f.initialBuy(t, f.alice)
	f.env.OptIn(f.alice, f.appID)

	// The builder refuses client-side.
	over := f.config.ResaleCap - f.config.CreatorFee + 1
	_, err := f.builder.MakeSellOffer(f.alice.Keys, over)
	require.Error(t, err)

	// Craft the same ask by hand; the protocol refuses too.
	g, err := f.builder.MakeSellOffer(f.alice.Keys, 900_000)
	require.NoError(t, err)
	askBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(askBytes, over)
	call := g.Legs[0].(*tx.AppCallLeg)
	call.Args[len(call.Args)-1] = askBytes
	reseal(t, g, f.alice.Keys)
	tok.RequireTxFail(t, f.env.Submit(g), tx.TecPRICE_CAP_EXCEEDED)
}

func TestSellOfferAskOverflow(t *testing.T) {
	f := newMarket(t, nil)
	f.initialBuy(t, f.alice)
	f.env.OptIn(f.alice, f.appID)

	// Chosen so creatorFee+ask wraps back under the resale cap.
	over := uint64(math.MaxUint64) - 50_000

	_, err := f.builder.MakeSellOffer(f.alice.Keys, over)
	require.Error(t, err)

	// Craft the wrapping ask by hand; the protocol must still refuse and
	// store nothing.
	g, err := f.builder.MakeSellOffer(f.alice.Keys, 900_000)
	require.NoError(t, err)
	askBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(askBytes, over)
	call := g.Legs[0].(*tx.AppCallLeg)
	call.Args[len(call.Args)-1] = askBytes
	reseal(t, g, f.alice.Keys)
	tok.RequireTxFail(t, f.env.Submit(g), tx.TecPRICE_CAP_EXCEEDED)
	tok.RequireNoOffer(t, f.env, f.alice, f.appID, f.assetID)
}

func TestBuyFromSeller(t *testing.T) {
	f := newMarket(t, nil)
	f.initialBuy(t, f.alice)
	f.listForSale(t, f.alice, 900_000)

	g, err := f.builder.BuyFromSeller(f.bob.Keys, f.alice.Address, 900_000)
	require.NoError(t, err)
	tok.RequireTxSuccess(t, f.env.Submit(g))

	// Fee split: ask to the seller, creator fee to the creator, platform
	// fee to the app's fee sink. Each of the buyer's three payment legs
	// burns its own fee.
	spent := 900_000 + f.config.CreatorFee + f.config.PlatformFee + 3*uint64(orchestrator.DefaultLegFee)
	tok.RequireBalance(t, f.env, f.bob, tok.DefaultBalance-spent)
	tok.RequireBalance(t, f.env, f.alice, tok.DefaultBalance-f.config.PrimaryPrice-orchestrator.DefaultLegFee+900_000)
	tok.RequireBalance(t, f.env, f.creator, tok.DefaultBalance+f.config.PrimaryPrice+f.config.CreatorFee)
	tok.RequireBalance(t, f.env, f.platform, tok.DefaultBalance+f.config.PlatformFee)

	tok.RequireHolding(t, f.env, f.bob, f.assetID, 1)
	tok.RequireHolding(t, f.env, f.alice, f.assetID, 0)
	tok.RequireNoOffer(t, f.env, f.alice, f.appID, f.assetID)
}

func TestBuyFromSellerNoOffer(t *testing.T) {
	f := newMarket(t, nil)
	f.initialBuy(t, f.alice)

	g, err := f.builder.BuyFromSeller(f.bob.Keys, f.alice.Address, 900_000)
	require.NoError(t, err)
	tok.RequireTxFail(t, f.env.Submit(g), tx.TecNO_OFFER)
}

func TestBuyConsumesOffer(t *testing.T) {
	f := newMarket(t, nil)
	f.initialBuy(t, f.alice)
	f.listForSale(t, f.alice, 900_000)

	g, err := f.builder.BuyFromSeller(f.bob.Keys, f.alice.Address, 900_000)
	require.NoError(t, err)
	tok.RequireTxSuccess(t, f.env.Submit(g))

	// A replayed purchase finds nothing to buy.
	g2, err := f.builder.BuyFromSeller(f.bob.Keys, f.alice.Address, 900_000)
	require.NoError(t, err)
	tok.RequireTxFail(t, f.env.Submit(g2), tx.TecNO_OFFER)
}

func TestBuyFromSellerAfterDeadline(t *testing.T) {
	f := newMarket(t, nil)
	f.initialBuy(t, f.alice)
	f.listForSale(t, f.alice, 900_000)

	f.env.Clock().Set(time.Unix(f.config.ResaleDeadline, 0))
	g, err := f.builder.BuyFromSeller(f.bob.Keys, f.alice.Address, 900_000)
	require.NoError(t, err)
	tok.RequireTxFail(t, f.env.Submit(g), tx.TecRESALE_EXPIRED)
	tok.RequireHolding(t, f.env, f.alice, f.assetID, 1)
}

func TestBuyFromSellerAtomicity(t *testing.T) {
	f := newMarket(t, nil)
	f.initialBuy(t, f.alice)
	f.listForSale(t, f.alice, 900_000)

	g, err := f.builder.BuyFromSeller(f.bob.Keys, f.alice.Address, 900_000)
	require.NoError(t, err)
	// Zero out the platform fee leg. The group must fail whole: no
	// payment lands and the offer survives.
	g.Legs[3].(*tx.PaymentLeg).Amount = 0
	reseal(t, g, f.bob.Keys)

	tok.RequireTxFail(t, f.env.Submit(g), tx.TemBAD_AMOUNT)
	tok.RequireBalance(t, f.env, f.bob, tok.DefaultBalance)
	tok.RequireBalance(t, f.env, f.platform, tok.DefaultBalance)
	tok.RequireHolding(t, f.env, f.alice, f.assetID, 1)
	tok.RequireOffer(t, f.env, f.alice, f.appID, f.assetID, 900_000)
}

func TestStopSelling(t *testing.T) {
	f := newMarket(t, nil)
	f.initialBuy(t, f.alice)
	f.listForSale(t, f.alice, 900_000)

	g, err := f.builder.StopSelling(f.alice.Keys)
	require.NoError(t, err)
	tok.RequireTxSuccess(t, f.env.Submit(g))
	tok.RequireNoOffer(t, f.env, f.alice, f.appID, f.assetID)
}

func TestStopSellingIdempotent(t *testing.T) {
	f := newMarket(t, nil)
	f.initialBuy(t, f.alice)

	// Cancelling an absent offer is a clean no-op.
	g, err := f.builder.StopSelling(f.alice.Keys)
	require.NoError(t, err)
	tok.RequireTxSuccess(t, f.env.Submit(g))

	g2, err := f.builder.StopSelling(f.alice.Keys)
	require.NoError(t, err)
	tok.RequireTxSuccess(t, f.env.Submit(g2))
}

func TestGiftAsset(t *testing.T) {
	f := newMarket(t, nil)
	f.initialBuy(t, f.alice)

	g, err := f.builder.GiftAsset(f.alice.Keys, f.bob.Address)
	require.NoError(t, err)
	tok.RequireTxSuccess(t, f.env.Submit(g))

	// The recipient signs nothing and pays nothing; the holder covers
	// both fees.
	spent := f.config.CreatorFee + f.config.PlatformFee + 2*uint64(orchestrator.DefaultLegFee)
	tok.RequireBalance(t, f.env, f.alice, tok.DefaultBalance-f.config.PrimaryPrice-orchestrator.DefaultLegFee-spent)
	tok.RequireBalance(t, f.env, f.bob, tok.DefaultBalance)
	tok.RequireHolding(t, f.env, f.bob, f.assetID, 1)
	tok.RequireHolding(t, f.env, f.alice, f.assetID, 0)
}

func TestGiftForbidden(t *testing.T) {
	f := newMarket(t, func(c *economics.Configuration) { c.GiftingAllowed = false })
	f.initialBuy(t, f.alice)

	g, err := f.builder.GiftAsset(f.alice.Keys, f.bob.Address)
	require.NoError(t, err)
	tok.RequireTxFail(t, f.env.Submit(g), tx.TecGIFT_FORBIDDEN)
	tok.RequireHolding(t, f.env, f.alice, f.assetID, 1)
}

func TestGiftRequiresHolding(t *testing.T) {
	f := newMarket(t, nil)
	g, err := f.builder.GiftAsset(f.alice.Keys, f.bob.Address)
	require.NoError(t, err)
	tok.RequireTxFail(t, f.env.Submit(g), tx.TecNOT_HOLDER)
}

// Whatever the minted terms, the primary sale at the minted price always
// clears and a tampered term sheet never does.
func TestRandomTermSheets(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 25; i++ {
		env := tok.NewTestEnv(t)
		creator := env.Fund("creator")
		platform := env.Fund("platform")
		buyer := env.Fund("buyer")

		config := tok.RandomConfig(rng, creator)
		appID := env.DeployMarketplace(creator, platform)
		assetID, _, builder := env.MintTicket(appID, creator, config)

		g, err := builder.InitialBuy(buyer.Keys)
		require.NoError(t, err)
		tok.RequireTxSuccess(t, env.Submit(g))
		tok.RequireHolding(t, env, buyer, assetID, 1)

		tampered, err := builder.InitialBuy(buyer.Keys)
		require.NoError(t, err)
		call := tampered.Legs[0].(*tx.AppCallLeg)
		mutated := make([]byte, 8)
		binary.BigEndian.PutUint64(mutated, config.PrimaryPrice/2)
		call.Args[1] = mutated
		reseal(t, tampered, buyer.Keys)
		tok.RequireTxFail(t, env.Submit(tampered), tx.TecCONFIG_MISMATCH)
	}
}

func TestGiftRedirectedTransferRejected(t *testing.T) {
	f := newMarket(t, nil)
	f.initialBuy(t, f.alice)

	g, err := f.builder.GiftAsset(f.alice.Keys, f.bob.Address)
	require.NoError(t, err)
	// Point the transfer somewhere other than the named recipient.
	g.Legs[3].(*tx.AssetTransferLeg).Destination = f.alice.Address
	reseal(t, g, f.alice.Keys)
	tok.RequireTxFail(t, f.env.Submit(g), tx.TemBAD_RECEIVER)
}
