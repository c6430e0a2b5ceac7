// Package dex implements the marketplace program: the stateful protocol
// evaluated for every application-call leg. Each call carries the method
// name, the full economics term sheet, and flow-specific trailing
// arguments; the term sheet is proven against the asset's embedded digest
// before any method logic runs, so no caller can substitute different
// terms than the ones minted into the asset.
package dex

import (
	"encoding/binary"
	"time"

	"github.com/tokility/tokilityd/internal/core/economics"
	"github.com/tokility/tokilityd/internal/core/ledger"
	"github.com/tokility/tokilityd/internal/core/tx"
	"github.com/tokility/tokilityd/internal/crypto"
)

// Marketplace method names, carried as the first application argument.
const (
	MethodInitialBuy    = "initial_buy"
	MethodSellAsset     = "sell_asa"
	MethodBuyFromSeller = "buy_from_seller"
	MethodStopSelling   = "stop_selling"
	MethodGiftAsset     = "gift_asa"
)

// MinNumArgs is the fixed argument prefix every call carries: the method
// name plus the 8 economics configuration arguments.
const MinNumArgs = 1 + economics.NumConfigArgs

// Group leg counts per flow.
const (
	InitialBuyGroupSize    = 3
	BuyFromSellerGroupSize = 5
	GiftGroupSize          = 4
)

// Program is the marketplace protocol. It carries no state of its own:
// everything it reads and writes lives in ledger state, so two deployments
// of the same program over the same state behave identically.
type Program struct{}

// New returns the marketplace program.
func New() *Program { return &Program{} }

// Call dispatches one application-call leg. The configuration digest gate
// runs first for every method; a mismatch aborts the group before any
// method logic is reached.
func (p *Program) Call(leg *tx.AppCallLeg, g *tx.Group, st ledger.StateWriter) tx.Result {
	if len(leg.Args) < MinNumArgs {
		return tx.TemBAD_ARG_COUNT
	}
	if len(leg.ForeignAssets) != 1 {
		return tx.TemBAD_ARG_COUNT
	}
	assetID := leg.ForeignAssets[0]
	asset, ok := st.Asset(assetID)
	if !ok {
		return tx.TecNO_ASSET
	}

	digest, err := economics.DigestArgs(leg.ConfigArgs())
	if err != nil {
		return tx.TemMALFORMED
	}
	if digest != asset.MetadataDigest {
		return tx.TecCONFIG_MISMATCH
	}
	config, err := economics.FromArgs(leg.ConfigArgs())
	if err != nil {
		return tx.TemMALFORMED
	}

	switch leg.Method() {
	case MethodInitialBuy:
		return p.initialBuy(leg, g, st, asset, config)
	case MethodSellAsset:
		return p.sellAsset(leg, g, st, asset, config)
	case MethodBuyFromSeller:
		return p.buyFromSeller(leg, g, st, asset, config)
	case MethodStopSelling:
		return p.stopSelling(leg, g, st, asset)
	case MethodGiftAsset:
		return p.giftAsset(leg, g, st, asset, config)
	default:
		return tx.TemUNKNOWN_METHOD
	}
}

// initialBuy validates the primary sale group: app call, full-price
// payment to the creator, and the asset transfer to the buyer. The asset
// must carry the escrow shape; the same checks run independently in the
// transfer authority, so either validator alone stops a malformed group.
func (p *Program) initialBuy(leg *tx.AppCallLeg, g *tx.Group, st ledger.StateWriter,
	asset *ledger.AssetParams, config *economics.Configuration) tx.Result {

	if len(leg.Args) != MinNumArgs {
		return tx.TemBAD_ARG_COUNT
	}
	if !asset.EscrowControlled() {
		return tx.TecNOT_ESCROWED
	}
	if len(g.Legs) != InitialBuyGroupSize || g.Legs[0] != tx.Leg(leg) {
		return tx.TemBAD_GROUP_SIZE
	}

	if r := checkPayment(g.Legs[1], leg.Account, config.CreatorAddress, config.PrimaryPrice); r != tx.TesSUCCESS {
		return r
	}
	return checkTransfer(g.Legs[2], asset.ID, leg.Account)
}

// sellAsset records or replaces the caller's ask for the asset. A second
// call overwrites the first: last writer wins, no history kept.
func (p *Program) sellAsset(leg *tx.AppCallLeg, g *tx.Group, st ledger.StateWriter,
	asset *ledger.AssetParams, config *economics.Configuration) tx.Result {

	if len(leg.Args) != MinNumArgs+1 {
		return tx.TemBAD_ARG_COUNT
	}
	if len(g.Legs) != 1 {
		return tx.TemBAD_GROUP_SIZE
	}
	askBytes := leg.Args[MinNumArgs]
	if len(askBytes) != 8 {
		return tx.TemMALFORMED
	}
	ask := binary.BigEndian.Uint64(askBytes)

	if st.Holding(leg.Account, asset.ID) < 1 {
		return tx.TecNOT_HOLDER
	}
	if !config.ResaleAllowed {
		return tx.TecRESALE_FORBIDDEN
	}
	if !st.Now().Before(deadline(config)) {
		return tx.TecRESALE_EXPIRED
	}
	// Overflow-safe form of creatorFee+ask > resaleCap.
	if ask > config.ResaleCap || config.CreatorFee > config.ResaleCap-ask {
		return tx.TecPRICE_CAP_EXCEEDED
	}
	if !st.OptedIn(leg.Account, leg.AppID) {
		return tx.TecNOT_OPTED_IN
	}

	st.PutLocal(leg.Account, leg.AppID, asset.ID, askBytes)
	return tx.TesSUCCESS
}

// buyFromSeller validates the second-hand sale group and consumes the
// seller's offer. The three payment legs must reproduce the stored ask and
// the minted fee split exactly.
func (p *Program) buyFromSeller(leg *tx.AppCallLeg, g *tx.Group, st ledger.StateWriter,
	asset *ledger.AssetParams, config *economics.Configuration) tx.Result {

	if len(leg.Args) != MinNumArgs {
		return tx.TemBAD_ARG_COUNT
	}
	if len(leg.ForeignAccounts) != 1 {
		return tx.TemBAD_ARG_COUNT
	}
	seller := leg.ForeignAccounts[0]

	offerBytes, ok := st.LocalState(seller, leg.AppID, asset.ID)
	if !ok || len(offerBytes) != 8 {
		return tx.TecNO_OFFER
	}
	askPrice := binary.BigEndian.Uint64(offerBytes)

	if !config.ResaleAllowed {
		return tx.TecRESALE_FORBIDDEN
	}
	if !st.Now().Before(deadline(config)) {
		return tx.TecRESALE_EXPIRED
	}

	if len(g.Legs) != BuyFromSellerGroupSize || g.Legs[0] != tx.Leg(leg) {
		return tx.TemBAD_GROUP_SIZE
	}
	for _, other := range g.Legs[1:4] {
		if other.Sender() != leg.Account {
			return tx.TemBAD_SENDER
		}
	}

	app, ok := st.App(leg.AppID)
	if !ok {
		return tx.TecNO_APP
	}
	if r := checkPayment(g.Legs[1], leg.Account, config.CreatorAddress, config.CreatorFee); r != tx.TesSUCCESS {
		return r
	}
	if r := checkPayment(g.Legs[2], leg.Account, seller, askPrice); r != tx.TesSUCCESS {
		return r
	}
	if r := checkPayment(g.Legs[3], leg.Account, app.PlatformFeeAddress, config.PlatformFee); r != tx.TesSUCCESS {
		return r
	}
	if r := checkTransfer(g.Legs[4], asset.ID, leg.Account); r != tx.TesSUCCESS {
		return r
	}

	// The offer is consumed exactly once; the delete commits atomically
	// with the payments and the transfer.
	st.DeleteLocal(seller, leg.AppID, asset.ID)
	return tx.TesSUCCESS
}

// stopSelling removes the caller's offer for the asset. Deleting an absent
// entry succeeds: cancellation is idempotent.
func (p *Program) stopSelling(leg *tx.AppCallLeg, g *tx.Group, st ledger.StateWriter,
	asset *ledger.AssetParams) tx.Result {

	if len(g.Legs) != 1 {
		return tx.TemBAD_GROUP_SIZE
	}
	st.DeleteLocal(leg.Account, leg.AppID, asset.ID)
	return tx.TesSUCCESS
}

// giftAsset validates the gift group: the holder pays both fees and the
// asset moves to the recipient named in the trailing argument. The
// recipient is bound by argument, not by group membership, so the transfer
// leg's destination is asserted against it explicitly.
func (p *Program) giftAsset(leg *tx.AppCallLeg, g *tx.Group, st ledger.StateWriter,
	asset *ledger.AssetParams, config *economics.Configuration) tx.Result {

	if len(leg.Args) != MinNumArgs+1 {
		return tx.TemBAD_ARG_COUNT
	}
	recipientID := leg.Args[MinNumArgs]
	if len(recipientID) != 20 {
		return tx.TemMALFORMED
	}
	var id [20]byte
	copy(id[:], recipientID)
	recipient := crypto.EncodeAddress(id)

	if st.Holding(leg.Account, asset.ID) < 1 {
		return tx.TecNOT_HOLDER
	}
	if !config.GiftingAllowed {
		return tx.TecGIFT_FORBIDDEN
	}

	if len(g.Legs) != GiftGroupSize || g.Legs[0] != tx.Leg(leg) {
		return tx.TemBAD_GROUP_SIZE
	}
	for _, other := range g.Legs[1:3] {
		if other.Sender() != leg.Account {
			return tx.TemBAD_SENDER
		}
	}

	app, ok := st.App(leg.AppID)
	if !ok {
		return tx.TecNO_APP
	}
	if r := checkPayment(g.Legs[1], leg.Account, config.CreatorAddress, config.CreatorFee); r != tx.TesSUCCESS {
		return r
	}
	if r := checkPayment(g.Legs[2], leg.Account, app.PlatformFeeAddress, config.PlatformFee); r != tx.TesSUCCESS {
		return r
	}
	return checkTransfer(g.Legs[3], asset.ID, recipient)
}

// checkPayment asserts one leg is a payment of exactly amount from sender
// to receiver, with no side-effect escape hatches.
func checkPayment(leg tx.Leg, sender, receiver string, amount uint64) tx.Result {
	pay, ok := leg.(*tx.PaymentLeg)
	if !ok {
		return tx.TemBAD_LEG
	}
	if pay.Account != sender {
		return tx.TemBAD_SENDER
	}
	if pay.Destination != receiver {
		return tx.TemBAD_RECEIVER
	}
	if pay.Amount != amount {
		return tx.TemBAD_AMOUNT
	}
	if pay.CloseTo != "" || pay.RekeyTo != "" {
		return tx.TemBAD_SIDE_FX
	}
	return tx.TesSUCCESS
}

// checkTransfer asserts one leg moves exactly 1 unit of the asset to the
// given destination.
func checkTransfer(leg tx.Leg, assetID uint64, destination string) tx.Result {
	xfer, ok := leg.(*tx.AssetTransferLeg)
	if !ok {
		return tx.TemBAD_LEG
	}
	if xfer.AssetID != assetID {
		return tx.TemBAD_AMOUNT
	}
	if xfer.Destination != destination {
		return tx.TemBAD_RECEIVER
	}
	if xfer.Amount != 1 {
		return tx.TemBAD_AMOUNT
	}
	if xfer.CloseTo != "" || xfer.RekeyTo != "" {
		return tx.TemBAD_SIDE_FX
	}
	return tx.TesSUCCESS
}

func deadline(config *economics.Configuration) time.Time {
	return time.Unix(config.ResaleDeadline, 0)
}
