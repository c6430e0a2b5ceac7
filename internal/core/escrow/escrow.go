// Package escrow implements the transfer authority: the stateless
// predicate that is the only entity able to move a marketplace asset. One
// authority is bound per (application, asset, term sheet) at mint time;
// its address is derived from that binding, the way a logic program's
// address is the hash of the program. It keeps no state and no memory
// between invocations: it certifies group shapes and amounts, never
// identities or history.
package escrow

import (
	"bytes"
	"encoding/binary"

	"github.com/tokility/tokilityd/internal/core/dex"
	"github.com/tokility/tokilityd/internal/core/economics"
	"github.com/tokility/tokilityd/internal/core/ledger"
	"github.com/tokility/tokilityd/internal/core/tx"
	"github.com/tokility/tokilityd/internal/crypto"
)

// Authority is the escrow predicate for one asset. The bound configuration
// is baked in: tampering with call arguments cannot change what the
// authority will release against.
type Authority struct {
	appID   uint64
	assetID uint64
	config  economics.Configuration
	digest  [32]byte
	address string
}

// New binds an authority to an application, an asset, and a term sheet.
func New(appID, assetID uint64, config economics.Configuration) (*Authority, error) {
	digest, err := config.Digest()
	if err != nil {
		return nil, err
	}
	a := &Authority{appID: appID, assetID: assetID, config: config, digest: digest}
	a.address = deriveAddress(appID, assetID, digest)
	return a, nil
}

// Address returns the account the authority controls. Assets minted with
// this clawback address can only ever be moved by this predicate.
func (a *Authority) Address() string { return a.address }

// deriveAddress hashes the authority's binding into an account ID. Two
// authorities with different apps, assets, or term sheets can never share
// an address.
func deriveAddress(appID, assetID uint64, digest [32]byte) string {
	var appBytes, assetBytes [8]byte
	binary.BigEndian.PutUint64(appBytes[:], appID)
	binary.BigEndian.PutUint64(assetBytes[:], assetID)
	id := crypto.AccountIDFromData([]byte("tokility/escrow/v1"), appBytes[:], assetBytes[:], digest[:])
	return crypto.EncodeAddress(id)
}

// Validate certifies one atomic group. It asserts the exact leg count and
// leg content for the flow named in the application call, with every
// amount taken from the bound term sheet, and independently re-checks the
// caller-supplied configuration against the asset's embedded digest. It
// never asks who initiated the flow beyond leg-sender equality.
func (a *Authority) Validate(g *tx.Group, view ledger.View) tx.Result {
	if len(g.Legs) == 0 {
		return tx.TemBAD_GROUP_SIZE
	}
	call, ok := g.Legs[0].(*tx.AppCallLeg)
	if !ok {
		return tx.TemBAD_LEG
	}
	if call.AppID != a.appID {
		return tx.TemBAD_SENDER
	}
	if len(call.Args) < dex.MinNumArgs {
		return tx.TemBAD_ARG_COUNT
	}

	// The caller's supplied terms must hash to both the bound digest and
	// the asset's embedded digest.
	supplied, err := economics.DigestArgs(call.ConfigArgs())
	if err != nil || supplied != a.digest {
		return tx.TecCONFIG_MISMATCH
	}
	if r := a.checkAssetShape(view); r != tx.TesSUCCESS {
		return r
	}

	switch call.Method() {
	case dex.MethodInitialBuy:
		return a.validateInitialBuy(call, g)
	case dex.MethodBuyFromSeller:
		return a.validateBuyFromSeller(call, g, view)
	case dex.MethodGiftAsset:
		return a.validateGift(call, g, view)
	default:
		// No other flow moves the asset, so no other flow may carry a
		// transfer leg sent by this authority.
		return tx.TemUNKNOWN_METHOD
	}
}

// checkAssetShape asserts the asset is genuinely escrow-controlled:
// frozen, no manager/freeze/reserve authority, and clawback pointing at
// this predicate.
func (a *Authority) checkAssetShape(view ledger.View) tx.Result {
	asset, ok := view.Asset(a.assetID)
	if !ok {
		return tx.TecNO_ASSET
	}
	if !asset.EscrowControlled() || asset.Clawback != a.address {
		return tx.TecNOT_ESCROWED
	}
	if asset.MetadataDigest != a.digest {
		return tx.TecCONFIG_MISMATCH
	}
	return tx.TesSUCCESS
}

// validateInitialBuy: app call, full-price payment to the creator, asset
// transfer to the caller.
func (a *Authority) validateInitialBuy(call *tx.AppCallLeg, g *tx.Group) tx.Result {
	if len(g.Legs) != dex.InitialBuyGroupSize {
		return tx.TemBAD_GROUP_SIZE
	}
	if r := a.checkPayment(g.Legs[1], call.Account, a.config.CreatorAddress, a.config.PrimaryPrice, exactAmount); r != tx.TesSUCCESS {
		return r
	}
	return a.checkTransfer(g.Legs[2], call.Account)
}

// validateBuyFromSeller: creator fee, seller payment (capped by the resale
// ceiling; the exact ask is matched by the marketplace program against the
// stored offer), platform fee, transfer to the caller. Every paying leg's
// sender must be the caller.
func (a *Authority) validateBuyFromSeller(call *tx.AppCallLeg, g *tx.Group, view ledger.View) tx.Result {
	if len(g.Legs) != dex.BuyFromSellerGroupSize {
		return tx.TemBAD_GROUP_SIZE
	}
	for _, leg := range g.Legs[1:4] {
		if leg.Sender() != call.Account {
			return tx.TemBAD_SENDER
		}
	}
	if r := a.checkPayment(g.Legs[1], call.Account, a.config.CreatorAddress, a.config.CreatorFee, exactAmount); r != tx.TesSUCCESS {
		return r
	}
	// The seller leg's receiver and exact amount are the marketplace
	// program's to check; the authority only enforces the ceiling.
	ceiling := a.config.ResaleCap - a.config.CreatorFee
	if r := a.checkPayment(g.Legs[2], call.Account, "", ceiling, maxAmount); r != tx.TesSUCCESS {
		return r
	}
	if r := a.checkPlatformFee(g.Legs[3], call.Account, view); r != tx.TesSUCCESS {
		return r
	}
	return a.checkTransfer(g.Legs[4], call.Account)
}

// validateGift: both fees from the holder, transfer to the recipient named
// in the trailing argument. The destination comes from an argument rather
// than group membership, so it is asserted against the transfer leg
// explicitly.
func (a *Authority) validateGift(call *tx.AppCallLeg, g *tx.Group, view ledger.View) tx.Result {
	if len(g.Legs) != dex.GiftGroupSize {
		return tx.TemBAD_GROUP_SIZE
	}
	if len(call.Args) != dex.MinNumArgs+1 {
		return tx.TemBAD_ARG_COUNT
	}
	recipientID := call.Args[dex.MinNumArgs]
	if len(recipientID) != 20 {
		return tx.TemMALFORMED
	}
	var id [20]byte
	copy(id[:], recipientID)
	recipient := crypto.EncodeAddress(id)

	for _, leg := range g.Legs[1:3] {
		if leg.Sender() != call.Account {
			return tx.TemBAD_SENDER
		}
	}
	if r := a.checkPayment(g.Legs[1], call.Account, a.config.CreatorAddress, a.config.CreatorFee, exactAmount); r != tx.TesSUCCESS {
		return r
	}
	if r := a.checkPlatformFee(g.Legs[2], call.Account, view); r != tx.TesSUCCESS {
		return r
	}
	return a.checkTransfer(g.Legs[3], recipient)
}

type amountRule int

const (
	exactAmount amountRule = iota
	maxAmount
)

// checkPayment asserts a payment leg's shape. An empty receiver skips the
// receiver assertion (used where the receiver is validated elsewhere).
func (a *Authority) checkPayment(leg tx.Leg, sender, receiver string, amount uint64, rule amountRule) tx.Result {
	pay, ok := leg.(*tx.PaymentLeg)
	if !ok {
		return tx.TemBAD_LEG
	}
	if pay.Account != sender {
		return tx.TemBAD_SENDER
	}
	if receiver != "" && pay.Destination != receiver {
		return tx.TemBAD_RECEIVER
	}
	switch rule {
	case exactAmount:
		if pay.Amount != amount {
			return tx.TemBAD_AMOUNT
		}
	case maxAmount:
		if pay.Amount > amount {
			return tx.TecPRICE_CAP_EXCEEDED
		}
	}
	if pay.Fee > tx.MaxLegFee {
		return tx.TemBAD_FEE
	}
	if pay.CloseTo != "" || pay.RekeyTo != "" {
		return tx.TemBAD_SIDE_FX
	}
	return tx.TesSUCCESS
}

// checkPlatformFee asserts the platform leg pays exactly the minted
// platform fee to the app's fee address.
func (a *Authority) checkPlatformFee(leg tx.Leg, sender string, view ledger.View) tx.Result {
	app, ok := view.App(a.appID)
	if !ok {
		return tx.TecNO_APP
	}
	return a.checkPayment(leg, sender, app.PlatformFeeAddress, a.config.PlatformFee, exactAmount)
}

// checkTransfer asserts the asset moves exactly once, to destination, with
// no side effects and a bounded fee, sent by this authority.
func (a *Authority) checkTransfer(leg tx.Leg, destination string) tx.Result {
	xfer, ok := leg.(*tx.AssetTransferLeg)
	if !ok {
		return tx.TemBAD_LEG
	}
	if xfer.Account != a.address {
		return tx.TemBAD_SENDER
	}
	if xfer.AssetID != a.assetID {
		return tx.TemBAD_AMOUNT
	}
	if xfer.Destination != destination {
		return tx.TemBAD_RECEIVER
	}
	if xfer.Amount != 1 {
		return tx.TemBAD_AMOUNT
	}
	if xfer.Fee > tx.MaxLegFee {
		return tx.TemBAD_FEE
	}
	if xfer.CloseTo != "" || xfer.RekeyTo != "" {
		return tx.TemBAD_SIDE_FX
	}
	return tx.TesSUCCESS
}

// Equal reports whether two authorities share the same binding.
func (a *Authority) Equal(b *Authority) bool {
	return a.appID == b.appID && a.assetID == b.assetID && bytes.Equal(a.digest[:], b.digest[:])
}
