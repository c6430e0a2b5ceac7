package orchestrator

import (
	"encoding/binary"
	"fmt"

	"github.com/tokility/tokilityd/internal/core/dex"
	"github.com/tokility/tokilityd/internal/core/economics"
	"github.com/tokility/tokilityd/internal/core/tx"
	"github.com/tokility/tokilityd/internal/crypto"
)

// DefaultLegFee is the flat fee attached to every constructed leg. It sits
// at the protocol ceiling; validators reject anything above it.
const DefaultLegFee = tx.MaxLegFee

// FlowBuilder assembles the atomic groups for one marketplace asset. It is
// pure construction: nothing here touches the ledger, so a builder can be
// shared freely across goroutines.
type FlowBuilder struct {
	AppID   uint64
	AssetID uint64
	Escrow  string
	Config  *economics.Configuration

	// PlatformFeeAddress mirrors the app's fee global; the runtime fills it
	// in from ledger state so built groups match what the validators check.
	PlatformFeeAddress string
}

// NewFlowBuilder binds a builder to an application, asset, and escrow
// authority address.
func NewFlowBuilder(appID, assetID uint64, escrow, platformFeeAddress string, config *economics.Configuration) *FlowBuilder {
	return &FlowBuilder{AppID: appID, AssetID: assetID, Escrow: escrow, PlatformFeeAddress: platformFeeAddress, Config: config}
}

// callArgs builds the fixed argument prefix: method name plus the full
// term sheet, with any trailing flow arguments appended.
func (b *FlowBuilder) callArgs(method string, trailing ...[]byte) ([][]byte, error) {
	configArgs, err := b.Config.Args()
	if err != nil {
		return nil, err
	}
	args := make([][]byte, 0, 1+len(configArgs)+len(trailing))
	args = append(args, []byte(method))
	args = append(args, configArgs...)
	args = append(args, trailing...)
	return args, nil
}

func (b *FlowBuilder) appCall(sender, method string, trailing ...[]byte) (*tx.AppCallLeg, error) {
	args, err := b.callArgs(method, trailing...)
	if err != nil {
		return nil, err
	}
	return &tx.AppCallLeg{
		LegCommon:     tx.LegCommon{Fee: DefaultLegFee},
		Account:       sender,
		AppID:         b.AppID,
		Args:          args,
		ForeignAssets: []uint64{b.AssetID},
	}, nil
}

func (b *FlowBuilder) payment(sender, receiver string, amount uint64) *tx.PaymentLeg {
	return &tx.PaymentLeg{
		LegCommon:   tx.LegCommon{Fee: DefaultLegFee},
		Account:     sender,
		Destination: receiver,
		Amount:      amount,
	}
}

// transfer builds the escrow-sent asset move. It carries no signature; the
// ledger admits it on the strength of the authority predicate alone.
func (b *FlowBuilder) transfer(from, to string) *tx.AssetTransferLeg {
	return &tx.AssetTransferLeg{
		LegCommon:        tx.LegCommon{Fee: DefaultLegFee},
		Account:          b.Escrow,
		RevocationTarget: from,
		Destination:      to,
		AssetID:          b.AssetID,
		Amount:           1,
	}
}

// seal binds the group ID into every leg and signs the key-holder legs.
// The keyed map goes by sender address; the escrow transfer leg stays
// unsigned.
func seal(g *tx.Group, signers ...*crypto.KeyPair) (*tx.Group, error) {
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
		if !ok {
			return nil, fmt.Errorf("no signing key for leg sender %s", leg.Sender())
		}
		tx.SignLeg(leg, kp)
	}
	return g, nil
}

// InitialBuy builds the primary sale group: the buyer pays the creator the
// full primary price and the asset moves from the creator to the buyer.
func (b *FlowBuilder) InitialBuy(buyer *crypto.KeyPair) (*tx.Group, error) {
	call, err := b.appCall(buyer.Address(), dex.MethodInitialBuy)
	if err != nil {
		return nil, err
	}
	g := tx.NewGroup(
		call,
		b.payment(buyer.Address(), b.Config.CreatorAddress, b.Config.PrimaryPrice),
		b.transfer(b.Config.CreatorAddress, buyer.Address()),
	)
	return seal(g, buyer)
}

// MakeSellOffer builds the single-leg listing call. The ask is checked
// against the resale ceiling before anything is signed; there is no point
// submitting a group the protocol is guaranteed to reject.
func (b *FlowBuilder) MakeSellOffer(seller *crypto.KeyPair, ask uint64) (*tx.Group, error) {
	if err := b.Config.CheckAskPrice(ask); err != nil {
		return nil, err
	}
	askBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(askBytes, ask)
	call, err := b.appCall(seller.Address(), dex.MethodSellAsset, askBytes)
	if err != nil {
		return nil, err
	}
	return seal(tx.NewGroup(call), seller)
}

// BuyFromSeller builds the second-hand sale group against a known listing.
// ask must match the stored offer exactly; read it from discovery first.
func (b *FlowBuilder) BuyFromSeller(buyer *crypto.KeyPair, seller string, ask uint64) (*tx.Group, error) {
	call, err := b.appCall(buyer.Address(), dex.MethodBuyFromSeller)
	if err != nil {
		return nil, err
	}
	call.ForeignAccounts = []string{seller}
	g := tx.NewGroup(
		call,
		b.payment(buyer.Address(), b.Config.CreatorAddress, b.Config.CreatorFee),
		b.payment(buyer.Address(), seller, ask),
		b.payment(buyer.Address(), b.PlatformFeeAddress, b.Config.PlatformFee),
		b.transfer(seller, buyer.Address()),
	)
	return seal(g, buyer)
}

// StopSelling builds the single-leg delisting call.
func (b *FlowBuilder) StopSelling(seller *crypto.KeyPair) (*tx.Group, error) {
	call, err := b.appCall(seller.Address(), dex.MethodStopSelling)
	if err != nil {
		return nil, err
	}
	return seal(tx.NewGroup(call), seller)
}

// GiftAsset builds the gift group: the holder pays both fees and the asset
// moves to the recipient, who signs nothing.
func (b *FlowBuilder) GiftAsset(holder *crypto.KeyPair, recipient string) (*tx.Group, error) {
	recipientID, err := crypto.DecodeAddress(recipient)
	if err != nil {
		return nil, fmt.Errorf("gift recipient: %w", err)
	}
	call, err := b.appCall(holder.Address(), dex.MethodGiftAsset, recipientID[:])
	if err != nil {
		return nil, err
	}
	g := tx.NewGroup(
		call,
		b.payment(holder.Address(), b.Config.CreatorAddress, b.Config.CreatorFee),
		b.payment(holder.Address(), b.PlatformFeeAddress, b.Config.PlatformFee),
		b.transfer(holder.Address(), recipient),
	)
	return seal(g, holder)
}
