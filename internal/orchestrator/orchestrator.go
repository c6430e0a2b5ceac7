// Package orchestrator composes, signs, and submits marketplace flows
// against the settlement substrate. It owns everything the ledger's
// validators do not: client-side precondition checks, retry on transient
// results, structured logging, and the local trade history.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tokility/tokilityd/internal/core/dex"
	"github.com/tokility/tokilityd/internal/core/economics"
	"github.com/tokility/tokilityd/internal/core/escrow"
	"github.com/tokility/tokilityd/internal/core/ledger"
	"github.com/tokility/tokilityd/internal/core/ticket"
	"github.com/tokility/tokilityd/internal/core/tx"
	"github.com/tokility/tokilityd/internal/crypto"
)

var (
	ErrResaleClosed   = errors.New("resale window is closed")
	ErrResaleDisabled = errors.New("resale is not allowed by the ticket terms")
	ErrGiftDisabled   = errors.New("gifting is not allowed by the ticket terms")
)

// Orchestrator drives flows end to end. Safe for concurrent use.
type Orchestrator struct {
	ledger      *ledger.Ledger
	history     HistoryRecorder
	log         zerolog.Logger
	maxAttempts int
	retryDelay  time.Duration
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithHistory records every submission to the given trade log.
func WithHistory(h HistoryRecorder) Option {
	return func(o *Orchestrator) { o.history = h }
}

// WithRetry overrides the transient-result retry policy.
func WithRetry(attempts int, delay time.Duration) Option {
	return func(o *Orchestrator) {
		o.maxAttempts = attempts
		o.retryDelay = delay
	}
}

// New builds an orchestrator over a ledger.
func New(l *ledger.Ledger, log zerolog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		ledger:      l,
		log:         log,
		maxAttempts: 3,
		retryDelay:  250 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// DeployMarketplace deploys the marketplace program with the given
// platform fee sink.
func (o *Orchestrator) DeployMarketplace(creator, platformFeeAddress string) (uint64, error) {
	appID, err := o.ledger.CreateApp(creator, platformFeeAddress, dex.New())
	if err != nil {
		return 0, err
	}
	o.log.Info().Uint64("app_id", appID).Str("platform", platformFeeAddress).Msg("marketplace deployed")
	return appID, nil
}

// MintTicket mints the ticket as an escrow-controlled asset and returns a
// flow builder bound to it. The embedded term sheet becomes the asset's
// metadata digest; every later flow is checked against it.
func (o *Orchestrator) MintTicket(appID uint64, tk *ticket.Ticket) (uint64, *FlowBuilder, error) {
	meta, err := tk.Encode()
	if err != nil {
		return 0, nil, fmt.Errorf("ticket metadata: %w", err)
	}
	config := tk.Configuration
	digest, err := config.Digest()
	if err != nil {
		return 0, nil, err
	}

	var auth *escrow.Authority
	assetID, err := o.ledger.MintAsset(ledger.AssetParams{
		Creator:        config.CreatorAddress,
		UnitName:       "TOK",
		AssetName:      tk.Describe(),
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
		return 0, nil, err
	}

	app, ok := o.ledger.App(appID)
	if !ok {
		return 0, nil, ledger.ErrNoSuchApp
	}
	o.log.Info().Uint64("asset_id", assetID).Str("escrow", auth.Address()).Msg("ticket minted")
	return assetID, NewFlowBuilder(appID, assetID, auth.Address(), app.PlatformFeeAddress, &config), nil
}

// BuilderForAsset rebuilds the flow builder of an already-minted asset
// from ledger state alone.
func (o *Orchestrator) BuilderForAsset(appID, assetID uint64) (*FlowBuilder, error) {
	params, ok := o.ledger.Asset(assetID)
	if !ok {
		return nil, fmt.Errorf("no asset %d", assetID)
	}
	tk, err := ticket.Decode(params.Metadata)
	if err != nil {
		return nil, fmt.Errorf("asset %d metadata: %w", assetID, err)
	}
	app, ok := o.ledger.App(appID)
	if !ok {
		return nil, ledger.ErrNoSuchApp
	}
	config := tk.Configuration
	return NewFlowBuilder(appID, assetID, params.Clawback, app.PlatformFeeAddress, &config), nil
}

// OptIn opens an account's local state namespace for the app.
func (o *Orchestrator) OptIn(addr string, appID uint64) error {
	return o.ledger.OptInApp(addr, appID)
}

// InitialBuy runs the primary purchase flow.
func (o *Orchestrator) InitialBuy(ctx context.Context, b *FlowBuilder, buyer *crypto.KeyPair) (tx.Result, error) {
	g, err := b.InitialBuy(buyer)
	if err != nil {
		return tx.TemMALFORMED, err
	}
	return o.submit(ctx, g, dex.MethodInitialBuy, b.AssetID, buyer.Address(), b.Config.PrimaryPrice)
}

// MakeSellOffer lists the seller's ticket at the given ask. Preconditions
// the validators would reject anyway are checked here first, so user
// errors fail before a group is composed.
func (o *Orchestrator) MakeSellOffer(ctx context.Context, b *FlowBuilder, seller *crypto.KeyPair, ask uint64) (tx.Result, error) {
	if err := o.checkResaleWindow(b.Config); err != nil {
		return tx.TecRESALE_FORBIDDEN, err
	}
	g, err := b.MakeSellOffer(seller, ask)
	if err != nil {
		return tx.TecPRICE_CAP_EXCEEDED, err
	}
	return o.submit(ctx, g, dex.MethodSellAsset, b.AssetID, seller.Address(), ask)
}

// BuyFromSeller runs the second-hand purchase flow against a known ask.
func (o *Orchestrator) BuyFromSeller(ctx context.Context, b *FlowBuilder, buyer *crypto.KeyPair, seller string, ask uint64) (tx.Result, error) {
	if err := o.checkResaleWindow(b.Config); err != nil {
		return tx.TecRESALE_FORBIDDEN, err
	}
	g, err := b.BuyFromSeller(buyer, seller, ask)
	if err != nil {
		return tx.TemMALFORMED, err
	}
	return o.submit(ctx, g, dex.MethodBuyFromSeller, b.AssetID, buyer.Address(), ask)
}

// StopSelling withdraws the seller's listing. A missing listing is not an
// error; cancellation is idempotent all the way down.
func (o *Orchestrator) StopSelling(ctx context.Context, b *FlowBuilder, seller *crypto.KeyPair) (tx.Result, error) {
	g, err := b.StopSelling(seller)
	if err != nil {
		return tx.TemMALFORMED, err
	}
	return o.submit(ctx, g, dex.MethodStopSelling, b.AssetID, seller.Address(), 0)
}

// GiftAsset moves the ticket to the recipient for fees only.
func (o *Orchestrator) GiftAsset(ctx context.Context, b *FlowBuilder, holder *crypto.KeyPair, recipient string) (tx.Result, error) {
	if !b.Config.GiftingAllowed {
		return tx.TecGIFT_FORBIDDEN, ErrGiftDisabled
	}
	g, err := b.GiftAsset(holder, recipient)
	if err != nil {
		return tx.TemMALFORMED, err
	}
	return o.submit(ctx, g, dex.MethodGiftAsset, b.AssetID, holder.Address(), 0)
}

func (o *Orchestrator) checkResaleWindow(config *economics.Configuration) error {
	if !config.ResaleAllowed {
		return ErrResaleDisabled
	}
	if !o.ledger.Clock().Now().Before(time.Unix(config.ResaleDeadline, 0)) {
		return ErrResaleClosed
	}
	return nil
}

// submit applies the group, retrying transient results, and records the
// outcome.
func (o *Orchestrator) submit(ctx context.Context, g *tx.Group, flow string, assetID uint64, actor string, amount uint64) (tx.Result, error) {
	groupID := g.ComputeID()
	logger := o.log.With().
		Str("flow", flow).
		Uint64("asset_id", assetID).
		Str("actor", actor).
		Hex("group_id", groupID[:8]).
		Logger()

	var result tx.Result
	for attempt := 1; ; attempt++ {
		result = o.ledger.ApplyGroup(g)
		if !result.Retryable() || attempt >= o.maxAttempts {
			break
		}
		logger.Warn().Stringer("result", result).Int("attempt", attempt).Msg("transient result, retrying")
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(o.retryDelay):
		}
	}

	o.record(ctx, groupID, flow, assetID, actor, amount, result)
	if result.Success() {
		logger.Info().Msg("flow applied")
	} else {
		logger.Warn().Stringer("result", result).Msg("flow rejected")
	}
	return result, nil
}
