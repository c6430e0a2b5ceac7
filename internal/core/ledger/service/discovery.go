// Package service implements offer discovery: the read-only view that
// turns raw ledger state into browsable sale offers. Primary offers are
// minted tickets still held by their creator; secondary offers are the
// sell entries sellers keep in app local state.
package service

import (
	"encoding/binary"
	"fmt"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/tokility/tokilityd/internal/core/ledger"
	"github.com/tokility/tokilityd/internal/core/ticket"
)

// metadataCacheSize bounds the decoded ticket cache. Ticket metadata is
// immutable once minted, so entries never need invalidation.
const metadataCacheSize = 512

// SaleOffer is one purchasable ticket, primary or second-hand.
type SaleOffer struct {
	AssetID    uint64         `json:"asset_id"`
	AppID      uint64         `json:"app_id"`
	Seller     string         `json:"seller,omitempty"`
	Price      uint64         `json:"price"`
	SecondHand bool           `json:"second_hand"`
	Ticket     *ticket.Ticket `json:"ticket"`
}

// SellerAddress returns who gets paid the price: the listing seller for
// second-hand offers, the creator for primary ones.
func (o *SaleOffer) SellerAddress() string {
	if o.SecondHand {
		return o.Seller
	}
	return o.Ticket.Configuration.CreatorAddress
}

// TotalCost returns what the buyer pays in full. A primary purchase is the
// primary price alone; a second-hand purchase adds the creator and
// platform fees on top of the ask.
func (o *SaleOffer) TotalCost() uint64 {
	if !o.SecondHand {
		return o.Price
	}
	c := &o.Ticket.Configuration
	return o.Price + c.CreatorFee + c.PlatformFee
}

// Service reads offers out of a ledger. Safe for concurrent use.
type Service struct {
	ledger *ledger.Ledger
	appID  uint64
	cache  *lru.Cache[uint64, *ticket.Ticket]
	log    zerolog.Logger
}

// New builds a discovery service over one marketplace app.
func New(l *ledger.Ledger, appID uint64, log zerolog.Logger) (*Service, error) {
	cache, err := lru.New[uint64, *ticket.Ticket](metadataCacheSize)
	if err != nil {
		return nil, err
	}
	return &Service{ledger: l, appID: appID, cache: cache, log: log}, nil
}

// ticketFor decodes an asset's metadata, through the cache.
func (s *Service) ticketFor(assetID uint64, metadata []byte) (*ticket.Ticket, error) {
	if tk, ok := s.cache.Get(assetID); ok {
		return tk, nil
	}
	tk, err := ticket.Decode(metadata)
	if err != nil {
		return nil, fmt.Errorf("decode metadata of asset %d: %w", assetID, err)
	}
	s.cache.Add(assetID, tk)
	return tk, nil
}

// PrimaryOffers lists every minted ticket still held by its creator, each
// buyable at its primary price. Assets with undecodable metadata are
// logged and skipped rather than poisoning the listing.
func (s *Service) PrimaryOffers() []SaleOffer {
	var offers []SaleOffer
	s.ledger.ForEachAsset(func(p ledger.AssetParams) bool {
		if s.ledger.Holding(p.Creator, p.ID) < 1 {
			return true
		}
		tk, err := s.ticketFor(p.ID, p.Metadata)
		if err != nil {
			s.log.Warn().Err(err).Uint64("asset_id", p.ID).Msg("skipping asset with bad metadata")
			return true
		}
		offers = append(offers, SaleOffer{
			AssetID: p.ID,
			AppID:   s.appID,
			Price:   tk.Configuration.PrimaryPrice,
			Ticket:  tk,
		})
		return true
	})
	sortOffers(offers)
	return offers
}

// SecondaryOffers lists every live sell entry in the app's local state.
func (s *Service) SecondaryOffers() []SaleOffer {
	var offers []SaleOffer
	s.ledger.ForEachLocalState(s.appID, func(addr string, assetID uint64, value []byte) bool {
		offer, err := s.secondaryOffer(addr, assetID, value)
		if err != nil {
			s.log.Warn().Err(err).Str("seller", addr).Uint64("asset_id", assetID).
				Msg("skipping malformed sell entry")
			return true
		}
		offers = append(offers, *offer)
		return true
	})
	sortOffers(offers)
	return offers
}

// Offer resolves one seller's listing for an asset.
func (s *Service) Offer(seller string, assetID uint64) (*SaleOffer, bool) {
	value, ok := s.ledger.LocalState(seller, s.appID, assetID)
	if !ok {
		return nil, false
	}
	offer, err := s.secondaryOffer(seller, assetID, value)
	if err != nil {
		s.log.Warn().Err(err).Str("seller", seller).Uint64("asset_id", assetID).
			Msg("malformed sell entry")
		return nil, false
	}
	return offer, true
}

func (s *Service) secondaryOffer(seller string, assetID uint64, value []byte) (*SaleOffer, error) {
	if len(value) != 8 {
		return nil, fmt.Errorf("sell entry is %d bytes, want 8", len(value))
	}
	params, ok := s.ledger.Asset(assetID)
	if !ok {
		return nil, fmt.Errorf("sell entry references unknown asset %d", assetID)
	}
	tk, err := s.ticketFor(assetID, params.Metadata)
	if err != nil {
		return nil, err
	}
	return &SaleOffer{
		AssetID:    assetID,
		AppID:      s.appID,
		Seller:     seller,
		Price:      binary.BigEndian.Uint64(value),
		SecondHand: true,
		Ticket:     tk,
	}, nil
}

// sortOffers orders offers by asset then seller so listings are stable
// across calls.
func sortOffers(offers []SaleOffer) {
	sort.Slice(offers, func(i, j int) bool {
		if offers[i].AssetID != offers[j].AssetID {
			return offers[i].AssetID < offers[j].AssetID
		}
		return offers[i].Seller < offers[j].Seller
	})
}
