package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tokility/tokilityd/internal/core/economics"
	"github.com/tokility/tokilityd/internal/core/ticket"
	"github.com/tokility/tokilityd/internal/crypto"
	"github.com/tokility/tokilityd/internal/orchestrator"
)

var mintFlags struct {
	creatorSeed    string
	fund           uint64
	event          string
	location       string
	datetime       string
	primaryPrice   uint64
	platformFee    uint64
	resaleCap      uint64
	creatorFee     uint64
	resaleDeadline string
	noResale       bool
	noGift         bool
}

var mintCmd = &cobra.Command{
	Use:   "mint",
	Short: "Mint a concert ticket with fixed economics",
	Long: `Mint a ticket as an escrow-controlled asset. The economics flags are
hashed into the asset at mint time and enforced on every later transfer;
they can never be changed afterwards.`,
	RunE: runMint,
}

func init() {
	rootCmd.AddCommand(mintCmd)
	mintCmd.Flags().StringVar(&mintFlags.creatorSeed, "creator-seed", "", "seed material for the creator keypair (required)")
	mintCmd.Flags().Uint64Var(&mintFlags.fund, "fund", 0, "fund the creator account with this balance if it does not exist")
	mintCmd.Flags().StringVar(&mintFlags.event, "event", "Tokility Live", "event name")
	mintCmd.Flags().StringVar(&mintFlags.location, "location", "Main Arena", "event location")
	mintCmd.Flags().StringVar(&mintFlags.datetime, "datetime", "", "event datetime, RFC 3339")
	mintCmd.Flags().Uint64Var(&mintFlags.primaryPrice, "primary-price", 1_000_000, "primary sale price")
	mintCmd.Flags().Uint64Var(&mintFlags.platformFee, "platform-fee", 10_000, "platform fee per second-hand sale or gift")
	mintCmd.Flags().Uint64Var(&mintFlags.resaleCap, "resale-cap", 2_000_000, "ceiling on creator fee + ask")
	mintCmd.Flags().Uint64Var(&mintFlags.creatorFee, "creator-fee", 100_000, "creator fee per second-hand sale or gift")
	mintCmd.Flags().StringVar(&mintFlags.resaleDeadline, "resale-deadline", "", "end of the resale window, RFC 3339")
	mintCmd.Flags().BoolVar(&mintFlags.noResale, "no-resale", false, "forbid resale")
	mintCmd.Flags().BoolVar(&mintFlags.noGift, "no-gift", false, "forbid gifting")
	mintCmd.MarkFlagRequired("creator-seed")
}

func runMint(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	deadline := time.Now().Add(365 * 24 * time.Hour)
	if mintFlags.resaleDeadline != "" {
		deadline, err = time.Parse(time.RFC3339, mintFlags.resaleDeadline)
		if err != nil {
			return fmt.Errorf("resale-deadline: %w", err)
		}
	}

	creator := crypto.KeyPairFromSeed([]byte(mintFlags.creatorSeed))

	l, store, err := openLedger(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	orch := orchestrator.New(l, log)
	appID, err := orchestrator.Restore(l)
	if errors.Is(err, orchestrator.ErrNoMarketplace) {
		platform := cfg.Marketplace.PlatformFeeAddress
		if platform == "" {
			return fmt.Errorf("fresh ledger: set marketplace.platform_fee_address to deploy")
		}
		appID, err = orch.DeployMarketplace(creator.Address(), platform)
	}
	if err != nil {
		return err
	}

	if _, ok := l.Account(creator.Address()); !ok {
		if mintFlags.fund == 0 {
			return fmt.Errorf("creator account %s does not exist; pass --fund to create it", creator.Address())
		}
		if err := l.CreateAccount(creator.Address(), mintFlags.fund); err != nil {
			return err
		}
	}

	tk := &ticket.Ticket{
		Configuration: economics.Configuration{
			PrimaryPrice:   mintFlags.primaryPrice,
			PlatformFee:    mintFlags.platformFee,
			ResaleCap:      mintFlags.resaleCap,
			CreatorFee:     mintFlags.creatorFee,
			ResaleAllowed:  !mintFlags.noResale,
			ResaleDeadline: deadline.Unix(),
			GiftingAllowed: !mintFlags.noGift,
			CreatorAddress: creator.Address(),
		},
		BusinessType: ticket.Concert,
		Issuer:       creator.Address(),
		Concert: &ticket.ConcertDetails{
			Type:     string(ticket.Concert),
			Name:     mintFlags.event,
			Location: mintFlags.location,
			Datetime: mintFlags.datetime,
		},
	}

	assetID, builder, err := orch.MintTicket(appID, tk)
	if err != nil {
		return err
	}

	return json.NewEncoder(os.Stdout).Encode(map[string]any{
		"app_id":   appID,
		"asset_id": assetID,
		"creator":  creator.Address(),
		"escrow":   builder.Escrow,
	})
}
