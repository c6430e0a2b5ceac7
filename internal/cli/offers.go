package cli

import (
	"encoding/json"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/tokility/tokilityd/internal/core/ledger/service"
	"github.com/tokility/tokilityd/internal/orchestrator"
)

var offersCmd = &cobra.Command{
	Use:   "offers",
	Short: "List primary and second-hand offers",
	RunE:  runOffers,
}

func init() {
	rootCmd.AddCommand(offersCmd)
}

func runOffers(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	l, store, err := openLedger(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	appID, err := orchestrator.Restore(l)
	if errors.Is(err, orchestrator.ErrNoMarketplace) {
		return json.NewEncoder(os.Stdout).Encode(map[string]any{"primary": nil, "secondary": nil})
	}
	if err != nil {
		return err
	}

	discovery, err := service.New(l, appID, log)
	if err != nil {
		return err
	}
	return json.NewEncoder(os.Stdout).Encode(map[string]any{
		"primary":   discovery.PrimaryOffers(),
		"secondary": discovery.SecondaryOffers(),
	})
}
