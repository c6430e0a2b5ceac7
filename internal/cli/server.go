package cli

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tokility/tokilityd/internal/core/ledger/service"
	"github.com/tokility/tokilityd/internal/orchestrator"
	"github.com/tokility/tokilityd/internal/server"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the marketplace daemon",
	Long: `Start tokilityd: reload ledger state from storage, re-attach the
marketplace program and per-asset transfer authorities, and serve the
JSON API with the websocket offer feed.`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runServer(cmd, args)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
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
		platform := cfg.Marketplace.PlatformFeeAddress
		if platform == "" {
			return fmt.Errorf("fresh ledger: set marketplace.platform_fee_address to deploy")
		}
		orch := orchestrator.New(l, log)
		appID, err = orch.DeployMarketplace(platform, platform)
	}
	if err != nil {
		return err
	}
	log.Info().Uint64("app_id", appID).Msg("marketplace ready")

	discovery, err := service.New(l, appID, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return server.New(cfg.Server, l, discovery, log).Run(ctx)
}
