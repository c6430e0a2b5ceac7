package orchestrator

import (
	"errors"
	"fmt"

	"github.com/tokility/tokilityd/internal/core/dex"
	"github.com/tokility/tokilityd/internal/core/escrow"
	"github.com/tokility/tokilityd/internal/core/ledger"
	"github.com/tokility/tokilityd/internal/core/ticket"
)

// ErrNoMarketplace is returned by Restore when the reloaded ledger has no
// deployed app.
var ErrNoMarketplace = errors.New("no marketplace app in ledger state")

// Restore re-attaches logic to a ledger reloaded from storage: the
// marketplace program on the deployed app, and a transfer authority
// rebuilt from each asset's embedded term sheet. Programs and authorities
// are deterministic functions of persisted state, so a restart always
// reconstructs the exact validators that minted the assets.
func Restore(l *ledger.Ledger) (uint64, error) {
	var appID uint64
	l.ForEachApp(func(p ledger.AppParams) bool {
		appID = p.ID
		return false
	})
	if appID == 0 {
		return 0, ErrNoMarketplace
	}
	if err := l.SetAppProgram(appID, dex.New()); err != nil {
		return 0, err
	}

	// Collect first: RegisterAuthority takes the ledger lock, which is
	// already held inside ForEachAsset callbacks.
	var assets []ledger.AssetParams
	l.ForEachAsset(func(p ledger.AssetParams) bool {
		assets = append(assets, p)
		return true
	})

	for _, p := range assets {
		tk, err := ticket.Decode(p.Metadata)
		if err != nil {
			return 0, fmt.Errorf("asset %d metadata: %w", p.ID, err)
		}
		auth, err := escrow.New(appID, p.ID, tk.Configuration)
		if err != nil {
			return 0, fmt.Errorf("asset %d authority: %w", p.ID, err)
		}
		if auth.Address() != p.Clawback {
			return 0, fmt.Errorf("asset %d clawback %s does not match its term sheet", p.ID, p.Clawback)
		}
		l.RegisterAuthority(auth)
	}
	return appID, nil
}
