package orchestrator

import (
	"context"

	"github.com/tokility/tokilityd/internal/core/tx"
)

// HistoryRecorder receives one entry per submitted flow. The sqlite trade
// log in internal/storage/tradelog implements it.
type HistoryRecorder interface {
	Record(ctx context.Context, groupID [32]byte, flow string, assetID uint64, actor string, amount uint64, result string) error
}

// record writes a history entry if a recorder is attached. A failing
// recorder never fails the flow; the ledger outcome stands either way.
func (o *Orchestrator) record(ctx context.Context, groupID [32]byte, flow string, assetID uint64, actor string, amount uint64, result tx.Result) {
	if o.history == nil {
		return
	}
	if err := o.history.Record(ctx, groupID, flow, assetID, actor, amount, result.String()); err != nil {
		o.log.Warn().Err(err).Str("flow", flow).Msg("trade history write failed")
	}
}
