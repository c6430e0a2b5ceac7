package testing

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tokility/tokilityd/internal/core/tx"
)

// RequireBalance asserts that an account has the expected balance.
func RequireBalance(t *testing.T, env *TestEnv, acc *Account, expected uint64) {
	t.Helper()
	actual := env.Balance(acc)
	require.Equal(t, expected, actual,
		"account %s balance mismatch: expected %d, got %d", acc.Name, expected, actual)
}

// RequireHolding asserts how many units of the asset the account holds.
func RequireHolding(t *testing.T, env *TestEnv, acc *Account, assetID, expected uint64) {
	t.Helper()
	actual := env.Holding(acc, assetID)
	require.Equal(t, expected, actual,
		"account %s holding of asset %d mismatch: expected %d, got %d", acc.Name, assetID, expected, actual)
}

// RequireTxSuccess asserts that a group applied cleanly.
func RequireTxSuccess(t *testing.T, result tx.Result) {
	t.Helper()
	require.True(t, result.Success(),
		"expected tesSUCCESS, got %s", result)
}

// RequireTxFail asserts that a group was rejected with a specific code.
func RequireTxFail(t *testing.T, result tx.Result, expected tx.Result) {
	t.Helper()
	require.False(t, result.Success(),
		"expected failure with %s, but the group applied", expected)
	require.Equal(t, expected, result,
		"expected %s, got %s", expected, result)
}

// RequireOffer asserts that the account has a stored sell offer at the
// given ask.
func RequireOffer(t *testing.T, env *TestEnv, acc *Account, appID, assetID, ask uint64) {
	t.Helper()
	value, ok := env.Offer(acc, appID, assetID)
	require.True(t, ok, "account %s has no offer for asset %d", acc.Name, assetID)
	require.Len(t, value, 8, "offer value for %s is malformed", acc.Name)
	require.Equal(t, ask, binary.BigEndian.Uint64(value),
		"account %s offer ask mismatch", acc.Name)
}

// RequireNoOffer asserts that the account has no stored sell offer.
func RequireNoOffer(t *testing.T, env *TestEnv, acc *Account, appID, assetID uint64) {
	t.Helper()
	_, ok := env.Offer(acc, appID, assetID)
	require.False(t, ok, "account %s unexpectedly has an offer for asset %d", acc.Name, assetID)
}
