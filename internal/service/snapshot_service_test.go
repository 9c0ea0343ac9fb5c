package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wallet-scanner/internal/models"
)

type snapshotHarness struct {
	stores *fakeStores
	prices *fakePrices
	reader *fakeProtocolReader
	svc    *SnapshotService
	chain  models.Chain
	wallet models.Wallet
}

func newSnapshotHarness(t *testing.T) *snapshotHarness {
	t.Helper()

	chain := testChain()
	stores := newFakeStores(chain)
	wallet := models.Wallet{
		ID:       "wallet-1",
		ChainID:  chain.ID,
		Address:  "0xfeed00000000000000000000000000000000beef",
		IsActive: true,
	}
	require.NoError(t, stores.CreateWallet(context.Background(), &wallet))

	prices := &fakePrices{contract: map[string]float64{}, native: map[string]float64{}}
	reader := &fakeProtocolReader{
		positions: map[string]*models.ProtocolPosition{},
		errs:      map[string]error{},
	}
	valuator := NewValuationService(prices, nil, nil, 0, 0, nil)
	svc := NewSnapshotService(stores, stores, stores, stores, stores, reader, valuator, nil)

	return &snapshotHarness{
		stores: stores,
		prices: prices,
		reader: reader,
		svc:    svc,
		chain:  chain,
		wallet: wallet,
	}
}

// seedHeldItem installs a held token position in the wallet's latest scan.
func (h *snapshotHarness) seedHeldItem(contract string, quantity float64) {
	h.stores.latestScanItems[h.wallet.ID] = append(h.stores.latestScanItems[h.wallet.ID], models.ScanItem{
		ScanID:         "scan-1",
		ContractOrMint: contract,
		BalanceNorm:    quantity,
		Held:           quantity > 0,
	})
}

func TestDailySnapshotSuccess(t *testing.T) {
	h := newSnapshotHarness(t)
	h.seedHeldItem(tokenA, 3)
	h.prices.contract[tokenA] = 2.0

	snap, err := h.svc.Run(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, models.RunSuccess, snap.Status)
	assert.Equal(t, 1, snap.ItemCount)
	assert.Equal(t, 6.0, snap.TotalUSD)
	assert.Nil(t, snap.ErrorMessage)
	require.NotNil(t, snap.FinishedAt)

	require.Len(t, h.stores.dailyItems, 1)
	item := h.stores.dailyItems[0]
	assert.Equal(t, models.ItemToken, item.ItemType)
	assert.Equal(t, tokenA, item.ContractOrMint)
	assert.Equal(t, 3.0, item.Quantity)
	require.NotNil(t, item.USDValue)
	assert.Equal(t, 6.0, *item.USDValue)
	assert.Equal(t, models.ValuationKnown, item.Valuation)
}

func TestDailySnapshotRunsOncePerDay(t *testing.T) {
	h := newSnapshotHarness(t)
	h.seedHeldItem(tokenA, 3)
	h.prices.contract[tokenA] = 2.0

	first, err := h.svc.Run(context.Background(), false)
	require.NoError(t, err)
	require.Equal(t, models.RunSuccess, first.Status)

	// A second non-forced run the same day returns the stored snapshot and
	// does not recompute.
	h.prices.contract[tokenA] = 100.0
	second, err := h.svc.Run(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 6.0, second.TotalUSD)
	assert.Len(t, h.stores.dailyItems, 1)
}

func TestDailySnapshotForcedRerun(t *testing.T) {
	h := newSnapshotHarness(t)
	h.seedHeldItem(tokenA, 3)
	h.prices.contract[tokenA] = 2.0

	first, err := h.svc.Run(context.Background(), false)
	require.NoError(t, err)

	h.prices.contract[tokenA] = 3.0
	second, err := h.svc.Run(context.Background(), true)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "the date keeps one snapshot identity")
	assert.Equal(t, 9.0, second.TotalUSD)
}

func TestDailySnapshotPartialOnUnknownValuation(t *testing.T) {
	h := newSnapshotHarness(t)
	h.seedHeldItem(tokenA, 3)
	h.seedHeldItem(tokenB, 2)
	h.prices.contract[tokenA] = 2.0
	// Token B has no price anywhere.

	snap, err := h.svc.Run(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, models.RunPartial, snap.Status)
	assert.Equal(t, 2, snap.ItemCount)
	assert.Equal(t, 6.0, snap.TotalUSD, "unknown positions contribute no value")
}

func TestDailySnapshotProtocolPositions(t *testing.T) {
	h := newSnapshotHarness(t)
	h.stores.protocols[h.chain.ID] = []models.ProtocolContract{{
		ID:              "proto-1",
		ChainID:         h.chain.ID,
		Label:           "StakingVault",
		ContractAddress: "0xcccccccccccccccccccccccccccccccccccccccc",
		Symbol:          "stk",
		IsActive:        true,
	}}
	h.reader.positions["proto-1"] = &models.ProtocolPosition{
		ContractOrMint: "0xcccccccccccccccccccccccccccccccccccccccc",
		Symbol:         "stk",
		Quantity:       4,
	}
	h.prices.contract["0xcccccccccccccccccccccccccccccccccccccccc"] = 1.5

	snap, err := h.svc.Run(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, models.RunSuccess, snap.Status)
	require.Len(t, h.stores.dailyItems, 1)
	item := h.stores.dailyItems[0]
	assert.Equal(t, models.ItemProtocol, item.ItemType)
	require.NotNil(t, item.ProtocolID)
	assert.Equal(t, "proto-1", *item.ProtocolID)
	assert.Equal(t, 6.0, *item.USDValue)
	assert.Equal(t, 6.0, snap.TotalUSD)
}

func TestDailySnapshotProtocolFailureAggregated(t *testing.T) {
	h := newSnapshotHarness(t)
	h.seedHeldItem(tokenA, 3)
	h.prices.contract[tokenA] = 2.0
	h.stores.protocols[h.chain.ID] = []models.ProtocolContract{{
		ID:              "proto-1",
		ChainID:         h.chain.ID,
		Label:           "StakingVault",
		ContractAddress: "0xcccccccccccccccccccccccccccccccccccccccc",
		IsActive:        true,
	}}
	h.reader.errs["proto-1"] = errors.New("position read failed")

	snap, err := h.svc.Run(context.Background(), false)
	require.NoError(t, err, "a protocol read failure does not abort the run")

	assert.Equal(t, models.RunPartial, snap.Status)
	require.NotNil(t, snap.ErrorMessage)
	assert.Contains(t, *snap.ErrorMessage, "StakingVault")

	// The wallet's token item is still recorded.
	require.Len(t, h.stores.dailyItems, 1)
	assert.Equal(t, models.ItemToken, h.stores.dailyItems[0].ItemType)
	assert.Equal(t, 6.0, snap.TotalUSD)
}

func TestDailySnapshotFailedRunIsRetriedNextCall(t *testing.T) {
	h := newSnapshotHarness(t)
	date := UniverseDate(time.Now())
	msg := "storage offline"
	require.NoError(t, h.stores.UpsertDailySnapshot(context.Background(), &models.DailySnapshot{
		ID:           "daily-failed",
		SnapshotDate: date,
		Status:       models.RunFailed,
		ErrorMessage: &msg,
	}))
	h.seedHeldItem(tokenA, 1)
	h.prices.contract[tokenA] = 2.0

	snap, err := h.svc.Run(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, models.RunSuccess, snap.Status, "a failed snapshot does not block a retry")
	assert.Equal(t, "daily-failed", snap.ID)
}
