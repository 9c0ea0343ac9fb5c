package service

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wallet-scanner/internal/apperrors"
	"github.com/wallet-scanner/internal/chains"
	"github.com/wallet-scanner/internal/models"
)

const (
	tokenA = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	tokenB = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

type scanHarness struct {
	stores   *fakeStores
	resolver *fakeBalanceResolver
	prices   *fakePrices
	svc      *ScanService
	chain    models.Chain
	wallet   models.Wallet
}

// newScanHarness wires a scan service over in-memory stores, one chain, and
// one wallet. The chain carries no native symbol so tests control the scan
// set exactly; native-asset tests override the chain before building.
func newScanHarness(t *testing.T, mutate func(*models.Chain)) *scanHarness {
	t.Helper()

	chain := testChain()
	chain.NativeSymbol = ""
	if mutate != nil {
		mutate(&chain)
	}

	stores := newFakeStores(chain)
	wallet := models.Wallet{
		ID:       "wallet-1",
		ChainID:  chain.ID,
		Address:  "0xFEeD00000000000000000000000000000000BEEF",
		IsActive: true,
	}
	require.NoError(t, stores.CreateWallet(context.Background(), &wallet))

	resolver := &fakeBalanceResolver{
		balances: map[string]*big.Int{},
		errs:     map[string]error{},
		meta:     map[string]*chains.TokenMetadata{},
	}
	prices := &fakePrices{contract: map[string]float64{}, native: map[string]float64{}}
	valuator := NewValuationService(prices, nil, nil, 0, 0, nil)
	universe := NewUniverseService(stores, stores, &fakeMarket{name: "market-primary", err: errors.New("market down")}, nil, 5, nil)

	svc := NewScanService(stores, stores, stores, stores, universe, stores, resolver, valuator, nil, nil)
	return &scanHarness{
		stores:   stores,
		resolver: resolver,
		prices:   prices,
		svc:      svc,
		chain:    chain,
		wallet:   wallet,
	}
}

// seedUniverse installs a scan-eligible snapshot with discovery items.
func (h *scanHarness) seedUniverse(t *testing.T, items ...models.UniverseItem) {
	t.Helper()
	snap := &models.UniverseSnapshot{
		ID:        "snap-1",
		ChainID:   h.chain.ID,
		AsOfDate:  UniverseDate(time.Now()),
		Source:    models.SourcePrimary,
		Status:    models.SnapshotReady,
		ItemCount: len(items),
	}
	require.NoError(t, h.stores.UpsertSnapshot(context.Background(), snap))
	for i := range items {
		items[i].SnapshotID = snap.ID
		items[i].Rank = i + 1
	}
	require.NoError(t, h.stores.ReplaceSnapshotItems(context.Background(), snap.ID, items))
}

func (h *scanHarness) runItems(t *testing.T, runID string) map[string]models.ScanItem {
	t.Helper()
	return h.stores.scanItems[runID]
}

func decimalsPtr(d int) *int { return &d }

func TestRunScanEndToEnd(t *testing.T) {
	h := newScanHarness(t, nil)
	h.seedUniverse(t,
		models.UniverseItem{ContractOrMint: tokenA, Symbol: "aaa", Decimals: decimalsPtr(0)},
		models.UniverseItem{ContractOrMint: tokenB, Symbol: "bbb", Decimals: decimalsPtr(18)},
	)
	h.resolver.balances[tokenA] = big.NewInt(5)
	h.prices.contract[tokenA] = 2.0

	run, err := h.svc.RunScan(context.Background(), h.wallet.ID)
	require.NoError(t, err)

	assert.Equal(t, models.ScanSuccess, run.Status)
	assert.Equal(t, 2, run.TokensScanned)
	assert.Equal(t, 1, run.TokensHeld)
	assert.Equal(t, 1, run.AutoTrackedCount, "only the held token is auto-tracked")
	require.NotNil(t, run.FinishedAt)

	items := h.runItems(t, run.ID)
	require.Len(t, items, 2)

	itemA := items[tokenA]
	assert.True(t, itemA.Held)
	assert.True(t, itemA.AutoTracked)
	assert.Equal(t, "5", itemA.BalanceRaw)
	assert.Equal(t, 5.0, itemA.BalanceNorm)
	assert.Equal(t, models.ValuationKnown, itemA.Valuation)
	assert.Equal(t, 10.0, *itemA.USDValue)

	itemB := items[tokenB]
	assert.False(t, itemB.Held)
	assert.False(t, itemB.AutoTracked, "zero balances are never auto-tracked")
	assert.Equal(t, models.ValuationUnknown, itemB.Valuation)

	// Only token A entered the tracked set.
	tracked, err := h.stores.ListTrackedTokens(context.Background(), h.chain.ID, true)
	require.NoError(t, err)
	require.Len(t, tracked, 1)
	assert.Equal(t, tokenA, tracked[0].ContractOrMint)
	assert.Equal(t, models.MetadataAuto, tracked[0].MetadataSource)
	assert.Equal(t, models.TrackingScan, tracked[0].TrackingSource)
}

func TestRunScanAllResolutionsFailed(t *testing.T) {
	h := newScanHarness(t, nil)
	h.seedUniverse(t,
		models.UniverseItem{ContractOrMint: tokenA, Symbol: "aaa"},
	)
	h.resolver.failAll = true

	run, err := h.svc.RunScan(context.Background(), h.wallet.ID)
	require.Error(t, err)

	var allFailed *apperrors.AllResolutionsFailedError
	require.ErrorAs(t, err, &allFailed)
	assert.Equal(t, h.chain.ID, allFailed.ChainID)

	require.NotNil(t, run)
	stored := h.stores.runs[run.ID]
	require.NotNil(t, stored)
	assert.Equal(t, models.ScanFailed, stored.Status)
	require.NotNil(t, stored.ErrorMessage)
	assert.Contains(t, *stored.ErrorMessage, "balance resolutions failed")
}

func TestRunScanAutoTracksExactlyOnce(t *testing.T) {
	h := newScanHarness(t, nil)
	h.seedUniverse(t,
		models.UniverseItem{ContractOrMint: tokenA, Symbol: "aaa", Decimals: decimalsPtr(0)},
	)
	h.resolver.balances[tokenA] = big.NewInt(5)
	h.prices.contract[tokenA] = 1.0

	first, err := h.svc.RunScan(context.Background(), h.wallet.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, first.AutoTrackedCount)

	second, err := h.svc.RunScan(context.Background(), h.wallet.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, second.AutoTrackedCount, "already-tracked tokens are not re-tracked")
	assert.NotEqual(t, first.ID, second.ID, "every scan creates a new run")

	key := trackedKey(h.chain.ID, tokenA)
	assert.Equal(t, 1, h.stores.trackedUpserts[key], "one tracked-token write across repeated scans")
}

func TestRunScanTrackedTokensTakePrecedenceOverDiscovery(t *testing.T) {
	h := newScanHarness(t, nil)
	h.seedUniverse(t,
		models.UniverseItem{ContractOrMint: tokenB, Symbol: "bbb", Decimals: decimalsPtr(18)},
	)
	symbol := "aaa"
	require.NoError(t, h.stores.UpsertTrackedToken(context.Background(), &models.TrackedToken{
		ID:             "tok-a",
		ChainID:        h.chain.ID,
		ContractOrMint: tokenA,
		Symbol:         &symbol,
		Decimals:       decimalsPtr(0),
		MetadataSource: models.MetadataAuto,
		TrackingSource: models.TrackingManual,
		IsActive:       true,
	}))
	h.resolver.balances[tokenA] = big.NewInt(1)

	run, err := h.svc.RunScan(context.Background(), h.wallet.ID)
	require.NoError(t, err)

	items := h.runItems(t, run.ID)
	require.Len(t, items, 1, "discovery items are skipped when tracked tokens exist")
	_, hasA := items[tokenA]
	assert.True(t, hasA)
}

func TestRunScanNativeAliasingSingleEntry(t *testing.T) {
	alias := "0x0000000000000000000000000000000000001010"
	h := newScanHarness(t, func(c *models.Chain) {
		c.Slug = "polygon"
		c.NativeSymbol = "MATIC"
		c.NativeDecimals = 18
		c.NativeAliases = []string{alias}
		c.NativeCoinID = "matic-network"
	})
	h.seedUniverse(t)
	require.NoError(t, h.stores.UpsertTrackedToken(context.Background(), &models.TrackedToken{
		ID:             "tok-alias",
		ChainID:        h.chain.ID,
		ContractOrMint: alias,
		Decimals:       decimalsPtr(18),
		MetadataSource: models.MetadataAuto,
		TrackingSource: models.TrackingManual,
		IsActive:       true,
	}))

	nativeID := models.NativeAssetID("polygon")
	h.resolver.balances[nativeID] = big.NewInt(1e18)
	h.prices.native["matic-network"] = 0.5

	run, err := h.svc.RunScan(context.Background(), h.wallet.ID)
	require.NoError(t, err)

	items := h.runItems(t, run.ID)
	require.Len(t, items, 1, "the alias collapses into the single native entry")

	native, ok := items[nativeID]
	require.True(t, ok, "the surviving item is keyed by the native identifier")
	assert.True(t, native.Held)
	assert.Equal(t, 0.5, *native.USDPrice)
}

func TestRunScanPartialWhenHeldItemUnvalued(t *testing.T) {
	h := newScanHarness(t, nil)
	h.seedUniverse(t,
		models.UniverseItem{ContractOrMint: tokenA, Symbol: "aaa", Decimals: decimalsPtr(0)},
	)
	h.resolver.balances[tokenA] = big.NewInt(5)
	// No price anywhere for token A.

	run, err := h.svc.RunScan(context.Background(), h.wallet.ID)
	require.NoError(t, err)

	assert.Equal(t, models.ScanPartial, run.Status)
	item := h.runItems(t, run.ID)[tokenA]
	assert.Equal(t, models.ValuationUnknown, item.Valuation)
	assert.Nil(t, item.USDValue)
}

func TestRunScanMissingWalletFailsFast(t *testing.T) {
	h := newScanHarness(t, nil)

	_, err := h.svc.RunScan(context.Background(), "no-such-wallet")
	require.Error(t, err)

	var notFound *apperrors.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "wallet", notFound.Resource)
	assert.Empty(t, h.stores.runs, "no run record for a missing wallet")
}

func TestRunScanSynthesizesSnapshotForTrackedTokens(t *testing.T) {
	// No universe snapshot exists and the on-demand refresh fails, but the
	// chain has a tracked token: the scan proceeds against it alone.
	h := newScanHarness(t, nil)
	symbol := "aaa"
	require.NoError(t, h.stores.UpsertTrackedToken(context.Background(), &models.TrackedToken{
		ID:             "tok-a",
		ChainID:        h.chain.ID,
		ContractOrMint: tokenA,
		Symbol:         &symbol,
		Decimals:       decimalsPtr(0),
		MetadataSource: models.MetadataAuto,
		TrackingSource: models.TrackingManual,
		IsActive:       true,
	}))
	h.resolver.balances[tokenA] = big.NewInt(2)
	h.prices.contract[tokenA] = 1.0

	run, err := h.svc.RunScan(context.Background(), h.wallet.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ScanSuccess, run.Status)

	snap := h.stores.snapshots[run.UniverseSnapshotID]
	require.NotNil(t, snap)
	assert.Equal(t, models.SnapshotPartial, snap.Status)
	assert.Equal(t, 0, snap.ItemCount)
	require.NotNil(t, snap.ErrorMessage)
	assert.Contains(t, *snap.ErrorMessage, "market down")
}

func TestRunScanFailsWithoutUniverseOrTrackedTokens(t *testing.T) {
	h := newScanHarness(t, nil)

	_, err := h.svc.RunScan(context.Background(), h.wallet.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no scan-eligible universe")
	assert.Contains(t, err.Error(), "market down", "the refresh failure reason is embedded")
	assert.Empty(t, h.stores.runs)
}

func TestRunScanRefinesMissingMetadata(t *testing.T) {
	h := newScanHarness(t, nil)
	h.seedUniverse(t)
	require.NoError(t, h.stores.UpsertTrackedToken(context.Background(), &models.TrackedToken{
		ID:             "tok-a",
		ChainID:        h.chain.ID,
		ContractOrMint: tokenA,
		Decimals:       decimalsPtr(0),
		MetadataSource: models.MetadataAuto,
		TrackingSource: models.TrackingManual,
		IsActive:       true,
	}))
	symbol, name := "AAA", "Token A"
	h.resolver.meta[tokenA] = &chains.TokenMetadata{Symbol: &symbol, Name: &name}
	h.resolver.balances[tokenA] = big.NewInt(1)
	h.prices.contract[tokenA] = 1.0

	_, err := h.svc.RunScan(context.Background(), h.wallet.ID)
	require.NoError(t, err)

	tracked := h.stores.tracked[trackedKey(h.chain.ID, tokenA)]
	require.NotNil(t, tracked)
	require.NotNil(t, tracked.Symbol)
	assert.Equal(t, "AAA", *tracked.Symbol)
	require.NotNil(t, tracked.Name)
	require.NotNil(t, tracked.Decimals)
	assert.Equal(t, 0, *tracked.Decimals, "known decimals are not overwritten")
}

func TestRunScanPerItemErrorDoesNotFailRun(t *testing.T) {
	h := newScanHarness(t, nil)
	h.seedUniverse(t,
		models.UniverseItem{ContractOrMint: tokenA, Symbol: "aaa", Decimals: decimalsPtr(0)},
		models.UniverseItem{ContractOrMint: tokenB, Symbol: "bbb", Decimals: decimalsPtr(18)},
	)
	h.resolver.balances[tokenA] = big.NewInt(3)
	h.resolver.errs[tokenB] = errors.New("execution reverted")
	h.prices.contract[tokenA] = 2.0

	run, err := h.svc.RunScan(context.Background(), h.wallet.ID)
	require.NoError(t, err)

	assert.Equal(t, models.ScanSuccess, run.Status)
	items := h.runItems(t, run.ID)
	require.Len(t, items, 2)

	failed := items[tokenB]
	assert.True(t, failed.ResolutionErr)
	assert.False(t, failed.Held)
	require.NotNil(t, failed.ErrorMessage)
	assert.Contains(t, *failed.ErrorMessage, "execution reverted")
}
