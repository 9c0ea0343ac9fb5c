package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wallet-scanner/internal/apperrors"
	"github.com/wallet-scanner/internal/models"
	"github.com/wallet-scanner/internal/provider"
)

func testChain() models.Chain {
	return models.Chain{
		ID:             "chain-eth",
		Slug:           "ethereum",
		Name:           "Ethereum",
		Family:         models.FamilyEVM,
		ChainID:        1,
		RPCURL:         "http://localhost:8545",
		NativeSymbol:   "ETH",
		NativeDecimals: 18,
		PlatformID:     "ethereum",
		NativeCoinID:   "ethereum",
		IsActive:       true,
	}
}

func marketTokens(n int) []provider.MarketToken {
	tokens := make([]provider.MarketToken, n)
	for i := range tokens {
		tokens[i] = provider.MarketToken{
			ContractOrMint: fmt.Sprintf("0xC%039d", i),
			Symbol:         fmt.Sprintf("tok%d", i),
			Name:           fmt.Sprintf("Token %d", i),
			MarketCapUSD:   float64(1000 - i),
		}
	}
	return tokens
}

func TestRefreshChainPrimarySuccess(t *testing.T) {
	chain := testChain()
	stores := newFakeStores(chain)
	primary := &fakeMarket{name: "market-primary", tokens: marketTokens(3)}
	svc := NewUniverseService(stores, stores, primary, &fakeMarket{name: "market-fallback"}, 3, nil)

	snap, err := svc.RefreshChain(context.Background(), &chain, "2026-08-28")
	require.NoError(t, err)

	assert.Equal(t, models.SourcePrimary, snap.Source)
	assert.Equal(t, models.SnapshotReady, snap.Status)
	assert.Equal(t, 3, snap.ItemCount)

	items, err := stores.GetSnapshotItems(context.Background(), snap.ID)
	require.NoError(t, err)
	require.Len(t, items, 3)
	for i, item := range items {
		assert.Equal(t, i+1, item.Rank, "ranking is stable 1..N in source order")
		assert.Equal(t, item.ContractOrMint, models.NormalizeAddress(chain.Family, item.ContractOrMint),
			"stored contracts are case-normalized")
	}
}

func TestRefreshChainShortListIsPartial(t *testing.T) {
	chain := testChain()
	stores := newFakeStores(chain)
	primary := &fakeMarket{name: "market-primary", tokens: marketTokens(2)}
	svc := NewUniverseService(stores, stores, primary, nil, 5, nil)

	snap, err := svc.RefreshChain(context.Background(), &chain, "2026-08-28")
	require.NoError(t, err)
	assert.Equal(t, models.SnapshotPartial, snap.Status)
	assert.Equal(t, 2, snap.ItemCount)
}

func TestRefreshChainFallsBackToSecondary(t *testing.T) {
	chain := testChain()
	stores := newFakeStores(chain)
	primary := &fakeMarket{name: "market-primary", err: errors.New("primary down")}
	fallback := &fakeMarket{name: "market-fallback", tokens: marketTokens(2)}
	svc := NewUniverseService(stores, stores, primary, fallback, 5, nil)

	snap, err := svc.RefreshChain(context.Background(), &chain, "2026-08-28")
	require.NoError(t, err)
	assert.Equal(t, models.SourceFallback, snap.Source)
	assert.Equal(t, models.SnapshotPartial, snap.Status)
}

func TestRefreshChainDualSourceFailure(t *testing.T) {
	chain := testChain()
	stores := newFakeStores(chain)
	primary := &fakeMarket{name: "market-primary", err: errors.New("primary down")}
	fallback := &fakeMarket{name: "market-fallback", err: errors.New("fallback down")}
	svc := NewUniverseService(stores, stores, primary, fallback, 5, nil)

	_, err := svc.RefreshChain(context.Background(), &chain, "2026-08-28")
	require.Error(t, err)

	var dual *apperrors.DualSourceError
	require.ErrorAs(t, err, &dual)
	assert.Len(t, dual.Failures, 2)
	assert.Contains(t, err.Error(), "primary down")
	assert.Contains(t, err.Error(), "fallback down")

	// Nothing written on dual failure from RefreshChain itself.
	snap, _ := stores.GetSnapshotByChainAndDate(context.Background(), chain.ID, "2026-08-28")
	assert.Nil(t, snap)
}

func TestRefreshAllChainsPreservesPriorEligibleSnapshot(t *testing.T) {
	chain := testChain()
	stores := newFakeStores(chain)

	prior := &models.UniverseSnapshot{
		ID:        "snap-prior",
		ChainID:   chain.ID,
		AsOfDate:  "2026-08-28",
		Source:    models.SourcePrimary,
		Status:    models.SnapshotReady,
		ItemCount: 5,
	}
	require.NoError(t, stores.UpsertSnapshot(context.Background(), prior))

	primary := &fakeMarket{name: "market-primary", err: errors.New("primary down")}
	fallback := &fakeMarket{name: "market-fallback", err: errors.New("fallback down")}
	svc := NewUniverseService(stores, stores, primary, fallback, 5, nil)

	outcomes, err := svc.RefreshAllChains(context.Background(), "2026-08-28")
	require.NoError(t, err)
	require.Len(t, outcomes, 1)

	assert.Equal(t, "snap-prior", outcomes[0].ActiveSnapshotID)
	assert.Error(t, outcomes[0].Err)

	// The stored snapshot keeps its status: never downgraded by the failure.
	stored, _ := stores.GetSnapshotByChainAndDate(context.Background(), chain.ID, "2026-08-28")
	require.NotNil(t, stored)
	assert.Equal(t, models.SnapshotReady, stored.Status)
	assert.Equal(t, 5, stored.ItemCount)
}

func TestRefreshAllChainsWritesFailedSnapshotWhenNoPrior(t *testing.T) {
	chain := testChain()
	stores := newFakeStores(chain)
	primary := &fakeMarket{name: "market-primary", err: errors.New("primary down")}
	fallback := &fakeMarket{name: "market-fallback", err: errors.New("fallback down")}
	svc := NewUniverseService(stores, stores, primary, fallback, 5, nil)

	outcomes, err := svc.RefreshAllChains(context.Background(), "2026-08-28")
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, models.SnapshotFailed, outcomes[0].Status)

	stored, _ := stores.GetSnapshotByChainAndDate(context.Background(), chain.ID, "2026-08-28")
	require.NotNil(t, stored)
	assert.Equal(t, models.SnapshotFailed, stored.Status)
	assert.Equal(t, 0, stored.ItemCount)
	require.NotNil(t, stored.ErrorMessage)
	assert.Contains(t, *stored.ErrorMessage, "primary down")
	assert.False(t, stored.ScanEligible())
}

func TestRefreshAllChainsSkipsInactiveChains(t *testing.T) {
	inactive := testChain()
	inactive.IsActive = false
	stores := newFakeStores(inactive)
	svc := NewUniverseService(stores, stores, &fakeMarket{name: "market-primary", tokens: marketTokens(1)}, nil, 5, nil)

	outcomes, err := svc.RefreshAllChains(context.Background(), "2026-08-28")
	require.NoError(t, err)
	assert.Empty(t, outcomes)
}

func TestRefreshChainReusesSnapshotIDForSameDate(t *testing.T) {
	chain := testChain()
	stores := newFakeStores(chain)
	primary := &fakeMarket{name: "market-primary", tokens: marketTokens(3)}
	svc := NewUniverseService(stores, stores, primary, nil, 3, nil)

	first, err := svc.RefreshChain(context.Background(), &chain, "2026-08-28")
	require.NoError(t, err)
	second, err := svc.RefreshChain(context.Background(), &chain, "2026-08-28")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "same (chain, date) keeps one snapshot identity")
}
