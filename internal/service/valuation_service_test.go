package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wallet-scanner/internal/models"
)

func TestValuatePositionsKnownPrice(t *testing.T) {
	chain := testChain()
	prices := &fakePrices{contract: map[string]float64{"0xaaa": 2.0}}
	svc := NewValuationService(prices, nil, nil, 0, 0, nil)

	valued, err := svc.ValuatePositions(context.Background(), &chain, []Position{
		{ContractOrMint: "0xAAA", Symbol: "aaa", Quantity: 3},
	})
	require.NoError(t, err)
	require.Len(t, valued, 1)

	v := valued[0]
	assert.Equal(t, models.ValuationKnown, v.Valuation)
	require.NotNil(t, v.USDPrice)
	require.NotNil(t, v.USDValue)
	assert.Equal(t, 2.0, *v.USDPrice)
	assert.Equal(t, 6.0, *v.USDValue)
	assert.Equal(t, PriceSourcePrimary, v.PriceSource)
}

func TestValuatePositionsUnknownKeepsQuantity(t *testing.T) {
	chain := testChain()
	svc := NewValuationService(&fakePrices{}, &fakePool{}, nil, 0, 0, nil)

	valued, err := svc.ValuatePositions(context.Background(), &chain, []Position{
		{ContractOrMint: "0xdead", Quantity: 7.5},
	})
	require.NoError(t, err)
	require.Len(t, valued, 1)

	v := valued[0]
	assert.Equal(t, models.ValuationUnknown, v.Valuation)
	assert.Nil(t, v.USDPrice)
	assert.Nil(t, v.USDValue)
	assert.Equal(t, 7.5, v.Quantity, "unknown positions keep their quantity")
}

func TestValuatePositionsPoolFallback(t *testing.T) {
	chain := testChain()
	prices := &fakePrices{contract: map[string]float64{}}
	pool := &fakePool{prices: map[string]float64{"0xbbb": 1.5}}
	svc := NewValuationService(prices, pool, nil, 0, 0, nil)

	valued, err := svc.ValuatePositions(context.Background(), &chain, []Position{
		{ContractOrMint: "0xbbb", Quantity: 2},
	})
	require.NoError(t, err)

	v := valued[0]
	assert.Equal(t, models.ValuationKnown, v.Valuation)
	assert.Equal(t, 3.0, *v.USDValue)
	assert.Equal(t, PriceSourcePool, v.PriceSource)
}

func TestValuatePositionsPrimaryBatchFailureDegrades(t *testing.T) {
	chain := testChain()
	prices := &fakePrices{contractErr: errors.New("price source down")}
	pool := &fakePool{prices: map[string]float64{"0xccc": 4.0}}
	svc := NewValuationService(prices, pool, nil, 0, 0, nil)

	valued, err := svc.ValuatePositions(context.Background(), &chain, []Position{
		{ContractOrMint: "0xccc", Quantity: 1},
		{ContractOrMint: "0xddd", Quantity: 1},
	})
	require.NoError(t, err, "missing prices are never an error")
	require.Len(t, valued, 2)

	assert.Equal(t, models.ValuationKnown, valued[0].Valuation)
	assert.Equal(t, PriceSourcePool, valued[0].PriceSource)
	assert.Equal(t, models.ValuationUnknown, valued[1].Valuation)
}

func TestValuatePositionsNativePrice(t *testing.T) {
	chain := testChain()
	prices := &fakePrices{native: map[string]float64{"ethereum": 3000}}
	svc := NewValuationService(prices, nil, nil, 0, 0, nil)

	valued, err := svc.ValuatePositions(context.Background(), &chain, []Position{
		{ContractOrMint: models.NativeAssetID(chain.Slug), Symbol: "ETH", Quantity: 0.5},
	})
	require.NoError(t, err)

	v := valued[0]
	assert.Equal(t, models.ValuationKnown, v.Valuation)
	assert.Equal(t, 1500.0, *v.USDValue)
}

func TestValuatePositionsNativeFallsBackToWrappedMarket(t *testing.T) {
	chain := testChain()
	chain.WrappedNativeContract = "0xWETH"
	prices := &fakePrices{
		nativeErr: errors.New("native lookup down"),
		contract:  map[string]float64{models.NormalizeAddress(chain.Family, "0xWETH"): 3000},
	}
	svc := NewValuationService(prices, nil, nil, 0, 0, nil)

	valued, err := svc.ValuatePositions(context.Background(), &chain, []Position{
		{ContractOrMint: models.NativeAssetID(chain.Slug), ValuationRef: "0xWETH", Quantity: 2},
	})
	require.NoError(t, err)

	v := valued[0]
	assert.Equal(t, models.ValuationKnown, v.Valuation)
	assert.Equal(t, 6000.0, *v.USDValue)
}

func TestValuatePositionsCacheFallbackAndWriteThrough(t *testing.T) {
	chain := testChain()
	cache := newFakePriceCache()
	require.NoError(t, cache.SetPrice(context.Background(), chain.ID, "0xold", 9.0))

	prices := &fakePrices{contract: map[string]float64{"0xfresh": 1.0}}
	svc := NewValuationService(prices, nil, cache, 0, 0, nil)

	valued, err := svc.ValuatePositions(context.Background(), &chain, []Position{
		{ContractOrMint: "0xold", Quantity: 2},
		{ContractOrMint: "0xfresh", Quantity: 1},
	})
	require.NoError(t, err)

	assert.Equal(t, PriceSourceCache, valued[0].PriceSource)
	assert.Equal(t, 18.0, *valued[0].USDValue)

	// Fresh primary prices are written through for future fallback use.
	cached, ok, err := cache.GetPrice(context.Background(), chain.ID, "0xfresh")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1.0, cached)
}

func TestValuatePositionsRejectsMalformedInput(t *testing.T) {
	chain := testChain()
	svc := NewValuationService(&fakePrices{}, nil, nil, 0, 0, nil)

	_, err := svc.ValuatePositions(context.Background(), &chain, []Position{{Quantity: 1}})
	require.Error(t, err)

	_, err = svc.ValuatePositions(context.Background(), nil, nil)
	require.Error(t, err)
}

func TestValuatePositionsOneOutputPerInputInOrder(t *testing.T) {
	chain := testChain()
	prices := &fakePrices{contract: map[string]float64{"0xa": 1, "0xc": 3}}
	svc := NewValuationService(prices, nil, nil, 1, 2, nil)

	inputs := []Position{
		{ContractOrMint: "0xa", Quantity: 1},
		{ContractOrMint: "0xb", Quantity: 2},
		{ContractOrMint: "0xc", Quantity: 3},
		{ContractOrMint: "0xa", Quantity: 4},
	}
	valued, err := svc.ValuatePositions(context.Background(), &chain, inputs)
	require.NoError(t, err)
	require.Len(t, valued, len(inputs))
	for i, v := range valued {
		assert.Equal(t, inputs[i].ContractOrMint, v.ContractOrMint)
		assert.Equal(t, inputs[i].Quantity, v.Quantity)
	}
	assert.Equal(t, 4.0, *valued[3].USDValue, "duplicate refs value independently")
}
