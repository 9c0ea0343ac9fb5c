package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarketClientTopTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/coins/markets"):
			fmt.Fprint(w, `[
				{"id":"usd-coin","symbol":"usdc","name":"USD Coin","market_cap":30000000000,"image":"https://img/usdc.png"},
				{"id":"bitcoin","symbol":"btc","name":"Bitcoin","market_cap":900000000000,"image":""}
			]`)
		case strings.HasPrefix(r.URL.Path, "/coins/usd-coin"):
			fmt.Fprint(w, `{"detail_platforms":{"ethereum":{"decimal_place":6,"contract_address":"0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"}},"image":{"small":"https://img/usdc-small.png"}}`)
		case strings.HasPrefix(r.URL.Path, "/coins/bitcoin"):
			// No ethereum platform entry.
			fmt.Fprint(w, `{"detail_platforms":{},"image":{"small":""}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := NewMarketClient(MarketClientConfig{
		BaseURL:           srv.URL,
		Timeout:           5 * time.Second,
		RequestsPerSecond: 1000,
		Concurrency:       2,
	}, nil)

	tokens, err := client.TopTokens(context.Background(), "ethereum", 2)
	require.NoError(t, err)
	require.Len(t, tokens, 1, "entries without a platform contract are dropped")

	assert.Equal(t, "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", tokens[0].ContractOrMint)
	assert.Equal(t, "usdc", tokens[0].Symbol)
	require.NotNil(t, tokens[0].Decimals)
	assert.Equal(t, 6, *tokens[0].Decimals)
	assert.Equal(t, 30000000000.0, tokens[0].MarketCapUSD)

	icon, ok := client.IconURL("0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48")
	assert.True(t, ok)
	assert.Equal(t, "https://img/usdc.png", icon)
}

func TestFallbackMarketClientFiltersPlatform(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[
			{"symbol":"BTC","name":"Bitcoin","platform":null,"quote":{"USD":{"market_cap":900000000000}}},
			{"symbol":"USDT","name":"Tether","platform":{"slug":"ethereum","token_address":"0xdac17f958d2ee523a2206206994597c13d831ec7"},"quote":{"USD":{"market_cap":80000000000}}},
			{"symbol":"RAY","name":"Raydium","platform":{"slug":"solana","token_address":"4k3Dyjzvzp8eMZWUXbBCjEvwSkkk59S5iCNLY3QrkX6R"},"quote":{"USD":{"market_cap":500000000}}}
		]}`)
	}))
	defer srv.Close()

	client := NewFallbackMarketClient(srv.URL, "", 5*time.Second, 1000)
	tokens, err := client.TopTokens(context.Background(), "ethereum", 10)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, "0xdac17f958d2ee523a2206206994597c13d831ec7", tokens[0].ContractOrMint)
	assert.Equal(t, "usdt", tokens[0].Symbol)
}

func TestPriceClientContractPrices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Contains(t, r.URL.Path, "/simple/token_price/ethereum")
		fmt.Fprint(w, `{"0xaaa":{"usd":2.5},"0xbbb":{"usd":0}}`)
	}))
	defer srv.Close()

	client := NewPriceClient(srv.URL, "", 5*time.Second, 1000)
	prices, err := client.ContractPrices(context.Background(), "ethereum", []string{"0xAAA", "0xBBB", "0xCCC"})
	require.NoError(t, err)

	// Case-insensitive match back to caller casing; zero and unknown prices
	// are absent, not zero entries.
	require.Len(t, prices, 1)
	assert.Equal(t, 2.5, prices["0xAAA"])
}

func TestPriceClientNativePrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ethereum":{"usd":3200.12}}`)
	}))
	defer srv.Close()

	client := NewPriceClient(srv.URL, "", 5*time.Second, 1000)
	price, err := client.NativePrice(context.Background(), "ethereum")
	require.NoError(t, err)
	assert.Equal(t, 3200.12, price)

	_, err = client.NativePrice(context.Background(), "")
	require.Error(t, err)
}

func TestDexPoolClientPicksDeepestPair(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"pairs":[
			{"priceUsd":"1.02","liquidity":{"usd":50000}},
			{"priceUsd":"1.00","liquidity":{"usd":2500000}},
			{"priceUsd":"","liquidity":{"usd":99999999}}
		]}`)
	}))
	defer srv.Close()

	client := NewDexPoolClient(srv.URL, 5*time.Second, 1000)
	price, err := client.PoolPrice(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.Equal(t, 1.00, price)
}

func TestDexPoolClientNoPairs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"pairs":[]}`)
	}))
	defer srv.Close()

	client := NewDexPoolClient(srv.URL, 5*time.Second, 1000)
	_, err := client.PoolPrice(context.Background(), "0xabc")
	require.Error(t, err)
}

func TestHTTPGetJSONRetriesOnTransientFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"ok": "yes"})
	}))
	defer srv.Close()

	var out map[string]string
	err := httpGetJSON(context.Background(), newHTTPClient(5*time.Second), newLimiter(1000), "test", srv.URL, nil, &out)
	require.NoError(t, err)
	assert.Equal(t, "yes", out["ok"])
	assert.Equal(t, int32(2), calls.Load())
}

func TestHTTPGetJSONDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	var out map[string]string
	err := httpGetJSON(context.Background(), newHTTPClient(5*time.Second), newLimiter(1000), "test", srv.URL, nil, &out)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}
