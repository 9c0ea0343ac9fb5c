package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// PriceClient is the primary price source (CoinGecko-compatible simple
// price API). Contract prices resolve in one batched call per request;
// native prices resolve by coin id.
type PriceClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
}

// NewPriceClient creates the primary price client.
func NewPriceClient(baseURL, apiKey string, timeout time.Duration, rps float64) *PriceClient {
	return &PriceClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  newHTTPClient(timeout),
		limiter: newLimiter(rps),
	}
}

type usdQuote struct {
	USD float64 `json:"usd"`
}

// ContractPrices returns USD prices for the given contracts on a platform.
// Contracts the source does not know are simply absent from the result map;
// that is not an error.
func (c *PriceClient) ContractPrices(ctx context.Context, platformID string, contracts []string) (map[string]float64, error) {
	if len(contracts) == 0 {
		return map[string]float64{}, nil
	}

	priceURL := fmt.Sprintf("%s/simple/token_price/%s?contract_addresses=%s&vs_currencies=usd",
		c.baseURL, url.PathEscape(platformID), url.QueryEscape(strings.Join(contracts, ",")))

	var raw map[string]usdQuote
	if err := httpGetJSON(ctx, c.client, c.limiter, "price-primary", priceURL, c.header(), &raw); err != nil {
		return nil, err
	}

	// The source lowercases contract keys; match on the caller's casing.
	prices := make(map[string]float64, len(raw))
	byLower := make(map[string]float64, len(raw))
	for contract, quote := range raw {
		if quote.USD > 0 {
			byLower[strings.ToLower(contract)] = quote.USD
		}
	}
	for _, contract := range contracts {
		if price, ok := byLower[strings.ToLower(contract)]; ok {
			prices[contract] = price
		}
	}
	return prices, nil
}

// NativePrice returns the USD price of a native asset by coin id.
func (c *PriceClient) NativePrice(ctx context.Context, nativeCoinID string) (float64, error) {
	if nativeCoinID == "" {
		return 0, fmt.Errorf("no native coin id configured")
	}

	priceURL := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd",
		c.baseURL, url.QueryEscape(nativeCoinID))

	var raw map[string]usdQuote
	if err := httpGetJSON(ctx, c.client, c.limiter, "price-primary", priceURL, c.header(), &raw); err != nil {
		return 0, err
	}

	quote, ok := raw[nativeCoinID]
	if !ok || quote.USD <= 0 {
		return 0, fmt.Errorf("no usd price for native coin %s", nativeCoinID)
	}
	return quote.USD, nil
}

func (c *PriceClient) header() http.Header {
	h := http.Header{}
	if c.apiKey != "" {
		h.Set("x-cg-pro-api-key", c.apiKey)
	}
	return h
}
