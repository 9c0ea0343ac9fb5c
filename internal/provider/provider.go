// Package provider contains thin clients for the third-party data sources
// the pipeline depends on: a market-data source for ranked token universes,
// a price source for USD prices, and a liquidity-pool fallback price source.
// Clients are stateless beyond a rate limiter and a small in-process TTL
// cache for token icons; every call enforces the configured timeout and
// returns typed failures.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/wallet-scanner/internal/apperrors"
	"github.com/wallet-scanner/internal/retry"
)

// MarketToken is one normalized entry of a ranked token universe.
type MarketToken struct {
	ContractOrMint string
	Symbol         string
	Name           string
	Decimals       *int
	MarketCapUSD   float64
	IconURL        string
}

// MarketSource returns the top tokens by market capitalization for one chain
// platform, in rank order. Entries without a resolvable contract address for
// the platform are filtered out before ranking.
type MarketSource interface {
	Name() string
	TopTokens(ctx context.Context, platformID string, limit int) ([]MarketToken, error)
}

// PriceSource resolves USD prices for contract references and for a chain's
// native asset.
type PriceSource interface {
	ContractPrices(ctx context.Context, platformID string, contracts []string) (map[string]float64, error)
	NativePrice(ctx context.Context, nativeCoinID string) (float64, error)
}

// PoolPriceSource resolves a single USD price per contract from liquidity
// pools. Used as the per-reference fallback when the primary source has no
// price.
type PoolPriceSource interface {
	PoolPrice(ctx context.Context, contract string) (float64, error)
}

// httpGetJSON performs a rate-limited GET with retry on transient failures
// (429 and 5xx) and decodes the JSON response into out.
func httpGetJSON(ctx context.Context, client *http.Client, limiter *rate.Limiter, providerName, url string, header http.Header, out interface{}) error {
	op := fmt.Sprintf("GET %s", url)

	return retry.Do(ctx, retry.DefaultConfig(), func(ctx context.Context, attempt int) error {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}

		resp, err := client.Do(req)
		if err != nil {
			return apperrors.NewProviderError(providerName, op, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			io.Copy(io.Discard, resp.Body)
			return apperrors.NewProviderError(providerName, op,
				fmt.Errorf("status %d", resp.StatusCode))
		}
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return retry.Permanent(apperrors.NewProviderError(providerName, op,
				fmt.Errorf("status %d: %s", resp.StatusCode, string(body))))
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return apperrors.NewProviderError(providerName, op, fmt.Errorf("decode response: %w", err))
		}
		return nil
	})
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		rps = 3
	}
	return rate.NewLimiter(rate.Limit(rps), 1)
}
