package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// DexPoolClient is the liquidity-pool fallback price source (DexScreener-
// compatible API). It returns one price per contract, taken from the
// highest-liquidity pair the token trades in.
type DexPoolClient struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// NewDexPoolClient creates the liquidity-pool price client.
func NewDexPoolClient(baseURL string, timeout time.Duration, rps float64) *DexPoolClient {
	return &DexPoolClient{
		baseURL: baseURL,
		client:  newHTTPClient(timeout),
		limiter: newLimiter(rps),
	}
}

type dexPairsResponse struct {
	Pairs []struct {
		PriceUSD  string `json:"priceUsd"`
		Liquidity struct {
			USD float64 `json:"usd"`
		} `json:"liquidity"`
	} `json:"pairs"`
}

// PoolPrice returns the USD price of a contract from its deepest liquidity
// pair.
func (c *DexPoolClient) PoolPrice(ctx context.Context, contract string) (float64, error) {
	pairsURL := fmt.Sprintf("%s/latest/dex/tokens/%s", c.baseURL, url.PathEscape(contract))

	var resp dexPairsResponse
	if err := httpGetJSON(ctx, c.client, c.limiter, "price-dexpool", pairsURL, nil, &resp); err != nil {
		return 0, err
	}
	if len(resp.Pairs) == 0 {
		return 0, fmt.Errorf("no liquidity pairs for contract %s", contract)
	}

	best := -1
	bestLiquidity := -1.0
	for i, pair := range resp.Pairs {
		if pair.PriceUSD == "" {
			continue
		}
		if pair.Liquidity.USD > bestLiquidity {
			best = i
			bestLiquidity = pair.Liquidity.USD
		}
	}
	if best < 0 {
		return 0, fmt.Errorf("no priced pairs for contract %s", contract)
	}

	price, err := strconv.ParseFloat(resp.Pairs[best].PriceUSD, 64)
	if err != nil {
		return 0, fmt.Errorf("unparseable pool price %q for contract %s", resp.Pairs[best].PriceUSD, contract)
	}
	if price <= 0 {
		return 0, fmt.Errorf("non-positive pool price for contract %s", contract)
	}
	return price, nil
}
