package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// FallbackMarketClient is the secondary market-data source (CoinMarketCap-
// compatible listings API). It returns the full ranked listing in one call;
// entries are matched to the chain by the listing's platform slug.
type FallbackMarketClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
}

// NewFallbackMarketClient creates the secondary market-data client.
func NewFallbackMarketClient(baseURL, apiKey string, timeout time.Duration, rps float64) *FallbackMarketClient {
	return &FallbackMarketClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  newHTTPClient(timeout),
		limiter: newLimiter(rps),
	}
}

// Name identifies this source in snapshot records and error messages.
func (c *FallbackMarketClient) Name() string { return "market-fallback" }

type fallbackListing struct {
	Data []struct {
		Symbol   string `json:"symbol"`
		Name     string `json:"name"`
		Platform *struct {
			Slug         string `json:"slug"`
			TokenAddress string `json:"token_address"`
		} `json:"platform"`
		Quote map[string]struct {
			MarketCap float64 `json:"market_cap"`
		} `json:"quote"`
	} `json:"data"`
}

// TopTokens returns the top tokens whose listing platform matches the
// requested platform id, ranked in source order.
func (c *FallbackMarketClient) TopTokens(ctx context.Context, platformID string, limit int) ([]MarketToken, error) {
	// Over-fetch: listings mix every platform, so the per-platform yield of
	// one page is far below the page size.
	listURL := fmt.Sprintf("%s/cryptocurrency/listings/latest?limit=%d&convert=USD", c.baseURL, limit*10)

	header := http.Header{}
	if c.apiKey != "" {
		header.Set("X-CMC_PRO_API_KEY", c.apiKey)
	}

	var listing fallbackListing
	if err := httpGetJSON(ctx, c.client, c.limiter, c.Name(), listURL, header, &listing); err != nil {
		return nil, err
	}

	tokens := make([]MarketToken, 0, limit)
	for _, entry := range listing.Data {
		if entry.Platform == nil || entry.Platform.TokenAddress == "" {
			continue
		}
		if !strings.EqualFold(entry.Platform.Slug, platformID) {
			continue
		}
		var marketCap float64
		if quote, ok := entry.Quote["USD"]; ok {
			marketCap = quote.MarketCap
		}
		tokens = append(tokens, MarketToken{
			ContractOrMint: entry.Platform.TokenAddress,
			Symbol:         strings.ToLower(entry.Symbol),
			Name:           entry.Name,
			MarketCapUSD:   marketCap,
		})
		if len(tokens) == limit {
			break
		}
	}
	return tokens, nil
}
