package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/alitto/pond/v2"
	"golang.org/x/time/rate"
	"go.uber.org/zap"

	"github.com/wallet-scanner/internal/cache"
)

// MarketClient is the primary market-data source (CoinGecko-compatible API).
// TopTokens fetches the ranked market list, then resolves each entry's
// contract address for the requested platform with bounded-concurrency
// per-coin lookups. Entries without an address on the platform are dropped.
type MarketClient struct {
	baseURL     string
	apiKey      string
	client      *http.Client
	limiter     *rate.Limiter
	concurrency int
	iconCache   *cache.TTL[string]
	logger      *zap.Logger
}

// MarketClientConfig configures the primary market client.
type MarketClientConfig struct {
	BaseURL           string
	APIKey            string
	Timeout           time.Duration
	RequestsPerSecond float64
	Concurrency       int
	IconCacheTTL      time.Duration
}

// NewMarketClient creates the primary market-data client.
func NewMarketClient(cfg MarketClientConfig, logger *zap.Logger) *MarketClient {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 6
	}
	if cfg.IconCacheTTL <= 0 {
		cfg.IconCacheTTL = 6 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MarketClient{
		baseURL:     cfg.BaseURL,
		apiKey:      cfg.APIKey,
		client:      newHTTPClient(cfg.Timeout),
		limiter:     newLimiter(cfg.RequestsPerSecond),
		concurrency: cfg.Concurrency,
		iconCache:   cache.NewTTL[string](cfg.IconCacheTTL),
		logger:      logger,
	}
}

// Name identifies this source in snapshot records and error messages.
func (c *MarketClient) Name() string { return "market-primary" }

type marketListEntry struct {
	ID           string  `json:"id"`
	Symbol       string  `json:"symbol"`
	Name         string  `json:"name"`
	MarketCap    float64 `json:"market_cap"`
	Image        string  `json:"image"`
}

type coinDetail struct {
	DetailPlatforms map[string]struct {
		DecimalPlace    *int   `json:"decimal_place"`
		ContractAddress string `json:"contract_address"`
	} `json:"detail_platforms"`
	Image struct {
		Small string `json:"small"`
	} `json:"image"`
}

// TopTokens returns the top tokens by market cap that have a contract
// address on the given platform, ranked in source order.
func (c *MarketClient) TopTokens(ctx context.Context, platformID string, limit int) ([]MarketToken, error) {
	listURL := fmt.Sprintf(
		"%s/coins/markets?vs_currency=usd&order=market_cap_desc&per_page=%d&page=1",
		c.baseURL, limit)

	var entries []marketListEntry
	if err := httpGetJSON(ctx, c.client, c.limiter, c.Name(), listURL, c.header(), &entries); err != nil {
		return nil, err
	}

	// Resolve per-entry platform contracts concurrently; entries that fail
	// or have no contract on this platform are dropped, not fatal.
	resolved := make([]*MarketToken, len(entries))
	pool := pond.NewPool(c.concurrency)
	for i, entry := range entries {
		i, entry := i, entry
		pool.Submit(func() {
			token, err := c.resolvePlatformToken(ctx, entry, platformID)
			if err != nil {
				c.logger.Debug("platform lookup failed for market entry",
					zap.String("coin", entry.ID),
					zap.String("platform", platformID),
					zap.Error(err),
				)
				return
			}
			resolved[i] = token
		})
	}
	pool.StopAndWait()

	tokens := make([]MarketToken, 0, len(entries))
	for _, token := range resolved {
		if token != nil {
			tokens = append(tokens, *token)
		}
	}
	return tokens, nil
}

// resolvePlatformToken looks up one coin's contract address on the platform.
func (c *MarketClient) resolvePlatformToken(ctx context.Context, entry marketListEntry, platformID string) (*MarketToken, error) {
	detailURL := fmt.Sprintf(
		"%s/coins/%s?localization=false&tickers=false&market_data=false&community_data=false&developer_data=false",
		c.baseURL, url.PathEscape(entry.ID))

	var detail coinDetail
	if err := httpGetJSON(ctx, c.client, c.limiter, c.Name(), detailURL, c.header(), &detail); err != nil {
		return nil, err
	}

	platform, ok := detail.DetailPlatforms[platformID]
	if !ok || platform.ContractAddress == "" {
		return nil, fmt.Errorf("coin %s has no contract on platform %s", entry.ID, platformID)
	}

	icon := entry.Image
	if icon == "" {
		icon = detail.Image.Small
	}
	if icon != "" {
		c.iconCache.Set(platform.ContractAddress, icon)
	}

	return &MarketToken{
		ContractOrMint: platform.ContractAddress,
		Symbol:         entry.Symbol,
		Name:           entry.Name,
		Decimals:       platform.DecimalPlace,
		MarketCapUSD:   entry.MarketCap,
		IconURL:        icon,
	}, nil
}

// IconURL returns the cached icon URL for a contract, if fresh.
func (c *MarketClient) IconURL(contract string) (string, bool) {
	return c.iconCache.Get(contract)
}

func (c *MarketClient) header() http.Header {
	h := http.Header{}
	if c.apiKey != "" {
		h.Set("x-cg-pro-api-key", c.apiKey)
	}
	return h
}
