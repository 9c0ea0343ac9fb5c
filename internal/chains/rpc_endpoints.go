package chains

// publicFallbackEndpoints is the small fixed list of public RPC endpoints
// tried once per call after the configured endpoints fail. Keyed by chain
// slug. Data, not code: adding a fallback is an entry here.
var publicFallbackEndpoints = map[string][]string{
	"ethereum": {
		"https://eth.llamarpc.com",
		"https://rpc.ankr.com/eth",
	},
	"polygon": {
		"https://polygon-rpc.com",
		"https://rpc.ankr.com/polygon",
	},
	"bsc": {
		"https://bsc-dataseed.binance.org",
		"https://rpc.ankr.com/bsc",
	},
	"base": {
		"https://mainnet.base.org",
	},
	"arbitrum": {
		"https://arb1.arbitrum.io/rpc",
		"https://rpc.ankr.com/arbitrum",
	},
	"optimism": {
		"https://mainnet.optimism.io",
	},
}

// PublicFallbackEndpoints returns the public fallback RPC endpoints for a
// chain slug, or nil when none are known.
func PublicFallbackEndpoints(slug string) []string {
	return publicFallbackEndpoints[slug]
}
