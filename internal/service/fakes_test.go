package service

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/wallet-scanner/internal/apperrors"
	"github.com/wallet-scanner/internal/chains"
	"github.com/wallet-scanner/internal/models"
	"github.com/wallet-scanner/internal/provider"
)

// fakeStores is an in-memory implementation of every store interface, shared
// by the service tests.
type fakeStores struct {
	mu sync.Mutex

	chains  []models.Chain
	wallets map[string]*models.Wallet

	tracked        map[string]*models.TrackedToken // chainID|contract
	trackedUpserts map[string]int

	snapshots     map[string]*models.UniverseSnapshot // by id
	snapshotItems map[string][]models.UniverseItem

	runs      map[string]*models.ScanRun
	scanItems map[string]map[string]models.ScanItem // runID -> contract

	daily           map[string]*models.DailySnapshot // by date
	dailyItems      []models.SnapshotItem
	latestScanItems map[string][]models.ScanItem // walletID

	protocols map[string][]models.ProtocolContract
}

func newFakeStores(chainList ...models.Chain) *fakeStores {
	return &fakeStores{
		chains:          chainList,
		wallets:         map[string]*models.Wallet{},
		tracked:         map[string]*models.TrackedToken{},
		trackedUpserts:  map[string]int{},
		snapshots:       map[string]*models.UniverseSnapshot{},
		snapshotItems:   map[string][]models.UniverseItem{},
		runs:            map[string]*models.ScanRun{},
		scanItems:       map[string]map[string]models.ScanItem{},
		daily:           map[string]*models.DailySnapshot{},
		latestScanItems: map[string][]models.ScanItem{},
		protocols:       map[string][]models.ProtocolContract{},
	}
}

func trackedKey(chainID, contract string) string { return chainID + "|" + contract }

func (f *fakeStores) ListChains(ctx context.Context) ([]models.Chain, error) {
	return f.chains, nil
}

func (f *fakeStores) GetChainByID(ctx context.Context, id string) (*models.Chain, error) {
	for i := range f.chains {
		if f.chains[i].ID == id {
			return &f.chains[i], nil
		}
	}
	return nil, nil
}

func (f *fakeStores) GetWalletByID(ctx context.Context, id string) (*models.Wallet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.wallets[id], nil
}

func (f *fakeStores) GetWalletByChainAndAddress(ctx context.Context, chainID, address string) (*models.Wallet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, w := range f.wallets {
		if w.ChainID == chainID && w.Address == address {
			return w, nil
		}
	}
	return nil, nil
}

func (f *fakeStores) ListWallets(ctx context.Context, onlyActive bool) ([]models.Wallet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Wallet, 0, len(f.wallets))
	for _, w := range f.wallets {
		if onlyActive && !w.IsActive {
			continue
		}
		out = append(out, *w)
	}
	return out, nil
}

func (f *fakeStores) CreateWallet(ctx context.Context, wallet *models.Wallet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *wallet
	f.wallets[wallet.ID] = &copied
	return nil
}

func (f *fakeStores) UpsertTrackedToken(ctx context.Context, token *models.TrackedToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := trackedKey(token.ChainID, token.ContractOrMint)
	f.trackedUpserts[key]++
	if existing, ok := f.tracked[key]; ok {
		// Never overwrite known metadata with nulls.
		if token.Symbol == nil {
			token.Symbol = existing.Symbol
		}
		if token.Name == nil {
			token.Name = existing.Name
		}
		if token.Decimals == nil {
			token.Decimals = existing.Decimals
		}
		token.ID = existing.ID
		token.CreatedAt = existing.CreatedAt
	}
	copied := *token
	f.tracked[key] = &copied
	return nil
}

func (f *fakeStores) ListTrackedTokens(ctx context.Context, chainID string, onlyActive bool) ([]models.TrackedToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.TrackedToken, 0)
	for _, t := range f.tracked {
		if t.ChainID != chainID {
			continue
		}
		if onlyActive && !t.IsActive {
			continue
		}
		out = append(out, *t)
	}
	return out, nil
}

func (f *fakeStores) CountTrackedTokensByChain(ctx context.Context, chainID string) (int, error) {
	list, _ := f.ListTrackedTokens(ctx, chainID, true)
	return len(list), nil
}

func (f *fakeStores) UpsertSnapshot(ctx context.Context, snapshot *models.UniverseSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *snapshot
	f.snapshots[snapshot.ID] = &copied
	return nil
}

func (f *fakeStores) ReplaceSnapshotItems(ctx context.Context, snapshotID string, items []models.UniverseItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshotItems[snapshotID] = append([]models.UniverseItem(nil), items...)
	return nil
}

func (f *fakeStores) GetLatestScanEligibleSnapshot(ctx context.Context, chainID string) (*models.UniverseSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *models.UniverseSnapshot
	for _, s := range f.snapshots {
		if s.ChainID != chainID || !s.ScanEligible() {
			continue
		}
		if latest == nil || s.AsOfDate > latest.AsOfDate {
			latest = s
		}
	}
	return latest, nil
}

func (f *fakeStores) GetSnapshotByChainAndDate(ctx context.Context, chainID, asOfDate string) (*models.UniverseSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.snapshots {
		if s.ChainID == chainID && s.AsOfDate == asOfDate {
			return s, nil
		}
	}
	return nil, nil
}

func (f *fakeStores) GetSnapshotItems(ctx context.Context, snapshotID string) ([]models.UniverseItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotItems[snapshotID], nil
}

func (f *fakeStores) CreateScanRun(ctx context.Context, run *models.ScanRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *run
	f.runs[run.ID] = &copied
	return nil
}

func (f *fakeStores) UpdateScanRun(ctx context.Context, run *models.ScanRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.runs[run.ID]; !ok {
		return fmt.Errorf("scan run %s does not exist", run.ID)
	}
	copied := *run
	f.runs[run.ID] = &copied
	return nil
}

func (f *fakeStores) UpsertScanItem(ctx context.Context, item *models.ScanItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.scanItems[item.ScanID] == nil {
		f.scanItems[item.ScanID] = map[string]models.ScanItem{}
	}
	f.scanItems[item.ScanID][item.ContractOrMint] = *item
	return nil
}

func (f *fakeStores) GetLatestSuccessfulScanItems(ctx context.Context, walletID string) ([]models.ScanItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latestScanItems[walletID], nil
}

func (f *fakeStores) UpsertDailySnapshot(ctx context.Context, snapshot *models.DailySnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *snapshot
	f.daily[snapshot.SnapshotDate] = &copied
	return nil
}

func (f *fakeStores) UpsertSnapshotItem(ctx context.Context, item *models.SnapshotItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dailyItems = append(f.dailyItems, *item)
	return nil
}

func (f *fakeStores) GetDailySnapshotByDate(ctx context.Context, date string) (*models.DailySnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.daily[date], nil
}

func (f *fakeStores) ListSnapshotEligibleContracts(ctx context.Context, chainID string) ([]models.ProtocolContract, error) {
	return f.protocols[chainID], nil
}

// fakeBalanceResolver serves balances from a static map. Unlisted contracts
// resolve to zero; contracts in errs produce per-item error records; failAll
// fails the whole batch the way an unreachable chain would.
type fakeBalanceResolver struct {
	balances map[string]*big.Int
	errs     map[string]error
	failAll  bool
	meta     map[string]*chains.TokenMetadata
}

func (f *fakeBalanceResolver) ResolveBalances(ctx context.Context, chain *models.Chain, walletAddress string, tokens []chains.TokenDescriptor) ([]chains.BalanceRecord, error) {
	records := make([]chains.BalanceRecord, len(tokens))
	for i, desc := range tokens {
		decimals := 18
		if desc.Decimals != nil {
			decimals = *desc.Decimals
		}
		record := chains.BalanceRecord{
			ContractOrMint: desc.ContractOrMint,
			Symbol:         desc.Symbol,
			ValuationRef:   desc.ValuationRef,
			IsNative:       desc.IsNative,
			BalanceRaw:     "0",
			Decimals:       decimals,
		}
		if f.failAll {
			record.ResolutionErr = true
			record.ErrorMessage = "rpc unreachable"
		} else if err, ok := f.errs[desc.ContractOrMint]; ok {
			record.ResolutionErr = true
			record.ErrorMessage = err.Error()
		} else if raw, ok := f.balances[desc.ContractOrMint]; ok {
			record.BalanceRaw = raw.Text(16)
			record.BalanceNorm = chains.NormalizeBalance(raw, decimals)
		}
		records[i] = record
	}
	if f.failAll {
		return records, apperrors.NewAllResolutionsFailed(chain.ID, len(records))
	}
	return records, nil
}

func (f *fakeBalanceResolver) ReadTokenMetadata(ctx context.Context, chain *models.Chain, contract string) (*chains.TokenMetadata, error) {
	if meta, ok := f.meta[contract]; ok {
		return meta, nil
	}
	return nil, fmt.Errorf("no metadata for %s", contract)
}

// fakeMarket is a canned market source.
type fakeMarket struct {
	name   string
	tokens []provider.MarketToken
	err    error
	calls  int
}

func (f *fakeMarket) Name() string { return f.name }

func (f *fakeMarket) TopTokens(ctx context.Context, platformID string, limit int) ([]provider.MarketToken, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.tokens) > limit {
		return f.tokens[:limit], nil
	}
	return f.tokens, nil
}

// fakePrices is a canned price source.
type fakePrices struct {
	contract    map[string]float64
	native      map[string]float64
	contractErr error
	nativeErr   error
}

func (f *fakePrices) ContractPrices(ctx context.Context, platformID string, contracts []string) (map[string]float64, error) {
	if f.contractErr != nil {
		return nil, f.contractErr
	}
	out := map[string]float64{}
	for _, c := range contracts {
		if p, ok := f.contract[c]; ok {
			out[c] = p
		}
	}
	return out, nil
}

func (f *fakePrices) NativePrice(ctx context.Context, nativeCoinID string) (float64, error) {
	if f.nativeErr != nil {
		return 0, f.nativeErr
	}
	if p, ok := f.native[nativeCoinID]; ok {
		return p, nil
	}
	return 0, fmt.Errorf("no native price for %s", nativeCoinID)
}

// fakePool is a canned liquidity-pool price source.
type fakePool struct {
	prices map[string]float64
}

func (f *fakePool) PoolPrice(ctx context.Context, contract string) (float64, error) {
	if p, ok := f.prices[contract]; ok {
		return p, nil
	}
	return 0, fmt.Errorf("no pool for %s", contract)
}

// fakePriceCache is an in-memory, non-expiring price cache.
type fakePriceCache struct {
	mu     sync.Mutex
	prices map[string]float64
}

func newFakePriceCache() *fakePriceCache {
	return &fakePriceCache{prices: map[string]float64{}}
}

func (f *fakePriceCache) GetPrice(ctx context.Context, chainID, ref string) (float64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.prices[chainID+"|"+ref]
	return p, ok, nil
}

func (f *fakePriceCache) SetPrice(ctx context.Context, chainID, ref string, price float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[chainID+"|"+ref] = price
	return nil
}

// fakeProtocolReader serves canned protocol positions by contract id.
type fakeProtocolReader struct {
	positions map[string]*models.ProtocolPosition
	errs      map[string]error
}

func (f *fakeProtocolReader) ResolvePosition(ctx context.Context, chain *models.Chain, walletAddress string, contract *models.ProtocolContract) (*models.ProtocolPosition, error) {
	if err, ok := f.errs[contract.ID]; ok {
		return nil, fmt.Errorf("protocol %s (%s): %w", contract.Label, contract.ID, err)
	}
	if pos, ok := f.positions[contract.ID]; ok {
		return pos, nil
	}
	return nil, fmt.Errorf("protocol %s (%s): no position", contract.Label, contract.ID)
}
