package storage

import (
	"context"

	"github.com/wallet-scanner/internal/models"
)

// ChainDirectory serves the immutable chain reference data loaded from the
// YAML chain file at startup. It implements service.ChainDirectory; chains
// are never mutated after construction so lookups need no locking.
type ChainDirectory struct {
	chains []models.Chain
	byID   map[string]*models.Chain
	bySlug map[string]*models.Chain
}

// NewChainDirectory builds the directory over a loaded chain list.
func NewChainDirectory(chains []models.Chain) *ChainDirectory {
	d := &ChainDirectory{
		chains: chains,
		byID:   make(map[string]*models.Chain, len(chains)),
		bySlug: make(map[string]*models.Chain, len(chains)),
	}
	for i := range chains {
		d.byID[chains[i].ID] = &chains[i]
		d.bySlug[chains[i].Slug] = &chains[i]
	}
	return d
}

// ListChains returns every configured chain.
func (d *ChainDirectory) ListChains(ctx context.Context) ([]models.Chain, error) {
	return d.chains, nil
}

// GetChainByID returns a chain by id, or nil when unknown.
func (d *ChainDirectory) GetChainByID(ctx context.Context, id string) (*models.Chain, error) {
	return d.byID[id], nil
}

// GetChainBySlug returns a chain by slug, or nil when unknown.
func (d *ChainDirectory) GetChainBySlug(ctx context.Context, slug string) (*models.Chain, error) {
	return d.bySlug[slug], nil
}
