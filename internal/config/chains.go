package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/wallet-scanner/internal/models"
)

type chainsFile struct {
	Chains []models.Chain `yaml:"chains"`
}

// LoadChains reads the chain directory from a YAML file. Chains are immutable
// reference data; the pipeline never writes them back.
func LoadChains(path string) ([]models.Chain, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read chains file %s: %w", path, err)
	}

	var f chainsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse chains file %s: %w", path, err)
	}
	if len(f.Chains) == 0 {
		return nil, fmt.Errorf("chains file %s declares no chains", path)
	}

	seen := make(map[string]bool, len(f.Chains))
	for i := range f.Chains {
		c := &f.Chains[i]
		if err := c.Validate(); err != nil {
			return nil, err
		}
		if seen[c.ID] {
			return nil, fmt.Errorf("duplicate chain id %s", c.ID)
		}
		seen[c.ID] = true
	}

	return f.Chains, nil
}
