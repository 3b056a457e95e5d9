package metadata

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"configtree/internal/store"
)

// SeedFile lists enum families to register at startup.
type SeedFile struct {
	Families []SeedFamily `yaml:"families"`
}

type SeedFamily struct {
	Name     string   `yaml:"name"`
	Literals []string `yaml:"literals"`
}

// LoadSeedFile parses a YAML seed file.
func LoadSeedFile(path string) (*SeedFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var f SeedFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	for i, fam := range f.Families {
		if fam.Name == "" {
			return nil, fmt.Errorf("parse seed file %s: family %d has no name", path, i)
		}
	}
	return &f, nil
}

// SeedResult counts what Seed changed.
type SeedResult struct {
	Families int
	Literals int
}

// Seed registers every family and its literals. Re-running it is a no-op.
func Seed(ctx context.Context, q store.Querier, types *TypeCatalog, enums *EnumCatalog, f *SeedFile) (SeedResult, error) {
	var res SeedResult
	for _, fam := range f.Families {
		t, err := types.EnsureEnumFamily(ctx, q, fam.Name)
		if err != nil {
			return res, err
		}
		n, err := enums.AddLiterals(ctx, q, t, fam.Literals)
		if err != nil {
			return res, err
		}
		res.Families++
		res.Literals += n
	}
	return res, nil
}
