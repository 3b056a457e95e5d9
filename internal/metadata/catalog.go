package metadata

import "configtree/internal/store"

// Catalog bundles the three registries over one dialect. Every read goes to
// the database; nothing is cached between calls.
type Catalog struct {
	Types      *TypeCatalog
	Enums      *EnumCatalog
	Attributes *AttributeCatalog
}

func NewCatalog(dialect store.Dialect) *Catalog {
	types := NewTypeCatalog(dialect)
	enums := NewEnumCatalog(dialect, types)
	return &Catalog{
		Types:      types,
		Enums:      enums,
		Attributes: NewAttributeCatalog(dialect, types, enums),
	}
}
