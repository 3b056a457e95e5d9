package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"configtree/internal/document"
	"configtree/internal/store"
)

// AttributeCatalog maps field names to type signatures. Attributes are created
// once per name and may later be promoted to an enum, never demoted.
type AttributeCatalog struct {
	dialect store.Dialect
	types   *TypeCatalog
	enums   *EnumCatalog
}

func NewAttributeCatalog(dialect store.Dialect, types *TypeCatalog, enums *EnumCatalog) *AttributeCatalog {
	return &AttributeCatalog{dialect: dialect, types: types, enums: enums}
}

const attributeSelect = `SELECT a.id, a.name, t.id, t.name, t.kind, t.is_list, t.is_enum
FROM attributes a JOIN attribute_types t ON t.id = a.attribute_type_id`

func scanAttribute(row interface{ Scan(...any) error }) (*Attribute, error) {
	var a Attribute
	var t AttributeType
	var kind string
	if err := row.Scan(&a.ID, &a.Name, &t.ID, &t.Name, &kind, &t.IsList, &t.IsEnum); err != nil {
		return nil, err
	}
	t.Kind = Kind(kind)
	a.TypeID = t.ID
	a.Type = &t
	return &a, nil
}

// FindByName returns store.ErrNotFound when no attribute has that name.
func (c *AttributeCatalog) FindByName(ctx context.Context, q store.Querier, name string) (*Attribute, error) {
	a, err := scanAttribute(q.QueryRowContext(ctx, attributeSelect+" WHERE a.name = "+c.dialect.Placeholder(1), name))
	if err != nil {
		return nil, store.MapError(c.dialect, err)
	}
	return a, nil
}

func (c *AttributeCatalog) Get(ctx context.Context, q store.Querier, id int64) (*Attribute, error) {
	a, err := scanAttribute(q.QueryRowContext(ctx, attributeSelect+" WHERE a.id = "+c.dialect.Placeholder(1), id))
	if err != nil {
		return nil, store.MapError(c.dialect, err)
	}
	return a, nil
}

// List returns all attributes ordered by id.
func (c *AttributeCatalog) List(ctx context.Context, q store.Querier) ([]*Attribute, error) {
	rows, err := q.QueryContext(ctx, attributeSelect+" ORDER BY a.id")
	if err != nil {
		return nil, fmt.Errorf("list attributes: %w", err)
	}
	defer rows.Close()

	var out []*Attribute
	for rows.Next() {
		a, err := scanAttribute(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attribute: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Create inserts an attribute bound to t.
func (c *AttributeCatalog) Create(ctx context.Context, q store.Querier, name string, t *AttributeType) (*Attribute, error) {
	p := c.dialect.Placeholder
	id, err := store.InsertID(ctx, q,
		fmt.Sprintf("INSERT INTO attributes (name, attribute_type_id) VALUES (%s, %s) RETURNING id", p(1), p(2)),
		name, t.ID)
	if err != nil {
		return nil, fmt.Errorf("create attribute %s: %w", name, store.MapError(c.dialect, err))
	}
	return &Attribute{ID: id, Name: name, TypeID: t.ID, Type: t}, nil
}

// SetType rebinds a to t.
func (c *AttributeCatalog) SetType(ctx context.Context, q store.Querier, a *Attribute, t *AttributeType) error {
	p := c.dialect.Placeholder
	n, err := store.Exec(ctx, q,
		fmt.Sprintf("UPDATE attributes SET attribute_type_id = %s, updated_at = %s WHERE id = %s",
			p(1), c.dialect.NowExpr(), p(2)),
		t.ID, a.ID)
	if err != nil {
		return fmt.Errorf("update attribute %s: %w", a.Name, store.MapError(c.dialect, err))
	}
	if n == 0 {
		return store.ErrNotFound
	}
	a.TypeID = t.ID
	a.Type = t
	return nil
}

// Delete removes an attribute. Attributes referenced by config nodes fail with
// store.ErrForeignKeyViolation.
func (c *AttributeCatalog) Delete(ctx context.Context, q store.Querier, id int64) error {
	n, err := store.Exec(ctx, q, "DELETE FROM attributes WHERE id = "+c.dialect.Placeholder(1), id)
	if err != nil {
		return store.MapError(c.dialect, err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// GetOrCreate returns the attribute for name, creating it with a classified
// type on first sight. An existing non-enum attribute is promoted when sample
// matches an enum family: a scalar to the family's base signature, a list to
// its list variant.
func (c *AttributeCatalog) GetOrCreate(ctx context.Context, q store.Querier, name string, sample any) (*Attribute, error) {
	a, err := c.FindByName(ctx, q, name)
	if errors.Is(err, store.ErrNotFound) {
		t, err := c.Classify(ctx, q, sample, name)
		if err != nil {
			return nil, err
		}
		return c.Create(ctx, q, name, t)
	}
	if err != nil {
		return nil, fmt.Errorf("find attribute %s: %w", name, err)
	}

	promoted, err := c.promotion(ctx, q, a, sample)
	if err != nil {
		return nil, err
	}
	if promoted != nil && promoted.ID != a.TypeID {
		if err := c.SetType(ctx, q, a, promoted); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// promotion returns the enum signature a should move to, or nil.
func (c *AttributeCatalog) promotion(ctx context.Context, q store.Querier, a *Attribute, sample any) (*AttributeType, error) {
	switch v := sample.(type) {
	case document.Object:
		return nil, nil
	case []any:
		if a.Type.IsEnum && a.Type.IsList {
			return nil, nil
		}
		return c.listEnum(ctx, q, a.Name, v)
	default:
		if a.Type.IsEnum {
			return nil, nil
		}
		return c.scalarEnum(ctx, q, a.Name, v)
	}
}

// Classify infers the signature for a field seen for the first time. A family
// named like the field wins, then content inference against known families,
// then the primitive shape.
func (c *AttributeCatalog) Classify(ctx context.Context, q store.Querier, value any, name string) (*AttributeType, error) {
	kind, isList := Shape(value)

	if kind != KindNode {
		var fam *AttributeType
		var err error
		if isList {
			fam, err = c.listEnum(ctx, q, name, value.([]any))
		} else {
			fam, err = c.scalarEnum(ctx, q, name, value)
		}
		if err != nil {
			return nil, err
		}
		if fam != nil {
			return fam, nil
		}
	}

	return c.types.ResolveOrCreate(ctx, q, string(kind), isList, false)
}

// Shape maps a decoded value to its primitive kind and list flag. Lists take
// the kind of their first element; empty lists are STRING lists.
func Shape(value any) (Kind, bool) {
	switch v := value.(type) {
	case document.Object:
		return KindNode, false
	case []any:
		if len(v) == 0 {
			return KindString, true
		}
		k, _ := Shape(v[0])
		if k == KindNode {
			return KindNode, true
		}
		if _, nested := v[0].([]any); nested {
			return KindNode, true
		}
		return k, true
	case bool:
		return KindBoolean, false
	case json.Number, float64, int, int64:
		return KindNumeric, false
	default:
		return KindString, false
	}
}

// scalarEnum finds the family for a scalar field: by name first, then by the
// first registered family whose literals accept the value.
func (c *AttributeCatalog) scalarEnum(ctx context.Context, q store.Querier, name string, value any) (*AttributeType, error) {
	named, err := c.types.Find(ctx, q, name, false, true)
	if err == nil {
		return named, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	s, ok := document.ScalarString(value)
	if !ok || s == "" {
		return nil, nil
	}
	return c.inferFamily(ctx, q, []string{s})
}

// listEnum finds the list variant for a list field: a family named like the
// field, or the first family accepting every non-null element.
func (c *AttributeCatalog) listEnum(ctx context.Context, q store.Querier, name string, items []any) (*AttributeType, error) {
	if named, err := c.types.Find(ctx, q, name, true, true); err == nil {
		return named, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if base, err := c.types.Find(ctx, q, name, false, true); err == nil {
		return c.types.EnsureListVariant(ctx, q, base)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	var values []string
	for _, item := range items {
		if item == nil {
			continue
		}
		s, ok := document.ScalarString(item)
		if !ok {
			return nil, nil
		}
		values = append(values, s)
	}
	if len(values) == 0 {
		return nil, nil
	}

	base, err := c.inferFamily(ctx, q, values)
	if err != nil || base == nil {
		return nil, err
	}
	return c.types.EnsureListVariant(ctx, q, base)
}

// inferFamily scans enum families in registration order and returns the base
// signature of the first whose literals accept every value.
func (c *AttributeCatalog) inferFamily(ctx context.Context, q store.Querier, values []string) (*AttributeType, error) {
	sigs, err := c.types.AllEnumSignatures(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("scan enum families: %w", err)
	}

	checked := make(map[int64]bool)
	for _, sig := range sigs {
		base, err := c.types.ResolveBaseEnum(ctx, q, sig)
		if err != nil {
			return nil, err
		}
		if checked[base.ID] {
			continue
		}
		checked[base.ID] = true

		allowed, err := c.enums.AllowedLiterals(ctx, q, base)
		if err != nil {
			return nil, err
		}
		if acceptsAll(allowed, values) {
			return base, nil
		}
	}
	return nil, nil
}

func acceptsAll(allowed, values []string) bool {
	if len(allowed) == 0 {
		return false
	}
	for _, v := range values {
		if _, ok := matchLiteral(allowed, v); !ok {
			return false
		}
	}
	return true
}
