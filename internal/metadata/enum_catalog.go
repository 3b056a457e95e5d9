package metadata

import (
	"context"
	"fmt"

	"configtree/internal/store"
)

// EnumCatalog stores the allowed literals of enum signatures.
type EnumCatalog struct {
	dialect store.Dialect
	types   *TypeCatalog
}

func NewEnumCatalog(dialect store.Dialect, types *TypeCatalog) *EnumCatalog {
	return &EnumCatalog{dialect: dialect, types: types}
}

// AddLiterals inserts every literal not yet registered for t and returns how
// many were added. Empty strings are skipped.
func (c *EnumCatalog) AddLiterals(ctx context.Context, q store.Querier, t *AttributeType, values []string) (int, error) {
	if t == nil || len(values) == 0 {
		return 0, nil
	}
	existing, err := c.AllowedLiterals(ctx, q, t)
	if err != nil {
		return 0, err
	}
	seen := make(map[string]bool, len(existing)+len(values))
	for _, v := range existing {
		seen[v] = true
	}

	p := c.dialect.Placeholder
	insertSQL := fmt.Sprintf("INSERT INTO enum_values (attribute_type_id, value) VALUES (%s, %s)", p(1), p(2))
	added := 0
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		if _, err := store.Exec(ctx, q, insertSQL, t.ID, v); err != nil {
			return added, fmt.Errorf("add literal %q to %s: %w", v, t.Name, store.MapError(c.dialect, err))
		}
		seen[v] = true
		added++
	}
	return added, nil
}

// Values returns the literal rows of t in insertion order.
func (c *EnumCatalog) Values(ctx context.Context, q store.Querier, t *AttributeType) ([]EnumValue, error) {
	if t == nil {
		return nil, nil
	}
	rows, err := q.QueryContext(ctx,
		"SELECT id, attribute_type_id, value FROM enum_values WHERE attribute_type_id = "+c.dialect.Placeholder(1)+" ORDER BY id",
		t.ID)
	if err != nil {
		return nil, fmt.Errorf("list literals of %s: %w", t.Name, err)
	}
	defer rows.Close()

	var out []EnumValue
	for rows.Next() {
		var v EnumValue
		if err := rows.Scan(&v.ID, &v.AttributeTypeID, &v.Value); err != nil {
			return nil, fmt.Errorf("scan literal: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// AllowedLiterals returns the literals of t in insertion order.
func (c *EnumCatalog) AllowedLiterals(ctx context.Context, q store.Querier, t *AttributeType) ([]string, error) {
	values, err := c.Values(ctx, q, t)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = v.Value
	}
	return out, nil
}

// ClosestAllowedLiteral returns the first literal of t whose normalized form
// equals the normalized input. The match is exact after normalization.
func (c *EnumCatalog) ClosestAllowedLiteral(ctx context.Context, q store.Querier, t *AttributeType, input string) (string, bool, error) {
	if t == nil {
		return "", false, nil
	}
	allowed, err := c.AllowedLiterals(ctx, q, t)
	if err != nil {
		return "", false, err
	}
	lit, ok := matchLiteral(allowed, input)
	return lit, ok, nil
}

func matchLiteral(allowed []string, input string) (string, bool) {
	want := Normalize(input)
	for _, lit := range allowed {
		if Normalize(lit) == want {
			return lit, true
		}
	}
	return "", false
}

// IsAllowed is true when t is not an enum or value matches one of its literals.
func (c *EnumCatalog) IsAllowed(ctx context.Context, q store.Querier, t *AttributeType, value string) (bool, error) {
	if t == nil || !t.IsEnum {
		return true, nil
	}
	_, ok, err := c.ClosestAllowedLiteral(ctx, q, t, value)
	return ok, err
}

// FamilyLiterals returns the literal set governing t: that of its family's
// base signature, or t's own set when no base exists.
func (c *EnumCatalog) FamilyLiterals(ctx context.Context, q store.Querier, t *AttributeType) ([]string, error) {
	base, err := c.types.ResolveBaseEnum(ctx, q, t)
	if err != nil {
		return nil, err
	}
	return c.AllowedLiterals(ctx, q, base)
}

// MatchFamily canonicalizes value against t's family literals. allowed is the
// full literal set, returned so callers can report a rejection.
func (c *EnumCatalog) MatchFamily(ctx context.Context, q store.Querier, t *AttributeType, value string) (literal string, ok bool, allowed []string, err error) {
	allowed, err = c.FamilyLiterals(ctx, q, t)
	if err != nil {
		return "", false, nil, err
	}
	literal, ok = matchLiteral(allowed, value)
	return literal, ok, allowed, nil
}

// DeleteValue removes one literal row.
func (c *EnumCatalog) DeleteValue(ctx context.Context, q store.Querier, id int64) error {
	n, err := store.Exec(ctx, q, "DELETE FROM enum_values WHERE id = "+c.dialect.Placeholder(1), id)
	if err != nil {
		return store.MapError(c.dialect, err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
