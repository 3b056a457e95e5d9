package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"configtree/internal/store"
)

// VariantRecorder is an optional extension of the Querier passed to
// TypeCatalog. When present it is told about every list-enum signature the
// catalog inserts, so callers can re-register them if their transaction rolls back.
type VariantRecorder interface {
	RecordListVariant(t AttributeType)
}

// TypeCatalog resolves and creates attribute type signatures.
type TypeCatalog struct {
	dialect store.Dialect
}

func NewTypeCatalog(dialect store.Dialect) *TypeCatalog {
	return &TypeCatalog{dialect: dialect}
}

const typeColumns = "id, name, kind, is_list, is_enum"

func scanType(row interface{ Scan(...any) error }) (*AttributeType, error) {
	var t AttributeType
	var kind string
	if err := row.Scan(&t.ID, &t.Name, &kind, &t.IsList, &t.IsEnum); err != nil {
		return nil, err
	}
	t.Kind = Kind(kind)
	return &t, nil
}

// Get returns the signature with the given id.
func (c *TypeCatalog) Get(ctx context.Context, q store.Querier, id int64) (*AttributeType, error) {
	row := q.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM attribute_types WHERE id = %s", typeColumns, c.dialect.Placeholder(1)), id)
	t, err := scanType(row)
	if err != nil {
		return nil, store.MapError(c.dialect, err)
	}
	return t, nil
}

// Find looks up a signature by its exact (name, isList, isEnum) triple.
// Returns store.ErrNotFound when absent.
func (c *TypeCatalog) Find(ctx context.Context, q store.Querier, name string, isList, isEnum bool) (*AttributeType, error) {
	p := c.dialect.Placeholder
	row := q.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM attribute_types WHERE name = %s AND is_list = %s AND is_enum = %s",
			typeColumns, p(1), p(2), p(3)),
		name, isList, isEnum)
	t, err := scanType(row)
	if err != nil {
		return nil, store.MapError(c.dialect, err)
	}
	return t, nil
}

// ResolveOrCreate returns the signature for the triple, inserting it if absent.
// Enum signatures are STRING; otherwise name must be a kind name.
func (c *TypeCatalog) ResolveOrCreate(ctx context.Context, q store.Querier, name string, isList, isEnum bool) (*AttributeType, error) {
	t, err := c.Find(ctx, q, name, isList, isEnum)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("find type %s: %w", name, err)
	}

	kind := KindString
	if !isEnum {
		if kind, err = ParseKind(name); err != nil {
			return nil, err
		}
	}
	return c.insert(ctx, q, name, kind, isList, isEnum)
}

func (c *TypeCatalog) insert(ctx context.Context, q store.Querier, name string, kind Kind, isList, isEnum bool) (*AttributeType, error) {
	p := c.dialect.Placeholder
	id, err := store.InsertID(ctx, q,
		fmt.Sprintf("INSERT INTO attribute_types (name, kind, is_list, is_enum) VALUES (%s, %s, %s, %s) RETURNING id",
			p(1), p(2), p(3), p(4)),
		name, string(kind), isList, isEnum)
	if err != nil {
		return nil, fmt.Errorf("create type %s: %w", name, store.MapError(c.dialect, err))
	}
	return &AttributeType{ID: id, Name: name, Kind: kind, IsList: isList, IsEnum: isEnum}, nil
}

// ResolveBaseEnum returns the scalar signature of t's enum family, or t itself
// when t is not an enum or no scalar signature exists.
func (c *TypeCatalog) ResolveBaseEnum(ctx context.Context, q store.Querier, t *AttributeType) (*AttributeType, error) {
	if t == nil || !t.IsEnum || !t.IsList {
		return t, nil
	}
	base, err := c.Find(ctx, q, t.Name, false, true)
	if errors.Is(err, store.ErrNotFound) {
		return t, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve base enum %s: %w", t.Name, err)
	}
	return base, nil
}

// EnsureListVariant returns the list signature of t's enum family, creating it
// if needed. Non-enum and list signatures are returned unchanged; the scalar
// row is never modified.
func (c *TypeCatalog) EnsureListVariant(ctx context.Context, q store.Querier, t *AttributeType) (*AttributeType, error) {
	if t == nil || !t.IsEnum || t.IsList {
		return t, nil
	}
	variant, err := c.Find(ctx, q, t.Name, true, true)
	if err == nil {
		return variant, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("find list variant %s: %w", t.Name, err)
	}
	variant, err = c.insert(ctx, q, t.Name, KindString, true, true)
	if err != nil {
		return nil, err
	}
	if rec, ok := q.(VariantRecorder); ok {
		rec.RecordListVariant(*variant)
	}
	return variant, nil
}

// AllEnumSignatures returns every enum signature in registration order.
func (c *TypeCatalog) AllEnumSignatures(ctx context.Context, q store.Querier) ([]*AttributeType, error) {
	return c.list(ctx, q, "WHERE is_enum = "+c.dialect.Placeholder(1), true)
}

// List returns every signature in registration order.
func (c *TypeCatalog) List(ctx context.Context, q store.Querier) ([]*AttributeType, error) {
	return c.list(ctx, q, "")
}

func (c *TypeCatalog) list(ctx context.Context, q store.Querier, where string, args ...any) ([]*AttributeType, error) {
	rows, err := q.QueryContext(ctx,
		strings.TrimSpace(fmt.Sprintf("SELECT %s FROM attribute_types %s", typeColumns, where))+" ORDER BY id", args...)
	if err != nil {
		return nil, fmt.Errorf("list types: %w", err)
	}
	defer rows.Close()

	var out []*AttributeType
	for rows.Next() {
		t, err := scanType(rows)
		if err != nil {
			return nil, fmt.Errorf("scan type: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// EnsureEnumFamily returns the scalar enum signature named name, matching
// case-insensitively, and creates it if absent.
func (c *TypeCatalog) EnsureEnumFamily(ctx context.Context, q store.Querier, name string) (*AttributeType, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("enum family name is required")
	}
	p := c.dialect.Placeholder
	row := q.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM attribute_types WHERE LOWER(name) = LOWER(%s) AND is_list = %s AND is_enum = %s ORDER BY id",
			typeColumns, p(1), p(2), p(3)),
		name, false, true)
	t, err := scanType(row)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find enum family %s: %w", name, err)
	}
	return c.insert(ctx, q, name, KindString, false, true)
}

// Delete removes a signature. Signatures still referenced by attributes or
// literals fail with store.ErrForeignKeyViolation.
func (c *TypeCatalog) Delete(ctx context.Context, q store.Querier, id int64) error {
	n, err := store.Exec(ctx, q, "DELETE FROM attribute_types WHERE id = "+c.dialect.Placeholder(1), id)
	if err != nil {
		return store.MapError(c.dialect, err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
