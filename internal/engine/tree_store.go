package engine

import (
	"context"
	"fmt"

	"configtree/internal/store"
)

// ConfigNode is one persisted tree node. Nodes with children carry no value.
type ConfigNode struct {
	ID              int64   `json:"id"`
	AttributeID     int64   `json:"attribute_id"`
	ParentID        *int64  `json:"parent_id"`
	Value           *string `json:"value"`
	Description     *string `json:"description,omitempty"`
	ApplicationNode *string `json:"application_node,omitempty"`
	IsCustom        bool    `json:"is_custom"`
}

// TreeStore reads and writes config_nodes rows. Children are always returned
// in id order, which is creation order.
type TreeStore struct {
	dialect store.Dialect
}

func NewTreeStore(dialect store.Dialect) *TreeStore {
	return &TreeStore{dialect: dialect}
}

const nodeColumns = "id, attribute_id, parent_id, value, description, application_node, is_custom"

func scanNode(row interface{ Scan(...any) error }) (*ConfigNode, error) {
	var n ConfigNode
	if err := row.Scan(&n.ID, &n.AttributeID, &n.ParentID, &n.Value, &n.Description, &n.ApplicationNode, &n.IsCustom); err != nil {
		return nil, err
	}
	return &n, nil
}

func (ts *TreeStore) query(ctx context.Context, q store.Querier, where string, args ...any) ([]*ConfigNode, error) {
	rows, err := q.QueryContext(ctx, "SELECT "+nodeColumns+" FROM config_nodes "+where+" ORDER BY id", args...)
	if err != nil {
		return nil, fmt.Errorf("query config nodes: %w", err)
	}
	defer rows.Close()

	var out []*ConfigNode
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan config node: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (ts *TreeStore) Get(ctx context.Context, q store.Querier, id int64) (*ConfigNode, error) {
	n, err := scanNode(q.QueryRowContext(ctx,
		"SELECT "+nodeColumns+" FROM config_nodes WHERE id = "+ts.dialect.Placeholder(1), id))
	if err != nil {
		return nil, store.MapError(ts.dialect, err)
	}
	return n, nil
}

// Roots returns the nodes without a parent.
func (ts *TreeStore) Roots(ctx context.Context, q store.Querier) ([]*ConfigNode, error) {
	return ts.query(ctx, q, "WHERE parent_id IS NULL")
}

// Children returns the direct children of parentID, or the roots when parentID is nil.
func (ts *TreeStore) Children(ctx context.Context, q store.Querier, parentID *int64) ([]*ConfigNode, error) {
	if parentID == nil {
		return ts.Roots(ctx, q)
	}
	return ts.query(ctx, q, "WHERE parent_id = "+ts.dialect.Placeholder(1), *parentID)
}

// FindChild returns the first child of parentID (or root, when parentID is nil)
// bound to attributeID, or nil when there is none.
func (ts *TreeStore) FindChild(ctx context.Context, q store.Querier, parentID *int64, attributeID int64) (*ConfigNode, error) {
	var nodes []*ConfigNode
	var err error
	if parentID == nil {
		nodes, err = ts.query(ctx, q, "WHERE parent_id IS NULL AND attribute_id = "+ts.dialect.Placeholder(1), attributeID)
	} else {
		nodes, err = ts.query(ctx, q,
			"WHERE parent_id = "+ts.dialect.Placeholder(1)+" AND attribute_id = "+ts.dialect.Placeholder(2),
			*parentID, attributeID)
	}
	if err != nil || len(nodes) == 0 {
		return nil, err
	}
	return nodes[0], nil
}

// List returns every node.
func (ts *TreeStore) List(ctx context.Context, q store.Querier) ([]*ConfigNode, error) {
	return ts.query(ctx, q, "")
}

// Count returns the total number of nodes.
func (ts *TreeStore) Count(ctx context.Context, q store.Querier) (int, error) {
	var n int
	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM config_nodes").Scan(&n); err != nil {
		return 0, fmt.Errorf("count config nodes: %w", err)
	}
	return n, nil
}

// Insert stores n and sets its ID.
func (ts *TreeStore) Insert(ctx context.Context, q store.Querier, n *ConfigNode) error {
	p := ts.dialect.Placeholder
	id, err := store.InsertID(ctx, q,
		fmt.Sprintf(`INSERT INTO config_nodes (attribute_id, parent_id, value, description, application_node, is_custom)
VALUES (%s, %s, %s, %s, %s, %s) RETURNING id`, p(1), p(2), p(3), p(4), p(5), p(6)),
		n.AttributeID, n.ParentID, n.Value, n.Description, n.ApplicationNode, n.IsCustom)
	if err != nil {
		return store.MapError(ts.dialect, err)
	}
	n.ID = id
	return nil
}

// SetValue overwrites the value of an existing node in place.
func (ts *TreeStore) SetValue(ctx context.Context, q store.Querier, id int64, value *string) error {
	p := ts.dialect.Placeholder
	n, err := store.Exec(ctx, q,
		fmt.Sprintf("UPDATE config_nodes SET value = %s, updated_at = %s WHERE id = %s", p(1), ts.dialect.NowExpr(), p(2)),
		value, id)
	if err != nil {
		return store.MapError(ts.dialect, err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Update rewrites every column of n.
func (ts *TreeStore) Update(ctx context.Context, q store.Querier, n *ConfigNode) error {
	p := ts.dialect.Placeholder
	affected, err := store.Exec(ctx, q,
		fmt.Sprintf(`UPDATE config_nodes SET attribute_id = %s, parent_id = %s, value = %s, description = %s,
application_node = %s, is_custom = %s, updated_at = %s WHERE id = %s`,
			p(1), p(2), p(3), p(4), p(5), p(6), ts.dialect.NowExpr(), p(7)),
		n.AttributeID, n.ParentID, n.Value, n.Description, n.ApplicationNode, n.IsCustom, n.ID)
	if err != nil {
		return store.MapError(ts.dialect, err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Delete removes a single node. A node that still has children fails with
// store.ErrForeignKeyViolation.
func (ts *TreeStore) Delete(ctx context.Context, q store.Querier, id int64) error {
	n, err := store.Exec(ctx, q, "DELETE FROM config_nodes WHERE id = "+ts.dialect.Placeholder(1), id)
	if err != nil {
		return store.MapError(ts.dialect, err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DeleteSubtree removes n and all of its descendants, leaves first, and
// returns how many rows were deleted. onDelete, if set, sees each node just
// before it is removed.
func (ts *TreeStore) DeleteSubtree(ctx context.Context, q store.Querier, n *ConfigNode, onDelete func(*ConfigNode)) (int, error) {
	children, err := ts.Children(ctx, q, &n.ID)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, child := range children {
		c, err := ts.DeleteSubtree(ctx, q, child, onDelete)
		deleted += c
		if err != nil {
			return deleted, err
		}
	}
	if onDelete != nil {
		onDelete(n)
	}
	if err := ts.Delete(ctx, q, n.ID); err != nil {
		return deleted, fmt.Errorf("delete config node %d: %w", n.ID, err)
	}
	return deleted + 1, nil
}

// DeleteChildren removes every descendant of n, keeping n itself.
func (ts *TreeStore) DeleteChildren(ctx context.Context, q store.Querier, n *ConfigNode, onDelete func(*ConfigNode)) (int, error) {
	children, err := ts.Children(ctx, q, &n.ID)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, child := range children {
		c, err := ts.DeleteSubtree(ctx, q, child, onDelete)
		deleted += c
		if err != nil {
			return deleted, err
		}
	}
	return deleted, nil
}
