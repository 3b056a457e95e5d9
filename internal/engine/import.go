package engine

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"configtree/internal/document"
	"configtree/internal/instrument"
	"configtree/internal/logger"
	"configtree/internal/metadata"
	"configtree/internal/store"
)

// ImportResult summarizes one import call.
type ImportResult struct {
	RunID     string        `json:"run_id"`
	Processed int           `json:"processed"`
	Created   int           `json:"created"`
	Updated   int           `json:"updated"`
	Deleted   int           `json:"deleted"`
	Elapsed   time.Duration `json:"-"`
}

// ImportEngine writes JSON documents into the config tree. Each call is one
// transaction: a pre-scan registers every attribute, then the tree is written
// with full-replace semantics under each object or list.
type ImportEngine struct {
	store   *store.Store
	catalog *metadata.Catalog
	tree    *TreeStore
	log     *logger.Logger
	inst    instrument.Instrumenter
}

func NewImportEngine(s *store.Store, cat *metadata.Catalog, tree *TreeStore, log *logger.Logger, inst instrument.Instrumenter) *ImportEngine {
	return &ImportEngine{
		store:   s,
		catalog: cat,
		tree:    tree,
		log:     log.With("component", "import"),
		inst:    inst,
	}
}

// Import decodes raw and imports it. Duplicate keys and syntax errors are
// reported before anything touches the database.
func (e *ImportEngine) Import(ctx context.Context, raw []byte) (*ImportResult, error) {
	doc, err := document.Decode(raw)
	if err != nil {
		e.log.Warn("rejected import document", "bytes", len(raw), "error", err)
		return nil, err
	}
	return e.ImportDocument(ctx, doc)
}

// variantTx forwards list-enum signatures created inside the import
// transaction so they can be restored after a rollback.
type variantTx struct {
	*sql.Tx
	variants []metadata.AttributeType
}

func (t *variantTx) RecordListVariant(at metadata.AttributeType) {
	t.variants = append(t.variants, at)
}

// ImportDocument imports an already decoded document.
func (e *ImportEngine) ImportDocument(ctx context.Context, doc document.Object) (*ImportResult, error) {
	start := time.Now()
	res := &ImportResult{RunID: uuid.NewString()}
	log := e.log.With("run_id", res.RunID)

	ctx, span := e.inst.StartSpan(ctx, "import", "document")
	defer span.End()

	log.Info("import started", "roots", len(doc))

	sqlTx, err := e.store.BeginTx(ctx)
	if err != nil {
		span.SetStatus("error")
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	tx := &variantTx{Tx: sqlTx}
	run := &importRun{ImportEngine: e, q: tx, res: res, log: log}

	err = run.execute(ctx, doc)
	if err == nil {
		if err = sqlTx.Commit(); err != nil {
			err = fmt.Errorf("commit: %w", store.MapError(e.store.Dialect, err))
		}
	} else {
		_ = sqlTx.Rollback()
	}
	if err != nil {
		span.SetStatus("error")
		log.Warn("import rolled back", "error", err)
		e.restoreVariants(ctx, tx.variants, log)
		return nil, err
	}

	res.Elapsed = time.Since(start)
	e.inst.CountNodes("created", res.Created)
	e.inst.CountNodes("updated", res.Updated)
	e.inst.CountNodes("deleted", res.Deleted)
	log.Info("import finished",
		"processed", res.Processed,
		"created", res.Created,
		"updated", res.Updated,
		"deleted", res.Deleted,
		"elapsed", res.Elapsed)
	return res, nil
}

// restoreVariants re-creates list-enum signatures lost to a rollback so a
// family's list variant outlives the failed import that introduced it.
func (e *ImportEngine) restoreVariants(ctx context.Context, variants []metadata.AttributeType, log *logger.Logger) {
	if len(variants) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	err := e.store.InTx(ctx, func(tx *sql.Tx) error {
		for _, v := range variants {
			if _, err := e.catalog.Types.ResolveOrCreate(ctx, tx, v.Name, true, true); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Error("restore list variants", "count", len(variants), "error", err)
		return
	}
	log.Debug("restored list variants", "count", len(variants))
}

type importRun struct {
	*ImportEngine
	q   store.Querier
	res *ImportResult
	log *logger.Logger
}

func (r *importRun) execute(ctx context.Context, doc document.Object) error {
	for _, m := range doc {
		if err := r.prescan(ctx, m.Key, m.Value); err != nil {
			return fmt.Errorf("pre-scan %s: %w", m.Key, err)
		}
	}
	r.log.Debug("pre-scan complete")

	for _, m := range doc {
		if err := r.writeNode(ctx, m.Key, m.Value, nil); err != nil {
			return err
		}
	}
	return nil
}

// prescan registers or promotes every attribute the document touches before
// any node is written.
func (r *importRun) prescan(ctx context.Context, name string, value any) error {
	if _, err := r.catalog.Attributes.GetOrCreate(ctx, r.q, name, value); err != nil {
		return err
	}
	switch v := value.(type) {
	case document.Object:
		for _, m := range v {
			if err := r.prescan(ctx, m.Key, m.Value); err != nil {
				return err
			}
		}
	case []any:
		for i, item := range v {
			if document.IsContainer(item) {
				if err := r.prescan(ctx, itemName(name, i), item); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func itemName(name string, i int) string {
	return fmt.Sprintf("%s_item_%d", name, i)
}

func (r *importRun) writeNode(ctx context.Context, name string, value any, parentID *int64) error {
	attr, err := r.catalog.Attributes.GetOrCreate(ctx, r.q, name, value)
	if err != nil {
		return err
	}
	r.res.Processed++
	r.log.Debug("writing node", "field", name, "parent_id", parentID, "type", attr.Type.String())

	switch v := value.(type) {
	case document.Object:
		node, err := r.saveContainer(ctx, attr, parentID)
		if err != nil {
			return err
		}
		if err := r.clearChildren(ctx, node); err != nil {
			return err
		}
		for _, m := range v {
			if err := r.writeNode(ctx, m.Key, m.Value, &node.ID); err != nil {
				return err
			}
		}
		return nil

	case []any:
		node, err := r.saveContainer(ctx, attr, parentID)
		if err != nil {
			return err
		}
		if err := r.clearChildren(ctx, node); err != nil {
			return err
		}
		for i, item := range v {
			if document.IsContainer(item) {
				if err := r.writeNode(ctx, itemName(name, i), item, &node.ID); err != nil {
					return err
				}
				continue
			}
			if err := r.writeListItem(ctx, attr, node, item); err != nil {
				return err
			}
		}
		return nil

	default:
		return r.writeScalar(ctx, attr, value, parentID)
	}
}

// storedValue returns the string to persist for a scalar, canonicalized
// against the attribute's enum family. JSON null is stored as NULL for
// primitive fields; enum fields reject it as the empty value.
func (r *importRun) storedValue(ctx context.Context, attr *metadata.Attribute, value any) (*string, error) {
	s, ok := document.ScalarString(value)
	if !attr.Type.IsEnum {
		if !ok {
			return nil, nil
		}
		return &s, nil
	}
	if !ok {
		s = ""
	}
	lit, matched, allowed, err := r.catalog.Enums.MatchFamily(ctx, r.q, attr.Type, s)
	if err != nil {
		return nil, err
	}
	if !matched || !ok {
		return nil, &EnumViolationError{Field: attr.Name, Value: s, Allowed: allowed}
	}
	return &lit, nil
}

func (r *importRun) writeScalar(ctx context.Context, attr *metadata.Attribute, value any, parentID *int64) error {
	stored, err := r.storedValue(ctx, attr, value)
	if err != nil {
		return err
	}

	existing, err := r.tree.FindChild(ctx, r.q, parentID, attr.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		return r.insert(ctx, &ConfigNode{AttributeID: attr.ID, ParentID: parentID, Value: stored})
	}
	if attr.Type.IsList {
		// list containers are only ever rewritten by a list value
		r.log.Debug("kept list container for scalar value", "field", attr.Name, "node_id", existing.ID)
		return nil
	}

	// the field used to be an object
	if err := r.clearChildren(ctx, existing); err != nil {
		return err
	}
	if err := r.tree.SetValue(ctx, r.q, existing.ID, stored); err != nil {
		return fmt.Errorf("overwrite node %d: %w", existing.ID, err)
	}
	r.res.Updated++
	return nil
}

func (r *importRun) writeListItem(ctx context.Context, attr *metadata.Attribute, list *ConfigNode, item any) error {
	stored, err := r.storedValue(ctx, attr, item)
	if err != nil {
		return err
	}
	r.res.Processed++
	return r.insert(ctx, &ConfigNode{AttributeID: attr.ID, ParentID: &list.ID, Value: stored})
}

// saveContainer reuses the sibling bound to the same attribute or inserts a
// new valueless node. List containers are reused as they are.
func (r *importRun) saveContainer(ctx context.Context, attr *metadata.Attribute, parentID *int64) (*ConfigNode, error) {
	existing, err := r.tree.FindChild(ctx, r.q, parentID, attr.ID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		node := &ConfigNode{AttributeID: attr.ID, ParentID: parentID}
		if err := r.insert(ctx, node); err != nil {
			return nil, err
		}
		return node, nil
	}

	if !attr.Type.IsList && existing.Value != nil {
		if err := r.tree.SetValue(ctx, r.q, existing.ID, nil); err != nil {
			return nil, fmt.Errorf("overwrite node %d: %w", existing.ID, err)
		}
		existing.Value = nil
	}
	r.res.Updated++
	return existing, nil
}

func (r *importRun) insert(ctx context.Context, node *ConfigNode) error {
	if err := r.tree.Insert(ctx, r.q, node); err != nil {
		return fmt.Errorf("insert node: %w", err)
	}
	r.res.Created++
	return nil
}

func (r *importRun) clearChildren(ctx context.Context, node *ConfigNode) error {
	n, err := r.tree.DeleteChildren(ctx, r.q, node, func(c *ConfigNode) {
		r.log.Debug("deleting node", "id", c.ID, "attribute_id", c.AttributeID, "parent_id", c.ParentID)
	})
	r.res.Deleted += n
	return err
}
