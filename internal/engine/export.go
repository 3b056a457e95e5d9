package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"configtree/internal/document"
	"configtree/internal/instrument"
	"configtree/internal/logger"
	"configtree/internal/metadata"
	"configtree/internal/store"
)

// ExportEngine rebuilds JSON documents from the config tree.
type ExportEngine struct {
	store   *store.Store
	catalog *metadata.Catalog
	tree    *TreeStore
	log     *logger.Logger
	inst    instrument.Instrumenter
}

func NewExportEngine(s *store.Store, cat *metadata.Catalog, tree *TreeStore, log *logger.Logger, inst instrument.Instrumenter) *ExportEngine {
	return &ExportEngine{
		store:   s,
		catalog: cat,
		tree:    tree,
		log:     log.With("component", "export"),
		inst:    inst,
	}
}

type exportRun struct {
	*ExportEngine
	q     store.Querier
	attrs map[int64]*metadata.Attribute
	nodes int
}

// read runs fn against a read-only snapshot that is always rolled back.
func (e *ExportEngine) read(ctx context.Context, fn func(r *exportRun) error) error {
	tx, err := e.store.DB.BeginTx(ctx, &sql.TxOptions{ReadOnly: e.store.Dialect.Name() == "postgres"})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	r := &exportRun{ExportEngine: e, q: tx, attrs: make(map[int64]*metadata.Attribute)}
	if err := fn(r); err != nil {
		return err
	}
	e.inst.CountNodes("exported", r.nodes)
	return nil
}

// ExportAll rebuilds the whole forest as one object keyed by root attribute
// name. Roots sharing an attribute keep the last one.
func (e *ExportEngine) ExportAll(ctx context.Context) (document.Object, error) {
	ctx, span := e.inst.StartSpan(ctx, "export", "all")
	defer span.End()

	var out document.Object
	err := e.read(ctx, func(r *exportRun) error {
		roots, err := r.tree.Roots(ctx, r.q)
		if err != nil {
			return err
		}
		out = make(document.Object, 0, len(roots))
		for _, root := range roots {
			attr, err := r.attribute(ctx, root.AttributeID)
			if err != nil {
				return err
			}
			v, err := r.build(ctx, root)
			if err != nil {
				return err
			}
			out.Set(attr.Name, v)
		}
		e.log.Debug("exported forest", "roots", len(roots), "nodes", r.nodes)
		return nil
	})
	if err != nil {
		span.SetStatus("error")
		return nil, err
	}
	return out, nil
}

// ExportNode rebuilds the subtree rooted at id. found is false when no such
// node exists.
func (e *ExportEngine) ExportNode(ctx context.Context, id int64) (value any, found bool, err error) {
	ctx, span := e.inst.StartSpan(ctx, "export", "node")
	defer span.End()

	err = e.read(ctx, func(r *exportRun) error {
		node, err := r.tree.Get(ctx, r.q, id)
		if err != nil {
			return err
		}
		found = true
		value, err = r.build(ctx, node)
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		span.SetStatus("error")
		return nil, false, err
	}
	return value, found, nil
}

// ExportJSON encodes ExportAll's result. The empty store encodes as {}.
func (e *ExportEngine) ExportJSON(ctx context.Context, pretty bool) ([]byte, error) {
	doc, err := e.ExportAll(ctx)
	if err != nil {
		return nil, err
	}
	return document.Encode(doc, pretty)
}

func (r *exportRun) attribute(ctx context.Context, id int64) (*metadata.Attribute, error) {
	if a, ok := r.attrs[id]; ok {
		return a, nil
	}
	a, err := r.catalog.Attributes.Get(ctx, r.q, id)
	if err != nil {
		return nil, fmt.Errorf("attribute %d: %w", id, err)
	}
	r.attrs[id] = a
	return a, nil
}

func (r *exportRun) build(ctx context.Context, node *ConfigNode) (any, error) {
	r.nodes++
	attr, err := r.attribute(ctx, node.AttributeID)
	if err != nil {
		return nil, err
	}
	t := attr.Type

	children, err := r.tree.Children(ctx, r.q, &node.ID)
	if err != nil {
		return nil, err
	}

	hasValue := node.Value != nil && *node.Value != ""

	if t.IsList && !(len(children) == 0 && hasValue) {
		list := make([]any, 0, len(children))
		for _, child := range children {
			if child.AttributeID != node.AttributeID {
				v, err := r.build(ctx, child)
				if err != nil {
					return nil, err
				}
				list = append(list, v)
				continue
			}
			r.nodes++
			if child.Value == nil || *child.Value == "" {
				continue
			}
			v, err := r.coerce(ctx, r.q, t, *child.Value)
			if err != nil {
				return nil, err
			}
			list = append(list, v)
		}
		return list, nil
	}

	if len(children) == 0 {
		if node.Value == nil {
			if t.Kind == metadata.KindNode && !t.IsList {
				return document.Object{}, nil
			}
			return nil, nil
		}
		if *node.Value == "" {
			return nil, nil
		}
		return r.coerce(ctx, r.q, t, *node.Value)
	}

	obj := make(document.Object, 0, len(children))
	for _, child := range children {
		cattr, err := r.attribute(ctx, child.AttributeID)
		if err != nil {
			return nil, err
		}
		v, err := r.build(ctx, child)
		if err != nil {
			return nil, err
		}
		name, isItem := splitItemName(cattr.Name)
		if !isItem {
			obj.Set(name, v)
			continue
		}
		if prev, ok := obj.Get(name); ok {
			if list, ok := prev.([]any); ok {
				obj.Set(name, append(list, v))
				continue
			}
		}
		obj.Set(name, []any{v})
	}
	return obj, nil
}

// splitItemName strips a trailing "_item_<n>" from a synthesized list element
// attribute name.
func splitItemName(name string) (string, bool) {
	i := strings.LastIndex(name, "_item_")
	if i <= 0 {
		return name, false
	}
	if _, err := strconv.Atoi(name[i+len("_item_"):]); err != nil {
		return name, false
	}
	return name[:i], true
}
