// Package bungateway implements gateway.RemoteGateway over a
// go-repository-bun base repository. Scope and name filters are
// expressed as criteria funcs on the bun query builders, and driver
// errors are translated into the taxon error taxonomy before they
// leave this package.
package bungateway

import (
	"context"
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/orchidarium/go-taxon-repository/gateway"
	"github.com/orchidarium/go-taxon-repository/taxon"
)

var (
	_ gateway.RemoteGateway[*taxon.Family] = (*Gateway[*taxon.Family])(nil)
	_ gateway.ConnectivityProbe            = (*DatabaseProbe)(nil)
)

// Gateway adapts a base repository to the narrow per-entity contract the
// facade consumes. parentColumn is empty for independent entity types.
type Gateway[T taxon.Record[T]] struct {
	base         repository.Repository[T]
	entity       string
	parentColumn string
}

// New builds a gateway for one entity type. entity labels errors (e.g.
// "genus"); parentColumn names the FK column for hierarchical types and
// is empty for Family and Variant.
func New[T taxon.Record[T]](base repository.Repository[T], entity, parentColumn string) *Gateway[T] {
	return &Gateway[T]{base: base, entity: entity, parentColumn: parentColumn}
}

// FetchAll returns rows owned by owner or shared as system defaults.
func (g *Gateway[T]) FetchAll(ctx context.Context, owner *uuid.UUID) ([]T, error) {
	records, _, err := g.base.List(ctx, visibleTo(owner))
	if err != nil {
		return nil, g.translate("fetch all", err)
	}
	return records, nil
}

// FetchByID returns a single row; a missing row is a NotFoundError.
func (g *Gateway[T]) FetchByID(ctx context.Context, id uuid.UUID) (T, error) {
	record, err := g.base.GetByID(ctx, id.String())
	if err != nil {
		var zero T
		if isNoRows(err) {
			return zero, &taxon.NotFoundError{Entity: g.entity, ID: id}
		}
		return zero, g.translate("fetch by id", err)
	}
	return record, nil
}

// FetchByName returns the row matching the case-insensitive name within
// the (parentID, owner) scope.
func (g *Gateway[T]) FetchByName(ctx context.Context, name string, parentID *uuid.UUID, owner *uuid.UUID) (T, error) {
	record, err := g.base.Get(ctx, g.nameScope(name, parentID, owner, uuid.Nil))
	if err != nil {
		var zero T
		if isNoRows(err) {
			return zero, &taxon.NotFoundError{Entity: g.entity}
		}
		return zero, g.translate("fetch by name", err)
	}
	return record, nil
}

// Insert persists a new row. Unique-index collisions come back as
// ConstraintViolationError so the facade can absorb the race.
func (g *Gateway[T]) Insert(ctx context.Context, record T) (T, error) {
	created, err := g.base.Create(ctx, record)
	if err != nil {
		var zero T
		return zero, g.translate("insert", err)
	}
	return created, nil
}

// Update persists changes to an existing row.
func (g *Gateway[T]) Update(ctx context.Context, record T) (T, error) {
	updated, err := g.base.Update(ctx, record)
	if err != nil {
		var zero T
		if isNoRows(err) {
			return zero, &taxon.NotFoundError{Entity: g.entity, ID: record.Base().ID}
		}
		return zero, g.translate("update", err)
	}
	return updated, nil
}

// Delete removes the row and reports whether it existed.
func (g *Gateway[T]) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	if _, err := g.FetchByID(ctx, id); err != nil {
		if taxon.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}

	err := g.base.DeleteWhere(ctx, func(q *bun.DeleteQuery) *bun.DeleteQuery {
		return q.Where("id = ?", id)
	})
	if err != nil {
		return false, g.translate("delete", err)
	}
	return true, nil
}

// ExistsByName reports whether the (name, parentID, owner) scope already
// holds a row other than excludeID.
func (g *Gateway[T]) ExistsByName(ctx context.Context, name string, parentID *uuid.UUID, owner *uuid.UUID, excludeID uuid.UUID) (bool, error) {
	count, err := g.base.Count(ctx, g.nameScope(name, parentID, owner, excludeID))
	if err != nil {
		return false, g.translate("exists by name", err)
	}
	return count > 0, nil
}

// visibleTo restricts a select to rows the caller may see: owned rows
// plus system defaults.
func visibleTo(owner *uuid.UUID) repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		if owner == nil {
			return q.Where("owner_id IS NULL")
		}
		return q.Where("(owner_id = ? OR owner_id IS NULL)", *owner)
	}
}

// nameScope matches the uniqueness scope: exact owner, exact parent,
// case-insensitive name. Unlike visibleTo this is equality on owner --
// a user's name may shadow a system default without colliding.
func (g *Gateway[T]) nameScope(name string, parentID *uuid.UUID, owner *uuid.UUID, excludeID uuid.UUID) repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		q = q.Where("LOWER(name) = ?", strings.ToLower(strings.TrimSpace(name)))
		if g.parentColumn != "" && parentID != nil {
			q = q.Where("? = ?", bun.Ident(g.parentColumn), *parentID)
		}
		if owner == nil {
			q = q.Where("owner_id IS NULL")
		} else {
			q = q.Where("owner_id = ?", *owner)
		}
		if excludeID != uuid.Nil {
			q = q.Where("id <> ?", excludeID)
		}
		return q
	}
}
