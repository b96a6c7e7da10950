// Package reconcile detects and collapses duplicate remote rows. Retried
// uploads under flaky connectivity can leave two or more rows with the
// same (normalized name, parent, owner) but different ids; the engine
// keeps the oldest row and removes the rest, best effort.
package reconcile

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/orchidarium/go-taxon-repository/gateway"
	"github.com/orchidarium/go-taxon-repository/taxon"
)

// Engine collapses duplicates for one entity type. It runs during full
// refreshes, not on every read, to bound its cost.
type Engine[T taxon.Record[T]] struct {
	gw     gateway.RemoteGateway[T]
	logger *slog.Logger
}

// New builds an engine. A nil logger falls back to slog.Default.
func New[T taxon.Record[T]](gw gateway.RemoteGateway[T], logger *slog.Logger) *Engine[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine[T]{gw: gw, logger: logger}
}

// Collapse groups rows by (normalized name, parent, owner), keeps the
// member with the earliest CreatedAt in each group, and deletes the rest
// from the remote store. It returns the surviving rows, an alias map
// from each duplicate id to its canonical id, and a non-nil
// ReconcileError when any remote deletion failed. Duplicates are dropped
// from the returned set even when their remote deletion fails; the next
// refresh retries them.
func (e *Engine[T]) Collapse(ctx context.Context, rows []T) ([]T, map[uuid.UUID]uuid.UUID, error) {
	groups := make(map[string][]T, len(rows))
	order := make([]string, 0, len(rows))
	for _, rec := range rows {
		key := groupKey(rec)
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], rec)
	}

	survivors := make([]T, 0, len(rows))
	aliases := make(map[uuid.UUID]uuid.UUID)
	var (
		attempted int
		failures  []error
	)

	for _, key := range order {
		group := groups[key]
		canonical := oldest(group)
		survivors = append(survivors, canonical)

		for _, rec := range group {
			id := rec.Base().ID
			if id == canonical.Base().ID {
				continue
			}
			aliases[id] = canonical.Base().ID

			attempted++
			if _, err := e.gw.Delete(ctx, id); err != nil {
				failures = append(failures, err)
				e.logger.Warn("duplicate cleanup failed",
					"duplicate_id", id,
					"canonical_id", canonical.Base().ID,
					"error", err)
				continue
			}
			e.logger.Info("collapsed duplicate row",
				"duplicate_id", id,
				"canonical_id", canonical.Base().ID,
				"name", rec.Base().Name)
		}
	}

	if len(failures) > 0 {
		return survivors, aliases, &taxon.ReconcileError{Attempted: attempted, Errs: failures}
	}
	return survivors, aliases, nil
}

// oldest picks the group member with the earliest CreatedAt, breaking
// ties by id so the outcome is deterministic across refreshes.
func oldest[T taxon.Record[T]](group []T) T {
	canonical := group[0]
	for _, rec := range group[1:] {
		a, b := rec.Base(), canonical.Base()
		switch {
		case a.CreatedAt.Before(b.CreatedAt):
			canonical = rec
		case a.CreatedAt.Equal(b.CreatedAt) && a.ID.String() < b.ID.String():
			canonical = rec
		}
	}
	return canonical
}

func groupKey[T taxon.Record[T]](rec T) string {
	base := rec.Base()

	var b strings.Builder
	b.WriteString(base.NormalizedName())
	b.WriteByte(0)
	if parentID, ok := rec.ParentRef(); ok {
		b.WriteString(parentID.String())
	}
	b.WriteByte(0)
	if base.OwnerID != nil {
		b.WriteString(base.OwnerID.String())
	}
	return b.String()
}
