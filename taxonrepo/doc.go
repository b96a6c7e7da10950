// Package taxonrepo provides the repository facade that mediates
// between the in-process caches and the remote datastore for one
// taxonomic entity type.
//
// # Overview
//
// A Repository[T] orchestrates five collaborators: the snapshot store
// (collection-level TTL cache), the connectivity probe, the remote
// gateway, the reconciliation engine, and the hierarchy validator. One
// repository instance serves one entity type within one login session;
// hierarchical types additionally bind the repository of their parent
// type as a ParentLookup.
//
// # Read Path
//
// Every read follows the same state machine:
//
//  1. If the snapshot is valid (non-empty and within TTL), serve it.
//  2. Otherwise probe connectivity. Offline: serve the stale snapshot
//     and log a warning -- never an error. A cold start with no
//     connectivity yields an empty result.
//  3. Online: fetch the full collection, let the reconciliation engine
//     collapse retry-induced duplicates, repopulate the snapshot, and
//     serve it. Concurrent cache-miss readers collapse into a single
//     in-flight refresh.
//
// Repeated refresh failures widen the interval before the next remote
// attempt (exponential backoff, capped); reads during the backoff
// window serve the stale snapshot without probing.
//
// # Write Path
//
// Writes validate first (field bounds, parent access, name uniqueness
// within the (parent, owner) scope), then go to the remote store, and
// only update the caches after the remote write is confirmed. Network
// failures on writes surface to the caller. Two write paths bend this
// rule deliberately:
//
//   - A unique-constraint violation on insert is absorbed: the row that
//     won the race becomes the result, and the loser's id is aliased to
//     it so follow-up calls keep working.
//   - Reconciliation may collapse a row the caller still references;
//     the alias map silently remaps those ids to the canonical row.
//
// # Basic Usage
//
//	families, _ := taxonrepo.New(cfg, familyGW, probe, auth)
//	genera, _ := taxonrepo.New(cfg, genusGW, probe, auth,
//		taxonrepo.WithParentLookup[*taxon.Genus](families))
//
//	list, err := genera.GetAll(ctx, false)
//	created, err := genera.Create(ctx, &taxon.Genus{
//		Entity:   taxon.Entity{Name: "Cattleya"},
//		FamilyID: orchidaceae.Base().ID,
//	})
//
// For session-scoped wiring of every entity type at once, see pkg/di.
package taxonrepo
