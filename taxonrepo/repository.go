package taxonrepo

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/singleflight"

	"github.com/orchidarium/go-taxon-repository/cache"
	"github.com/orchidarium/go-taxon-repository/gateway"
	"github.com/orchidarium/go-taxon-repository/hierarchy"
	"github.com/orchidarium/go-taxon-repository/reconcile"
	"github.com/orchidarium/go-taxon-repository/snapshot"
	"github.com/orchidarium/go-taxon-repository/taxon"
)

// Interface assertion: every repository can serve as the parent lookup
// for the level below it.
var _ hierarchy.ParentLookup = (*Repository[*taxon.Family])(nil)

// Repository orchestrates the snapshot store, connectivity probe,
// remote gateway, reconciliation engine, and hierarchy validator into
// the read/write surface callers use. One repository serves one entity
// type within one session.
//
// Reads follow the state machine: valid snapshot -> return it;
// otherwise probe connectivity; offline -> return the stale snapshot
// (never an error); online -> fetch, reconcile duplicates, repopulate,
// return. Writes validate first, go to the remote store, and only then
// touch the caches.
type Repository[T taxon.Record[T]] struct {
	cfg       Config
	gw        gateway.RemoteGateway[T]
	probe     gateway.ConnectivityProbe
	auth      gateway.AuthProvider
	store     *snapshot.Store[T]
	engine    *reconcile.Engine[T]
	validator *hierarchy.Validator[T]
	parents   hierarchy.ParentLookup
	logger    *slog.Logger
	now       func() time.Time
	namespace string

	// lookups is the optional read-through by-id cache shared across
	// repositories; keys are namespaced per entity type.
	lookups cache.CacheService
	keys    cache.KeySerializer

	// refresh collapses concurrent cache-miss refreshes into a single
	// remote fetch.
	refresh singleflight.Group

	// inflight rejects a second concurrent write for the same logical
	// id before it can double-submit to the remote store.
	inflight *xsync.MapOf[uuid.UUID, struct{}]

	// aliases remaps ids of reconciled duplicates to their canonical
	// row so a caller still holding the collapsed id keeps working.
	aliases *xsync.MapOf[uuid.UUID, uuid.UUID]

	backoffMu sync.Mutex
	failures  int
	retryAt   time.Time
}

// Option customizes a Repository at construction time.
type Option[T taxon.Record[T]] func(*Repository[T])

// WithLogger sets the structured logger.
func WithLogger[T taxon.Record[T]](logger *slog.Logger) Option[T] {
	return func(r *Repository[T]) { r.logger = logger }
}

// WithClock replaces the time source for timestamps, TTL, and backoff.
func WithClock[T taxon.Record[T]](now func() time.Time) Option[T] {
	return func(r *Repository[T]) { r.now = now }
}

// WithLookupCache attaches a read-through cache for by-id fetches.
func WithLookupCache[T taxon.Record[T]](service cache.CacheService, keys cache.KeySerializer) Option[T] {
	return func(r *Repository[T]) {
		r.lookups = service
		r.keys = keys
	}
}

// WithParentLookup binds the collection the entity's parent references
// resolve against. Required for hierarchical entity types.
func WithParentLookup[T taxon.Record[T]](parents hierarchy.ParentLookup) Option[T] {
	return func(r *Repository[T]) { r.parents = parents }
}

// New wires a repository for one entity type.
func New[T taxon.Record[T]](cfg Config, gw gateway.RemoteGateway[T], probe gateway.ConnectivityProbe, auth gateway.AuthProvider, opts ...Option[T]) (*Repository[T], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if gw == nil {
		return nil, &ConfigError{Field: "gateway", Message: "cannot be nil"}
	}
	if probe == nil {
		return nil, &ConfigError{Field: "probe", Message: "cannot be nil"}
	}
	if auth == nil {
		return nil, &ConfigError{Field: "auth", Message: "cannot be nil"}
	}

	r := &Repository[T]{
		cfg:       cfg,
		gw:        gw,
		probe:     probe,
		auth:      auth,
		now:       time.Now,
		namespace: entityNamespace[T](),
		inflight:  xsync.NewMapOf[uuid.UUID, struct{}](),
		aliases:   xsync.NewMapOf[uuid.UUID, uuid.UUID](),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}

	r.store = snapshot.New[T](cfg.TTL).WithClock(r.now)
	r.engine = reconcile.New(gw, r.logger)
	r.validator = hierarchy.New(gw, r.parents, cfg.NameLimit)

	return r, nil
}

// GetAll returns the collection, degrading to the last cached snapshot
// on connectivity failure. A cold start with no connectivity yields an
// empty result, not an error.
func (r *Repository[T]) GetAll(ctx context.Context, includeInactive bool) ([]T, error) {
	if r.store.IsValid() {
		return r.store.Snapshot(includeInactive), nil
	}

	if r.backoffActive() {
		r.logger.Warn("refresh suppressed by backoff, serving stale snapshot", "entity", r.namespace)
		return r.store.Snapshot(includeInactive), nil
	}

	if !r.probe.Test(ctx) {
		r.noteRefreshFailure()
		r.logger.Warn("offline, serving last cached snapshot", "entity", r.namespace, "records", r.store.Len())
		return r.store.Snapshot(includeInactive), nil
	}

	if err := r.refreshIfStale(ctx); err != nil {
		if taxon.IsNetwork(err) {
			r.logger.Warn("remote fetch failed, serving stale snapshot", "entity", r.namespace, "error", err)
			return r.store.Snapshot(includeInactive), nil
		}
		return nil, err
	}

	return r.store.Snapshot(includeInactive), nil
}

// GetByParent filters the collection snapshot by parent id. It issues
// no remote query of its own beyond what GetAll needs.
func (r *Repository[T]) GetByParent(ctx context.Context, parentID uuid.UUID, includeInactive bool) ([]T, error) {
	all, err := r.GetAll(ctx, includeInactive)
	if err != nil {
		return nil, err
	}

	out := make([]T, 0, len(all))
	for _, rec := range all {
		if pid, ok := rec.ParentRef(); ok && pid == parentID {
			out = append(out, rec)
		}
	}
	return out, nil
}

// GetByID returns a single record, serving from the snapshot when
// possible and falling back to the read-through lookup cache. Ids of
// reconciled duplicates resolve to their canonical row.
func (r *Repository[T]) GetByID(ctx context.Context, id uuid.UUID) (T, error) {
	var zero T
	id = r.canonicalID(id)

	if rec, ok := r.store.Get(id); ok {
		if !rec.Base().VisibleTo(r.ownerPtr()) {
			return zero, &taxon.NotFoundError{Entity: r.namespace, ID: id}
		}
		return rec, nil
	}

	rec, err := r.fetchByID(ctx, id)
	if err != nil {
		return zero, err
	}
	if !rec.Base().VisibleTo(r.ownerPtr()) {
		return zero, &taxon.NotFoundError{Entity: r.namespace, ID: id}
	}
	return rec, nil
}

// Create validates, persists, and caches a new record. A lost insert
// race (the store reports a unique-name violation) is absorbed: the
// pre-existing row becomes the successful result and later operations
// on the in-flight id are remapped to it.
func (r *Repository[T]) Create(ctx context.Context, rec T) (T, error) {
	var zero T

	owner, ok := r.currentUser()
	if !ok {
		return zero, &taxon.PermissionDeniedError{Op: "create " + r.namespace}
	}

	if err := r.validator.ValidateFields(rec); err != nil {
		return zero, err
	}
	if err := r.validator.ValidateParentAccess(ctx, rec, owner); err != nil {
		return zero, err
	}
	exists, err := r.validator.NameExistsInScope(ctx, rec, owner, uuid.Nil)
	if err != nil {
		return zero, err
	}
	if exists {
		return zero, r.duplicateName(rec)
	}

	next := rec.Clone()
	base := next.Base()
	if base.ID == uuid.Nil {
		base.ID = uuid.New()
	}
	now := r.now()
	base.OwnerID = owner
	base.CreatedAt = now
	base.UpdatedAt = now
	base.IsActive = true

	if _, loaded := r.inflight.LoadOrStore(base.ID, struct{}{}); loaded {
		return zero, &taxon.InFlightError{ID: base.ID}
	}
	defer r.inflight.Delete(base.ID)

	created, err := r.gw.Insert(ctx, next)
	if err != nil {
		if taxon.IsConstraintViolation(err) {
			return r.absorbInsertRace(ctx, next, owner)
		}
		return zero, err
	}

	r.store.Upsert(created)
	return created, nil
}

// Update persists changes to an existing record. CreatedAt and
// ownership are immutable; concurrent updates follow last-writer-wins.
func (r *Repository[T]) Update(ctx context.Context, rec T) (T, error) {
	var zero T

	if rec.Base().ID == uuid.Nil {
		return zero, &taxon.ValidationError{Field: "id", Message: "id is required"}
	}
	id := r.canonicalID(rec.Base().ID)
	owner := r.ownerPtr()

	if err := r.validator.ValidateFields(rec); err != nil {
		return zero, err
	}
	if err := r.validator.ValidateParentAccess(ctx, rec, owner); err != nil {
		return zero, err
	}

	current, err := r.currentRecord(ctx, id)
	if err != nil {
		return zero, err
	}
	cb := current.Base()
	if cb.SystemDefault() || !cb.VisibleTo(owner) {
		return zero, &taxon.PermissionDeniedError{Op: "update " + r.namespace, ID: id}
	}

	exists, err := r.validator.NameExistsInScope(ctx, rec, cb.OwnerID, id)
	if err != nil {
		return zero, err
	}
	if exists {
		return zero, r.duplicateName(rec)
	}

	if _, loaded := r.inflight.LoadOrStore(id, struct{}{}); loaded {
		return zero, &taxon.InFlightError{ID: id}
	}
	defer r.inflight.Delete(id)

	next := rec.Clone()
	base := next.Base()
	base.ID = id
	base.OwnerID = cb.OwnerID
	base.CreatedAt = cb.CreatedAt
	base.UpdatedAt = r.now()

	updated, err := r.gw.Update(ctx, next)
	if err != nil {
		return zero, err
	}

	r.store.Upsert(updated)
	r.evictLookup(ctx, id)
	return updated, nil
}

// Delete removes a record remotely and then evicts it from the caches.
// Deleting an absent id reports false without error.
func (r *Repository[T]) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	id = r.canonicalID(id)
	owner := r.ownerPtr()

	current, err := r.currentRecord(ctx, id)
	if err != nil {
		if taxon.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	cb := current.Base()
	if cb.SystemDefault() || !cb.VisibleTo(owner) {
		return false, &taxon.PermissionDeniedError{Op: "delete " + r.namespace, ID: id}
	}

	if _, loaded := r.inflight.LoadOrStore(id, struct{}{}); loaded {
		return false, &taxon.InFlightError{ID: id}
	}
	defer r.inflight.Delete(id)

	deleted, err := r.gw.Delete(ctx, id)
	if err != nil {
		return false, err
	}

	r.store.Remove(id)
	r.evictLookup(ctx, id)
	return deleted, nil
}

// ToggleFavorite flips the favorite flag via read-modify-write.
func (r *Repository[T]) ToggleFavorite(ctx context.Context, id uuid.UUID) (T, error) {
	var zero T

	current, err := r.GetByID(ctx, id)
	if err != nil {
		return zero, err
	}

	next := current.Clone()
	next.Base().IsFavorite = !next.Base().IsFavorite
	return r.Update(ctx, next)
}

// RefreshCache forces a full fetch/reconcile/populate cycle regardless
// of TTL. Concurrent callers collapse into a single in-flight refresh.
func (r *Repository[T]) RefreshCache(ctx context.Context) error {
	return r.refreshShared(ctx)
}

// Invalidate marks the snapshot stale without discarding its data.
func (r *Repository[T]) Invalidate() {
	r.store.Invalidate()
}

// Stale reports whether reads are currently served from an expired or
// never-populated snapshot.
func (r *Repository[T]) Stale() bool {
	return !r.store.IsValid()
}

// LastRefreshed returns the time of the last successful full refresh.
func (r *Repository[T]) LastRefreshed() time.Time {
	return r.store.LastRefreshed()
}

// Close clears the session's cached state. Called on logout.
func (r *Repository[T]) Close() {
	r.store.Clear()
	if r.lookups != nil {
		if err := r.lookups.DeleteByPrefix(context.Background(), r.namespace+cache.KeySeparator); err != nil {
			r.logger.Warn("lookup cache eviction failed", "entity", r.namespace, "error", err)
		}
	}
	r.resetBackoff()
}

// ParentAccessible implements hierarchy.ParentLookup for the level
// below this one: the row must exist, be active, and be visible to the
// prospective child's owner.
func (r *Repository[T]) ParentAccessible(ctx context.Context, id uuid.UUID, owner *uuid.UUID) (bool, error) {
	rec, err := r.GetByID(ctx, id)
	if err != nil {
		if taxon.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}

	base := rec.Base()
	return base.IsActive && base.VisibleTo(owner), nil
}

func (r *Repository[T]) refreshShared(ctx context.Context) error {
	_, err, _ := r.refresh.Do("refresh", func() (any, error) {
		return nil, r.doRefresh(ctx)
	})
	return err
}

// refreshIfStale is the read-path variant of refreshShared: a caller
// that lost the race and enters the flight after a refresh already
// completed must not trigger a second remote fetch.
func (r *Repository[T]) refreshIfStale(ctx context.Context) error {
	_, err, _ := r.refresh.Do("refresh", func() (any, error) {
		if r.store.IsValid() {
			return nil, nil
		}
		return nil, r.doRefresh(ctx)
	})
	return err
}

func (r *Repository[T]) doRefresh(ctx context.Context) error {
	rows, err := r.gw.FetchAll(ctx, r.ownerPtr())
	if err != nil {
		if taxon.IsNetwork(err) {
			r.noteRefreshFailure()
		}
		return err
	}

	survivors, aliases, recErr := r.engine.Collapse(ctx, rows)
	if recErr != nil {
		// Cleanup is best effort; the fetch result is still good.
		r.logger.Warn("reconciliation incomplete", "entity", r.namespace, "error", recErr)
	}
	for dup, canonical := range aliases {
		r.aliases.Store(dup, canonical)
	}

	r.store.Populate(survivors)
	r.resetBackoff()

	if r.lookups != nil {
		if err := r.lookups.DeleteByPrefix(ctx, r.namespace+cache.KeySeparator); err != nil {
			r.logger.Warn("lookup cache eviction failed", "entity", r.namespace, "error", err)
		}
	}
	return nil
}

// absorbInsertRace resolves a ConstraintViolation on insert by adopting
// the row that won the race. The caller's id is aliased to the winner
// so follow-up operations keep working.
func (r *Repository[T]) absorbInsertRace(ctx context.Context, attempted T, owner *uuid.UUID) (T, error) {
	var zero T
	base := attempted.Base()

	var parentID *uuid.UUID
	if pid, ok := attempted.ParentRef(); ok {
		parentID = &pid
	}

	existing, err := r.gw.FetchByName(ctx, base.Name, parentID, owner)
	if err != nil {
		// The collision is real but the winner is not reachable; report
		// it as a duplicate rather than a raw constraint error.
		return zero, r.duplicateName(attempted)
	}

	r.aliases.Store(base.ID, existing.Base().ID)
	r.store.Upsert(existing)
	r.logger.Info("absorbed lost insert race",
		"entity", r.namespace,
		"attempted_id", base.ID,
		"canonical_id", existing.Base().ID,
		"name", base.Name)
	return existing, nil
}

func (r *Repository[T]) fetchByID(ctx context.Context, id uuid.UUID) (T, error) {
	fetch := func(ctx context.Context) (T, error) {
		return r.gw.FetchByID(ctx, id)
	}
	if r.lookups == nil {
		return fetch(ctx)
	}

	return cache.GetOrFetch(ctx, r.lookups, r.lookupKey(id), fetch)
}

func (r *Repository[T]) currentRecord(ctx context.Context, id uuid.UUID) (T, error) {
	if rec, ok := r.store.Get(id); ok {
		return rec, nil
	}
	return r.gw.FetchByID(ctx, id)
}

func (r *Repository[T]) evictLookup(ctx context.Context, id uuid.UUID) {
	if r.lookups == nil {
		return
	}
	if err := r.lookups.Delete(ctx, r.lookupKey(id)); err != nil {
		r.logger.Warn("lookup eviction failed", "entity", r.namespace, "id", id, "error", err)
	}
}

// lookupKey namespaces by-id keys per entity type so DeleteByPrefix on
// the namespace clears exactly this collection's lookups.
func (r *Repository[T]) lookupKey(id uuid.UUID) string {
	return r.keys.SerializeKey(r.namespace+cache.KeySeparator+"FetchByID", id)
}

func (r *Repository[T]) duplicateName(rec T) error {
	var parentID *uuid.UUID
	if pid, ok := rec.ParentRef(); ok {
		parentID = &pid
	}
	return &taxon.DuplicateNameError{Name: rec.Base().Name, ParentID: parentID}
}

// canonicalID follows the duplicate-alias chain. The bound guards
// against a cycle that could only arise from a corrupted alias map.
func (r *Repository[T]) canonicalID(id uuid.UUID) uuid.UUID {
	for i := 0; i < 8; i++ {
		next, ok := r.aliases.Load(id)
		if !ok {
			return id
		}
		id = next
	}
	return id
}

func (r *Repository[T]) currentUser() (*uuid.UUID, bool) {
	id, ok := r.auth.CurrentUserID()
	if !ok {
		return nil, false
	}
	return &id, true
}

func (r *Repository[T]) ownerPtr() *uuid.UUID {
	owner, _ := r.currentUser()
	return owner
}

func (r *Repository[T]) backoffActive() bool {
	r.backoffMu.Lock()
	defer r.backoffMu.Unlock()
	return r.failures > 0 && r.now().Before(r.retryAt)
}

// noteRefreshFailure widens the interval before the next remote
// attempt: base * 2^(n-1), capped at BackoffMax.
func (r *Repository[T]) noteRefreshFailure() {
	r.backoffMu.Lock()
	defer r.backoffMu.Unlock()

	r.failures++
	delay := r.cfg.BackoffBase
	for i := 1; i < r.failures; i++ {
		delay *= 2
		if delay >= r.cfg.BackoffMax {
			delay = r.cfg.BackoffMax
			break
		}
	}
	r.retryAt = r.now().Add(delay)
}

func (r *Repository[T]) resetBackoff() {
	r.backoffMu.Lock()
	defer r.backoffMu.Unlock()
	r.failures = 0
	r.retryAt = time.Time{}
}
