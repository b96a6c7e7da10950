package testsupport

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/orchidarium/go-taxon-repository/gateway"
	"github.com/orchidarium/go-taxon-repository/taxon"
)

// FakeGateway is an in-memory gateway.RemoteGateway with call counting,
// switchable connectivity, and per-method failure injection. By default
// it does NOT enforce name uniqueness -- that mirrors the hosted
// datastore this layer is built against, and is what lets tests
// reproduce the retry-duplicate problem the reconciliation engine
// exists for. Flip EnforceUniqueNames on to simulate a store with a
// unique index.
type FakeGateway[T taxon.Record[T]] struct {
	mu    sync.Mutex
	rows  map[uuid.UUID]T
	calls map[string]int
	fail  map[string]error

	offline            bool
	enforceUniqueNames bool
	existsStub         *bool
	fetchAllGate       <-chan struct{}
}

// NewFakeGateway creates an empty fake gateway.
func NewFakeGateway[T taxon.Record[T]]() *FakeGateway[T] {
	return &FakeGateway[T]{
		rows:  make(map[uuid.UUID]T),
		calls: make(map[string]int),
		fail:  make(map[string]error),
	}
}

// Seed inserts rows directly, bypassing counters and failure switches.
func (f *FakeGateway[T]) Seed(rows ...T) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range rows {
		f.rows[rec.Base().ID] = rec.Clone()
	}
}

// CallCount returns how many times the named method was invoked.
func (f *FakeGateway[T]) CallCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// FailWith makes the named method return err until cleared with a nil
// err.
func (f *FakeGateway[T]) FailWith(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.fail, method)
		return
	}
	f.fail[method] = err
}

// SetOffline makes every method fail with a NetworkError.
func (f *FakeGateway[T]) SetOffline(offline bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offline = offline
}

// SetEnforceUniqueNames toggles the simulated unique index on
// (lower(name), parent, owner).
func (f *FakeGateway[T]) SetEnforceUniqueNames(enforce bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enforceUniqueNames = enforce
}

// GateFetchAll blocks FetchAll until the given channel is closed. Tests
// use it to hold a refresh open while concurrent readers pile up behind
// it.
func (f *FakeGateway[T]) GateFetchAll(gate <-chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchAllGate = gate
}

// StubExistsByName pins ExistsByName's answer regardless of stored rows.
// Tests use it to reproduce the window where a concurrent insert has
// already committed but the uniqueness pre-check ran before it landed.
// Clear with ClearExistsByNameStub.
func (f *FakeGateway[T]) StubExistsByName(exists bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.existsStub = &exists
}

// ClearExistsByNameStub restores ExistsByName's row-based answer.
func (f *FakeGateway[T]) ClearExistsByNameStub() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.existsStub = nil
}

// Len reports how many rows the fake currently holds.
func (f *FakeGateway[T]) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

// Row returns a copy of a stored row, for assertions.
func (f *FakeGateway[T]) Row(id uuid.UUID) (T, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.rows[id]
	if !ok {
		var zero T
		return zero, false
	}
	return rec.Clone(), true
}

func (f *FakeGateway[T]) enter(method string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[method]++
	if f.offline {
		return &taxon.NetworkError{Op: method, Err: errors.New("connection refused")}
	}
	if err, ok := f.fail[method]; ok {
		return err
	}
	return nil
}

// FetchAll returns rows visible to owner: owned rows plus system
// defaults.
func (f *FakeGateway[T]) FetchAll(ctx context.Context, owner *uuid.UUID) ([]T, error) {
	if err := f.enter("FetchAll"); err != nil {
		return nil, err
	}

	f.mu.Lock()
	gate := f.fetchAllGate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, &taxon.NetworkError{Op: "FetchAll", Err: ctx.Err()}
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]T, 0, len(f.rows))
	for _, rec := range f.rows {
		if rec.Base().VisibleTo(owner) {
			out = append(out, rec.Clone())
		}
	}
	return out, nil
}

func (f *FakeGateway[T]) FetchByID(ctx context.Context, id uuid.UUID) (T, error) {
	var zero T
	if err := f.enter("FetchByID"); err != nil {
		return zero, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.rows[id]
	if !ok {
		return zero, &taxon.NotFoundError{Entity: "record", ID: id}
	}
	return rec.Clone(), nil
}

func (f *FakeGateway[T]) FetchByName(ctx context.Context, name string, parentID *uuid.UUID, owner *uuid.UUID) (T, error) {
	var zero T
	if err := f.enter("FetchByName"); err != nil {
		return zero, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.rows {
		if f.inScope(rec, name, parentID, owner) {
			return rec.Clone(), nil
		}
	}
	return zero, &taxon.NotFoundError{Entity: "record"}
}

func (f *FakeGateway[T]) Insert(ctx context.Context, record T) (T, error) {
	var zero T
	if err := f.enter("Insert"); err != nil {
		return zero, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	base := record.Base()
	if f.enforceUniqueNames {
		var parentID *uuid.UUID
		if pid, ok := record.ParentRef(); ok {
			parentID = &pid
		}
		for _, existing := range f.rows {
			if existing.Base().ID == base.ID {
				continue
			}
			if f.inScope(existing, base.Name, parentID, base.OwnerID) {
				return zero, &taxon.ConstraintViolationError{
					Op:  "insert",
					Err: errors.New("duplicate key value violates unique constraint"),
				}
			}
		}
	}

	f.rows[base.ID] = record.Clone()
	return record.Clone(), nil
}

func (f *FakeGateway[T]) Update(ctx context.Context, record T) (T, error) {
	var zero T
	if err := f.enter("Update"); err != nil {
		return zero, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	id := record.Base().ID
	if _, ok := f.rows[id]; !ok {
		return zero, &taxon.NotFoundError{Entity: "record", ID: id}
	}
	f.rows[id] = record.Clone()
	return record.Clone(), nil
}

func (f *FakeGateway[T]) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	if err := f.enter("Delete"); err != nil {
		return false, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[id]; !ok {
		return false, nil
	}
	delete(f.rows, id)
	return true, nil
}

func (f *FakeGateway[T]) ExistsByName(ctx context.Context, name string, parentID *uuid.UUID, owner *uuid.UUID, excludeID uuid.UUID) (bool, error) {
	if err := f.enter("ExistsByName"); err != nil {
		return false, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.existsStub != nil {
		return *f.existsStub, nil
	}
	for _, rec := range f.rows {
		if rec.Base().ID == excludeID {
			continue
		}
		if f.inScope(rec, name, parentID, owner) {
			return true, nil
		}
	}
	return false, nil
}

// inScope matches the uniqueness scope: case-insensitive name, exact
// parent, exact owner. Callers must hold f.mu.
func (f *FakeGateway[T]) inScope(rec T, name string, parentID *uuid.UUID, owner *uuid.UUID) bool {
	base := rec.Base()
	probe := &taxon.Entity{Name: name}
	if base.NormalizedName() != probe.NormalizedName() {
		return false
	}

	if pid, ok := rec.ParentRef(); ok {
		if parentID == nil || *parentID != pid {
			return false
		}
	} else if parentID != nil {
		return false
	}

	switch {
	case base.OwnerID == nil && owner == nil:
		return true
	case base.OwnerID != nil && owner != nil:
		return *base.OwnerID == *owner
	default:
		return false
	}
}

// FakeProbe is a switchable connectivity probe with call counting.
type FakeProbe struct {
	mu     sync.Mutex
	online bool
	calls  int
}

// NewFakeProbe creates a probe in the given state.
func NewFakeProbe(online bool) *FakeProbe {
	return &FakeProbe{online: online}
}

// SetOnline flips connectivity.
func (p *FakeProbe) SetOnline(online bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.online = online
}

// Calls reports how many times Test was invoked.
func (p *FakeProbe) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// Test implements gateway.ConnectivityProbe.
func (p *FakeProbe) Test(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.online
}

// Interface assertions keep the fakes honest.
var (
	_ gateway.RemoteGateway[*taxon.Genus] = (*FakeGateway[*taxon.Genus])(nil)
	_ gateway.ConnectivityProbe           = (*FakeProbe)(nil)
)
