// Package gateway defines the collaborator contracts the repository
// facade consumes: the per-entity remote datastore abstraction, the
// connectivity probe, and the authentication provider. Implementations
// over go-repository-bun live in the bungateway subpackage; tests use
// the fakes in pkg/testsupport.
package gateway

import (
	"context"

	"github.com/google/uuid"
)

// RemoteGateway abstracts CRUD calls against the remote datastore for a
// single entity type. Implementations translate transport and driver
// failures into the taxon error taxonomy: NotFoundError for missing
// rows, ConstraintViolationError for unique-name collisions raised by
// the store, NetworkError for anything transient.
type RemoteGateway[T any] interface {
	// FetchAll returns every row owned by owner plus system defaults.
	FetchAll(ctx context.Context, owner *uuid.UUID) ([]T, error)

	// FetchByID returns the row with the given id. A missing row is a
	// NotFoundError, never a zero value.
	FetchByID(ctx context.Context, id uuid.UUID) (T, error)

	// FetchByName returns the row matching the case-insensitive name
	// within the (parentID, owner) scope. Used by the repository to
	// absorb lost insert races.
	FetchByName(ctx context.Context, name string, parentID *uuid.UUID, owner *uuid.UUID) (T, error)

	Insert(ctx context.Context, record T) (T, error)
	Update(ctx context.Context, record T) (T, error)

	// Delete removes the row and reports whether it existed.
	Delete(ctx context.Context, id uuid.UUID) (bool, error)

	// ExistsByName reports whether a different row already uses the
	// name (case-insensitively) within the (parentID, owner) scope.
	// Rows with id == excludeID are ignored; pass uuid.Nil to match all.
	ExistsByName(ctx context.Context, name string, parentID *uuid.UUID, owner *uuid.UUID, excludeID uuid.UUID) (bool, error)
}

// ConnectivityProbe is a cheap reachability check used to decide whether
// a cache miss should attempt a remote fetch or fall back immediately.
// A false result means offline and is never fatal.
type ConnectivityProbe interface {
	Test(ctx context.Context) bool
}

// AuthProvider reports the current session's user. The repository never
// manages login state itself; an unauthenticated session reads system
// defaults only and cannot write.
type AuthProvider interface {
	CurrentUserID() (uuid.UUID, bool)
}

// StaticAuth is an AuthProvider pinned to a fixed user, or to no user at
// all. Sessions and tests construct one per login.
type StaticAuth struct {
	id            uuid.UUID
	authenticated bool
}

// NewStaticAuth returns an AuthProvider for the given user.
func NewStaticAuth(id uuid.UUID) *StaticAuth {
	return &StaticAuth{id: id, authenticated: true}
}

// NewAnonymousAuth returns an AuthProvider with no signed-in user.
func NewAnonymousAuth() *StaticAuth {
	return &StaticAuth{}
}

func (a *StaticAuth) CurrentUserID() (uuid.UUID, bool) {
	return a.id, a.authenticated
}
