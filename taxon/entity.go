package taxon

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Entity carries the columns shared by every taxonomic record. Concrete
// types embed it so a single generic repository can serve all hierarchy
// levels instead of re-implementing the cache/validate/reconcile cycle
// per level.
type Entity struct {
	// ID is assigned client-side at creation time.
	ID uuid.UUID `bun:"id,pk" json:"id"`

	// OwnerID is nil for system defaults, which are visible to every
	// caller but never mutable through this layer.
	OwnerID *uuid.UUID `bun:"owner_id" json:"owner_id,omitempty"`

	Name        string `bun:"name,notnull" json:"name"`
	Description string `bun:"description" json:"description,omitempty"`

	IsActive   bool `bun:"is_active" json:"is_active"`
	IsFavorite bool `bun:"is_favorite" json:"is_favorite"`

	// CreatedAt is immutable after creation and acts as the tie-breaker
	// when reconciliation collapses duplicate rows.
	CreatedAt time.Time `bun:"created_at" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at" json:"updated_at"`
}

// Record is the capability set the generic repository requires. It is
// implemented by pointers to the concrete entity types below.
type Record[T any] interface {
	// Base exposes the shared columns for reads and mutation.
	Base() *Entity

	// Clone returns an independent copy. Snapshot stores clone on the
	// way in and out so no caller observes shared mutable state.
	Clone() T

	// ParentRef reports the parent id for hierarchical types. The bool
	// is false for top-level and independent types.
	ParentRef() (uuid.UUID, bool)
}

// SystemDefault reports whether the entity has no owner.
func (e *Entity) SystemDefault() bool {
	return e.OwnerID == nil
}

// VisibleTo reports whether the row may be read by the given caller.
// A nil owner matches the system-default visibility rule.
func (e *Entity) VisibleTo(owner *uuid.UUID) bool {
	if e.OwnerID == nil {
		return true
	}
	return owner != nil && *e.OwnerID == *owner
}

// NormalizedName is the case-insensitive comparison form of Name.
func (e *Entity) NormalizedName() string {
	return strings.ToLower(strings.TrimSpace(e.Name))
}

func (e *Entity) cloneInto(dst *Entity) {
	*dst = *e
	if e.OwnerID != nil {
		owner := *e.OwnerID
		dst.OwnerID = &owner
	}
}

// Family is the top of the hierarchy. It has no parent.
type Family struct {
	bun.BaseModel `bun:"table:families,alias:f"`

	Entity
}

func (f *Family) Base() *Entity { return &f.Entity }

func (f *Family) Clone() *Family {
	c := &Family{}
	f.Entity.cloneInto(&c.Entity)
	return c
}

func (f *Family) ParentRef() (uuid.UUID, bool) { return uuid.Nil, false }

// Genus belongs to a Family.
type Genus struct {
	bun.BaseModel `bun:"table:genera,alias:g"`

	Entity

	FamilyID uuid.UUID `bun:"family_id,notnull" json:"family_id"`
}

func (g *Genus) Base() *Entity { return &g.Entity }

func (g *Genus) Clone() *Genus {
	c := &Genus{FamilyID: g.FamilyID}
	g.Entity.cloneInto(&c.Entity)
	return c
}

func (g *Genus) ParentRef() (uuid.UUID, bool) { return g.FamilyID, true }

// Species belongs to a Genus.
type Species struct {
	bun.BaseModel `bun:"table:species,alias:s"`

	Entity

	GenusID uuid.UUID `bun:"genus_id,notnull" json:"genus_id"`
}

func (s *Species) Base() *Entity { return &s.Entity }

func (s *Species) Clone() *Species {
	c := &Species{GenusID: s.GenusID}
	s.Entity.cloneInto(&c.Entity)
	return c
}

func (s *Species) ParentRef() (uuid.UUID, bool) { return s.GenusID, true }

// Variant is an independent entity with no place in the hierarchy.
type Variant struct {
	bun.BaseModel `bun:"table:variants,alias:v"`

	Entity
}

func (v *Variant) Base() *Entity { return &v.Entity }

func (v *Variant) Clone() *Variant {
	c := &Variant{}
	v.Entity.cloneInto(&c.Entity)
	return c
}

func (v *Variant) ParentRef() (uuid.UUID, bool) { return uuid.Nil, false }

// Interface assertions so a broken capability set fails at compile time.
var (
	_ Record[*Family]  = (*Family)(nil)
	_ Record[*Genus]   = (*Genus)(nil)
	_ Record[*Species] = (*Species)(nil)
	_ Record[*Variant] = (*Variant)(nil)
)
