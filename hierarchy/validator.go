// Package hierarchy guards referential integrity across hierarchy
// levels: a child's parent must exist, be active, and be visible to the
// writer, and names must stay unique within their (parent, owner)
// scope. Both checks run before anything reaches the remote store.
package hierarchy

import (
	"context"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/orchidarium/go-taxon-repository/gateway"
	"github.com/orchidarium/go-taxon-repository/taxon"
)

// DefaultNameLimit bounds entity names. The remote column is wider; the
// limit exists so a fat-fingered paste fails locally instead of as a
// confusing constraint error.
const DefaultNameLimit = 120

// ParentLookup resolves whether a prospective parent is usable by the
// given owner. The repository facade of the parent entity type
// implements this against its own cache and gateway.
type ParentLookup interface {
	ParentAccessible(ctx context.Context, id uuid.UUID, owner *uuid.UUID) (bool, error)
}

// Validator performs the pre-write checks for one entity type.
type Validator[T taxon.Record[T]] struct {
	gw        gateway.RemoteGateway[T]
	parents   ParentLookup
	nameLimit int
}

// New builds a validator. parents may be nil for independent and
// top-level entity types; hierarchical records then fail validation
// outright, which is a wiring bug worth surfacing early.
func New[T taxon.Record[T]](gw gateway.RemoteGateway[T], parents ParentLookup, nameLimit int) *Validator[T] {
	if nameLimit <= 0 {
		nameLimit = DefaultNameLimit
	}
	return &Validator[T]{gw: gw, parents: parents, nameLimit: nameLimit}
}

// ValidateFields checks the record's own columns: name present, not
// blank, within length bounds.
func (v *Validator[T]) ValidateFields(rec T) error {
	base := rec.Base()
	err := validation.ValidateStruct(base,
		validation.Field(&base.Name,
			validation.Required.Error("name is required"),
			validation.By(notBlank),
			validation.Length(1, v.nameLimit).Error("name exceeds length bound"),
		),
	)
	if err != nil {
		return &taxon.ValidationError{Field: "name", Message: err.Error()}
	}
	return nil
}

// ValidateParentAccess verifies the referenced parent exists, is
// active, and is visible to the owner (owned or system default). It is
// a no-op for records without a parent reference.
func (v *Validator[T]) ValidateParentAccess(ctx context.Context, rec T, owner *uuid.UUID) error {
	parentID, ok := rec.ParentRef()
	if !ok {
		return nil
	}
	if parentID == uuid.Nil {
		return &taxon.ValidationError{Field: "parent_id", Message: "parent reference is required"}
	}
	if v.parents == nil {
		return &taxon.ValidationError{Field: "parent_id", Message: "no parent collection is bound for this entity type"}
	}

	accessible, err := v.parents.ParentAccessible(ctx, parentID, owner)
	if err != nil {
		return err
	}
	if !accessible {
		return &taxon.ValidationError{Field: "parent_id", Message: "parent does not exist or is not accessible"}
	}
	return nil
}

// NameExistsInScope reports whether another row already claims the
// record's name (case-insensitively) within its (parent, owner) scope.
// Rows with id == excludeID are ignored so updates do not collide with
// themselves.
func (v *Validator[T]) NameExistsInScope(ctx context.Context, rec T, owner *uuid.UUID, excludeID uuid.UUID) (bool, error) {
	var parentID *uuid.UUID
	if pid, ok := rec.ParentRef(); ok {
		parentID = &pid
	}
	return v.gw.ExistsByName(ctx, rec.Base().Name, parentID, owner, excludeID)
}

func notBlank(value interface{}) error {
	s, _ := value.(string)
	if strings.TrimSpace(s) == "" {
		return validation.NewError("validation_blank", "cannot be blank")
	}
	return nil
}
