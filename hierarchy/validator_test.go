package hierarchy

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/orchidarium/go-taxon-repository/pkg/testsupport"
	"github.com/orchidarium/go-taxon-repository/taxon"
)

// stubParents answers ParentAccessible from a fixed map.
type stubParents struct {
	accessible map[uuid.UUID]bool
	err        error
	calls      int
}

func (s *stubParents) ParentAccessible(ctx context.Context, id uuid.UUID, owner *uuid.UUID) (bool, error) {
	s.calls++
	if s.err != nil {
		return false, s.err
	}
	return s.accessible[id], nil
}

func TestValidateFieldsRejectsBadNames(t *testing.T) {
	gw := testsupport.NewFakeGateway[*taxon.Family]()
	v := New[*taxon.Family](gw, nil, 10)

	cases := []struct {
		label string
		name  string
	}{
		{"empty", ""},
		{"blank", "   "},
		{"oversized", strings.Repeat("x", 11)},
	}
	for _, tc := range cases {
		rec := testsupport.NewFamily(tc.name, nil, time.Now())
		err := v.ValidateFields(rec)
		if !taxon.IsValidation(err) {
			t.Errorf("%s name: expected ValidationError, got %v", tc.label, err)
		}
	}

	ok := testsupport.NewFamily("Orchidaceae", nil, time.Now())
	if err := v.ValidateFields(ok); err != nil {
		t.Fatalf("valid name rejected: %v", err)
	}
}

func TestValidateFieldsAcceptsNameAtLimit(t *testing.T) {
	gw := testsupport.NewFakeGateway[*taxon.Family]()
	v := New[*taxon.Family](gw, nil, 10)

	rec := testsupport.NewFamily(strings.Repeat("x", 10), nil, time.Now())
	if err := v.ValidateFields(rec); err != nil {
		t.Fatalf("name at exact limit rejected: %v", err)
	}
}

func TestValidateParentAccess(t *testing.T) {
	gw := testsupport.NewFakeGateway[*taxon.Genus]()
	goodParent := uuid.New()
	badParent := uuid.New()
	parents := &stubParents{accessible: map[uuid.UUID]bool{goodParent: true}}
	v := New[*taxon.Genus](gw, parents, DefaultNameLimit)

	owner := testsupport.OwnerRef(uuid.New())

	ok := testsupport.NewGenus("Cattleya", goodParent, owner, time.Now())
	if err := v.ValidateParentAccess(context.Background(), ok, owner); err != nil {
		t.Fatalf("accessible parent rejected: %v", err)
	}

	missing := testsupport.NewGenus("Cattleya", badParent, owner, time.Now())
	if err := v.ValidateParentAccess(context.Background(), missing, owner); !taxon.IsValidation(err) {
		t.Fatalf("expected ValidationError for inaccessible parent, got %v", err)
	}

	nilParent := testsupport.NewGenus("Cattleya", uuid.Nil, owner, time.Now())
	if err := v.ValidateParentAccess(context.Background(), nilParent, owner); !taxon.IsValidation(err) {
		t.Fatalf("expected ValidationError for nil parent id, got %v", err)
	}
}

func TestValidateParentAccessSkipsTopLevelTypes(t *testing.T) {
	gw := testsupport.NewFakeGateway[*taxon.Family]()
	v := New[*taxon.Family](gw, nil, DefaultNameLimit)

	rec := testsupport.NewFamily("Orchidaceae", nil, time.Now())
	if err := v.ValidateParentAccess(context.Background(), rec, nil); err != nil {
		t.Fatalf("top-level type must skip parent checks, got %v", err)
	}
}

func TestValidateParentAccessWithoutBoundParents(t *testing.T) {
	gw := testsupport.NewFakeGateway[*taxon.Genus]()
	v := New[*taxon.Genus](gw, nil, DefaultNameLimit)

	rec := testsupport.NewGenus("Cattleya", uuid.New(), nil, time.Now())
	if err := v.ValidateParentAccess(context.Background(), rec, nil); !taxon.IsValidation(err) {
		t.Fatalf("expected ValidationError when no parent collection is bound, got %v", err)
	}
}

func TestNameExistsInScopeIsCaseInsensitive(t *testing.T) {
	gw := testsupport.NewFakeGateway[*taxon.Genus]()
	familyID := uuid.New()
	owner := testsupport.OwnerRef(uuid.New())
	existing := testsupport.NewGenus("Cattleya", familyID, owner, time.Now())
	gw.Seed(existing)

	v := New[*taxon.Genus](gw, nil, DefaultNameLimit)

	probe := testsupport.NewGenus("CATTLEYA", familyID, owner, time.Now())
	exists, err := v.NameExistsInScope(context.Background(), probe, owner, uuid.Nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !exists {
		t.Fatal("expected case-insensitive match within scope")
	}

	// Same name under a different parent is a different scope.
	elsewhere := testsupport.NewGenus("Cattleya", uuid.New(), owner, time.Now())
	exists, err = v.NameExistsInScope(context.Background(), elsewhere, owner, uuid.Nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exists {
		t.Fatal("expected no match under a different parent")
	}

	// Excluding the existing row's own id means no collision.
	exists, err = v.NameExistsInScope(context.Background(), probe, owner, existing.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exists {
		t.Fatal("expected row excluded by id not to collide with itself")
	}
}
