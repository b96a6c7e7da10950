package reconcile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/orchidarium/go-taxon-repository/pkg/testsupport"
	"github.com/orchidarium/go-taxon-repository/taxon"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCollapseKeepsEarliestCreated(t *testing.T) {
	gw := testsupport.NewFakeGateway[*taxon.Genus]()
	engine := New[*taxon.Genus](gw, quietLogger())

	familyID := uuid.New()
	owner := testsupport.OwnerRef(uuid.New())
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	original := testsupport.NewGenus("Cattleya", familyID, owner, base)
	retry1 := testsupport.NewGenus("cattleya", familyID, owner, base.Add(2*time.Second))
	retry2 := testsupport.NewGenus("CATTLEYA", familyID, owner, base.Add(5*time.Second))
	other := testsupport.NewGenus("Phalaenopsis", familyID, owner, base)
	gw.Seed(original, retry1, retry2, other)

	survivors, aliases, err := engine.Collapse(context.Background(), []*taxon.Genus{retry2, original, retry1, other})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(survivors) != 2 {
		t.Fatalf("expected 2 survivors, got %d", len(survivors))
	}
	for _, s := range survivors {
		if s.NormalizedName() == "cattleya" && s.ID != original.ID {
			t.Fatalf("expected earliest row %s to survive, got %s", original.ID, s.ID)
		}
	}

	if len(aliases) != 2 {
		t.Fatalf("expected 2 aliases, got %d", len(aliases))
	}
	if aliases[retry1.ID] != original.ID || aliases[retry2.ID] != original.ID {
		t.Fatalf("expected duplicates to alias to %s, got %v", original.ID, aliases)
	}

	if gw.CallCount("Delete") != 2 {
		t.Fatalf("expected 2 remote deletions, got %d", gw.CallCount("Delete"))
	}
	if _, ok := gw.Row(retry1.ID); ok {
		t.Fatal("expected duplicate row to be removed from remote store")
	}
	if _, ok := gw.Row(original.ID); !ok {
		t.Fatal("expected canonical row to remain in remote store")
	}
}

func TestCollapseTieBreaksByID(t *testing.T) {
	gw := testsupport.NewFakeGateway[*taxon.Variant]()
	engine := New[*taxon.Variant](gw, quietLogger())

	created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	a := testsupport.NewVariant("alba", nil, created)
	b := testsupport.NewVariant("alba", nil, created)
	gw.Seed(a, b)

	want := a
	if b.ID.String() < a.ID.String() {
		want = b
	}

	survivors, _, err := engine.Collapse(context.Background(), []*taxon.Variant{a, b})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(survivors) != 1 {
		t.Fatalf("expected 1 survivor, got %d", len(survivors))
	}
	if survivors[0].ID != want.ID {
		t.Fatalf("expected deterministic tie-break winner %s, got %s", want.ID, survivors[0].ID)
	}
}

func TestCollapseScopesGroupsByParentAndOwner(t *testing.T) {
	gw := testsupport.NewFakeGateway[*taxon.Genus]()
	engine := New[*taxon.Genus](gw, quietLogger())

	now := time.Now()
	owner := testsupport.OwnerRef(uuid.New())
	familyA := uuid.New()
	familyB := uuid.New()

	// Same name under different parents, and the same name owned by a
	// different user, are not duplicates.
	inA := testsupport.NewGenus("Cattleya", familyA, owner, now)
	inB := testsupport.NewGenus("Cattleya", familyB, owner, now)
	otherOwner := testsupport.NewGenus("Cattleya", familyA, testsupport.OwnerRef(uuid.New()), now)
	gw.Seed(inA, inB, otherOwner)

	survivors, aliases, err := engine.Collapse(context.Background(), []*taxon.Genus{inA, inB, otherOwner})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(survivors) != 3 {
		t.Fatalf("expected all 3 rows to survive, got %d", len(survivors))
	}
	if len(aliases) != 0 {
		t.Fatalf("expected no aliases, got %v", aliases)
	}
	if gw.CallCount("Delete") != 0 {
		t.Fatalf("expected no deletions, got %d", gw.CallCount("Delete"))
	}
}

func TestCollapseReportsFailedCleanup(t *testing.T) {
	gw := testsupport.NewFakeGateway[*taxon.Family]()
	engine := New[*taxon.Family](gw, quietLogger())

	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	original := testsupport.NewFamily("Orchidaceae", nil, base)
	dup := testsupport.NewFamily("orchidaceae", nil, base.Add(time.Second))
	gw.Seed(original, dup)
	gw.FailWith("Delete", &taxon.NetworkError{Op: "delete", Err: errors.New("timeout")})

	survivors, aliases, err := engine.Collapse(context.Background(), []*taxon.Family{original, dup})

	var recErr *taxon.ReconcileError
	if !errors.As(err, &recErr) {
		t.Fatalf("expected ReconcileError, got %v", err)
	}
	if recErr.Attempted != 1 || len(recErr.Errs) != 1 {
		t.Fatalf("expected 1 attempted / 1 failed, got %d / %d", recErr.Attempted, len(recErr.Errs))
	}

	// The duplicate is still dropped locally; only the remote cleanup is
	// deferred to the next refresh.
	if len(survivors) != 1 || survivors[0].ID != original.ID {
		t.Fatalf("expected the canonical row to be the only survivor, got %v", survivors)
	}
	if aliases[dup.ID] != original.ID {
		t.Fatalf("expected alias for failed deletion, got %v", aliases)
	}
}

func TestCollapseEmptyInput(t *testing.T) {
	gw := testsupport.NewFakeGateway[*taxon.Family]()
	engine := New[*taxon.Family](gw, quietLogger())

	survivors, aliases, err := engine.Collapse(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(survivors) != 0 || len(aliases) != 0 {
		t.Fatalf("expected empty result, got %d survivors / %d aliases", len(survivors), len(aliases))
	}
}
