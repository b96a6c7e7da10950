package testsupport

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/orchidarium/go-taxon-repository/taxon"
)

func TestFakeGatewayOffline(t *testing.T) {
	gw := NewFakeGateway[*taxon.Family]()
	gw.Seed(NewFamily("Orchidaceae", nil, time.Now()))
	gw.SetOffline(true)

	if _, err := gw.FetchAll(context.Background(), nil); !taxon.IsNetwork(err) {
		t.Fatalf("expected NetworkError while offline, got %v", err)
	}
	if gw.CallCount("FetchAll") != 1 {
		t.Fatal("offline calls must still be counted")
	}

	gw.SetOffline(false)
	if _, err := gw.FetchAll(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error back online: %v", err)
	}
}

func TestFakeGatewayUniqueEnforcement(t *testing.T) {
	gw := NewFakeGateway[*taxon.Variant]()
	owner := OwnerRef(uuid.New())

	first := NewVariant("alba", owner, time.Now())
	if _, err := gw.Insert(context.Background(), first); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Without enforcement duplicates land, mirroring a store without a
	// unique index.
	dup := NewVariant("ALBA", owner, time.Now())
	if _, err := gw.Insert(context.Background(), dup); err != nil {
		t.Fatalf("expected duplicate insert to succeed by default, got %v", err)
	}
	if gw.Len() != 2 {
		t.Fatalf("expected 2 rows, got %d", gw.Len())
	}

	gw.SetEnforceUniqueNames(true)
	again := NewVariant("Alba", owner, time.Now())
	if _, err := gw.Insert(context.Background(), again); !taxon.IsConstraintViolation(err) {
		t.Fatalf("expected ConstraintViolationError with enforcement on, got %v", err)
	}
}

func TestFakeGatewayScoping(t *testing.T) {
	gw := NewFakeGateway[*taxon.Genus]()
	owner := OwnerRef(uuid.New())
	familyID := uuid.New()
	g := NewGenus("Cattleya", familyID, owner, time.Now())
	gw.Seed(g)

	exists, err := gw.ExistsByName(context.Background(), "cattleya", &familyID, owner, uuid.Nil)
	if err != nil || !exists {
		t.Fatalf("expected case-insensitive in-scope match, got %v %v", exists, err)
	}

	otherFamily := uuid.New()
	exists, err = gw.ExistsByName(context.Background(), "cattleya", &otherFamily, owner, uuid.Nil)
	if err != nil || exists {
		t.Fatalf("expected no match under a different parent, got %v %v", exists, err)
	}

	exists, err = gw.ExistsByName(context.Background(), "cattleya", &familyID, OwnerRef(uuid.New()), uuid.Nil)
	if err != nil || exists {
		t.Fatalf("expected no match for a different owner, got %v %v", exists, err)
	}
}

func TestFakeGatewayFailureInjection(t *testing.T) {
	gw := NewFakeGateway[*taxon.Family]()
	gw.Seed(NewFamily("Orchidaceae", nil, time.Now()))

	boom := &taxon.NetworkError{Op: "delete", Err: context.DeadlineExceeded}
	gw.FailWith("Delete", boom)

	if _, err := gw.Delete(context.Background(), uuid.New()); !taxon.IsNetwork(err) {
		t.Fatalf("expected injected failure, got %v", err)
	}

	gw.FailWith("Delete", nil)
	if _, err := gw.Delete(context.Background(), uuid.New()); err != nil {
		t.Fatalf("expected cleared injection, got %v", err)
	}
}

func TestFakeProbeCounting(t *testing.T) {
	probe := NewFakeProbe(false)
	if probe.Test(context.Background()) {
		t.Fatal("expected offline probe")
	}
	probe.SetOnline(true)
	if !probe.Test(context.Background()) {
		t.Fatal("expected online probe")
	}
	if probe.Calls() != 2 {
		t.Fatalf("expected 2 probe calls, got %d", probe.Calls())
	}
}
