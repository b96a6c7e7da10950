package testsupport

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/orchidarium/go-taxon-repository/taxon"
)

// LoadFixture loads test data from a fixture file. The path is relative
// to the test package directory.
func LoadFixture(t *testing.T, path string) []byte {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to load fixture from %s: %v", path, err)
	}
	return data
}

// LoadFixtureJSON loads JSON test data from a fixture file and
// unmarshals it into dest.
func LoadFixtureJSON(t *testing.T, path string, dest interface{}) {
	t.Helper()

	data := LoadFixture(t, path)
	if err := json.Unmarshal(data, dest); err != nil {
		t.Fatalf("failed to unmarshal JSON fixture from %s: %v", path, err)
	}
}

// FixturePath constructs a path to a fixture file relative to the
// testdata directory.
func FixturePath(filename string) string {
	return filepath.Join("testdata", filename)
}

// Clock is a manual time source for stepping through TTL expiry and
// backoff windows without sleeping.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

// NewClock creates a clock pinned to start.
func NewClock(start time.Time) *Clock {
	return &Clock{t: start}
}

// Now returns the current fake time. Pass c.Now as the clock option.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// OwnerRef returns a pointer to the given id, for OwnerID fields.
func OwnerRef(id uuid.UUID) *uuid.UUID {
	return &id
}

// NewFamily builds an active family record for tests.
func NewFamily(name string, owner *uuid.UUID, createdAt time.Time) *taxon.Family {
	f := &taxon.Family{}
	fillEntity(&f.Entity, name, owner, createdAt)
	return f
}

// NewGenus builds an active genus record under the given family.
func NewGenus(name string, familyID uuid.UUID, owner *uuid.UUID, createdAt time.Time) *taxon.Genus {
	g := &taxon.Genus{FamilyID: familyID}
	fillEntity(&g.Entity, name, owner, createdAt)
	return g
}

// NewSpecies builds an active species record under the given genus.
func NewSpecies(name string, genusID uuid.UUID, owner *uuid.UUID, createdAt time.Time) *taxon.Species {
	s := &taxon.Species{GenusID: genusID}
	fillEntity(&s.Entity, name, owner, createdAt)
	return s
}

// NewVariant builds an active variant record.
func NewVariant(name string, owner *uuid.UUID, createdAt time.Time) *taxon.Variant {
	v := &taxon.Variant{}
	fillEntity(&v.Entity, name, owner, createdAt)
	return v
}

func fillEntity(e *taxon.Entity, name string, owner *uuid.UUID, createdAt time.Time) {
	e.ID = uuid.New()
	e.OwnerID = owner
	e.Name = name
	e.IsActive = true
	e.CreatedAt = createdAt
	e.UpdatedAt = createdAt
}
