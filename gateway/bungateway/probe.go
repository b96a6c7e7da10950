package bungateway

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

// DefaultProbeTimeout bounds how long a connectivity check may hang
// before the caller is treated as offline.
const DefaultProbeTimeout = 3 * time.Second

// DatabaseProbe answers the "are we online" question with a bounded
// SELECT 1 against the remote store. Failure is not fatal; the facade
// falls back to its cached snapshot.
type DatabaseProbe struct {
	db      *bun.DB
	timeout time.Duration
}

// NewDatabaseProbe builds a probe over the given connection. A zero
// timeout uses DefaultProbeTimeout.
func NewDatabaseProbe(db *bun.DB, timeout time.Duration) *DatabaseProbe {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return &DatabaseProbe{db: db, timeout: timeout}
}

// Test reports reachability. Errors are swallowed deliberately: the
// only consumer treats false as "offline".
func (p *DatabaseProbe) Test(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var one int
	if err := p.db.NewSelect().ColumnExpr("1").Scan(ctx, &one); err != nil {
		return false
	}
	return one == 1
}
