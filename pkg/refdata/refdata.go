package refdata

import "context"

// Snapshot is a point-in-time copy of the reference lists the deterministic
// extractor matches against. A periodically refreshed snapshot is acceptable;
// staleness tolerance is the caller's concern.
type Snapshot struct {
	Organizations []string
	UserEmails    []string
}

// Provider supplies reference snapshots. Implementations must be safe for
// concurrent use.
type Provider interface {
	Snapshot(ctx context.Context) (*Snapshot, error)
}

// Static is a fixed in-memory provider, used in tests and as a fallback when
// no external source is configured.
type Static struct {
	Data Snapshot
}

func NewStatic(organizations, userEmails []string) *Static {
	return &Static{Data: Snapshot{
		Organizations: organizations,
		UserEmails:    userEmails,
	}}
}

func (s *Static) Snapshot(ctx context.Context) (*Snapshot, error) {
	cp := Snapshot{
		Organizations: append([]string(nil), s.Data.Organizations...),
		UserEmails:    append([]string(nil), s.Data.UserEmails...),
	}
	return &cp, nil
}
