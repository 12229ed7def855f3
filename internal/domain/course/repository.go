package course

import "context"

// Repository is the persistence port for course records. The record table is
// the single source of truth for status; implementations must make
// TransitionStatus an atomic compare-and-set so the rush burst and the
// waiting monitor cannot both commit a transition for the same record.
type Repository interface {
	// Get returns the record for a course id, or ErrRecordNotFound.
	Get(ctx context.Context, id int64) (*Record, error)

	// Save upserts the record (cached remote fields, notified flag, status).
	// First-sighting creation goes through here.
	Save(ctx context.Context, r *Record) error

	// ListByStatus returns all records currently in the given status.
	ListByStatus(ctx context.Context, status Status) ([]*Record, error)

	// TransitionStatus atomically moves a record from one status to another.
	// Returns ErrStatusConflict when the stored status is no longer "from",
	// and ErrRecordNotFound when the record does not exist.
	TransitionStatus(ctx context.Context, id int64, from, to Status) error

	// SetNotified updates the notified flag.
	SetNotified(ctx context.Context, id int64, notified bool) error
}
