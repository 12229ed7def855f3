// Package command contains write operations. Each handler owns one use case
// of the reservation state machine and talks to the outside world through the
// ports below, so tests can drive every transition without a network or a
// database.
package command

import (
	"context"
	"errors"
	"time"

	"github.com/bykc-hub/bykc-assistant/internal/domain/course"
)

// ══════════════════════════════════════════════════════════════════════════════
// PORTS
// ══════════════════════════════════════════════════════════════════════════════

// ChooseOutcome is the enrollment service's answer to a choose attempt,
// reduced to what the state machine cares about. Transport and session
// failures are not outcomes; they surface as errors.
type ChooseOutcome int

const (
	// ChooseOK means the seat was claimed.
	ChooseOK ChooseOutcome = iota

	// ChooseAlreadyChosen means the seat was already held. Choosing is
	// idempotent, so this counts as success.
	ChooseAlreadyChosen

	// ChooseTooEarly means the selection window has not opened yet.
	ChooseTooEarly

	// ChooseFull means every seat is taken.
	ChooseFull

	// ChooseNotSelectable means the course cannot be chosen at all.
	ChooseNotSelectable
)

// ErrWithdrawRejected is returned by EnrollmentService.Drop when the service
// refuses the withdrawal (seat not held, or past the cancellation deadline).
var ErrWithdrawRejected = errors.New("command: withdrawal rejected by the service")

// EnrollmentService is the outbound port to the enrollment service.
type EnrollmentService interface {
	// Snapshot fetches the remote view of one course.
	Snapshot(ctx context.Context, courseID int64) (course.Snapshot, error)

	// Catalog fetches the remote view of the whole semester catalog.
	Catalog(ctx context.Context) ([]course.Snapshot, error)

	// Chosen fetches the courses the account currently holds, each snapshot
	// carrying the selected flag.
	Chosen(ctx context.Context) ([]course.Snapshot, error)

	// Choose attempts to claim a seat. The outcome is only meaningful when
	// err is nil.
	Choose(ctx context.Context, courseID int64) (ChooseOutcome, error)

	// Drop withdraws a held seat. Returns ErrWithdrawRejected when the
	// service refuses.
	Drop(ctx context.Context, courseID int64) error
}

// Notifier delivers operator notifications. Delivery failures are the
// notifier's problem; handlers treat them as best-effort except for the
// once-per-course new-course message, which is tracked by the notified flag.
type Notifier interface {
	// NewCourse announces a course seen for the first time.
	NewCourse(ctx context.Context, rec *course.Record) error

	// StatusChanged announces a committed status transition.
	StatusChanged(ctx context.Context, rec *course.Record, from, to course.Status) error
}

// RushArmer manages the pending rush jobs.
type RushArmer interface {
	Arm(courseID int64, selectStart time.Time)
	Cancel(courseID int64)
}

// nowFunc is injectable time for tests.
type nowFunc func() time.Time
