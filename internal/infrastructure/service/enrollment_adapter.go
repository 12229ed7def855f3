// Package service contains the adapters between the application layer's
// ports and the infrastructure clients.
package service

import (
	"context"
	"fmt"

	"github.com/bykc-hub/bykc-assistant/internal/application/command"
	"github.com/bykc-hub/bykc-assistant/internal/domain/course"
	"github.com/bykc-hub/bykc-assistant/internal/infrastructure/external/bykc"
)

// catalogPageSize is how many courses each catalog page requests.
const catalogPageSize = 100

// EnrollmentAdapter adapts the bykc client to the command.EnrollmentService
// port, translating the client's error taxonomy into choose outcomes.
type EnrollmentAdapter struct {
	client *bykc.Client
}

// NewEnrollmentAdapter creates the adapter.
func NewEnrollmentAdapter(client *bykc.Client) *EnrollmentAdapter {
	return &EnrollmentAdapter{client: client}
}

// Snapshot fetches the remote view of one course.
func (a *EnrollmentAdapter) Snapshot(ctx context.Context, courseID int64) (course.Snapshot, error) {
	return a.client.FetchCourseSnapshot(ctx, courseID)
}

// Catalog fetches the remote view of the whole semester catalog.
func (a *EnrollmentAdapter) Catalog(ctx context.Context) ([]course.Snapshot, error) {
	return a.client.FetchCatalogSnapshots(ctx, catalogPageSize)
}

// Chosen fetches the courses the account currently holds.
func (a *EnrollmentAdapter) Chosen(ctx context.Context) ([]course.Snapshot, error) {
	return a.client.FetchChosenSnapshots(ctx)
}

// Choose attempts to claim a seat and reduces the answer to an outcome.
// Business answers are outcomes, not errors; everything else (transport,
// exhausted session recovery, login failure) surfaces as an error.
func (a *EnrollmentAdapter) Choose(ctx context.Context, courseID int64) (command.ChooseOutcome, error) {
	_, err := a.client.ChooseCourse(ctx, courseID)
	switch {
	case err == nil:
		return command.ChooseOK, nil
	case bykc.IsAlreadyChosen(err):
		return command.ChooseAlreadyChosen, nil
	case bykc.IsTooEarlyToChoose(err):
		return command.ChooseTooEarly, nil
	case bykc.IsCourseFull(err):
		return command.ChooseFull, nil
	case bykc.IsKind(err, bykc.KindFailedToChoose):
		return command.ChooseNotSelectable, nil
	default:
		return command.ChooseOK, fmt.Errorf("enrollment: choose course %d: %w", courseID, err)
	}
}

// Drop withdraws a held seat.
func (a *EnrollmentAdapter) Drop(ctx context.Context, courseID int64) error {
	_, err := a.client.DropCourse(ctx, courseID)
	if err == nil {
		return nil
	}
	if bykc.IsKind(err, bykc.KindFailedToDelChosen) {
		return fmt.Errorf("%w: course %d", command.ErrWithdrawRejected, courseID)
	}
	return fmt.Errorf("enrollment: drop course %d: %w", courseID, err)
}

var _ command.EnrollmentService = (*EnrollmentAdapter)(nil)
