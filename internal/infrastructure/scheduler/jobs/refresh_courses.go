// Package jobs contains the periodic jobs driven by the scheduler.
package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bykc-hub/bykc-assistant/internal/application/command"
)

// RefreshCoursesJob pages through the remote semester catalog, then through
// the account's chosen courses, and merges every snapshot into the record
// table. New courses are announced to the operator; known ones get their
// cached fields and remote-forced status reconciled. The chosen pass is what
// picks up seats claimed outside the assistant: those snapshots carry the
// selected flag, so merging them forces the record to Selected.
type RefreshCoursesJob struct {
	service command.EnrollmentService
	observe *command.ObserveSnapshotHandler
	logger  *slog.Logger
}

// NewRefreshCoursesJob creates the job.
func NewRefreshCoursesJob(service command.EnrollmentService, observe *command.ObserveSnapshotHandler, logger *slog.Logger) *RefreshCoursesJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &RefreshCoursesJob{
		service: service,
		observe: observe,
		logger:  logger,
	}
}

// Name returns the unique name of the job.
func (j *RefreshCoursesJob) Name() string {
	return "refresh_courses"
}

// Description returns a human-readable description of the job.
func (j *RefreshCoursesJob) Description() string {
	return "Syncs the remote course catalog into the local record table"
}

// Run executes one refresh pass. A failed merge of one snapshot does not
// stop the pass; the count of failures is reported at the end.
func (j *RefreshCoursesJob) Run(ctx context.Context) error {
	snapshots, err := j.service.Catalog(ctx)
	if err != nil {
		return fmt.Errorf("refresh courses: %w", err)
	}

	chosen, err := j.service.Chosen(ctx)
	if err != nil {
		return fmt.Errorf("refresh courses: chosen list: %w", err)
	}
	snapshots = append(snapshots, chosen...)

	var failed int
	for _, snap := range snapshots {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := j.observe.Handle(ctx, snap); err != nil {
			failed++
			j.logger.Warn("failed to merge course snapshot",
				"course_id", snap.ID, "error", err)
		}
	}

	j.logger.Info("catalog refreshed",
		"courses", len(snapshots),
		"chosen", len(chosen),
		"failed", failed,
	)

	if failed > 0 {
		return fmt.Errorf("refresh courses: %d of %d snapshots failed to merge", failed, len(snapshots))
	}
	return nil
}
