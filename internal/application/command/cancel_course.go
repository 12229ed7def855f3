package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bykc-hub/bykc-assistant/internal/domain/course"
)

// ══════════════════════════════════════════════════════════════════════════════
// CANCEL COURSE COMMAND
// The user's "never mind". Booked and Waiting are local intent and unwind
// without the service's involvement; Selected holds a real seat and requires
// a successful remote withdrawal before the local record lets go.
// ══════════════════════════════════════════════════════════════════════════════

// CancelCourseHandler executes a user cancel request.
type CancelCourseHandler struct {
	repo     course.Repository
	service  EnrollmentService
	rush     RushArmer
	notifier Notifier
	logger   *slog.Logger
}

// NewCancelCourseHandler creates the handler.
func NewCancelCourseHandler(
	repo course.Repository,
	service EnrollmentService,
	rush RushArmer,
	notifier Notifier,
	logger *slog.Logger,
) *CancelCourseHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CancelCourseHandler{
		repo:     repo,
		service:  service,
		rush:     rush,
		notifier: notifier,
		logger:   logger,
	}
}

// Handle runs the cancel flow.
func (h *CancelCourseHandler) Handle(ctx context.Context, courseID int64) error {
	rec, err := h.repo.Get(ctx, courseID)
	if err != nil {
		return fmt.Errorf("cancel course: %w", err)
	}

	switch rec.Status {
	case course.StatusNotSelected:
		return nil

	case course.StatusBooked:
		h.rush.Cancel(courseID)
		return h.release(ctx, rec, course.StatusBooked)

	case course.StatusWaiting:
		return h.release(ctx, rec, course.StatusWaiting)

	case course.StatusSelected:
		if err := h.service.Drop(ctx, courseID); err != nil {
			if errors.Is(err, ErrWithdrawRejected) {
				return fmt.Errorf("cancel course: %w", err)
			}
			return fmt.Errorf("cancel course: withdraw: %w", err)
		}
		return h.release(ctx, rec, course.StatusSelected)

	default:
		return fmt.Errorf("cancel course: course %d has invalid status %d", courseID, int(rec.Status))
	}
}

// release commits the transition back to NotSelected.
func (h *CancelCourseHandler) release(ctx context.Context, rec *course.Record, from course.Status) error {
	if err := h.repo.TransitionStatus(ctx, rec.ID, from, course.StatusNotSelected); err != nil {
		return fmt.Errorf("cancel course: %w", err)
	}
	rec.Status = course.StatusNotSelected

	h.logger.Info("course released", "course_id", rec.ID, "from", from.String())

	if h.notifier != nil {
		if err := h.notifier.StatusChanged(ctx, rec, from, course.StatusNotSelected); err != nil {
			h.logger.Warn("status notification failed", "course_id", rec.ID, "error", err)
		}
	}
	return nil
}
