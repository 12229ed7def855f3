package command

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bykc-hub/bykc-assistant/internal/domain/course"
)

// ══════════════════════════════════════════════════════════════════════════════
// CHOOSE COURSE COMMAND
// The user's "I want this course". Depending on what the service answers the
// record ends up Selected (seat claimed), Booked (window not open yet, rush
// armed) or Waiting (course full, monitor takes over).
// ══════════════════════════════════════════════════════════════════════════════

// ChooseCourseHandler executes a user choose request.
type ChooseCourseHandler struct {
	repo     course.Repository
	service  EnrollmentService
	observe  *ObserveSnapshotHandler
	rush     RushArmer
	notifier Notifier
	logger   *slog.Logger
	now      nowFunc
}

// NewChooseCourseHandler creates the handler.
func NewChooseCourseHandler(
	repo course.Repository,
	service EnrollmentService,
	observe *ObserveSnapshotHandler,
	rush RushArmer,
	notifier Notifier,
	logger *slog.Logger,
) *ChooseCourseHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChooseCourseHandler{
		repo:     repo,
		service:  service,
		observe:  observe,
		rush:     rush,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// Handle runs the choose flow and returns the record's final status.
func (h *ChooseCourseHandler) Handle(ctx context.Context, courseID int64) (course.Status, error) {
	snap, err := h.service.Snapshot(ctx, courseID)
	if err != nil {
		return course.StatusNotSelected, fmt.Errorf("choose course: fetch snapshot: %w", err)
	}

	rec, err := h.observe.Handle(ctx, snap)
	if err != nil {
		return course.StatusNotSelected, err
	}

	// Already holding the seat, or already committed to an earlier choose:
	// nothing to do. Booked and Waiting are left alone so a repeated choose
	// doesn't double-arm or reset the machinery.
	if rec.Status != course.StatusNotSelected {
		h.logger.Info("choose requested for a course already in flight",
			"course_id", courseID, "status", rec.Status.String())
		return rec.Status, nil
	}

	outcome, err := h.service.Choose(ctx, courseID)
	if err != nil {
		return rec.Status, fmt.Errorf("choose course: %w", err)
	}

	switch outcome {
	case ChooseOK, ChooseAlreadyChosen:
		return h.commit(ctx, rec, course.StatusSelected)

	case ChooseTooEarly:
		status, err := h.commit(ctx, rec, course.StatusBooked)
		if err != nil {
			return status, err
		}
		h.rush.Arm(courseID, rec.SelectStartDate)
		return status, nil

	case ChooseFull:
		if !rec.CanWait(h.now()) {
			return rec.Status, fmt.Errorf(
				"choose course: course %d is full and its window no longer allows waiting", courseID)
		}
		return h.commit(ctx, rec, course.StatusWaiting)

	default:
		return rec.Status, fmt.Errorf("choose course: course %d is not selectable", courseID)
	}
}

// commit moves the record to its post-choose status.
func (h *ChooseCourseHandler) commit(ctx context.Context, rec *course.Record, to course.Status) (course.Status, error) {
	from := rec.Status
	if err := h.repo.TransitionStatus(ctx, rec.ID, from, to); err != nil {
		return from, fmt.Errorf("choose course: %w", err)
	}
	rec.Status = to

	h.logger.Info("course status committed",
		"course_id", rec.ID, "from", from.String(), "to", to.String())

	if h.notifier != nil {
		if err := h.notifier.StatusChanged(ctx, rec, from, to); err != nil {
			h.logger.Warn("status notification failed", "course_id", rec.ID, "error", err)
		}
	}
	return to, nil
}
