package command

import (
	"context"
	"errors"
	"log/slog"

	"github.com/bykc-hub/bykc-assistant/internal/domain/course"
)

// ══════════════════════════════════════════════════════════════════════════════
// RUSH COURSE COMMAND
// The burst-side state machine: the rush scheduler fires the attempts, this
// handler decides what each answer means and commits the final status. The
// repository's compare-and-set is what keeps concurrent late attempts and the
// waiting monitor from double-committing.
// ══════════════════════════════════════════════════════════════════════════════

// RushCourseHandler settles rush attempts. It satisfies the rush scheduler's
// executor port.
type RushCourseHandler struct {
	repo     course.Repository
	service  EnrollmentService
	notifier Notifier
	logger   *slog.Logger
}

// NewRushCourseHandler creates the handler.
func NewRushCourseHandler(
	repo course.Repository,
	service EnrollmentService,
	notifier Notifier,
	logger *slog.Logger,
) *RushCourseHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RushCourseHandler{
		repo:     repo,
		service:  service,
		notifier: notifier,
		logger:   logger,
	}
}

// ShouldRush reports whether the record still carries the booked intent.
func (h *RushCourseHandler) ShouldRush(ctx context.Context, courseID int64) bool {
	rec, err := h.repo.Get(ctx, courseID)
	if err != nil {
		h.logger.Warn("rush precheck failed", "course_id", courseID, "error", err)
		return false
	}
	return rec.Status == course.StatusBooked
}

// Attempt performs one enrollment attempt. It returns true only when the
// outcome is durable: the seat was claimed or the course is full. Everything
// else, transport errors and unselectable answers included, returns false so
// the burst keeps firing: mid-window the service flaps between rejections
// before the first attempt lands, and the window deadline is what ends a
// burst that never settles.
func (h *RushCourseHandler) Attempt(ctx context.Context, courseID int64) bool {
	outcome, err := h.service.Choose(ctx, courseID)
	if err != nil {
		// Swallowed on purpose: mid-burst the service answers with all kinds
		// of churn, and the next attempt is already scheduled.
		h.logger.Debug("rush attempt failed", "course_id", courseID, "error", err)
		return false
	}

	switch outcome {
	case ChooseOK, ChooseAlreadyChosen:
		return h.settle(ctx, courseID, course.StatusSelected)

	case ChooseFull:
		return h.settle(ctx, courseID, course.StatusWaiting)

	case ChooseTooEarly:
		// Fired slightly before the window opened. Expected for the first
		// few attempts of every burst.
		return false

	default:
		return false
	}
}

// Expire records a burst that ran out of window: the course stays wanted, so
// it moves to Waiting and the monitor keeps an eye on it.
func (h *RushCourseHandler) Expire(ctx context.Context, courseID int64) {
	h.settle(ctx, courseID, course.StatusWaiting)
}

// settle commits Booked→to. A lost compare-and-set means another attempt (or
// the monitor) settled first; that still ends the burst.
func (h *RushCourseHandler) settle(ctx context.Context, courseID int64, to course.Status) bool {
	err := h.repo.TransitionStatus(ctx, courseID, course.StatusBooked, to)
	if errors.Is(err, course.ErrStatusConflict) {
		h.logger.Info("rush settlement lost the race", "course_id", courseID, "to", to.String())
		return true
	}
	if err != nil {
		h.logger.Warn("rush settlement failed", "course_id", courseID, "error", err)
		return false
	}

	h.logger.Info("rush settled", "course_id", courseID, "status", to.String())

	if h.notifier != nil {
		rec, err := h.repo.Get(ctx, courseID)
		if err == nil {
			if err := h.notifier.StatusChanged(ctx, rec, course.StatusBooked, to); err != nil {
				h.logger.Warn("status notification failed", "course_id", courseID, "error", err)
			}
		}
	}
	return true
}
