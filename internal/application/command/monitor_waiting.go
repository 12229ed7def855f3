package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bykc-hub/bykc-assistant/internal/domain/course"
)

// ══════════════════════════════════════════════════════════════════════════════
// MONITOR WAITING COMMAND
// Background pass over every Waiting record: try to claim a freed seat, and
// give up on courses whose windows have closed.
// ══════════════════════════════════════════════════════════════════════════════

// MonitorWaitingHandler re-attempts full courses.
type MonitorWaitingHandler struct {
	repo     course.Repository
	service  EnrollmentService
	notifier Notifier
	logger   *slog.Logger
	now      nowFunc
}

// NewMonitorWaitingHandler creates the handler.
func NewMonitorWaitingHandler(
	repo course.Repository,
	service EnrollmentService,
	notifier Notifier,
	logger *slog.Logger,
) *MonitorWaitingHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &MonitorWaitingHandler{
		repo:     repo,
		service:  service,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// Handle runs one monitoring pass. Per-course failures are logged and do not
// stop the pass; only listing failures abort it.
func (h *MonitorWaitingHandler) Handle(ctx context.Context) error {
	records, err := h.repo.ListByStatus(ctx, course.StatusWaiting)
	if err != nil {
		return fmt.Errorf("monitor waiting: %w", err)
	}

	for _, rec := range records {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		h.checkOne(ctx, rec)
	}
	return nil
}

// checkOne handles a single waiting record.
func (h *MonitorWaitingHandler) checkOne(ctx context.Context, rec *course.Record) {
	now := h.now()

	if !rec.CanWait(now) {
		// No seat can be claimed anymore: either selection closed or nobody
		// is allowed to cancel. Stop burning attempts on it.
		h.commit(ctx, rec, course.StatusNotSelected)
		h.logger.Info("waiting abandoned, window closed", "course_id", rec.ID)
		return
	}

	outcome, err := h.service.Choose(ctx, rec.ID)
	if err != nil {
		h.logger.Warn("waiting attempt failed", "course_id", rec.ID, "error", err)
		return
	}

	switch outcome {
	case ChooseOK, ChooseAlreadyChosen:
		h.commit(ctx, rec, course.StatusSelected)
		h.logger.Info("vacancy claimed", "course_id", rec.ID)

	case ChooseFull:
		// Still full, keep waiting.

	case ChooseNotSelectable:
		// The service flaps between rejections while the window is open, so
		// an unselectable answer alone never drops the record. The window
		// check above abandons it once no seat can be claimed anymore.
		h.logger.Debug("course not selectable this pass", "course_id", rec.ID)

	default:
		h.logger.Warn("unexpected outcome while waiting",
			"course_id", rec.ID, "outcome", int(outcome))
	}
}

// commit moves the record out of Waiting, tolerating lost races.
func (h *MonitorWaitingHandler) commit(ctx context.Context, rec *course.Record, to course.Status) {
	err := h.repo.TransitionStatus(ctx, rec.ID, course.StatusWaiting, to)
	if errors.Is(err, course.ErrStatusConflict) {
		h.logger.Info("monitor lost a status race", "course_id", rec.ID, "to", to.String())
		return
	}
	if err != nil {
		h.logger.Warn("monitor transition failed", "course_id", rec.ID, "error", err)
		return
	}

	from := rec.Status
	rec.Status = to
	if h.notifier != nil {
		if err := h.notifier.StatusChanged(ctx, rec, from, to); err != nil {
			h.logger.Warn("status notification failed", "course_id", rec.ID, "error", err)
		}
	}
}
