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
// OBSERVE SNAPSHOT COMMAND
// Merges one remote course snapshot into the local record table. This is the
// write path of every sync: the catalog refresh, the chosen-course refresh
// and the pre-choose fetch all funnel through here.
// ══════════════════════════════════════════════════════════════════════════════

// ObserveSnapshotHandler records remote snapshots.
type ObserveSnapshotHandler struct {
	repo     course.Repository
	notifier Notifier
	rush     RushArmer
	logger   *slog.Logger
	now      nowFunc
}

// NewObserveSnapshotHandler creates the handler.
func NewObserveSnapshotHandler(repo course.Repository, notifier Notifier, rush RushArmer, logger *slog.Logger) *ObserveSnapshotHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ObserveSnapshotHandler{
		repo:     repo,
		notifier: notifier,
		rush:     rush,
		logger:   logger,
		now:      time.Now,
	}
}

// Handle merges the snapshot and returns the resulting record.
//
// A course seen for the first time gets a fresh record and a one-time
// operator notification. A known course gets its cached fields refreshed and,
// when the remote "selected" flag disagrees with the local status, a
// compare-and-set reconciliation.
func (h *ObserveSnapshotHandler) Handle(ctx context.Context, snap course.Snapshot) (*course.Record, error) {
	now := h.now()

	rec, err := h.repo.Get(ctx, snap.ID)
	if errors.Is(err, course.ErrRecordNotFound) {
		return h.firstSighting(ctx, snap, now)
	}
	if err != nil {
		return nil, fmt.Errorf("observe snapshot: %w", err)
	}

	from := rec.Status
	target := rec.ApplySnapshot(snap, now)
	if err := h.repo.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("observe snapshot: %w", err)
	}

	if target != from {
		if err := h.transition(ctx, rec, from, target); err != nil {
			return nil, err
		}
	}

	if !rec.Notified {
		h.notifyNewCourse(ctx, rec)
	}
	return rec, nil
}

// firstSighting creates the record and announces the course.
func (h *ObserveSnapshotHandler) firstSighting(ctx context.Context, snap course.Snapshot, now time.Time) (*course.Record, error) {
	rec := course.NewRecord(snap, now)
	if err := h.repo.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("observe snapshot: create record: %w", err)
	}

	h.logger.Info("new course discovered",
		"course_id", rec.ID,
		"name", rec.Name,
		"select_start", rec.SelectStartDate,
	)

	h.notifyNewCourse(ctx, rec)
	return rec, nil
}

// transition commits a remote-forced status change. Losing the compare-and-set
// is not an error: a concurrent writer (rush, monitor, user command) got
// there first and the next refresh reconciles again.
func (h *ObserveSnapshotHandler) transition(ctx context.Context, rec *course.Record, from, to course.Status) error {
	err := h.repo.TransitionStatus(ctx, rec.ID, from, to)
	if errors.Is(err, course.ErrStatusConflict) {
		h.logger.Info("snapshot reconciliation lost a status race",
			"course_id", rec.ID, "from", from, "to", to)
		return nil
	}
	if err != nil {
		return fmt.Errorf("observe snapshot: %w", err)
	}

	rec.Status = to

	// A seat confirmed or dropped remotely makes a pending rush pointless.
	if from == course.StatusBooked && h.rush != nil {
		h.rush.Cancel(rec.ID)
	}

	if h.notifier != nil {
		if err := h.notifier.StatusChanged(ctx, rec, from, to); err != nil {
			h.logger.Warn("status notification failed", "course_id", rec.ID, "error", err)
		}
	}
	return nil
}

// notifyNewCourse sends the once-per-course announcement and marks the record
// notified only after a successful delivery, so a failed send is retried on
// the next refresh.
func (h *ObserveSnapshotHandler) notifyNewCourse(ctx context.Context, rec *course.Record) {
	if h.notifier == nil {
		return
	}
	if err := h.notifier.NewCourse(ctx, rec); err != nil {
		h.logger.Warn("new-course notification failed", "course_id", rec.ID, "error", err)
		return
	}
	if err := h.repo.SetNotified(ctx, rec.ID, true); err != nil {
		h.logger.Warn("failed to persist notified flag", "course_id", rec.ID, "error", err)
		return
	}
	rec.Notified = true
}
