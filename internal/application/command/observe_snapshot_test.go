package command

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bykc-hub/bykc-assistant/internal/domain/course"
)

func TestObserveSnapshot_FirstSighting(t *testing.T) {
	repo := newMemRepo()
	notifier := &spyNotifier{}
	h := NewObserveSnapshotHandler(repo, notifier, newSpyArmer(), nil)

	now := time.Now()
	rec, err := h.Handle(context.Background(), testSnapshot(1, now))
	require.NoError(t, err)

	assert.Equal(t, course.StatusNotSelected, rec.Status)
	assert.True(t, rec.Notified)
	assert.Equal(t, []int64{1}, notifier.newCourses)

	stored, err := repo.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, stored.Notified)
}

func TestObserveSnapshot_FailedAnnouncementIsRetried(t *testing.T) {
	repo := newMemRepo()
	notifier := &spyNotifier{err: errors.New("telegram down")}
	h := NewObserveSnapshotHandler(repo, notifier, newSpyArmer(), nil)

	now := time.Now()
	rec, err := h.Handle(context.Background(), testSnapshot(1, now))
	require.NoError(t, err)
	assert.False(t, rec.Notified, "a failed delivery must not burn the once-only flag")

	notifier.err = nil
	rec, err = h.Handle(context.Background(), testSnapshot(1, now))
	require.NoError(t, err)
	assert.True(t, rec.Notified)
	assert.Equal(t, []int64{1}, notifier.newCourses)
}

func TestObserveSnapshot_RemoteHoldForcesSelected(t *testing.T) {
	repo := newMemRepo()
	notifier := &spyNotifier{}
	h := NewObserveSnapshotHandler(repo, notifier, newSpyArmer(), nil)

	now := time.Now()
	_, err := h.Handle(context.Background(), testSnapshot(1, now))
	require.NoError(t, err)

	snap := testSnapshot(1, now)
	snap.Selected = true
	rec, err := h.Handle(context.Background(), snap)
	require.NoError(t, err)

	assert.Equal(t, course.StatusSelected, rec.Status)
	assert.Equal(t, course.StatusSelected, repo.status(1))
	require.Len(t, notifier.changes, 1)
	assert.Equal(t, statusEvent{courseID: 1, from: course.StatusNotSelected, to: course.StatusSelected}, notifier.changes[0])
}

func TestObserveSnapshot_RemoteHoldCancelsPendingRush(t *testing.T) {
	repo := newMemRepo()
	armer := newSpyArmer()
	h := NewObserveSnapshotHandler(repo, &spyNotifier{}, armer, nil)

	now := time.Now()
	rec := course.NewRecord(testSnapshot(1, now), now)
	rec.Status = course.StatusBooked
	rec.Notified = true
	repo.put(rec)

	// The operator won the seat through the web ui; the pending rush burst
	// must be torn down.
	snap := testSnapshot(1, now)
	snap.Selected = true
	got, err := h.Handle(context.Background(), snap)
	require.NoError(t, err)

	assert.Equal(t, course.StatusSelected, got.Status)
	assert.Equal(t, []int64{1}, armer.cancelled)
}

func TestObserveSnapshot_RemoteDropClearsSelected(t *testing.T) {
	repo := newMemRepo()
	h := NewObserveSnapshotHandler(repo, &spyNotifier{}, newSpyArmer(), nil)

	now := time.Now()
	rec := course.NewRecord(testSnapshot(1, now), now)
	rec.Status = course.StatusSelected
	rec.Notified = true
	repo.put(rec)

	got, err := h.Handle(context.Background(), testSnapshot(1, now))
	require.NoError(t, err)
	assert.Equal(t, course.StatusNotSelected, got.Status)
}

func TestObserveSnapshot_LocalIntentSurvivesRefresh(t *testing.T) {
	repo := newMemRepo()
	h := NewObserveSnapshotHandler(repo, &spyNotifier{}, newSpyArmer(), nil)

	now := time.Now()
	for _, status := range []course.Status{course.StatusBooked, course.StatusWaiting} {
		rec := course.NewRecord(testSnapshot(int64(status), now), now)
		rec.Status = status
		rec.Notified = true
		repo.put(rec)

		got, err := h.Handle(context.Background(), testSnapshot(int64(status), now))
		require.NoError(t, err)
		assert.Equal(t, status, got.Status)
	}
}

// conflictRepo loses every compare-and-set.
type conflictRepo struct {
	*memRepo
}

func (c *conflictRepo) TransitionStatus(ctx context.Context, id int64, from, to course.Status) error {
	return course.ErrStatusConflict
}

func TestObserveSnapshot_LostRaceIsNotAnError(t *testing.T) {
	repo := &conflictRepo{newMemRepo()}
	h := NewObserveSnapshotHandler(repo, &spyNotifier{}, newSpyArmer(), nil)

	now := time.Now()
	rec := course.NewRecord(testSnapshot(1, now), now)
	rec.Notified = true
	repo.put(rec)

	snap := testSnapshot(1, now)
	snap.Selected = true
	_, err := h.Handle(context.Background(), snap)
	assert.NoError(t, err)
}
