package command

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bykc-hub/bykc-assistant/internal/domain/course"
)

func newChooseFixture() (*ChooseCourseHandler, *memRepo, *stubService, *spyNotifier, *spyArmer) {
	repo := newMemRepo()
	service := newStubService()
	notifier := &spyNotifier{}
	armer := newSpyArmer()
	observe := NewObserveSnapshotHandler(repo, notifier, armer, nil)
	h := NewChooseCourseHandler(repo, service, observe, armer, notifier, nil)
	return h, repo, service, notifier, armer
}

func TestChooseCourse_SeatClaimed(t *testing.T) {
	h, repo, service, notifier, _ := newChooseFixture()
	now := time.Now()
	service.snapshots[1] = testSnapshot(1, now)
	service.outcome = ChooseOK

	status, err := h.Handle(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, course.StatusSelected, status)
	assert.Equal(t, course.StatusSelected, repo.status(1))
	require.NotEmpty(t, notifier.changes)
	assert.Equal(t, course.StatusSelected, notifier.changes[len(notifier.changes)-1].to)
}

func TestChooseCourse_WindowNotOpenArmsRush(t *testing.T) {
	h, repo, service, _, armer := newChooseFixture()
	now := time.Now()
	snap := testSnapshot(1, now)
	service.snapshots[1] = snap
	service.outcome = ChooseTooEarly

	status, err := h.Handle(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, course.StatusBooked, status)
	assert.Equal(t, course.StatusBooked, repo.status(1))
	assert.Equal(t, snap.SelectStartDate.Unix(), armer.armed[1].Unix())
}

func TestChooseCourse_RepeatedChooseDoesNotDoubleArm(t *testing.T) {
	h, _, service, _, armer := newChooseFixture()
	now := time.Now()
	service.snapshots[1] = testSnapshot(1, now)
	service.outcome = ChooseTooEarly

	_, err := h.Handle(context.Background(), 1)
	require.NoError(t, err)
	callsAfterFirst := service.chooseCalls

	status, err := h.Handle(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, course.StatusBooked, status)
	assert.Equal(t, callsAfterFirst, service.chooseCalls, "a booked course must not be re-chosen")
	assert.Len(t, armer.armed, 1)
}

func TestChooseCourse_FullCourseStartsWaiting(t *testing.T) {
	h, repo, service, _, _ := newChooseFixture()
	now := time.Now()
	service.snapshots[1] = testSnapshot(1, now)
	service.outcome = ChooseFull

	status, err := h.Handle(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, course.StatusWaiting, status)
	assert.Equal(t, course.StatusWaiting, repo.status(1))
}

func TestChooseCourse_FullCourseWithClosedWindowFails(t *testing.T) {
	h, repo, service, _, _ := newChooseFixture()
	now := time.Now()
	snap := testSnapshot(1, now)
	snap.SelectEndDate = now.Add(-time.Hour)
	snap.CancelEndDate = now.Add(-time.Minute)
	service.snapshots[1] = snap
	service.outcome = ChooseFull

	_, err := h.Handle(context.Background(), 1)
	assert.Error(t, err)
	assert.Equal(t, course.StatusNotSelected, repo.status(1))
}

func TestChooseCourse_NotSelectableFails(t *testing.T) {
	h, repo, service, _, _ := newChooseFixture()
	now := time.Now()
	service.snapshots[1] = testSnapshot(1, now)
	service.outcome = ChooseNotSelectable

	_, err := h.Handle(context.Background(), 1)
	assert.Error(t, err)
	assert.Equal(t, course.StatusNotSelected, repo.status(1))
}

func TestChooseCourse_AlreadyHeldRemotelyIsIdempotent(t *testing.T) {
	h, _, service, _, _ := newChooseFixture()
	now := time.Now()
	snap := testSnapshot(1, now)
	snap.Selected = true
	service.snapshots[1] = snap

	status, err := h.Handle(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, course.StatusSelected, status)
	assert.Zero(t, service.chooseCalls, "a held seat needs no choose call")
}
