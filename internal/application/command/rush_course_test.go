package command

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bykc-hub/bykc-assistant/internal/domain/course"
)

func newRushFixture() (*RushCourseHandler, *memRepo, *stubService, *spyNotifier) {
	repo := newMemRepo()
	service := newStubService()
	notifier := &spyNotifier{}
	h := NewRushCourseHandler(repo, service, notifier, nil)
	return h, repo, service, notifier
}

func TestRushCourse_ShouldRush(t *testing.T) {
	h, repo, _, _ := newRushFixture()
	seedRecord(repo, 1, course.StatusBooked)
	seedRecord(repo, 2, course.StatusSelected)

	assert.True(t, h.ShouldRush(context.Background(), 1))
	assert.False(t, h.ShouldRush(context.Background(), 2))
	assert.False(t, h.ShouldRush(context.Background(), 404), "missing record must not rush")
}

func TestRushCourse_AttemptSettlesSeat(t *testing.T) {
	h, repo, service, notifier := newRushFixture()
	seedRecord(repo, 1, course.StatusBooked)
	service.outcome = ChooseOK

	assert.True(t, h.Attempt(context.Background(), 1))
	assert.Equal(t, course.StatusSelected, repo.status(1))
	require.Len(t, notifier.changes, 1)
	assert.Equal(t, statusEvent{courseID: 1, from: course.StatusBooked, to: course.StatusSelected}, notifier.changes[0])
}

func TestRushCourse_FullCourseSettlesToWaiting(t *testing.T) {
	h, repo, service, _ := newRushFixture()
	seedRecord(repo, 1, course.StatusBooked)
	service.outcome = ChooseFull

	assert.True(t, h.Attempt(context.Background(), 1))
	assert.Equal(t, course.StatusWaiting, repo.status(1))
}

func TestRushCourse_TooEarlyKeepsBursting(t *testing.T) {
	h, repo, service, _ := newRushFixture()
	seedRecord(repo, 1, course.StatusBooked)
	service.outcome = ChooseTooEarly

	assert.False(t, h.Attempt(context.Background(), 1))
	assert.Equal(t, course.StatusBooked, repo.status(1))
}

func TestRushCourse_UnselectableAnswerKeepsBursting(t *testing.T) {
	h, repo, service, notifier := newRushFixture()
	seedRecord(repo, 1, course.StatusBooked)
	service.outcome = ChooseNotSelectable

	assert.False(t, h.Attempt(context.Background(), 1), "rejection churn must not settle the burst")
	assert.Equal(t, course.StatusBooked, repo.status(1))
	assert.Empty(t, notifier.changes)
}

func TestRushCourse_TransportErrorKeepsBursting(t *testing.T) {
	h, repo, service, _ := newRushFixture()
	seedRecord(repo, 1, course.StatusBooked)
	service.chooseErr = errors.New("mid-burst churn")

	assert.False(t, h.Attempt(context.Background(), 1))
	assert.Equal(t, course.StatusBooked, repo.status(1))
}

func TestRushCourse_LostRaceStillEndsBurst(t *testing.T) {
	h, repo, service, notifier := newRushFixture()
	// Someone else already settled the course.
	seedRecord(repo, 1, course.StatusSelected)
	service.outcome = ChooseOK

	assert.True(t, h.Attempt(context.Background(), 1))
	assert.Equal(t, course.StatusSelected, repo.status(1))
	assert.Empty(t, notifier.changes)
}

func TestRushCourse_ExpireMovesToWaiting(t *testing.T) {
	h, repo, _, notifier := newRushFixture()
	seedRecord(repo, 1, course.StatusBooked)

	h.Expire(context.Background(), 1)
	assert.Equal(t, course.StatusWaiting, repo.status(1))
	require.Len(t, notifier.changes, 1)
	assert.Equal(t, course.StatusWaiting, notifier.changes[0].to)
}
