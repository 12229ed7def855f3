package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bykc-hub/bykc-assistant/internal/application/command"
	"github.com/bykc-hub/bykc-assistant/internal/domain/course"
)

// jobRepo is a map-backed Repository with real compare-and-set semantics.
type jobRepo struct {
	mu      sync.Mutex
	records map[int64]*course.Record
}

func newJobRepo() *jobRepo {
	return &jobRepo{records: make(map[int64]*course.Record)}
}

func (r *jobRepo) Get(ctx context.Context, id int64) (*course.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, course.ErrRecordNotFound
	}
	clone := *rec
	return &clone, nil
}

func (r *jobRepo) Save(ctx context.Context, rec *course.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *rec
	if existing, ok := r.records[rec.ID]; ok {
		clone.Status = existing.Status
		clone.Notified = existing.Notified
	}
	r.records[rec.ID] = &clone
	return nil
}

func (r *jobRepo) ListByStatus(ctx context.Context, status course.Status) ([]*course.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*course.Record
	for _, rec := range r.records {
		if rec.Status == status {
			clone := *rec
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (r *jobRepo) TransitionStatus(ctx context.Context, id int64, from, to course.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return course.ErrRecordNotFound
	}
	if rec.Status != from {
		return course.ErrStatusConflict
	}
	rec.Status = to
	return nil
}

func (r *jobRepo) SetNotified(ctx context.Context, id int64, notified bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[id]; ok {
		rec.Notified = notified
	}
	return nil
}

func (r *jobRepo) status(id int64) course.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.records[id].Status
}

// jobService scripts the sync endpoints; choose and drop are never used by
// the refresh pass.
type jobService struct {
	catalog   []course.Snapshot
	chosen    []course.Snapshot
	chosenErr error
}

func (s *jobService) Snapshot(ctx context.Context, courseID int64) (course.Snapshot, error) {
	return course.Snapshot{ID: courseID}, nil
}

func (s *jobService) Catalog(ctx context.Context) ([]course.Snapshot, error) {
	return s.catalog, nil
}

func (s *jobService) Chosen(ctx context.Context) ([]course.Snapshot, error) {
	return s.chosen, s.chosenErr
}

func (s *jobService) Choose(ctx context.Context, courseID int64) (command.ChooseOutcome, error) {
	return command.ChooseOK, nil
}

func (s *jobService) Drop(ctx context.Context, courseID int64) error { return nil }

func jobSnapshot(id int64, selected bool) course.Snapshot {
	now := time.Now()
	return course.Snapshot{
		ID:              id,
		Name:            "博雅课程",
		SelectStartDate: now.Add(time.Hour),
		SelectEndDate:   now.Add(48 * time.Hour),
		CancelEndDate:   now.Add(72 * time.Hour),
		StartDate:       now.Add(96 * time.Hour),
		EndDate:         now.Add(98 * time.Hour),
		MaxCount:        120,
		Selected:        selected,
	}
}

func newRefreshFixture(svc *jobService) (*RefreshCoursesJob, *jobRepo) {
	repo := newJobRepo()
	observe := command.NewObserveSnapshotHandler(repo, nil, nil, nil)
	return NewRefreshCoursesJob(svc, observe, nil), repo
}

func TestRefreshCourses_MergesCatalogIntoRecords(t *testing.T) {
	svc := &jobService{catalog: []course.Snapshot{jobSnapshot(1, false), jobSnapshot(2, false)}}
	job, repo := newRefreshFixture(svc)

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, course.StatusNotSelected, repo.status(1))
	assert.Equal(t, course.StatusNotSelected, repo.status(2))
}

func TestRefreshCourses_ChosenListForcesSelected(t *testing.T) {
	svc := &jobService{
		catalog: []course.Snapshot{jobSnapshot(1, false)},
		chosen:  []course.Snapshot{jobSnapshot(2, true)},
	}
	job, repo := newRefreshFixture(svc)
	// Course 2 was claimed outside the assistant; locally it is still untracked.

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, course.StatusSelected, repo.status(2),
		"an externally claimed seat must reconcile to selected")
	assert.Equal(t, course.StatusNotSelected, repo.status(1))
}

func TestRefreshCourses_ChosenListReconcilesKnownRecord(t *testing.T) {
	svc := &jobService{chosen: []course.Snapshot{jobSnapshot(7, true)}}
	job, repo := newRefreshFixture(svc)

	rec := course.NewRecord(jobSnapshot(7, false), time.Now())
	require.NoError(t, repo.Save(context.Background(), rec))
	require.Equal(t, course.StatusNotSelected, repo.status(7))

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, course.StatusSelected, repo.status(7))
}

func TestRefreshCourses_ChosenListFailureAbortsPass(t *testing.T) {
	svc := &jobService{
		catalog:   []course.Snapshot{jobSnapshot(1, false)},
		chosenErr: errors.New("session expired"),
	}
	job, _ := newRefreshFixture(svc)

	assert.Error(t, job.Run(context.Background()))
}
