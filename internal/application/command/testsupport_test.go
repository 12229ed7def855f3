package command

import (
	"context"
	"sync"
	"time"

	"github.com/bykc-hub/bykc-assistant/internal/domain/course"
)

// ─────────────────────────────────────────────────────────────────────────────
// In-memory fakes for the handler ports. The repo mirrors the real
// compare-and-set semantics so transition races behave like production.
// ─────────────────────────────────────────────────────────────────────────────

type memRepo struct {
	mu      sync.Mutex
	records map[int64]*course.Record
}

func newMemRepo() *memRepo {
	return &memRepo{records: make(map[int64]*course.Record)}
}

func (m *memRepo) Get(ctx context.Context, id int64) (*course.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, course.ErrRecordNotFound
	}
	clone := *rec
	return &clone, nil
}

func (m *memRepo) Save(ctx context.Context, r *course.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.records[r.ID]; ok {
		// Like the real store, a save never touches the status column.
		clone := *r
		clone.Status = existing.Status
		m.records[r.ID] = &clone
		return nil
	}
	clone := *r
	m.records[r.ID] = &clone
	return nil
}

func (m *memRepo) ListByStatus(ctx context.Context, status course.Status) ([]*course.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*course.Record
	for _, rec := range m.records {
		if rec.Status == status {
			clone := *rec
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (m *memRepo) TransitionStatus(ctx context.Context, id int64, from, to course.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return course.ErrRecordNotFound
	}
	if rec.Status != from {
		return course.ErrStatusConflict
	}
	rec.Status = to
	return nil
}

func (m *memRepo) SetNotified(ctx context.Context, id int64, notified bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return course.ErrRecordNotFound
	}
	rec.Notified = notified
	return nil
}

// status reads the stored status directly.
func (m *memRepo) status(id int64) course.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[id].Status
}

// put seeds a record.
func (m *memRepo) put(rec *course.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *rec
	m.records[rec.ID] = &clone
}

// stubService scripts the enrollment service's answers.
type stubService struct {
	mu          sync.Mutex
	snapshots   map[int64]course.Snapshot
	snapshotErr error
	outcome     ChooseOutcome
	chooseErr   error
	dropErr     error

	chooseCalls int
	dropCalls   int
}

func newStubService() *stubService {
	return &stubService{snapshots: make(map[int64]course.Snapshot)}
}

func (s *stubService) Snapshot(ctx context.Context, courseID int64) (course.Snapshot, error) {
	if s.snapshotErr != nil {
		return course.Snapshot{}, s.snapshotErr
	}
	return s.snapshots[courseID], nil
}

func (s *stubService) Catalog(ctx context.Context) ([]course.Snapshot, error) {
	var out []course.Snapshot
	for _, snap := range s.snapshots {
		out = append(out, snap)
	}
	return out, nil
}

func (s *stubService) Chosen(ctx context.Context) ([]course.Snapshot, error) {
	var out []course.Snapshot
	for _, snap := range s.snapshots {
		if snap.Selected {
			out = append(out, snap)
		}
	}
	return out, nil
}

func (s *stubService) Choose(ctx context.Context, courseID int64) (ChooseOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chooseCalls++
	if s.chooseErr != nil {
		return ChooseOK, s.chooseErr
	}
	return s.outcome, nil
}

func (s *stubService) Drop(ctx context.Context, courseID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropCalls++
	return s.dropErr
}

// statusEvent is one recorded StatusChanged notification.
type statusEvent struct {
	courseID int64
	from, to course.Status
}

// spyNotifier records notifications; err makes every delivery fail.
type spyNotifier struct {
	mu         sync.Mutex
	err        error
	newCourses []int64
	changes    []statusEvent
}

func (n *spyNotifier) NewCourse(ctx context.Context, rec *course.Record) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.newCourses = append(n.newCourses, rec.ID)
	return nil
}

func (n *spyNotifier) StatusChanged(ctx context.Context, rec *course.Record, from, to course.Status) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.changes = append(n.changes, statusEvent{courseID: rec.ID, from: from, to: to})
	return nil
}

// spyArmer records rush arm/cancel calls.
type spyArmer struct {
	mu        sync.Mutex
	armed     map[int64]time.Time
	cancelled []int64
}

func newSpyArmer() *spyArmer {
	return &spyArmer{armed: make(map[int64]time.Time)}
}

func (a *spyArmer) Arm(courseID int64, selectStart time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.armed[courseID] = selectStart
}

func (a *spyArmer) Cancel(courseID int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cancelled = append(a.cancelled, courseID)
}

// testSnapshot builds a snapshot whose windows are open relative to now.
func testSnapshot(id int64, now time.Time) course.Snapshot {
	return course.Snapshot{
		ID:              id,
		Name:            "博雅课程",
		Teacher:         "李老师",
		Position:        "沙河校区",
		StartDate:       now.Add(96 * time.Hour),
		EndDate:         now.Add(98 * time.Hour),
		SelectStartDate: now.Add(time.Hour),
		SelectEndDate:   now.Add(48 * time.Hour),
		CancelEndDate:   now.Add(72 * time.Hour),
		CurrentCount:    5,
		MaxCount:        120,
	}
}
