package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/bykc-hub/bykc-assistant/internal/domain/course"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// COURSE REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// CourseRepository implements course.Repository for PostgreSQL.
type CourseRepository struct {
	conn *Connection
}

// NewCourseRepository creates a new CourseRepository.
func NewCourseRepository(conn *Connection) *CourseRepository {
	return &CourseRepository{conn: conn}
}

const courseColumns = `
	id, name, teacher, position,
	start_date, end_date, select_start_date, select_end_date, cancel_end_date,
	current_count, max_count, status, notified, created_at, updated_at
`

// Get returns the record for a course id.
func (r *CourseRepository) Get(ctx context.Context, id int64) (*course.Record, error) {
	query := `SELECT ` + courseColumns + ` FROM courses WHERE id = $1`

	row := r.conn.QueryRow(ctx, query, id)
	return r.scanRecord(row)
}

// Save upserts the record. Status participates in the upsert because creation
// is the one moment it is written outside the compare-and-set path.
func (r *CourseRepository) Save(ctx context.Context, rec *course.Record) error {
	query := `
		INSERT INTO courses (
			id, name, teacher, position,
			start_date, end_date, select_start_date, select_end_date, cancel_end_date,
			current_count, max_count, status, notified, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			teacher = EXCLUDED.teacher,
			position = EXCLUDED.position,
			start_date = EXCLUDED.start_date,
			end_date = EXCLUDED.end_date,
			select_start_date = EXCLUDED.select_start_date,
			select_end_date = EXCLUDED.select_end_date,
			cancel_end_date = EXCLUDED.cancel_end_date,
			current_count = EXCLUDED.current_count,
			max_count = EXCLUDED.max_count,
			notified = EXCLUDED.notified,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.conn.Exec(ctx, query,
		rec.ID,
		rec.Name,
		rec.Teacher,
		rec.Position,
		nullableTime(rec.StartDate),
		nullableTime(rec.EndDate),
		nullableTime(rec.SelectStartDate),
		nullableTime(rec.SelectEndDate),
		nullableTime(rec.CancelEndDate),
		rec.CurrentCount,
		rec.MaxCount,
		int(rec.Status),
		rec.Notified,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save course record: %w", err)
	}
	return nil
}

// ListByStatus returns all records currently in the given status.
func (r *CourseRepository) ListByStatus(ctx context.Context, status course.Status) ([]*course.Record, error) {
	query := `SELECT ` + courseColumns + ` FROM courses WHERE status = $1 ORDER BY select_start_date`

	rows, err := r.conn.Query(ctx, query, int(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list courses by status: %w", err)
	}
	defer rows.Close()

	var records []*course.Record
	for rows.Next() {
		rec, err := r.scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// TransitionStatus atomically moves a record between statuses. The WHERE
// clause on the expected status makes this a compare-and-set: a concurrent
// writer that got there first leaves zero rows to update, and the loser
// learns it lost instead of silently overwriting.
func (r *CourseRepository) TransitionStatus(ctx context.Context, id int64, from, to course.Status) error {
	query := `UPDATE courses SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`

	tag, err := r.conn.Exec(ctx, query, int(to), time.Now().UTC(), id, int(from))
	if err != nil {
		return fmt.Errorf("failed to transition course status: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// Zero rows: either the record is gone or the status moved underneath us.
	var current int
	err = r.conn.QueryRow(ctx, `SELECT status FROM courses WHERE id = $1`, id).Scan(&current)
	if IsNoRows(err) {
		return course.ErrRecordNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read course status: %w", err)
	}
	return fmt.Errorf("%w: course %d is %s, expected %s",
		course.ErrStatusConflict, id, course.Status(current), from)
}

// SetNotified updates the notified flag.
func (r *CourseRepository) SetNotified(ctx context.Context, id int64, notified bool) error {
	query := `UPDATE courses SET notified = $1, updated_at = $2 WHERE id = $3`

	tag, err := r.conn.Exec(ctx, query, notified, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to set notified flag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return course.ErrRecordNotFound
	}
	return nil
}

// scanRecord scans one row into a record.
func (r *CourseRepository) scanRecord(row pgx.Row) (*course.Record, error) {
	var (
		rec    course.Record
		status int
		start, end, selStart, selEnd, cancelEnd *time.Time
	)

	err := row.Scan(
		&rec.ID,
		&rec.Name,
		&rec.Teacher,
		&rec.Position,
		&start,
		&end,
		&selStart,
		&selEnd,
		&cancelEnd,
		&rec.CurrentCount,
		&rec.MaxCount,
		&status,
		&rec.Notified,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if IsNoRows(err) {
		return nil, course.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan course record: %w", err)
	}

	rec.Status = course.Status(status)
	rec.StartDate = derefTime(start)
	rec.EndDate = derefTime(end)
	rec.SelectStartDate = derefTime(selStart)
	rec.SelectEndDate = derefTime(selEnd)
	rec.CancelEndDate = derefTime(cancelEnd)
	return &rec, nil
}

// nullableTime maps the zero time to NULL so half-filled snapshots don't
// persist a bogus year-one timestamp.
func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
