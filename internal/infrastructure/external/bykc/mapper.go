package bykc

import (
	"fmt"
	"time"

	"github.com/bykc-hub/bykc-assistant/internal/domain/course"
	"github.com/bykc-hub/bykc-assistant/pkg/timeutil"
)

// Mapper converts wire DTOs into domain snapshots.
type Mapper struct{}

// NewMapper creates a new Mapper.
func NewMapper() *Mapper {
	return &Mapper{}
}

// SnapshotFromCourse maps a catalog/detail course DTO to a domain snapshot.
// Timestamp fields are parsed as Beijing wall-clock time; a malformed
// timestamp fails the whole mapping since every transition rule depends on
// these fields.
func (m *Mapper) SnapshotFromCourse(dto CourseDTO) (course.Snapshot, error) {
	snap := course.Snapshot{
		ID:           dto.ID,
		Name:         dto.CourseName,
		Teacher:      dto.CourseTeacher,
		Position:     dto.CoursePosition,
		Description:  dto.CourseDesc,
		CurrentCount: dto.CourseCurrentCount,
		MaxCount:     dto.CourseMaxCount,
		Selected:     dto.Selected,
	}

	parse := func(name, value string, dst *time.Time) error {
		t, err := timeutil.ParseCourseTime(value)
		if err != nil {
			return fmt.Errorf("bykc: course %d: parse %s %q: %w", dto.ID, name, value, err)
		}
		*dst = t
		return nil
	}

	if err := parse("courseStartDate", dto.CourseStartDate, &snap.StartDate); err != nil {
		return course.Snapshot{}, err
	}
	if err := parse("courseEndDate", dto.CourseEndDate, &snap.EndDate); err != nil {
		return course.Snapshot{}, err
	}
	if err := parse("courseSelectStartDate", dto.CourseSelectStartDate, &snap.SelectStartDate); err != nil {
		return course.Snapshot{}, err
	}
	if err := parse("courseSelectEndDate", dto.CourseSelectEndDate, &snap.SelectEndDate); err != nil {
		return course.Snapshot{}, err
	}
	if err := parse("courseCancelEndDate", dto.CourseCancelEndDate, &snap.CancelEndDate); err != nil {
		return course.Snapshot{}, err
	}

	return snap, nil
}

// SnapshotsFromPage maps a catalog page.
func (m *Mapper) SnapshotsFromPage(page *CoursePageDTO) ([]course.Snapshot, error) {
	snaps := make([]course.Snapshot, 0, len(page.Content))
	for _, dto := range page.Content {
		snap, err := m.SnapshotFromCourse(dto)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

// SnapshotsFromChosen maps the chosen-courses response. The service omits the
// selected flag on this endpoint; every entry is held by definition.
func (m *Mapper) SnapshotsFromChosen(list *ChosenListDTO) ([]course.Snapshot, error) {
	snaps := make([]course.Snapshot, 0, len(list.CourseList))
	for _, entry := range list.CourseList {
		snap, err := m.SnapshotFromCourse(entry.CourseInfo)
		if err != nil {
			return nil, err
		}
		snap.Selected = true
		snaps = append(snaps, snap)
	}
	return snaps, nil
}
