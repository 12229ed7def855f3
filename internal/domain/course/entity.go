// Package course contains the course reservation domain model: the persisted
// course record, its status machine, and the remote snapshot it is refreshed
// from. This package has zero external dependencies.
package course

import (
	"errors"
	"fmt"
	"time"
)

// Status is the reservation status of a course record.
//
// NotSelected and Selected mirror the remote system. Booked and Waiting are
// local-only: the remote service has no notion of "intent to rush" or
// "monitoring for a vacancy", so these states exist purely in our store.
type Status int

const (
	// StatusNotSelected means the course is neither held nor wanted.
	StatusNotSelected Status = iota

	// StatusSelected means the remote system confirms a held seat.
	StatusSelected

	// StatusBooked means the user pre-registered intent to rush-select the
	// course the instant its selection window opens.
	StatusBooked

	// StatusWaiting means the course was full; the monitor keeps retrying
	// until a seat frees up or the deadline passes.
	StatusWaiting
)

// String returns a human-readable status name.
func (s Status) String() string {
	switch s {
	case StatusNotSelected:
		return "not_selected"
	case StatusSelected:
		return "selected"
	case StatusBooked:
		return "booked"
	case StatusWaiting:
		return "waiting"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Valid reports whether s is one of the defined statuses.
func (s Status) Valid() bool {
	return s >= StatusNotSelected && s <= StatusWaiting
}

// Domain errors for error checking with errors.Is().
var (
	// ErrRecordNotFound is returned when no record exists for a course id.
	ErrRecordNotFound = errors.New("course: record not found")

	// ErrStatusConflict is returned when a compare-and-set status transition
	// loses the race: the stored status no longer matches the expected one.
	ErrStatusConflict = errors.New("course: status changed concurrently")
)

// Snapshot is the remote system's current view of a course, as returned by
// the catalog and detail queries. Immutable once built.
type Snapshot struct {
	ID              int64
	Name            string
	Teacher         string
	Position        string
	Description     string
	StartDate       time.Time
	EndDate         time.Time
	SelectStartDate time.Time
	SelectEndDate   time.Time
	CancelEndDate   time.Time
	CurrentCount    int
	MaxCount        int
	Selected        bool
}

// Record is the persisted state of one course ever seen. One record per
// course id, created on first sighting, refreshed on every query. Status is
// the only field with transition rules; all writes to it go through the
// repository's compare-and-set.
type Record struct {
	ID              int64
	Name            string
	Teacher         string
	Position        string
	StartDate       time.Time
	EndDate         time.Time
	SelectStartDate time.Time
	SelectEndDate   time.Time
	CancelEndDate   time.Time
	CurrentCount    int
	MaxCount        int
	Status          Status
	Notified        bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewRecord builds a record from the first sighting of a course. The initial
// status follows the remote side: Selected if the snapshot says the seat is
// held, NotSelected otherwise. The notified flag starts false so the operator
// hears about the course exactly once.
func NewRecord(snap Snapshot, now time.Time) *Record {
	status := StatusNotSelected
	if snap.Selected {
		status = StatusSelected
	}
	r := &Record{
		ID:        snap.ID,
		Status:    status,
		Notified:  false,
		CreatedAt: now,
	}
	r.refresh(snap, now)
	return r
}

// ApplySnapshot merges a fresh remote snapshot into the record and reconciles
// status with the remote "selected" flag. It returns the status the record
// should transition to, or the current status when no transition is needed.
//
// Only two reconciliations exist: the remote side holding a seat forces
// Selected, and the remote side dropping a previously Selected seat forces
// NotSelected. Booked and Waiting are local intent and survive refreshes.
func (r *Record) ApplySnapshot(snap Snapshot, now time.Time) Status {
	r.refresh(snap, now)

	switch {
	case snap.Selected && r.Status != StatusSelected:
		return StatusSelected
	case !snap.Selected && r.Status == StatusSelected:
		return StatusNotSelected
	default:
		return r.Status
	}
}

// refresh overwrites the cached remote fields.
func (r *Record) refresh(snap Snapshot, now time.Time) {
	r.Name = snap.Name
	if snap.Teacher != "" {
		r.Teacher = snap.Teacher
	}
	r.Position = snap.Position
	r.StartDate = snap.StartDate
	r.EndDate = snap.EndDate
	r.SelectStartDate = snap.SelectStartDate
	r.SelectEndDate = snap.SelectEndDate
	r.CancelEndDate = snap.CancelEndDate
	r.CurrentCount = snap.CurrentCount
	r.MaxCount = snap.MaxCount
	r.UpdatedAt = now
}

// CanWait reports whether a full course is still worth monitoring: both the
// cancellation deadline and the selection window must be open, otherwise no
// vacancy can ever be claimed.
func (r *Record) CanWait(now time.Time) bool {
	return now.Before(r.CancelEndDate) && now.Before(r.SelectEndDate)
}

// SelectionClosed reports whether the selection window has ended.
func (r *Record) SelectionClosed(now time.Time) bool {
	return now.After(r.SelectEndDate)
}

// CancelDeadlinePassed reports whether the cancellation deadline has passed.
func (r *Record) CancelDeadlinePassed(now time.Time) bool {
	return now.After(r.CancelEndDate)
}
