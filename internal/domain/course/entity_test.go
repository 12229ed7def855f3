package course

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func sampleSnapshot(now time.Time) Snapshot {
	return Snapshot{
		ID:              101,
		Name:            "航空航天概论",
		Teacher:         "王老师",
		Position:        "主楼404",
		StartDate:       now.Add(72 * time.Hour),
		EndDate:         now.Add(74 * time.Hour),
		SelectStartDate: now.Add(24 * time.Hour),
		SelectEndDate:   now.Add(48 * time.Hour),
		CancelEndDate:   now.Add(60 * time.Hour),
		CurrentCount:    10,
		MaxCount:        200,
	}
}

func TestNewRecord_FollowsRemoteSelection(t *testing.T) {
	now := time.Now()

	snap := sampleSnapshot(now)
	rec := NewRecord(snap, now)
	assert.Equal(t, StatusNotSelected, rec.Status)
	assert.False(t, rec.Notified)
	assert.Equal(t, snap.Name, rec.Name)

	snap.Selected = true
	held := NewRecord(snap, now)
	assert.Equal(t, StatusSelected, held.Status)
}

func TestApplySnapshot_Reconciliation(t *testing.T) {
	now := time.Now()

	cases := []struct {
		name     string
		status   Status
		selected bool
		want     Status
	}{
		{"remote hold forces selected", StatusNotSelected, true, StatusSelected},
		{"remote hold overrides booked", StatusBooked, true, StatusSelected},
		{"remote hold overrides waiting", StatusWaiting, true, StatusSelected},
		{"remote drop clears selected", StatusSelected, false, StatusNotSelected},
		{"booked intent survives refresh", StatusBooked, false, StatusBooked},
		{"waiting intent survives refresh", StatusWaiting, false, StatusWaiting},
		{"not selected stays put", StatusNotSelected, false, StatusNotSelected},
		{"selected stays selected while held", StatusSelected, true, StatusSelected},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			snap := sampleSnapshot(now)
			rec := NewRecord(snap, now)
			rec.Status = tc.status

			snap.Selected = tc.selected
			assert.Equal(t, tc.want, rec.ApplySnapshot(snap, now))
		})
	}
}

func TestApplySnapshot_RefreshesCachedFields(t *testing.T) {
	now := time.Now()
	rec := NewRecord(sampleSnapshot(now), now)

	later := now.Add(time.Hour)
	snap := sampleSnapshot(now)
	snap.CurrentCount = 200
	snap.Position = "新主楼B201"
	snap.Teacher = ""

	rec.ApplySnapshot(snap, later)
	assert.Equal(t, 200, rec.CurrentCount)
	assert.Equal(t, "新主楼B201", rec.Position)
	assert.Equal(t, later, rec.UpdatedAt)
	// Detail queries omit the teacher; a blank must not wipe the cached one.
	assert.Equal(t, "王老师", rec.Teacher)
}

func TestRecord_Deadlines(t *testing.T) {
	now := time.Now()
	rec := NewRecord(sampleSnapshot(now), now)

	assert.True(t, rec.CanWait(now))
	assert.False(t, rec.CanWait(now.Add(49*time.Hour)), "selection window closed")
	assert.False(t, rec.CanWait(now.Add(61*time.Hour)), "cancel deadline passed")

	assert.False(t, rec.SelectionClosed(now))
	assert.True(t, rec.SelectionClosed(now.Add(49*time.Hour)))
	assert.True(t, rec.CancelDeadlinePassed(now.Add(61*time.Hour)))
}

func TestStatus_Validity(t *testing.T) {
	for _, s := range []Status{StatusNotSelected, StatusSelected, StatusBooked, StatusWaiting} {
		assert.True(t, s.Valid(), s.String())
	}
	assert.False(t, Status(4).Valid())
	assert.False(t, Status(-1).Valid())
}
