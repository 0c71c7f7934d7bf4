package service

import (
	"context"
	"errors"
	"math/rand"
	"slices"
	"testing"
	"time"

	"github.com/hvac_dispatch/backend/internal/models"
)

func TestCheckConflictsHalfOpen(t *testing.T) {
	svc, _, _ := newTestService(t,
		[]models.Technician{tech("T1", nil, "Warszawa")},
		[]models.ServiceJob{assigned("job-10", "T1", at(0, 10, 0), 120)})
	ctx := context.Background()

	ids, err := svc.CheckConflicts(ctx, "T1", at(0, 11, 0), 60, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !slices.Equal(ids, []string{"job-10"}) {
		t.Fatalf("expected job-10 to conflict, got %v", ids)
	}

	ids, err = svc.CheckConflicts(ctx, "T1", at(0, 12, 0), 60, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("touching intervals must not conflict, got %v", ids)
	}

	ids, _ = svc.CheckConflicts(ctx, "T1", at(0, 9, 0), 60, "")
	if len(ids) != 0 {
		t.Fatalf("interval ending at 10:00 must not conflict, got %v", ids)
	}

	ids, _ = svc.CheckConflicts(ctx, "T1", at(0, 11, 0), 60, "job-10")
	if len(ids) != 0 {
		t.Fatalf("excluded job must be ignored, got %v", ids)
	}
}

func TestCheckConflictsValidation(t *testing.T) {
	svc, _, _ := newTestService(t, nil, nil)
	var verr *ValidationError
	if _, err := svc.CheckConflicts(context.Background(), "T1", at(0, 9, 0), 0, ""); !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := svc.CheckConflicts(context.Background(), "T9", at(0, 9, 0), 60, ""); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for an unknown technician, got %v", err)
	}
}

func TestFindConflictsSkipsCancelled(t *testing.T) {
	cancelled := assigned("c", "T1", at(0, 10, 0), 60)
	cancelled.Status = models.JobCancelled
	completed := assigned("d", "T1", at(0, 10, 30), 60)
	completed.Status = models.JobCompleted
	ids := FindConflicts([]models.ServiceJob{completed, cancelled, assigned("b", "T1", at(0, 9, 30), 60)}, at(0, 10, 0), at(0, 11, 0), "")
	if !slices.Equal(ids, []string{"b", "d"}) {
		t.Fatalf("expected sorted [b d], got %v", ids)
	}
}

func TestGetAvailableSlots(t *testing.T) {
	svc, _, _ := newTestService(t,
		[]models.Technician{tech("T1", nil, "Warszawa")},
		[]models.ServiceJob{assigned("a", "T1", at(0, 10, 0), 120)})

	slots, err := svc.GetAvailableSlots(context.Background(), "T1", at(0, 0, 0), 60)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []time.Time{
		at(0, 8, 0), at(0, 8, 30), at(0, 9, 0),
		at(0, 12, 0), at(0, 12, 30), at(0, 13, 0), at(0, 13, 30), at(0, 14, 0), at(0, 14, 30), at(0, 15, 0),
	}
	if !slices.EqualFunc(slots, want, time.Time.Equal) {
		t.Fatalf("unexpected slots:\n got %v\nwant %v", slots, want)
	}
}

func TestGetAvailableSlotsEmptyDayAndErrors(t *testing.T) {
	full := tech("T1", nil, "Warszawa")
	svc, _, _ := newTestService(t, []models.Technician{full}, []models.ServiceJob{assigned("a", "T1", at(0, 8, 0), 480)})

	slots, err := svc.GetAvailableSlots(context.Background(), "T1", at(0, 0, 0), 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if slots == nil || len(slots) != 0 {
		t.Fatalf("expected an empty, non-nil slice, got %v", slots)
	}

	if _, err := svc.GetAvailableSlots(context.Background(), "missing", at(0, 0, 0), 30); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := svc.GetAvailableSlots(context.Background(), "T1", at(0, 0, 0), 600); err != nil {
		t.Fatalf("a job longer than the day is not an error: %v", err)
	}
}

func TestSlotsRestartable(t *testing.T) {
	seq := Slots(at(0, 8, 0), at(0, 10, 0), nil, time.Hour, 30*time.Minute)
	first := slices.Collect(seq)
	second := slices.Collect(seq)
	if len(first) != 3 || !slices.EqualFunc(first, second, time.Time.Equal) {
		t.Fatalf("expected the same 3 slots twice, got %v and %v", first, second)
	}
}

// Every grid slot is either returned and free, or omitted and overlapping.
func TestSlotsSoundAndComplete(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	windowStart, windowEnd := at(0, 8, 0), at(0, 18, 0)
	grid := 15 * time.Minute

	for round := 0; round < 300; round++ {
		var jobs []models.ServiceJob
		for i := 0; i < rng.Intn(6); i++ {
			start := windowStart.Add(time.Duration(rng.Intn(40)) * grid)
			j := assigned("j", "T1", start, 15*(1+rng.Intn(8)))
			if rng.Intn(4) == 0 {
				j.Status = models.JobCancelled
			}
			jobs = append(jobs, j)
		}
		duration := time.Duration(15*(1+rng.Intn(8))) * time.Minute

		got := slices.Collect(Slots(windowStart, windowEnd, jobs, duration, grid))
		for start := windowStart; !start.Add(duration).After(windowEnd); start = start.Add(grid) {
			free := len(FindConflicts(jobs, start, start.Add(duration), "")) == 0
			listed := slices.ContainsFunc(got, start.Equal)
			if free != listed {
				t.Fatalf("round %d: slot %s free=%v listed=%v", round, start.Format("15:04"), free, listed)
			}
		}
		for _, s := range got {
			if s.Add(duration).After(windowEnd) {
				t.Fatalf("slot %s runs past working hours", s)
			}
		}
	}
}
