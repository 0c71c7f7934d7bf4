package service

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"time"

	"github.com/hvac_dispatch/backend/internal/models"
)

const DefaultSlotGrid = 30 * time.Minute

// Slots enumerates grid-aligned start times in [windowStart, windowEnd) at which a job of
// the given duration fits inside the window without overlapping an occupying job.
// The sequence is computed fresh on every iteration.
func Slots(windowStart, windowEnd time.Time, jobs []models.ServiceJob, duration, grid time.Duration) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		if duration <= 0 || grid <= 0 {
			return
		}
		for start := windowStart; !start.Add(duration).After(windowEnd); start = start.Add(grid) {
			end := start.Add(duration)
			if slotTaken(jobs, start, end) {
				continue
			}
			if !yield(start) {
				return
			}
		}
	}
}

func slotTaken(jobs []models.ServiceJob, start, end time.Time) bool {
	for _, j := range jobs {
		if j.Occupies() && j.Overlaps(start, end) {
			return true
		}
	}
	return false
}

// AvailableSlots returns the lazy slot sequence for a technician on the calendar day of date.
func (s *Service) AvailableSlots(ctx context.Context, technicianID string, date time.Time, durationMinutes int) (iter.Seq[time.Time], error) {
	if durationMinutes <= 0 {
		return nil, invalid("duration_minutes", "must be positive")
	}
	tech, err := s.Directory.GetTechnician(ctx, technicianID)
	if err != nil {
		return nil, fmt.Errorf("get technician %s: %w", technicianID, err)
	}
	start, end, err := tech.WorkingHours.Window(date.In(s.location()))
	if err != nil {
		return nil, invalid("working_hours", err.Error())
	}
	jobs, err := s.Jobs.JobsForTechnician(ctx, technicianID, start, end)
	if err != nil {
		return nil, fmt.Errorf("load jobs for %s: %w", technicianID, err)
	}
	return Slots(start, end, jobs, time.Duration(durationMinutes)*time.Minute, s.grid()), nil
}

func (s *Service) GetAvailableSlots(ctx context.Context, technicianID string, date time.Time, durationMinutes int) ([]time.Time, error) {
	seq, err := s.AvailableSlots(ctx, technicianID, date, durationMinutes)
	if err != nil {
		return nil, err
	}
	slots := slices.Collect(seq)
	if slots == nil {
		slots = []time.Time{}
	}
	return slots, nil
}

// nextAvailableSlot searches from the day of from over the given number of days and
// returns the first free slot that starts no earlier than from.
func (s *Service) nextAvailableSlot(ctx context.Context, technicianID string, from time.Time, durationMinutes, days int) (*time.Time, error) {
	day := startOfDay(from.In(s.location()))
	for i := 0; i < days; i++ {
		seq, err := s.AvailableSlots(ctx, technicianID, day.AddDate(0, 0, i), durationMinutes)
		if err != nil {
			return nil, err
		}
		for slot := range seq {
			if slot.Before(from) {
				continue
			}
			found := slot
			return &found, nil
		}
	}
	return nil, nil
}
