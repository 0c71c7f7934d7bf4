package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hvac_dispatch/backend/internal/models"
)

// FindConflicts returns the sorted ids of jobs occupying any part of [start, end).
// Touching endpoints do not conflict.
func FindConflicts(jobs []models.ServiceJob, start, end time.Time, excludeJobID string) []string {
	var ids []string
	for _, j := range jobs {
		if j.ID == excludeJobID || !j.Occupies() {
			continue
		}
		if j.Overlaps(start, end) {
			ids = append(ids, j.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

// CheckConflicts loads the technician's jobs around the proposed interval and reports overlaps.
// An unknown technician is models.ErrNotFound, not an empty timeline.
func (s *Service) CheckConflicts(ctx context.Context, technicianID string, start time.Time, durationMinutes int, excludeJobID string) ([]string, error) {
	if technicianID == "" {
		return nil, invalid("technician_id", "is required")
	}
	if durationMinutes <= 0 {
		return nil, invalid("duration_minutes", "must be positive")
	}
	if _, err := s.Directory.GetTechnician(ctx, technicianID); err != nil {
		return nil, fmt.Errorf("get technician %s: %w", technicianID, err)
	}
	end := start.Add(time.Duration(durationMinutes) * time.Minute)
	return s.conflictsFor(ctx, technicianID, start, end, excludeJobID)
}

func (s *Service) conflictsFor(ctx context.Context, technicianID string, start, end time.Time, excludeJobID string) ([]string, error) {
	jobs, err := s.Jobs.JobsForTechnician(ctx, technicianID, start, end)
	if err != nil {
		return nil, fmt.Errorf("load jobs for %s: %w", technicianID, err)
	}
	return FindConflicts(jobs, start, end, excludeJobID), nil
}
