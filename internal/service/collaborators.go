package service

import (
	"context"
	"time"

	"github.com/hvac_dispatch/backend/internal/models"
)

// Directory is the read side of technician management.
type Directory interface {
	ListAvailableTechnicians(ctx context.Context, excludeIDs []string) ([]models.Technician, error)
	ListTechnicians(ctx context.Context) ([]models.Technician, error)
	GetTechnician(ctx context.Context, id string) (models.Technician, error)
}

// JobStore holds job records. JobsForTechnician returns every job assigned to the
// technician whose interval intersects [from, to), including cancelled ones.
type JobStore interface {
	GetJob(ctx context.Context, id string) (models.ServiceJob, error)
	JobsForTechnician(ctx context.Context, technicianID string, from, to time.Time) ([]models.ServiceJob, error)
	SaveJob(ctx context.Context, job models.ServiceJob) error
}

type DistanceEstimator interface {
	Estimate(ctx context.Context, from, to models.Location) (models.Estimate, error)
}

type PerformanceSource interface {
	Metrics(ctx context.Context, technicianID string) (models.PerformanceMetrics, error)
}

// Publisher stamps and delivers lifecycle events, returning the sequenced event.
type Publisher interface {
	Publish(ctx context.Context, ev models.Event) (models.Event, error)
}

// JobsForDay returns the technician's jobs intersecting the calendar day of date.
func JobsForDay(ctx context.Context, store JobStore, technicianID string, date time.Time) ([]models.ServiceJob, error) {
	from := startOfDay(date)
	return store.JobsForTechnician(ctx, technicianID, from, from.AddDate(0, 0, 1))
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
