package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hvac_dispatch/backend/internal/db"
	"github.com/hvac_dispatch/backend/internal/models"
)

// monday 2025-03-10, before working hours.
var testNow = time.Date(2025, 3, 10, 7, 0, 0, 0, time.UTC)

func at(day, hour, minute int) time.Time {
	return time.Date(2025, 3, 10+day, hour, minute, 0, 0, time.UTC)
}

func tech(id string, skills []string, region string) models.Technician {
	return models.Technician{
		ID:                  id,
		Name:                id,
		Status:              models.TechnicianAvailable,
		Skills:              skills,
		Location:            &models.Location{Region: region},
		WorkingHours:        models.WorkingHours{Start: "08:00", End: "16:00"},
		WeeklyCapacityHours: 40,
	}
}

func assigned(id, techID string, start time.Time, minutes int) models.ServiceJob {
	j := models.ServiceJob{
		ID:                       id,
		Priority:                 models.PriorityMedium,
		EstimatedDurationMinutes: minutes,
		Status:                   models.JobAssigned,
		AssignedTechnicianID:     &techID,
	}
	j.Reschedule(start)
	return j
}

type recordingPublisher struct {
	mu     sync.Mutex
	seq    uint64
	events []models.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev models.Event) (models.Event, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	ev.Sequence = p.seq
	p.events = append(p.events, ev)
	return ev, nil
}

func (p *recordingPublisher) Events() []models.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.Event(nil), p.events...)
}

type failingPerformance struct{}

func (failingPerformance) Metrics(context.Context, string) (models.PerformanceMetrics, error) {
	return models.PerformanceMetrics{}, errors.New("metrics backend down")
}

type fixedPerformance map[string]models.PerformanceMetrics

func (f fixedPerformance) Metrics(_ context.Context, id string) (models.PerformanceMetrics, error) {
	m, ok := f[id]
	if !ok {
		return models.PerformanceMetrics{}, models.ErrNotFound
	}
	return m, nil
}

type fixedDistance struct {
	km  float64
	err error
}

func (f fixedDistance) Estimate(context.Context, models.Location, models.Location) (models.Estimate, error) {
	if f.err != nil {
		return models.Estimate{}, f.err
	}
	return models.Estimate{DistanceKm: f.km, ETAMinutes: int(f.km * 1.5)}, nil
}

func newTestService(t *testing.T, techs []models.Technician, jobs []models.ServiceJob, opts ...Option) (*Service, *db.MemoryStore, *recordingPublisher) {
	t.Helper()
	store, err := db.NewMemoryStoreFromSeed(db.Seed{Technicians: techs, Jobs: jobs})
	if err != nil {
		t.Fatalf("seed store: %v", err)
	}
	pub := &recordingPublisher{}
	base := []Option{WithPublisher(pub), WithClock(func() time.Time { return testNow })}
	svc := New(store, store, append(base, opts...)...)
	return svc, store, pub
}
