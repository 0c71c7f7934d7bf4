package db

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hvac_dispatch/backend/internal/models"
)

func job(id, tech string, start time.Time, minutes int, status models.JobStatus) models.ServiceJob {
	j := models.ServiceJob{ID: id, EstimatedDurationMinutes: minutes, Status: status}
	if tech != "" {
		j.AssignedTechnicianID = &tech
	}
	j.Reschedule(start)
	return j
}

func TestMemoryStoreDirectory(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	m.PutTechnician(models.Technician{ID: "t2", Status: models.TechnicianAvailable})
	m.PutTechnician(models.Technician{ID: "t1", Status: models.TechnicianAvailable})
	m.PutTechnician(models.Technician{ID: "t3", Status: models.TechnicianOffline})

	all, err := m.ListTechnicians(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "t1", all[0].ID)

	avail, err := m.ListAvailableTechnicians(ctx, []string{"t2"})
	require.NoError(t, err)
	require.Len(t, avail, 1)
	require.Equal(t, "t1", avail[0].ID)

	_, err = m.GetTechnician(ctx, "nope")
	require.True(t, errors.Is(err, models.ErrNotFound))
}

func TestMemoryStoreJobsForTechnicianWindow(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	require.NoError(t, m.SaveJob(ctx, job("a", "t1", day.Add(9*time.Hour), 60, models.JobAssigned)))
	require.NoError(t, m.SaveJob(ctx, job("b", "t1", day.Add(23*time.Hour), 120, models.JobAssigned)))
	require.NoError(t, m.SaveJob(ctx, job("c", "t2", day.Add(9*time.Hour), 60, models.JobAssigned)))
	require.NoError(t, m.SaveJob(ctx, job("d", "t1", day.Add(-2*time.Hour), 120, models.JobAssigned)))

	jobs, err := m.JobsForTechnician(ctx, "t1", day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	ids := make([]string, 0, len(jobs))
	for _, j := range jobs {
		ids = append(ids, j.ID)
	}
	// d ends exactly at midnight and does not intersect the day.
	require.Equal(t, []string{"a", "b"}, ids)
}

func TestMemoryStoreRefusesOverlap(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	start := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)

	require.NoError(t, m.SaveJob(ctx, job("a", "t1", start, 120, models.JobAssigned)))
	err := m.SaveJob(ctx, job("b", "t1", start.Add(time.Hour), 60, models.JobAssigned))
	require.ErrorIs(t, err, models.ErrOverlap)

	// touching, cancelled and other-technician jobs are fine
	require.NoError(t, m.SaveJob(ctx, job("c", "t1", start.Add(2*time.Hour), 60, models.JobAssigned)))
	require.NoError(t, m.SaveJob(ctx, job("d", "t1", start, 60, models.JobCancelled)))
	require.NoError(t, m.SaveJob(ctx, job("e", "t2", start, 60, models.JobAssigned)))

	// updating a job in place does not collide with itself
	moved := job("a", "t1", start.Add(-30*time.Minute), 120, models.JobAssigned)
	require.NoError(t, m.SaveJob(ctx, moved))
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	j := job("a", "t1", time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC), 60, models.JobAssigned)
	j.RequiredSkills = []string{"AC"}
	require.NoError(t, m.SaveJob(ctx, j))

	got, err := m.GetJob(ctx, "a")
	require.NoError(t, err)
	got.RequiredSkills[0] = "HEATING"
	*got.AssignedTechnicianID = "t9"

	again, err := m.GetJob(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, "AC", again.RequiredSkills[0])
	require.Equal(t, "t1", again.TechnicianID())
}

func TestLoadSeedDerivesEnd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.json")
	content := `{
		"technicians": [{"id": "t1", "name": "Anna", "status": "AVAILABLE", "skills": ["AC"],
			"location": {"region": "Warszawa"}, "working_hours": {"start": "08:00", "end": "16:00"},
			"weekly_capacity_hours": 40}],
		"jobs": [{"id": "j1", "estimated_duration_minutes": 90, "status": "ASSIGNED",
			"assigned_technician_id": "t1", "scheduled_start": "2025-03-10T09:00:00Z"}]
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	seed, err := LoadSeed(path)
	require.NoError(t, err)
	require.Len(t, seed.Technicians, 1)
	require.Equal(t, time.Date(2025, 3, 10, 10, 30, 0, 0, time.UTC), seed.Jobs[0].ScheduledEnd.UTC())

	m, err := NewMemoryStoreFromSeed(seed)
	require.NoError(t, err)
	tech, err := m.GetTechnician(context.Background(), "t1")
	require.NoError(t, err)
	require.Equal(t, "Warszawa", tech.Location.Region)
}
