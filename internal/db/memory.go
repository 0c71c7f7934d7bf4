package db

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/hvac_dispatch/backend/internal/models"
)

// Seed is the JSON layout accepted by LoadSeed.
type Seed struct {
	Technicians []models.Technician `json:"technicians"`
	Jobs        []models.ServiceJob `json:"jobs"`
}

func LoadSeed(path string) (Seed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, err
	}
	var seed Seed
	if err := json.Unmarshal(raw, &seed); err != nil {
		return Seed{}, fmt.Errorf("parse seed %s: %w", path, err)
	}
	for i := range seed.Jobs {
		if seed.Jobs[i].ScheduledEnd.IsZero() {
			seed.Jobs[i].Reschedule(seed.Jobs[i].ScheduledStart)
		}
	}
	return seed, nil
}

// MemoryStore is an in-process Directory and JobStore used when no database is
// configured and in tests. It refuses overlapping jobs the same way the
// service_jobs exclusion constraint does.
type MemoryStore struct {
	mu          sync.RWMutex
	technicians map[string]models.Technician
	jobs        map[string]models.ServiceJob
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		technicians: map[string]models.Technician{},
		jobs:        map[string]models.ServiceJob{},
	}
}

func NewMemoryStoreFromSeed(seed Seed) (*MemoryStore, error) {
	m := NewMemoryStore()
	if err := m.Import(context.Background(), seed); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *MemoryStore) PutTechnician(t models.Technician) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.technicians[t.ID] = cloneTechnician(t)
}

func (m *MemoryStore) ListTechnicians(_ context.Context) ([]models.Technician, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Technician, 0, len(m.technicians))
	for _, t := range m.technicians {
		out = append(out, cloneTechnician(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) ListAvailableTechnicians(ctx context.Context, excludeIDs []string) ([]models.Technician, error) {
	all, err := m.ListTechnicians(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, t := range all {
		if t.Status == models.TechnicianAvailable && !slices.Contains(excludeIDs, t.ID) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *MemoryStore) GetTechnician(_ context.Context, id string) (models.Technician, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.technicians[id]
	if !ok {
		return models.Technician{}, fmt.Errorf("technician %s: %w", id, models.ErrNotFound)
	}
	return cloneTechnician(t), nil
}

func (m *MemoryStore) GetJob(_ context.Context, id string) (models.ServiceJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[id]
	if !ok {
		return models.ServiceJob{}, fmt.Errorf("job %s: %w", id, models.ErrNotFound)
	}
	return cloneJob(j), nil
}

func (m *MemoryStore) JobsForTechnician(_ context.Context, technicianID string, from, to time.Time) ([]models.ServiceJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.ServiceJob
	for _, j := range m.jobs {
		if j.TechnicianID() == technicianID && j.Overlaps(from, to) {
			out = append(out, cloneJob(j))
		}
	}
	sortJobs(out)
	return out, nil
}

func (m *MemoryStore) SaveJob(_ context.Context, job models.ServiceJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tech := job.TechnicianID(); tech != "" && job.Occupies() {
		for _, other := range m.jobs {
			if other.ID == job.ID || other.TechnicianID() != tech || !other.Occupies() {
				continue
			}
			if other.Overlaps(job.ScheduledStart, job.ScheduledEnd) {
				return fmt.Errorf("job %s overlaps %s: %w", job.ID, other.ID, models.ErrOverlap)
			}
		}
	}
	m.jobs[job.ID] = cloneJob(job)
	return nil
}

func sortJobs(jobs []models.ServiceJob) {
	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].ScheduledStart.Equal(jobs[j].ScheduledStart) {
			return jobs[i].ScheduledStart.Before(jobs[j].ScheduledStart)
		}
		return jobs[i].ID < jobs[j].ID
	})
}

func cloneTechnician(t models.Technician) models.Technician {
	t.Skills = slices.Clone(t.Skills)
	if t.Location != nil {
		loc := *t.Location
		t.Location = &loc
	}
	return t
}

func cloneJob(j models.ServiceJob) models.ServiceJob {
	j.RequiredSkills = slices.Clone(j.RequiredSkills)
	if j.AssignedTechnicianID != nil {
		id := *j.AssignedTechnicianID
		j.AssignedTechnicianID = &id
	}
	return j
}

func (m *MemoryStore) Ping(_ context.Context) error {
	return nil
}

// Import loads technicians and jobs, replacing records with the same id.
func (m *MemoryStore) Import(ctx context.Context, seed Seed) error {
	for _, t := range seed.Technicians {
		m.PutTechnician(t)
	}
	for _, j := range seed.Jobs {
		if err := m.SaveJob(ctx, j); err != nil {
			return err
		}
	}
	return nil
}
