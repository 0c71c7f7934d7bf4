// Package board keeps the dispatcher's view of every technician's upcoming jobs.
// It is fed by lifecycle events and periodically rebuilt from storage; the store stays
// the source of truth and the board is advisory.
package board

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hvac_dispatch/backend/internal/models"
)

const (
	DefaultInterval = 30 * time.Second
	horizonDays     = 7
)

type Directory interface {
	ListTechnicians(ctx context.Context) ([]models.Technician, error)
}

type JobStore interface {
	JobsForTechnician(ctx context.Context, technicianID string, from, to time.Time) ([]models.ServiceJob, error)
}

type Row struct {
	Technician models.Technician   `json:"technician"`
	Jobs       []models.ServiceJob `json:"jobs"`
}

type Snapshot struct {
	From        time.Time `json:"from"`
	To          time.Time `json:"to"`
	RefreshedAt time.Time `json:"refreshed_at"`
	Stale       bool      `json:"stale"`
	Rows        []Row     `json:"rows"`
}

type Board struct {
	Directory Directory
	Jobs      JobStore
	Logger    zerolog.Logger
	Location  *time.Location
	Now       func() time.Time

	mu          sync.RWMutex
	technicians []models.Technician
	jobs        map[string]models.ServiceJob
	lastSeq     map[string]uint64
	stale       bool
	refreshedAt time.Time

	// events applied while a refresh reads storage, replayed onto its result
	refreshMu  sync.Mutex
	refreshing bool
	pending    []models.Event

	kick chan struct{}
}

func New(directory Directory, jobs JobStore, logger zerolog.Logger) *Board {
	return &Board{
		Directory: directory,
		Jobs:      jobs,
		Logger:    logger,
		Location:  time.UTC,
		Now:       time.Now,
		jobs:      map[string]models.ServiceJob{},
		lastSeq:   map[string]uint64{},
		stale:     true,
		kick:      make(chan struct{}, 1),
	}
}

func (b *Board) window() (time.Time, time.Time) {
	now := b.Now().In(b.Location)
	y, m, d := now.Date()
	from := time.Date(y, m, d, 0, 0, 0, 0, b.Location)
	return from, from.AddDate(0, 0, horizonDays)
}

// Apply folds one event into the board. A gap or regression in an origin's sequence
// marks the board stale and asks Run for an immediate refresh.
func (b *Board) Apply(ev models.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	last, seen := b.lastSeq[ev.Origin]
	switch {
	case seen && ev.Sequence <= last:
		return
	case seen && ev.Sequence != last+1:
		b.Logger.Warn().Str("origin", ev.Origin).Uint64("expected", last+1).Uint64("got", ev.Sequence).Msg("event gap, board is stale")
		b.markStale()
	}
	b.lastSeq[ev.Origin] = ev.Sequence

	if b.refreshing {
		b.pending = append(b.pending, ev)
	}
	b.fold(b.jobs, ev)
}

func (b *Board) fold(jobs map[string]models.ServiceJob, ev models.Event) {
	from, to := b.window()
	job := ev.Job
	if job.ID == "" {
		job.ID = ev.JobID
	}
	if job.Status == models.JobCancelled || job.TechnicianID() == "" || !job.ScheduledStart.Before(to) || !job.ScheduledEnd.After(from) {
		delete(jobs, job.ID)
		return
	}
	jobs[job.ID] = job
}

func (b *Board) markStale() {
	b.stale = true
	select {
	case b.kick <- struct{}{}:
	default:
	}
}

// Invalidate marks the board stale so Run rebuilds it, e.g. after a technician import.
func (b *Board) Invalidate() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.markStale()
}

// Refresh rebuilds the board from storage. Events applied during the read are replayed
// on top of it, so the rebuild never rolls back a newer change.
func (b *Board) Refresh(ctx context.Context) error {
	b.refreshMu.Lock()
	defer b.refreshMu.Unlock()

	b.mu.Lock()
	b.refreshing = true
	b.pending = nil
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		b.refreshing = false
		b.pending = nil
		b.mu.Unlock()
	}()

	techs, err := b.Directory.ListTechnicians(ctx)
	if err != nil {
		return fmt.Errorf("list technicians: %w", err)
	}
	from, to := b.window()
	jobs := map[string]models.ServiceJob{}
	for _, t := range techs {
		list, err := b.Jobs.JobsForTechnician(ctx, t.ID, from, to)
		if err != nil {
			return fmt.Errorf("jobs for %s: %w", t.ID, err)
		}
		for _, j := range list {
			if j.Status != models.JobCancelled {
				jobs[j.ID] = j
			}
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ev := range b.pending {
		b.fold(jobs, ev)
	}
	b.technicians = techs
	b.jobs = jobs
	b.stale = false
	b.refreshedAt = b.Now()
	return nil
}

// Run refreshes every interval, and right away whenever the board goes stale.
func (b *Board) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	refresh := func() {
		if err := b.Refresh(ctx); err != nil && ctx.Err() == nil {
			b.Logger.Error().Err(err).Msg("board refresh failed")
		}
	}
	refresh()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refresh()
		case <-b.kick:
			refresh()
		}
	}
}

func (b *Board) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	from, to := b.window()
	byTech := map[string][]models.ServiceJob{}
	for _, j := range b.jobs {
		byTech[j.TechnicianID()] = append(byTech[j.TechnicianID()], j)
	}

	snap := Snapshot{From: from, To: to, RefreshedAt: b.refreshedAt, Stale: b.stale, Rows: []Row{}}
	for _, t := range b.technicians {
		jobs := byTech[t.ID]
		sort.Slice(jobs, func(i, k int) bool {
			if !jobs[i].ScheduledStart.Equal(jobs[k].ScheduledStart) {
				return jobs[i].ScheduledStart.Before(jobs[k].ScheduledStart)
			}
			return jobs[i].ID < jobs[k].ID
		})
		if jobs == nil {
			jobs = []models.ServiceJob{}
		}
		snap.Rows = append(snap.Rows, Row{Technician: t, Jobs: jobs})
	}
	return snap
}
