// Package service holds the dispatch core: technician scoring, assignment, slot and
// conflict computation, the job lifecycle coordinator and the workload balancer.
// Collaborators are injected through the interfaces in collaborators.go.
package service

import (
	"time"

	"github.com/rs/zerolog"
)

type Service struct {
	Directory   Directory
	Jobs        JobStore
	Distance    DistanceEstimator
	Performance PerformanceSource
	Events      Publisher
	Scorer      Scorer
	Logger      zerolog.Logger

	Location *time.Location
	SlotGrid time.Duration
	Now      func() time.Time

	locks    keyedLocks
	jobLocks keyedLocks
}

type Option func(*Service)

func WithDistance(d DistanceEstimator) Option { return func(s *Service) { s.Distance = d } }
func WithPerformance(p PerformanceSource) Option { return func(s *Service) { s.Performance = p } }
func WithPublisher(p Publisher) Option { return func(s *Service) { s.Events = p } }
func WithScorer(sc Scorer) Option { return func(s *Service) { s.Scorer = sc } }
func WithLogger(l zerolog.Logger) Option { return func(s *Service) { s.Logger = l } }
func WithLocation(loc *time.Location) Option { return func(s *Service) { s.Location = loc } }
func WithSlotGrid(d time.Duration) Option { return func(s *Service) { s.SlotGrid = d } }
func WithClock(now func() time.Time) Option { return func(s *Service) { s.Now = now } }

func New(directory Directory, jobs JobStore, opts ...Option) *Service {
	s := &Service{
		Directory: directory,
		Jobs:      jobs,
		Scorer:    NewScorer(DefaultMaxDailyTasks, DefaultNeutralLocationScore),
		Logger:    zerolog.Nop(),
		Location:  time.UTC,
		SlotGrid:  DefaultSlotGrid,
		Now:       time.Now,
		locks:     newKeyedLocks(),
		jobLocks:  newKeyedLocks(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now().In(s.location())
	}
	return s.Now().In(s.location())
}

func (s *Service) location() *time.Location {
	if s.Location == nil {
		return time.UTC
	}
	return s.Location
}

func (s *Service) grid() time.Duration {
	if s.SlotGrid <= 0 {
		return DefaultSlotGrid
	}
	return s.SlotGrid
}
