package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hvac_dispatch/backend/internal/metrics"
	"github.com/hvac_dispatch/backend/internal/models"
)

const (
	maxAlternatives = 3

	skillsWarningThreshold   = 70
	workloadWarningThreshold = 30
	locationWarningThreshold = 50

	WarningSkills   = "skills below threshold"
	WarningWorkload = "technician overloaded"
	WarningLocation = "technician far from job"
	WarningETA      = "eta unavailable"

	scoringConcurrency = 8
)

type rankedCandidate struct {
	tech     models.Technician
	score    models.TechnicianScore
	estimate *models.Estimate
}

// FindOptimalTechnician ranks every available, non-excluded technician for the criteria.
// It never commits anything, so callers may abandon it at any time.
func (s *Service) FindOptimalTechnician(ctx context.Context, criteria models.AssignmentCriteria) (models.AssignmentResult, error) {
	defer metrics.Observe("find_optimal_technician", time.Now())

	ranked, err := s.rank(ctx, criteria)
	if err != nil {
		if errors.Is(err, ErrNoCandidate) {
			metrics.Assignments.WithLabelValues("no_candidate").Inc()
		}
		return models.AssignmentResult{}, err
	}
	result := s.buildResult(ctx, criteria, ranked)
	metrics.Assignments.WithLabelValues("found").Inc()
	return result, nil
}

func (s *Service) rank(ctx context.Context, criteria models.AssignmentCriteria) ([]rankedCandidate, error) {
	if err := validateCriteria(criteria); err != nil {
		return nil, err
	}
	techs, err := s.Directory.ListAvailableTechnicians(ctx, criteria.ExcludeTechnicianIDs)
	if err != nil {
		return nil, fmt.Errorf("list available technicians: %w", err)
	}
	techs = candidates(techs, criteria.ExcludeTechnicianIDs)
	if len(techs) == 0 {
		return nil, fmt.Errorf("%w: %d excluded", ErrNoCandidate, len(criteria.ExcludeTechnicianIDs))
	}

	ranked := make([]rankedCandidate, len(techs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(scoringConcurrency)
	for i, tech := range techs {
		g.Go(func() error {
			in, est, err := s.scoreInputs(gctx, tech, criteria)
			if err != nil {
				return err
			}
			ranked[i] = rankedCandidate{tech: tech, score: s.Scorer.Score(tech, criteria, in), estimate: est}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score.TotalScore == ranked[j].score.TotalScore {
			return ranked[i].tech.ID < ranked[j].tech.ID
		}
		return ranked[i].score.TotalScore > ranked[j].score.TotalScore
	})
	return ranked, nil
}

// scoreInputs gathers collaborator values for one candidate. Distance and performance
// failures degrade to neutral values; job store failures abort the search.
func (s *Service) scoreInputs(ctx context.Context, tech models.Technician, criteria models.AssignmentCriteria) (ScoreInputs, *models.Estimate, error) {
	var in ScoreInputs

	jobs, err := JobsForDay(ctx, s.Jobs, tech.ID, s.now())
	if err != nil {
		return in, nil, fmt.Errorf("load jobs for %s: %w", tech.ID, err)
	}
	for _, j := range jobs {
		if j.Active() {
			in.TaskCount++
		}
	}

	if tech.Location != nil && !tech.Location.SameRegion(criteria.Location) && locationKnown(criteria.Location) {
		in.Estimate = s.estimate(ctx, tech.ID, *tech.Location, criteria.Location)
	}

	if s.Performance != nil {
		m, err := s.Performance.Metrics(ctx, tech.ID)
		if err != nil {
			metrics.DegradedInputs.WithLabelValues("performance").Inc()
			s.Logger.Warn().Err(err).Str("technician_id", tech.ID).Msg("performance metrics unavailable, using neutral score")
		} else {
			in.Performance = &m
		}
	}
	return in, in.Estimate, nil
}

func (s *Service) estimate(ctx context.Context, technicianID string, from, to models.Location) *models.Estimate {
	if s.Distance == nil {
		return nil
	}
	est, err := s.Distance.Estimate(ctx, from, to)
	if err != nil {
		metrics.DegradedInputs.WithLabelValues("distance").Inc()
		s.Logger.Warn().Err(err).Str("technician_id", technicianID).Msg("distance estimate unavailable, using neutral score")
		return nil
	}
	return &est
}

func (s *Service) buildResult(ctx context.Context, criteria models.AssignmentCriteria, ranked []rankedCandidate) models.AssignmentResult {
	best := ranked[0]
	result := models.AssignmentResult{
		TechnicianID: best.tech.ID,
		Score:        best.score,
		Alternatives: []models.TechnicianScore{},
		Confidence:   int(math.Round(best.score.TotalScore)),
		Warnings:     []string{},
	}
	for _, alt := range ranked[1:] {
		if len(result.Alternatives) == maxAlternatives {
			break
		}
		result.Alternatives = append(result.Alternatives, alt.score)
	}

	est := best.estimate
	if est == nil && best.tech.Location != nil && locationKnown(criteria.Location) {
		est = s.estimate(ctx, best.tech.ID, *best.tech.Location, criteria.Location)
	}
	if est != nil {
		km, eta := est.DistanceKm, est.ETAMinutes
		result.DistanceKm = &km
		result.ETAMinutes = &eta
	} else {
		result.Warnings = append(result.Warnings, WarningETA)
	}

	if best.score.SkillsScore < skillsWarningThreshold {
		result.Warnings = append(result.Warnings, WarningSkills)
	}
	if best.score.WorkloadScore < workloadWarningThreshold {
		result.Warnings = append(result.Warnings, WarningWorkload)
	}
	if best.score.LocationScore < locationWarningThreshold {
		result.Warnings = append(result.Warnings, WarningLocation)
	}
	return result
}

// candidates re-applies the status and exclusion filters, whatever the directory returned.
func candidates(techs []models.Technician, exclude []string) []models.Technician {
	skip := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}
	out := make([]models.Technician, 0, len(techs))
	for _, t := range techs {
		if !skip[t.ID] && t.Status == models.TechnicianAvailable {
			out = append(out, t)
		}
	}
	return out
}

func locationKnown(l models.Location) bool {
	return l.HasCoordinates() || l.Region != "" || l.Address != ""
}
