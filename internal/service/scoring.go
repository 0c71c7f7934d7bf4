package service

import (
	"fmt"
	"math"

	"github.com/hvac_dispatch/backend/internal/models"
)

const (
	WeightSkills       = 0.40
	WeightLocation     = 0.25
	WeightWorkload     = 0.20
	WeightPerformance  = 0.10
	WeightAvailability = 0.05

	DefaultMaxDailyTasks        = 8
	DefaultNeutralLocationScore = 50.0
	neutralPerformanceScore     = 50.0
	maxSatisfaction             = 5.0
)

// ScoreInputs carries collaborator values fetched before scoring. A nil Estimate or
// Performance means the collaborator was unavailable and a neutral value is used.
type ScoreInputs struct {
	TaskCount   int
	Estimate    *models.Estimate
	Performance *models.PerformanceMetrics
}

type Scorer struct {
	MaxDailyTasks        int
	NeutralLocationScore float64
}

func NewScorer(maxDailyTasks int, neutralLocation float64) Scorer {
	if maxDailyTasks <= 0 {
		maxDailyTasks = DefaultMaxDailyTasks
	}
	if neutralLocation < 0 || neutralLocation > 100 {
		neutralLocation = DefaultNeutralLocationScore
	}
	return Scorer{MaxDailyTasks: maxDailyTasks, NeutralLocationScore: neutralLocation}
}

func (s Scorer) Score(tech models.Technician, criteria models.AssignmentCriteria, in ScoreInputs) models.TechnicianScore {
	score := models.TechnicianScore{TechnicianID: tech.ID}

	score.SkillsScore = skillsScore(tech, criteria.RequiredSkills)
	if len(criteria.RequiredSkills) == 0 {
		score.Reasoning = append(score.Reasoning, "no skills required")
	} else {
		score.Reasoning = append(score.Reasoning, fmt.Sprintf("skills match %.0f%%", score.SkillsScore))
	}

	switch {
	case tech.Location == nil:
		score.LocationScore = s.NeutralLocationScore
		score.Reasoning = append(score.Reasoning, "no technician location on record, neutral location score")
	case tech.Location.SameRegion(criteria.Location):
		score.LocationScore = 100
		score.Reasoning = append(score.Reasoning, "same region as job: "+criteria.Location.Region)
	case in.Estimate == nil:
		score.LocationScore = s.NeutralLocationScore
		score.Reasoning = append(score.Reasoning, "distance unavailable, neutral location score")
	default:
		score.LocationScore = clamp(100 - 2*in.Estimate.DistanceKm)
		score.Reasoning = append(score.Reasoning, fmt.Sprintf("%.1f km from job", in.Estimate.DistanceKm))
	}

	maxTasks := s.MaxDailyTasks
	if maxTasks <= 0 {
		maxTasks = DefaultMaxDailyTasks
	}
	score.WorkloadScore = clamp(float64(maxTasks-in.TaskCount) / float64(maxTasks) * 100)
	score.Reasoning = append(score.Reasoning, fmt.Sprintf("%d of %d daily tasks booked", in.TaskCount, maxTasks))

	if in.Performance == nil {
		score.PerformanceScore = neutralPerformanceScore
		score.Reasoning = append(score.Reasoning, "performance metrics unavailable, neutral performance score")
	} else {
		completion := clamp(in.Performance.CompletionRate * 100)
		satisfaction := clamp(in.Performance.Satisfaction / maxSatisfaction * 100)
		score.PerformanceScore = (completion + satisfaction) / 2
		score.Reasoning = append(score.Reasoning, fmt.Sprintf("completion %.0f%%, satisfaction %.1f/5", completion, in.Performance.Satisfaction))
	}

	if tech.Status == models.TechnicianAvailable {
		score.AvailabilityScore = 100
	} else {
		score.Reasoning = append(score.Reasoning, "status "+string(tech.Status))
	}

	score.TotalScore = WeightSkills*score.SkillsScore +
		WeightLocation*score.LocationScore +
		WeightWorkload*score.WorkloadScore +
		WeightPerformance*score.PerformanceScore +
		WeightAvailability*score.AvailabilityScore
	return score
}

func skillsScore(tech models.Technician, required []string) float64 {
	if len(required) == 0 {
		return 100
	}
	matched := 0
	for _, r := range required {
		if tech.HasSkill(r) {
			matched++
		}
	}
	return float64(matched) / float64(len(required)) * 100
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(100, v))
}
