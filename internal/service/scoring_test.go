package service

import (
	"math"
	"math/rand"
	"testing"

	"github.com/hvac_dispatch/backend/internal/models"
)

func TestWeightsSumToOne(t *testing.T) {
	sum := WeightSkills + WeightLocation + WeightWorkload + WeightPerformance + WeightAvailability
	if math.Abs(sum-1.0) > 1e-9 {
		t.Fatalf("weights sum to %v", sum)
	}
}

func TestScoreComponents(t *testing.T) {
	sc := NewScorer(8, 50)
	tc := tech("t1", []string{"AC"}, "Warszawa")
	criteria := models.AssignmentCriteria{
		RequiredSkills: []string{"AC", "HEATING"},
		Location:       models.Location{Region: "Kraków"},
	}
	score := sc.Score(tc, criteria, ScoreInputs{
		TaskCount:   2,
		Estimate:    &models.Estimate{DistanceKm: 10},
		Performance: &models.PerformanceMetrics{CompletionRate: 0.9, Satisfaction: 4},
	})

	if score.SkillsScore != 50 {
		t.Fatalf("skills: %v", score.SkillsScore)
	}
	if score.LocationScore != 80 {
		t.Fatalf("location: %v", score.LocationScore)
	}
	if score.WorkloadScore != 75 {
		t.Fatalf("workload: %v", score.WorkloadScore)
	}
	if math.Abs(score.PerformanceScore-85) > 1e-9 {
		t.Fatalf("performance: %v", score.PerformanceScore)
	}
	if score.AvailabilityScore != 100 {
		t.Fatalf("availability: %v", score.AvailabilityScore)
	}
	want := 0.40*50 + 0.25*80 + 0.20*75 + 0.10*85 + 0.05*100
	if math.Abs(score.TotalScore-want) > 1e-9 {
		t.Fatalf("total: got %v want %v", score.TotalScore, want)
	}
	if len(score.Reasoning) == 0 {
		t.Fatalf("expected reasoning entries")
	}
}

func TestScoreNeutralDefaults(t *testing.T) {
	sc := NewScorer(8, 50)
	noLocation := tech("t1", nil, "")
	noLocation.Location = nil
	noLocation.Status = models.TechnicianBusy

	score := sc.Score(noLocation, models.AssignmentCriteria{Location: models.Location{Region: "Warszawa"}}, ScoreInputs{})
	if score.SkillsScore != 100 {
		t.Fatalf("no required skills should score 100, got %v", score.SkillsScore)
	}
	if score.LocationScore != 50 {
		t.Fatalf("missing location should be neutral, got %v", score.LocationScore)
	}
	if score.PerformanceScore != 50 {
		t.Fatalf("missing metrics should be neutral, got %v", score.PerformanceScore)
	}
	if score.AvailabilityScore != 0 {
		t.Fatalf("busy technician should score 0 availability, got %v", score.AvailabilityScore)
	}

	far := sc.Score(tech("t2", nil, "Gdańsk"), models.AssignmentCriteria{Location: models.Location{Region: "Kraków"}},
		ScoreInputs{Estimate: &models.Estimate{DistanceKm: 500}})
	if far.LocationScore != 0 {
		t.Fatalf("location should floor at 0, got %v", far.LocationScore)
	}
}

func TestScoreBoundsRandomized(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	sc := NewScorer(8, 50)
	skills := []string{"AC", "HEATING", "REFRIGERATION", "VENTILATION"}
	pick := func() []string {
		var out []string
		for _, s := range skills {
			if rng.Intn(2) == 0 {
				out = append(out, s)
			}
		}
		return out
	}
	for i := 0; i < 2000; i++ {
		tc := tech("t", pick(), "A")
		if rng.Intn(3) == 0 {
			tc.Status = models.TechnicianOnBreak
		}
		in := ScoreInputs{TaskCount: rng.Intn(20)}
		if rng.Intn(2) == 0 {
			in.Estimate = &models.Estimate{DistanceKm: rng.Float64() * 200}
		}
		if rng.Intn(2) == 0 {
			in.Performance = &models.PerformanceMetrics{CompletionRate: rng.Float64() * 1.2, Satisfaction: rng.Float64() * 6}
		}
		region := "A"
		if rng.Intn(2) == 0 {
			region = "B"
		}
		s := sc.Score(tc, models.AssignmentCriteria{RequiredSkills: pick(), Location: models.Location{Region: region}}, in)
		for name, v := range map[string]float64{
			"skills": s.SkillsScore, "location": s.LocationScore, "workload": s.WorkloadScore,
			"performance": s.PerformanceScore, "availability": s.AvailabilityScore, "total": s.TotalScore,
		} {
			if v < 0 || v > 100 {
				t.Fatalf("%s score out of range: %v", name, v)
			}
		}
	}
}
