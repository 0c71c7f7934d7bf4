package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/hvac_dispatch/backend/internal/metrics"
	"github.com/hvac_dispatch/backend/internal/models"
)

const (
	imbalanceMargin       = 20.0
	maxMovesPerTechnician = 2
	nextSlotMinutes       = 60
	nextSlotSearchDays    = 7
)

// weekWindow returns the Monday 00:00 to Monday 00:00 interval containing t.
func weekWindow(t time.Time) (time.Time, time.Time) {
	day := startOfDay(t)
	offset := (int(day.Weekday()) + 6) % 7
	start := day.AddDate(0, 0, -offset)
	return start, start.AddDate(0, 0, 7)
}

type techLoad struct {
	tech    models.Technician
	balance models.WorkloadBalance
	jobs    []models.ServiceJob
}

func (s *Service) loads(ctx context.Context) ([]techLoad, error) {
	techs, err := s.Directory.ListTechnicians(ctx)
	if err != nil {
		return nil, fmt.Errorf("list technicians: %w", err)
	}
	now := s.now()
	from, to := weekWindow(now)

	out := make([]techLoad, 0, len(techs))
	for _, tech := range techs {
		jobs, err := s.Jobs.JobsForTechnician(ctx, tech.ID, from, to)
		if err != nil {
			return nil, fmt.Errorf("load jobs for %s: %w", tech.ID, err)
		}
		var active []models.ServiceJob
		for _, j := range jobs {
			if j.Active() {
				active = append(active, j)
			}
		}
		bal := balanceFor(tech, active)

		next, err := s.nextAvailableSlot(ctx, tech.ID, now, nextSlotMinutes, nextSlotSearchDays)
		if err != nil {
			s.Logger.Warn().Err(err).Str("technician_id", tech.ID).Msg("next available slot unknown")
		}
		bal.NextAvailableSlot = next
		out = append(out, techLoad{tech: tech, balance: bal, jobs: active})
	}
	return out, nil
}

func balanceFor(tech models.Technician, active []models.ServiceJob) models.WorkloadBalance {
	bal := models.WorkloadBalance{
		TechnicianID:     tech.ID,
		CurrentTaskCount: len(active),
		CapacityHours:    tech.WeeklyCapacityHours,
	}
	for _, j := range active {
		bal.ScheduledHours += j.Duration().Hours()
	}
	bal.UtilizationRate = utilization(bal.ScheduledHours, bal.CapacityHours)
	return bal
}

func utilization(hours, capacity float64) float64 {
	if capacity <= 0 {
		return 0
	}
	return hours / capacity * 100
}

// GetWorkloadBalance reports this week's load per technician, least utilized first.
func (s *Service) GetWorkloadBalance(ctx context.Context) ([]models.WorkloadBalance, error) {
	defer metrics.Observe("workload_balance", time.Now())

	loads, err := s.loads(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.WorkloadBalance, 0, len(loads))
	for _, l := range loads {
		out = append(out, l.balance)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].UtilizationRate == out[j].UtilizationRate {
			return out[i].TechnicianID < out[j].TechnicianID
		}
		return out[i].UtilizationRate < out[j].UtilizationRate
	})
	return out, nil
}

// RebalanceWorkload moves low priority jobs from technicians well above the mean
// utilization to technicians well below it. Every move goes through ReassignJob, so
// conflicting targets are skipped rather than forced.
func (s *Service) RebalanceWorkload(ctx context.Context) (models.RebalanceReport, error) {
	defer metrics.Observe("rebalance_workload", time.Now())

	report := models.RebalanceReport{Reassignments: []models.Reassignment{}}
	loads, err := s.loads(ctx)
	if err != nil {
		return report, err
	}
	if len(loads) == 0 {
		return report, nil
	}

	util := make(map[string]float64, len(loads))
	rates := make([]float64, len(loads))
	for i, l := range loads {
		util[l.tech.ID] = l.balance.UtilizationRate
		rates[i] = l.balance.UtilizationRate
	}
	mean := stat.Mean(rates, nil)
	report.MeanUtilization = mean
	report.VarianceBefore = stat.PopVariance(rates, nil)

	var over, under []techLoad
	for _, l := range loads {
		switch {
		case l.balance.UtilizationRate > mean+imbalanceMargin:
			over = append(over, l)
		case l.balance.UtilizationRate < mean-imbalanceMargin:
			under = append(under, l)
		}
	}
	sort.SliceStable(over, func(i, j int) bool {
		if util[over[i].tech.ID] == util[over[j].tech.ID] {
			return over[i].tech.ID < over[j].tech.ID
		}
		return util[over[i].tech.ID] > util[over[j].tech.ID]
	})

	for _, src := range over {
		moved := 0
		for _, job := range movable(src.jobs) {
			if moved == maxMovesPerTechnician {
				break
			}
			sort.SliceStable(under, func(i, j int) bool {
				if util[under[i].tech.ID] == util[under[j].tech.ID] {
					return under[i].tech.ID < under[j].tech.ID
				}
				return util[under[i].tech.ID] < util[under[j].tech.ID]
			})
			for _, dst := range under {
				if !dst.tech.HasAllSkills(job.RequiredSkills) {
					continue
				}
				reason := fmt.Sprintf("rebalance: %s at %.0f%% vs mean %.0f%%", src.tech.ID, util[src.tech.ID], mean)
				if err := s.ReassignJob(ctx, job.ID, dst.tech.ID, reason); err != nil {
					s.Logger.Info().Err(err).Str("job_id", job.ID).Str("to", dst.tech.ID).Msg("rebalance move skipped")
					continue
				}
				hours := job.Duration().Hours()
				util[src.tech.ID] -= utilization(hours, src.tech.WeeklyCapacityHours)
				util[dst.tech.ID] += utilization(hours, dst.tech.WeeklyCapacityHours)
				report.Reassignments = append(report.Reassignments, models.Reassignment{
					JobID:            job.ID,
					FromTechnicianID: src.tech.ID,
					ToTechnicianID:   dst.tech.ID,
					Reason:           reason,
				})
				metrics.RebalanceMoves.Inc()
				moved++
				break
			}
		}
	}

	after := make([]float64, len(loads))
	for i, l := range loads {
		after[i] = util[l.tech.ID]
	}
	report.VarianceAfter = stat.PopVariance(after, nil)
	if report.VarianceBefore > 0 {
		report.ImprovementPercent = (report.VarianceBefore - report.VarianceAfter) / report.VarianceBefore * 100
	}
	s.Logger.Info().
		Int("moves", len(report.Reassignments)).
		Float64("variance_before", report.VarianceBefore).
		Float64("variance_after", report.VarianceAfter).
		Msg("workload rebalanced")
	return report, nil
}

// movable returns the jobs that have not started yet, lowest priority first.
func movable(jobs []models.ServiceJob) []models.ServiceJob {
	out := make([]models.ServiceJob, 0, len(jobs))
	for _, j := range jobs {
		if j.Status == models.JobPending || j.Status == models.JobAssigned {
			out = append(out, j)
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		ra, rb := out[a].Priority.Rank(), out[b].Priority.Rank()
		if ra != rb {
			return ra < rb
		}
		if !out[a].ScheduledStart.Equal(out[b].ScheduledStart) {
			return out[a].ScheduledStart.Before(out[b].ScheduledStart)
		}
		return out[a].ID < out[b].ID
	})
	return out
}
