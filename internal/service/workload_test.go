package service

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/hvac_dispatch/backend/internal/models"
)

// fullDays books technician id in 2h blocks from 08:00 to 16:00 on the given days.
func fullDays(id string, days ...int) []models.ServiceJob {
	var jobs []models.ServiceJob
	for _, d := range days {
		for h := 8; h < 16; h += 2 {
			jobs = append(jobs, assigned(fmt.Sprintf("%s-d%d-%02d", id, d, h), id, at(d, h, 0), 120))
		}
	}
	return jobs
}

// T1 at 95% (38h of 40h), T2 at 40% (16h of 40h).
func imbalancedWeek(skills []string) []models.ServiceJob {
	jobs := fullDays("T1", 0, 1, 2, 3)
	low := assigned("t1-low", "T1", at(4, 8, 0), 120)
	low.Priority = models.PriorityLow
	low.RequiredSkills = skills
	jobs = append(jobs, low,
		assigned("T1-d4-10", "T1", at(4, 10, 0), 120),
		assigned("T1-d4-12", "T1", at(4, 12, 0), 120))
	return append(jobs, fullDays("T2", 0, 1)...)
}

func TestGetWorkloadBalance(t *testing.T) {
	techs := []models.Technician{tech("T1", nil, "Warszawa"), tech("T2", nil, "Warszawa")}
	svc, _, _ := newTestService(t, techs, imbalancedWeek(nil))

	balance, err := svc.GetWorkloadBalance(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(balance) != 2 || balance[0].TechnicianID != "T2" || balance[1].TechnicianID != "T1" {
		t.Fatalf("expected ascending utilization, got %+v", balance)
	}
	if balance[0].UtilizationRate != 40 || balance[1].UtilizationRate != 95 {
		t.Fatalf("unexpected utilization: %v / %v", balance[0].UtilizationRate, balance[1].UtilizationRate)
	}
	if balance[1].CurrentTaskCount != 19 || balance[1].ScheduledHours != 38 {
		t.Fatalf("unexpected T1 totals: %+v", balance[1])
	}
	if balance[0].NextAvailableSlot == nil || !balance[0].NextAvailableSlot.Equal(at(2, 8, 0)) {
		t.Fatalf("expected T2 free on Wednesday morning, got %v", balance[0].NextAvailableSlot)
	}
	if balance[1].NextAvailableSlot == nil || !balance[1].NextAvailableSlot.Equal(at(4, 14, 0)) {
		t.Fatalf("expected T1 free on Friday afternoon, got %v", balance[1].NextAvailableSlot)
	}
}

func TestWorkloadIgnoresInactiveAndOtherWeeks(t *testing.T) {
	cancelled := assigned("c", "T1", at(0, 8, 0), 120)
	cancelled.Status = models.JobCancelled
	done := assigned("d", "T1", at(0, 10, 0), 120)
	done.Status = models.JobCompleted
	lastWeek := assigned("old", "T1", at(-3, 8, 0), 120)
	nextWeek := assigned("next", "T1", at(7, 8, 0), 120)
	zeroCap := tech("T0", nil, "Warszawa")
	zeroCap.WeeklyCapacityHours = 0

	svc, _, _ := newTestService(t,
		[]models.Technician{tech("T1", nil, "Warszawa"), zeroCap},
		[]models.ServiceJob{cancelled, done, lastWeek, nextWeek, assigned("live", "T1", at(1, 8, 0), 240)})

	balance, err := svc.GetWorkloadBalance(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, b := range balance {
		switch b.TechnicianID {
		case "T1":
			if b.CurrentTaskCount != 1 || b.ScheduledHours != 4 || b.UtilizationRate != 10 {
				t.Fatalf("only the live job should count, got %+v", b)
			}
		case "T0":
			if b.UtilizationRate != 0 {
				t.Fatalf("zero capacity must not divide by zero, got %+v", b)
			}
		}
	}
}

func TestWeekWindowStartsMonday(t *testing.T) {
	sunday := time.Date(2025, 3, 16, 22, 0, 0, 0, time.UTC)
	start, end := weekWindow(sunday)
	if !start.Equal(at(0, 0, 0)) || !end.Equal(at(7, 0, 0)) {
		t.Fatalf("unexpected week window %s - %s", start, end)
	}
}

func TestRebalanceMovesLowPriorityJob(t *testing.T) {
	techs := []models.Technician{tech("T1", []string{"AC"}, "Warszawa"), tech("T2", []string{"AC"}, "Warszawa")}
	svc, store, pub := newTestService(t, techs, imbalancedWeek([]string{"AC"}))
	ctx := context.Background()

	report, err := svc.RebalanceWorkload(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(report.MeanUtilization-67.5) > 1e-9 {
		t.Fatalf("expected mean 67.5, got %v", report.MeanUtilization)
	}
	if len(report.Reassignments) == 0 {
		t.Fatalf("expected at least one reassignment")
	}
	first := report.Reassignments[0]
	if first.JobID != "t1-low" || first.FromTechnicianID != "T1" || first.ToTechnicianID != "T2" || first.Reason == "" {
		t.Fatalf("expected the low priority job to move to T2, got %+v", first)
	}
	if len(report.Reassignments) > maxMovesPerTechnician {
		t.Fatalf("moved more than %d jobs: %+v", maxMovesPerTechnician, report.Reassignments)
	}
	if !(report.VarianceAfter < report.VarianceBefore) || report.ImprovementPercent <= 0 {
		t.Fatalf("expected variance to drop, got %+v", report)
	}

	moved, _ := store.GetJob(ctx, "t1-low")
	if moved.TechnicianID() != "T2" {
		t.Fatalf("move was not committed: %+v", moved)
	}
	if len(pub.Events()) != len(report.Reassignments) {
		t.Fatalf("expected one event per move, got %d", len(pub.Events()))
	}

	// the second move skipped every slot where T2 was already busy
	for _, r := range report.Reassignments {
		j, _ := store.GetJob(ctx, r.JobID)
		if ids, _ := svc.CheckConflicts(ctx, "T2", j.ScheduledStart, j.EstimatedDurationMinutes, j.ID); len(ids) != 0 {
			t.Fatalf("rebalance created a conflict for %s: %v", r.JobID, ids)
		}
	}
}

func TestRebalanceRequiresSkills(t *testing.T) {
	techs := []models.Technician{tech("T1", []string{"AC"}, "Warszawa"), tech("T2", []string{"HEATING"}, "Warszawa")}
	jobs := imbalancedWeek([]string{"AC"})
	for i := range jobs {
		if jobs[i].TechnicianID() == "T1" {
			jobs[i].RequiredSkills = []string{"AC"}
		}
	}
	svc, _, _ := newTestService(t, techs, jobs)

	report, err := svc.RebalanceWorkload(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.Reassignments) != 0 {
		t.Fatalf("T2 lacks AC and must not receive jobs, got %+v", report.Reassignments)
	}
	if report.ImprovementPercent != 0 {
		t.Fatalf("expected no improvement, got %v", report.ImprovementPercent)
	}
}

func TestRebalanceBalancedTeamIsNoop(t *testing.T) {
	techs := []models.Technician{tech("T1", nil, "Warszawa"), tech("T2", nil, "Warszawa")}
	svc, _, pub := newTestService(t, techs, append(fullDays("T1", 0), fullDays("T2", 1)...))

	report, err := svc.RebalanceWorkload(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.Reassignments) != 0 || report.VarianceBefore != 0 || len(pub.Events()) != 0 {
		t.Fatalf("expected no moves, got %+v", report)
	}
}
