package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hvac_dispatch/backend/internal/metrics"
	"github.com/hvac_dispatch/backend/internal/models"
)

type ScheduleRequest struct {
	JobID                    string          `json:"job_id,omitempty"`
	CustomerID               string          `json:"customer_id,omitempty"`
	Title                    string          `json:"title,omitempty"`
	RequiredSkills           []string        `json:"required_skills"`
	Priority                 models.Priority `json:"priority" validate:"omitempty,oneof=LOW MEDIUM HIGH CRITICAL EMERGENCY"`
	Location                 models.Location `json:"location"`
	EstimatedDurationMinutes int             `json:"estimated_duration_minutes" validate:"gt=0"`
	ScheduledStart           time.Time       `json:"scheduled_start" validate:"required"`
	PreferredTechnicianID    string          `json:"preferred_technician_id,omitempty"`
	ExcludeTechnicianIDs     []string        `json:"exclude_technician_ids,omitempty"`
}

func (r ScheduleRequest) criteria() models.AssignmentCriteria {
	return models.AssignmentCriteria{
		RequiredSkills:           r.RequiredSkills,
		Priority:                 r.Priority,
		Location:                 r.Location,
		EstimatedDurationMinutes: r.EstimatedDurationMinutes,
		ExcludeTechnicianIDs:     r.ExcludeTechnicianIDs,
	}
}

type ScheduleResult struct {
	JobID          string                   `json:"job_id"`
	TechnicianID   string                   `json:"technician_id"`
	ScheduledStart time.Time                `json:"scheduled_start"`
	ScheduledEnd   time.Time                `json:"scheduled_end"`
	Assignment     *models.AssignmentResult `json:"assignment,omitempty"`
}

var nextStatus = map[models.JobStatus]models.JobStatus{
	models.JobPending:    models.JobAssigned,
	models.JobAssigned:   models.JobEnRoute,
	models.JobEnRoute:    models.JobArrived,
	models.JobArrived:    models.JobInProgress,
	models.JobInProgress: models.JobCompleted,
}

// CanTransition reports whether the lifecycle allows moving a job from one status to another.
func CanTransition(from, to models.JobStatus) bool {
	if from.IsTerminal() {
		return false
	}
	if to == models.JobCancelled {
		return true
	}
	return nextStatus[from] == to
}

// ScheduleJob creates and commits a job. With a preferred technician only that timeline is
// checked; otherwise candidates are tried in ranked order and the first free timeline wins.
// Conflicts are returned, never resolved.
func (s *Service) ScheduleJob(ctx context.Context, req ScheduleRequest) (ScheduleResult, error) {
	defer metrics.Observe("schedule_job", time.Now())

	if req.EstimatedDurationMinutes <= 0 {
		return ScheduleResult{}, invalid("estimated_duration_minutes", "must be positive")
	}
	if req.ScheduledStart.IsZero() {
		return ScheduleResult{}, invalid("scheduled_start", "is required")
	}
	if err := checkStruct(req); err != nil {
		return ScheduleResult{}, err
	}
	if req.Priority == "" {
		req.Priority = models.PriorityMedium
	}

	if req.JobID != "" {
		// retries of one request race here; the first to commit wins, the rest see it
		unlock := s.jobLocks.lock(req.JobID)
		defer unlock()
		existing, err := s.Jobs.GetJob(ctx, req.JobID)
		switch {
		case err == nil:
			return s.repeatedSchedule(existing, req)
		case !errors.Is(err, models.ErrNotFound):
			return ScheduleResult{}, fmt.Errorf("get job %s: %w", req.JobID, err)
		}
	}

	now := s.now()
	job := models.ServiceJob{
		ID:                       req.JobID,
		CustomerID:               req.CustomerID,
		Title:                    req.Title,
		RequiredSkills:           req.RequiredSkills,
		Priority:                 req.Priority,
		EstimatedDurationMinutes: req.EstimatedDurationMinutes,
		Status:                   models.JobPending,
		Location:                 req.Location,
		CreatedAt:                now,
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	job.Reschedule(req.ScheduledStart.In(s.location()))

	if req.PreferredTechnicianID != "" {
		if _, err := s.Directory.GetTechnician(ctx, req.PreferredTechnicianID); err != nil {
			return ScheduleResult{}, fmt.Errorf("get technician %s: %w", req.PreferredTechnicianID, err)
		}
		committed, err := s.commitAssignment(ctx, job, req.PreferredTechnicianID)
		if err != nil {
			return ScheduleResult{}, err
		}
		return resultFor(committed, nil), nil
	}

	ranked, err := s.rank(ctx, req.criteria())
	if err != nil {
		if errors.Is(err, ErrNoCandidate) {
			metrics.Assignments.WithLabelValues("no_candidate").Inc()
		}
		return ScheduleResult{}, err
	}
	var firstConflict error
	for i, cand := range ranked {
		committed, err := s.commitAssignment(ctx, job, cand.tech.ID)
		var conflict *ConflictError
		if errors.As(err, &conflict) {
			if firstConflict == nil {
				firstConflict = err
			}
			continue
		}
		if err != nil {
			return ScheduleResult{}, err
		}
		assignment := s.buildResult(ctx, req.criteria(), ranked[i:])
		metrics.Assignments.WithLabelValues("scheduled").Inc()
		return resultFor(committed, &assignment), nil
	}
	return ScheduleResult{}, firstConflict
}

func (s *Service) repeatedSchedule(existing models.ServiceJob, req ScheduleRequest) (ScheduleResult, error) {
	sameStart := existing.ScheduledStart.Equal(req.ScheduledStart)
	sameTech := req.PreferredTechnicianID == "" || req.PreferredTechnicianID == existing.TechnicianID()
	if existing.Status == models.JobAssigned && sameStart && sameTech {
		return resultFor(existing, nil), nil
	}
	return ScheduleResult{}, invalid("job_id", "already exists with a different schedule")
}

// commitAssignment checks the technician's timeline and persists the job as ASSIGNED
// while holding the timeline lock.
func (s *Service) commitAssignment(ctx context.Context, job models.ServiceJob, technicianID string) (models.ServiceJob, error) {
	unlock := s.locks.lock(technicianID)
	defer unlock()

	conflicts, err := s.conflictsFor(ctx, technicianID, job.ScheduledStart, job.ScheduledEnd, job.ID)
	if err != nil {
		return models.ServiceJob{}, err
	}
	if len(conflicts) > 0 {
		metrics.Conflicts.WithLabelValues("schedule").Inc()
		s.Logger.Info().Str("job_id", job.ID).Str("technician_id", technicianID).Strs("conflicts", conflicts).Msg("schedule rejected")
		return models.ServiceJob{}, &ConflictError{TechnicianID: technicianID, JobIDs: conflicts}
	}

	tech := technicianID
	job.AssignedTechnicianID = &tech
	job.Status = models.JobAssigned
	job.UpdatedAt = s.now()
	if err := s.save(ctx, job, "schedule"); err != nil {
		return models.ServiceJob{}, err
	}
	s.Logger.Info().Str("job_id", job.ID).Str("technician_id", technicianID).Time("start", job.ScheduledStart).Msg("job scheduled")
	s.emit(ctx, models.EventJobScheduled, job, "", "")
	return job, nil
}

// RescheduleJob moves a job to newStart on the same technician. Moving to the current
// start is a no-op.
func (s *Service) RescheduleJob(ctx context.Context, jobID string, newStart time.Time) error {
	defer metrics.Observe("reschedule_job", time.Now())
	if newStart.IsZero() {
		return invalid("scheduled_start", "is required")
	}

	job, unlock, err := s.lockJob(ctx, jobID)
	if err != nil {
		return err
	}
	defer unlock()

	if job.Status.IsTerminal() {
		return fmt.Errorf("%w: job %s is %s", ErrInvalidTransition, job.ID, job.Status)
	}
	if job.ScheduledStart.Equal(newStart) {
		return nil
	}

	updated := job
	updated.Reschedule(newStart.In(s.location()))
	if techID := job.TechnicianID(); techID != "" {
		conflicts, err := s.conflictsFor(ctx, techID, updated.ScheduledStart, updated.ScheduledEnd, job.ID)
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			metrics.Conflicts.WithLabelValues("reschedule").Inc()
			s.Logger.Info().Str("job_id", job.ID).Str("technician_id", techID).Strs("conflicts", conflicts).Msg("reschedule rejected")
			return &ConflictError{TechnicianID: techID, JobIDs: conflicts}
		}
	}

	updated.UpdatedAt = s.now()
	if err := s.save(ctx, updated, "reschedule"); err != nil {
		return err
	}
	s.emit(ctx, models.EventJobRescheduled, updated, "", "moved from "+job.ScheduledStart.Format(time.RFC3339))
	return nil
}

// CancelJob cancels a job from any non-terminal state. Cancelling twice is a no-op.
func (s *Service) CancelJob(ctx context.Context, jobID, reason string) error {
	defer metrics.Observe("cancel_job", time.Now())

	job, unlock, err := s.lockJob(ctx, jobID)
	if err != nil {
		return err
	}
	defer unlock()

	if job.Status == models.JobCancelled {
		return nil
	}
	if !CanTransition(job.Status, models.JobCancelled) {
		return fmt.Errorf("%w: job %s is %s", ErrInvalidTransition, job.ID, job.Status)
	}
	job.Status = models.JobCancelled
	job.CancelReason = reason
	job.UpdatedAt = s.now()
	if err := s.Jobs.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	s.Logger.Info().Str("job_id", job.ID).Str("reason", reason).Msg("job cancelled")
	s.emit(ctx, models.EventJobCancelled, job, "", reason)
	return nil
}

// UpdateStatus advances a job one lifecycle step. Repeating the current status is a no-op.
func (s *Service) UpdateStatus(ctx context.Context, jobID string, status models.JobStatus) error {
	if status == models.JobCancelled {
		return s.CancelJob(ctx, jobID, "")
	}
	job, unlock, err := s.lockJob(ctx, jobID)
	if err != nil {
		return err
	}
	defer unlock()

	if job.Status == status {
		return nil
	}
	if !CanTransition(job.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, job.Status, status)
	}
	if status == models.JobAssigned && job.TechnicianID() == "" {
		return invalid("assigned_technician_id", "is required for ASSIGNED")
	}
	previous := job.Status
	job.Status = status
	job.UpdatedAt = s.now()
	if err := s.Jobs.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	s.emit(ctx, models.EventJobUpdated, job, "", fmt.Sprintf("%s -> %s", previous, status))
	return nil
}

// ReassignJob moves a PENDING or ASSIGNED job to another technician at the same time.
func (s *Service) ReassignJob(ctx context.Context, jobID, technicianID, reason string) error {
	defer metrics.Observe("reassign_job", time.Now())

	if technicianID == "" {
		return invalid("technician_id", "is required")
	}
	if _, err := s.Directory.GetTechnician(ctx, technicianID); err != nil {
		return fmt.Errorf("get technician %s: %w", technicianID, err)
	}
	job, unlock, err := s.lockJob(ctx, jobID, technicianID)
	if err != nil {
		return err
	}
	defer unlock()

	if job.Status != models.JobPending && job.Status != models.JobAssigned {
		return fmt.Errorf("%w: job %s is %s", ErrInvalidTransition, job.ID, job.Status)
	}
	from := job.TechnicianID()
	if from == technicianID {
		return nil
	}
	conflicts, err := s.conflictsFor(ctx, technicianID, job.ScheduledStart, job.ScheduledEnd, job.ID)
	if err != nil {
		return err
	}
	if len(conflicts) > 0 {
		metrics.Conflicts.WithLabelValues("reassign").Inc()
		return &ConflictError{TechnicianID: technicianID, JobIDs: conflicts}
	}

	to := technicianID
	job.AssignedTechnicianID = &to
	job.UpdatedAt = s.now()
	if err := s.save(ctx, job, "reassign"); err != nil {
		return err
	}
	s.Logger.Info().Str("job_id", job.ID).Str("from", from).Str("to", to).Msg("job reassigned")
	s.emit(ctx, models.EventJobUpdated, job, from, reason)
	return nil
}

// save persists a job whose timeline was already checked. A store that still reports an
// overlap (another instance committed first) turns into a ConflictError.
func (s *Service) save(ctx context.Context, job models.ServiceJob, operation string) error {
	err := s.Jobs.SaveJob(ctx, job)
	if errors.Is(err, models.ErrOverlap) {
		metrics.Conflicts.WithLabelValues(operation).Inc()
		ids, cerr := s.conflictsFor(ctx, job.TechnicianID(), job.ScheduledStart, job.ScheduledEnd, job.ID)
		if cerr != nil {
			return fmt.Errorf("save job %s: %w", job.ID, err)
		}
		return &ConflictError{TechnicianID: job.TechnicianID(), JobIDs: ids}
	}
	if err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	return nil
}

func (s *Service) GetJob(ctx context.Context, jobID string) (models.ServiceJob, error) {
	job, err := s.Jobs.GetJob(ctx, jobID)
	if err != nil {
		return models.ServiceJob{}, fmt.Errorf("get job %s: %w", jobID, err)
	}
	return job, nil
}

const lockJobAttempts = 3

// lockJob locks the timeline of the job's current technician (plus any extra timelines)
// and returns the job as re-read under the lock. If the job moved to another technician
// in between, it retries.
func (s *Service) lockJob(ctx context.Context, jobID string, extra ...string) (models.ServiceJob, func(), error) {
	for attempt := 0; attempt < lockJobAttempts; attempt++ {
		job, err := s.GetJob(ctx, jobID)
		if err != nil {
			return models.ServiceJob{}, nil, err
		}
		unlock := s.locks.lock(append([]string{job.TechnicianID()}, extra...)...)
		current, err := s.GetJob(ctx, jobID)
		if err != nil {
			unlock()
			return models.ServiceJob{}, nil, err
		}
		if current.TechnicianID() == job.TechnicianID() {
			return current, unlock, nil
		}
		unlock()
	}
	return models.ServiceJob{}, nil, fmt.Errorf("job %s keeps changing technician, giving up", jobID)
}

// emit publishes while the caller still holds the timeline lock, so events for one
// timeline leave in commit order. A failed publish is logged; the board refresh repairs it.
func (s *Service) emit(ctx context.Context, typ models.EventType, job models.ServiceJob, previousTech, reason string) {
	if s.Events == nil {
		return
	}
	ev := models.Event{
		Type:                 typ,
		JobID:                job.ID,
		TechnicianID:         job.TechnicianID(),
		PreviousTechnicianID: previousTech,
		Job:                  job,
		Reason:               reason,
		OccurredAt:           s.now(),
	}
	if _, err := s.Events.Publish(ctx, ev); err != nil {
		s.Logger.Error().Err(err).Str("job_id", job.ID).Str("event", string(typ)).Msg("event publish failed")
		return
	}
	metrics.EventsPublished.WithLabelValues(string(typ)).Inc()
}

func resultFor(job models.ServiceJob, assignment *models.AssignmentResult) ScheduleResult {
	return ScheduleResult{
		JobID:          job.ID,
		TechnicianID:   job.TechnicianID(),
		ScheduledStart: job.ScheduledStart,
		ScheduledEnd:   job.ScheduledEnd,
		Assignment:     assignment,
	}
}
