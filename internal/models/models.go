package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound = errors.New("record not found")

	// ErrOverlap is returned by stores that refuse a job overlapping another one on the
	// same technician's timeline.
	ErrOverlap = errors.New("overlapping job interval")
)

type TechnicianStatus string

const (
	TechnicianAvailable TechnicianStatus = "AVAILABLE"
	TechnicianBusy      TechnicianStatus = "BUSY"
	TechnicianEnRoute   TechnicianStatus = "EN_ROUTE"
	TechnicianOnBreak   TechnicianStatus = "ON_BREAK"
	TechnicianOffline   TechnicianStatus = "OFFLINE"
)

type Priority string

const (
	PriorityLow       Priority = "LOW"
	PriorityMedium    Priority = "MEDIUM"
	PriorityHigh      Priority = "HIGH"
	PriorityCritical  Priority = "CRITICAL"
	PriorityEmergency Priority = "EMERGENCY"
)

// Rank orders priorities from LOW (0) to EMERGENCY (4). Unknown values rank as MEDIUM.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 0
	case PriorityHigh:
		return 2
	case PriorityCritical:
		return 3
	case PriorityEmergency:
		return 4
	default:
		return 1
	}
}

type JobStatus string

const (
	JobPending    JobStatus = "PENDING"
	JobAssigned   JobStatus = "ASSIGNED"
	JobEnRoute    JobStatus = "EN_ROUTE"
	JobArrived    JobStatus = "ARRIVED"
	JobInProgress JobStatus = "IN_PROGRESS"
	JobCompleted  JobStatus = "COMPLETED"
	JobCancelled  JobStatus = "CANCELLED"
)

func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobCancelled
}

type Location struct {
	Lat     *float64 `json:"lat,omitempty"`
	Lon     *float64 `json:"lon,omitempty"`
	Region  string   `json:"region"`
	Address string   `json:"address,omitempty"`
}

func (l Location) HasCoordinates() bool {
	return l.Lat != nil && l.Lon != nil
}

// SameRegion compares regions ignoring case and surrounding spaces. Empty regions never match.
func (l Location) SameRegion(other Location) bool {
	a := strings.TrimSpace(l.Region)
	b := strings.TrimSpace(other.Region)
	if a == "" || b == "" {
		return false
	}
	return strings.EqualFold(a, b)
}

type WorkingHours struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Window returns the working interval [start, end) on the calendar day of date,
// in date's location.
func (w WorkingHours) Window(date time.Time) (time.Time, time.Time, error) {
	sh, sm, err := parseClock(w.Start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("working hours start: %w", err)
	}
	eh, em, err := parseClock(w.End)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("working hours end: %w", err)
	}
	y, mo, d := date.Date()
	loc := date.Location()
	start := time.Date(y, mo, d, sh, sm, 0, 0, loc)
	end := time.Date(y, mo, d, eh, em, 0, 0, loc)
	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("working hours %s-%s are empty", w.Start, w.End)
	}
	return start, end, nil
}

func parseClock(v string) (int, int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(v))
	if err != nil {
		return 0, 0, err
	}
	return t.Hour(), t.Minute(), nil
}

type Technician struct {
	ID                  string           `json:"id"`
	Name                string           `json:"name"`
	Status              TechnicianStatus `json:"status"`
	Skills              []string         `json:"skills"`
	Location            *Location        `json:"location,omitempty"`
	WorkingHours        WorkingHours     `json:"working_hours"`
	WeeklyCapacityHours float64          `json:"weekly_capacity_hours"`
	UpdatedAt           time.Time        `json:"updated_at"`
}

// HasSkill matches case-insensitively, like skill tags typed by dispatchers.
func (t Technician) HasSkill(skill string) bool {
	for _, s := range t.Skills {
		if strings.EqualFold(strings.TrimSpace(s), strings.TrimSpace(skill)) {
			return true
		}
	}
	return false
}

func (t Technician) HasAllSkills(required []string) bool {
	for _, r := range required {
		if !t.HasSkill(r) {
			return false
		}
	}
	return true
}

type ServiceJob struct {
	ID                       string    `json:"id"`
	CustomerID               string    `json:"customer_id,omitempty"`
	Title                    string    `json:"title,omitempty"`
	RequiredSkills           []string  `json:"required_skills"`
	Priority                 Priority  `json:"priority"`
	EstimatedDurationMinutes int       `json:"estimated_duration_minutes"`
	ScheduledStart           time.Time `json:"scheduled_start"`
	ScheduledEnd             time.Time `json:"scheduled_end"`
	AssignedTechnicianID     *string   `json:"assigned_technician_id"`
	Status                   JobStatus `json:"status"`
	Location                 Location  `json:"location"`
	CancelReason             string    `json:"cancel_reason,omitempty"`
	CreatedAt                time.Time `json:"created_at"`
	UpdatedAt                time.Time `json:"updated_at"`
}

func (j ServiceJob) Duration() time.Duration {
	return time.Duration(j.EstimatedDurationMinutes) * time.Minute
}

// Reschedule sets the start and derives the end from the estimated duration.
func (j *ServiceJob) Reschedule(start time.Time) {
	j.ScheduledStart = start
	j.ScheduledEnd = start.Add(j.Duration())
}

// Occupies reports whether the job holds its slot on the technician's timeline.
func (j ServiceJob) Occupies() bool {
	return j.Status != JobCancelled
}

// Active jobs still count towards a technician's workload.
func (j ServiceJob) Active() bool {
	return !j.Status.IsTerminal()
}

func (j ServiceJob) TechnicianID() string {
	if j.AssignedTechnicianID == nil {
		return ""
	}
	return *j.AssignedTechnicianID
}

func (j ServiceJob) Overlaps(start, end time.Time) bool {
	return j.ScheduledStart.Before(end) && start.Before(j.ScheduledEnd)
}
