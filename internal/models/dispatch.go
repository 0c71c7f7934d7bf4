package models

import "time"

type AssignmentCriteria struct {
	RequiredSkills           []string `json:"required_skills"`
	Priority                 Priority `json:"priority" validate:"omitempty,oneof=LOW MEDIUM HIGH CRITICAL EMERGENCY"`
	Location                 Location `json:"location"`
	EstimatedDurationMinutes int      `json:"estimated_duration_minutes" validate:"gt=0"`
	PreferredTechnicianID    string   `json:"preferred_technician_id,omitempty"`
	ExcludeTechnicianIDs     []string `json:"exclude_technician_ids,omitempty"`
}

type TechnicianScore struct {
	TechnicianID      string   `json:"technician_id"`
	SkillsScore       float64  `json:"skills_score"`
	LocationScore     float64  `json:"location_score"`
	WorkloadScore     float64  `json:"workload_score"`
	PerformanceScore  float64  `json:"performance_score"`
	AvailabilityScore float64  `json:"availability_score"`
	TotalScore        float64  `json:"total_score"`
	Reasoning         []string `json:"reasoning"`
}

type AssignmentResult struct {
	TechnicianID string            `json:"technician_id"`
	Score        TechnicianScore   `json:"score"`
	Alternatives []TechnicianScore `json:"alternatives"`
	DistanceKm   *float64          `json:"distance_km,omitempty"`
	ETAMinutes   *int              `json:"eta_minutes,omitempty"`
	Confidence   int               `json:"confidence"`
	Warnings     []string          `json:"warnings"`
}

type WorkloadBalance struct {
	TechnicianID      string     `json:"technician_id"`
	CurrentTaskCount  int        `json:"current_task_count"`
	ScheduledHours    float64    `json:"scheduled_hours"`
	CapacityHours     float64    `json:"capacity_hours"`
	UtilizationRate   float64    `json:"utilization_rate"`
	NextAvailableSlot *time.Time `json:"next_available_slot"`
}

type Reassignment struct {
	JobID            string `json:"job_id"`
	FromTechnicianID string `json:"from_technician_id"`
	ToTechnicianID   string `json:"to_technician_id"`
	Reason           string `json:"reason"`
}

type RebalanceReport struct {
	Reassignments      []Reassignment `json:"reassignments"`
	MeanUtilization    float64        `json:"mean_utilization"`
	VarianceBefore     float64        `json:"variance_before"`
	VarianceAfter      float64        `json:"variance_after"`
	ImprovementPercent float64        `json:"improvement_percent"`
}

type PerformanceMetrics struct {
	CompletionRate float64 `json:"completion_rate"`
	Satisfaction   float64 `json:"satisfaction"`
}

type Estimate struct {
	DistanceKm float64 `json:"distance_km"`
	ETAMinutes int     `json:"eta_minutes"`
}

type EventType string

const (
	EventJobScheduled   EventType = "JOB_SCHEDULED"
	EventJobUpdated     EventType = "JOB_UPDATED"
	EventJobCancelled   EventType = "JOB_CANCELLED"
	EventJobRescheduled EventType = "JOB_RESCHEDULED"
)

// Event is a job lifecycle notification. Sequence increases by one per event within
// a single Origin (one process), so a listener can detect gaps per origin.
type Event struct {
	Origin               string     `json:"origin,omitempty"`
	Sequence             uint64     `json:"sequence"`
	Type                 EventType  `json:"type"`
	JobID                string     `json:"job_id"`
	TechnicianID         string     `json:"technician_id,omitempty"`
	PreviousTechnicianID string     `json:"previous_technician_id,omitempty"`
	Job                  ServiceJob `json:"job"`
	Reason               string     `json:"reason,omitempty"`
	OccurredAt           time.Time  `json:"occurred_at"`
}
