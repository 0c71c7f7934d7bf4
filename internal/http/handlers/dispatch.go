package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hvac_dispatch/backend/internal/models"
	"github.com/hvac_dispatch/backend/internal/service"
)

// @Summary List technicians
// @Tags technicians
// @Produce json
// @Param skill query string false "Required skill"
// @Param status query string false "Technician status"
// @Success 200 {object} map[string]any
// @Router /api/technicians [get]
func (h *Handler) TechniciansList(c *gin.Context) {
	skill := strings.TrimSpace(c.Query("skill"))
	status := strings.ToUpper(strings.TrimSpace(c.Query("status")))

	techs, err := h.Store.ListTechnicians(c.Request.Context())
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to list technicians", err.Error())
		return
	}
	items := []models.Technician{}
	for _, t := range techs {
		if skill != "" && !t.HasSkill(skill) {
			continue
		}
		if status != "" && string(t.Status) != status {
			continue
		}
		items = append(items, t)
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// @Summary Free start times for a technician
// @Tags technicians
// @Produce json
// @Param id path string true "Technician ID"
// @Param date query string true "Day, YYYY-MM-DD"
// @Param duration query int true "Job duration in minutes"
// @Success 200 {object} map[string]any
// @Failure 404 {object} map[string]any
// @Router /api/technicians/{id}/slots [get]
func (h *Handler) AvailableSlots(c *gin.Context) {
	id := c.Param("id")
	date, err := time.ParseInLocation(time.DateOnly, c.Query("date"), h.location())
	if err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "date must be YYYY-MM-DD", c.Query("date"))
		return
	}
	duration, ok := queryInt(c, "duration")
	if !ok {
		return
	}

	slots, err := h.Dispatch.GetAvailableSlots(c.Request.Context(), id, date, duration)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"technician_id": id, "date": date.Format(time.DateOnly), "slots": slots})
}

// @Summary Check a proposed interval for conflicts
// @Tags technicians
// @Produce json
// @Param id path string true "Technician ID"
// @Param start query string true "RFC3339 start"
// @Param duration query int true "Duration in minutes"
// @Param exclude_job_id query string false "Job to ignore"
// @Success 200 {object} map[string]any
// @Router /api/technicians/{id}/conflicts [get]
func (h *Handler) Conflicts(c *gin.Context) {
	id := c.Param("id")
	start, err := time.Parse(time.RFC3339, c.Query("start"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "start must be RFC3339", c.Query("start"))
		return
	}
	duration, ok := queryInt(c, "duration")
	if !ok {
		return
	}

	ids, err := h.Dispatch.CheckConflicts(c.Request.Context(), id, start, duration, c.Query("exclude_job_id"))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"has_conflict": len(ids) > 0, "conflicting_job_ids": ids})
}

// @Summary Rank technicians for a job
// @Tags dispatch
// @Accept json
// @Produce json
// @Param criteria body models.AssignmentCriteria true "Job requirements"
// @Success 200 {object} models.AssignmentResult
// @Failure 422 {object} map[string]any
// @Router /api/dispatch/optimal [post]
func (h *Handler) FindOptimal(c *gin.Context) {
	var req models.AssignmentCriteria
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	result, err := h.Dispatch.FindOptimalTechnician(c.Request.Context(), req)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// @Summary Schedule a job
// @Tags jobs
// @Accept json
// @Produce json
// @Param job body service.ScheduleRequest true "Job to schedule"
// @Success 201 {object} service.ScheduleResult
// @Failure 409 {object} map[string]any
// @Failure 422 {object} map[string]any
// @Router /api/jobs [post]
func (h *Handler) ScheduleJob(c *gin.Context) {
	var req service.ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	result, err := h.Dispatch.ScheduleJob(c.Request.Context(), req)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h *Handler) GetJob(c *gin.Context) {
	job, err := h.Dispatch.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

type RescheduleRequest struct {
	ScheduledStart time.Time `json:"scheduled_start" validate:"required"`
}

// @Summary Move a job to a new start time
// @Tags jobs
// @Accept json
// @Produce json
// @Param id path string true "Job ID"
// @Param body body RescheduleRequest true "New start"
// @Success 200 {object} models.ServiceJob
// @Failure 409 {object} map[string]any
// @Router /api/jobs/{id}/reschedule [post]
func (h *Handler) RescheduleJob(c *gin.Context) {
	var req RescheduleRequest
	if !h.bindJSON(c, &req) {
		return
	}
	if err := h.Dispatch.RescheduleJob(c.Request.Context(), c.Param("id"), req.ScheduledStart); err != nil {
		h.writeServiceError(c, err)
		return
	}
	h.GetJob(c)
}

type CancelRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) CancelJob(c *gin.Context) {
	var req CancelRequest
	if c.Request.ContentLength != 0 && !h.bindJSON(c, &req) {
		return
	}
	if err := h.Dispatch.CancelJob(c.Request.Context(), c.Param("id"), req.Reason); err != nil {
		h.writeServiceError(c, err)
		return
	}
	h.GetJob(c)
}

type StatusRequest struct {
	Status models.JobStatus `json:"status" validate:"required,oneof=PENDING ASSIGNED EN_ROUTE ARRIVED IN_PROGRESS COMPLETED CANCELLED"`
}

func (h *Handler) UpdateStatus(c *gin.Context) {
	var req StatusRequest
	if !h.bindJSON(c, &req) {
		return
	}
	if err := h.Dispatch.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status); err != nil {
		h.writeServiceError(c, err)
		return
	}
	h.GetJob(c)
}

type ReassignRequest struct {
	TechnicianID string `json:"technician_id" validate:"required"`
	Reason       string `json:"reason" validate:"required"`
}

// @Summary Move a job to another technician
// @Tags jobs
// @Accept json
// @Produce json
// @Param id path string true "Job ID"
// @Param body body ReassignRequest true "Target technician"
// @Success 200 {object} models.ServiceJob
// @Failure 409 {object} map[string]any
// @Router /api/jobs/{id}/reassign [post]
func (h *Handler) ReassignJob(c *gin.Context) {
	var req ReassignRequest
	if !h.bindJSON(c, &req) {
		return
	}
	if err := h.Dispatch.ReassignJob(c.Request.Context(), c.Param("id"), req.TechnicianID, req.Reason); err != nil {
		h.writeServiceError(c, err)
		return
	}
	h.GetJob(c)
}

// @Summary Weekly utilization per technician
// @Tags workload
// @Produce json
// @Success 200 {object} map[string]any
// @Router /api/workload [get]
func (h *Handler) Workload(c *gin.Context) {
	balance, err := h.Dispatch.GetWorkloadBalance(c.Request.Context())
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": balance})
}

// @Summary Move jobs from overloaded to underloaded technicians
// @Tags workload
// @Produce json
// @Success 200 {object} models.RebalanceReport
// @Router /api/workload/rebalance [post]
func (h *Handler) Rebalance(c *gin.Context) {
	report, err := h.Dispatch.RebalanceWorkload(c.Request.Context())
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
