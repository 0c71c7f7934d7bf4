package handlers

import (
	"encoding/csv"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hvac_dispatch/backend/internal/db"
	"github.com/hvac_dispatch/backend/internal/models"
)

const (
	defaultWorkStart      = "08:00"
	defaultWorkEnd        = "16:00"
	defaultWeeklyCapacity = 40
)

type ImportSummary struct {
	Parsed   int      `json:"parsed"`
	Imported int      `json:"imported"`
	Errors   []string `json:"errors"`
}

// @Summary Import technicians CSV
// @Description Upsert technicians from a CSV file. Rows are matched by id.
// @Tags import
// @Accept multipart/form-data
// @Produce json
// @Param technicians formData file true "technicians.csv"
// @Success 200 {object} ImportSummary
// @Failure 400 {object} map[string]any
// @Router /api/technicians/import [post]
func (h *Handler) ImportTechnicians(c *gin.Context) {
	file, err := c.FormFile("technicians")
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "technicians file required", nil)
		return
	}
	if !validateExt(file.Filename) {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "file must be .csv", nil)
		return
	}

	techs, errs := parseTechniciansCSV(file)
	summary := ImportSummary{Parsed: len(techs), Errors: errs}
	if summary.Errors == nil {
		summary.Errors = []string{}
	}
	if len(errs) > 0 {
		writeError(c, http.StatusBadRequest, "CSV_PARSE_ERROR", "CSV validation errors", errs)
		return
	}

	if err := h.Store.Import(c.Request.Context(), db.Seed{Technicians: techs}); err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to import technicians", err.Error())
		return
	}
	summary.Imported = len(techs)
	if h.Board != nil {
		h.Board.Invalidate()
	}
	h.log(c).Info().Int("technicians", summary.Imported).Msg("technicians imported")
	c.JSON(http.StatusOK, summary)
}

func parseTechniciansCSV(file *multipart.FileHeader) ([]models.Technician, []string) {
	f, err := file.Open()
	if err != nil {
		return nil, []string{err.Error()}
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.TrimLeadingSpace = true
	headers, err := reader.Read()
	if err != nil {
		return nil, []string{"failed to read header"}
	}
	index := headerIndex(headers)
	var errors []string
	var out []models.Technician

	line := 1
	for {
		rec, err := reader.Read()
		line++
		if err == io.EOF {
			break
		}
		if err != nil {
			errors = append(errors, err.Error())
			continue
		}

		id := getFieldAny(rec, index, "id", "technician_id", "technician id")
		name := getFieldAny(rec, index, "name", "full_name")
		status := strings.ToUpper(getFieldAny(rec, index, "status"))
		skills := normalizeSkills(getFieldAny(rec, index, "skills", "certifications"))
		region := getFieldAny(rec, index, "region", "city", "service_area")
		address := getFieldAny(rec, index, "address", "base_address")
		start := getFieldAny(rec, index, "work_start", "start")
		end := getFieldAny(rec, index, "work_end", "end")
		capacityStr := getFieldAny(rec, index, "weekly_capacity_hours", "capacity")

		if id == "" {
			id = fmt.Sprintf("TECH-%03d", len(out)+1)
		}
		if name == "" {
			errors = append(errors, fmt.Sprintf("line %d: technician name required", line))
			continue
		}
		if status == "" {
			status = string(models.TechnicianAvailable)
		}
		if !validStatus(models.TechnicianStatus(status)) {
			errors = append(errors, fmt.Sprintf("line %d: unknown status %q", line, status))
			continue
		}
		if start == "" {
			start = defaultWorkStart
		}
		if end == "" {
			end = defaultWorkEnd
		}
		hours := models.WorkingHours{Start: start, End: end}
		if _, _, err := hours.Window(time.Now()); err != nil {
			errors = append(errors, fmt.Sprintf("line %d: %v", line, err))
			continue
		}
		capacity := float64(defaultWeeklyCapacity)
		if capacityStr != "" {
			capacity, err = strconv.ParseFloat(capacityStr, 64)
			if err != nil || capacity < 0 {
				errors = append(errors, fmt.Sprintf("line %d: invalid weekly capacity %q", line, capacityStr))
				continue
			}
		}

		t := models.Technician{
			ID:                  id,
			Name:                name,
			Status:              models.TechnicianStatus(status),
			Skills:              skills,
			WorkingHours:        hours,
			WeeklyCapacityHours: capacity,
			UpdatedAt:           time.Now().UTC(),
		}
		if loc := parseLocation(rec, index, region, address); loc != nil {
			t.Location = loc
		}
		out = append(out, t)
	}
	return out, errors
}

func parseLocation(rec []string, index map[string]int, region, address string) *models.Location {
	latStr := getFieldAny(rec, index, "lat", "latitude")
	lonStr := getFieldAny(rec, index, "lon", "longitude")
	if region == "" && address == "" && latStr == "" && lonStr == "" {
		return nil
	}
	loc := &models.Location{Region: region, Address: address}
	lat, errLat := strconv.ParseFloat(latStr, 64)
	lon, errLon := strconv.ParseFloat(lonStr, 64)
	if errLat == nil && errLon == nil {
		loc.Lat, loc.Lon = &lat, &lon
	}
	return loc
}

func validStatus(s models.TechnicianStatus) bool {
	switch s {
	case models.TechnicianAvailable, models.TechnicianBusy, models.TechnicianEnRoute, models.TechnicianOnBreak, models.TechnicianOffline:
		return true
	}
	return false
}

func headerIndex(headers []string) map[string]int {
	idx := map[string]int{}
	for i, h := range headers {
		idx[normalizeHeader(h)] = i
	}
	return idx
}

func getField(rec []string, idx map[string]int, name string) string {
	pos, ok := idx[name]
	if !ok || pos >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[pos])
}

func getFieldAny(rec []string, idx map[string]int, names ...string) string {
	for _, name := range names {
		if v := getField(rec, idx, normalizeHeader(name)); v != "" {
			return v
		}
	}
	return ""
}

func normalizeHeader(h string) string {
	h = strings.ReplaceAll(h, "\ufeff", "")
	return strings.ToLower(strings.TrimSpace(h))
}

// normalizeSkills splits on commas or semicolons, upper-cases and drops duplicates.
func normalizeSkills(raw string) []string {
	raw = strings.ReplaceAll(raw, ";", ",")
	seen := map[string]struct{}{}
	out := []string{}
	for _, p := range strings.Split(raw, ",") {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

func validateExt(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".csv"
}
