// Package performance supplies historical completion and satisfaction figures for
// technicians.
package performance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/hvac_dispatch/backend/internal/models"
)

type Source interface {
	Metrics(ctx context.Context, technicianID string) (models.PerformanceMetrics, error)
}

// HTTPSource reads GET {BaseURL}/technicians/{id}/performance.
type HTTPSource struct {
	BaseURL string
	Client  *http.Client
}

type responseBody struct {
	TechnicianID   string  `json:"technician_id"`
	CompletionRate float64 `json:"completion_rate"`
	Satisfaction   float64 `json:"satisfaction"`
}

func (h HTTPSource) Metrics(ctx context.Context, technicianID string) (models.PerformanceMetrics, error) {
	if h.Client == nil {
		h.Client = &http.Client{Timeout: 5 * time.Second}
	}

	endpoint := fmt.Sprintf("%s/technicians/%s/performance", h.BaseURL, url.PathEscape(technicianID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return models.PerformanceMetrics{}, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := h.Client.Do(req)
	if err != nil {
		return models.PerformanceMetrics{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return models.PerformanceMetrics{}, fmt.Errorf("performance for %s: %w", technicianID, models.ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return models.PerformanceMetrics{}, fmt.Errorf("performance service error: %s", resp.Status)
	}

	var r responseBody
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return models.PerformanceMetrics{}, err
	}
	return models.PerformanceMetrics{CompletionRate: r.CompletionRate, Satisfaction: r.Satisfaction}, nil
}
