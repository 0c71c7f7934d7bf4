package performance

import (
	"context"
	"hash/fnv"

	"github.com/hvac_dispatch/backend/internal/models"
)

// MockSource derives stable placeholder figures from the technician id. Used when no
// performance service is configured.
type MockSource struct{}

func (MockSource) Metrics(_ context.Context, technicianID string) (models.PerformanceMetrics, error) {
	f := fnv.New64a()
	_, _ = f.Write([]byte(technicianID))
	h := f.Sum64()

	completion := []float64{0.78, 0.85, 0.9, 0.94, 0.98}
	satisfaction := []float64{3.6, 4.0, 4.3, 4.6, 4.9}

	return models.PerformanceMetrics{
		CompletionRate: completion[h%uint64(len(completion))],
		Satisfaction:   satisfaction[(h/7)%uint64(len(satisfaction))],
	}, nil
}
