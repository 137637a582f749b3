package ai

import (
	"context"
	"time"

	"github.com/civiclens/backend/internal/models"
	"github.com/civiclens/backend/internal/utils"
)

// MockClassifier produces deterministic results keyed on the report id,
// so the same submission always classifies the same way.
type MockClassifier struct {
	ModelVersion string
}

func (m MockClassifier) Classify(ctx context.Context, r models.Report) (Classification, int64, error) {
	start := time.Now()
	h := utils.FNV64a(r.ID)

	confidences := []float64{0.35, 0.50, 0.62, 0.75, 0.88, 0.97}
	confidence := confidences[h%uint64(len(confidences))]

	detected := r.IssueType
	if h%7 == 0 {
		// Occasional disagreement with the submitter's own category.
		types := []models.IssueType{
			models.IssuePothole,
			models.IssueGarbage,
			models.IssueStreetlight,
			models.IssueDrainage,
			models.IssueRoadDamage,
		}
		detected = types[(h/7)%uint64(len(types))]
	}

	result := Classification{
		DetectedType: detected,
		Confidence:   confidence,
		ModelVersion: m.ModelVersion,
	}
	return result, time.Since(start).Milliseconds(), nil
}
