package ai

import (
	"context"

	"github.com/civiclens/backend/internal/models"
)

// Classification is the simulated image/issue classification outcome.
// Confidence is in [0,1] and feeds the priority scorer.
type Classification struct {
	DetectedType models.IssueType
	Confidence   float64
	ModelVersion string
}

type Classifier interface {
	Classify(ctx context.Context, r models.Report) (Classification, int64, error)
}
