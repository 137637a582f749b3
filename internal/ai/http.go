package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/civiclens/backend/internal/models"
)

type HTTPClassifier struct {
	BaseURL string
	Client  *http.Client
}

type requestBody struct {
	ReportID    string   `json:"report_id"`
	IssueType   string   `json:"issue_type"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
}

type responseBody struct {
	ReportID     string  `json:"report_id"`
	DetectedType string  `json:"detected_type"`
	Confidence   float64 `json:"confidence"`
	ModelVersion string  `json:"model_version"`
}

func (h HTTPClassifier) Classify(ctx context.Context, r models.Report) (Classification, int64, error) {
	if h.Client == nil {
		h.Client = &http.Client{Timeout: 15 * time.Second}
	}

	payload := requestBody{
		ReportID:    r.ID,
		IssueType:   string(r.IssueType),
		Title:       r.Title,
		Description: r.Description,
		Latitude:    r.Latitude,
		Longitude:   r.Longitude,
	}
	b, _ := json.Marshal(payload)
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.BaseURL+"/classify", bytes.NewBuffer(b))
	if err != nil {
		return Classification{}, 0, err
	}

	req.Header.Set("Content-Type", "application/json")
	resp, err := h.Client.Do(req)
	if err != nil {
		return Classification{}, time.Since(start).Milliseconds(), err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Classification{}, time.Since(start).Milliseconds(), errors.New("classifier service error")
	}

	var body responseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Classification{}, time.Since(start).Milliseconds(), err
	}

	result := Classification{
		DetectedType: models.IssueType(body.DetectedType),
		Confidence:   body.Confidence,
		ModelVersion: body.ModelVersion,
	}
	return result, time.Since(start).Milliseconds(), nil
}
