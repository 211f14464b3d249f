// Package api is a client for the MRI screening REST service. Every endpoint
// answers with a JSON envelope {success, data, error}.
package api

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"mri-viewer/internal/viewport"
)

// Envelope is the response wrapper used by every endpoint.
type Envelope[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Error   string `json:"error,omitempty"`
}

// Prediction is the result of analysing one image.
type Prediction struct {
	ID              string                      `json:"id"`
	Timestamp       Time                        `json:"timestamp"`
	HasTumor        bool                        `json:"hasTumor"`
	Confidence      float64                     `json:"confidence"`
	TumorPercentage float64                     `json:"tumor_percentage"`
	ImageURL        string                      `json:"image_url,omitempty"`
	HeatmapURL      string                      `json:"heatmap_url,omitempty"`
	Regions         []viewport.AnnotationRegion `json:"regions,omitempty"`
	ModelName       string                      `json:"model_name,omitempty"`
	ModelVersion    string                      `json:"model_version,omitempty"`
}

// Verdict returns a short human readable summary.
func (p Prediction) Verdict() string {
	if p.HasTumor {
		return "Tumor detected"
	}
	return "No tumor detected"
}

// ModelVersion describes one trained version of a model.
type ModelVersion struct {
	Version   string  `json:"version"`
	Accuracy  float64 `json:"accuracy,omitempty"`
	CreatedAt string  `json:"created_at,omitempty"`
}

// Models is the payload of GET /api/models.
type Models struct {
	Models         map[string][]ModelVersion `json:"models"`
	CurrentModel   string                    `json:"current_model"`
	CurrentVersion string                    `json:"current_version"`
}

// Names returns the model names in a stable order.
func (m Models) Names() []string {
	names := make([]string, 0, len(m.Models))
	for name := range m.Models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Health is the payload of GET /api/health.
type Health struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// Time accepts the timestamp formats the service emits: RFC 3339 with or
// without a zone, or unix seconds.
type Time struct {
	time.Time
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func (t *Time) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" || s == `""` {
		t.Time = time.Time{}
		return nil
	}
	if !strings.HasPrefix(s, `"`) {
		var secs float64
		if err := json.Unmarshal(b, &secs); err != nil {
			return fmt.Errorf("invalid timestamp %s: %w", s, err)
		}
		whole := math.Floor(secs)
		t.Time = time.Unix(int64(whole), int64((secs-whole)*float64(time.Second))).UTC()
		return nil
	}

	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return err
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, str); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("invalid timestamp %q", str)
}

func (t Time) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}
