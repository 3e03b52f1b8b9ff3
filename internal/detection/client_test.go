package detection

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"

	"github.com/DarsanV/HackaThrone-team91/internal/cache"
	"github.com/DarsanV/HackaThrone-team91/internal/domain"
)

const testBaseURL = "http://detector.test"

const analyzeResponse = `{
  "detections": [
    {"class": "no_helmet", "confidence": 0.71},
    {"class": "no_helmet", "confidence": 0.93},
    {"class": "triple_riding", "confidence": 0.2}
  ],
  "plate": {"text": "KA01AB1234", "confidence": 0.88},
  "person_count": 2,
  "geotag": {"latitude": 12.9716, "longitude": 77.5946},
  "captured_at": "2025-03-01T09:55:00Z"
}`

func setupHTTPMock(t *testing.T) {
	t.Helper()
	httpmock.Activate()
	t.Cleanup(httpmock.DeactivateAndReset)
}

func testReport() *domain.ViolationReport {
	return &domain.ViolationReport{
		ID:            "r-1",
		ViolationType: domain.ViolationNoHelmet,
		Evidence: []domain.Evidence{
			{Kind: domain.EvidencePhoto, Ref: "evidence/a.jpg"},
			{Kind: domain.EvidenceVideoFrame, Ref: "evidence/b.jpg"},
		},
	}
}

func TestClient_Analyze(t *testing.T) {
	setupHTTPMock(t)

	var got analyzeRequest
	httpmock.RegisterResponder(http.MethodPost, testBaseURL+"/v1/analyze",
		func(req *http.Request) (*http.Response, error) {
			if err := json.NewDecoder(req.Body).Decode(&got); err != nil {
				return httpmock.NewStringResponse(http.StatusBadRequest, err.Error()), nil
			}
			return httpmock.NewStringResponse(http.StatusOK, analyzeResponse), nil
		})

	c := New(domain.DetectionConfig{BaseURL: testBaseURL + "/"}, nil, nil)
	res, err := c.Analyze(context.Background(), testReport())
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if got.ReportID != "r-1" || got.ViolationType != domain.ViolationNoHelmet || len(got.Evidence) != 2 {
		t.Errorf("Unexpected request payload: %+v", got)
	}
	if res.Plate == nil || res.Plate.Text != "KA01AB1234" {
		t.Errorf("Unexpected plate: %+v", res.Plate)
	}
	if res.PersonCount != 2 {
		t.Errorf("Expected person_count 2, got %d", res.PersonCount)
	}
	if res.CapturedAt == nil || !res.CapturedAt.Equal(time.Date(2025, 3, 1, 9, 55, 0, 0, time.UTC)) {
		t.Errorf("Unexpected captured_at: %v", res.CapturedAt)
	}
	if c := res.ConfidenceFor(domain.ViolationNoHelmet); c != 0.93 {
		t.Errorf("Expected best no_helmet confidence 0.93, got %v", c)
	}
	if c := res.ConfidenceFor(domain.ViolationSignalJump); c != 0 {
		t.Errorf("Expected 0 for absent class, got %v", c)
	}
}

func TestClient_Cache(t *testing.T) {
	setupHTTPMock(t)
	httpmock.RegisterResponder(http.MethodPost, testBaseURL+"/v1/analyze",
		httpmock.NewStringResponder(http.StatusOK, analyzeResponse))

	mem := cache.NewMemoryCache(time.Minute)
	defer mem.Close()

	c := New(domain.DetectionConfig{BaseURL: testBaseURL}, mem, nil)
	for i := 0; i < 3; i++ {
		if _, err := c.Analyze(context.Background(), testReport()); err != nil {
			t.Fatalf("Analyze %d failed: %v", i, err)
		}
	}

	if n := httpmock.GetTotalCallCount(); n != 1 {
		t.Errorf("Expected 1 upstream call, got %d", n)
	}
}

func TestClient_HTTPError(t *testing.T) {
	setupHTTPMock(t)

	tests := []struct {
		name   string
		status int
	}{
		{"bad_request", http.StatusBadRequest},
		{"internal_server_error", http.StatusInternalServerError},
		{"service_unavailable", http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			httpmock.Reset()
			httpmock.RegisterResponder(http.MethodPost, testBaseURL+"/v1/analyze",
				httpmock.NewStringResponder(tt.status, "model not loaded"))

			c := New(domain.DetectionConfig{BaseURL: testBaseURL}, nil, nil)
			_, err := c.Analyze(context.Background(), testReport())
			if err == nil {
				t.Fatal("Expected error")
			}
			if !strings.Contains(err.Error(), "model not loaded") {
				t.Errorf("Expected upstream body in error, got %v", err)
			}
		})
	}
}

func TestClient_InvalidJSON(t *testing.T) {
	setupHTTPMock(t)
	httpmock.RegisterResponder(http.MethodPost, testBaseURL+"/v1/analyze",
		httpmock.NewStringResponder(http.StatusOK, "{not json"))

	c := New(domain.DetectionConfig{BaseURL: testBaseURL}, nil, nil)
	if _, err := c.Analyze(context.Background(), testReport()); err == nil {
		t.Fatal("Expected decode error")
	}
}

func TestClient_Disabled(t *testing.T) {
	c := New(domain.DetectionConfig{}, nil, nil)
	if c.Enabled() {
		t.Fatal("Client with empty base URL should be disabled")
	}
	if _, err := c.Analyze(context.Background(), testReport()); !errors.Is(err, ErrDisabled) {
		t.Errorf("Expected ErrDisabled, got %v", err)
	}
}
