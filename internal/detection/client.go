// Package detection is the client of the AI detection service that
// analyses report evidence (helmet and rider detection, plate OCR, EXIF
// geotag and capture time). Results are cached per report.
package detection

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/DarsanV/HackaThrone-team91/internal/cache"
	"github.com/DarsanV/HackaThrone-team91/internal/domain"
)

const (
	analyzePath     = "/v1/analyze"
	cachePrefix     = "detection:"
	defaultTimeout  = 10 * time.Second
	defaultCacheTTL = time.Hour
	maxBodyBytes    = 1 << 20
	userAgent       = "snapnearn-detection-client"
)

// ErrDisabled is returned when no service URL is configured.
var ErrDisabled = errors.New("detection service disabled")

// Detection is one object class found in the evidence.
type Detection struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
}

// Plate is the OCR reading of the number plate.
type Plate struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Geotag is the position embedded in the evidence metadata.
type Geotag struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Result is the service's analysis of one report's evidence.
type Result struct {
	Detections  []Detection `json:"detections"`
	Plate       *Plate      `json:"plate,omitempty"`
	PersonCount int         `json:"person_count"`
	Geotag      *Geotag     `json:"geotag,omitempty"`
	CapturedAt  *time.Time  `json:"captured_at,omitempty"`
}

// ConfidenceFor returns the highest confidence reported for class t.
func (r *Result) ConfidenceFor(t domain.ViolationType) float64 {
	var best float64
	for _, d := range r.Detections {
		if d.Class == string(t) && d.Confidence > best {
			best = d.Confidence
		}
	}
	return best
}

type analyzeRequest struct {
	ReportID      string               `json:"report_id"`
	ViolationType domain.ViolationType `json:"violation_type"`
	Evidence      []string             `json:"evidence"`
}

// Client calls the detection service.
type Client struct {
	baseURL  string
	http     *http.Client
	cache    domain.Cache
	cacheTTL time.Duration
	logger   *slog.Logger
}

// New creates a client. results may be nil.
func New(cfg domain.DetectionConfig, results domain.Cache, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Client{
		baseURL:  strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		http:     &http.Client{Timeout: timeout},
		cache:    results,
		cacheTTL: ttl,
		logger:   logger,
	}
}

// Enabled reports whether a service URL is configured.
func (c *Client) Enabled() bool {
	return c.baseURL != ""
}

// Analyze returns the detection result for a report, from cache when
// available.
func (c *Client) Analyze(ctx context.Context, rep *domain.ViolationReport) (*Result, error) {
	if !c.Enabled() {
		return nil, ErrDisabled
	}

	key := cachePrefix + rep.ID
	if res, ok := cache.GetJSON[Result](ctx, c.cache, key); ok {
		return res, nil
	}

	res, err := c.fetch(ctx, rep)
	if err != nil {
		return nil, err
	}
	if err := cache.SetJSON(ctx, c.cache, key, res, c.cacheTTL); err != nil {
		c.logger.Warn("failed to cache detection result", "report_id", rep.ID, "error", err)
	}
	return res, nil
}

func (c *Client) fetch(ctx context.Context, rep *domain.ViolationReport) (*Result, error) {
	refs := make([]string, 0, len(rep.Evidence))
	for _, ev := range rep.Evidence {
		refs = append(refs, ev.Ref)
	}
	body, err := json.Marshal(analyzeRequest{
		ReportID:      rep.ID,
		ViolationType: rep.ViolationType,
		Evidence:      refs,
	})
	if err != nil {
		return nil, fmt.Errorf("encode detection request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+analyzePath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create detection request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("detection request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("detection service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var res Result
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&res); err != nil {
		return nil, fmt.Errorf("decode detection response: %w", err)
	}

	c.logger.Debug("detection completed",
		"report_id", rep.ID,
		"detections", len(res.Detections),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return &res, nil
}
