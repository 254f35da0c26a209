package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// HealthReport is the ingestion pipeline health snapshot.
type HealthReport struct {
	Status   string `json:"status"`
	Warnings struct {
		Total *int `json:"total"`
	} `json:"warnings"`
	Symbols struct {
		Stale *int `json:"stale"`
	} `json:"symbols"`
}

// Ready reports whether the pipeline is healthy enough for a refresh run.
func (h HealthReport) Ready() bool {
	switch strings.ToLower(h.Status) {
	case "healthy", "degraded":
		return true
	default:
		return false
	}
}

// Health fetches the pipeline health snapshot.
func (c *Client) Health(ctx context.Context) (*HealthReport, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/admin/health", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var report HealthReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, fmt.Errorf("failed to decode health response: %w", err)
	}
	if report.Status == "" {
		report.Status = "unknown"
	}
	report.Status = strings.ToLower(report.Status)

	return &report, nil
}

// Readiness turns a health probe outcome into the gate verdict and a
// machine-readable reason.
func Readiness(report *HealthReport, err error) (bool, string) {
	if err != nil {
		var statusErr *StatusError
		switch {
		case errors.As(err, &statusErr):
			return false, fmt.Sprintf("http_error:%d", statusErr.StatusCode)
		default:
			return false, "request_failed"
		}
	}
	if !report.Ready() {
		return false, "status:" + report.Status
	}
	return true, report.Status
}
