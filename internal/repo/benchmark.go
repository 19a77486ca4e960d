package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"
)

// PeerStats summarises a peer cohort's distribution for one industry and
// size class.
type PeerStats struct {
	Median       float64 `json:"median"`
	Mean         float64 `json:"mean"`
	StdDev       float64 `json:"stdDev"`
	TopDecile    float64 `json:"topDecile"`
	BottomDecile float64 `json:"bottomDecile"`
	CohortSize   int     `json:"cohortSize"`
}

// PercentileOf estimates where a value sits in the cohort distribution,
// returned in [0,100]. A degenerate cohort pins everything to the median.
func (s *PeerStats) PercentileOf(value float64) float64 {
	if s.StdDev <= 0 {
		return 50
	}
	z := (value - s.Mean) / s.StdDev
	p := 50 * (1 + math.Erf(z/math.Sqrt2))
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// BenchmarkHTTPClient fetches peer statistics from the industry-data
// collaborator. Every call is bounded by the configured timeout so a slow
// peer service cannot stall a prediction.
type BenchmarkHTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewBenchmarkHTTPClient constructs a peer-data client.
func NewBenchmarkHTTPClient(baseURL string, timeout time.Duration) *BenchmarkHTTPClient {
	return &BenchmarkHTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// PeerStats queries the cohort statistics for an industry and size class.
// A missing cohort yields (nil, nil) rather than an error so the caller can
// omit the comparison.
func (c *BenchmarkHTTPClient) PeerStats(ctx context.Context, industry, sizeClass string) (*PeerStats, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("benchmark client not configured")
	}

	payload := map[string]any{"industry": industry, "size_class": sizeClass}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/benchmarks/cohort", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("benchmark request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("benchmark service returned status %d", resp.StatusCode)
	}

	var stats PeerStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return nil, fmt.Errorf("decode benchmark response: %w", err)
	}
	return &stats, nil
}
