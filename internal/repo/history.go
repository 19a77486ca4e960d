// Package repo holds the collaborator adapters: the historical ledger feed,
// the peer benchmark service, and the embedded sqlite/xlsx implementations
// used when the engine runs standalone.
package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerstack/predict-engine/internal/models"
)

// HistoryProvider supplies ordered ledger history for an organization.
type HistoryProvider interface {
	FetchSeries(ctx context.Context, organizationID, clientID, category string) ([]models.TimeSeriesPoint, error)
	FetchTransactions(ctx context.Context, organizationID, clientID string, since time.Time) ([]models.Transaction, error)
}

// HistoryClient fetches ledger history from the upstream accounting service
// over HTTP.
type HistoryClient struct {
	baseURL    string
	seriesPath string
	ledgerPath string
	httpClient *http.Client
}

// NewHistoryClient constructs a client targeting the configured history
// service.
func NewHistoryClient(baseURL, seriesPath, ledgerPath string, timeout time.Duration) *HistoryClient {
	return &HistoryClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		seriesPath: seriesPath,
		ledgerPath: ledgerPath,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// FetchSeries queries the history service for an ordered time series.
func (c *HistoryClient) FetchSeries(ctx context.Context, organizationID, clientID, category string) ([]models.TimeSeriesPoint, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("history client not configured")
	}

	payload := map[string]any{
		"organization_id": organizationID,
		"client_id":       clientID,
		"category":        category,
	}

	var response struct {
		Series []struct {
			Timestamp time.Time `json:"timestamp"`
			Amount    string    `json:"amount"`
			Category  string    `json:"category"`
			Source    string    `json:"source"`
		} `json:"series"`
	}

	if err := c.postJSON(ctx, c.baseURL+c.seriesPath, payload, &response); err != nil {
		return nil, fmt.Errorf("history series request failed: %w", err)
	}

	points := make([]models.TimeSeriesPoint, 0, len(response.Series))
	for _, s := range response.Series {
		amount, err := decimal.NewFromString(s.Amount)
		if err != nil {
			return nil, fmt.Errorf("history returned bad amount %q: %w", s.Amount, err)
		}
		points = append(points, models.TimeSeriesPoint{
			Timestamp: s.Timestamp,
			Amount:    amount,
			Category:  s.Category,
			Source:    s.Source,
		})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Timestamp.Before(points[j].Timestamp) })
	return points, nil
}

// FetchTransactions queries the history service for individual ledger
// entries since the given time.
func (c *HistoryClient) FetchTransactions(ctx context.Context, organizationID, clientID string, since time.Time) ([]models.Transaction, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("history client not configured")
	}

	payload := map[string]any{
		"organization_id": organizationID,
		"client_id":       clientID,
		"since":           since.Format(time.RFC3339),
	}

	var response struct {
		Transactions []struct {
			ID          string    `json:"id"`
			Timestamp   time.Time `json:"timestamp"`
			Amount      string    `json:"amount"`
			Category    string    `json:"category"`
			Description string    `json:"description"`
			Channel     string    `json:"channel"`
		} `json:"transactions"`
	}

	if err := c.postJSON(ctx, c.baseURL+c.ledgerPath, payload, &response); err != nil {
		return nil, fmt.Errorf("history ledger request failed: %w", err)
	}

	txns := make([]models.Transaction, 0, len(response.Transactions))
	for _, t := range response.Transactions {
		amount, err := decimal.NewFromString(t.Amount)
		if err != nil {
			return nil, fmt.Errorf("history returned bad amount %q: %w", t.Amount, err)
		}
		txns = append(txns, models.Transaction{
			ID:          t.ID,
			Timestamp:   t.Timestamp,
			Amount:      amount,
			Category:    t.Category,
			Description: t.Description,
			Channel:     t.Channel,
		})
	}
	sort.Slice(txns, func(i, j int) bool { return txns[i].Timestamp.Before(txns[j].Timestamp) })
	return txns, nil
}

func (c *HistoryClient) postJSON(ctx context.Context, url string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
