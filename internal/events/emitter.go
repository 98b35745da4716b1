// Package events pushes committed receipt batches to an external indexer.
// Emission is fire-and-forget: failures are logged and never propagate back
// into the engine.
package events

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"ledgerd/internal/models"
)

type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	Log        *slog.Logger
}

func NewClient(baseURL, token string, log *slog.Logger) *Client {
	return &Client{
		BaseURL: baseURL,
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		Log: log,
	}
}

type batchPayload struct {
	BatchID  string           `json:"batch_id"`
	Receipts []models.Receipt `json:"receipts"`
}

// EmitBatch posts one receipt batch to the indexer.
func (c *Client) EmitBatch(batchID string, receipts []models.Receipt) {
	if err := c.post("/v1/receipt-batches", batchPayload{BatchID: batchID, Receipts: receipts}); err != nil {
		c.Log.Warn("failed to emit receipt batch", "batch_id", batchID, "error", err)
	}
}

func (c *Client) post(endpoint string, body interface{}) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	url := fmt.Sprintf("%s%s", c.BaseURL, endpoint)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewBuffer(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.Token))
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("api error: %s (status: %d)", string(respBody), resp.StatusCode)
	}
	return nil
}
