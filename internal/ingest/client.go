package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"linkrelay/internal/domain"
)

// deliveryRequest is the JSON body posted to the ingestion endpoint.
type deliveryRequest struct {
	URL       string `json:"url"`
	Source    string `json:"source"`
	CreatedAt int64  `json:"createdAt"`
	TripID    string `json:"tripId,omitempty"`
	EntryType string `json:"entryType,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

// Client implements the Ingestor interface over HTTP. It posts each share to
// the configured ingestion endpoint and maps the response onto the queue's
// boolean retry contract.
type Client struct {
	endpoint  string
	authToken string
	http      *http.Client
	log       logrus.FieldLogger
}

// NewClient creates an ingestion client for the given endpoint. authToken
// may be empty when the endpoint requires no authentication.
func NewClient(endpoint, authToken string, logger logrus.FieldLogger) *Client {
	return &Client{
		endpoint:  endpoint,
		authToken: authToken,
		http:      &http.Client{Timeout: 30 * time.Second},
		log:       logger.WithField("component", "ingest_client"),
	}
}

// Deliver posts the share to the ingestion endpoint. A 2xx response means
// the share was accepted; every other outcome is reported as retryable.
func (c *Client) Deliver(ctx context.Context, share domain.QueuedShare) (bool, error) {
	log := c.log.WithFields(logrus.Fields{
		"share_id": share.ID,
		"url":      share.URL,
	})

	body, err := json.Marshal(deliveryRequest{
		URL:       share.URL,
		Source:    share.Source,
		CreatedAt: share.CreatedAt,
		TripID:    share.TripID,
		EntryType: share.EntryType,
		Notes:     share.Notes,
	})
	if err != nil {
		return false, fmt.Errorf("failed to encode delivery request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("failed to build delivery request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		log.WithError(err).Warn("Delivery to ingestion endpoint failed")
		return false, fmt.Errorf("ingestion request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		log.Debug("Share accepted by ingestion endpoint")
		return true, nil
	}

	log.WithField("status", resp.StatusCode).Warn("Ingestion endpoint rejected share")
	return false, fmt.Errorf("ingestion endpoint returned %s", resp.Status)
}
