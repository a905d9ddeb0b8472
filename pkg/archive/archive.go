// Package archive writes accepted exchanges to the external message
// archive (a Supabase/PostgREST table). Writes are fire-and-forget: a
// failure is logged and never surfaces to the user or the pipeline.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/modgate/modgate/pkg/logger"
)

// Record is one archived message row.
type Record struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"thread_id"`
	AuthorID       string    `json:"author_id"`
	Content        string    `json:"content"`
	IsBot          bool      `json:"is_bot"`
	CreatedAt      time.Time `json:"created_at"`
}

// Config holds archive connection settings. An empty URL or key disables
// the client entirely.
type Config struct {
	URL    string
	APIKey string
	Table  string
}

type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient returns nil when the archive is not configured; callers treat a
// nil client as "persistence disabled".
func NewClient(cfg Config) *Client {
	if cfg.URL == "" || cfg.APIKey == "" {
		return nil
	}
	if cfg.Table == "" {
		cfg.Table = "messages"
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Insert posts one record to the archive table and reports success. All
// failure modes are logged here; nothing propagates.
func (c *Client) Insert(ctx context.Context, rec Record) bool {
	if c == nil {
		return false
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	body, err := json.Marshal(rec)
	if err != nil {
		logger.ErrorCF("archive", "encoding record", map[string]any{"error": err.Error()})
		return false
	}

	endpoint := fmt.Sprintf("%s/rest/v1/%s", strings.TrimRight(c.cfg.URL, "/"), c.cfg.Table)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		logger.ErrorCF("archive", "building request", map[string]any{"error": err.Error()})
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.cfg.APIKey)
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Prefer", "return=minimal")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.ErrorCF("archive", "insert failed", map[string]any{"error": err.Error()})
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		logger.ErrorCF("archive", "insert rejected", map[string]any{
			"status":       resp.StatusCode,
			"conversation": rec.ConversationID,
		})
		return false
	}
	return true
}
