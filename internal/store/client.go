package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultClientTimeout bounds each request made by Client.
const DefaultClientTimeout = 10 * time.Second

// Client is a PoseStore backed by a remote pose server's /save and /load
// routes.
type Client struct {
	baseURL string
	http    *http.Client
}

var _ PoseStore = (*Client)(nil)

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultClientTimeout},
	}
}

// Save posts records to /save.
func (c *Client) Save(ctx context.Context, records []Record) error {
	if records == nil {
		records = []Record{}
	}
	body, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to encode poses: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/save", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to save poses: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return responseError(resp)
	}
	return nil
}

// Load fetches all poses from /load. A 404 maps to ErrNotFound.
func (c *Client) Load(ctx context.Context) ([]Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/load", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to load poses: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, ErrNotFound
	default:
		return nil, responseError(resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	records, skipped, err := DecodeRecords(data)
	if err != nil {
		return nil, err
	}
	return partial(records, skipped)
}

func responseError(resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return fmt.Errorf("pose server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
}
