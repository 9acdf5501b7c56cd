package harvester

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	dataPath       = "/api/data"
	defaultTimeout = 10 * time.Second
	// cap on how much of an error response is kept
	maxResponseBody = 64 << 10
)

// ScanResult is the document a harvester pushes.
type ScanResult struct {
	FranchiseID      string         `json:"franchise_id"`
	IPAddress        string         `json:"ip_address"`
	ConnectedDevices int64          `json:"connected_devices"`
	Latency          int64          `json:"latency"`
	ScanData         map[string]any `json:"scan_data"`
}

type response struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// RejectedError is returned when the collector answers with a non-2xx status.
type RejectedError struct {
	StatusCode int
	Message    string
}

func (e *RejectedError) Error() string {
	return "collector rejected scan result (" + http.StatusText(e.StatusCode) + "): " + e.Message
}

type Client struct {
	base string
	http *http.Client
}

func New(baseURL string, httpClient *http.Client) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("no collector url provided")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{base: strings.TrimRight(baseURL, "/"), http: httpClient}, nil
}

func (c *Client) Push(ctx context.Context, result *ScanResult) error {
	body, err := json.Marshal(result)
	if err != nil {
		return errors.Wrap(err, "failed to encode scan result")
	}
	return c.PushRaw(ctx, body)
}

// PushRaw sends an already encoded document as is.
func (c *Client) PushRaw(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+dataPath, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "failed to build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to reach collector")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return errors.Wrap(err, "failed to read collector response")
	}
	if resp.StatusCode/100 == 2 {
		return nil
	}

	rejected := &RejectedError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	var r response
	if json.Unmarshal(raw, &r) == nil && r.Message != "" {
		rejected.Message = r.Message
	}
	return rejected
}
