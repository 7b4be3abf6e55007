// Package remote talks to the external query and analysis services. Every
// failure is returned as an error so callers can fall back to local results.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/dataset-explorer/backend/internal/config"
	"github.com/dataset-explorer/backend/internal/profile"
)

// MaxJoinedTexts is how many legacy text entries make up an answer.
const MaxJoinedTexts = 3

const maxResponseBytes = 16 << 20

// ErrNotConfigured is returned when the service URL is empty.
var ErrNotConfigured = errors.New("remote service not configured")

// StatusError reports a non-2xx reply.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s returned status: %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s returned status: %d: %s", e.URL, e.StatusCode, e.Body)
}

// QueryRequest is the body sent to the query service. Dataset duplicates
// DatasetID for services that still read the older key.
type QueryRequest struct {
	Query     string `json:"query"`
	DatasetID string `json:"datasetId"`
	Dataset   string `json:"dataset,omitempty"`
}

// QueryResponse is the normalized reply of the query service.
type QueryResponse struct {
	Answer  string           `json:"ai_response"`
	Results []map[string]any `json:"vector_results"`
	Context string           `json:"context_used,omitempty"`
}

type analysisRequest struct {
	DatasetID string `json:"datasetId"`
	Dataset   string `json:"dataset"`
}

// Client calls the remote services over HTTP.
type Client struct {
	QueryURL    string
	AnalysisURL string
	HTTPClient  *http.Client
	Logger      *logrus.Entry
}

func NewClient(cfg config.RemoteConfig, logger *logrus.Entry) *Client {
	if logger == nil {
		logger = logrus.WithField("component", "remote")
	}
	return &Client{
		QueryURL:    cfg.QueryURL,
		AnalysisURL: cfg.AnalysisURL,
		HTTPClient:  &http.Client{Timeout: cfg.Timeout},
		Logger:      logger,
	}
}

// Query asks the query service for an answer.
func (c *Client) Query(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	if c.QueryURL == "" {
		return nil, ErrNotConfigured
	}
	if req.Dataset == "" {
		req.Dataset = req.DatasetID
	}

	body, err := c.post(ctx, c.QueryURL, req)
	if err != nil {
		return nil, err
	}
	return DecodeQueryResponse(body)
}

// Analyze fetches a precomputed profile from the analysis service.
func (c *Client) Analyze(ctx context.Context, datasetID string) (*profile.DatasetProfile, error) {
	if c.AnalysisURL == "" {
		return nil, ErrNotConfigured
	}

	body, err := c.post(ctx, c.AnalysisURL, analysisRequest{DatasetID: datasetID, Dataset: datasetID})
	if err != nil {
		return nil, err
	}

	var p profile.DatasetProfile
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("decode analysis response: %w", err)
	}
	p.Normalize()
	return &p, nil
}

func (c *Client) post(ctx context.Context, url string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response from %s: %w", url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode, Body: snippet(data)}
	}

	c.Logger.WithFields(logrus.Fields{"url": url, "bytes": len(data)}).Debug("Remote call succeeded")
	return data, nil
}

func snippet(data []byte) string {
	s := strings.TrimSpace(string(data))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

// DecodeQueryResponse accepts both reply shapes of the query service: an
// object with ai_response and vector_results, or a bare array of results each
// carrying a text field. When ai_response is absent the answer is the first
// MaxJoinedTexts texts joined by newlines.
func DecodeQueryResponse(data []byte) (*QueryResponse, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.New("empty query response")
	}

	var out QueryResponse
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &out.Results); err != nil {
			return nil, fmt.Errorf("decode query response: %w", err)
		}
	case '{':
		var obj struct {
			Answer  *string          `json:"ai_response"`
			Results []map[string]any `json:"vector_results"`
			Context string           `json:"context_used"`
		}
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return nil, fmt.Errorf("decode query response: %w", err)
		}
		out.Results = obj.Results
		out.Context = obj.Context
		if obj.Answer != nil {
			out.Answer = *obj.Answer
			if out.Results == nil {
				out.Results = []map[string]any{}
			}
			return &out, nil
		}
	default:
		return nil, fmt.Errorf("decode query response: unexpected %q", trimmed[0])
	}

	if out.Results == nil {
		out.Results = []map[string]any{}
	}
	out.Answer = JoinTexts(out.Results, MaxJoinedTexts)
	return &out, nil
}

// JoinTexts joins the string text fields of the first limit results.
func JoinTexts(results []map[string]any, limit int) string {
	if len(results) > limit {
		results = results[:limit]
	}
	texts := make([]string, 0, len(results))
	for _, r := range results {
		if s, ok := r["text"].(string); ok {
			texts = append(texts, s)
		}
	}
	return strings.Join(texts, "\n")
}
