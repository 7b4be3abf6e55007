// Package fetcher downloads datasets from the web, honoring robots.txt and a
// request rate limit.
package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/dataset-explorer/backend/internal/config"
	"github.com/dataset-explorer/backend/internal/dataset"
)

var (
	ErrInvalidURL      = errors.New("invalid dataset url")
	ErrBlockedByRobots = errors.New("url blocked by robots.txt")
	ErrTooLarge        = dataset.ErrTooLarge
)

// StatusError reports a non-200 download.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("received non-200 status code %d from %s", e.StatusCode, e.URL)
}

// FetchResult contains the records parsed from a downloaded dataset
type FetchResult struct {
	URL         string
	Format      dataset.Format
	ContentType string
	StatusCode  int
	Bytes       int
	Records     []dataset.Record
}

type Fetcher struct {
	client  *http.Client
	cfg     config.FetcherConfig
	limiter *rate.Limiter
	robots  *robotsCache
	logger  *logrus.Entry
}

func NewFetcher(cfg config.FetcherConfig, logger *logrus.Entry) *Fetcher {
	if logger == nil {
		logger = logrus.WithField("component", "fetcher")
	}

	client := &http.Client{
		Timeout: cfg.Timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	return &Fetcher{
		client:  client,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, 1),
		robots:  newRobotsCache(client, cfg.UserAgent, cfg.RobotsCacheDuration),
		logger:  logger,
	}
}

// Fetch downloads and parses a dataset
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*FetchResult, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}
	log := f.logger.WithField("url", rawURL)

	if f.cfg.EnableRobotsCheck {
		allowed, err := f.robots.allowed(ctx, u)
		if err != nil {
			log.WithError(err).Warn("Failed to get robots.txt, allowing request")
		} else if !allowed {
			log.Debug("URL blocked by robots.txt")
			return nil, ErrBlockedByRobots
		}
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "text/csv, application/json, text/html;q=0.8, */*;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("network error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	data, err := readLimited(resp.Body, f.cfg.MaxBodyBytes)
	if err != nil {
		return nil, err
	}

	contentType := resp.Header.Get("Content-Type")
	format, err := DetectFormat(contentType, u.Path)
	if err != nil {
		return nil, err
	}

	records, err := dataset.ParseLimit(bytes.NewReader(data), format, decodeLimit(f.cfg.MaxBodyBytes))
	if err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"format":  format,
		"bytes":   len(data),
		"records": len(records),
	}).Info("Fetched dataset")

	return &FetchResult{
		URL:         rawURL,
		Format:      format,
		ContentType: contentType,
		StatusCode:  resp.StatusCode,
		Bytes:       len(data),
		Records:     records,
	}, nil
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, ErrTooLarge
	}
	return data, nil
}

// decodeLimit applies the body limit to decompressed bytes as well.
func decodeLimit(maxBody int64) int64 {
	if maxBody <= 0 {
		return dataset.DefaultMaxDecompressedBytes
	}
	return maxBody
}

// DetectFormat picks the format from the Content-Type header and falls back
// to the extension of the URL path for generic or missing types.
func DetectFormat(contentType, path string) (dataset.Format, error) {
	if contentType != "" {
		if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
			if format, err := dataset.ParseFormat(mediaType); err == nil {
				return format, nil
			}
		}
	}
	return dataset.FormatFromName(path)
}
