package fetcher_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataset-explorer/backend/internal/config"
	"github.com/dataset-explorer/backend/internal/dataset"
	"github.com/dataset-explorer/backend/internal/fetcher"
)

func newFetcher(robots bool) *fetcher.Fetcher {
	logger, _ := test.NewNullLogger()
	return fetcher.NewFetcher(config.FetcherConfig{
		UserAgent:           "DatasetExplorer/1.0",
		Timeout:             5 * time.Second,
		EnableRobotsCheck:   robots,
		RobotsCacheDuration: time.Hour,
		MaxBodyBytes:        1 << 20,
	}, logger.WithField("test", "fetcher"))
}

func TestFetcher_FetchCSV(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "DatasetExplorer/1.0", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Write([]byte("Country,Gold\nNorway,16\nUSA,8\n"))
	}))
	defer ts.Close()

	result, err := newFetcher(false).Fetch(context.Background(), ts.URL+"/medals")
	require.NoError(t, err)

	assert.Equal(t, dataset.FormatCSV, result.Format)
	assert.Equal(t, 200, result.StatusCode)
	require.Len(t, result.Records, 2)
	v, _ := result.Records[0].Get("Country")
	assert.Equal(t, "Norway", v)
}

func TestFetcher_FormatFromExtension(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write([]byte(`[{"goal":"1","text":"End poverty"}]`))
	}))
	defer ts.Close()

	result, err := newFetcher(false).Fetch(context.Background(), ts.URL+"/sdg.json")
	require.NoError(t, err)
	assert.Equal(t, dataset.FormatJSON, result.Format)
	assert.Len(t, result.Records, 1)
}

func TestFetcher_HTMLTable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><head><title>Test Page</title></head><body>" +
			"<table><tr><th>City</th><th>Pop</th></tr><tr><td>Oslo</td><td>700000</td></tr></table></body></html>"))
	}))
	defer ts.Close()

	result, err := newFetcher(false).Fetch(context.Background(), ts.URL)
	require.NoError(t, err)
	assert.Equal(t, dataset.FormatHTML, result.Format)
	require.Len(t, result.Records, 1)
	assert.Equal(t, []string{"City", "Pop"}, result.Records[0].Fields())
}

func TestFetcher_NotFound(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()

	_, err := newFetcher(false).Fetch(context.Background(), ts.URL+"/missing.csv")
	var statusErr *fetcher.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, 404, statusErr.StatusCode)
}

func TestFetcher_InvalidURL(t *testing.T) {
	f := newFetcher(false)
	for _, raw := range []string{"", "ftp://example.com/a.csv", "not a url", "http://"} {
		_, err := f.Fetch(context.Background(), raw)
		assert.ErrorIs(t, err, fetcher.ErrInvalidURL, raw)
	}
}

func TestFetcher_UnsupportedFormat(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF"))
	}))
	defer ts.Close()

	_, err := newFetcher(false).Fetch(context.Background(), ts.URL+"/report")
	assert.ErrorIs(t, err, dataset.ErrUnsupportedFormat)
}

func TestFetcher_TooLarge(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		w.Write(make([]byte, 2<<20))
	}))
	defer ts.Close()

	_, err := newFetcher(false).Fetch(context.Background(), ts.URL+"/big.csv")
	assert.ErrorIs(t, err, fetcher.ErrTooLarge)
}

func TestFetcher_GzipBodyDecompressedLimit(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte("id,text\n" + strings.Repeat("1,some repeated text\n", 100000)))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.Less(t, buf.Len(), 1<<20)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		w.Write(buf.Bytes())
	}))
	defer ts.Close()

	_, err = newFetcher(false).Fetch(context.Background(), ts.URL+"/bomb.csv.gz")
	assert.ErrorIs(t, err, fetcher.ErrTooLarge)
	assert.ErrorIs(t, err, dataset.ErrTooLarge)
}

func TestFetcher_GzipBodyWithinLimit(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte("Country,Gold\nNorway,16\n"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		w.Write(buf.Bytes())
	}))
	defer ts.Close()

	result, err := newFetcher(false).Fetch(context.Background(), ts.URL+"/medals.csv.gz")
	require.NoError(t, err)
	assert.Len(t, result.Records, 1)
}

func TestFetcher_MalformedBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"not":"an array"}`))
	}))
	defer ts.Close()

	_, err := newFetcher(false).Fetch(context.Background(), ts.URL+"/data")
	var perr *dataset.ParseError
	assert.True(t, errors.As(err, &perr))
}

func TestFetcher_RobotsDisallow(t *testing.T) {
	var robotsHits, dataHits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/robots.txt":
			robotsHits.Add(1)
			w.Write([]byte("User-agent: *\nDisallow: /private/\n"))
		default:
			dataHits.Add(1)
			w.Header().Set("Content-Type", "text/csv")
			w.Write([]byte("a\n1\n"))
		}
	}))
	defer ts.Close()

	f := newFetcher(true)

	_, err := f.Fetch(context.Background(), ts.URL+"/private/data.csv")
	assert.ErrorIs(t, err, fetcher.ErrBlockedByRobots)
	assert.Equal(t, int32(0), dataHits.Load())

	_, err = f.Fetch(context.Background(), ts.URL+"/public/data.csv")
	require.NoError(t, err)
	assert.Equal(t, int32(1), dataHits.Load())

	// robots.txt is cached per host
	assert.Equal(t, int32(1), robotsHits.Load())
}

func TestFetcher_MissingRobotsAllows(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Write([]byte("a\n1\n"))
	}))
	defer ts.Close()

	_, err := newFetcher(true).Fetch(context.Background(), ts.URL+"/data.csv")
	assert.NoError(t, err)
}

func TestFetcher_RateLimitHonorsContext(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		w.Write([]byte("a\n1\n"))
	}))
	defer ts.Close()

	logger, _ := test.NewNullLogger()
	f := fetcher.NewFetcher(config.FetcherConfig{
		Timeout:           5 * time.Second,
		RequestsPerSecond: 0.01,
	}, logger.WithField("test", "fetcher"))

	_, err := f.Fetch(context.Background(), ts.URL+"/a.csv")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = f.Fetch(ctx, ts.URL+"/a.csv")
	assert.Error(t, err)
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		contentType string
		path        string
		want        dataset.Format
		ok          bool
	}{
		{"text/csv", "/x", dataset.FormatCSV, true},
		{"application/json; charset=utf-8", "/x.csv", dataset.FormatJSON, true},
		{"text/plain", "/data/medals.csv", dataset.FormatCSV, true},
		{"", "/events.json.gz", dataset.FormatJSON, true},
		{"text/html", "/", dataset.FormatHTML, true},
		{"text/plain", "/readme", "", false},
	}

	for _, tt := range tests {
		got, err := fetcher.DetectFormat(tt.contentType, tt.path)
		if !tt.ok {
			assert.Error(t, err)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}
