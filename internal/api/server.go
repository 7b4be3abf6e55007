package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dataset-explorer/backend/internal/catalog"
	"github.com/dataset-explorer/backend/internal/config"
	"github.com/dataset-explorer/backend/internal/dataset"
	"github.com/dataset-explorer/backend/internal/explorer"
	"github.com/dataset-explorer/backend/internal/fetcher"
	"github.com/dataset-explorer/backend/internal/profile"
	"github.com/dataset-explorer/backend/internal/search"
)

const maxJSONBody = 1 << 20

// DatasetFetcher downloads a dataset from a URL.
type DatasetFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*fetcher.FetchResult, error)
}

type Server struct {
	Catalog  catalog.Catalog
	Sessions *explorer.Sessions
	Explorer *explorer.Explorer
	Fetcher  DatasetFetcher
	Logger   *logrus.Entry
	Router   *http.ServeMux

	maxUploadBytes int64
	startTime      time.Time
}

func NewServer(cat catalog.Catalog, sessions *explorer.Sessions, ex *explorer.Explorer, f DatasetFetcher, cfg config.ServerConfig, logger *logrus.Entry) *Server {
	if logger == nil {
		logger = logrus.WithField("component", "api")
	}
	s := &Server{
		Catalog:        cat,
		Sessions:       sessions,
		Explorer:       ex,
		Fetcher:        f,
		Logger:         logger,
		Router:         http.NewServeMux(),
		maxUploadBytes: cfg.MaxUploadBytes,
		startTime:      time.Now(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.HandleFunc("GET /api/v1/datasets", s.handleListDatasets)
	s.Router.HandleFunc("POST /api/v1/datasets", s.handleUpload)
	s.Router.HandleFunc("GET /api/v1/datasets/{id}", s.handleGetDataset)
	s.Router.HandleFunc("POST /api/v1/datasets/fetch", s.handleFetch)
	s.Router.HandleFunc("POST /api/v1/query", s.handleQuery)
	s.Router.HandleFunc("POST /api/v1/analyze", s.handleAnalyze)
	s.Router.HandleFunc("GET /api/v1/status", s.handleStatus)
}

// Handler returns the router wrapped with request logging.
func (s *Server) Handler() http.Handler {
	return s.logRequests(s.Router)
}

// Responses
type ErrorResponse struct {
	Error string `json:"error"`
}

type QueryResponse struct {
	Query         string          `json:"query"`
	DatasetID     string          `json:"datasetId"`
	AIResponse    string          `json:"ai_response"`
	VectorResults any             `json:"vector_results"`
	ContextUsed   string          `json:"context_used"`
	SearchQuery   string          `json:"search_query,omitempty"`
	Source        explorer.Source `json:"source"`
}

// AnalysisResponse is a DatasetProfile with the source it came from.
type AnalysisResponse struct {
	*profile.DatasetProfile
	Source explorer.Source `json:"source"`
}

type StatusResponse struct {
	Running  bool   `json:"running"`
	Uptime   string `json:"uptime"`
	Datasets int    `json:"datasets"`
	Sessions int    `json:"sessions"`
}

// datasetRequest accepts the dataset under "datasetId" or the older "dataset" key.
type datasetRequest struct {
	DatasetID string `json:"datasetId"`
	Dataset   string `json:"dataset"`
}

func (r datasetRequest) id() string {
	if r.DatasetID != "" {
		return r.DatasetID
	}
	return r.Dataset
}

// Handlers

func (s *Server) handleListDatasets(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, s.Catalog.List())
}

func (s *Server) handleGetDataset(w http.ResponseWriter, r *http.Request) {
	ds, ok := s.lookup(w, r.PathValue("id"))
	if !ok {
		return
	}
	jsonResponse(w, http.StatusOK, ds.Info())
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	name := strings.TrimSpace(q.Get("name"))

	format, err := uploadFormat(q.Get("format"), r.Header.Get("Content-Type"), name)
	if err != nil {
		jsonResponse(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxUploadBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			jsonResponse(w, http.StatusRequestEntityTooLarge, ErrorResponse{Error: "Upload exceeds size limit"})
			return
		}
		jsonResponse(w, http.StatusBadRequest, ErrorResponse{Error: "Failed to read upload"})
		return
	}

	records, err := dataset.ParseLimit(bytes.NewReader(body), format, s.maxUploadBytes)
	if errors.Is(err, dataset.ErrTooLarge) {
		jsonResponse(w, http.StatusRequestEntityTooLarge, ErrorResponse{Error: "Upload exceeds size limit"})
		return
	}
	if err != nil {
		jsonResponse(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	ds := dataset.New(uuid.NewString(), name, records)
	ds.Source = "upload"
	s.register(w, ds)
}

// uploadFormat picks the format from the explicit parameter, the request
// Content-Type or the extension of the supplied name, in that order.
func uploadFormat(param, contentType, name string) (dataset.Format, error) {
	if param != "" {
		return dataset.ParseFormat(param)
	}
	if format, err := fetcher.DetectFormat(contentType, name); err == nil {
		return format, nil
	}
	return "", errors.New("format is required (csv, json or html)")
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL  string `json:"url"`
		Name string `json:"name"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.URL == "" {
		jsonResponse(w, http.StatusBadRequest, ErrorResponse{Error: "URL is required"})
		return
	}
	if s.Fetcher == nil {
		jsonResponse(w, http.StatusServiceUnavailable, ErrorResponse{Error: "Fetching is disabled"})
		return
	}

	res, err := s.Fetcher.Fetch(r.Context(), req.URL)
	if err != nil {
		s.Logger.WithError(err).WithField("url", req.URL).Warn("Dataset fetch failed")
		jsonResponse(w, fetchStatus(err), ErrorResponse{Error: err.Error()})
		return
	}

	name := req.Name
	if name == "" {
		name = dataset.DisplayName(catalog.DatasetID(path.Base(strings.TrimSuffix(res.URL, "/"))))
	}
	ds := dataset.New(uuid.NewString(), name, res.Records)
	ds.Source = res.URL
	s.register(w, ds)
}

func fetchStatus(err error) int {
	switch {
	case errors.Is(err, fetcher.ErrInvalidURL):
		return http.StatusBadRequest
	case errors.Is(err, fetcher.ErrBlockedByRobots):
		return http.StatusForbidden
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) register(w http.ResponseWriter, ds *dataset.Dataset) {
	if err := s.Catalog.Put(ds); err != nil {
		jsonResponse(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	s.Sessions.Open(ds)

	s.Logger.WithFields(logrus.Fields{
		"dataset": ds.ID,
		"records": len(ds.Records),
		"source":  ds.Source,
	}).Info("Registered dataset")
	jsonResponse(w, http.StatusCreated, ds.Info())
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req struct {
		datasetRequest
		Query string `json:"query"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		jsonResponse(w, http.StatusBadRequest, ErrorResponse{Error: "No query provided"})
		return
	}

	sess, ok := s.session(w, req.id())
	if !ok {
		return
	}

	ans, err := s.Explorer.Ask(r.Context(), sess, req.Query)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, explorer.ErrEmptyQuery) {
			status = http.StatusBadRequest
		}
		jsonResponse(w, status, ErrorResponse{Error: err.Error()})
		return
	}

	resp := QueryResponse{
		Query:       ans.Query,
		DatasetID:   sess.Dataset.ID,
		AIResponse:  ans.Response,
		ContextUsed: ans.Context,
		Source:      ans.Source,
	}
	if ans.SearchQuery != ans.Query {
		resp.SearchQuery = ans.SearchQuery
	}
	if ans.Source == explorer.SourceRemote {
		resp.VectorResults = ans.RemoteResults
	} else {
		matches := ans.Matches
		if matches == nil {
			matches = []search.SimilarityResult{}
		}
		resp.VectorResults = matches
	}
	jsonResponse(w, http.StatusOK, resp)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req datasetRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	sess, ok := s.session(w, req.id())
	if !ok {
		return
	}

	analysis := s.Explorer.Analyze(r.Context(), sess)
	jsonResponse(w, http.StatusOK, AnalysisResponse{
		DatasetProfile: analysis.Profile,
		Source:         analysis.Source,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, StatusResponse{
		Running:  true,
		Uptime:   time.Since(s.startTime).Round(time.Second).String(),
		Datasets: len(s.Catalog.List()),
		Sessions: s.Sessions.Len(),
	})
}

func (s *Server) lookup(w http.ResponseWriter, id string) (*dataset.Dataset, bool) {
	if id == "" {
		jsonResponse(w, http.StatusBadRequest, ErrorResponse{Error: "datasetId is required"})
		return nil, false
	}
	ds, err := s.Catalog.Get(id)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			jsonResponse(w, http.StatusNotFound, ErrorResponse{Error: "Dataset not found"})
			return nil, false
		}
		jsonResponse(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return nil, false
	}
	return ds, true
}

func (s *Server) session(w http.ResponseWriter, id string) (*explorer.Session, bool) {
	ds, ok := s.lookup(w, id)
	if !ok {
		return nil, false
	}
	return s.Sessions.Open(ds), true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(v); err != nil {
		jsonResponse(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid JSON"})
		return false
	}
	return true
}

func jsonResponse(w http.ResponseWriter, code int, payload any) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
