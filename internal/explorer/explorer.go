// Package explorer answers questions about a dataset and profiles it. Both
// operations try the remote services first and fall back to the local engine
// on any failure.
package explorer

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dataset-explorer/backend/internal/profile"
	"github.com/dataset-explorer/backend/internal/provider"
	"github.com/dataset-explorer/backend/internal/remote"
	"github.com/dataset-explorer/backend/internal/search"
)

var (
	ErrEmptyQuery = errors.New("query must not be empty")

	errEmptyRemoteAnswer = errors.New("remote returned an empty answer")
)

// Source tells where a result was computed.
type Source string

const (
	SourceRemote Source = "remote"
	SourceLocal  Source = "local"
)

// QueryService is the remote question answering service.
type QueryService interface {
	Query(ctx context.Context, req remote.QueryRequest) (*remote.QueryResponse, error)
}

// AnalysisService is the remote profiling service.
type AnalysisService interface {
	Analyze(ctx context.Context, datasetID string) (*profile.DatasetProfile, error)
}

type Options struct {
	TopN           int
	ContextResults int
	RemoteTimeout  time.Duration
	RewriteQueries bool
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	return Options{
		TopN:           5,
		ContextResults: 3,
		RemoteTimeout:  5 * time.Second,
	}
}

// Answer is the result of Ask. Matches is set for local answers and
// RemoteResults for remote ones.
type Answer struct {
	Query         string
	SearchQuery   string
	Response      string
	Matches       []search.SimilarityResult
	RemoteResults []map[string]any
	Context       string
	Source        Source
}

// Analysis is the result of Analyze.
type Analysis struct {
	Profile *profile.DatasetProfile
	Source  Source
}

type Explorer struct {
	query    QueryService
	analysis AnalysisService
	llm      provider.LLMProvider
	opts     Options
	logger   *logrus.Entry
}

// New creates an Explorer. Nil services and a nil llm are allowed; the
// corresponding stage is skipped.
func New(query QueryService, analysis AnalysisService, llm provider.LLMProvider, opts Options, logger *logrus.Entry) *Explorer {
	if logger == nil {
		logger = logrus.WithField("component", "explorer")
	}
	return &Explorer{
		query:    query,
		analysis: analysis,
		llm:      llm,
		opts:     opts,
		logger:   logger,
	}
}

// Ask answers a question about the session's dataset. Remote failures are
// logged and never returned.
func (e *Explorer) Ask(ctx context.Context, sess *Session, query string) (*Answer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	ans, err := e.tryRemoteQuery(ctx, sess, query)
	if err == nil {
		return ans, nil
	}
	e.logFallback(err, "query", sess.Dataset.ID)
	return e.localAnswer(ctx, sess, query), nil
}

// Analyze returns the dataset profile, preferring the remote analysis.
func (e *Explorer) Analyze(ctx context.Context, sess *Session) *Analysis {
	p, err := e.tryRemoteAnalysis(ctx, sess)
	if err == nil {
		return &Analysis{Profile: p, Source: SourceRemote}
	}
	e.logFallback(err, "analysis", sess.Dataset.ID)
	return &Analysis{Profile: sess.Profile, Source: SourceLocal}
}

func (e *Explorer) tryRemoteQuery(ctx context.Context, sess *Session, query string) (*Answer, error) {
	if e.query == nil {
		return nil, remote.ErrNotConfigured
	}
	ctx, cancel := e.remoteContext(ctx)
	defer cancel()

	resp, err := e.query.Query(ctx, remote.QueryRequest{Query: query, DatasetID: sess.Dataset.ID})
	if err != nil {
		return nil, err
	}
	// Blank answers fall through to the local engine.
	if strings.TrimSpace(resp.Answer) == "" {
		return nil, errEmptyRemoteAnswer
	}

	results := resp.Results
	if results == nil {
		results = []map[string]any{}
	}
	used := resp.Context
	if used == "" {
		used = remote.JoinTexts(results, e.contextLimit())
	}
	return &Answer{
		Query:         query,
		SearchQuery:   query,
		Response:      resp.Answer,
		RemoteResults: results,
		Context:       used,
		Source:        SourceRemote,
	}, nil
}

func (e *Explorer) tryRemoteAnalysis(ctx context.Context, sess *Session) (*profile.DatasetProfile, error) {
	if e.analysis == nil {
		return nil, remote.ErrNotConfigured
	}
	ctx, cancel := e.remoteContext(ctx)
	defer cancel()

	p, err := e.analysis.Analyze(ctx, sess.Dataset.ID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, errors.New("empty analysis response")
	}
	p.Normalize()
	return p, nil
}

func (e *Explorer) remoteContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.opts.RemoteTimeout > 0 {
		return context.WithTimeout(ctx, e.opts.RemoteTimeout)
	}
	return context.WithCancel(ctx)
}

func (e *Explorer) logFallback(err error, stage, datasetID string) {
	entry := e.logger.WithFields(logrus.Fields{"stage": stage, "dataset": datasetID})
	if errors.Is(err, remote.ErrNotConfigured) {
		entry.Debug("Remote service not configured, using local engine")
		return
	}
	entry.WithError(err).Warn("Remote call failed, falling back to local engine")
}

// localAnswer ranks the cached vectors and phrases an answer from the best
// matches with a positive score.
func (e *Explorer) localAnswer(ctx context.Context, sess *Session, query string) *Answer {
	searchQuery := query
	if e.opts.RewriteQueries {
		searchQuery = provider.RewriteQuery(ctx, e.llm, query)
	}

	matches := sess.Index.Search(searchQuery, e.opts.TopN)
	ans := &Answer{
		Query:       query,
		SearchQuery: searchQuery,
		Matches:     matches,
		Source:      SourceLocal,
	}

	var texts []string
	for _, m := range matches {
		if m.Score <= 0 {
			continue
		}
		if len(texts) == e.contextLimit() {
			break
		}
		texts = append(texts, m.Text)
	}
	if len(texts) == 0 {
		ans.Response = provider.NoResultsAnswer
		return ans
	}
	ans.Context = strings.Join(texts, "\n")
	ans.Response = e.generate(ctx, query, ans.Context)
	return ans
}

func (e *Explorer) generate(ctx context.Context, query, extract string) string {
	if e.llm == nil {
		return provider.FallbackAnswer(extract)
	}
	out, err := e.llm.Generate(ctx, provider.BuildAnalystPrompt(query, extract))
	if err != nil || strings.TrimSpace(out) == "" {
		e.logger.WithError(err).WithField("provider", e.llm.Name()).Warn("Answer generation failed, using extract")
		return provider.FallbackAnswer(extract)
	}
	return out
}

func (e *Explorer) contextLimit() int {
	if e.opts.ContextResults > 0 {
		return e.opts.ContextResults
	}
	return remote.MaxJoinedTexts
}
