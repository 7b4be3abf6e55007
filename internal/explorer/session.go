package explorer

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/dataset-explorer/backend/internal/dataset"
	"github.com/dataset-explorer/backend/internal/profile"
	"github.com/dataset-explorer/backend/internal/search"
)

// Session is an immutable snapshot of one dataset revision together with
// its index and profile. Nothing in it is mutated after NewSession returns.
type Session struct {
	Dataset *dataset.Dataset
	Index   *search.Index
	Profile *profile.DatasetProfile
	BuiltAt time.Time
}

// NewSession vectorizes and profiles the dataset once.
func NewSession(ds *dataset.Dataset, profiler *profile.Profiler) *Session {
	if profiler == nil {
		profiler = profile.New()
	}
	return &Session{
		Dataset: ds,
		Index:   search.BuildIndex(ds.Records),
		Profile: profiler.Profile(ds.Records),
		BuiltAt: time.Now(),
	}
}

// Matches reports whether the session was built from this dataset revision.
func (s *Session) Matches(ds *dataset.Dataset) bool {
	return s.Dataset.ID == ds.ID && s.Dataset.Revision == ds.Revision
}

// Sessions caches one session per dataset ID. A session is replaced as a
// whole when the dataset revision changes; callers holding the old one keep
// using it untouched.
type Sessions struct {
	profiler *profile.Profiler
	logger   *logrus.Entry

	group singleflight.Group
	mu    sync.RWMutex
	byID  map[string]*Session
}

func NewSessions(profiler *profile.Profiler, logger *logrus.Entry) *Sessions {
	if logger == nil {
		logger = logrus.WithField("component", "sessions")
	}
	if profiler == nil {
		profiler = profile.New()
	}
	return &Sessions{
		profiler: profiler,
		logger:   logger,
		byID:     make(map[string]*Session),
	}
}

// Open returns the session for ds, building it only if the cached one is
// missing or stale. Concurrent opens of one revision share a single build.
func (s *Sessions) Open(ds *dataset.Dataset) *Session {
	if sess := s.cached(ds); sess != nil {
		return sess
	}

	v, _, _ := s.group.Do(ds.ID+"@"+ds.Revision, func() (any, error) {
		if sess := s.cached(ds); sess != nil {
			return sess, nil
		}

		start := time.Now()
		sess := NewSession(ds, s.profiler)
		s.logger.WithFields(logrus.Fields{
			"dataset":   ds.ID,
			"revision":  ds.Revision,
			"records":   len(ds.Records),
			"vocab":     sess.Index.Vocabulary.Len(),
			"textField": sess.Index.TextField,
			"took":      time.Since(start).String(),
		}).Info("Built dataset session")

		s.mu.Lock()
		if prev, ok := s.byID[ds.ID]; !ok || !prev.Dataset.LoadedAt.After(ds.LoadedAt) {
			s.byID[ds.ID] = sess
		}
		s.mu.Unlock()
		return sess, nil
	})
	return v.(*Session)
}

func (s *Sessions) cached(ds *dataset.Dataset) *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sess, ok := s.byID[ds.ID]; ok && sess.Matches(ds) {
		return sess
	}
	return nil
}

// Get returns the current session of a dataset ID, if any.
func (s *Sessions) Get(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.byID[id]
	return sess, ok
}

// Drop forgets the session of a dataset ID.
func (s *Sessions) Drop(id string) {
	s.mu.Lock()
	delete(s.byID, id)
	s.mu.Unlock()
}

// Len returns the number of cached sessions.
func (s *Sessions) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
