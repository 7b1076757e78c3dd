// Package engine owns the embedded analytical engine for one client session:
// a single in-process SQLite instance holding the ephemeral catalog that
// datasets and named results are registered into before queries run.
package engine

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
	_ "modernc.org/sqlite"
)

// fetchCacheSize bounds the LRU of downloaded dataset buffers, keyed by URL.
const fetchCacheSize = 32

// Handle is a ready engine+connection pair. The underlying pool is pinned to
// a single connection, so all catalog state lives on one in-memory database
// and concurrent queries are serialized by the engine itself.
type Handle struct {
	DB *sql.DB
}

// Session lazily bootstraps the embedded engine. All concurrent callers of
// Acquire during bootstrap share one in-flight initialization; a bootstrap
// failure is memoized and returned fast until Reset is called. Construct with
// NewSession and inject it, so tests can substitute a fake engine.
type Session struct {
	dsn    string
	client *http.Client
	log    *slog.Logger

	// buffers caches fetched dataset bytes so repeated execution passes do
	// not refetch unchanged remote files.
	buffers *lru.Cache[string, []byte]

	group singleflight.Group

	// catalogMu serializes catalog registration (ATTACH/DETACH pairs must
	// not interleave on the shared connection).
	catalogMu sync.Mutex

	mu     sync.Mutex
	handle *Handle
	err    error
}

// Option configures a Session.
type Option func(*Session)

// WithHTTPClient substitutes the client used for remote dataset fetches.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Session) { s.client = c }
}

// WithLogger substitutes the session's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.log = l }
}

// NewSession returns an unbootstrapped session. The engine is not touched
// until the first Acquire.
func NewSession(opts ...Option) *Session {
	buffers, _ := lru.New[string, []byte](fetchCacheSize)
	s := &Session{
		dsn:     ":memory:",
		client:  &http.Client{Timeout: 30 * time.Second},
		log:     slog.Default(),
		buffers: buffers,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Acquire returns the session's engine handle, bootstrapping it on first
// call. The handle lives for the session; there is no teardown API.
func (s *Session) Acquire(ctx context.Context) (*Handle, error) {
	s.mu.Lock()
	if s.handle != nil {
		h := s.handle
		s.mu.Unlock()
		return h, nil
	}
	if s.err != nil {
		err := s.err
		s.mu.Unlock()
		return nil, err
	}
	s.mu.Unlock()

	v, err, _ := s.group.Do("bootstrap", func() (any, error) {
		h, err := s.bootstrap(ctx)
		s.mu.Lock()
		defer s.mu.Unlock()
		if err != nil {
			s.err = wrapCode(CodeBootstrapFailed, err)
			return nil, s.err
		}
		s.handle = h
		return h, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Handle), nil
}

// Reset clears a memoized bootstrap failure so the next Acquire retries. A
// healthy handle is left in place.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle == nil {
		s.err = nil
	}
}

func (s *Session) bootstrap(ctx context.Context) (*Handle, error) {
	db, err := sql.Open("sqlite", s.dsn)
	if err != nil {
		return nil, err
	}
	// One connection, held open forever: the in-memory catalog lives on it.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return &Handle{DB: db}, nil
}
