package cases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Session owns what outlives a single invocation: session-scoped fixture values and
// their teardown, extensions, settings and the logger. A session is safe for
// concurrent executions.
type Session struct {
	mu         sync.RWMutex
	cache      valueCache[sessionKey, any]
	group      singleflight.Group
	tags       sync.Map
	extensions []Extension
	settings   Settings
	logger     *slog.Logger

	cleanupMu sync.Mutex
	cleanups  []cleanupEntry
	disposed  bool
}

// SessionOption is a modifier for sessions
type SessionOption func(*Session)

// WithSessionTag returns an option that sets a tag on a session
func WithSessionTag[T any](tag Tag[T], val T) SessionOption {
	return func(s *Session) {
		tag.SetOnSession(s, val)
	}
}

// WithExtension returns an option that registers an extension to a session
func WithExtension(ext Extension) SessionOption {
	return func(s *Session) {
		if err := s.UseExtension(ext); err != nil {
			panic(err)
		}
	}
}

// WithLogger sets the session logger. The default discards.
func WithLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSettings replaces the default settings.
func WithSettings(settings Settings) SessionOption {
	return func(s *Session) {
		s.settings = settings
	}
}

// NewSession creates a new session with optional configuration
func NewSession(opts ...SessionOption) *Session {
	s := &Session{
		extensions: []Extension{},
		settings:   DefaultSettings(),
		logger:     discardLogger(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Settings returns the session settings.
func (s *Session) Settings() Settings {
	return s.settings
}

// Logger returns the session logger.
func (s *Session) Logger() *slog.Logger {
	return s.logger
}

// NewRegistry creates a registry discovering cases with the session's case prefix.
// Options given here apply after the settings.
func (s *Session) NewRegistry(opts ...RegistryOption) *Registry {
	return NewRegistry(append([]RegistryOption{WithRegistrySettings(s.settings)}, opts...)...)
}

// UseExtension registers an extension to the session
func (s *Session) UseExtension(ext Extension) error {
	s.mu.Lock()
	s.extensions = append(s.extensions, ext)
	sort.SliceStable(s.extensions, func(i, j int) bool {
		return s.extensions[i].Order() < s.extensions[j].Order()
	})
	s.mu.Unlock()

	return ext.Init(s)
}

func (s *Session) snapshotExtensions() []Extension {
	s.mu.RLock()
	defer s.mu.RUnlock()
	exts := make([]Extension, len(s.extensions))
	copy(exts, s.extensions)
	return exts
}

// resolveShared produces a session-scoped value once. Concurrent executions asking
// for the same key wait for the first producer.
func (s *Session) resolveShared(key sessionKey, produce func() (any, []cleanupEntry, error)) (any, error) {
	if v, ok := s.cache.Load(key); ok {
		return v, nil
	}

	v, err, _ := s.group.Do(key.String(), func() (any, error) {
		// Double-check cache after acquiring the singleflight lock
		if v, ok := s.cache.Load(key); ok {
			return v, nil
		}
		v, cleanups, err := produce()
		s.registerCleanups(cleanups)
		if err != nil {
			return nil, err
		}
		s.cache.Store(key, v)
		s.logger.Debug("session fixture created", "fixture", key.fixture.Name(), "params", key.params)
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (s *Session) registerCleanups(entries []cleanupEntry) {
	if len(entries) == 0 {
		return
	}
	s.cleanupMu.Lock()
	defer s.cleanupMu.Unlock()
	s.cleanups = append(s.cleanups, entries...)
}

// Dispose tears down session-scoped fixtures in reverse creation order, then the
// extensions. It is safe to call more than once.
func (s *Session) Dispose() error {
	s.cleanupMu.Lock()
	if s.disposed {
		s.cleanupMu.Unlock()
		return nil
	}
	s.disposed = true
	entries := s.cleanups
	s.cleanups = nil
	s.cleanupMu.Unlock()

	exts := s.snapshotExtensions()
	s.logger.Debug("disposing session", "values", s.cache.Size(), "cleanups", len(entries))

	var errs []error
	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]
		if err := entry.fn(); err != nil {
			cleanupErr := &CleanupError{Source: entry.source, Err: err, Context: "session"}
			handled := false
			for _, ext := range exts {
				if ext.OnCleanupError(cleanupErr) {
					handled = true
					break
				}
			}
			if !handled {
				errs = append(errs, cleanupErr)
			}
		}
	}
	s.cache.Clear()

	for _, ext := range exts {
		if err := ext.Dispose(s); err != nil {
			errs = append(errs, fmt.Errorf("disposing extension %s: %w", ext.Name(), err))
		}
	}

	return errors.Join(errs...)
}

// GetTag retrieves a tag value from the session
func (s *Session) GetTag(tag any) (any, bool) {
	return s.tags.Load(tag)
}

// SetTag stores a tag value on the session
func (s *Session) SetTag(tag any, val any) {
	s.tags.Store(tag, val)
}

// Outcome is the result of one invocation run by RunAll.
type Outcome struct {
	Invocation  *Invocation
	ExecutionID uuid.UUID
	Status      InvocationStatus
	Err         error
	Duration    time.Duration
}

// RunAll runs every invocation of plan with at most limit running at once; a
// limit below one uses Settings.Parallel. Skip-marked invocations are not run.
// Xfail-marked invocations run and their failure is expected. The returned error
// joins the failures that were not expected.
func (s *Session) RunAll(ctx context.Context, plan *Plan, limit int, body func(*Execution) error) ([]Outcome, error) {
	if limit < 1 {
		limit = s.settings.Parallel
	}
	if limit < 1 {
		limit = 1
	}

	outcomes := make([]Outcome, len(plan.Invocations))

	var group errgroup.Group
	group.SetLimit(limit)

	for i, inv := range plan.Invocations {
		group.Go(func() error {
			outcomes[i] = s.runOne(ctx, inv, body)
			return nil
		})
	}
	_ = group.Wait()

	var errs []error
	for _, o := range outcomes {
		if o.Err != nil && o.Status != StatusXFailed {
			errs = append(errs, fmt.Errorf("%s: %w", o.Invocation.FullName(), o.Err))
		}
	}
	return outcomes, errors.Join(errs...)
}

func (s *Session) runOne(ctx context.Context, inv *Invocation, body func(*Execution) error) Outcome {
	out := Outcome{Invocation: inv}
	if m, ok := inv.SkipMark(); ok {
		out.Status = StatusSkipped
		s.logger.Debug("invocation skipped", "invocation", inv.FullName(), "reason", m.Reason)
		return out
	}

	start := time.Now()
	e, err := s.Begin(ctx, inv)
	if e != nil {
		out.ExecutionID = e.ID()
	}
	if err == nil {
		err = e.Setup()
	}
	if err == nil {
		err = body(e)
		e.Fail(err)
	}
	var closeErr error
	if e != nil {
		closeErr = e.Close()
	}
	out.Duration = time.Since(start)
	out.Err = errors.Join(err, closeErr)

	_, xfail := inv.XFailMark()
	switch {
	case xfail && err != nil:
		out.Status = StatusXFailed
	case xfail:
		out.Status = StatusXPassed
	case e != nil:
		out.Status, _ = Status().GetFromExecution(e)
	default:
		out.Status = StatusFailed
	}
	if out.Err != nil && out.Status == StatusPassed {
		out.Status = StatusFailed
	}
	if e != nil {
		e.setStatus(out.Status)
	}
	return out
}
