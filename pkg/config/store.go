package config

import (
	"sync"
	"sync/atomic"
	"time"

	"mercator-hq/corsgate/pkg/telemetry/logging"
)

// ChangeSource identifies what triggered a policy change.
type ChangeSource string

const (
	// SourceEnv is the initial (or post-reset) load from file and environment.
	SourceEnv ChangeSource = "env"
	// SourceAPI is a runtime Update call.
	SourceAPI ChangeSource = "api"
	// SourceFile is a Reload, usually triggered by the file watcher.
	SourceFile ChangeSource = "file"
	// SourceReset is a Reset call.
	SourceReset ChangeSource = "reset"
)

// ChangeEvent describes a publish, a rejected update or a reset. Listeners
// receive copies and may keep them.
type ChangeEvent struct {
	At       time.Time
	Source   ChangeSource
	Success  bool
	Errors   []FieldError
	Previous *Policy
	Current  *Policy
}

// UpdateResult is returned by Update.
type UpdateResult struct {
	Success bool         `json:"success"`
	Errors  []FieldError `json:"errors,omitempty"`
	Policy  Policy       `json:"policy"`
}

// Store holds the active CORS policy. Readers load an immutable snapshot
// through an atomic pointer; writers build a new snapshot, validate it and
// swap the pointer, so a reader never sees a half-updated policy.
type Store struct {
	id uint64

	// mu serializes writers and the lazy initial load.
	mu       sync.Mutex
	active   atomic.Pointer[Policy]
	revision uint64

	lookup LookupFunc
	file   string
	logger *logging.Logger
	now    func() time.Time

	listenersMu sync.RWMutex
	listeners   []func(ChangeEvent)
}

// storeIDs hands out Store identities, starting at 1.
var storeIDs atomic.Uint64

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLookup sets the environment source. Default: OSLookup.
func WithLookup(lookup LookupFunc) StoreOption {
	return func(s *Store) { s.lookup = lookup }
}

// WithPolicyFile layers a YAML policy file under the environment.
func WithPolicyFile(path string) StoreOption {
	return func(s *Store) { s.file = path }
}

// WithLogger sets the diagnostic logger. Default: logging.Default().
func WithLogger(logger *logging.Logger) StoreOption {
	return func(s *Store) { s.logger = logger }
}

// NewStore creates a Store. Nothing is loaded until the first Get (or an
// explicit Load).
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		id:     storeIDs.Add(1),
		lookup: OSLookup,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.Default()
	}
	return s
}

// OnChange registers fn to be called after every publish, rejected update
// and reset. Listeners run synchronously while the store's write lock is
// held, so they must not call Update, Reload, Reset or Load.
func (s *Store) OnChange(fn func(ChangeEvent)) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Get returns a deep copy of the active policy, loading it on first use.
// Mutating the result never affects the store.
func (s *Store) Get() Policy {
	if p := s.active.Load(); p != nil {
		return p.Clone()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if p := s.active.Load(); p != nil {
		return p.Clone()
	}
	return s.loadLocked().Clone()
}

// Load assembles the policy from the file and environment and publishes it.
// If the assembled candidate fails validation, the default policy is
// published instead, so the active policy is always valid.
func (s *Store) Load() Policy {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked().Clone()
}

func (s *Store) loadLocked() *Policy {
	candidate, fileErr := AssemblePolicy(s.lookup, s.file)
	if fileErr != nil {
		s.logger.ConfigUpdate(logging.ConfigSourceError, logging.Fields{
			"file":  s.file,
			"error": fileErr.Error(),
		})
	}

	if errs := ValidatePolicy(candidate); len(errs) > 0 {
		s.logger.ConfigUpdate(logging.ConfigFallback, logging.Fields{
			"errors":    errs,
			"discarded": candidate,
		})
		candidate = DefaultPolicy()
	}

	p := s.publishLocked(candidate, SourceEnv)
	s.logger.ConfigUpdate(logging.ConfigLoaded, logging.Fields{
		"revision":        p.Revision,
		"allowed_origins": p.AllowedOrigins,
		"development":     p.DevelopmentMode,
		"debug":           p.DebugMode,
	})
	return p
}

// Validate checks a candidate policy without publishing it.
func (s *Store) Validate(p Policy) []FieldError {
	return ValidatePolicy(p)
}

// Update merges u over the active policy, validates the result and, if it is
// valid, publishes it atomically. On failure the active policy is untouched
// and the result carries the errors together with the unchanged policy.
func (s *Store) Update(u PolicyUpdate) UpdateResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.active.Load()
	if current == nil {
		current = s.loadLocked()
	}

	merged := u.Apply(*current)
	if errs := ValidatePolicy(merged); len(errs) > 0 {
		s.logger.ConfigUpdate(logging.ConfigRejected, logging.Fields{
			"fields": u.Fields(),
			"errors": errs,
		})
		s.notify(ChangeEvent{
			At:       s.now(),
			Source:   SourceAPI,
			Success:  false,
			Errors:   errs,
			Previous: clonePtr(current),
			Current:  clonePtr(current),
		})
		return UpdateResult{Success: false, Errors: errs, Policy: current.Clone()}
	}

	p := s.publishLocked(merged, SourceAPI)
	s.logger.ConfigUpdate(logging.ConfigUpdated, logging.Fields{
		"fields":   u.Fields(),
		"revision": p.Revision,
	})
	return UpdateResult{Success: true, Policy: p.Clone()}
}

// Reload re-reads the file and environment. Unlike Load, an unreadable file
// or an invalid candidate leaves the active policy in place and is reported
// as an error.
func (s *Store) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidate, fileErr := AssemblePolicy(s.lookup, s.file)
	if fileErr != nil {
		s.logger.ConfigUpdate(logging.ConfigReloadFailed, logging.Fields{
			"file":  s.file,
			"error": fileErr.Error(),
		})
		return fileErr
	}

	current := s.active.Load()
	if errs := ValidatePolicy(candidate); len(errs) > 0 {
		s.logger.ConfigUpdate(logging.ConfigReloadFailed, logging.Fields{
			"file":   s.file,
			"errors": errs,
		})
		s.notify(ChangeEvent{
			At:       s.now(),
			Source:   SourceFile,
			Success:  false,
			Errors:   errs,
			Previous: clonePtr(current),
			Current:  clonePtr(current),
		})
		return ValidationError{Errors: errs}
	}

	p := s.publishLocked(candidate, SourceFile)
	s.logger.ConfigUpdate(logging.ConfigReloaded, logging.Fields{
		"file":     s.file,
		"revision": p.Revision,
	})
	return nil
}

// Reset clears the active policy. The next Get reloads it from the sources.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous := s.active.Swap(nil)
	s.logger.ConfigUpdate(logging.ConfigReset, nil)
	s.notify(ChangeEvent{
		At:       s.now(),
		Source:   SourceReset,
		Success:  true,
		Previous: clonePtr(previous),
	})
}

// publishLocked stamps p with the next revision and makes it active.
// The caller holds s.mu.
func (s *Store) publishLocked(p Policy, source ChangeSource) *Policy {
	s.revision++
	published := p.Clone()
	published.Revision = s.revision
	published.StoreID = s.id

	previous := s.active.Swap(&published)
	s.notify(ChangeEvent{
		At:       s.now(),
		Source:   source,
		Success:  true,
		Previous: clonePtr(previous),
		Current:  clonePtr(&published),
	})
	return &published
}

func (s *Store) notify(ev ChangeEvent) {
	s.listenersMu.RLock()
	listeners := make([]func(ChangeEvent), len(s.listeners))
	copy(listeners, s.listeners)
	s.listenersMu.RUnlock()

	for _, fn := range listeners {
		fn(ev)
	}
}

func clonePtr(p *Policy) *Policy {
	if p == nil {
		return nil
	}
	c := p.Clone()
	return &c
}
