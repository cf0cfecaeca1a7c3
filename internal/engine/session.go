// Package engine implements the gazefan distribution core: the dispatch
// engine that fans events out to adapters and the session manager that owns
// per-session adapter sets and routing tables.
package engine

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/gazefan/gazefan/distributor"
	"github.com/gazefan/gazefan/internal/engine/config"
	enginerrors "github.com/gazefan/gazefan/internal/engine/errors"
	"github.com/gazefan/gazefan/internal/engine/logging"
)

// SessionState is the lifecycle state of a session. A ready session accepts
// dispatch calls until it is closed; there is no paused state.
type SessionState string

const (
	SessionCreated SessionState = "created"
	SessionReady   SessionState = "ready"
	SessionClosed  SessionState = "closed"
)

// adapterSlot pairs a live adapter with the last lifecycle error recorded
// for it. A slot whose adapter could not even be built keeps a nil dist and
// reports StateError.
type adapterSlot struct {
	dist    distributor.Distributor
	lastErr error
}

func (s *adapterSlot) state() distributor.State {
	if s.dist == nil {
		return distributor.StateError
	}
	return s.dist.State()
}

// Session is an isolated named set of live adapters plus one event-routing
// table. It is owned exclusively by the SessionManager; all mutation goes
// through manager operations.
type Session struct {
	id string

	// mu is the per-session critical section: adapter-map mutations
	// (create/enable/disable/reconfigure/close) serialize on it, dispatch
	// reads take a consistent snapshot under RLock.
	mu       sync.RWMutex
	state    SessionState
	config   *config.SessionConfig
	adapters map[string]*adapterSlot

	createdAt time.Time
	closedAt  *time.Time
}

// ID returns the caller-supplied session id.
func (s *Session) ID() string { return s.id }

// CreatedAt returns the session creation time.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// snapshotTargets resolves target names against the adapter map under a
// read lock. Unknown names resolve to a nil adapter so dispatch can record
// them as soft failures; an in-flight dispatch is never corrupted by a
// concurrent enable/disable.
func (s *Session) snapshotTargets(names []string) []dispatchTarget {
	s.mu.RLock()
	defer s.mu.RUnlock()
	targets := make([]dispatchTarget, len(names))
	for i, name := range names {
		target := dispatchTarget{name: name}
		if slot, ok := s.adapters[name]; ok {
			target.dist = slot.dist
		}
		targets[i] = target
	}
	return targets
}

// SessionStatus is the introspection view of one session.
type SessionStatus struct {
	ID                  string
	State               SessionState
	ActiveDistributors  []string
	AllDistributors     map[string]distributor.State
	EventRoutingSummary map[string][]string
	CreatedAt           time.Time
}

// SessionSummary is the per-session entry of ListSessions.
type SessionSummary struct {
	ID                 string
	State              SessionState
	ActiveDistributors []string
	CreatedAt          time.Time
}

// SessionManager owns all sessions and delegates dispatch to the
// DispatchEngine. It holds no global lock around dispatch: concurrent
// RouteEvent calls across sessions, and across events within one session,
// run in parallel.
type SessionManager struct {
	registry *distributor.Registry
	engine   *DispatchEngine
	logger   logging.ServiceLogger
	wmLogger watermill.LoggerAdapter

	mu       sync.RWMutex
	sessions map[string]*Session
	defaults map[string]distributor.Params
}

// NewSessionManager creates a session manager backed by the given
// distributor registry. A nil registry falls back to the default registry;
// a nil logger disables logging.
func NewSessionManager(registry *distributor.Registry, logger logging.ServiceLogger) *SessionManager {
	if registry == nil {
		registry = distributor.DefaultRegistry
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &SessionManager{
		registry: registry,
		engine:   NewDispatchEngine(logger),
		logger:   logger,
		wmLogger: logging.NewWatermillAdapter(logger),
		sessions: make(map[string]*Session),
		defaults: make(map[string]distributor.Params),
	}
}

// RegisterDistributorConfig stores a process-wide default parameter record
// used when EnableDistributor is later called without explicit params and
// the session config carries no retained definition.
func (m *SessionManager) RegisterDistributorConfig(name string, defaultParams distributor.Params) {
	m.mu.Lock()
	m.defaults[name] = defaultParams.Clone()
	m.mu.Unlock()
}

// CreateSession instantiates one adapter per configured distributor and
// connects them all concurrently. A distributor whose connect fails is
// recorded in error state but does not abort creation: the session becomes
// ready with whichever adapters succeeded, and callers discover failures
// via GetSessionStatus.
func (m *SessionManager) CreateSession(ctx context.Context, id string, cfg *config.SessionConfig) (*Session, error) {
	if id == "" {
		return nil, enginerrors.ErrSessionIDRequired
	}
	if cfg == nil {
		return nil, enginerrors.ErrConfigRequired
	}

	session := &Session{
		id:        id,
		state:     SessionCreated,
		config:    cfg.Clone(),
		adapters:  make(map[string]*adapterSlot),
		createdAt: time.Now(),
	}

	m.mu.Lock()
	if _, exists := m.sessions[id]; exists {
		m.mu.Unlock()
		return nil, &enginerrors.DuplicateSessionError{ID: id}
	}
	m.sessions[id] = session
	m.mu.Unlock()

	session.mu.Lock()
	defer session.mu.Unlock()

	var wg sync.WaitGroup
	var slotMu sync.Mutex
	for name, params := range session.config.Distributors {
		dist, err := m.registry.Build(name, params, m.wmLogger)
		if err != nil {
			m.logger.Error("build distributor", err, logging.LogFields{"session": id, "distributor": name})
			session.adapters[name] = &adapterSlot{lastErr: &enginerrors.ConnectError{Distributor: name, Err: err}}
			continue
		}

		slot := &adapterSlot{dist: dist}
		session.adapters[name] = slot

		wg.Add(1)
		go func(name string, slot *adapterSlot) {
			defer wg.Done()
			if err := slot.dist.Connect(ctx); err != nil {
				m.logger.Error("connect distributor", err, logging.LogFields{"session": id, "distributor": name})
				slotMu.Lock()
				slot.lastErr = &enginerrors.ConnectError{Distributor: name, Err: err}
				slotMu.Unlock()
			}
		}(name, slot)
	}
	wg.Wait()

	session.state = SessionReady
	m.logger.Info("session created", logging.LogFields{
		"session":      id,
		"distributors": len(session.adapters),
	})
	return session, nil
}

func (m *SessionManager) getSession(id string) (*Session, error) {
	m.mu.RLock()
	session, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, &enginerrors.SessionNotFoundError{ID: id}
	}
	return session, nil
}

// EnableDistributor instantiates and connects a new adapter for name inside
// the session, using the explicit params, the session config's retained
// definition, or the registered process-wide default, in that order. It is
// a no-op when the adapter is already enabled and connected.
func (m *SessionManager) EnableDistributor(ctx context.Context, sessionID, name string, params distributor.Params) error {
	session, err := m.getSession(sessionID)
	if err != nil {
		return err
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	if slot, ok := session.adapters[name]; ok && slot.state() == distributor.StateConnected {
		return nil
	}

	if params == nil {
		if retained, ok := session.config.Distributors[name]; ok {
			params = retained
		} else {
			m.mu.RLock()
			params = m.defaults[name]
			m.mu.RUnlock()
		}
	}
	if params == nil {
		return fmt.Errorf("gazefan: no parameters for distributor %q: pass params or register a default", name)
	}

	dist, err := m.registry.Build(name, params, m.wmLogger)
	if err != nil {
		return &enginerrors.ConnectError{Distributor: name, Err: err}
	}

	slot := &adapterSlot{dist: dist}
	session.adapters[name] = slot
	session.config.Distributors[name] = params.Clone()

	if err := dist.Connect(ctx); err != nil {
		slot.lastErr = &enginerrors.ConnectError{Distributor: name, Err: err}
		m.logger.Error("enable distributor", err, logging.LogFields{"session": sessionID, "distributor": name})
		return slot.lastErr
	}

	m.logger.Info("distributor enabled", logging.LogFields{"session": sessionID, "distributor": name})
	return nil
}

// DisableDistributor disconnects and removes the adapter. The config's
// parameter record stays in place so a later EnableDistributor without
// params can reuse it; routing entries naming the distributor fail soft at
// dispatch time.
func (m *SessionManager) DisableDistributor(sessionID, name string) error {
	session, err := m.getSession(sessionID)
	if err != nil {
		return err
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	slot, ok := session.adapters[name]
	if !ok {
		return &enginerrors.UnknownDistributorError{SessionID: sessionID, Distributor: name}
	}

	if slot.dist != nil {
		if err := slot.dist.Disconnect(); err != nil {
			m.logger.Error("disconnect distributor", err, logging.LogFields{"session": sessionID, "distributor": name})
		}
	}
	delete(session.adapters, name)

	m.logger.Info("distributor disabled", logging.LogFields{"session": sessionID, "distributor": name})
	return nil
}

// ReconfigureDistributor atomically swaps the adapter's connection to the
// new parameters. On failure the adapter stays in error state with the old
// connection gone; callers needing rollback re-reconfigure with the old
// parameters.
func (m *SessionManager) ReconfigureDistributor(ctx context.Context, sessionID, name string, newParams distributor.Params) error {
	session, err := m.getSession(sessionID)
	if err != nil {
		return err
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	slot, ok := session.adapters[name]
	if !ok || slot.dist == nil {
		return &enginerrors.UnknownDistributorError{SessionID: sessionID, Distributor: name}
	}

	session.config.Distributors[name] = newParams.Clone()
	if err := slot.dist.Reconfigure(ctx, newParams); err != nil {
		slot.lastErr = &enginerrors.ConnectError{Distributor: name, Err: err}
		m.logger.Error("reconfigure distributor", err, logging.LogFields{"session": sessionID, "distributor": name})
		return slot.lastErr
	}

	slot.lastErr = nil
	m.logger.Info("distributor reconfigured", logging.LogFields{"session": sessionID, "distributor": name})
	return nil
}

// UpdateEventRouting atomically replaces the session's routing table in
// full. Callers pass the complete desired table; nothing is merged.
func (m *SessionManager) UpdateEventRouting(sessionID string, newRouting map[string][]string) error {
	session, err := m.getSession(sessionID)
	if err != nil {
		return err
	}

	routing := make(map[string][]string, len(newRouting))
	for event, targets := range newRouting {
		routing[event] = slices.Clone(targets)
	}

	session.mu.Lock()
	session.config.EventRouting = routing
	session.mu.Unlock()
	return nil
}

// RouteEvent dispatches an event to the targets named by the session's
// routing table. An empty or absent routing entry yields zero targets, not
// an error.
func (m *SessionManager) RouteEvent(ctx context.Context, sessionID, event string, payload any) (DistributionResult, error) {
	if event == "" {
		return DistributionResult{}, enginerrors.ErrEventNameRequired
	}
	session, err := m.getSession(sessionID)
	if err != nil {
		return DistributionResult{}, err
	}

	session.mu.RLock()
	names := slices.Clone(session.config.EventRouting[event])
	session.mu.RUnlock()

	targets := session.snapshotTargets(names)
	return m.engine.Distribute(ctx, sessionID, event, payload, targets), nil
}

// Distribute dispatches an event to an explicit target list, bypassing the
// routing table.
func (m *SessionManager) Distribute(ctx context.Context, sessionID, event string, payload any, targetNames []string) (DistributionResult, error) {
	if event == "" {
		return DistributionResult{}, enginerrors.ErrEventNameRequired
	}
	session, err := m.getSession(sessionID)
	if err != nil {
		return DistributionResult{}, err
	}

	targets := session.snapshotTargets(targetNames)
	return m.engine.Distribute(ctx, sessionID, event, payload, targets), nil
}

// GetSessionStatus returns the introspection view of one session.
func (m *SessionManager) GetSessionStatus(sessionID string) (SessionStatus, error) {
	session, err := m.getSession(sessionID)
	if err != nil {
		return SessionStatus{}, err
	}

	session.mu.RLock()
	defer session.mu.RUnlock()

	status := SessionStatus{
		ID:                  session.id,
		State:               session.state,
		AllDistributors:     make(map[string]distributor.State, len(session.adapters)),
		EventRoutingSummary: make(map[string][]string, len(session.config.EventRouting)),
		CreatedAt:           session.createdAt,
	}
	for name, slot := range session.adapters {
		state := slot.state()
		status.AllDistributors[name] = state
		if state == distributor.StateConnected {
			status.ActiveDistributors = append(status.ActiveDistributors, name)
		}
	}
	sort.Strings(status.ActiveDistributors)
	for event, targets := range session.config.EventRouting {
		status.EventRoutingSummary[event] = slices.Clone(targets)
	}
	return status, nil
}

// ListSessions returns a snapshot of all sessions.
func (m *SessionManager) ListSessions() []SessionSummary {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session)
	}
	m.mu.RUnlock()

	summaries := make([]SessionSummary, 0, len(sessions))
	for _, session := range sessions {
		session.mu.RLock()
		summary := SessionSummary{
			ID:        session.id,
			State:     session.state,
			CreatedAt: session.createdAt,
		}
		for name, slot := range session.adapters {
			if slot.state() == distributor.StateConnected {
				summary.ActiveDistributors = append(summary.ActiveDistributors, name)
			}
		}
		session.mu.RUnlock()
		sort.Strings(summary.ActiveDistributors)
		summaries = append(summaries, summary)
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].ID < summaries[j].ID })
	return summaries
}

// CloseSession disconnects every adapter, marks the session closed, and
// removes it from the active map. Subsequent operations on the id fail
// with SessionNotFoundError.
func (m *SessionManager) CloseSession(sessionID string) error {
	m.mu.Lock()
	session, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return &enginerrors.SessionNotFoundError{ID: sessionID}
	}
	delete(m.sessions, sessionID)
	m.mu.Unlock()

	session.mu.Lock()
	defer session.mu.Unlock()

	for name, slot := range session.adapters {
		if slot.dist == nil {
			continue
		}
		if err := slot.dist.Disconnect(); err != nil {
			m.logger.Error("disconnect distributor", err, logging.LogFields{"session": sessionID, "distributor": name})
		}
	}
	session.adapters = make(map[string]*adapterSlot)
	now := time.Now()
	session.closedAt = &now
	session.state = SessionClosed

	m.logger.Info("session closed", logging.LogFields{"session": sessionID})
	return nil
}

// Cleanup closes every session. Intended for process shutdown.
func (m *SessionManager) Cleanup() {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		if err := m.CloseSession(id); err != nil {
			m.logger.Error("close session during cleanup", err, logging.LogFields{"session": id})
		}
	}
}
