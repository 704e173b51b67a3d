package sharedmem

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/Iron-Ham/agentsync/internal/errors"
	"github.com/Iron-Ham/agentsync/internal/event"
	"github.com/Iron-Ham/agentsync/internal/logging"
	"github.com/Iron-Ham/agentsync/internal/store"
)

// Defaults used when no option overrides them.
const (
	DefaultNamespace = "ai_collaboration"
	DefaultTTL       = time.Hour

	// DefaultPollInterval is how often WaitForDependency re-reads the awaited
	// record. It bounds how stale a waiter's view of the store can be.
	DefaultPollInterval = time.Second

	DefaultWaitTimeout = 30 * time.Second
	DefaultMaxAge      = 24 * time.Hour

	// UnknownRole is recorded for agents missing from the role map.
	UnknownRole = "unknown"
)

// DefaultRoles returns the built-in agent role map.
func DefaultRoles() map[string]string {
	return map[string]string{
		"kilo":          "frontend_development",
		"roo":           "backend_integration",
		"codesupernova": "monitoring_systems",
	}
}

// Memory implements the action record lifecycle over an injected store.
// It holds no record state of its own; every call goes to the store, so
// several Memory values (in one process or many) sharing a store and
// namespace see the same records.
type Memory struct {
	store          store.Store
	namespace      string
	ttl            time.Duration
	roles          map[string]string
	logger         *logging.Logger
	bus            *event.Bus
	now            func() time.Time
	pollInterval   time.Duration
	defaultTimeout time.Duration
}

// Option configures a Memory.
type Option func(*Memory)

// WithNamespace sets the key namespace. Distinct namespaces on one store are
// fully isolated from each other.
func WithNamespace(ns string) Option {
	return func(m *Memory) { m.namespace = ns }
}

// WithTTL sets the expiry requested for every write. Zero disables expiry.
func WithTTL(ttl time.Duration) Option {
	return func(m *Memory) { m.ttl = ttl }
}

// WithRoles replaces the agent role map.
func WithRoles(roles map[string]string) Option {
	return func(m *Memory) { m.roles = maps.Clone(roles) }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(m *Memory) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithBus sets the event bus lifecycle events are published on.
func WithBus(b *event.Bus) Option {
	return func(m *Memory) { m.bus = b }
}

// WithClock overrides the time source used for record timestamps and
// retention cutoffs.
func WithClock(now func() time.Time) Option {
	return func(m *Memory) {
		if now != nil {
			m.now = now
		}
	}
}

// WithPollInterval overrides DefaultPollInterval.
func WithPollInterval(d time.Duration) Option {
	return func(m *Memory) { m.pollInterval = d }
}

// WithDefaultTimeout overrides the wait timeout used when a caller passes zero.
func WithDefaultTimeout(d time.Duration) Option {
	return func(m *Memory) { m.defaultTimeout = d }
}

// New creates a Memory over s.
func New(s store.Store, opts ...Option) (*Memory, error) {
	if s == nil {
		return nil, errors.New("sharedmem: store is required")
	}

	m := &Memory{
		store:          s,
		namespace:      DefaultNamespace,
		ttl:            DefaultTTL,
		roles:          DefaultRoles(),
		logger:         logging.NopLogger(),
		now:            time.Now,
		pollInterval:   DefaultPollInterval,
		defaultTimeout: DefaultWaitTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}

	if err := store.ValidateKey(m.namespace); err != nil || strings.Contains(m.namespace, store.KeySeparator) {
		return nil, errors.NewValidationError("namespace must be a single key segment").
			WithField("namespace").WithValue(m.namespace)
	}
	if m.pollInterval <= 0 {
		return nil, errors.NewValidationError("poll interval must be positive").
			WithField("pollInterval").WithValue(m.pollInterval)
	}
	if m.ttl < 0 {
		return nil, errors.NewValidationError("ttl must not be negative").WithField("ttl").WithValue(m.ttl)
	}
	if m.defaultTimeout <= 0 {
		m.defaultTimeout = DefaultWaitTimeout
	}
	return m, nil
}

// Namespace returns the key namespace.
func (m *Memory) Namespace() string { return m.namespace }

// Store returns the underlying store.
func (m *Memory) Store() store.Store { return m.store }

// Logger returns the logger, so collaborators can share its destination.
func (m *Memory) Logger() *logging.Logger { return m.logger }

// Bus returns the event bus, which may be nil.
func (m *Memory) Bus() *event.Bus { return m.bus }

// Now returns the current time from the configured clock.
func (m *Memory) Now() time.Time { return m.now() }

// RoleOf returns the agent's role, or UnknownRole.
func (m *Memory) RoleOf(agentID string) string {
	if role, ok := m.roles[agentID]; ok {
		return role
	}
	return UnknownRole
}

// Key returns the store key of an action record.
func (m *Memory) Key(agentID, actionID string) string {
	return store.JoinKey(m.namespace, agentID, actionID)
}

// SetAction creates or overwrites the record with status active, a fresh
// timestamp, and payload merged in. Payload keys that collide with known
// fields are ignored, except "type" which sets the record type.
func (m *Memory) SetAction(ctx context.Context, agentID, actionID string, payload map[string]any) (*Record, error) {
	key, err := m.recordKey(agentID, actionID)
	if err != nil {
		return nil, err
	}

	rec := &Record{
		AgentID:   agentID,
		ActionID:  actionID,
		Status:    StatusActive,
		AgentRole: m.RoleOf(agentID),
		Timestamp: m.now(),
		Payload:   clonePayload(payload),
	}
	if t, ok := payload[fieldType]; ok && t != nil {
		rec.Type = fmt.Sprint(t)
	}

	log := m.logger.WithAgent(agentID).WithAction(actionID)
	if err := m.write(ctx, key, rec); err != nil {
		log.Error("failed to set action in shared memory", "error", err)
		return nil, err
	}

	log.Info("action stored in shared memory", "status", string(rec.Status), "type", rec.Type)
	m.bus.Publish(event.NewActionSetEvent(agentID, actionID, rec.Type))
	return rec, nil
}

// GetAction returns the stored record, or nil and no error when absent.
func (m *Memory) GetAction(ctx context.Context, agentID, actionID string) (*Record, error) {
	key, err := m.recordKey(agentID, actionID)
	if err != nil {
		return nil, err
	}
	rec, err := m.read(ctx, key)
	if err != nil {
		m.logger.WithAgent(agentID).WithAction(actionID).Error("failed to get action from shared memory", "error", err)
		return nil, err
	}
	return rec, nil
}

// CompleteAction marks the record completed with result. An absent record
// yields nil and no write. Completing twice is allowed and the later result
// wins; there is no compare-and-swap, so concurrent completions race.
// A stopped record is returned unchanged.
func (m *Memory) CompleteAction(ctx context.Context, agentID, actionID string, result any) (*Record, error) {
	key, err := m.recordKey(agentID, actionID)
	if err != nil {
		return nil, err
	}
	raw, err := encodeResult(result)
	if err != nil {
		return nil, errors.NewValidationError("result is not JSON-encodable").WithField("result").WithCause(err)
	}

	log := m.logger.WithAgent(agentID).WithAction(actionID)
	rec, err := m.read(ctx, key)
	if err != nil {
		log.Error("failed to complete action in shared memory", "error", err)
		return nil, err
	}
	if rec == nil {
		log.Debug("complete skipped, action not found")
		return nil, nil
	}
	if rec.Status == StatusStopped {
		log.Warn("complete ignored, action already stopped", "stop_reason", rec.StopReason)
		return rec, nil
	}

	rec.Status = StatusCompleted
	rec.Result = raw
	rec.CompletedAt = m.now()
	if err := m.write(ctx, key, rec); err != nil {
		log.Error("failed to complete action in shared memory", "error", err)
		return nil, err
	}

	log.Info("action completed in shared memory", "status", string(rec.Status))
	m.bus.Publish(event.NewActionCompletedEvent(agentID, actionID))
	return rec, nil
}

// StopAction moves an active record to stopped with reason. An absent record
// yields nil; a terminal record is returned unchanged.
func (m *Memory) StopAction(ctx context.Context, agentID, actionID, reason string) (*Record, error) {
	key, err := m.recordKey(agentID, actionID)
	if err != nil {
		return nil, err
	}

	log := m.logger.WithAgent(agentID).WithAction(actionID)
	rec, err := m.read(ctx, key)
	if err != nil {
		log.Error("failed to stop action in shared memory", "error", err)
		return nil, err
	}
	if rec == nil || rec.Status.IsTerminal() {
		return rec, nil
	}

	rec.Status = StatusStopped
	rec.StopReason = reason
	rec.StoppedAt = m.now()
	if err := m.write(ctx, key, rec); err != nil {
		log.Error("failed to stop action in shared memory", "error", err)
		return nil, err
	}

	log.Warn("action stopped", "reason", reason)
	m.bus.Publish(event.NewActionStoppedEvent(agentID, actionID, reason))
	return rec, nil
}

// GetActiveActions returns every active record in the namespace, oldest first.
func (m *Memory) GetActiveActions(ctx context.Context) ([]*Record, error) {
	records, _, err := m.list(ctx, m.namespace+store.KeySeparator)
	if err != nil {
		m.logger.Error("failed to get active actions", "error", err)
		return nil, err
	}
	return slices.DeleteFunc(records, func(r *Record) bool { return r.Status != StatusActive }), nil
}

// GetAgentActions returns every record of one agent, oldest first.
func (m *Memory) GetAgentActions(ctx context.Context, agentID string) ([]*Record, error) {
	if err := validateID("agentId", agentID); err != nil {
		return nil, err
	}
	records, _, err := m.list(ctx, store.JoinKey(m.namespace, agentID, ""))
	if err != nil {
		m.logger.WithAgent(agentID).Error("failed to get agent actions", "error", err)
		return nil, err
	}
	return records, nil
}

// GetAllActions returns every record in the namespace, oldest first.
func (m *Memory) GetAllActions(ctx context.Context) ([]*Record, error) {
	records, _, err := m.list(ctx, m.namespace+store.KeySeparator)
	return records, err
}

// list scans prefix and decodes every record key (exactly three segments)
// under it. Undecodable entries are logged and counted, never returned.
func (m *Memory) list(ctx context.Context, prefix string) ([]*Record, int, error) {
	entries, err := m.store.Scan(ctx, prefix)
	if err != nil {
		return nil, 0, err
	}

	records := make([]*Record, 0, len(entries))
	skipped := 0
	for _, e := range entries {
		if len(store.SplitKey(e.Key)) != 3 {
			continue
		}
		rec, err := decodeRecord(e.Key, e.Value)
		if err != nil {
			skipped++
			m.logger.Warn("skipping undecodable record", "key", e.Key, "error", err)
			continue
		}
		records = append(records, rec)
	}
	sortRecords(records)
	return records, skipped, nil
}

func (m *Memory) read(ctx context.Context, key string) (*Record, error) {
	data, err := m.store.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeRecord(key, data)
}

func (m *Memory) write(ctx context.Context, key string, rec *Record) error {
	data, err := encodeRecord(rec)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", key, err)
	}
	return m.store.Set(ctx, key, data, m.ttl)
}

func (m *Memory) recordKey(agentID, actionID string) (string, error) {
	if err := validateID("agentId", agentID); err != nil {
		return "", err
	}
	if err := validateID("actionId", actionID); err != nil {
		return "", err
	}
	return m.Key(agentID, actionID), nil
}

// validateID rejects IDs that cannot be a single key segment.
func validateID(field, id string) error {
	if id == "" {
		return errors.NewValidationError("must not be empty").WithField(field).WithValue(id)
	}
	if strings.Contains(id, store.KeySeparator) {
		return errors.NewValidationError("must not contain " + store.KeySeparator).WithField(field).WithValue(id)
	}
	if err := store.ValidateKey(id); err != nil {
		return errors.NewValidationError("not a valid key segment").WithField(field).WithValue(id).WithCause(err)
	}
	return nil
}

func encodeResult(result any) (json.RawMessage, error) {
	switch v := result.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		if !json.Valid(v) {
			return nil, fmt.Errorf("invalid raw JSON")
		}
		return append(json.RawMessage(nil), v...), nil
	default:
		return json.Marshal(v)
	}
}

func sortRecords(records []*Record) {
	slices.SortFunc(records, func(a, b *Record) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		if c := strings.Compare(a.AgentID, b.AgentID); c != 0 {
			return c
		}
		return strings.Compare(a.ActionID, b.ActionID)
	})
}
