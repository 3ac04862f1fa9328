package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxEvents caps the in-memory trail. Admin writes on IdP
// configurations are rare, so the cap is generous.
const DefaultMaxEvents = 10000

// MemoryAuditLogger keeps the audit trail in memory, newest first, capped at
// maxEvents. It backs the memory storage driver and the handler tests.
type MemoryAuditLogger struct {
	mu        sync.RWMutex
	events    []*AuditEvent
	maxEvents int
}

// MemoryAuditLoggerOption configures a MemoryAuditLogger.
type MemoryAuditLoggerOption func(*MemoryAuditLogger)

// WithMaxEvents sets the maximum number of events to store.
func WithMaxEvents(max int) MemoryAuditLoggerOption {
	return func(m *MemoryAuditLogger) {
		if max > 0 {
			m.maxEvents = max
		}
	}
}

// NewMemoryAuditLogger creates an in-memory audit logger.
func NewMemoryAuditLogger(opts ...MemoryAuditLoggerOption) *MemoryAuditLogger {
	m := &MemoryAuditLogger{
		events:    make([]*AuditEvent, 0),
		maxEvents: DefaultMaxEvents,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Log records an audit event.
func (m *MemoryAuditLogger) Log(ctx context.Context, event *AuditEvent) error {
	if event == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	// copy so later caller mutation cannot rewrite history
	eventCopy := *event
	if event.Changes != nil {
		eventCopy.Changes = &Changes{
			Before: copyMap(event.Changes.Before),
			After:  copyMap(event.Changes.After),
		}
	}

	m.events = append([]*AuditEvent{&eventCopy}, m.events...)
	if len(m.events) > m.maxEvents {
		m.events = m.events[:m.maxEvents]
	}

	return nil
}

// List returns events matching opts plus the total match count before
// pagination.
func (m *MemoryAuditLogger) List(ctx context.Context, opts ListOptions) ([]*AuditEvent, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var filtered []*AuditEvent
	for _, e := range m.events {
		if !matchesFilters(e, opts) {
			continue
		}
		filtered = append(filtered, e)
	}

	total := len(filtered)

	if opts.Limit <= 0 {
		opts.Limit = 50
	}
	if opts.Limit > 1000 {
		opts.Limit = 1000
	}

	start := opts.Offset
	if start > len(filtered) {
		start = len(filtered)
	}
	end := start + opts.Limit
	if end > len(filtered) {
		end = len(filtered)
	}

	result := filtered[start:end]
	copies := make([]*AuditEvent, len(result))
	for i, e := range result {
		copies[i] = copyEvent(e)
	}

	return copies, total, nil
}

// GetByResource returns every recorded event for one resource, e.g. the
// history of a single IdP configuration.
func (m *MemoryAuditLogger) GetByResource(ctx context.Context, resourceType, resourceID string) ([]*AuditEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*AuditEvent
	for _, e := range m.events {
		if e.ResourceType == resourceType && e.ResourceID == resourceID {
			result = append(result, copyEvent(e))
		}
	}

	return result, nil
}

// matchesFilters reports whether an event passes the List filters.
func matchesFilters(e *AuditEvent, opts ListOptions) bool {
	if opts.Actor != "" && e.Actor != opts.Actor {
		return false
	}
	if opts.Action != "" && e.Action != opts.Action {
		return false
	}
	if opts.ResourceType != "" && e.ResourceType != opts.ResourceType {
		return false
	}
	if opts.Since != nil && e.Timestamp.Before(*opts.Since) {
		return false
	}
	if opts.Until != nil && e.Timestamp.After(*opts.Until) {
		return false
	}
	return true
}

// copyEvent deep-copies an event including its change set.
func copyEvent(e *AuditEvent) *AuditEvent {
	if e == nil {
		return nil
	}
	copy := *e
	if e.Changes != nil {
		copy.Changes = &Changes{
			Before: copyMap(e.Changes.Before),
			After:  copyMap(e.Changes.After),
		}
	}
	return &copy
}

// copyMap shallow-copies a change map.
func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	copy := make(map[string]any, len(m))
	for k, v := range m {
		copy[k] = v
	}
	return copy
}
