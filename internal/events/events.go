// Package events provides a lightweight non-blocking event bus used by the
// cache governor to announce evictions and resource advisories. Publishing
// never blocks the caller; slow subscribers drop events.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Severity constants for resource events
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Resource type constants
const (
	ResourceImageCache   = "image-cache"
	ResourcePreloadCache = "preload-cache"
	ResourceSystemMemory = "system-memory"
)

// ResourceEvent describes a resource condition observed by the governor.
type ResourceEvent struct {
	ID           string
	ResourceType string
	CurrentValue float64
	Threshold    float64
	Severity     string
	Message      string
	Timestamp    time.Time
}

// NewResourceEvent creates a new resource monitoring event.
func NewResourceEvent(resourceType string, currentValue, threshold float64, severity, message string) ResourceEvent {
	return ResourceEvent{
		ID:           uuid.NewString(),
		ResourceType: resourceType,
		CurrentValue: currentValue,
		Threshold:    threshold,
		Severity:     severity,
		Message:      message,
		Timestamp:    time.Now(),
	}
}

// Bus is a minimal publish/subscribe hub for resource events.
type Bus struct {
	mu   sync.RWMutex
	subs []chan ResourceEvent
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe returns a buffered channel receiving future events. The
// channel is owned by the bus and closed by Close.
func (b *Bus) Subscribe() <-chan ResourceEvent {
	ch := make(chan ResourceEvent, 16)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()
	return ch
}

// TryPublish delivers the event to every subscriber without blocking.
// Returns the number of subscribers that received it.
func (b *Bus) TryPublish(ev ResourceEvent) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for _, ch := range b.subs {
		select {
		case ch <- ev:
			delivered++
		default:
			// Subscriber buffer full, event dropped.
		}
	}
	return delivered
}

// Close closes all subscriber channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
