package history

import (
	"sync"
	"time"

	"wellwatch/internal/model"
)

// History is a fixed-capacity ring buffer of telemetry events for a single
// device. The write cursor wraps; once full, each append overwrites the
// oldest entry. Insertion order is arrival order.
type History struct {
	mu   sync.RWMutex
	buf  []model.TelemetryEvent
	next int
	size int
}

func New(capacity int) *History {
	if capacity <= 0 {
		capacity = 10000
	}
	return &History{buf: make([]model.TelemetryEvent, capacity)}
}

func (h *History) Append(ev model.TelemetryEvent) {
	h.mu.Lock()
	h.buf[h.next] = ev
	h.next = (h.next + 1) % len(h.buf)
	if h.size < len(h.buf) {
		h.size++
	}
	h.mu.Unlock()
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.size
}

func (h *History) Cap() int {
	return len(h.buf)
}

// Recent returns the last n events in chronological order. n <= 0 or
// n > Len() returns everything buffered.
func (h *History) Recent(n int) []model.TelemetryEvent {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if n <= 0 || n > h.size {
		n = h.size
	}
	out := make([]model.TelemetryEvent, 0, n)
	start := h.next - n
	if start < 0 {
		start += len(h.buf)
	}
	for i := 0; i < n; i++ {
		out = append(out, h.buf[(start+i)%len(h.buf)])
	}
	return out
}

// Window returns buffered events with timestamp >= now-seconds, in
// chronological order.
func (h *History) Window(seconds float64, now time.Time) []model.TelemetryEvent {
	cutoff := float64(now.UnixNano())/1e9 - seconds
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]model.TelemetryEvent, 0)
	start := h.next - h.size
	if start < 0 {
		start += len(h.buf)
	}
	for i := 0; i < h.size; i++ {
		ev := h.buf[(start+i)%len(h.buf)]
		if ev.Timestamp >= cutoff {
			out = append(out, ev)
		}
	}
	return out
}

// Last returns the most recently appended event.
func (h *History) Last() (model.TelemetryEvent, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.size == 0 {
		return model.TelemetryEvent{}, false
	}
	idx := h.next - 1
	if idx < 0 {
		idx += len(h.buf)
	}
	return h.buf[idx], true
}

// Set holds one History per device id.
type Set struct {
	mu       sync.RWMutex
	devices  map[string]*History
	capacity int
}

func NewSet(capacityPerDevice int) *Set {
	return &Set{
		devices:  make(map[string]*History),
		capacity: capacityPerDevice,
	}
}

// Get returns the device's history, creating it on first use.
func (s *Set) Get(deviceID string) *History {
	s.mu.RLock()
	h, ok := s.devices[deviceID]
	s.mu.RUnlock()
	if ok {
		return h
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok = s.devices[deviceID]; ok {
		return h
	}
	h = New(s.capacity)
	s.devices[deviceID] = h
	return h
}

// Peek returns the device's history without creating one.
func (s *Set) Peek(deviceID string) (*History, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.devices[deviceID]
	return h, ok
}

// Devices lists every device id seen so far.
func (s *Set) Devices() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.devices))
	for id := range s.devices {
		out = append(out, id)
	}
	return out
}
