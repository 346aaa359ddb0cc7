package sink

import (
	"sync"
)

// Writer receives records from concurrent completion handlers.
// Implementations must be safe for concurrent use.
type Writer interface {
	WriteRequest(RequestRecord) error
	WriteProbe(ProbeRecord) error
	WriteError(ErrorRecord) error
}

// Memory keeps records in memory.
type Memory struct {
	mu       sync.Mutex
	requests []RequestRecord
	probes   []ProbeRecord
	errors   []ErrorRecord
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) WriteRequest(r RequestRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, r)
	return nil
}

func (m *Memory) WriteProbe(r ProbeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.probes = append(m.probes, r)
	return nil
}

func (m *Memory) WriteError(r ErrorRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, r)
	return nil
}

func (m *Memory) Requests() []RequestRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RequestRecord(nil), m.requests...)
}

func (m *Memory) Probes() []ProbeRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ProbeRecord(nil), m.probes...)
}

func (m *Memory) Errors() []ErrorRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ErrorRecord(nil), m.errors...)
}
