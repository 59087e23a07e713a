// Package session owns the network sessions used to talk to game servers, one per target.
package session

import (
	"esimassist-backend/internal/components/assert"
	"esimassist-backend/internal/components/telemetry"
	"esimassist-backend/internal/target"
	"fmt"
	"sync"
)

const (
	report_pool_acquire = "pool.acquire"
	report_pool_release = "pool.release"
)

// Pool keeps at most one live Session per target. It is created at process start and torn
// down with Close at process stop.
type Pool struct {
	opts Options
	tel  telemetry.API

	mu         sync.Mutex
	sessions   map[target.ID]*Session
	guards     map[target.ID]*sync.RWMutex
	generation uint64
}

func NewPool(opts Options, tel telemetry.API) *Pool {
	assert.NotNil(tel)
	assert.NotEmptyStr(opts.UserAgent)

	return &Pool{
		opts:     opts,
		tel:      telemetry.NewScopedAPI("session_pool", tel),
		sessions: map[target.ID]*Session{},
		guards:   map[target.ID]*sync.RWMutex{},
	}
}

// Acquire returns the target's live session, creating it on first use.
func (p *Pool) Acquire(id target.ID) (*Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s, ok := p.sessions[id]; ok {
		return s, nil
	}

	p.generation++
	s, err := newSession(id, p.generation, p.opts, p.tel)
	if err != nil {
		p.tel.ReportBroken(report_pool_acquire, fmt.Errorf("create session: %w", err), id)
		return nil, err
	}
	p.sessions[id] = s
	p.tel.ReportDebug(report_pool_acquire, id, s.Generation)
	return s, nil
}

// Peek returns the target's live session without creating one.
func (p *Pool) Peek(id target.ID) (*Session, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.sessions[id]
	return s, ok
}

// Release closes the target's session and removes it from the pool, the next Acquire
// creates a fresh one. Releasing a target without a session does nothing.
func (p *Pool) Release(id target.ID) {
	p.mu.Lock()
	s, ok := p.sessions[id]
	delete(p.sessions, id)
	p.mu.Unlock()

	if !ok {
		return
	}
	s.close()
	p.tel.ReportDebug(report_pool_release, id, s.Generation)
}

// Guard returns the lock serializing a target's session replacement against requests that
// are using it. Requests hold it for reading, replacing the session holds it for writing.
func (p *Pool) Guard(id target.ID) *sync.RWMutex {
	p.mu.Lock()
	defer p.mu.Unlock()

	guard, ok := p.guards[id]
	if !ok {
		guard = &sync.RWMutex{}
		p.guards[id] = guard
	}
	return guard
}

// Len returns the number of live sessions.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}

// Close releases every session.
func (p *Pool) Close() {
	p.mu.Lock()
	ids := make([]target.ID, 0, len(p.sessions))
	for id := range p.sessions {
		ids = append(ids, id)
	}
	p.mu.Unlock()

	for _, id := range ids {
		p.Release(id)
	}
}
