// Package clock provides injectable time and id sources so that
// TTL and correlation behavior is deterministic under test.
package clock

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// IDGenerator mints opaque unique identifiers.
type IDGenerator interface {
	NewID() string
}

// System is the wall-clock implementation used in production.
type System struct{}

func (System) Now() time.Time {
	return time.Now().UTC()
}

// UUIDs generates random UUIDv4 identifiers.
type UUIDs struct{}

func (UUIDs) NewID() string {
	return uuid.NewString()
}

// Fake is a manually advanced clock for tests.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

// NewFake creates a fake clock starting at t.
func NewFake(t time.Time) *Fake {
	return &Fake{now: t}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance moves the fake clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// Set jumps the fake clock to t.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = t
}

// SeqIDs generates "prefix-1", "prefix-2", ... for deterministic tests.
type SeqIDs struct {
	mu     sync.Mutex
	Prefix string
	n      int
}

func (s *SeqIDs) NewID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("%s-%d", s.Prefix, s.n)
}
