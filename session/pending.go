// Package session tracks the multi-step configuration wizards. Each admin has
// at most one pending operation; starting a new wizard silently replaces any
// prior one.
package session

import "sync"

// Step identifies which wizard input the bot is waiting for.
type Step int

const (
	StepNone Step = iota
	StepURLButtonText
	StepURLButtonURL
	StepSubmenuButtonText
	StepChildNodeText
	StepNodeImage
	StepNodeRename
	StepWelcomeMessage
)

// Op is one user's in-progress wizard step. ButtonText carries the label
// collected in step one of the two-step wizards until step two consumes it.
type Op struct {
	Step       Step
	ChatID     int64
	NodeID     int64
	ButtonText string
}

// Pending is the injected pending-operation store, keyed by user id. Handlers
// suspend on store and transport calls, so two events from the same user can
// interleave; Lock gives each advance an explicit per-user critical section.
type Pending struct {
	mu    sync.Mutex
	ops   map[int64]Op
	locks map[int64]*sync.Mutex
}

// NewPending builds an empty pending-operation store.
func NewPending() *Pending {
	return &Pending{
		ops:   make(map[int64]Op),
		locks: make(map[int64]*sync.Mutex),
	}
}

// Get returns the user's pending operation, if any.
func (p *Pending) Get(userID int64) (Op, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	op, ok := p.ops[userID]
	return op, ok
}

// Set replaces the user's pending operation.
func (p *Pending) Set(userID int64, op Op) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ops[userID] = op
}

// Clear discards the user's pending operation.
func (p *Pending) Clear(userID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.ops, userID)
}

// Lock serialises a read-modify-write sequence for one user and returns the
// release function.
func (p *Pending) Lock(userID int64) func() {
	p.mu.Lock()
	l, ok := p.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		p.locks[userID] = l
	}
	p.mu.Unlock()

	l.Lock()
	return l.Unlock
}
