package round

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrPhaseClosed         = errors.New("phase already released")
	ErrDuplicateSubmission = errors.New("decision already submitted for this phase")
	ErrBarrierNotReady     = errors.New("barrier still waiting for decisions")
)

// Validator checks a submission before it is admitted to a barrier.
type Validator func(id PlayerID, sub Submission) error

// Barrier gathers one phase's decisions from every group member. Submissions
// may arrive concurrently and in any order; invalid ones are rejected back to
// the caller and never stored. The barrier releases once every member has a
// stored decision.
type Barrier struct {
	phase    Phase
	validate Validator

	mu        sync.Mutex
	members   map[PlayerID]struct{}
	subs      map[PlayerID]Submission
	defaulted map[PlayerID]bool
	released  bool
	ready     chan struct{}
}

func NewBarrier(phase Phase, members []PlayerID, validate Validator) *Barrier {
	b := &Barrier{
		phase:     phase,
		validate:  validate,
		members:   make(map[PlayerID]struct{}, len(members)),
		subs:      make(map[PlayerID]Submission, len(members)),
		defaulted: make(map[PlayerID]bool),
		ready:     make(chan struct{}),
	}
	for _, id := range members {
		b.members[id] = struct{}{}
	}
	if len(b.members) == 0 {
		close(b.ready)
	}
	return b
}

func (b *Barrier) Phase() Phase { return b.phase }

// Submit validates and stores id's decision.
func (b *Barrier) Submit(id PlayerID, sub Submission) error {
	// Validation reads round state that settlement may mutate after release.
	if b.isReleased() {
		return ErrPhaseClosed
	}
	if b.validate != nil {
		if err := b.validate(id, sub); err != nil {
			return err
		}
	}
	return b.store(id, sub, false)
}

// Default stores the explicit zero decision for id. The timeout policy calls
// this for players who did not answer in time.
func (b *Barrier) Default(id PlayerID) error {
	return b.store(id, Submission{}, true)
}

func (b *Barrier) isReleased() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.released
}

func (b *Barrier) store(id PlayerID, sub Submission, defaulted bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return ErrPhaseClosed
	}
	if _, ok := b.members[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotMember, id)
	}
	if _, ok := b.subs[id]; ok {
		return fmt.Errorf("%w: %s %s", ErrDuplicateSubmission, id, b.phase)
	}
	sub.Targets = CopyRow(sub.Targets)
	b.subs[id] = sub
	if defaulted {
		b.defaulted[id] = true
	}
	if len(b.subs) == len(b.members) {
		close(b.ready)
	}
	return nil
}

// Pending lists members whose decision has not arrived yet.
func (b *Barrier) Pending() []PlayerID {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []PlayerID
	for id := range b.members {
		if _, ok := b.subs[id]; !ok {
			out = append(out, id)
		}
	}
	sortIDs(out)
	return out
}

func (b *Barrier) IsReady() bool {
	select {
	case <-b.ready:
		return true
	default:
		return false
	}
}

// Ready is closed once every member has a stored decision.
func (b *Barrier) Ready() <-chan struct{} { return b.ready }

// Release closes the phase and hands back the gathered decisions together
// with the set of players whose decision was defaulted.
func (b *Barrier) Release() (map[PlayerID]Submission, map[PlayerID]bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return nil, nil, ErrPhaseClosed
	}
	if len(b.subs) != len(b.members) {
		return nil, nil, fmt.Errorf("%w: %d/%d", ErrBarrierNotReady, len(b.subs), len(b.members))
	}
	b.released = true
	subs := make(map[PlayerID]Submission, len(b.subs))
	for id, s := range b.subs {
		subs[id] = s
	}
	defaulted := make(map[PlayerID]bool, len(b.defaulted))
	for id := range b.defaulted {
		defaulted[id] = true
	}
	return subs, defaulted, nil
}
