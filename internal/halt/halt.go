// Package halt holds the "trading halted" flag shared by the reconciler
// (writer) and the risk manager (reader). A Store keeps it across processes.
package halt

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/yanun0323/logs"

	"tradecore/pkg/exception"
)

// State is a point-in-time view of the flag.
type State struct {
	Halted bool      `json:"halted"`
	Reason string    `json:"reason,omitempty"`
	Since  time.Time `json:"since"`
}

// Store persists the flag.
type Store interface {
	LoadHalt() (State, error)
	SaveHalt(State) error
}

// Flag is safe for concurrent use. The zero value is not halted.
type Flag struct {
	halted atomic.Bool

	mu     sync.Mutex
	reason string
	since  time.Time
	store  Store
}

// New returns a cleared flag.
func New() *Flag {
	return &Flag{}
}

// Attach loads the stored state into the flag and writes every later change
// back to s. A stored halt wins over a cleared flag.
func (f *Flag) Attach(s Store) error {
	if f == nil || s == nil {
		return exception.ErrNilInstance
	}
	st, err := s.LoadHalt()
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.store = s
	if st.Halted && !f.halted.Load() {
		f.reason = st.Reason
		f.since = st.Since
		f.halted.Store(true)
	}
	return nil
}

// Halted reports whether trading is halted. It is a single atomic load.
func (f *Flag) Halted() bool {
	if f == nil {
		return false
	}
	return f.halted.Load()
}

// Halt sets the flag. The first reason is kept until Resume.
func (f *Flag) Halt(reason string) {
	if f == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.halted.Load() {
		return
	}
	f.reason = reason
	f.since = time.Now().UTC()
	f.halted.Store(true)
	f.persist()
}

// Resume clears the flag after manual resolution.
func (f *Flag) Resume() {
	if f == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.halted.Store(false)
	f.reason = ""
	f.since = time.Time{}
	f.persist()
}

// State returns the flag with its reason.
func (f *Flag) State() State {
	if f == nil {
		return State{}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stateLocked()
}

func (f *Flag) stateLocked() State {
	return State{Halted: f.halted.Load(), Reason: f.reason, Since: f.since}
}

// persist is called with mu held so writes reach the store in order.
func (f *Flag) persist() {
	if f.store == nil {
		return
	}
	if err := f.store.SaveHalt(f.stateLocked()); err != nil {
		logs.Errorf("halt: save state, err: %+v", err)
	}
}
