// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package progress

import (
	"sync"
	"time"
)

// =============================================================================
// STEP
// =============================================================================

// Step names a stage of the installation pipeline.
type Step string

const (
	StepIdle          Step = "idle"
	StepPreparing     Step = "preparing"
	StepCloning       Step = "cloning"
	StepCloned        Step = "cloned"
	StepDependencies  Step = "dependencies"
	StepDepsInstalled Step = "deps_installed"
	StepModels        Step = "models"
	StepCompleted     Step = "completed"
	StepError         Step = "error"
)

// String returns the wire name of the step.
func (s Step) String() string {
	return string(s)
}

// Terminal reports whether no further updates follow within a run.
func (s Step) Terminal() bool {
	return s == StepCompleted || s == StepError
}

// =============================================================================
// SNAPSHOT
// =============================================================================

// Snapshot is a copy of the progress record.
type Snapshot struct {
	Step        Step      `json:"step"`
	Progress    int       `json:"progress"`
	Message     string    `json:"message"`
	IsComplete  bool      `json:"is_complete"`
	HasError    bool      `json:"has_error"`
	RunID       string    `json:"run_id,omitempty"`
	InstallPath string    `json:"install_path,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Terminal reports whether the snapshot ends its run.
func (s Snapshot) Terminal() bool {
	return s.Step.Terminal()
}

// =============================================================================
// TRACKER
// =============================================================================

// Tracker holds the progress record shared by the pipeline and its readers.
// Every update replaces all fields at once, so readers never observe a
// half-applied step.
type Tracker struct {
	mu      sync.RWMutex
	current Snapshot

	// subMu serializes delivery against unsubscribe; mu is never held while
	// sending.
	subMu  sync.Mutex
	subs   map[int]chan Snapshot
	nextID int
}

// NewTracker returns a tracker in the idle state with readyMessage.
func NewTracker(readyMessage string) *Tracker {
	return &Tracker{
		current: Snapshot{
			Step:      StepIdle,
			Message:   readyMessage,
			UpdatedAt: time.Now(),
		},
		subs: make(map[int]chan Snapshot),
	}
}

// Snapshot returns a copy of the current record.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current
}

// Publish replaces the record with s and notifies subscribers. UpdatedAt is
// stamped here.
func (t *Tracker) Publish(s Snapshot) {
	s.UpdatedAt = time.Now()

	t.mu.Lock()
	t.current = s
	t.mu.Unlock()

	t.subMu.Lock()
	defer t.subMu.Unlock()
	for _, ch := range t.subs {
		select {
		case ch <- s:
		default:
			// Slow reader; it can always poll Snapshot.
		}
	}
}

// Subscribe returns a channel receiving every published snapshot and a
// function that cancels the subscription and closes the channel.
func (t *Tracker) Subscribe(buffer int) (<-chan Snapshot, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Snapshot, buffer)

	t.subMu.Lock()
	id := t.nextID
	t.nextID++
	t.subs[id] = ch
	t.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			t.subMu.Lock()
			delete(t.subs, id)
			close(ch)
			t.subMu.Unlock()
		})
	}
}
