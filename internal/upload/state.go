// Package upload drives binary attachments through their transfer
// lifecycle: source detection, validation, chunked transfer, and the state
// machine guarding attachment.
package upload

import (
	"errors"
	"fmt"
	"sync"
)

// State is one phase of an upload's lifecycle.
type State int

const (
	StatePending State = iota
	StateUploading
	StateUploaded
	StateAttached
	StateExpired
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateUploading:
		return "uploading"
	case StateUploaded:
		return "uploaded"
	case StateAttached:
		return "attached"
	case StateExpired:
		return "expired"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Legal lifecycle transitions. ATTACHED and FAILED are terminal; EXPIRED
// may only re-enter UPLOADING (the single retry path).
var validTransitions = map[State][]State{
	StatePending:   {StateUploading},
	StateUploading: {StateUploaded, StateFailed},
	StateUploaded:  {StateAttached, StateExpired},
	StateExpired:   {StateUploading},
}

var (
	// ErrIllegalTransition marks a lifecycle violation. Always a
	// programming error, never retried.
	ErrIllegalTransition = errors.New("illegal upload state transition")

	// ErrExpired marks an attach attempted after the window elapsed.
	ErrExpired = errors.New("upload expired")
)

// TransitionError reports a forbidden lifecycle transition.
type TransitionError struct {
	UploadID string
	From     State
	To       State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("upload %s: illegal transition %s -> %s", e.UploadID, e.From, e.To)
}

func (e *TransitionError) Is(target error) bool { return target == ErrIllegalTransition }

// ExpiredError reports an attach (or other forward move) attempted on an
// expired upload.
type ExpiredError struct {
	UploadID string
}

func (e *ExpiredError) Error() string {
	return fmt.Sprintf("upload %s has expired", e.UploadID)
}

func (e *ExpiredError) Is(target error) bool { return target == ErrExpired }

// StateMachine tracks one upload's lifecycle and rejects every move not in
// the transition table. Safe for concurrent use.
type StateMachine struct {
	mu       sync.Mutex
	uploadID string
	state    State
}

func NewStateMachine(uploadID string) *StateMachine {
	return &StateMachine{uploadID: uploadID, state: StatePending}
}

// SetUploadID records the remote identifier once the slot exists. The
// machine is created before the remote slot, so the ID arrives late.
func (m *StateMachine) SetUploadID(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploadID = id
}

func (m *StateMachine) UploadID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.uploadID
}

func (m *StateMachine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Transition moves the machine to the requested state or fails without
// changing it. An expired upload refuses everything except the single
// re-upload path back to UPLOADING.
func (m *StateMachine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, allowed := range validTransitions[m.state] {
		if allowed == to {
			m.state = to
			return nil
		}
	}
	if m.state == StateExpired && to != StateUploading {
		return &ExpiredError{UploadID: m.uploadID}
	}
	return &TransitionError{UploadID: m.uploadID, From: m.state, To: to}
}

// AssertCanAttach fails unless the upload is currently UPLOADED.
func (m *StateMachine) AssertCanAttach() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.state {
	case StateUploaded:
		return nil
	case StateExpired:
		return &ExpiredError{UploadID: m.uploadID}
	default:
		return &TransitionError{UploadID: m.uploadID, From: m.state, To: StateAttached}
	}
}
