package model

import "time"

// StateSnapshot is an immutable copy of the engine's committed state,
// handed to observers
type StateSnapshot struct {
	Self             *SelfProfile `json:"self"`
	Initialized      bool         `json:"initialized"`
	Authenticated    bool         `json:"authenticated"`
	LastReconciledAt *time.Time   `json:"lastReconciledAt,omitempty"`
	Version          uint64       `json:"version"`
}
