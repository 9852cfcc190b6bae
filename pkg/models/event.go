package models

import "time"

// ChangeKind identifies which store mutation produced a ChangeEvent.
type ChangeKind string

const (
	ChangeUpsert ChangeKind = "upsert"
	ChangeClear  ChangeKind = "clear"
)

// ChangeEvent is broadcast after every store mutation. Origin identifies the
// store instance that performed the write so a listener can tell its own
// writes from those of other processes sharing the same medium.
type ChangeEvent struct {
	Kind   ChangeKind `json:"kind"`
	JobID  string     `json:"job_id,omitempty"`
	Origin string     `json:"origin"`
	At     time.Time  `json:"at"`
}
