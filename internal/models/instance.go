package models

import "time"

// InstanceStatus is the coarse health state published in instance_metadata.
type InstanceStatus string

const (
	InstanceActive   InstanceStatus = "active"
	InstanceStale    InstanceStatus = "stale"
	InstanceStopped  InstanceStatus = "stopped"
)

// InstanceMetadata is one row per process identity (UUID-PID composite).
type InstanceMetadata struct {
	InstanceID      string
	StartedAt       time.Time
	LastHeartbeat   time.Time
	IsLeader        bool
	LeaderAcquiredAt time.Time
	Status          InstanceStatus
	Hostname        string
}

// LeadershipTransition is one append-only row in leadership_history.
type LeadershipTransition struct {
	InstanceID      string
	BecameLeaderAt  time.Time
	ReleasedLeaderAt time.Time
	DurationSeconds float64
}
