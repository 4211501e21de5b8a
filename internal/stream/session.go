// Package stream owns the lifecycle of live push-ingest sessions and
// runs accepted frames through the same deduplication and timeline
// pipeline as batch capture.
package stream

import (
	"errors"
	"time"
)

// Session states. Valid transitions are waiting→live→ended, ended→live
// (stream reconnect), and waiting/live→error.
const (
	StateWaiting = "waiting"
	StateLive    = "live"
	StateEnded   = "ended"
	StateError   = "error"
)

var (
	ErrCapacity         = errors.New("session capacity reached")
	ErrUnknownStreamKey = errors.New("unknown stream key")
	ErrInvalidState     = errors.New("invalid session state for operation")
)

// Session is the external snapshot of one ingest session. The stream
// key is the capability credential: knowing it is what authorizes
// publishing into the session.
type Session struct {
	ID             string     `json:"id"`
	StreamKey      string     `json:"stream_key"`
	Name           string     `json:"name,omitempty"`
	State          string     `json:"state"`
	SourceID       string     `json:"source_id,omitempty"`
	ClientAddr     string     `json:"client_addr,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	Width          int        `json:"width,omitempty"`
	Height         int        `json:"height,omitempty"`
	FramesReceived int        `json:"frames_received"`
	FramesStored   int        `json:"frames_stored"`
	BytesReceived  int64      `json:"bytes_received"`
}

// Status summarizes the manager and its sessions.
type Status struct {
	MaxSessions int        `json:"max_sessions"`
	Waiting     int        `json:"waiting"`
	Live        int        `json:"live"`
	Ended       int        `json:"ended"`
	Errored     int        `json:"errored"`
	Sessions    []*Session `json:"sessions"`
}
