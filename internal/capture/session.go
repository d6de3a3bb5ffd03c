package capture

import (
	"time"

	"github.com/GriffinCanCode/slidecapture/internal/crop"
	"github.com/GriffinCanCode/slidecapture/internal/dedup"
)

// Status is the engine's position in the capture lifecycle.
type Status string

const (
	Idle      Status = "idle"
	Searching Status = "searching"
	Capturing Status = "capturing"
	Stopped   Status = "stopped"
	TimedOut  Status = "timed_out"
)

// Active reports whether timers are running in this status.
func (s Status) Active() bool { return s == Searching || s == Capturing }

// RetainedFrame is one kept frame, encoded at full cropped resolution.
type RetainedFrame struct {
	Encoded   []byte    `json:"-"`
	Timestamp time.Time `json:"timestamp"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
}

// Session is the mutable state of one capture run. Only the engine loop
// writes it.
type Session struct {
	ID       string
	Status   Status
	Started  time.Time
	Retained []RetainedFrame

	// signature of the last retained frame
	baseline dedup.Baseline
	// when the current search began
	searchStart time.Time
}

// Previous returns the signature of the most recently retained frame.
func (s *Session) Previous() dedup.Baseline { return s.baseline }

// Snapshot is a read-only view of the session for callers outside the loop.
type Snapshot struct {
	ID             string      `json:"session_id"`
	Status         Status      `json:"status"`
	Frames         int         `json:"frames"`
	Region         crop.Region `json:"region"`
	SourceAttached bool        `json:"source_attached"`
	Started        time.Time   `json:"started"`
}
