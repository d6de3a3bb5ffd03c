package orchestrator

import (
	"time"

	"github.com/GriffinCanCode/slidecapture/internal/capture"
	"github.com/GriffinCanCode/slidecapture/internal/crop"
	"github.com/GriffinCanCode/slidecapture/internal/dedup"
	"github.com/GriffinCanCode/slidecapture/internal/orchestrator/events"
)

// StatusData is the payload of a status event.
type StatusData struct {
	From capture.Status `json:"from"`
	To   capture.Status `json:"to"`
}

// FrameData is the payload of a frame_captured event.
type FrameData struct {
	Index      int       `json:"index"`
	Timestamp  time.Time `json:"timestamp"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	Stage      string    `json:"stage"`
	Similarity float64   `json:"similarity"`
}

// DebugData is the payload of a debug_log event.
type DebugData struct {
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"`
}

// eventBridge turns engine callbacks into stored events.
type eventBridge struct {
	store *events.Store
}

func (b eventBridge) StatusChanged(id string, from, to capture.Status) {
	b.store.Emit(events.Event{Type: events.TypeStatus, SessionID: id, Data: StatusData{From: from, To: to}})
}

func (b eventBridge) FrameRetained(id string, idx int, f capture.RetainedFrame, res dedup.Result) {
	b.store.Emit(events.Event{
		Type:      events.TypeFrameCaptured,
		SessionID: id,
		Timestamp: f.Timestamp,
		Data: FrameData{
			Index:      idx,
			Timestamp:  f.Timestamp,
			Width:      f.Width,
			Height:     f.Height,
			Stage:      res.Stage,
			Similarity: res.Similarity,
		},
	})
}

func (b eventBridge) TickSkipped(id, reason string) {
	b.store.Emit(events.Event{Type: events.TypeDebugLog, SessionID: id, Data: DebugData{Message: "tick skipped", Reason: reason}})
}

func (b eventBridge) RegionHighlighted(id string, o crop.Overlay) {
	b.store.Emit(events.Event{Type: events.TypeCropHighlight, SessionID: id, Data: o})
}
