// Package capture runs the sampling loop that turns a live source into a
// deduplicated frame set.
package capture

import "time"

// Engine timing defaults
const (
	DefaultCaptureInterval = time.Second
	DefaultSearchInterval  = time.Second
	DefaultSearchTimeout   = 5 * time.Minute

	// Control commands queued while a tick runs
	commandBuffer = 8
)

// Tick skip reasons reported to observers
const (
	SkipNoSource  = "no_source"
	SkipBuffering = "buffering"
	SkipError     = "error"
)
