// Package orchestrator wires the capture engine to its sources, sinks and
// observers.
package orchestrator

import "time"

const (
	// Event store configuration
	EventMaxEntries       = 200
	EventSubscriberBuffer = 64

	// Catalog batcher configuration
	CatalogBatcherMaxSize    = 16
	CatalogBatcherFlushDelay = 2 * time.Second
)
