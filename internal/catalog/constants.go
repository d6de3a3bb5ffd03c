package catalog

import "time"

const (
	DefaultBatcherMaxSize    = 16
	DefaultBatcherFlushDelay = 2 * time.Second
	DefaultListLimit         = 50
)
