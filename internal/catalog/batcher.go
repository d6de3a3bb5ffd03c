package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/GriffinCanCode/slidecapture/internal/capture"
	"github.com/GriffinCanCode/slidecapture/internal/trace"
)

type batchWriter interface {
	WriteBatch(ctx context.Context, records []Record) (int, error)
}

// Batcher accumulates finalized sessions and writes them in batches.
// It is a capture.Sink.
type Batcher struct {
	store       batchWriter
	maxSize     int
	flushDelay  time.Duration
	archiveName func(sessionID string) string
	now         func() time.Time

	mu    sync.Mutex
	items []Record
	timer *time.Timer
	wg    sync.WaitGroup
}

// NewBatcher creates a batcher. archiveName, when set, records where each
// session's archive went.
func NewBatcher(store batchWriter, maxSize int, flushDelay time.Duration, archiveName func(string) string) *Batcher {
	if maxSize <= 0 {
		maxSize = DefaultBatcherMaxSize
	}
	if flushDelay <= 0 {
		flushDelay = DefaultBatcherFlushDelay
	}
	return &Batcher{
		store:       store,
		maxSize:     maxSize,
		flushDelay:  flushDelay,
		archiveName: archiveName,
		now:         time.Now,
		items:       make([]Record, 0, maxSize),
	}
}

// Finalize queues the session for storage.
func (b *Batcher) Finalize(_ context.Context, sessionID string, frames []capture.RetainedFrame) error {
	b.Add(b.record(sessionID, frames))
	return nil
}

func (b *Batcher) record(sessionID string, frames []capture.RetainedFrame) Record {
	now := b.now().UTC()
	r := Record{Session: Session{ID: sessionID, Started: now, Finalized: now, Frames: len(frames)}}
	if len(frames) > 0 {
		r.Started = frames[0].Timestamp
		if b.archiveName != nil {
			r.Archive = b.archiveName(sessionID)
		}
	}
	r.FrameList = make([]Frame, len(frames))
	for i, f := range frames {
		r.FrameList[i] = Frame{Index: i, Timestamp: f.Timestamp, Width: f.Width, Height: f.Height}
	}
	return r
}

// Add queues a record for batched storage.
func (b *Batcher) Add(r Record) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items = append(b.items, r)

	if len(b.items) >= b.maxSize {
		b.flushLocked()
		return
	}

	if b.timer == nil {
		b.timer = time.AfterFunc(b.flushDelay, b.timerFlush)
	} else {
		b.timer.Reset(b.flushDelay)
	}
}

func (b *Batcher) timerFlush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flushLocked()
}

func (b *Batcher) flushLocked() {
	if len(b.items) == 0 {
		return
	}
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	items := b.items
	b.items = make([]Record, 0, b.maxSize)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ctx, span := trace.StartSpan(context.Background(), "catalog_batch_flush")
		defer span.End()
		span.SetAttr("count", len(items))

		log := trace.Logger(ctx)
		stored, err := b.store.WriteBatch(ctx, items)
		if err != nil {
			span.SetAttr("error", err.Error())
			log.Warn("catalog batch write failed", "error", err, "count", len(items))
		} else {
			log.Debug("catalog batch written", "stored", stored, "submitted", len(items))
		}
	}()
}

// Flush forces immediate flush of pending records.
func (b *Batcher) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flushLocked()
}

// Stop flushes remaining records and waits for in-flight writes.
func (b *Batcher) Stop() {
	b.Flush()
	b.wg.Wait()
}
