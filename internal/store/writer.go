package store

import (
	"context"

	"github.com/juju/errors"

	"smartattendance/internal/metrics"
	"smartattendance/internal/queue"
)

// SnapshotType tags state snapshots on the queue.
const SnapshotType = "state.snapshot"

// Writer persists state snapshots off the request path. Save only
// enqueues; Run drains the queue into the backend in order.
type Writer struct {
	queue   queue.Queue
	backend Backend
	metrics *metrics.Collector
}

// NewWriter returns a writer over q. backend may be nil for a
// publish-only writer whose snapshots are drained by another process.
func NewWriter(q queue.Queue, backend Backend, m *metrics.Collector) *Writer {
	return &Writer{queue: q, backend: backend, metrics: m}
}

// Save queues blob for writing.
func (w *Writer) Save(ctx context.Context, blob []byte) error {
	if err := w.queue.Publish(ctx, queue.Message{Type: SnapshotType, Body: blob}); err != nil {
		w.metrics.Snapshot("dropped")
		return errors.Annotate(err, "queueing snapshot")
	}
	w.metrics.Snapshot("queued")
	return nil
}

// Flush writes blob straight to b. When another process drains the queue
// the blob is queued as well, so it is also the last snapshot that
// process writes and older backlog cannot overwrite it. Both writes are
// attempted; the first error is returned.
func (w *Writer) Flush(ctx context.Context, b Backend, blob []byte) error {
	err := errors.Annotate(b.Save(ctx, blob), "saving final snapshot")
	if w.backend != nil {
		return err
	}
	if qerr := w.Save(ctx, blob); qerr != nil && err == nil {
		err = qerr
	}
	return err
}

// Run writes queued snapshots until ctx is done. Write failures are
// logged and the next snapshot is attempted.
func (w *Writer) Run(ctx context.Context) error {
	if w.backend == nil {
		return errors.NotValidf("writer without backend")
	}
	messages, err := w.queue.Consume(ctx)
	if err != nil {
		return errors.Annotate(err, "consuming snapshots")
	}
	for msg := range messages {
		if msg.Type != SnapshotType {
			logger.Debugf("skipping %q message", msg.Type)
			continue
		}
		if err := w.backend.Save(ctx, msg.Body); err != nil {
			logger.Errorf("writing snapshot: %v", err)
			w.metrics.Snapshot("failed")
			continue
		}
		w.metrics.Snapshot("written")
	}
	return nil
}
