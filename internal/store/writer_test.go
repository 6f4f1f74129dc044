package store_test

import (
	"context"
	"sync"
	"time"

	"github.com/juju/errors"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"smartattendance/internal/queue"
	"smartattendance/internal/store"
)

type recordingBackend struct {
	mu      sync.Mutex
	blobs   []string
	failOn  string
	written chan struct{}
}

func (b *recordingBackend) Load(context.Context) ([]byte, error) {
	return nil, errors.NotFoundf("state")
}

func (b *recordingBackend) Save(_ context.Context, blob []byte) error {
	defer func() { b.written <- struct{}{} }()
	if string(blob) == b.failOn {
		return errors.New("boom")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blobs = append(b.blobs, string(blob))
	return nil
}

func (b *recordingBackend) Healthy(context.Context) bool { return true }

func (b *recordingBackend) Close() error { return nil }

type writerSuite struct{}

var _ = gc.Suite(&writerSuite{})

func (s *writerSuite) TestWritesInOrder(c *gc.C) {
	backend := &recordingBackend{failOn: "bad", written: make(chan struct{}, 10)}
	q := queue.NewInMemory(10)
	w := store.NewWriter(q, backend, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	for _, blob := range []string{"one", "bad", "two"} {
		c.Assert(w.Save(ctx, []byte(blob)), jc.ErrorIsNil)
	}
	c.Assert(q.Publish(ctx, queue.Message{Type: "other", Body: []byte("ignored")}), jc.ErrorIsNil)
	c.Assert(w.Save(ctx, []byte("three")), jc.ErrorIsNil)

	for i := 0; i < 4; i++ {
		select {
		case <-backend.written:
		case <-time.After(5 * time.Second):
			c.Fatalf("timed out waiting for write %d", i)
		}
	}
	backend.mu.Lock()
	c.Assert(backend.blobs, jc.DeepEquals, []string{"one", "two", "three"})
	backend.mu.Unlock()

	cancel()
	select {
	case err := <-done:
		c.Assert(err, jc.ErrorIsNil)
	case <-time.After(5 * time.Second):
		c.Fatalf("writer did not stop")
	}
}

func (s *writerSuite) TestSaveFullQueue(c *gc.C) {
	w := store.NewWriter(queue.NewInMemory(1), nil, nil)
	c.Assert(w.Save(context.Background(), []byte("a")), jc.ErrorIsNil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := w.Save(ctx, []byte("b"))
	c.Assert(err, gc.ErrorMatches, "queueing snapshot: queue full: context deadline exceeded")
}

func (s *writerSuite) TestRunWithoutBackend(c *gc.C) {
	w := store.NewWriter(queue.NewInMemory(1), nil, nil)
	err := w.Run(context.Background())
	c.Assert(err, jc.ErrorIs, errors.NotValid)
}

func (s *writerSuite) waitWrites(c *gc.C, b *recordingBackend, n int) {
	for i := 0; i < n; i++ {
		select {
		case <-b.written:
		case <-time.After(5 * time.Second):
			c.Fatalf("timed out waiting for write %d", i)
		}
	}
}

func (s *writerSuite) TestFlushOutlastsRemoteBacklog(c *gc.C) {
	backend := &recordingBackend{written: make(chan struct{}, 10)}
	q := queue.NewInMemory(10)
	api := store.NewWriter(q, nil, nil)

	// Backlog still waiting for the draining process, then a dropped
	// publish leaves "new" only in memory.
	c.Assert(api.Save(context.Background(), []byte("old")), jc.ErrorIsNil)
	c.Assert(api.Flush(context.Background(), backend, []byte("new")), jc.ErrorIsNil)
	s.waitWrites(c, backend, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker := store.NewWriter(q, backend, nil)
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()
	s.waitWrites(c, backend, 2)
	cancel()
	<-done

	backend.mu.Lock()
	defer backend.mu.Unlock()
	c.Assert(backend.blobs, jc.DeepEquals, []string{"new", "old", "new"})
}

func (s *writerSuite) TestFlushLocalWriterSavesOnce(c *gc.C) {
	backend := &recordingBackend{written: make(chan struct{}, 10)}
	q := queue.NewInMemory(10)
	w := store.NewWriter(q, backend, nil)

	c.Assert(w.Flush(context.Background(), backend, []byte("final")), jc.ErrorIsNil)
	s.waitWrites(c, backend, 1)
	c.Assert(backend.blobs, jc.DeepEquals, []string{"final"})
	c.Assert(q.Len(), gc.Equals, 0)
}

func (s *writerSuite) TestFlushReportsBackendError(c *gc.C) {
	backend := &recordingBackend{failOn: "final", written: make(chan struct{}, 10)}
	q := queue.NewInMemory(10)
	w := store.NewWriter(q, nil, nil)

	err := w.Flush(context.Background(), backend, []byte("final"))
	c.Assert(err, gc.ErrorMatches, "saving final snapshot: boom")
	c.Assert(q.Len(), gc.Equals, 1)
}
