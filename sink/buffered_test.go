package sink_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/pitabwire/tracker/sink"
)

type recordingWriter struct {
	mu      sync.Mutex
	keys    []string
	fail    error
	gate    chan struct{}
	closed  bool
	written chan string
}

func newRecordingWriter() *recordingWriter {
	return &recordingWriter{written: make(chan string, 64)}
}

func (w *recordingWriter) Write(_ context.Context, key string, _ []byte) error {
	w.mu.Lock()
	gate := w.gate
	w.mu.Unlock()
	if gate != nil {
		<-gate
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fail != nil {
		return w.fail
	}
	w.keys = append(w.keys, key)
	w.written <- key
	return nil
}

func (w *recordingWriter) Close(_ context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *recordingWriter) setFail(err error) {
	w.mu.Lock()
	w.fail = err
	w.mu.Unlock()
}

func (w *recordingWriter) Keys() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.keys...)
}

type BufferedSuite struct {
	suite.Suite
}

func TestBufferedSuite(t *testing.T) {
	suite.Run(t, new(BufferedSuite))
}

func record(id string) sink.Record[int] {
	return sink.Record[int]{JobID: id, SettingsVersion: 1, CompletedAt: time.Now(), Value: 7}
}

func (s *BufferedSuite) TestWritesInOfferOrder() {
	ctx := context.Background()
	w := newRecordingWriter()
	b := sink.NewBuffered[int](ctx, w, sink.WithKeyPrefix("results"))

	for _, id := range []string{"a", "b", "c"} {
		s.Require().NoError(b.Offer(ctx, record(id)))
	}
	s.Require().NoError(b.Close(ctx))

	s.Equal([]string{"results/a.json", "results/b.json", "results/c.json"}, w.Keys())
	s.True(w.closed)
	s.Equal(0, b.Pending())
}

func (s *BufferedSuite) TestOfferFullReturnsErrSinkFull() {
	ctx := context.Background()
	w := newRecordingWriter()
	w.gate = make(chan struct{})
	b := sink.NewBuffered[int](ctx, w, sink.WithCapacity(2))

	s.Require().NoError(b.Offer(ctx, record("a")))
	s.Require().NoError(b.Offer(ctx, record("b")))
	s.ErrorIs(b.Offer(ctx, record("c")), sink.ErrSinkFull)

	close(w.gate)
	s.Require().NoError(b.Close(ctx))
	s.Len(w.Keys(), 2)
}

func (s *BufferedSuite) TestWriteFailureHaltsUntilCleared() {
	ctx := context.Background()
	w := newRecordingWriter()
	boom := errors.New("disk full")
	w.setFail(boom)

	b := sink.NewBuffered[int](ctx, w)
	s.Require().NoError(b.Offer(ctx, record("a")))
	s.Require().NoError(b.Offer(ctx, record("b")))

	s.Eventually(func() bool { return b.Error() != nil }, time.Second, 5*time.Millisecond)
	s.ErrorIs(b.Error(), boom)
	s.Equal(2, b.Pending())

	w.setFail(nil)
	b.ClearError()

	s.Eventually(func() bool { return b.Pending() == 0 }, time.Second, 5*time.Millisecond)
	s.Equal([]string{"a.json", "b.json"}, w.Keys())
	s.Require().NoError(b.Close(ctx))
}

func (s *BufferedSuite) TestPauseResumeAndClearPending() {
	ctx := context.Background()
	w := newRecordingWriter()
	b := sink.NewBuffered[int](ctx, w)

	b.Pause()
	s.Require().NoError(b.Offer(ctx, record("a")))
	s.Require().NoError(b.Offer(ctx, record("b")))
	s.Never(func() bool { return len(w.Keys()) > 0 }, 50*time.Millisecond, 5*time.Millisecond)

	s.Equal(2, b.ClearPending())
	s.Require().NoError(b.Offer(ctx, record("c")))
	b.Resume()

	s.Equal("c.json", <-w.written)
	s.Require().NoError(b.Close(ctx))
	s.Equal([]string{"c.json"}, w.Keys())
}

func (s *BufferedSuite) TestClosedSinkRejectsOffers() {
	ctx := context.Background()
	b := sink.NewBuffered[int](ctx, newRecordingWriter())

	s.Require().NoError(b.Close(ctx))
	s.Require().NoError(b.Close(ctx))
	s.ErrorIs(b.Offer(ctx, record("late")), sink.ErrSinkClosed)
}

func (s *BufferedSuite) TestClosePausedSinkLeavesRecordsUnwritten() {
	ctx := context.Background()
	w := newRecordingWriter()
	b := sink.NewBuffered[int](ctx, w)

	b.Pause()
	s.Require().NoError(b.Offer(ctx, record("a")))
	s.Require().NoError(b.Close(ctx))

	s.Empty(w.Keys())
	s.Equal(1, b.Pending())
}
