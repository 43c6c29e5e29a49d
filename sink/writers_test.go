package sink_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"gocloud.dev/blob/memblob"
	"gocloud.dev/pubsub"

	"github.com/pitabwire/tracker/cache"
	"github.com/pitabwire/tracker/config"
	"github.com/pitabwire/tracker/sink"
)

type WritersSuite struct {
	suite.Suite
}

func TestWritersSuite(t *testing.T) {
	suite.Run(t, new(WritersSuite))
}

func (s *WritersSuite) TestTopicWriterPublishesRecords() {
	ctx := context.Background()

	w, err := sink.OpenWriter(ctx, "topic+mem://tracker-results-topic", sink.WriterConfig{})
	s.Require().NoError(err)

	sub, err := pubsub.OpenSubscription(ctx, "mem://tracker-results-topic")
	s.Require().NoError(err)
	defer sub.Shutdown(ctx)

	b := sink.NewBuffered[int](ctx, w, sink.WithKeyPrefix("frames"))
	s.Require().NoError(b.Offer(ctx, record("job1")))

	recvCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	msg, err := sub.Receive(recvCtx)
	s.Require().NoError(err)
	msg.Ack()

	s.Equal("frames/job1.json", msg.Metadata["key"])

	var got sink.Record[int]
	s.Require().NoError(json.Unmarshal(msg.Body, &got))
	s.Equal("job1", got.JobID)
	s.Equal(7, got.Value)

	s.Require().NoError(b.Close(ctx))
}

func (s *WritersSuite) TestBucketWriterStoresOneObjectPerRecord() {
	ctx := context.Background()

	bucket := memblob.OpenBucket(nil)
	b := sink.NewBuffered[int](ctx, sink.NewBucketWriter(bucket), sink.WithKeyPrefix("results"))

	s.Require().NoError(b.Offer(ctx, record("x1")))
	s.Require().NoError(b.Offer(ctx, record("x2")))

	s.Eventually(func() bool {
		ok, err := bucket.Exists(ctx, "results/x2.json")
		return err == nil && ok
	}, time.Second, 5*time.Millisecond)

	data, err := bucket.ReadAll(ctx, "results/x1.json")
	s.Require().NoError(err)

	var got sink.Record[int]
	s.Require().NoError(json.Unmarshal(data, &got))
	s.Equal("x1", got.JobID)

	attrs, err := bucket.Attributes(ctx, "results/x1.json")
	s.Require().NoError(err)
	s.Equal("application/json", attrs.ContentType)

	s.Require().NoError(b.Close(ctx))
}

func (s *WritersSuite) TestCacheWriterStoresRecordsAndCount() {
	ctx := context.Background()

	w, err := sink.OpenWriter(ctx, "cache+mem://", sink.WriterConfig{CacheTTL: time.Minute, KeyPrefix: "results"})
	s.Require().NoError(err)
	cw, ok := w.(*sink.CacheWriter)
	s.Require().True(ok)

	b := sink.NewBuffered[int](ctx, w, sink.WithKeyPrefix("results"))
	s.Require().NoError(b.Offer(ctx, record("c1")))
	s.Require().NoError(b.Offer(ctx, record("c2")))
	s.Eventually(func() bool { return b.Pending() == 0 }, time.Second, 5*time.Millisecond)

	records := cache.NewTyped[string, sink.Record[int]](cw.Cache(), nil)
	got, found, err := records.Get(ctx, "results/c2.json")
	s.Require().NoError(err)
	s.True(found)
	s.Equal("c2", got.JobID)

	count, err := cw.Cache().Increment(ctx, "results/count", 0)
	s.Require().NoError(err)
	s.Equal(int64(2), count)

	s.Require().NoError(b.Close(ctx))
}

func (s *WritersSuite) TestOpenWriterRejectsUnknownURLs() {
	ctx := context.Background()

	for _, u := range []string{"mem://ambiguous", "ftp://host/x", "cache+ftp://host", "::bad"} {
		s.Run(u, func() {
			_, err := sink.OpenWriter(ctx, u, sink.WriterConfig{})
			s.ErrorIs(err, sink.ErrUnsupportedURL)
		})
	}
}

func (s *WritersSuite) TestNewFromConfig() {
	ctx := context.Background()

	none, err := sink.NewFromConfig[int](ctx, &config.ConfigurationDefault{})
	s.Require().NoError(err)
	s.Nil(none)

	cfg := &config.ConfigurationDefault{
		SinkURL:        "bucket+mem://",
		SinkBufferSize: 4,
		SinkKeyPrefix:  "cfg",
	}
	b, err := sink.NewFromConfig[int](ctx, cfg)
	s.Require().NoError(err)
	s.Require().NotNil(b)

	s.Equal("cfg/j.json", b.Key(record("j")))
	s.Require().NoError(b.Close(ctx))
}
