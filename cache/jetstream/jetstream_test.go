package jetstream_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	tcnats "github.com/testcontainers/testcontainers-go/modules/nats"

	"github.com/pitabwire/tracker/cache"
	"github.com/pitabwire/tracker/cache/jetstream"
)

const natsImage = "docker.io/nats:2.11"

type JetstreamSuite struct {
	suite.Suite
	container *tcnats.NATSContainer
	url       string
}

func TestJetstreamSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container backed cache tests in short mode")
	}
	suite.Run(t, new(JetstreamSuite))
}

func (s *JetstreamSuite) SetupSuite() {
	ctx := s.T().Context()

	container, err := tcnats.Run(ctx, natsImage)
	s.Require().NoError(err)
	s.container = container

	s.url, err = container.ConnectionString(ctx)
	s.Require().NoError(err)
}

func (s *JetstreamSuite) TearDownSuite() {
	if s.container != nil {
		s.NoError(testcontainers.TerminateContainer(s.container))
	}
}

func (s *JetstreamSuite) TestReopenExistingBucket() {
	ctx := context.Background()

	first, err := jetstream.New(ctx, cache.WithURL(s.url), cache.WithName("reopen"), cache.WithMaxAge(time.Minute))
	s.Require().NoError(err)
	defer first.Close()

	second, err := jetstream.New(ctx, cache.WithURL(s.url), cache.WithName("reopen"), cache.WithMaxAge(time.Minute))
	s.Require().NoError(err)
	defer second.Close()

	s.Require().NoError(first.Set(ctx, "results/abc.json", []byte("{}"), 0))
	val, found, err := second.Get(ctx, "results/abc.json")
	s.Require().NoError(err)
	s.True(found)
	s.Equal([]byte("{}"), val)
}

func (s *JetstreamSuite) TestOperations() {
	ctx := context.Background()

	raw, err := jetstream.New(ctx, cache.WithURL(s.url), cache.WithName("ops"), cache.WithMaxAge(time.Minute))
	s.Require().NoError(err)
	defer raw.Close()

	s.Require().NoError(raw.Set(ctx, "k1", []byte("v1"), 0))
	exists, err := raw.Exists(ctx, "k1")
	s.Require().NoError(err)
	s.True(exists)

	n, err := raw.Increment(ctx, "count", 2)
	s.Require().NoError(err)
	s.Equal(int64(2), n)
	n, err = raw.Increment(ctx, "count", 3)
	s.Require().NoError(err)
	s.Equal(int64(5), n)

	n, err = raw.SetCounted(ctx, "results/x.json", []byte("{}"), 0, "count")
	s.Require().NoError(err)
	s.Equal(int64(6), n)

	s.Require().NoError(raw.Delete(ctx, "k1"))
	_, found, err := raw.Get(ctx, "k1")
	s.Require().NoError(err)
	s.False(found)
}
