package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	tcvalkey "github.com/testcontainers/testcontainers-go/modules/valkey"

	"github.com/pitabwire/tracker/cache"
	cacheredis "github.com/pitabwire/tracker/cache/redis"
)

const valkeyImage = "docker.io/valkey/valkey:latest"

type RedisSuite struct {
	suite.Suite
	container *tcvalkey.ValkeyContainer
	url       string
}

func TestRedisSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container backed cache tests in short mode")
	}
	suite.Run(t, new(RedisSuite))
}

func (s *RedisSuite) SetupSuite() {
	ctx := s.T().Context()

	container, err := tcvalkey.Run(ctx, valkeyImage)
	s.Require().NoError(err)
	s.container = container

	s.url, err = container.ConnectionString(ctx)
	s.Require().NoError(err)
}

func (s *RedisSuite) TearDownSuite() {
	if s.container != nil {
		s.NoError(testcontainers.TerminateContainer(s.container))
	}
}

func (s *RedisSuite) TestNewRejectsBadURL() {
	_, err := cacheredis.New(context.Background(), cache.WithURL("://bad-url"))
	s.Error(err)
}

func (s *RedisSuite) TestOperationsTable() {
	ctx := context.Background()

	raw, err := cacheredis.New(ctx, cache.WithURL(s.url), cache.WithMaxAge(time.Minute))
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = raw.Close() })

	testCases := []struct {
		name string
		run  func() error
	}{
		{
			name: "set get exists delete",
			run: func() error {
				if err = raw.Set(ctx, "redis:key:1", []byte("value"), 0); err != nil {
					return err
				}
				val, found, getErr := raw.Get(ctx, "redis:key:1")
				s.True(found)
				s.Equal([]byte("value"), val)
				if getErr != nil {
					return getErr
				}
				exists, existsErr := raw.Exists(ctx, "redis:key:1")
				s.True(exists)
				if existsErr != nil {
					return existsErr
				}
				return raw.Delete(ctx, "redis:key:1")
			},
		},
		{
			name: "missing key",
			run: func() error {
				_, found, getErr := raw.Get(ctx, "redis:missing")
				s.False(found)
				return getErr
			},
		},
		{
			name: "increment",
			run: func() error {
				if delErr := raw.Delete(ctx, "redis:counter"); delErr != nil {
					return delErr
				}
				val, incErr := raw.Increment(ctx, "redis:counter", 4)
				s.Equal(int64(4), val)
				return incErr
			},
		},
		{
			name: "set counted",
			run: func() error {
				if delErr := raw.Delete(ctx, "redis:count"); delErr != nil {
					return delErr
				}
				for i := 1; i <= 3; i++ {
					n, setErr := raw.SetCounted(ctx, "redis:result", []byte("{}"), time.Second, "redis:count")
					if setErr != nil {
						return setErr
					}
					s.Equal(int64(i), n)
				}
				exists, existsErr := raw.Exists(ctx, "redis:result")
				s.True(exists)
				return existsErr
			},
		},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			s.Require().NoError(tc.run())
		})
	}
}
