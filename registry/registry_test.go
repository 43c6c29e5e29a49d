package registry_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/pitabwire/tracker/registry"
)

type ctxCloser struct {
	closed int
	err    error
}

func (c *ctxCloser) Close(context.Context) error {
	c.closed++
	return c.err
}

type plainCloser struct{ closed bool }

func (c *plainCloser) Close() error {
	c.closed = true
	return nil
}

type RegistrySuite struct {
	suite.Suite
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}

func (s *RegistrySuite) TestCreateGetDestroy() {
	ctx := context.Background()
	r := registry.New[*ctxCloser]()

	obj := &ctxCloser{}
	h := r.Create(obj)
	s.NotZero(h)
	s.Equal(1, r.Len())

	got, err := r.Get(h)
	s.Require().NoError(err)
	s.Same(obj, got)

	s.Require().NoError(r.Destroy(ctx, h))
	s.Equal(1, obj.closed)
	s.Equal(0, r.Len())
}

func (s *RegistrySuite) TestInvalidHandles() {
	ctx := context.Background()
	r := registry.New[*ctxCloser]()

	h := r.Create(&ctxCloser{})
	s.Require().NoError(r.Destroy(ctx, h))

	testCases := []struct {
		name   string
		handle registry.Handle
	}{
		{"never issued", registry.Handle(42)},
		{"zero", registry.Handle(0)},
		{"destroyed", h},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			_, err := r.Get(tc.handle)
			s.ErrorIs(err, registry.ErrInvalidHandle)
			s.ErrorIs(r.Destroy(ctx, tc.handle), registry.ErrInvalidHandle)
		})
	}
}

func (s *RegistrySuite) TestIOCloserAndPlainValues() {
	ctx := context.Background()

	closers := registry.New[*plainCloser]()
	pc := &plainCloser{}
	s.Require().NoError(closers.Destroy(ctx, closers.Create(pc)))
	s.True(pc.closed)

	values := registry.New[string]()
	s.Require().NoError(values.Destroy(ctx, values.Create("not closable")))
}

func (s *RegistrySuite) TestDestroyAllJoinsErrors() {
	ctx := context.Background()
	r := registry.New[*ctxCloser]()

	boom := errors.New("close failed")
	ok := &ctxCloser{}
	bad := &ctxCloser{err: boom}
	r.Create(ok)
	r.Create(bad)

	err := r.DestroyAll(ctx)
	s.ErrorIs(err, boom)
	s.Equal(1, ok.closed)
	s.Equal(1, bad.closed)
	s.Equal(0, r.Len())
}

func (s *RegistrySuite) TestHandlesAreUniqueUnderConcurrency() {
	r := registry.New[int]()

	const workers = 16
	handles := make(chan registry.Handle, workers*10)
	var wg sync.WaitGroup
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 10 {
				handles <- r.Create(w*10 + i)
			}
		}()
	}
	wg.Wait()
	close(handles)

	seen := map[registry.Handle]bool{}
	for h := range handles {
		s.False(seen[h])
		seen[h] = true
	}
	s.Equal(workers*10, r.Len())
}
