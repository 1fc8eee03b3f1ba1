//go:build integration

package cache_test

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"civreg/internal/registry"
	"civreg/internal/registry/cache"
	"civreg/pkg/platform/sentinel"
	"civreg/pkg/testutil/containers"
)

// countingClient counts how many lookups reach the authoritative source.
type countingClient struct {
	next  registry.Client
	calls atomic.Int32
}

func (c *countingClient) Lookup(ctx context.Context, nationalID string) (registry.Record, error) {
	c.calls.Add(1)
	return c.next.Lookup(ctx, nationalID)
}

type CacheSuite struct {
	suite.Suite
	redis *containers.RedisContainer
}

func TestCacheSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(CacheSuite))
}

func (s *CacheSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
}

func (s *CacheSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *CacheSuite) TestSecondLookupServedFromCache() {
	ctx := context.Background()
	const nationalID = "19990101-00001-00001-23"

	source := &countingClient{next: &registry.MockClient{Records: map[string]registry.Record{
		nationalID: {NationalID: nationalID, FirstName: "Amina", LastName: "Hassan", DateOfBirth: "1999-01-01"},
	}}}
	client := cache.New(source, s.redis.Client, time.Minute, slog.New(slog.DiscardHandler))

	first, err := client.Lookup(ctx, nationalID)
	s.Require().NoError(err)
	s.Equal("Amina", first.FirstName)

	second, err := client.Lookup(ctx, nationalID)
	s.Require().NoError(err)
	s.Equal(first, second)
	s.Equal(int32(1), source.calls.Load(), "second lookup should not reach the source")
}

func (s *CacheSuite) TestNotFoundIsCached() {
	ctx := context.Background()
	source := &countingClient{next: &registry.MockClient{Records: map[string]registry.Record{}}}
	client := cache.New(source, s.redis.Client, time.Minute, slog.New(slog.DiscardHandler))

	_, err := client.Lookup(ctx, "20000101-00009-00009-99")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)

	_, err = client.Lookup(ctx, "20000101-00009-00009-99")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
	s.Equal(int32(1), source.calls.Load(), "registry misses should be cached too")
}

func (s *CacheSuite) TestEntriesExpire() {
	ctx := context.Background()
	const nationalID = "19990101-00001-00002-24"
	source := &countingClient{next: &registry.MockClient{Records: map[string]registry.Record{
		nationalID: {NationalID: nationalID, FirstName: "Amina", LastName: "Hassan"},
	}}}
	client := cache.New(source, s.redis.Client, 100*time.Millisecond, slog.New(slog.DiscardHandler))

	_, err := client.Lookup(ctx, nationalID)
	s.Require().NoError(err)

	time.Sleep(200 * time.Millisecond)

	_, err = client.Lookup(ctx, nationalID)
	s.Require().NoError(err)
	s.Equal(int32(2), source.calls.Load(), "expired entry should fall through to the source")
}
