package registry

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civreg/pkg/platform/sentinel"
)

func testBreakerClient(next Client) *BreakerClient {
	c := NewBreakerClient(next, slog.New(slog.DiscardHandler))
	c.probeEvery = time.Hour // no probes unless a test rewinds lastProbe
	c.lastProbe = time.Now()
	return c
}

func TestBreakerClient_OpensAfterConsecutiveFailures(t *testing.T) {
	mock := &MockClient{Down: true}
	client := testBreakerClient(mock)
	ctx := context.Background()

	for range 5 {
		_, err := client.Lookup(ctx, "19990101-00001-00001-23")
		require.ErrorIs(t, err, sentinel.ErrUnavailable)
	}

	// Circuit is open: fail fast without touching the registry.
	mock.Down = false
	_, err := client.Lookup(ctx, "19990101-00001-00001-23")
	require.ErrorIs(t, err, sentinel.ErrUnavailable)
}

func TestBreakerClient_ProbeClosesRecoveredCircuit(t *testing.T) {
	const nationalID = "19990101-00001-00001-23"
	mock := &MockClient{Down: true, Records: map[string]Record{
		nationalID: {NationalID: nationalID, FirstName: "Amina"},
	}}
	client := testBreakerClient(mock)
	ctx := context.Background()

	for range 5 {
		_, _ = client.Lookup(ctx, nationalID)
	}
	mock.Down = false

	// Two probe lookups close the circuit (success threshold 2).
	for range 2 {
		client.lastProbe = time.Time{}
		_, err := client.Lookup(ctx, nationalID)
		require.NoError(t, err)
	}

	record, err := client.Lookup(ctx, nationalID)
	require.NoError(t, err)
	assert.Equal(t, "Amina", record.FirstName)
}

func TestBreakerClient_NotFoundCountsAsSuccess(t *testing.T) {
	client := testBreakerClient(&MockClient{Records: map[string]Record{}})
	ctx := context.Background()

	for range 10 {
		_, err := client.Lookup(ctx, "20000101-00009-00009-99")
		require.ErrorIs(t, err, sentinel.ErrNotFound)
	}
}
