package tracking

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleMessage(t *testing.T) {
	subs := &fakeSubmitter{}
	m := newTestManager(subs, nil)
	ctx := context.Background()

	require.NoError(t, m.HandleMessage(ctx, []byte(`{"userID":9,"action":"start"}`)))
	require.NoError(t, m.HandleMessage(ctx, []byte(`{"userID":9,"fixes":[{"speed":12},{"speed":13}]}`)))
	assert.Equal(t, 2, m.Status(9).FixCount)

	m.now = func() time.Time { return base.Add(5 * time.Minute) }
	require.NoError(t, m.HandleMessage(ctx, []byte(`{"userID":9,"action":"stop"}`)))
	require.Len(t, subs.submitted(), 1)
	assert.Equal(t, 5, subs.submitted()[0].TripDurationMinutes)
}

func TestHandleMessageRejects(t *testing.T) {
	m := newTestManager(&fakeSubmitter{}, nil)
	ctx := context.Background()

	assert.ErrorIs(t, m.HandleMessage(ctx, []byte(`{`)), ErrMalformedMessage)
	assert.ErrorIs(t, m.HandleMessage(ctx, []byte(`{"action":"start"}`)), ErrMalformedMessage)
	assert.ErrorIs(t, m.HandleMessage(ctx, []byte(`{"userID":1,"action":"pause"}`)), ErrMalformedMessage)
	assert.ErrorIs(t, m.HandleMessage(ctx, []byte(`{"userID":1,"fixes":[{"speed":3}]}`)), ErrNotTracking)
}
