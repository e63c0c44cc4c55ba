package connector_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flagsync/flagsync/connector"
	"github.com/flagsync/flagsync/store"
)

type fakeStreamEvent struct {
	event string
	data  string
}

func (e fakeStreamEvent) Event() string { return e.event }
func (e fakeStreamEvent) Data() string  { return e.data }

func TestEventProcessor_ConnectedHydrates(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{}
	p := connector.NewEventProcessor(eng, store.NewMemoryStore())
	assert.False(t, p.Hydrated())

	p.Process(context.Background(), fakeStreamEvent{event: connector.EventConnected, data: featureDoc})

	assert.True(t, p.Hydrated())
	assert.Equal(t, 1, eng.stateCount())
	assert.True(t, eng.enabled("f"))
}

func TestEventProcessor_FailedApplyDoesNotHydrate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := store.NewMemoryStore()
	eng := &fakeEngine{takeErr: errors.New("malformed payload")}
	p := connector.NewEventProcessor(eng, st)

	p.Process(ctx, fakeStreamEvent{event: connector.EventConnected, data: featureDoc})

	// The engine rejected the snapshot: the client must not look ready,
	// and nothing may be cached.
	assert.False(t, p.Hydrated())
	_, ok, err := st.Get(ctx, store.KeyFeatureState)
	require.NoError(t, err)
	assert.False(t, ok)

	// The next reconnect snapshot still hydrates once the engine accepts it.
	eng.takeErr = nil
	p.Process(ctx, fakeStreamEvent{event: connector.EventConnected, data: featureDoc})
	assert.True(t, p.Hydrated())
}

func TestEventProcessor_PersistsConnectedSnapshot(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := store.NewMemoryStore()
	p := connector.NewEventProcessor(&fakeEngine{}, st)

	p.Process(ctx, fakeStreamEvent{event: connector.EventConnected, data: featureDoc})

	v, ok, err := st.Get(ctx, store.KeyFeatureState)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, featureDoc, v)

	// Deltas are not re-persisted; the cache keeps the last full snapshot.
	updateDoc := `{"version":1,"features":[{"name":"f","enabled":false}]}`
	p.Process(ctx, fakeStreamEvent{event: connector.EventUpdated, data: updateDoc})

	v, ok, err = st.Get(ctx, store.KeyFeatureState)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, featureDoc, v)
}

func TestEventProcessor_NilStore(t *testing.T) {
	t.Parallel()

	p := connector.NewEventProcessor(&fakeEngine{}, nil)
	p.Process(context.Background(), fakeStreamEvent{event: connector.EventConnected, data: featureDoc})
	assert.True(t, p.Hydrated())
}

func TestEventProcessor_AppliesInArrivalOrder(t *testing.T) {
	t.Parallel()

	first := `{"version":1,"features":[{"name":"f","enabled":true}]}`
	second := `{"version":1,"features":[{"name":"f","enabled":false}]}`

	eng := &fakeEngine{}
	p := connector.NewEventProcessor(eng, store.NewMemoryStore())

	p.Process(context.Background(), fakeStreamEvent{event: connector.EventConnected, data: first})
	p.Process(context.Background(), fakeStreamEvent{event: connector.EventUpdated, data: second})

	states := eng.allStates()
	require.Len(t, states, 2)
	assert.JSONEq(t, first, states[0])
	assert.JSONEq(t, second, states[1])
	assert.False(t, eng.enabled("f"), "last applied payload wins")
}

func TestEventProcessor_UpdatedAloneDoesNotHydrate(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{}
	p := connector.NewEventProcessor(eng, store.NewMemoryStore())

	p.Process(context.Background(), fakeStreamEvent{event: connector.EventUpdated, data: featureDoc})

	assert.False(t, p.Hydrated())
	assert.Equal(t, 1, eng.stateCount())
}

func TestEventProcessor_HydratedNeverResets(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{}
	p := connector.NewEventProcessor(eng, store.NewMemoryStore())

	p.Process(context.Background(), fakeStreamEvent{event: connector.EventConnected, data: featureDoc})
	require.True(t, p.Hydrated())

	// A reconnect re-sends the connected event; hydration stays set.
	p.Process(context.Background(), fakeStreamEvent{event: connector.EventConnected, data: featureDoc})
	assert.True(t, p.Hydrated())
	assert.Equal(t, 2, eng.stateCount())
}

func TestEventProcessor_IgnoresUnknownEvents(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{}
	p := connector.NewEventProcessor(eng, store.NewMemoryStore())

	p.Process(context.Background(), fakeStreamEvent{event: "heartbeat", data: "{}"})
	p.Process(context.Background(), fakeStreamEvent{event: "", data: featureDoc})

	assert.Zero(t, eng.stateCount())
	assert.False(t, p.Hydrated())
}

func TestEventProcessor_SkipsEmptyPayload(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{}
	p := connector.NewEventProcessor(eng, store.NewMemoryStore())

	p.Process(context.Background(), fakeStreamEvent{event: connector.EventConnected})

	// No payload means nothing was loaded; hydration waits for a snapshot
	// the engine actually ingested.
	assert.Zero(t, eng.stateCount())
	assert.False(t, p.Hydrated())
}

func TestEventProcessor_PreloadedState(t *testing.T) {
	t.Parallel()

	p := connector.NewEventProcessor(&fakeEngine{}, store.NewMemoryStore(), connector.WithPreloadedState())
	assert.True(t, p.Hydrated())
}
