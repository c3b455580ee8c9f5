package hub

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeboard/internal/controller"
	"tradeboard/internal/session"
)

type fakeControls struct {
	mu       sync.Mutex
	started  []controller.Config
	stops    int
	switched []string
}

func (f *fakeControls) Start(_ context.Context, cfg controller.Config) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, cfg)
	return nil
}

func (f *fakeControls) Stop(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

func (f *fakeControls) SwitchStrategy(_ context.Context, class string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.switched = append(f.switched, class)
	return nil
}

func (f *fakeControls) Snapshot() controller.View {
	return controller.View{
		Phase:         controller.PhaseRunning,
		StrategyClass: "MomentumBot",
		Snapshot:      session.Snapshot{Identity: "sess-1", Running: true},
	}
}

func TestProcessCommandStart(t *testing.T) {
	controls := &fakeControls{}
	b := NewBroadcaster(NewHub(zerolog.Nop()), controls, time.Second, zerolog.Nop())

	b.processCommand(context.Background(), []byte(`{"type":"START","config":{"strategyClass":"MomentumBot","chartVisible":true,"params":{"period":14}}}`))

	require.Len(t, controls.started, 1)
	assert.Equal(t, "MomentumBot", controls.started[0].StrategyClass)
	assert.True(t, controls.started[0].ChartVisible)
	assert.Equal(t, 14.0, controls.started[0].Params["period"])
}

func TestProcessCommandStartWithoutConfigIgnored(t *testing.T) {
	controls := &fakeControls{}
	b := NewBroadcaster(NewHub(zerolog.Nop()), controls, time.Second, zerolog.Nop())

	b.processCommand(context.Background(), []byte(`{"type":"START"}`))
	assert.Empty(t, controls.started)
}

func TestProcessCommandStopAndSwitch(t *testing.T) {
	controls := &fakeControls{}
	b := NewBroadcaster(NewHub(zerolog.Nop()), controls, time.Second, zerolog.Nop())

	b.processCommand(context.Background(), []byte(`{"type":"STOP"}`))
	b.processCommand(context.Background(), []byte(`{"type":"SWITCH_STRATEGY","strategyClass":"MeanReversion"}`))
	b.processCommand(context.Background(), []byte(`{"type":"SWITCH_STRATEGY"}`))

	assert.Equal(t, 1, controls.stops)
	assert.Equal(t, []string{"MeanReversion"}, controls.switched)
}

func TestProcessCommandBadFramesIgnored(t *testing.T) {
	controls := &fakeControls{}
	b := NewBroadcaster(NewHub(zerolog.Nop()), controls, time.Second, zerolog.Nop())

	b.processCommand(context.Background(), []byte(`garbage`))
	b.processCommand(context.Background(), []byte(`{"type":"SELF_DESTRUCT"}`))

	assert.Empty(t, controls.started)
	assert.Zero(t, controls.stops)
}

func TestRunBroadcastsSnapshots(t *testing.T) {
	controls := &fakeControls{}
	h := NewHub(zerolog.Nop())
	b := NewBroadcaster(h, controls, 5*time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	select {
	case data := <-h.broadcast:
		var view struct {
			Phase    string `json:"phase"`
			Identity string `json:"identity"`
		}
		require.NoError(t, json.Unmarshal(data, &view))
		assert.Equal(t, "running", view.Phase)
		assert.Equal(t, "sess-1", view.Identity)
	case <-time.After(time.Second):
		t.Fatal("no snapshot broadcast")
	}
}

func TestRunExecutesQueuedCommands(t *testing.T) {
	controls := &fakeControls{}
	h := NewHub(zerolog.Nop())
	go h.Run()
	b := NewBroadcaster(h, controls, 10*time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	h.commands <- []byte(`{"type":"STOP"}`)

	require.Eventually(t, func() bool {
		controls.mu.Lock()
		defer controls.mu.Unlock()
		return controls.stops == 1
	}, time.Second, 5*time.Millisecond)
}
