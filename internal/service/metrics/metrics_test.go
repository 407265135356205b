package metrics

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	domain "github.com/oshokin/stop-the-game/internal/domain/alarm"
)

// TestCollectorCountsEvents verifies kind counters and the state gauge follow the events.
func TestCollectorCountsEvents(t *testing.T) {
	t.Parallel()

	c := New(context.Background())

	require.InDelta(t, 0, testutil.ToFloat64(c.events.WithLabelValues("ringing")), 1e-9)
	require.InDelta(t, 1, testutil.ToFloat64(c.state.WithLabelValues("idle")), 1e-9)

	at := time.Date(2026, 3, 1, 21, 0, 0, 0, time.UTC)

	c.Observe(domain.LifecycleEvent{Kind: domain.EventRinging, CycleID: 1, At: at, State: domain.StateRinging})
	c.Observe(domain.LifecycleEvent{Kind: domain.EventCancelled, CycleID: 1, At: at, State: domain.StateCancelled})
	c.Observe(domain.LifecycleEvent{Kind: domain.EventRestartArmed, CycleID: 1, At: at, State: domain.StateRestartArmed})
	c.Observe(domain.LifecycleEvent{Kind: domain.EventRinging, CycleID: 2, At: at, State: domain.StateRinging})

	require.InDelta(t, 2, testutil.ToFloat64(c.events.WithLabelValues("ringing")), 1e-9)
	require.InDelta(t, 1, testutil.ToFloat64(c.events.WithLabelValues("cancelled")), 1e-9)
	require.InDelta(t, 0, testutil.ToFloat64(c.events.WithLabelValues("sleep_failed")), 1e-9)
	require.InDelta(t, 1, testutil.ToFloat64(c.state.WithLabelValues("ringing")), 1e-9)
	require.InDelta(t, 0, testutil.ToFloat64(c.state.WithLabelValues("idle")), 1e-9)
	require.InDelta(t, 2, testutil.ToFloat64(c.cycle), 1e-9)
	require.InDelta(t, float64(at.Unix()), testutil.ToFloat64(c.lastEvent), 1e-3)

	require.Equal(t, len(domain.EventKinds()), testutil.CollectAndCount(c.events))
	require.Equal(t, len(domain.States()), testutil.CollectAndCount(c.state))
}

// TestCollectorTextfile verifies the registry is written in the text exposition format.
func TestCollectorTextfile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "textfile", "stop_the_game.prom")
	c := New(context.Background(), WithTextfile(path))

	c.Observe(domain.LifecycleEvent{Kind: domain.EventSleepFailed, CycleID: 3, State: domain.StateIdle})

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	text := string(data)
	require.Contains(t, text, `stop_the_game_events_total{kind="sleep_failed"} 1`)
	require.Contains(t, text, `stop_the_game_state{state="idle"} 1`)
	require.Contains(t, text, "stop_the_game_cycle_id 3")

	expected := `
# HELP stop_the_game_cycle_id Identifier of the most recent alarm cycle
# TYPE stop_the_game_cycle_id gauge
stop_the_game_cycle_id 3
`
	require.NoError(t, testutil.GatherAndCompare(c.Registry(), strings.NewReader(expected), "stop_the_game_cycle_id"))
}

// TestCollectorTextfileFailure verifies a write error does not panic the observer.
func TestCollectorTextfileFailure(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))

	c := New(context.Background(), WithTextfile(filepath.Join(blocker, "metrics.prom")))

	require.NotPanics(t, func() {
		c.Observe(domain.LifecycleEvent{Kind: domain.EventScheduled, State: domain.StateIdle})
	})
	require.InDelta(t, 1, testutil.ToFloat64(c.events.WithLabelValues("scheduled")), 1e-9)
}
