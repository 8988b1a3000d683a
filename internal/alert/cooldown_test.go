package alert

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCooldownTracker_FirstFireAlwaysAllowed(t *testing.T) {
	c := NewCooldownTracker(10 * time.Minute)
	require.True(t, c.CanFire("Clinker_Outlet_Temperature_C", time.Now()))
}

func TestCooldownTracker_WindowBoundary(t *testing.T) {
	c := NewCooldownTracker(10 * time.Minute)
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	c.MarkFired("param", t0)

	// Inside the window, including exactly at it
	require.False(t, c.CanFire("param", t0.Add(1*time.Minute)))
	require.False(t, c.CanFire("param", t0.Add(10*time.Minute)))

	// Strictly past the window
	require.True(t, c.CanFire("param", t0.Add(10*time.Minute+time.Nanosecond)))
	require.True(t, c.CanFire("param", t0.Add(11*time.Minute)))

	// Other parameters are unaffected
	require.True(t, c.CanFire("other", t0.Add(1*time.Minute)))
}

func TestCooldownTracker_MarkFiredOverwrites(t *testing.T) {
	c := NewCooldownTracker(10 * time.Minute)
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	c.MarkFired("param", t0)
	c.MarkFired("param", t0.Add(5*time.Minute))

	require.Equal(t, t0.Add(5*time.Minute), c.LastFired("param"))
	require.False(t, c.CanFire("param", t0.Add(14*time.Minute)))
	require.True(t, c.CanFire("param", t0.Add(16*time.Minute)))
}

func TestCooldownTracker_TryFire(t *testing.T) {
	c := NewCooldownTracker(10 * time.Minute)
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	require.True(t, c.TryFire("param", t0))
	require.False(t, c.TryFire("param", t0.Add(1*time.Minute)))
	require.True(t, c.TryFire("param", t0.Add(11*time.Minute)))
}

// Two overlapping evaluations both crossing the threshold must produce
// exactly one fire: the check-and-mark is a single atomic operation.
func TestCooldownTracker_TryFireConcurrent(t *testing.T) {
	c := NewCooldownTracker(10 * time.Minute)
	now := time.Now()

	var fired int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.TryFire("param", now) {
				atomic.AddInt32(&fired, 1)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), fired)
}
