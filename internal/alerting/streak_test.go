package alerting

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStreaksAlertAtThresholdThenCooldown(t *testing.T) {
	s := NewStreaks(3, 10*time.Minute)
	t0 := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

	for i := 1; i <= 2; i++ {
		d, n := s.Observe("rate_a_to_b", true, t0)
		require.Equal(t, Quiet, d)
		require.Equal(t, i, n)
	}

	d, n := s.Observe("rate_a_to_b", true, t0.Add(time.Minute))
	require.Equal(t, Alert, d)
	require.Equal(t, 3, n)

	d, _ = s.Observe("rate_a_to_b", true, t0.Add(5*time.Minute))
	require.Equal(t, Quiet, d, "inside cooldown")

	d, n = s.Observe("rate_a_to_b", true, t0.Add(12*time.Minute))
	require.Equal(t, Alert, d)
	require.Equal(t, 5, n)
}

func TestStreaksRecoverOnlyAfterAlert(t *testing.T) {
	s := NewStreaks(2, time.Hour)
	now := time.Now()

	s.Observe("price_a_usd", true, now)
	d, _ := s.Observe("price_a_usd", false, now)
	require.Equal(t, Quiet, d)
	require.Zero(t, s.Failures("price_a_usd"))

	s.Observe("price_a_usd", true, now)
	d, _ = s.Observe("price_a_usd", true, now)
	require.Equal(t, Alert, d)

	d, _ = s.Observe("price_a_usd", false, now)
	require.Equal(t, Recover, d)
}

func TestStreaksKeysAreIndependent(t *testing.T) {
	s := NewStreaks(0, time.Hour)
	d, _ := s.Observe("a", true, time.Now())
	require.Equal(t, Alert, d)
	require.Zero(t, s.Failures("b"))
}
