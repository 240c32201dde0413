package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestViolationCleanupStops(t *testing.T) {
	ticks := make(chan struct{}, 64)
	orig := cleanupViolations
	cleanupViolations = func(time.Duration) error {
		ticks <- struct{}{}
		return nil
	}
	defer func() { cleanupViolations = orig }()

	stop := StartViolationCleanup(time.Millisecond, time.Hour)

	// immediate run plus at least one tick
	for i := 0; i < 2; i++ {
		select {
		case <-ticks:
		case <-time.After(time.Second):
			require.FailNow(t, "cleanup loop never ran")
		}
	}

	stop()
	stop() // second call is a no-op

	// let an in-flight tick finish, then the loop must be silent
	time.Sleep(20 * time.Millisecond)
	for len(ticks) > 0 {
		<-ticks
	}
	select {
	case <-ticks:
		assert.Fail(t, "cleanup ran after stop")
	case <-time.After(50 * time.Millisecond):
	}
}
