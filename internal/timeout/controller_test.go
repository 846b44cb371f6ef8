package timeout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_ElapsedAndRemaining(t *testing.T) {
	c := New(100 * time.Millisecond)
	assert.Equal(t, time.Duration(0), c.Elapsed())
	c.Start()
	time.Sleep(10 * time.Millisecond)
	assert.Greater(t, c.Elapsed(), time.Duration(0))
	assert.Less(t, c.Remaining(), 100*time.Millisecond)
}

func TestController_HasTimeForAndIsTimedOut(t *testing.T) {
	c := New(20 * time.Millisecond)
	c.Start()
	assert.True(t, c.HasTimeFor(5*time.Millisecond))
	assert.False(t, c.IsTimedOut())
	time.Sleep(25 * time.Millisecond)
	assert.True(t, c.IsTimedOut())
	assert.False(t, c.HasTimeFor(5*time.Millisecond))
}

func TestController_CheckpointReturnsErrorWhenExpired(t *testing.T) {
	c := New(5 * time.Millisecond)
	c.Start()
	time.Sleep(10 * time.Millisecond)
	err := c.Checkpoint("test")
	require.Error(t, err)
	var timeoutErr *Error
	assert.True(t, errors.As(err, &timeoutErr))
}

func TestController_StopIsIdempotent(t *testing.T) {
	c := New(time.Second)
	c.Start()
	c.Stop()
	c.Stop()
	select {
	case <-c.Done():
	default:
		t.Fatal("expected Done channel to be closed after Stop")
	}
}

func TestController_AbortFiresSignalImmediately(t *testing.T) {
	c := New(time.Hour)
	c.Start()
	c.Abort()
	select {
	case <-c.Done():
	default:
		t.Fatal("expected Done channel to be closed after Abort")
	}
}

func TestController_WithTimeout_OpCompletesInTime(t *testing.T) {
	c := New(time.Second)
	c.Start()
	err := c.WithTimeout(context.Background(), 50*time.Millisecond, func(ctx context.Context) error {
		return nil
	})
	assert.NoError(t, err)
}

func TestController_WithTimeout_OpExceedsPerCallDeadline(t *testing.T) {
	c := New(time.Second)
	c.Start()
	err := c.WithTimeout(context.Background(), 5*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.Error(t, err)
	var timeoutErr *Error
	assert.True(t, errors.As(err, &timeoutErr))
}

func TestController_WithTimeout_ControllerAbortedMidCall(t *testing.T) {
	c := New(time.Hour)
	c.Start()
	done := make(chan struct{})
	go func() {
		time.Sleep(5 * time.Millisecond)
		c.Abort()
	}()
	err := c.WithTimeout(context.Background(), time.Second, func(ctx context.Context) error {
		<-done
		return nil
	})
	require.Error(t, err)
	close(done)
}
