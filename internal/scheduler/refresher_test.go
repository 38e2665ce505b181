package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/topiga/currency/internal/testutils"
)

type countingRefresher struct {
	calls atomic.Int32
	err   error
}

func (r *countingRefresher) RefreshIfStale(ctx context.Context) (bool, error) {
	r.calls.Add(1)
	if _, ok := ctx.Deadline(); !ok {
		return false, errors.New("expected a deadline")
	}
	return true, r.err
}

func TestNew_InvalidSchedule(t *testing.T) {
	_, err := New("every so often", &countingRefresher{}, testutils.MockLogger(), time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid refresh schedule")
}

func TestScheduler_RunOnce(t *testing.T) {
	refresher := &countingRefresher{}
	scheduler, err := New("@every 1h", refresher, testutils.MockLogger(), time.Second)
	require.NoError(t, err)

	scheduler.RunOnce()
	assert.Equal(t, int32(1), refresher.calls.Load())

	refresher.err = errors.New("offline")
	assert.NotPanics(t, scheduler.RunOnce)
	assert.Equal(t, int32(2), refresher.calls.Load())
}

func TestScheduler_StartRefreshesImmediately(t *testing.T) {
	refresher := &countingRefresher{}
	scheduler, err := New("@every 1h", refresher, testutils.MockLogger(), time.Second)
	require.NoError(t, err)

	scheduler.Start()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		scheduler.Stop(ctx)
	}()

	assert.Eventually(t, func() bool { return refresher.calls.Load() == 1 }, time.Second, 10*time.Millisecond)
}
