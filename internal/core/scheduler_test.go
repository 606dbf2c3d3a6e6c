package core

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestSchedulerStopsOnCancel(t *testing.T) {
	dir := NewDirectory()
	s := NewScheduler(dir, nil, time.Millisecond, 0, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestSchedulerDrivesDrift(t *testing.T) {
	dir := NewDirectory()
	_, err := dir.RegisterAsset(context.Background(), stock("AAPL", "100"))
	require.NoError(t, err)
	drifter := NewDrifter(dir, rand.NewPCG(7, 7), 1)
	s := NewScheduler(dir, drifter, 0, time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	require.Eventually(t, func() bool {
		a, err := dir.GetAsset("AAPL")
		return err == nil && !a.Price.Equal(dec("100"))
	}, time.Second, 2*time.Millisecond)

	hist, err := dir.GetPriceHistory("AAPL", 0)
	require.NoError(t, err)
	assert.Empty(t, hist)
}
