package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/clinic-announcements-api/internal/models"
)

type countingRefreshTarget struct {
	calls int32
	fail  int32
	done  chan struct{}
}

func (c *countingRefreshTarget) Refresh(context.Context) (*models.AnnouncementSummary, error) {
	n := atomic.AddInt32(&c.calls, 1)
	if n <= atomic.LoadInt32(&c.fail) {
		return nil, errors.New("db unavailable")
	}
	select {
	case c.done <- struct{}{}:
	default:
	}
	return &models.AnnouncementSummary{TotalActive: 1}, nil
}

func TestStatsRefresherRejectsBadSchedule(t *testing.T) {
	_, err := NewStatsRefresher(&countingRefreshTarget{}, nil, zap.NewNop(), StatsRefresherConfig{Schedule: "every tuesday"})
	assert.Error(t, err)
}

func TestStatsRefresherWarmsOnStartAndRetries(t *testing.T) {
	target := &countingRefreshTarget{fail: 1, done: make(chan struct{}, 1)}
	refresher, err := NewStatsRefresher(target, NewMetricsService(), zap.NewNop(), StatsRefresherConfig{
		Schedule:   "@every 1h",
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
	})
	require.NoError(t, err)

	refresher.Start(context.Background())
	defer refresher.Stop()

	select {
	case <-target.done:
	case <-time.After(2 * time.Second):
		t.Fatal("refresh did not complete")
	}
	assert.Equal(t, int32(2), atomic.LoadInt32(&target.calls))
}
