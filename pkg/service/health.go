package service

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/rfqlabs/rfq-relayer/pkg/app/errors"
)

const (
	// healthCacheTTL bounds the load health checks put on the database.
	healthCacheTTL = 30 * time.Second
	// heartbeatStaleAfter marks a worker as stalled when its heartbeat is
	// older than this.
	heartbeatStaleAfter = 5 * time.Minute
)

// WorkerHealth summarizes one worker's heartbeat
type WorkerHealth struct {
	Address    string `json:"address"`
	Index      int    `json:"index"`
	BalanceWei string `json:"balanceWei"`
	UpdatedAt  int64  `json:"updatedAt"`
	Stale      bool   `json:"stale"`
}

// HealthResult aggregates queue depth and worker liveness
type HealthResult struct {
	Healthy    bool           `json:"healthy"`
	QueueDepth int            `json:"queueDepth"`
	Workers    []WorkerHealth `json:"workers"`
	CheckedAt  int64          `json:"checkedAt"`
}

type healthCache struct {
	mu        sync.Mutex
	result    *HealthResult
	fetchedAt time.Time
}

// GetHealth reports aggregated system health. Results are cached for
// healthCacheTTL so the endpoint can be polled aggressively.
func (s *Service) GetHealth(ctx context.Context) (*HealthResult, error) {
	s.health.mu.Lock()
	defer s.health.mu.Unlock()

	now := s.now()
	if s.health.result != nil && now.Sub(s.health.fetchedAt) < healthCacheTTL {
		return s.health.result, nil
	}

	depth, err := s.store.CountUnresolvedJobs(ctx)
	if err != nil {
		return nil, apperrors.GeneralError(err)
	}
	heartbeats, err := s.store.FindHeartbeats(ctx)
	if err != nil {
		return nil, apperrors.GeneralError(err)
	}

	result := &HealthResult{
		Healthy:    len(heartbeats) > 0,
		QueueDepth: depth,
		Workers:    make([]WorkerHealth, 0, len(heartbeats)),
		CheckedAt:  now.Unix(),
	}
	for _, hb := range heartbeats {
		stale := now.Sub(hb.UpdatedAt) > heartbeatStaleAfter
		if stale {
			result.Healthy = false
		}
		balance := "0"
		if hb.BalanceWei != nil {
			balance = hb.BalanceWei.String()
		}
		result.Workers = append(result.Workers, WorkerHealth{
			Address:    hb.Address,
			Index:      hb.Index,
			BalanceWei: balance,
			UpdatedAt:  hb.UpdatedAt.Unix(),
			Stale:      stale,
		})
	}

	s.health.result = result
	s.health.fetchedAt = now
	return result, nil
}
