package core

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/rueidis"
	"go.uber.org/zap"
)

const (
	// HeartbeatInterval is how often workers should report their status.
	HeartbeatInterval = 10 * time.Second

	// HeartbeatTTL is how long a worker's status remains valid.
	HeartbeatTTL = 10 * time.Minute

	// StaleThreshold is how long before a worker is considered offline.
	StaleThreshold = 1 * time.Minute

	statusKeyPrefix = "worker:"
)

// Status represents a worker's current state.
type Status struct {
	WorkerID    string    `json:"workerId"`
	WorkerType  string    `json:"workerType"`
	LastSeen    time.Time `json:"lastSeen"`
	CurrentTask string    `json:"currentTask,omitempty"`
	Processed   int64     `json:"processed"`
	Failed      int64     `json:"failed"`
	IsHealthy   bool      `json:"isHealthy"`
}

// IsStale reports whether the worker has missed its heartbeats.
func (s *Status) IsStale(now time.Time) bool {
	return now.Sub(s.LastSeen) > StaleThreshold
}

// Monitor handles worker status reporting and querying.
type Monitor struct {
	client rueidis.Client
	now    func() time.Time
	logger *zap.Logger
}

// NewMonitor creates a new worker status monitor.
func NewMonitor(client rueidis.Client, logger *zap.Logger) *Monitor {
	return &Monitor{
		client: client,
		now:    time.Now,
		logger: logger,
	}
}

func statusKey(status *Status) string {
	return fmt.Sprintf("%s%s:%s", statusKeyPrefix, status.WorkerType, status.WorkerID)
}

// ReportStatus updates a worker's status in Redis.
func (m *Monitor) ReportStatus(ctx context.Context, status Status) error {
	status.LastSeen = m.now()

	data, err := sonic.MarshalString(status)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}

	err = m.client.Do(ctx,
		m.client.B().Set().Key(statusKey(&status)).Value(data).Ex(HeartbeatTTL).Build(),
	).Error()
	if err != nil {
		return fmt.Errorf("failed to store status: %w", err)
	}

	return nil
}

// RemoveStatus deletes a worker's status, used on clean shutdown.
func (m *Monitor) RemoveStatus(ctx context.Context, status Status) error {
	if err := m.client.Do(ctx, m.client.B().Del().Key(statusKey(&status)).Build()).Error(); err != nil {
		return fmt.Errorf("failed to remove status: %w", err)
	}
	return nil
}

// GetAllStatuses retrieves every reported worker status.
func (m *Monitor) GetAllStatuses(ctx context.Context) ([]Status, error) {
	var keys []string

	cursor := uint64(0)
	for {
		entry, err := m.client.Do(ctx,
			m.client.B().Scan().Cursor(cursor).Match(statusKeyPrefix+"*").Count(100).Build(),
		).AsScanEntry()
		if err != nil {
			return nil, fmt.Errorf("failed to scan worker keys: %w", err)
		}

		keys = append(keys, entry.Elements...)
		cursor = entry.Cursor
		if cursor == 0 {
			break
		}
	}

	statuses := make([]Status, 0, len(keys))
	for _, key := range keys {
		data, err := m.client.Do(ctx, m.client.B().Get().Key(key).Build()).ToString()
		if err != nil {
			// Expired between scan and get
			if rueidis.IsRedisNil(err) {
				continue
			}
			m.logger.Error("Failed to get worker status", zap.String("key", key), zap.Error(err))
			continue
		}

		var status Status
		if err := sonic.UnmarshalString(data, &status); err != nil {
			m.logger.Error("Failed to unmarshal worker status", zap.String("key", key), zap.Error(err))
			continue
		}

		statuses = append(statuses, status)
	}

	return statuses, nil
}
