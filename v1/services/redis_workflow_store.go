package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cabepi/lab-pbm-senasa/monitoring"
	"github.com/cabepi/lab-pbm-senasa/v1/models"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	redisBackend      = "redis"
	workflowKeyPrefix = "pbm:workflow:"
)

// releaseScript deletes the lock only if it still carries our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisWorkflowStore keeps snapshots in Redis so every replica sees the same
// workflow and the per-transaction lock holds across processes.
type RedisWorkflowStore struct {
	client  redis.UniversalClient
	ttl     time.Duration
	lockTTL time.Duration
}

// NewRedisWorkflowStore creates the store. lockTTL bounds how long a crashed
// step can hold a transaction.
func NewRedisWorkflowStore(client redis.UniversalClient, ttl, lockTTL time.Duration) *RedisWorkflowStore {
	return &RedisWorkflowStore{client: client, ttl: ttl, lockTTL: lockTTL}
}

func workflowKey(transactionID string) string {
	return workflowKeyPrefix + transactionID
}

func lockKey(transactionID string) string {
	return workflowKeyPrefix + transactionID + ":lock"
}

// Get loads and decodes a snapshot
func (s *RedisWorkflowStore) Get(ctx context.Context, transactionID string) (*models.Workflow, error) {
	raw, err := s.client.Get(ctx, workflowKey(transactionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		monitoring.RecordStoreLookup(ctx, redisBackend, false)
		return nil, ErrWorkflowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow %s: %w", transactionID, err)
	}
	monitoring.RecordStoreLookup(ctx, redisBackend, true)

	var wf models.Workflow
	if err := json.Unmarshal(raw, &wf); err != nil {
		return nil, fmt.Errorf("failed to decode workflow %s: %w", transactionID, err)
	}
	return &wf, nil
}

// Save writes the snapshot with the store TTL
func (s *RedisWorkflowStore) Save(ctx context.Context, workflow *models.Workflow) error {
	raw, err := json.Marshal(workflow)
	if err != nil {
		return fmt.Errorf("failed to encode workflow %s: %w", workflow.TransactionID, err)
	}
	if err := s.client.Set(ctx, workflowKey(workflow.TransactionID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save workflow %s: %w", workflow.TransactionID, err)
	}
	return nil
}

// Acquire takes the lock with SET NX PX; it does not wait
func (s *RedisWorkflowStore) Acquire(ctx context.Context, transactionID string) (func(), error) {
	token := uuid.NewString()
	key := lockKey(transactionID)

	ok, err := s.client.SetNX(ctx, key, token, s.lockTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to lock workflow %s: %w", transactionID, err)
	}
	if !ok {
		return nil, ErrWorkflowBusy
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, s.client, []string{key}, token).Err(); err != nil {
			slog.Warn("Failed to release workflow lock", "transaction_id", transactionID, "error", err)
		}
	}, nil
}
