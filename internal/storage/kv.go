// Package storage is the persisted key/value primitive the agent keeps its state in.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
)

// Logical keys. Each holds a JSON array.
const (
	KeyTasks      = "tasks"
	KeyLogs       = "logs"
	KeyTasksQueue = "offline_tasks_queue"
	KeyLogsQueue  = "offline_logs_queue"
)

// KV is an opaque byte store. Get returns (nil, nil) for a missing key.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
}

// LoadJSON decodes key into v. A missing or empty key leaves v untouched and reports false.
func LoadJSON(ctx context.Context, kv KV, key string, v any) (bool, error) {
	b, err := kv.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	if len(b) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(b, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// SaveJSON encodes v and writes it under key.
func SaveJSON(ctx context.Context, kv KV, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := kv.Set(ctx, key, b); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}
