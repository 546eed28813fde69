package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Queue appends tasks to the worker stream.
type Queue struct {
	client redis.Cmdable
	stream string
}

func NewQueue(client redis.Cmdable, stream string) *Queue {
	return &Queue{client: client, stream: stream}
}

func (q *Queue) Enqueue(ctx context.Context, taskType string, payload any) (string, error) {
	if !Known(taskType) {
		return "", fmt.Errorf("%w: %s", ErrUnknownTask, taskType)
	}
	values := map[string]any{"type": taskType}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return "", fmt.Errorf("encode payload: %w", err)
		}
		values["payload"] = string(raw)
	}
	id, err := q.client.XAdd(ctx, &redis.XAddArgs{Stream: q.stream, Values: values}).Result()
	if err != nil {
		return "", fmt.Errorf("enqueue %s: %w", taskType, err)
	}
	return id, nil
}
