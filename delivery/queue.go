package delivery

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
)

const queueKey = "fedinode:delivery"

// Job is one fan-out unit: an activity body and the inboxes it goes to,
// delivered on behalf of the actor identified by ActorID.
type Job struct {
	ActivityID string          `json:"activity_id"`
	ActorID    string          `json:"actor_id"`
	Activity   json.RawMessage `json:"activity"`
	Inboxes    []string        `json:"inboxes"`
}

// Queue is the redis-backed delivery queue. Producers LPUSH, the worker
// BRPOPs, so jobs drain oldest first.
type Queue struct {
	rdb *redis.Client
}

func NewQueue(rdb *redis.Client) *Queue {
	return &Queue{rdb: rdb}
}

func (q *Queue) Enqueue(ctx context.Context, job Job) error {
	ctx, span := tracer.Start(ctx, "Enqueue")
	defer span.End()

	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.rdb.LPush(ctx, queueKey, payload).Err()
}

// Dequeue blocks until a job is available.
func (q *Queue) Dequeue(ctx context.Context) (*Job, error) {
	entry, err := q.rdb.BRPop(ctx, 0, queueKey).Result()
	if err != nil {
		return nil, err
	}

	var job Job
	if err := json.Unmarshal([]byte(entry[1]), &job); err != nil {
		return nil, err
	}
	return &job, nil
}
