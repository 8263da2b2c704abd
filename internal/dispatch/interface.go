package dispatch

import (
	"context"
	"encoding/json"

	"github.com/mattjoyce/taskferry/internal/queue"
)

//go:generate mockgen -destination=mocks/mock_queue.go -package=mocks github.com/mattjoyce/taskferry/internal/dispatch QueueClient,JobHandle

// QueueClient submits job descriptions to the queue.
type QueueClient interface {
	Enqueue(ctx context.Context, req queue.EnqueueRequest) (JobHandle, error)
}

// JobHandle is the Dispatcher's view of one submitted job. The status
// accessors report the state as of the last Refresh; the queue's workers
// change it concurrently.
type JobHandle interface {
	JobID() string
	Refresh(ctx context.Context) error
	IsFinished() bool
	IsFailed() bool
	Result() json.RawMessage
}

type queueClient struct {
	q *queue.Queue
}

// FromQueue adapts a queue store client to QueueClient.
func FromQueue(q *queue.Queue) QueueClient {
	return queueClient{q: q}
}

func (c queueClient) Enqueue(ctx context.Context, req queue.EnqueueRequest) (JobHandle, error) {
	job, err := c.q.Enqueue(ctx, req)
	if err != nil {
		return nil, err
	}
	return job, nil
}
