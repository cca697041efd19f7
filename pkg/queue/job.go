package queue

import "context"

// Job handles one message type pulled from the queue.
type Job interface {
	Name() string
	// Type is the message type routed to this job.
	Type() string
	Handle(ctx context.Context, payload interface{}) error
}
