package queue

import "context"

// Job handles every message of one Type. A returned error schedules a retry.
type Job interface {
	Name() string
	Type() string
	Handle(ctx context.Context, payload interface{}) error
}
