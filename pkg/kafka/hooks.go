package kafka

import (
	"context"

	"github.com/segmentio/kafka-go"
)

// ConsumerHook observes each handling attempt.
// A BeforeHandle error skips the handler and counts as a failed attempt.
type ConsumerHook interface {
	BeforeHandle(ctx context.Context, msg kafka.Message) (context.Context, error)
	AfterHandle(ctx context.Context, msg kafka.Message, attempt int, err error)
}

type NoopHook struct{}

func (NoopHook) BeforeHandle(ctx context.Context, _ kafka.Message) (context.Context, error) {
	return ctx, nil
}

func (NoopHook) AfterHandle(context.Context, kafka.Message, int, error) {}

// HookFuncs adapts plain functions to ConsumerHook. Nil fields are no-ops.
type HookFuncs struct {
	Before func(ctx context.Context, msg kafka.Message) (context.Context, error)
	After  func(ctx context.Context, msg kafka.Message, attempt int, err error)
}

func (h HookFuncs) BeforeHandle(ctx context.Context, msg kafka.Message) (context.Context, error) {
	if h.Before == nil {
		return ctx, nil
	}
	return h.Before(ctx, msg)
}

func (h HookFuncs) AfterHandle(ctx context.Context, msg kafka.Message, attempt int, err error) {
	if h.After != nil {
		h.After(ctx, msg, attempt, err)
	}
}
