package tasky

import (
	"context"
)

// Task is one enqueued unit of work for job JobID.
type Task[T ~string] struct {
	JobID   T
	TaskID  string
	Payload []byte
}

func NewTask[T ~string](jobID T, payload []byte) *Task[T] {
	return &Task[T]{JobID: jobID, Payload: payload}
}

type Job[T ~string] struct {
	ID       T
	Priority int
	Run      func(ctx context.Context, task *Task[T]) error
}

type JobConfig[T ~string] struct {
	Priority int
	Run      func(ctx context.Context, task *Task[T]) error
}

func NewJob[T ~string](id T, cfg JobConfig[T]) Job[T] {
	return Job[T]{ID: id, Priority: cfg.Priority, Run: cfg.Run}
}

// OnErrorHandler sees every job and backend error. Returning a non-nil error
// stops the consumer.
type OnErrorHandler[T ~string] func(err error, task *Task[T]) error

type QueueConfig[T ~string] struct {
	Jobs    []Job[T]
	Backend Backend[T]
	OnError OnErrorHandler[T]
}

type Backend[T ~string] interface {
	Enqueue(ctx context.Context, task *Task[T], job *Job[T]) error
	Dequeue(ctx context.Context) (jobID T, taskID string, payload []byte, err error)
	Ack(ctx context.Context, taskID string) error
	Nack(ctx context.Context, taskID string) error
	ForceFlush(ctx context.Context) error
}
