package myqueue

import (
	"context"
)

type Task struct {
	UID            string
	WebhookURLPath string
	Payload        []byte
}

var New func(c context.Context) (TaskQueuer, func(), error)

//go:generate mockgen -source=api.go -package myqueue -destination queuer_mock.go TaskQueuer
type TaskQueuer interface {
	// Enqueue schedules a PUT on WebhookURLPath. Tasks with the same UID are delivered once.
	Enqueue(c context.Context, task Task) error
}
