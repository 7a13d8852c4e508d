package myqueue

import (
	"context"
	"os"

	"github.com/MarcGrol/flowershop/lib/mylog"
)

type fakeTaskQueue struct {
	logger mylog.Logger
}

func init() {
	if os.Getenv("GOOGLE_CLOUD_PROJECT") == "" {
		New = newFakeQueue
	}
}

func newFakeQueue(c context.Context) (TaskQueuer, func(), error) {
	return &fakeTaskQueue{
			logger: mylog.New("myqueue"),
		}, func() {
		}, nil
}

func (q *fakeTaskQueue) Enqueue(c context.Context, task Task) error {
	q.logger.Log(c, task.UID, mylog.SeverityDebug, "Not scheduling task PUT %s", task.WebhookURLPath)
	return nil
}
