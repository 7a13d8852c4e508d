package mypubsub

import (
	"context"
	"os"

	"github.com/MarcGrol/flowershop/lib/mylog"
)

type fakePubSub struct {
	logger mylog.Logger
}

func init() {
	if os.Getenv("GOOGLE_CLOUD_PROJECT") == "" && os.Getenv("KAFKA_BROKER") == "" {
		New = newFakePubSub
	}
}

func newFakePubSub(c context.Context) (PubSub, func(), error) {
	return &fakePubSub{
			logger: mylog.New("mypubsub"),
		}, func() {
		}, nil
}

func (ps *fakePubSub) CreateTopic(c context.Context, topic string) error {
	return nil
}

func (ps *fakePubSub) Publish(c context.Context, topic string, orderingKey string, data []byte) error {
	ps.logger.Log(c, orderingKey, mylog.SeverityDebug, "Dropped message on topic %s: %s", topic, data)
	return nil
}
