package mypubsub

import "context"

//go:generate mockgen -source=pubsub_api.go -package mypubsub -destination pubsub_mock.go PubSub
type PubSub interface {
	CreateTopic(c context.Context, topic string) error
	// Publish delivers data; messages with the same orderingKey keep their relative order.
	Publish(c context.Context, topic string, orderingKey string, data []byte) error
}

var New func(c context.Context) (PubSub, func(), error)
