package mypublisher

import (
	"context"

	"github.com/MarcGrol/flowershop/lib/myevents"
)

//go:generate mockgen -source=api.go -package mypublisher -destination publisher_mock.go Publisher
type Publisher interface {
	CreateTopic(c context.Context, topicName string) error
	// Publish stores the event as part of the transaction in c; delivery happens after commit.
	Publish(c context.Context, topic string, event myevents.Event) error
}
