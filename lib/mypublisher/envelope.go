package mypublisher

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/MarcGrol/flowershop/lib/myevents"
	"github.com/MarcGrol/flowershop/lib/mytime"
)

type enveloper struct {
	nower mytime.Nower
}

func newEnveloper(nower mytime.Nower) enveloper {
	return enveloper{
		nower: nower,
	}
}

// do wraps the event. The uid is derived from the content, so storing the
// same event twice results in a single envelope.
func (e enveloper) do(topic string, event myevents.Event) (myevents.EventEnvelope, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return myevents.EventEnvelope{}, fmt.Errorf("error marshalling event %s: %s", event.GetEventTypeName(), err)
	}

	envelope := myevents.EventEnvelope{
		Topic:         topic,
		AggregateUID:  event.GetAggregateName(),
		EventTypeName: event.GetEventTypeName(),
		EventPayload:  string(payload),
		CreatedAt:     e.nower.Now(),
	}
	envelope.UID = contentUID(envelope)

	return envelope, nil
}

func contentUID(envelope myevents.EventEnvelope) string {
	sum := sha256.Sum256([]byte(envelope.Topic + "\n" + envelope.EventTypeName + "\n" + envelope.AggregateUID + "\n" + envelope.EventPayload))
	return hex.EncodeToString(sum[:16])
}
