package mypubsub

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"

	"github.com/segmentio/kafka-go"

	"github.com/MarcGrol/flowershop/lib/mylog"
)

type kafkaPubSub struct {
	sync.Mutex
	broker  string
	writers map[string]*kafka.Writer
	logger  mylog.Logger
}

func init() {
	if os.Getenv("KAFKA_BROKER") != "" {
		New = newKafkaPubSub
	}
}

func newKafkaPubSub(c context.Context) (PubSub, func(), error) {
	ps := &kafkaPubSub{
		broker:  os.Getenv("KAFKA_BROKER"),
		writers: map[string]*kafka.Writer{},
		logger:  mylog.New("mypubsub"),
	}
	return ps, func() {
		ps.Lock()
		defer ps.Unlock()
		for topic, writer := range ps.writers {
			err := writer.Close()
			if err != nil {
				ps.logger.Log(context.Background(), topic, mylog.SeverityWarn, "Error closing writer for topic %s: %s", topic, err)
			}
		}
	}, nil
}

func (ps *kafkaPubSub) CreateTopic(c context.Context, topicName string) error {
	conn, err := kafka.DialContext(c, "tcp", ps.broker)
	if err != nil {
		return fmt.Errorf("error connecting to kafka broker %s: %s", ps.broker, err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("error finding kafka controller: %s", err)
	}

	controllerConn, err := kafka.DialContext(c, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("error connecting to kafka controller: %s", err)
	}
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(kafka.TopicConfig{
		Topic:             topicName,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
	if err != nil {
		return fmt.Errorf("error creating topic %s: %s", topicName, err)
	}

	return nil
}

func (ps *kafkaPubSub) writer(topicName string) *kafka.Writer {
	ps.Lock()
	defer ps.Unlock()

	writer, found := ps.writers[topicName]
	if !found {
		writer = &kafka.Writer{
			Addr:                   kafka.TCP(ps.broker),
			Topic:                  topicName,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		}
		ps.writers[topicName] = writer
	}
	return writer
}

// Publish uses the ordering key as message key, so events of one aggregate end up in one partition.
func (ps *kafkaPubSub) Publish(c context.Context, topicName string, orderingKey string, data []byte) error {
	err := ps.writer(topicName).WriteMessages(c, kafka.Message{
		Key:   []byte(orderingKey),
		Value: data,
	})
	if err != nil {
		return fmt.Errorf("error publishing event on topic %s: %s", topicName, err)
	}

	return nil
}
