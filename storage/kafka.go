package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/Shopify/sarama"

	"github.com/janelia-flyem/acseg/acseg"
)

// FailedPrefix is the key prefix of activity messages that kafka rejected.
const FailedPrefix = "failed/"

// KafkaMaxMessageSize is the max message size in bytes for a Kafka message.
const KafkaMaxMessageSize = 980 * 1000

// KafkaConfig describes kafka servers receiving a log of segmentation runs.
type KafkaConfig struct {
	TopicActivity string `toml:"topic_activity"` // defaults to "acseg-activity-<host id>"
	Servers       []string
	BufferSize    int `toml:"buffer_size"` // max messages buffered before a flush
}

// Publisher sends activity messages to kafka.  Messages that fail to send are
// kept in a store, if one is given.
type Publisher struct {
	producer sarama.AsyncProducer
	topic    string
	failed   Store
	done     chan struct{}
}

var badTopicChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// Connect returns a publisher to the configured kafka servers.  It returns nil
// without error if no servers are configured.
func (kc KafkaConfig) Connect(hostID string, failed Store) (*Publisher, error) {
	if len(kc.Servers) == 0 {
		return nil, nil
	}
	config := sarama.NewConfig()
	config.Producer.MaxMessageBytes = KafkaMaxMessageSize
	if kc.BufferSize > 0 {
		config.Producer.Flush.Messages = kc.BufferSize
	}
	producer, err := sarama.NewAsyncProducer(kc.Servers, config)
	if err != nil {
		return nil, err
	}
	p := NewPublisher(producer, kc.topic(hostID), failed)
	acseg.Infof("Kafka topic for acseg activity: %s\n", p.topic)
	return p, nil
}

func (kc KafkaConfig) topic(hostID string) string {
	topic := kc.TopicActivity
	if topic == "" {
		topic = "acseg-activity-" + hostID
	}
	return badTopicChars.ReplaceAllString(topic, "-")
}

// NewPublisher sends activity through an existing producer.
func NewPublisher(producer sarama.AsyncProducer, topic string, failed Store) *Publisher {
	p := &Publisher{producer: producer, topic: topic, failed: failed, done: make(chan struct{})}
	go func() {
		defer close(p.done)
		for err := range producer.Errors() {
			acseg.Errorf("error on kafka send: %v\n", err)
			value, _ := err.Msg.Value.Encode()
			p.storeFailedMsg(err.Msg.Topic, value)
		}
	}()
	return p
}

// Topic returns the activity topic.
func (p *Publisher) Topic() string {
	return p.topic
}

// LogActivity publishes activity as a JSON message keyed by the send time.
func (p *Publisher) LogActivity(activity map[string]interface{}) error {
	if p == nil {
		return nil
	}
	value, err := json.Marshal(activity)
	if err != nil {
		return fmt.Errorf("unable to marshal activity for kafka logging: %w", err)
	}
	if len(value) > KafkaMaxMessageSize {
		return fmt.Errorf("activity message of %d bytes exceeds kafka maximum of %d", len(value), KafkaMaxMessageSize)
	}
	timeKey := sarama.StringEncoder(strconv.FormatInt(time.Now().UnixNano(), 10))
	p.producer.Input() <- &sarama.ProducerMessage{Topic: p.topic, Value: sarama.ByteEncoder(value), Key: timeKey}
	return nil
}

// Close flushes queued messages and stops the producer.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	err := p.producer.Close()
	<-p.done
	if err != nil {
		return fmt.Errorf("kafka producer had error on close: %w", err)
	}
	acseg.Infof("Successfully shut down kafka producer.\n")
	return nil
}

func (p *Publisher) storeFailedMsg(topic string, msg []byte) {
	if p.failed == nil {
		acseg.Criticalf("unable to store failed kafka message to topic %q because no store\n", topic)
		return
	}
	key := fmt.Sprintf("%s%s/%d", FailedPrefix, topic, time.Now().UnixNano())
	if err := p.failed.Put(context.Background(), key, msg); err != nil {
		acseg.Criticalf("unable to store failed kafka message to topic %q: %v\n", topic, err)
	}
}
