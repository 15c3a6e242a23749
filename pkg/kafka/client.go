package kafka

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	kafka "github.com/segmentio/kafka-go"

	"render-engine/pkg/config"
	"render-engine/pkg/logger"
)

// Client is a thin wrapper over segmentio/kafka-go writers and readers,
// constructed once by the composition root.
type Client struct {
	brokers  []string
	clientID string
	dialer   *kafka.Dialer
	writers  sync.Map // topic -> *kafka.Writer
}

// NewClient builds a kafka client from service configuration.
func NewClient(cfg config.KafkaConfig) *Client {
	c := &Client{
		brokers:  cfg.BootstrapServers,
		clientID: cfg.ClientID,
		dialer: &kafka.Dialer{
			Timeout:  10 * time.Second,
			ClientID: cfg.ClientID,
		},
	}
	logger.Infof("Kafka client opened brokers=%v client_id=%s", c.brokers, c.clientID)
	return c
}

// Close closes all cached writers.
func (c *Client) Close() {
	c.writers.Range(func(key, value interface{}) bool {
		if w, ok := value.(*kafka.Writer); ok {
			_ = w.Close()
		}
		return true
	})
}

// Writer returns a cached writer for the topic.
func (c *Client) Writer(topic string) *kafka.Writer {
	if v, ok := c.writers.Load(topic); ok {
		return v.(*kafka.Writer)
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(c.brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
	}
	actual, _ := c.writers.LoadOrStore(topic, w)
	return actual.(*kafka.Writer)
}

// Produce publishes a single message to the topic.
func (c *Client) Produce(ctx context.Context, topic string, key, value []byte) error {
	w := c.Writer(topic)
	msg := kafka.Message{Key: key, Value: value, Time: time.Now()}
	return w.WriteMessages(ctx, msg)
}

// Reader creates a consumer-group reader for the topic.
func (c *Client) Reader(topic, groupID string) *kafka.Reader {
	logger.Infof("Kafka reader created topic=%s group=%s brokers=%v", topic, groupID, c.brokers)
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  c.brokers,
		GroupID:  groupID,
		Topic:    topic,
		Dialer:   c.dialer,
		MinBytes: 1,
		MaxBytes: 10 << 20,
	})
}

// EnsureTopic creates the topic if it does not exist.
func (c *Client) EnsureTopic(topic string, numPartitions, replicationFactor int) error {
	if len(c.brokers) == 0 {
		return nil
	}
	conn, err := kafka.Dial("tcp", c.brokers[0])
	if err != nil {
		return err
	}
	defer conn.Close()
	controller, err := conn.Controller()
	if err != nil {
		return err
	}
	addr := net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port))
	cc, err := kafka.Dial("tcp", addr)
	if err != nil {
		return err
	}
	defer cc.Close()
	return cc.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     numPartitions,
		ReplicationFactor: replicationFactor,
	})
}
