package queue

import (
	"context"
	"encoding/json"
	"fmt"

	kafkago "github.com/segmentio/kafka-go"

	"render-engine/pkg/kafka"
	"render-engine/pkg/logger"
)

// jobMessage Kafka消息载荷
type jobMessage struct {
	JobID string `json:"job_id"`
}

// KafkaJobQueue 基于Kafka的任务分发队列，多worker部署用
type KafkaJobQueue struct {
	client  *kafka.Client
	topic   string
	groupID string
	reader  *kafkago.Reader
}

// NewKafkaJobQueue 创建Kafka任务队列并确保topic存在
func NewKafkaJobQueue(client *kafka.Client, topic, groupID string) (*KafkaJobQueue, error) {
	if client == nil {
		return nil, fmt.Errorf("kafka client is required")
	}
	if topic == "" {
		topic = "render.jobs"
	}
	if groupID == "" {
		groupID = "render-engine-workers"
	}
	if err := client.EnsureTopic(topic, 3, 1); err != nil {
		logger.Warnf("ensure kafka topic %s failed: %v", topic, err)
	}
	return &KafkaJobQueue{
		client:  client,
		topic:   topic,
		groupID: groupID,
	}, nil
}

// Enqueue 投递任务ID到Kafka
func (q *KafkaJobQueue) Enqueue(ctx context.Context, jobID string) error {
	if jobID == "" {
		return fmt.Errorf("job id cannot be empty")
	}
	payload, err := json.Marshal(jobMessage{JobID: jobID})
	if err != nil {
		return err
	}
	return q.client.Produce(ctx, q.topic, []byte(jobID), payload)
}

// Dequeue 消费下一条任务消息（阻塞），消费组保证同一任务只被一个worker取走
func (q *KafkaJobQueue) Dequeue(ctx context.Context) (string, error) {
	if q.reader == nil {
		q.reader = q.client.Reader(q.topic, q.groupID)
	}
	msg, err := q.reader.ReadMessage(ctx)
	if err != nil {
		return "", err
	}
	var jm jobMessage
	if err := json.Unmarshal(msg.Value, &jm); err != nil {
		logger.Warnf("discarding malformed job message offset=%d: %v", msg.Offset, err)
		return "", err
	}
	return jm.JobID, nil
}

// Size Kafka队列深度由broker管理，这里恒为0
func (q *KafkaJobQueue) Size() int {
	return 0
}

// Close 关闭消费者
func (q *KafkaJobQueue) Close() error {
	if q.reader != nil {
		return q.reader.Close()
	}
	return nil
}
