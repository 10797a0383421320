/*
 * @module service/publisher/kafka_publisher
 * @description Kafka变更事件发布器，封装kafka-go生产者，按实体ID分区保证同实体事件有序
 * @architecture 适配器模式 - 封装第三方Kafka客户端，实现统一的发布接口
 * @documentReference ai_docs/transform_engine_design.md
 * @stateFlow 创建Writer -> 事件序列化 -> WriteMessages -> Close
 * @rules 消息Key取实体ID，保证单实体的变更事件落在同一分区
 * @dependencies github.com/segmentio/kafka-go, encoding/json
 * @refs publisher.go, service/transform/types.go
 */

package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"transform-service/service/transform"
)

// KafkaPublisherConfig Kafka发布器配置
type KafkaPublisherConfig struct {
	Brokers      []string      `json:"brokers"`       // broker地址列表
	Topic        string        `json:"topic"`         // 目标主题
	RequiredAcks int           `json:"required_acks"` // 确认级别
	Async        bool          `json:"async"`         // 异步发送
	BatchSize    int           `json:"batch_size"`    // 批量大小
	BatchTimeout time.Duration `json:"batch_timeout"` // 批量超时
}

// KafkaPublisher Kafka变更事件发布器
type KafkaPublisher struct {
	writer *kafka.Writer
	topic  string
}

// NewKafkaPublisher 创建Kafka发布器
func NewKafkaPublisher(config *KafkaPublisherConfig) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(config.Brokers...),
		Topic:        config.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequiredAcks(config.RequiredAcks),
		Async:        config.Async,
	}

	if config.BatchSize > 0 {
		writer.BatchSize = config.BatchSize
	}
	if config.BatchTimeout > 0 {
		writer.BatchTimeout = config.BatchTimeout
	}

	slog.Info("Kafka发布器已初始化", "brokers", config.Brokers, "topic", config.Topic)
	return &KafkaPublisher{writer: writer, topic: config.Topic}
}

// Publish 发布变更事件到Kafka，以实体ID作为消息Key
func (p *KafkaPublisher) Publish(ctx context.Context, event *transform.ChangeEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("变更事件序列化失败: %w", err)
	}

	message := kafka.Message{
		Key:   []byte(event.EntityID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "event_id", Value: []byte(event.ID)},
		},
	}

	if err := p.writer.WriteMessages(ctx, message); err != nil {
		return fmt.Errorf("发布变更事件到Kafka失败 topic=%s: %w", p.topic, err)
	}

	slog.Debug("变更事件已发布到Kafka", "topic", p.topic, "event_id", event.ID, "entity_id", event.EntityID)
	return nil
}

// Close 关闭Kafka生产者
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
