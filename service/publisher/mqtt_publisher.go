/*
 * @module service/publisher/mqtt_publisher
 * @description MQTT变更事件发布器，封装paho客户端，按实体类型组织主题层级
 * @architecture 适配器模式 - 封装第三方MQTT客户端，实现统一的发布接口
 * @documentReference ai_docs/transform_engine_design.md
 * @stateFlow 连接broker -> 事件序列化 -> 发布到主题 -> Disconnect
 * @rules 主题格式为 <前缀>/<事件类型>，QoS与保留标志由配置决定
 * @dependencies github.com/eclipse/paho.mqtt.golang, encoding/json
 * @refs publisher.go, service/transform/types.go
 */

package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"transform-service/service/transform"
)

// MQTTPublisherConfig MQTT发布器配置
type MQTTPublisherConfig struct {
	Broker      string        `json:"broker"`       // broker地址，如 tcp://host:1883
	ClientID    string        `json:"client_id"`    // 客户端标识
	Username    string        `json:"username"`     // 用户名，可为空
	Password    string        `json:"password"`     // 密码
	TopicPrefix string        `json:"topic_prefix"` // 主题前缀
	QoS         byte          `json:"qos"`          // 服务质量等级
	Retained    bool          `json:"retained"`     // 保留消息
	KeepAlive   time.Duration `json:"keep_alive"`   // 心跳间隔
}

// MQTTPublisher MQTT变更事件发布器
type MQTTPublisher struct {
	client mqtt.Client
	config *MQTTPublisherConfig
}

// NewMQTTPublisher 创建并连接MQTT发布器
func NewMQTTPublisher(config *MQTTPublisherConfig) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.Broker)
	opts.SetClientID(config.ClientID)

	if config.Username != "" {
		opts.SetUsername(config.Username)
		opts.SetPassword(config.Password)
	}
	if config.KeepAlive > 0 {
		opts.SetKeepAlive(config.KeepAlive)
	}
	opts.SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("MQTT连接失败 broker=%s: %w", config.Broker, token.Error())
	}

	slog.Info("MQTT发布器已连接", "broker", config.Broker, "client_id", config.ClientID)
	return &MQTTPublisher{client: client, config: config}, nil
}

// Publish 发布变更事件，主题按事件类型组织
func (p *MQTTPublisher) Publish(ctx context.Context, event *transform.ChangeEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("变更事件序列化失败: %w", err)
	}

	topic := fmt.Sprintf("%s/%s", p.config.TopicPrefix, event.EventType)
	token := p.client.Publish(topic, p.config.QoS, p.config.Retained, payload)

	select {
	case <-token.Done():
		if token.Error() != nil {
			return fmt.Errorf("发布变更事件到MQTT失败 topic=%s: %w", topic, token.Error())
		}
	case <-ctx.Done():
		return ctx.Err()
	}

	slog.Debug("变更事件已发布到MQTT", "topic", topic, "event_id", event.ID)
	return nil
}

// Close 断开MQTT连接
func (p *MQTTPublisher) Close() error {
	p.client.Disconnect(250)
	return nil
}
