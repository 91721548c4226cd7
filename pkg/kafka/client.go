// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"localchat-go/internal/config"
	"localchat-go/pkg/log"
	"localchat-go/pkg/tasks"
	"time"

	"github.com/segmentio/kafka-go"
)

// produceTimeout 是单条标题任务投递的超时时间。
const produceTimeout = 10 * time.Second

// 读取失败后的重试间隔，每次失败翻倍，直到 maxFetchBackoff。
var (
	initialFetchBackoff = time.Second
	maxFetchBackoff     = 30 * time.Second
)

// TaskProcessor defines the interface for any service that can process a task.
// This decouples the Kafka consumer from the concrete pipeline implementation.
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.TitleGenerationTask) error
}

// messageWriter 是 *kafka.Writer 中生产者用到的方法。
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// messageReader 是 *kafka.Reader 中消费者用到的方法。
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var producer messageWriter

// InitProducer 初始化 Kafka 生产者。
func InitProducer(cfg config.KafkaConfig) {
	producer = &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers),
		Topic:    cfg.Topic,
		Balancer: &kafka.Hash{},
	}
	log.Info("Kafka 生产者初始化成功")
}

// CloseProducer 关闭生产者并刷新未发送的消息。
func CloseProducer() {
	if producer == nil {
		return
	}
	if err := producer.Close(); err != nil {
		log.Error("关闭 Kafka 生产者失败", err)
	}
}

// encodeTitleTask 以会话 ID 作为 key，保证同一会话的任务落在同一分区。
func encodeTitleTask(task tasks.TitleGenerationTask) (kafka.Message, error) {
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{Key: []byte(task.ConversationID), Value: taskBytes}, nil
}

// ProduceTitleTask 发送一个标题生成任务到 Kafka。
func ProduceTitleTask(ctx context.Context, task tasks.TitleGenerationTask) error {
	if producer == nil {
		return errors.New("kafka producer is not initialized")
	}
	msg, err := encodeTitleTask(task)
	if err != nil {
		return err
	}
	return producer.WriteMessages(ctx, msg)
}

// TitleTaskDispatcher 通过 Kafka 投递标题生成任务，由 StartConsumer 所在进程异步处理。
type TitleTaskDispatcher struct{}

// Dispatch 异步投递任务，不阻塞调用方；失败只记录日志。
func (TitleTaskDispatcher) Dispatch(conversationID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), produceTimeout)
		defer cancel()
		task := tasks.TitleGenerationTask{ConversationID: conversationID, RequestedAt: time.Now()}
		if err := ProduceTitleTask(ctx, task); err != nil {
			log.Errorw("投递标题生成任务失败", "conversationID", conversationID, "error", err)
		}
	}()
}

// StartConsumer 启动一个 Kafka 消费者来处理标题生成任务，直到 ctx 被取消。
func StartConsumer(ctx context.Context, cfg config.KafkaConfig, processor TaskProcessor) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{cfg.Brokers},
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)
	consume(ctx, r, processor)

	if err := r.Close(); err != nil {
		log.Error(fmt.Sprintf("关闭 Kafka 消费者失败: topic=%s", cfg.Topic), err)
	}
}

// consume 循环读取并处理任务，直到 ctx 被取消。读取失败时退避后重试。
// 标题生成失败不重试：无论处理结果如何都提交 offset。
func consume(ctx context.Context, r messageReader, processor TaskProcessor) {
	backoff := initialFetchBackoff
	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Errorw("从 Kafka 读取消息失败，稍后重试", "backoff", backoff.String(), "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxFetchBackoff {
				backoff = maxFetchBackoff
			}
			continue
		}
		backoff = initialFetchBackoff

		log.Debugf("收到 Kafka 消息: offset %d", m.Offset)

		var task tasks.TitleGenerationTask
		if err := json.Unmarshal(m.Value, &task); err != nil {
			log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
		} else if err := processor.Process(ctx, task); err != nil {
			log.Errorw("处理标题生成任务失败", "conversationID", task.ConversationID, "error", err)
		}

		if err := r.CommitMessages(context.Background(), m); err != nil {
			log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
		}
	}
}
