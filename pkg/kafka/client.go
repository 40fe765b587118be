// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"drone-helpdesk-go/internal/config"
	"drone-helpdesk-go/pkg/log"
	"drone-helpdesk-go/pkg/tasks"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
)

// 同一任务失败达到该次数后提交 offset，不再重试。
const maxAttempts = 3

// 重新投递的消息在该 header 中携带已失败次数。
const attemptsHeader = "x-ingest-attempts"

type failureAction int

const (
	actionRequeue failureAction = iota
	actionGiveUp
)

// decideOnFailure 根据已失败次数决定重新投递还是放弃。
func decideOnFailure(attempts int64) failureAction {
	if attempts >= maxAttempts {
		return actionGiveUp
	}
	return actionRequeue
}

func headerAttempts(headers []kafka.Header) int64 {
	for _, h := range headers {
		if h.Key == attemptsHeader {
			n, err := strconv.ParseInt(string(h.Value), 10, 64)
			if err == nil {
				return n
			}
		}
	}
	return 0
}

func withAttempts(headers []kafka.Header, attempts int64) []kafka.Header {
	out := make([]kafka.Header, 0, len(headers)+1)
	for _, h := range headers {
		if h.Key != attemptsHeader {
			out = append(out, h)
		}
	}
	return append(out, kafka.Header{Key: attemptsHeader, Value: []byte(strconv.FormatInt(attempts, 10))})
}

// TaskProcessor defines the interface for any service that can process a task.
// This decouples the Kafka consumer from the concrete pipeline implementation.
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.IngestTask) error
}

// Producer 发送摄取任务。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 初始化 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	w := &kafka.Writer{
		Addr:     kafka.TCP(strings.Split(cfg.Brokers, ",")...),
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},
	}
	log.Info("Kafka 生产者初始化成功")
	return &Producer{writer: w}
}

// ProduceIngestTask 发送一个摄取任务到 Kafka，以文件名作为消息 key。
func (p *Producer) ProduceIngestTask(ctx context.Context, task tasks.IngestTask) error {
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(task.FileName),
		Value: taskBytes,
	})
}

// Close 关闭生产者。
func (p *Producer) Close() error {
	return p.writer.Close()
}

func attemptsKey(task tasks.IngestTask) string {
	return fmt.Sprintf("kafka:ingest:attempts:%s", task.FileName)
}

// StartConsumer 启动一个 Kafka 消费者来处理摄取任务，阻塞直到 ctx 结束或读取失败。
// 失败的任务会带上失败次数重新写回主题并提交原 offset，达到 maxAttempts 后放弃。
// rdb 非 nil 时按文件名在 Redis 中累计失败次数，否则使用消息 header 中的计数。
func StartConsumer(ctx context.Context, cfg config.KafkaConfig, processor TaskProcessor, rdb *redis.Client) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  strings.Split(cfg.Brokers, ","),
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	retryWriter := &kafka.Writer{
		Addr:     kafka.TCP(strings.Split(cfg.Brokers, ",")...),
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},
	}
	defer func() {
		if err := r.Close(); err != nil {
			log.Errorf("关闭 Kafka 消费者失败: %v", err)
		}
		if err := retryWriter.Close(); err != nil {
			log.Errorf("关闭 Kafka 重试生产者失败: %v", err)
		}
	}()

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				log.Info("Kafka 消费者已停止")
				return
			}
			log.Error("从 Kafka 读取消息失败", err)
			return
		}

		var task tasks.IngestTask
		if err := json.Unmarshal(m.Value, &task); err != nil {
			log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
			// 消息格式错误，直接提交，避免阻塞队列
			commit(ctx, r, m)
			continue
		}

		log.Infof("开始处理摄取任务: TaskID=%s, FileName=%s, offset=%d", task.TaskID, task.FileName, m.Offset)
		if err := processor.Process(ctx, task); err != nil {
			log.Errorf("摄取任务失败: FileName=%s, Error: %v", task.FileName, err)
			attempts := countFailure(ctx, rdb, task, m)
			switch decideOnFailure(attempts) {
			case actionGiveUp:
				log.Errorf("摄取任务多次失败(>=%d)，提交 offset 终止重试: FileName=%s", maxAttempts, task.FileName)
				if rdb != nil {
					_ = rdb.Del(ctx, attemptsKey(task)).Err()
				}
			case actionRequeue:
				retry := kafka.Message{Key: m.Key, Value: m.Value, Headers: withAttempts(m.Headers, attempts)}
				if err := retryWriter.WriteMessages(ctx, retry); err != nil {
					// 未能重新投递则不提交，消息在下次重平衡或重启后重新消费
					log.Errorf("重新投递摄取任务失败: FileName=%s, Error: %v", task.FileName, err)
					continue
				}
				log.Warnf("摄取任务已重新投递: FileName=%s, attempts=%d", task.FileName, attempts)
			}
			commit(ctx, r, m)
			continue
		}

		log.Infof("摄取任务处理成功: FileName=%s", task.FileName)
		if rdb != nil {
			_ = rdb.Del(ctx, attemptsKey(task)).Err()
		}
		commit(ctx, r, m)
	}
}

// countFailure 返回包含本次在内的失败次数。
func countFailure(ctx context.Context, rdb *redis.Client, task tasks.IngestTask, m kafka.Message) int64 {
	attempts := headerAttempts(m.Headers) + 1
	if rdb == nil {
		return attempts
	}
	n, err := rdb.Incr(ctx, attemptsKey(task)).Result()
	if err != nil {
		log.Warnf("Redis 计数失败，使用消息 header 计数: %v", err)
		return attempts
	}
	_ = rdb.Expire(ctx, attemptsKey(task), 24*time.Hour).Err()
	return n
}

func commit(ctx context.Context, r *kafka.Reader, m kafka.Message) {
	if err := r.CommitMessages(ctx, m); err != nil {
		log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
	}
}
