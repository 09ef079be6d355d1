// Package outbox 实现事务性发件箱的消息中继。
package outbox

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"job-portal-go/internal/logger"
	"job-portal-go/internal/storage"
	"job-portal-go/internal/storage/models"
)

const (
	defaultPollingInterval = 5 * time.Second
	defaultBatchSize       = 10
	maxRetryCount          = 5
)

// DatabaseSource 租户库访问入口，由多租户注册表实现
type DatabaseSource interface {
	Databases() []string
	Get(databaseName string) (*gorm.DB, error)
}

// MessageRelay 轮询各租户库的发件箱表并将消息发布到RabbitMQ
// 每个租户库独立处理，单库故障不影响其他库的消息投递
type MessageRelay struct {
	registry        DatabaseSource
	publisher       storage.MessageQueue
	pollingInterval time.Duration
	batchSize       int
	done            chan struct{}
	tracer          trace.Tracer
}

// NewMessageRelay 创建消息中继
func NewMessageRelay(registry DatabaseSource, publisher storage.MessageQueue) *MessageRelay {
	return &MessageRelay{
		registry:        registry,
		publisher:       publisher,
		pollingInterval: defaultPollingInterval,
		batchSize:       defaultBatchSize,
		done:            make(chan struct{}),
		tracer:          otel.Tracer("job-portal-go/outbox"),
	}
}

// Start 启动后台轮询
func (r *MessageRelay) Start() {
	logger.Info().Msg("发件箱中继启动")
	ticker := time.NewTicker(r.pollingInterval)

	go func() {
		for {
			select {
			case <-r.done:
				ticker.Stop()
				logger.Info().Msg("发件箱中继已停止")
				return
			case <-ticker.C:
				r.processAllDatabases(context.Background())
			}
		}
	}()
}

// Stop 优雅停止中继
func (r *MessageRelay) Stop() {
	close(r.done)
}

// processAllDatabases 逐租户库处理一轮待发消息
func (r *MessageRelay) processAllDatabases(ctx context.Context) {
	for _, databaseName := range r.registry.Databases() {
		if err := r.processPendingMessages(ctx, databaseName); err != nil {
			logger.Error().Err(err).Str("database", databaseName).Msg("处理发件箱消息失败")
		}
	}
}

// processPendingMessages 取出并发布一批待发消息
// `FOR UPDATE SKIP LOCKED` 让多实例部署时各实例跳过彼此已锁定的行
func (r *MessageRelay) processPendingMessages(ctx context.Context, databaseName string) error {
	db, err := r.registry.Get(databaseName)
	if err != nil {
		return err
	}

	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}
	defer tx.Rollback()

	var messages []models.OutboxMessage
	err = tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("status = ?", models.OutboxStatusPending).
		Order("created_at asc").
		Limit(r.batchSize).
		Find(&messages).Error
	if err != nil {
		return err
	}

	// 空轮询不建span
	if len(messages) == 0 {
		return tx.Commit().Error
	}

	ctx, span := r.tracer.Start(ctx, "outbox.ProcessBatch",
		trace.WithAttributes(
			attribute.String("db.name", databaseName),
			attribute.Int("messaging.batch.message_count", len(messages)),
		),
	)
	defer span.End()

	logger.Debug().Str("database", databaseName).Int("count", len(messages)).Msg("开始发布待发消息")

	for _, msg := range messages {
		err := r.publisher.PublishMessage(ctx, msg.Exchange, msg.RoutingKey, []byte(msg.Payload), true)
		if err != nil {
			logger.Warn().Err(err).
				Str("database", databaseName).
				Uint64("message_id", msg.ID).
				Int("retry_count", msg.RetryCount+1).
				Msg("发布发件箱消息失败")
			msg.RetryCount++
			msg.ErrorMessage = err.Error()
			if msg.RetryCount >= maxRetryCount {
				msg.Status = models.OutboxStatusFailed
			}
		} else {
			msg.Status = models.OutboxStatusSent
			now := time.Now()
			msg.ProcessedAt = &now
			msg.ErrorMessage = ""
		}

		// 更新失败时整个事务回滚，这批消息下轮重新拾取
		if err := tx.Save(&msg).Error; err != nil {
			return err
		}
	}

	return tx.Commit().Error
}
