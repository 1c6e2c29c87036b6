// Package mq 订单取消事件消费者实现。
package mq

import (
	"context"
	"encoding/json"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/warestack/lotkeeper/internal/domain"
	"github.com/warestack/lotkeeper/internal/service"
)

// queueOrderCancelled 本服务消费订单取消事件的队列
const queueOrderCancelled = "lotkeeper.order_cancelled"

// OrderEventsConsumer 消费订单服务的取消事件并释放预留
type OrderEventsConsumer struct {
	conn         *Connection
	exchange     string
	reservations service.ReservationService
	logger       *zap.Logger
}

// NewOrderEventsConsumer 创建消费者
func NewOrderEventsConsumer(conn *Connection, exchange string, reservations service.ReservationService, logger *zap.Logger) *OrderEventsConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &OrderEventsConsumer{
		conn:         conn,
		exchange:     exchange,
		reservations: reservations,
		logger:       logger,
	}
}

// Start 声明队列、绑定路由并开始消费，直到 ctx 取消
func (c *OrderEventsConsumer) Start(ctx context.Context) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return err
	}

	queue, err := ch.QueueDeclare(queueOrderCancelled, true, false, false, false, nil)
	if err != nil {
		return err
	}
	if err := ch.QueueBind(queue.Name, RoutingKeyOrderCancelled, c.exchange, false, nil); err != nil {
		return err
	}
	if err := ch.Qos(10, 0, false); err != nil {
		return err
	}

	deliveries, err := ch.Consume(queue.Name, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	c.logger.Info("order events consumer started", zap.String("queue", queue.Name))

	go func() {
		defer ch.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					c.logger.Warn("delivery channel closed")
					return
				}
				c.handle(ctx, d)
			}
		}
	}()

	return nil
}

// handle 处理单条订单取消事件
// Release 对无 reserved 记录的订单是空操作，消息重复投递是安全的。
func (c *OrderEventsConsumer) handle(ctx context.Context, d amqp.Delivery) {
	var envelope struct {
		ID   string             `json:"id"`
		Data OrderCancelledData `json:"data"`
	}
	if err := json.Unmarshal(d.Body, &envelope); err != nil {
		c.logger.Error("malformed order event, dropping", zap.Error(err))
		_ = d.Nack(false, false)
		return
	}

	if envelope.Data.CompanyID <= 0 || envelope.Data.OrderID <= 0 {
		c.logger.Warn("order event missing identifiers, dropping", zap.String("message_id", envelope.ID))
		_ = d.Nack(false, false)
		return
	}

	err := c.reservations.Release(ctx, &domain.ReleaseReservationRequest{
		CompanyID: envelope.Data.CompanyID,
		OrderID:   envelope.Data.OrderID,
		Reason:    domain.ReleaseReasonCancel,
	})
	if err != nil {
		c.logger.Error("failed to release reservations for cancelled order",
			zap.Int64("company_id", envelope.Data.CompanyID),
			zap.Int64("order_id", envelope.Data.OrderID),
			zap.Error(err),
		)
		// 重新入队等待重试
		_ = d.Nack(false, true)
		return
	}

	c.logger.Info("reservations released for cancelled order",
		zap.Int64("company_id", envelope.Data.CompanyID),
		zap.Int64("order_id", envelope.Data.OrderID),
	)
	_ = d.Ack(false)
}
