// Package mq 预留事件发布者实现。
package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/warestack/lotkeeper/internal/domain"
)

// EventPublisher 把预留生命周期事件发布到topic交换机
// 发布是尽力而为：业务事务已提交，发布失败只记日志不回滚。
type EventPublisher struct {
	conn     *Connection
	exchange string
	logger   *zap.Logger
}

// NewEventPublisher 创建事件发布者并声明交换机
func NewEventPublisher(conn *Connection, exchange string, logger *zap.Logger) (*EventPublisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := conn.DeclareTopology(exchange); err != nil {
		return nil, err
	}

	return &EventPublisher{conn: conn, exchange: exchange, logger: logger}, nil
}

// PublishReserved 发布预留创建事件
func (p *EventPublisher) PublishReserved(ctx context.Context, companyID, orderID int64, reservations []*domain.StockReservation) error {
	lines := make([]ReservationLine, 0, len(reservations))
	for _, r := range reservations {
		lines = append(lines, ReservationLine{
			ReservationID: r.ID,
			VariantID:     r.VariantID,
			Quantity:      r.Quantity,
			ExpiresAt:     r.ExpiresAt,
		})
	}

	return p.publish(ctx, RoutingKeyReserved, newEnvelope(EventTypeReserved, &ReservedData{
		CompanyID: companyID,
		OrderID:   orderID,
		Lines:     lines,
	}))
}

// PublishConfirmed 发布预留确认事件
func (p *EventPublisher) PublishConfirmed(ctx context.Context, companyID, orderID int64) error {
	return p.publish(ctx, RoutingKeyConfirmed, newEnvelope(EventTypeConfirmed, &ConfirmedData{
		CompanyID:   companyID,
		OrderID:     orderID,
		ConfirmedAt: time.Now(),
	}))
}

// PublishReleased 发布预留释放事件，按终态选择路由键
func (p *EventPublisher) PublishReleased(ctx context.Context, companyID, orderID int64, status domain.ReservationStatus) error {
	routingKey := RoutingKeyCanceled
	if status == domain.ReservationStatusExpired {
		routingKey = RoutingKeyExpired
	}

	return p.publish(ctx, routingKey, newEnvelope(EventTypeReleased, &ReleasedData{
		CompanyID:  companyID,
		OrderID:    orderID,
		Status:     status,
		ReleasedAt: time.Now(),
	}))
}

// publish 序列化并发送一条持久化消息
func (p *EventPublisher) publish(ctx context.Context, routingKey string, envelope *Envelope) error {
	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	err = ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    envelope.ID,
		Type:         string(envelope.Type),
		Timestamp:    envelope.Timestamp,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}

	p.logger.Debug("event published",
		zap.String("routing_key", routingKey),
		zap.String("message_id", envelope.ID),
	)
	return nil
}
