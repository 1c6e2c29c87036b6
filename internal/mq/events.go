// Package mq 定义预留生命周期事件的消息结构。
package mq

import (
	"time"

	"github.com/google/uuid"

	"github.com/warestack/lotkeeper/internal/domain"
)

// 路由键约定：<领域>.<实体>.<事件>
const (
	RoutingKeyReserved  = "stock.reservation.reserved"
	RoutingKeyConfirmed = "stock.reservation.confirmed"
	RoutingKeyCanceled  = "stock.reservation.canceled"
	RoutingKeyExpired   = "stock.reservation.expired"

	// RoutingKeyOrderCancelled 订单服务发布的取消事件，本服务消费后释放预留
	RoutingKeyOrderCancelled = "order.order.cancelled"
)

// EventType 事件类型
type EventType string

const (
	EventTypeReserved  EventType = "reservation_reserved"
	EventTypeConfirmed EventType = "reservation_confirmed"
	EventTypeReleased  EventType = "reservation_released"
)

// Envelope 事件消息信封
type Envelope struct {
	ID        string    `json:"id"`        // 消息唯一ID
	Type      EventType `json:"type"`      // 事件类型
	Version   string    `json:"version"`   // 消息版本
	Timestamp time.Time `json:"timestamp"` // 发生时间
	Source    string    `json:"source"`    // 消息源服务
	Data      any       `json:"data"`      // 业务数据
}

// ReservationLine 事件中的单条预留
type ReservationLine struct {
	ReservationID int64     `json:"reservation_id"`
	VariantID     int64     `json:"variant_id"`
	Quantity      int64     `json:"quantity"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// ReservedData 预留创建事件数据
type ReservedData struct {
	CompanyID int64             `json:"company_id"`
	OrderID   int64             `json:"order_id"`
	Lines     []ReservationLine `json:"lines"`
}

// ConfirmedData 预留确认事件数据
type ConfirmedData struct {
	CompanyID   int64     `json:"company_id"`
	OrderID     int64     `json:"order_id"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

// ReleasedData 预留释放事件数据
type ReleasedData struct {
	CompanyID  int64                    `json:"company_id"`
	OrderID    int64                    `json:"order_id"`
	Status     domain.ReservationStatus `json:"status"` // canceled 或 expired
	ReleasedAt time.Time                `json:"released_at"`
}

// OrderCancelledData 订单取消事件数据（外部订单服务发布）
type OrderCancelledData struct {
	CompanyID int64  `json:"company_id"`
	OrderID   int64  `json:"order_id"`
	Reason    string `json:"reason"`
}

// newEnvelope 构造带唯一ID的消息信封
func newEnvelope(eventType EventType, data any) *Envelope {
	return &Envelope{
		ID:        uuid.New().String(),
		Type:      eventType,
		Version:   "1.0",
		Timestamp: time.Now(),
		Source:    "lotkeeper",
		Data:      data,
	}
}
