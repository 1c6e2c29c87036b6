// Package domain 定义库存预留的状态机与关联模型。
package domain

import (
	"time"
)

// ReservationStatus 定义预留状态类型
type ReservationStatus string

const (
	ReservationStatusReserved  ReservationStatus = "reserved"  // 已预留，等待支付结果
	ReservationStatusConfirmed ReservationStatus = "confirmed" // 已确认，库存实际扣减
	ReservationStatusCanceled  ReservationStatus = "canceled"  // 已取消，占用释放
	ReservationStatusExpired   ReservationStatus = "expired"   // 已超时，占用释放
)

// ReleaseReason 释放原因
type ReleaseReason string

const (
	ReleaseReasonCancel ReleaseReason = "cancel" // 订单取消
	ReleaseReasonExpire ReleaseReason = "expire" // 预留超时
)

// StockReservation 表示一条对订单行的库存占用
// 状态机：reserved -> confirmed（支付成功） / canceled（取消） / expired（超时）。
// 终态不可再迁移；对无 reserved 记录的订单重复 confirm/release 是无副作用的空操作。
type StockReservation struct {
	ID          int64             `json:"id"`
	CompanyID   int64             `json:"company_id"`
	BranchID    *int64            `json:"branch_id"`
	OrderID     int64             `json:"order_id"`
	VariantID   int64             `json:"variant_id"`
	Quantity    int64             `json:"quantity"`
	Status      ReservationStatus `json:"status"`
	ExpiresAt   time.Time         `json:"expires_at"`
	ConfirmedAt *time.Time        `json:"confirmed_at"`
	CanceledAt  *time.Time        `json:"canceled_at"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// IsReserved 判断预留是否仍在占用中
func (r *StockReservation) IsReserved() bool {
	return r.Status == ReservationStatusReserved
}

// IsTerminal 判断预留是否处于终态
func (r *StockReservation) IsTerminal() bool {
	return r.Status == ReservationStatusConfirmed ||
		r.Status == ReservationStatusCanceled ||
		r.Status == ReservationStatusExpired
}

// IsPastExpiry 判断预留是否已超过 TTL
func (r *StockReservation) IsPastExpiry(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// StockReservationLot 记录一条预留从哪个批次满足了多少数量
// 预留与批次是多对多关系，该记录创建后不可变，仅随预留进入终态而结清。
type StockReservationLot struct {
	ID            int64     `json:"id"`
	ReservationID int64     `json:"reservation_id"`
	LotID         int64     `json:"lot_id"`
	StockItemID   int64     `json:"stock_item_id"`
	Quantity      int64     `json:"quantity"`
	CreatedAt     time.Time `json:"created_at"`
}

// ReserveItem 表示预留请求中的一个订单行
type ReserveItem struct {
	VariantID int64 `json:"variant_id"`
	Quantity  int64 `json:"quantity"`
}

// ReserveStockRequest 表示对一个订单的整体预留请求
type ReserveStockRequest struct {
	CompanyID int64         `json:"company_id"`
	OrderID   int64         `json:"order_id"`
	BranchID  *int64        `json:"branch_id"`
	Items     []ReserveItem `json:"items"`
	ExpiresAt time.Time     `json:"expires_at"`
}

// ConfirmReservationRequest 表示确认请求（支付成功后）
type ConfirmReservationRequest struct {
	CompanyID int64 `json:"company_id"`
	OrderID   int64 `json:"order_id"`
}

// ReleaseReservationRequest 表示释放请求（取消或超时）
type ReleaseReservationRequest struct {
	CompanyID int64         `json:"company_id"`
	OrderID   int64         `json:"order_id"`
	Reason    ReleaseReason `json:"reason"`
}
