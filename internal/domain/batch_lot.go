// Package domain 定义批次（lot）相关的业务领域模型。
package domain

import (
	"time"
)

// BatchLot 表示一个变体在某门店的实物批次
// 批次耗尽（Quantity == 0）后不再参与分配，但保留作为审计记录，不做删除。
type BatchLot struct {
	ID               int64      `json:"id"`
	CompanyID        int64      `json:"company_id"`
	BranchID         *int64     `json:"branch_id"`
	VariantID        int64      `json:"variant_id"`
	StockItemID      int64      `json:"stock_item_id"`     // 批次扣减所落到的库存桶
	LotCode          string     `json:"lot_code"`          // 人工可读的批次号
	Quantity         int64      `json:"quantity"`          // 批次剩余数量
	ReservedQuantity int64      `json:"reserved_quantity"` // 被未完结预留占用的数量
	ExpiryDate       *time.Time `json:"expiry_date"`       // 到期日，可为空（不管理效期）
	CreatedAt        time.Time  `json:"created_at"`        // 入库顺序，FIFO 与排序兜底键
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Available 返回批次真实可预留数量
func (l *BatchLot) Available() int64 {
	return l.Quantity - l.ReservedQuantity
}

// IsExhausted 判断批次是否已耗尽
func (l *BatchLot) IsExhausted() bool {
	return l.Quantity <= 0
}

// IsExpiredAt 判断批次在指定时刻是否已过期
func (l *BatchLot) IsExpiredAt(now time.Time) bool {
	return l.ExpiryDate != nil && l.ExpiryDate.Before(now)
}

// LotPick 表示一次分配计划中从某批次取货的结果
type LotPick struct {
	LotID       int64      `json:"lot_id"`
	StockItemID int64      `json:"stock_item_id"`
	LotCode     string     `json:"lot_code"`
	Quantity    int64      `json:"quantity"`
	ExpiryDate  *time.Time `json:"expiry_date"`
}

// CreateBatchLotRequest 表示批次入库请求
type CreateBatchLotRequest struct {
	CompanyID  int64      `json:"company_id"`
	BranchID   *int64     `json:"branch_id"`
	VariantID  int64      `json:"variant_id"`
	LotCode    string     `json:"lot_code"`
	Quantity   int64      `json:"quantity"`
	ExpiryDate *time.Time `json:"expiry_date"`
}

// ExpiryAlertStatus 效期告警状态
type ExpiryAlertStatus string

const (
	ExpiryAlertExpired    ExpiryAlertStatus = "EXPIRED"     // 已过期
	ExpiryAlertNearExpiry ExpiryAlertStatus = "NEAR_EXPIRY" // 临期
)

// ExpiryAlert 表示一条效期告警
type ExpiryAlert struct {
	Lot      *BatchLot         `json:"lot"`
	Status   ExpiryAlertStatus `json:"status"`
	DaysLeft int               `json:"days_left"` // 距过期天数，负数表示已过期
}

// RotationSuggestion 表示一条先出建议（优先消化临期批次）
type RotationSuggestion struct {
	Lot      *BatchLot `json:"lot"`
	DaysLeft int       `json:"days_left"`
}
