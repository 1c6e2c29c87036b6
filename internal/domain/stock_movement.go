// Package domain 定义库存变动审计记录。
package domain

import (
	"time"
)

// MovementType 变动类型
type MovementType string

const (
	MovementTypeReserve MovementType = "reserve" // 预留占用，delta 为 0
	MovementTypeConfirm MovementType = "confirm" // 确认扣减，delta 为负
	MovementTypeRelease MovementType = "release" // 取消释放，delta 为 0
	MovementTypeExpire  MovementType = "expire"  // 超时释放，delta 为 0
	MovementTypeAdjust  MovementType = "adjust"  // 人工调整
	MovementTypeReceive MovementType = "receive" // 批次入库
)

// StockMovement 表示一条库存变动审计记录
// 预留/释放类记录 Delta 为 0，仅用于可观测性，不影响数量。
type StockMovement struct {
	ID          int64        `json:"id"`
	CompanyID   int64        `json:"company_id"`
	StockItemID int64        `json:"stock_item_id"`
	VariantID   int64        `json:"variant_id"`
	OrderID     *int64       `json:"order_id"`
	Type        MovementType `json:"type"`
	Delta       int64        `json:"delta"`  // 对在库数量的实际影响
	Reason      string       `json:"reason"` // 变动原因说明
	CreatedAt   time.Time    `json:"created_at"`
}
