// Package domain 定义库存预留相关的业务领域模型和核心业务规则。
package domain

import (
	"time"
)

// StockItem 表示一个 (公司, 门店, 变体) 维度的库存桶
type StockItem struct {
	ID               int64      `json:"id"`
	CompanyID        int64      `json:"company_id"`
	BranchID         *int64     `json:"branch_id"`         // 门店ID，为空表示公司级库存
	VariantID        int64      `json:"variant_id"`        // 商品变体ID
	Quantity         int64      `json:"quantity"`          // 在库数量
	ReservedQuantity int64      `json:"reserved_quantity"` // 被未完结预留占用的数量
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	DeletedAt        *time.Time `json:"deleted_at,omitempty"` // 软删除时间
}

// Available 返回真实可预留数量
// 不变量：0 <= ReservedQuantity <= Quantity，因此返回值恒 >= 0
func (s *StockItem) Available() int64 {
	return s.Quantity - s.ReservedQuantity
}

// CanReserve 判断是否可以预留指定数量
func (s *StockItem) CanReserve(quantity int64) bool {
	return s.Available() >= quantity
}

// IsDeleted 判断库存桶是否已被下线
func (s *StockItem) IsDeleted() bool {
	return s.DeletedAt != nil
}

// CreateStockItemRequest 表示创建库存桶请求
type CreateStockItemRequest struct {
	CompanyID int64  `json:"company_id"`
	BranchID  *int64 `json:"branch_id"`
	VariantID int64  `json:"variant_id"`
	Quantity  int64  `json:"quantity"`
}

// AdjustStockRequest 表示库存调整请求
type AdjustStockRequest struct {
	Quantity int64  `json:"quantity"` // 调整数量，正数为入库，负数为出库
	Reason   string `json:"reason"`   // 调整原因
}
