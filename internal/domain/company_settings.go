// Package domain 定义公司级拣货策略配置。
package domain

import (
	"time"
)

// PickingStrategy 拣货策略
type PickingStrategy string

const (
	PickingStrategyFEFO PickingStrategy = "FEFO" // 先过期先出（默认）
	PickingStrategyFIFO PickingStrategy = "FIFO" // 先入库先出
)

// IsValid 判断策略是否合法
func (p PickingStrategy) IsValid() bool {
	return p == PickingStrategyFEFO || p == PickingStrategyFIFO
}

// CompanySettings 表示公司级库存策略配置
// 每次分配前都重新读取，策略变更在下一笔订单立即生效，不做缓存。
type CompanySettings struct {
	CompanyID           int64           `json:"company_id"`
	PickingStrategy     PickingStrategy `json:"picking_strategy"`
	BlockExpiredLotSale bool            `json:"block_expired_lot_sale"` // 禁止销售已过期批次
	UpdatedAt           time.Time       `json:"updated_at"`
}

// DefaultCompanySettings 返回缺省配置：FEFO 且禁售过期批次
func DefaultCompanySettings(companyID int64) *CompanySettings {
	return &CompanySettings{
		CompanyID:           companyID,
		PickingStrategy:     PickingStrategyFEFO,
		BlockExpiredLotSale: true,
	}
}

// UpdateCompanySettingsRequest 表示配置更新请求
type UpdateCompanySettingsRequest struct {
	PickingStrategy     *PickingStrategy `json:"picking_strategy"`
	BlockExpiredLotSale *bool            `json:"block_expired_lot_sale"`
}
