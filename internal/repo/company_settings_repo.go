// Package repo 实现公司配置的数据访问层。
package repo

import (
	"database/sql"
	"fmt"

	"github.com/warestack/lotkeeper/internal/domain"
)

// CompanySettingsRepository 定义公司配置数据访问接口
// Get 在每次分配前都会被调用，必须直读数据库，不允许缓存，
// 保证策略变更对下一笔订单立即生效。
type CompanySettingsRepository interface {
	Get(companyID int64) (*domain.CompanySettings, error)
	Upsert(settings *domain.CompanySettings) error
}

// companySettingsRepo 实现CompanySettingsRepository接口
type companySettingsRepo struct {
	db *sql.DB
}

// NewCompanySettingsRepository 创建公司配置仓储实例
func NewCompanySettingsRepository(db *sql.DB) CompanySettingsRepository {
	return &companySettingsRepo{db: db}
}

// Get 获取公司配置，无记录时返回缺省配置（FEFO + 禁售过期批次）
func (r *companySettingsRepo) Get(companyID int64) (*domain.CompanySettings, error) {
	query := `
		SELECT company_id, picking_strategy, block_expired_lot_sale, updated_at
		FROM company_settings
		WHERE company_id = ?
	`

	settings := &domain.CompanySettings{}
	err := r.db.QueryRow(query, companyID).Scan(
		&settings.CompanyID,
		&settings.PickingStrategy,
		&settings.BlockExpiredLotSale,
		&settings.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return domain.DefaultCompanySettings(companyID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get company settings: %w", err)
	}

	return settings, nil
}

// Upsert 写入公司配置
func (r *companySettingsRepo) Upsert(settings *domain.CompanySettings) error {
	query := `
		INSERT INTO company_settings (company_id, picking_strategy, block_expired_lot_sale)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE
			picking_strategy = VALUES(picking_strategy),
			block_expired_lot_sale = VALUES(block_expired_lot_sale)
	`

	_, err := r.db.Exec(query,
		settings.CompanyID,
		string(settings.PickingStrategy),
		settings.BlockExpiredLotSale,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert company settings: %w", err)
	}

	return nil
}
