// Package repo 实现批次数据访问层。
package repo

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/warestack/lotkeeper/internal/domain"
)

// BatchLotRepository 定义批次数据访问接口
type BatchLotRepository interface {
	Create(lot *domain.BatchLot) error
	GetByID(id int64) (*domain.BatchLot, error)

	// ListAvailable 返回 (公司, 门店, 变体) 下 quantity > 0 的批次，
	// 按拣货策略排序：FIFO 为 created_at 升序；FEFO 为 expiry_date 升序
	// （NULL 排最后），created_at 升序兜底。id 升序保证全序稳定。
	ListAvailable(companyID, variantID int64, branchID *int64, strategy domain.PickingStrategy) ([]*domain.BatchLot, error)

	// ListByVariant 返回变体下全部批次（含已耗尽，用于管理端查询）
	ListByVariant(companyID, variantID int64, branchID *int64) ([]*domain.BatchLot, error)

	// HasTrackedLots 判断变体是否启用了批次管理（存在任意批次记录，含已耗尽）
	HasTrackedLots(companyID, variantID int64, branchID *int64) (bool, error)

	// Reserve 占用批次：条件 (quantity - reserved_quantity) >= qty，
	// 影响行数为0说明规划与提交之间批次被并发请求消耗
	Reserve(tx *sql.Tx, lotID, quantity int64) error

	// Confirm 结清批次：quantity 与 reserved_quantity 同时减少，两者都必须足额
	Confirm(tx *sql.Tx, lotID, quantity int64) error

	// Release 释放批次占用，下限为 0
	Release(tx *sql.Tx, lotID, quantity int64) error

	// ExpiringBefore 返回 quantity > 0 且到期日不晚于 deadline 的批次，按到期日升序
	ExpiringBefore(companyID int64, deadline time.Time) ([]*domain.BatchLot, error)

	// RotationCandidates 返回 deadline 前到期的批次，按最早到期、再按剩余数量降序
	RotationCandidates(companyID int64, deadline time.Time) ([]*domain.BatchLot, error)
}

// batchLotRepo 实现BatchLotRepository接口
type batchLotRepo struct {
	db *sql.DB
}

// NewBatchLotRepository 创建批次仓储实例
func NewBatchLotRepository(db *sql.DB) BatchLotRepository {
	return &batchLotRepo{db: db}
}

func (r *batchLotRepo) ex(tx *sql.Tx) Execer {
	if tx != nil {
		return tx
	}
	return r.db
}

const batchLotColumns = `id, company_id, branch_id, variant_id, stock_item_id, lot_code, quantity, reserved_quantity, expiry_date, created_at, updated_at`

// Create 批次入库
func (r *batchLotRepo) Create(lot *domain.BatchLot) error {
	query := `
		INSERT INTO batch_lots (company_id, branch_id, variant_id, stock_item_id, lot_code, quantity, reserved_quantity, expiry_date)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?)
	`

	result, err := r.db.Exec(query,
		lot.CompanyID,
		lot.BranchID,
		lot.VariantID,
		lot.StockItemID,
		lot.LotCode,
		lot.Quantity,
		lot.ExpiryDate,
	)
	if err != nil {
		return fmt.Errorf("failed to create batch lot: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	lot.ID = id
	return nil
}

// GetByID 根据ID获取批次
func (r *batchLotRepo) GetByID(id int64) (*domain.BatchLot, error) {
	query := fmt.Sprintf(`SELECT %s FROM batch_lots WHERE id = ?`, batchLotColumns)

	lot := &domain.BatchLot{}
	err := r.db.QueryRow(query, id).Scan(
		&lot.ID,
		&lot.CompanyID,
		&lot.BranchID,
		&lot.VariantID,
		&lot.StockItemID,
		&lot.LotCode,
		&lot.Quantity,
		&lot.ReservedQuantity,
		&lot.ExpiryDate,
		&lot.CreatedAt,
		&lot.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get batch lot by id: %w", err)
	}

	return lot, nil
}

// ListAvailable 按拣货策略返回可分配批次
func (r *batchLotRepo) ListAvailable(companyID, variantID int64, branchID *int64, strategy domain.PickingStrategy) ([]*domain.BatchLot, error) {
	orderBy := "ORDER BY (expiry_date IS NULL) ASC, expiry_date ASC, created_at ASC, id ASC"
	if strategy == domain.PickingStrategyFIFO {
		orderBy = "ORDER BY created_at ASC, id ASC"
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM batch_lots
		WHERE company_id = ? AND variant_id = ? AND branch_id <=> ? AND quantity > 0
		%s
	`, batchLotColumns, orderBy)

	return r.queryLots(query, companyID, variantID, branchID)
}

// ListByVariant 返回变体下全部批次
func (r *batchLotRepo) ListByVariant(companyID, variantID int64, branchID *int64) ([]*domain.BatchLot, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM batch_lots
		WHERE company_id = ? AND variant_id = ? AND branch_id <=> ?
		ORDER BY created_at ASC, id ASC
	`, batchLotColumns)

	return r.queryLots(query, companyID, variantID, branchID)
}

// HasTrackedLots 判断变体是否启用批次管理
func (r *batchLotRepo) HasTrackedLots(companyID, variantID int64, branchID *int64) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM batch_lots
			WHERE company_id = ? AND variant_id = ? AND branch_id <=> ?
		)
	`

	var exists bool
	if err := r.db.QueryRow(query, companyID, variantID, branchID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check tracked lots: %w", err)
	}

	return exists, nil
}

// Reserve 占用批次
func (r *batchLotRepo) Reserve(tx *sql.Tx, lotID, quantity int64) error {
	query := `
		UPDATE batch_lots
		SET reserved_quantity = reserved_quantity + ?
		WHERE id = ? AND (quantity - reserved_quantity) >= ?
	`

	result, err := r.ex(tx).Exec(query, quantity, lotID, quantity)
	if err != nil {
		return fmt.Errorf("failed to reserve lot: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if affected == 0 {
		return domain.ErrLotReservationConflict
	}

	return nil
}

// Confirm 结清批次
func (r *batchLotRepo) Confirm(tx *sql.Tx, lotID, quantity int64) error {
	query := `
		UPDATE batch_lots
		SET quantity = quantity - ?, reserved_quantity = reserved_quantity - ?
		WHERE id = ? AND quantity >= ? AND reserved_quantity >= ?
	`

	result, err := r.ex(tx).Exec(query, quantity, quantity, lotID, quantity, quantity)
	if err != nil {
		return fmt.Errorf("failed to confirm lot: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if affected == 0 {
		return domain.ErrLotConfirmFailed
	}

	return nil
}

// Release 释放批次占用
func (r *batchLotRepo) Release(tx *sql.Tx, lotID, quantity int64) error {
	query := `
		UPDATE batch_lots
		SET reserved_quantity = GREATEST(reserved_quantity - ?, 0)
		WHERE id = ?
	`

	if _, err := r.ex(tx).Exec(query, quantity, lotID); err != nil {
		return fmt.Errorf("failed to release lot: %w", err)
	}

	return nil
}

// ExpiringBefore 返回 deadline 前到期且仍有剩余的批次
func (r *batchLotRepo) ExpiringBefore(companyID int64, deadline time.Time) ([]*domain.BatchLot, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM batch_lots
		WHERE company_id = ? AND quantity > 0 AND expiry_date IS NOT NULL AND expiry_date <= ?
		ORDER BY expiry_date ASC, id ASC
	`, batchLotColumns)

	return r.queryLots(query, companyID, deadline)
}

// RotationCandidates 返回先出建议候选批次
func (r *batchLotRepo) RotationCandidates(companyID int64, deadline time.Time) ([]*domain.BatchLot, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM batch_lots
		WHERE company_id = ? AND quantity > 0 AND expiry_date IS NOT NULL AND expiry_date <= ?
		ORDER BY expiry_date ASC, quantity DESC, id ASC
	`, batchLotColumns)

	return r.queryLots(query, companyID, deadline)
}

// queryLots 执行批次查询并扫描结果集
func (r *batchLotRepo) queryLots(query string, args ...any) ([]*domain.BatchLot, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query batch lots: %w", err)
	}
	defer rows.Close()

	var lots []*domain.BatchLot
	for rows.Next() {
		lot := &domain.BatchLot{}
		err := rows.Scan(
			&lot.ID,
			&lot.CompanyID,
			&lot.BranchID,
			&lot.VariantID,
			&lot.StockItemID,
			&lot.LotCode,
			&lot.Quantity,
			&lot.ReservedQuantity,
			&lot.ExpiryDate,
			&lot.CreatedAt,
			&lot.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan batch lot: %w", err)
		}
		lots = append(lots, lot)
	}

	return lots, rows.Err()
}
