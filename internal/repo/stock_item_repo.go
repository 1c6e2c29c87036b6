// Package repo 实现库存桶数据访问层。
package repo

import (
	"database/sql"
	"fmt"

	"github.com/warestack/lotkeeper/internal/domain"
)

// StockItemRepository 定义库存桶数据访问接口
// 所有数量变更都通过带条件的原子UPDATE完成（影响行数为0视为失败），
// 这是并发下防止超卖的唯一手段，禁止读取后再写回。
type StockItemRepository interface {
	Create(item *domain.StockItem) error

	// GetByID 根据ID获取库存桶，不存在时返回 domain.ErrStockItemNotFound
	GetByID(id int64) (*domain.StockItem, error)

	// GetByVariant 根据 (公司, 门店, 变体) 获取最早创建的库存桶，
	// 不存在时返回 domain.ErrStockItemNotFound
	GetByVariant(companyID, variantID int64, branchID *int64) (*domain.StockItem, error)

	// OldestActive 返回 (公司, 门店, 变体) 下最早创建且未删除的库存桶，
	// 不存在时返回 domain.ErrStockItemNotFound。
	// 变体未启用批次管理时，预留直接落在该桶上
	OldestActive(tx *sql.Tx, companyID, variantID int64, branchID *int64) (*domain.StockItem, error)

	// Reserve 占用库存：reserved_quantity += qty，条件 (quantity - reserved_quantity) >= qty
	Reserve(tx *sql.Tx, stockItemID, quantity int64) error

	// Confirm 确认扣减：quantity 与 reserved_quantity 同时减少 qty，两者都必须足额
	Confirm(tx *sql.Tx, stockItemID, quantity int64) error

	// Release 释放占用：reserved_quantity 减少 qty，下限为 0，不触碰 quantity
	Release(tx *sql.Tx, stockItemID, quantity int64) error

	// Adjust 人工调整在库数量，条件为结果非负且不低于已占用数量
	Adjust(stockItemID, delta int64) error
}

// stockItemRepo 实现StockItemRepository接口
type stockItemRepo struct {
	db *sql.DB
}

// NewStockItemRepository 创建库存桶仓储实例
func NewStockItemRepository(db *sql.DB) StockItemRepository {
	return &stockItemRepo{db: db}
}

// ex 返回当前应使用的执行器：在事务内时用 tx，否则用连接池
func (r *stockItemRepo) ex(tx *sql.Tx) Execer {
	if tx != nil {
		return tx
	}
	return r.db
}

// Create 创建库存桶
func (r *stockItemRepo) Create(item *domain.StockItem) error {
	query := `
		INSERT INTO stock_items (company_id, branch_id, variant_id, quantity, reserved_quantity)
		VALUES (?, ?, ?, ?, 0)
	`

	result, err := r.db.Exec(query, item.CompanyID, item.BranchID, item.VariantID, item.Quantity)
	if err != nil {
		return fmt.Errorf("failed to create stock item: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	item.ID = id
	return nil
}

// GetByID 根据ID获取库存桶
func (r *stockItemRepo) GetByID(id int64) (*domain.StockItem, error) {
	query := `
		SELECT id, company_id, branch_id, variant_id, quantity, reserved_quantity, created_at, updated_at, deleted_at
		FROM stock_items
		WHERE id = ?
	`

	item := &domain.StockItem{}
	err := r.db.QueryRow(query, id).Scan(
		&item.ID,
		&item.CompanyID,
		&item.BranchID,
		&item.VariantID,
		&item.Quantity,
		&item.ReservedQuantity,
		&item.CreatedAt,
		&item.UpdatedAt,
		&item.DeletedAt,
	)

	if err == sql.ErrNoRows {
		return nil, domain.ErrStockItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stock item by id: %w", err)
	}

	return item, nil
}

// GetByVariant 根据 (公司, 门店, 变体) 获取最早创建的库存桶
func (r *stockItemRepo) GetByVariant(companyID, variantID int64, branchID *int64) (*domain.StockItem, error) {
	return r.oldestActive(r.db, companyID, variantID, branchID)
}

// OldestActive 在事务内解析未启用批次管理的变体所落的库存桶
func (r *stockItemRepo) OldestActive(tx *sql.Tx, companyID, variantID int64, branchID *int64) (*domain.StockItem, error) {
	return r.oldestActive(r.ex(tx), companyID, variantID, branchID)
}

func (r *stockItemRepo) oldestActive(ex Execer, companyID, variantID int64, branchID *int64) (*domain.StockItem, error) {
	// branch_id 为空表示公司级库存，<=> 使 NULL 也能精确匹配
	query := `
		SELECT id, company_id, branch_id, variant_id, quantity, reserved_quantity, created_at, updated_at, deleted_at
		FROM stock_items
		WHERE company_id = ? AND variant_id = ? AND branch_id <=> ? AND deleted_at IS NULL
		ORDER BY created_at ASC, id ASC
		LIMIT 1
	`

	item := &domain.StockItem{}
	err := ex.QueryRow(query, companyID, variantID, branchID).Scan(
		&item.ID,
		&item.CompanyID,
		&item.BranchID,
		&item.VariantID,
		&item.Quantity,
		&item.ReservedQuantity,
		&item.CreatedAt,
		&item.UpdatedAt,
		&item.DeletedAt,
	)

	if err == sql.ErrNoRows {
		return nil, domain.ErrStockItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get oldest stock item: %w", err)
	}

	return item, nil
}

// Reserve 占用库存
func (r *stockItemRepo) Reserve(tx *sql.Tx, stockItemID, quantity int64) error {
	query := `
		UPDATE stock_items
		SET reserved_quantity = reserved_quantity + ?
		WHERE id = ? AND (quantity - reserved_quantity) >= ?
	`

	result, err := r.ex(tx).Exec(query, quantity, stockItemID, quantity)
	if err != nil {
		return fmt.Errorf("failed to reserve stock: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if affected == 0 {
		return domain.ErrInsufficientStock
	}

	return nil
}

// Confirm 确认扣减
func (r *stockItemRepo) Confirm(tx *sql.Tx, stockItemID, quantity int64) error {
	query := `
		UPDATE stock_items
		SET quantity = quantity - ?, reserved_quantity = reserved_quantity - ?
		WHERE id = ? AND quantity >= ? AND reserved_quantity >= ?
	`

	result, err := r.ex(tx).Exec(query, quantity, quantity, stockItemID, quantity, quantity)
	if err != nil {
		return fmt.Errorf("failed to confirm stock: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if affected == 0 {
		// 预留与确认配对调用时不应出现，属内部一致性事故
		return domain.ErrReservationConfirmFailed
	}

	return nil
}

// Release 释放占用
func (r *stockItemRepo) Release(tx *sql.Tx, stockItemID, quantity int64) error {
	query := `
		UPDATE stock_items
		SET reserved_quantity = GREATEST(reserved_quantity - ?, 0)
		WHERE id = ?
	`

	if _, err := r.ex(tx).Exec(query, quantity, stockItemID); err != nil {
		return fmt.Errorf("failed to release stock: %w", err)
	}

	return nil
}

// Adjust 人工调整在库数量
func (r *stockItemRepo) Adjust(stockItemID, delta int64) error {
	query := `
		UPDATE stock_items
		SET quantity = quantity + ?
		WHERE id = ? AND quantity + ? >= reserved_quantity AND quantity + ? >= 0
	`

	result, err := r.db.Exec(query, delta, stockItemID, delta, delta)
	if err != nil {
		return fmt.Errorf("failed to adjust stock: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("stock adjustment would break reservation invariant")
	}

	return nil
}
