// Package repo 实现库存变动审计记录的数据访问层。
package repo

import (
	"database/sql"
	"fmt"

	"github.com/warestack/lotkeeper/internal/domain"
)

// StockMovementRepository 定义库存变动审计记录数据访问接口
// 审计记录只追加不修改。
type StockMovementRepository interface {
	Insert(tx *sql.Tx, movement *domain.StockMovement) error
	ListByOrder(companyID, orderID int64) ([]*domain.StockMovement, error)
}

// stockMovementRepo 实现StockMovementRepository接口
type stockMovementRepo struct {
	db *sql.DB
}

// NewStockMovementRepository 创建审计记录仓储实例
func NewStockMovementRepository(db *sql.DB) StockMovementRepository {
	return &stockMovementRepo{db: db}
}

func (r *stockMovementRepo) ex(tx *sql.Tx) Execer {
	if tx != nil {
		return tx
	}
	return r.db
}

// Insert 追加一条变动记录
func (r *stockMovementRepo) Insert(tx *sql.Tx, movement *domain.StockMovement) error {
	query := `
		INSERT INTO stock_movements (company_id, stock_item_id, variant_id, order_id, type, delta, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.ex(tx).Exec(query,
		movement.CompanyID,
		movement.StockItemID,
		movement.VariantID,
		movement.OrderID,
		string(movement.Type),
		movement.Delta,
		movement.Reason,
	)
	if err != nil {
		return fmt.Errorf("failed to insert stock movement: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	movement.ID = id
	return nil
}

// ListByOrder 返回订单相关的全部变动记录
func (r *stockMovementRepo) ListByOrder(companyID, orderID int64) ([]*domain.StockMovement, error) {
	query := `
		SELECT id, company_id, stock_item_id, variant_id, order_id, type, delta, reason, created_at
		FROM stock_movements
		WHERE company_id = ? AND order_id = ?
		ORDER BY id ASC
	`

	rows, err := r.db.Query(query, companyID, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query stock movements: %w", err)
	}
	defer rows.Close()

	var movements []*domain.StockMovement
	for rows.Next() {
		m := &domain.StockMovement{}
		err := rows.Scan(
			&m.ID,
			&m.CompanyID,
			&m.StockItemID,
			&m.VariantID,
			&m.OrderID,
			&m.Type,
			&m.Delta,
			&m.Reason,
			&m.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stock movement: %w", err)
		}
		movements = append(movements, m)
	}

	return movements, rows.Err()
}
