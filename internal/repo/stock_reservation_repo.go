// Package repo 实现预留及预留批次明细的数据访问层。
package repo

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/warestack/lotkeeper/internal/domain"
)

// ExpiredOrder 标识一个存在超时预留的订单
type ExpiredOrder struct {
	CompanyID int64
	OrderID   int64
}

// StockReservationRepository 定义预留数据访问接口
type StockReservationRepository interface {
	Create(tx *sql.Tx, reservation *domain.StockReservation) error

	// CreateLots 批量写入预留批次明细，明细创建后不可变
	CreateLots(tx *sql.Tx, lots []*domain.StockReservationLot) error

	// ListReservedByOrder 返回订单下仍处于 reserved 状态的预留
	ListReservedByOrder(tx *sql.Tx, companyID, orderID int64) ([]*domain.StockReservation, error)

	// LotsByReservation 返回预留的批次明细（无批次管理的变体返回空）
	LotsByReservation(tx *sql.Tx, reservationID int64) ([]*domain.StockReservationLot, error)

	// MarkConfirmed 将预留迁移到 confirmed，仅对 reserved 状态生效
	MarkConfirmed(tx *sql.Tx, reservationID int64, at time.Time) error

	// MarkReleased 将预留迁移到 canceled/expired，仅对 reserved 状态生效
	MarkReleased(tx *sql.Tx, reservationID int64, status domain.ReservationStatus, at time.Time) error

	// ListExpiredOrders 返回存在超时未释放预留的订单（TTL 扫描任务使用）
	ListExpiredOrders(now time.Time, limit int) ([]ExpiredOrder, error)

	// ListByOrder 返回订单下全部预留（含终态，管理端查询）
	ListByOrder(companyID, orderID int64) ([]*domain.StockReservation, error)
}

// stockReservationRepo 实现StockReservationRepository接口
type stockReservationRepo struct {
	db *sql.DB
}

// NewStockReservationRepository 创建预留仓储实例
func NewStockReservationRepository(db *sql.DB) StockReservationRepository {
	return &stockReservationRepo{db: db}
}

func (r *stockReservationRepo) ex(tx *sql.Tx) Execer {
	if tx != nil {
		return tx
	}
	return r.db
}

const reservationColumns = `id, company_id, branch_id, order_id, variant_id, quantity, status, expires_at, confirmed_at, canceled_at, created_at, updated_at`

// Create 创建预留记录（初始状态 reserved）
func (r *stockReservationRepo) Create(tx *sql.Tx, reservation *domain.StockReservation) error {
	query := `
		INSERT INTO stock_reservations (company_id, branch_id, order_id, variant_id, quantity, status, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.ex(tx).Exec(query,
		reservation.CompanyID,
		reservation.BranchID,
		reservation.OrderID,
		reservation.VariantID,
		reservation.Quantity,
		string(domain.ReservationStatusReserved),
		reservation.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create reservation: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	reservation.ID = id
	reservation.Status = domain.ReservationStatusReserved
	return nil
}

// CreateLots 批量写入预留批次明细
func (r *stockReservationRepo) CreateLots(tx *sql.Tx, lots []*domain.StockReservationLot) error {
	if len(lots) == 0 {
		return nil
	}

	query := `
		INSERT INTO stock_reservation_lots (reservation_id, lot_id, stock_item_id, quantity)
		VALUES (?, ?, ?, ?)
	`

	for _, lot := range lots {
		result, err := r.ex(tx).Exec(query, lot.ReservationID, lot.LotID, lot.StockItemID, lot.Quantity)
		if err != nil {
			return fmt.Errorf("failed to create reservation lot: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		lot.ID = id
	}

	return nil
}

// ListReservedByOrder 返回订单下仍处于 reserved 状态的预留
func (r *stockReservationRepo) ListReservedByOrder(tx *sql.Tx, companyID, orderID int64) ([]*domain.StockReservation, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM stock_reservations
		WHERE company_id = ? AND order_id = ? AND status = ?
		ORDER BY id ASC
	`, reservationColumns)

	return r.queryReservations(r.ex(tx), query, companyID, orderID, string(domain.ReservationStatusReserved))
}

// ListByOrder 返回订单下全部预留
func (r *stockReservationRepo) ListByOrder(companyID, orderID int64) ([]*domain.StockReservation, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM stock_reservations
		WHERE company_id = ? AND order_id = ?
		ORDER BY id ASC
	`, reservationColumns)

	return r.queryReservations(r.db, query, companyID, orderID)
}

// LotsByReservation 返回预留的批次明细
func (r *stockReservationRepo) LotsByReservation(tx *sql.Tx, reservationID int64) ([]*domain.StockReservationLot, error) {
	query := `
		SELECT id, reservation_id, lot_id, stock_item_id, quantity, created_at
		FROM stock_reservation_lots
		WHERE reservation_id = ?
		ORDER BY id ASC
	`

	rows, err := r.ex(tx).Query(query, reservationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query reservation lots: %w", err)
	}
	defer rows.Close()

	var lots []*domain.StockReservationLot
	for rows.Next() {
		lot := &domain.StockReservationLot{}
		err := rows.Scan(
			&lot.ID,
			&lot.ReservationID,
			&lot.LotID,
			&lot.StockItemID,
			&lot.Quantity,
			&lot.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reservation lot: %w", err)
		}
		lots = append(lots, lot)
	}

	return lots, rows.Err()
}

// MarkConfirmed 迁移预留到 confirmed
func (r *stockReservationRepo) MarkConfirmed(tx *sql.Tx, reservationID int64, at time.Time) error {
	query := `
		UPDATE stock_reservations
		SET status = ?, confirmed_at = ?
		WHERE id = ? AND status = ?
	`

	result, err := r.ex(tx).Exec(query,
		string(domain.ReservationStatusConfirmed),
		at,
		reservationID,
		string(domain.ReservationStatusReserved),
	)
	if err != nil {
		return fmt.Errorf("failed to mark reservation confirmed: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if affected == 0 {
		// 终态不可再迁移
		return domain.ErrReservationConfirmFailed
	}

	return nil
}

// MarkReleased 迁移预留到 canceled/expired
func (r *stockReservationRepo) MarkReleased(tx *sql.Tx, reservationID int64, status domain.ReservationStatus, at time.Time) error {
	if status != domain.ReservationStatusCanceled && status != domain.ReservationStatusExpired {
		return fmt.Errorf("invalid release status: %s", status)
	}

	query := `
		UPDATE stock_reservations
		SET status = ?, canceled_at = ?
		WHERE id = ? AND status = ?
	`

	result, err := r.ex(tx).Exec(query,
		string(status),
		at,
		reservationID,
		string(domain.ReservationStatusReserved),
	)
	if err != nil {
		return fmt.Errorf("failed to mark reservation released: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("reservation %d is not in reserved state", reservationID)
	}

	return nil
}

// ListExpiredOrders 返回存在超时未释放预留的订单
func (r *stockReservationRepo) ListExpiredOrders(now time.Time, limit int) ([]ExpiredOrder, error) {
	query := `
		SELECT DISTINCT company_id, order_id
		FROM stock_reservations
		WHERE status = ? AND expires_at < ?
		ORDER BY company_id ASC, order_id ASC
		LIMIT ?
	`

	rows, err := r.db.Query(query, string(domain.ReservationStatusReserved), now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query expired reservations: %w", err)
	}
	defer rows.Close()

	var orders []ExpiredOrder
	for rows.Next() {
		var o ExpiredOrder
		if err := rows.Scan(&o.CompanyID, &o.OrderID); err != nil {
			return nil, fmt.Errorf("failed to scan expired order: %w", err)
		}
		orders = append(orders, o)
	}

	return orders, rows.Err()
}

// queryReservations 执行预留查询并扫描结果集
func (r *stockReservationRepo) queryReservations(ex Execer, query string, args ...any) ([]*domain.StockReservation, error) {
	rows, err := ex.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reservations: %w", err)
	}
	defer rows.Close()

	var reservations []*domain.StockReservation
	for rows.Next() {
		res := &domain.StockReservation{}
		err := rows.Scan(
			&res.ID,
			&res.CompanyID,
			&res.BranchID,
			&res.OrderID,
			&res.VariantID,
			&res.Quantity,
			&res.Status,
			&res.ExpiresAt,
			&res.ConfirmedAt,
			&res.CanceledAt,
			&res.CreatedAt,
			&res.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		reservations = append(reservations, res)
	}

	return reservations, rows.Err()
}
