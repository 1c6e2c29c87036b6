package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/warestack/lotkeeper/internal/domain"
	"github.com/warestack/lotkeeper/internal/repo"
)

// ReservationEventPublisher 定义预留生命周期事件的发布接口
// 发布失败不影响业务结果，由调用方记录日志后继续。
type ReservationEventPublisher interface {
	PublishReserved(ctx context.Context, companyID, orderID int64, reservations []*domain.StockReservation) error
	PublishConfirmed(ctx context.Context, companyID, orderID int64) error
	PublishReleased(ctx context.Context, companyID, orderID int64, status domain.ReservationStatus) error
}

// ReservationService 定义库存预留业务接口
// 三个操作各自运行在单个数据库事务中，事务内任何一步失败整体回滚。
type ReservationService interface {
	// Reserve 为订单的全部订单行占用库存，全部成功或全部失败
	Reserve(ctx context.Context, req *domain.ReserveStockRequest) ([]*domain.StockReservation, error)

	// Confirm 支付成功后把订单下的占用结算为实际扣减
	// 订单下无 reserved 记录时为无副作用的空操作。
	Confirm(ctx context.Context, req *domain.ConfirmReservationRequest) error

	// Release 取消或超时后释放订单下的占用
	// 订单下无 reserved 记录时为无副作用的空操作。
	Release(ctx context.Context, req *domain.ReleaseReservationRequest) error

	// ListByOrder 查询订单下全部预留（含终态）
	ListByOrder(companyID, orderID int64) ([]*domain.StockReservation, error)
}

// reservationService 实现ReservationService接口
type reservationService struct {
	txManager       repo.TxManager
	stockItemRepo   repo.StockItemRepository
	reservationRepo repo.StockReservationRepository
	movementRepo    repo.StockMovementRepository
	allocator       LotAllocator
	publisher       ReservationEventPublisher
	logger          *zap.Logger
	now             func() time.Time
}

// NewReservationService 创建预留服务实例，publisher 可为 nil（不发事件）
func NewReservationService(
	txManager repo.TxManager,
	stockItemRepo repo.StockItemRepository,
	reservationRepo repo.StockReservationRepository,
	movementRepo repo.StockMovementRepository,
	allocator LotAllocator,
	publisher ReservationEventPublisher,
	logger *zap.Logger,
) ReservationService {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &reservationService{
		txManager:       txManager,
		stockItemRepo:   stockItemRepo,
		reservationRepo: reservationRepo,
		movementRepo:    movementRepo,
		allocator:       allocator,
		publisher:       publisher,
		logger:          logger,
		now:             time.Now,
	}
}

// Reserve 为订单占用库存
func (s *reservationService) Reserve(ctx context.Context, req *domain.ReserveStockRequest) ([]*domain.StockReservation, error) {
	if len(req.Items) == 0 {
		return nil, errors.New("reserve request has no items")
	}
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("invalid quantity %d for variant %d", item.Quantity, item.VariantID)
		}
	}

	var reservations []*domain.StockReservation

	err := s.txManager.WithinTx(ctx, func(tx *sql.Tx) error {
		for _, item := range req.Items {
			reservation, err := s.reserveItem(tx, req, item)
			if err != nil {
				return err
			}
			reservations = append(reservations, reservation)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.publisher != nil {
		if pubErr := s.publisher.PublishReserved(ctx, req.CompanyID, req.OrderID, reservations); pubErr != nil {
			s.logger.Warn("failed to publish reserved event",
				zap.Int64("order_id", req.OrderID), zap.Error(pubErr))
		}
	}

	return reservations, nil
}

// reserveItem 在事务内处理单个订单行的占用
func (s *reservationService) reserveItem(tx *sql.Tx, req *domain.ReserveStockRequest, item domain.ReserveItem) (*domain.StockReservation, error) {
	tracked, err := s.allocator.HasTrackedLots(req.CompanyID, item.VariantID, req.BranchID)
	if err != nil {
		return nil, fmt.Errorf("check lot tracking for variant %d: %w", item.VariantID, err)
	}

	reservation := &domain.StockReservation{
		CompanyID: req.CompanyID,
		BranchID:  req.BranchID,
		OrderID:   req.OrderID,
		VariantID: item.VariantID,
		Quantity:  item.Quantity,
		Status:    domain.ReservationStatusReserved,
		ExpiresAt: req.ExpiresAt,
	}

	if !tracked {
		// 未启用批次管理：整单落在最早创建的库存桶上
		bucket, err := s.stockItemRepo.OldestActive(tx, req.CompanyID, item.VariantID, req.BranchID)
		if err != nil {
			return nil, err
		}
		if err := s.stockItemRepo.Reserve(tx, bucket.ID, item.Quantity); err != nil {
			return nil, err
		}
		if err := s.reservationRepo.Create(tx, reservation); err != nil {
			return nil, err
		}
		if err := s.recordMovement(tx, reservation, bucket.ID, domain.MovementTypeReserve, 0, "reserve"); err != nil {
			return nil, err
		}
		return reservation, nil
	}

	picks, err := s.allocator.Allocate(req.CompanyID, item.VariantID, item.Quantity, req.BranchID)
	if err != nil {
		return nil, err
	}

	if err := s.reservationRepo.Create(tx, reservation); err != nil {
		return nil, err
	}

	// 批次与其所在库存桶同时占用，桶级可用量保持一致
	for stockItemID, qty := range sumByStockItem(picks) {
		if err := s.stockItemRepo.Reserve(tx, stockItemID, qty); err != nil {
			return nil, err
		}
		if err := s.recordMovement(tx, reservation, stockItemID, domain.MovementTypeReserve, 0, "reserve"); err != nil {
			return nil, err
		}
	}

	if err := s.allocator.ReserveLots(tx, reservation.ID, picks); err != nil {
		return nil, err
	}

	return reservation, nil
}

// Confirm 结算订单下的全部占用
func (s *reservationService) Confirm(ctx context.Context, req *domain.ConfirmReservationRequest) error {
	confirmed := 0

	err := s.txManager.WithinTx(ctx, func(tx *sql.Tx) error {
		reservations, err := s.reservationRepo.ListReservedByOrder(tx, req.CompanyID, req.OrderID)
		if err != nil {
			return err
		}

		now := s.now()
		for _, r := range reservations {
			if err := s.reservationRepo.MarkConfirmed(tx, r.ID, now); err != nil {
				return err
			}
			if err := s.settleReservation(tx, r); err != nil {
				return err
			}
			confirmed++
		}
		return nil
	})
	if err != nil {
		return err
	}

	if confirmed > 0 && s.publisher != nil {
		if pubErr := s.publisher.PublishConfirmed(ctx, req.CompanyID, req.OrderID); pubErr != nil {
			s.logger.Warn("failed to publish confirmed event",
				zap.Int64("order_id", req.OrderID), zap.Error(pubErr))
		}
	}

	return nil
}

// settleReservation 把单条预留的占用结算为实际扣减
func (s *reservationService) settleReservation(tx *sql.Tx, r *domain.StockReservation) error {
	lots, err := s.reservationRepo.LotsByReservation(tx, r.ID)
	if err != nil {
		return err
	}

	if len(lots) == 0 {
		// 无批次明细：占用落在最早创建的库存桶上
		bucket, err := s.stockItemRepo.OldestActive(tx, r.CompanyID, r.VariantID, r.BranchID)
		if err != nil {
			return err
		}
		if err := s.stockItemRepo.Confirm(tx, bucket.ID, r.Quantity); err != nil {
			return err
		}
		return s.recordMovement(tx, r, bucket.ID, domain.MovementTypeConfirm, -r.Quantity, "confirm")
	}

	if err := s.allocator.ConfirmReservationLots(tx, r.ID); err != nil {
		return err
	}
	for stockItemID, qty := range sumLotsByStockItem(lots) {
		if err := s.stockItemRepo.Confirm(tx, stockItemID, qty); err != nil {
			return err
		}
		if err := s.recordMovement(tx, r, stockItemID, domain.MovementTypeConfirm, -qty, "confirm"); err != nil {
			return err
		}
	}
	return nil
}

// Release 释放订单下的全部占用
func (s *reservationService) Release(ctx context.Context, req *domain.ReleaseReservationRequest) error {
	status, movementType, err := releaseOutcome(req.Reason)
	if err != nil {
		return err
	}

	released := 0

	err = s.txManager.WithinTx(ctx, func(tx *sql.Tx) error {
		reservations, err := s.reservationRepo.ListReservedByOrder(tx, req.CompanyID, req.OrderID)
		if err != nil {
			return err
		}

		now := s.now()
		for _, r := range reservations {
			if err := s.reservationRepo.MarkReleased(tx, r.ID, status, now); err != nil {
				return err
			}
			if err := s.unsettleReservation(tx, r, movementType, string(req.Reason)); err != nil {
				return err
			}
			released++
		}
		return nil
	})
	if err != nil {
		return err
	}

	if released > 0 && s.publisher != nil {
		if pubErr := s.publisher.PublishReleased(ctx, req.CompanyID, req.OrderID, status); pubErr != nil {
			s.logger.Warn("failed to publish released event",
				zap.Int64("order_id", req.OrderID), zap.Error(pubErr))
		}
	}

	return nil
}

// unsettleReservation 释放单条预留的占用
func (s *reservationService) unsettleReservation(tx *sql.Tx, r *domain.StockReservation, movementType domain.MovementType, reason string) error {
	lots, err := s.reservationRepo.LotsByReservation(tx, r.ID)
	if err != nil {
		return err
	}

	if len(lots) == 0 {
		bucket, err := s.stockItemRepo.OldestActive(tx, r.CompanyID, r.VariantID, r.BranchID)
		if err != nil {
			return err
		}
		if err := s.stockItemRepo.Release(tx, bucket.ID, r.Quantity); err != nil {
			return err
		}
		return s.recordMovement(tx, r, bucket.ID, movementType, 0, reason)
	}

	if err := s.allocator.ReleaseReservationLots(tx, r.ID); err != nil {
		return err
	}
	for stockItemID, qty := range sumLotsByStockItem(lots) {
		if err := s.stockItemRepo.Release(tx, stockItemID, qty); err != nil {
			return err
		}
		if err := s.recordMovement(tx, r, stockItemID, movementType, 0, reason); err != nil {
			return err
		}
	}
	return nil
}

// ListByOrder 查询订单下全部预留
func (s *reservationService) ListByOrder(companyID, orderID int64) ([]*domain.StockReservation, error) {
	return s.reservationRepo.ListByOrder(companyID, orderID)
}

// recordMovement 写入一条库存变动审计记录
func (s *reservationService) recordMovement(tx *sql.Tx, r *domain.StockReservation, stockItemID int64, movementType domain.MovementType, delta int64, reason string) error {
	orderID := r.OrderID
	return s.movementRepo.Insert(tx, &domain.StockMovement{
		CompanyID:   r.CompanyID,
		StockItemID: stockItemID,
		VariantID:   r.VariantID,
		OrderID:     &orderID,
		Type:        movementType,
		Delta:       delta,
		Reason:      reason,
	})
}

// releaseOutcome 把释放原因映射到目标状态与审计类型
func releaseOutcome(reason domain.ReleaseReason) (domain.ReservationStatus, domain.MovementType, error) {
	switch reason {
	case domain.ReleaseReasonCancel:
		return domain.ReservationStatusCanceled, domain.MovementTypeRelease, nil
	case domain.ReleaseReasonExpire:
		return domain.ReservationStatusExpired, domain.MovementTypeExpire, nil
	default:
		return "", "", fmt.Errorf("unknown release reason: %s", reason)
	}
}

// sumByStockItem 把取货计划按库存桶聚合
func sumByStockItem(picks []domain.LotPick) map[int64]int64 {
	totals := make(map[int64]int64, len(picks))
	for _, pick := range picks {
		totals[pick.StockItemID] += pick.Quantity
	}
	return totals
}

// sumLotsByStockItem 把预留批次明细按库存桶聚合
func sumLotsByStockItem(lots []*domain.StockReservationLot) map[int64]int64 {
	totals := make(map[int64]int64, len(lots))
	for _, lot := range lots {
		totals[lot.StockItemID] += lot.Quantity
	}
	return totals
}
