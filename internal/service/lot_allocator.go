// Package service 实现批次分配与库存预留的业务逻辑层。
package service

import (
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/warestack/lotkeeper/internal/domain"
	"github.com/warestack/lotkeeper/internal/repo"
)

// LotAllocator 定义批次分配接口
// Allocate 只做规划不落库；落库由 ReserveLots 及其确认/释放配对完成，
// 两步之间的并发消耗靠批次上的条件UPDATE兜底。
type LotAllocator interface {
	// Allocate 规划如何用批次满足数量需求，返回按拣货顺序排列的取货计划。
	// 批次总可用量不足时整体失败，调用方不得使用任何部分结果。
	Allocate(companyID, variantID, quantity int64, branchID *int64) ([]domain.LotPick, error)

	// HasTrackedLots 判断变体是否启用批次管理（存在任意批次记录）
	HasTrackedLots(companyID, variantID int64, branchID *int64) (bool, error)

	// ReserveLots 按取货计划原子占用批次并写入预留明细
	ReserveLots(tx *sql.Tx, reservationID int64, picks []domain.LotPick) error

	// ConfirmReservationLots 按预留明细结清批次数量
	ConfirmReservationLots(tx *sql.Tx, reservationID int64) error

	// ReleaseReservationLots 按预留明细释放批次占用
	ReleaseReservationLots(tx *sql.Tx, reservationID int64) error
}

// lotAllocator 实现LotAllocator接口
type lotAllocator struct {
	settingsRepo    repo.CompanySettingsRepository
	lotRepo         repo.BatchLotRepository
	reservationRepo repo.StockReservationRepository
	logger          *zap.Logger
	now             func() time.Time
}

// NewLotAllocator 创建批次分配器实例
func NewLotAllocator(
	settingsRepo repo.CompanySettingsRepository,
	lotRepo repo.BatchLotRepository,
	reservationRepo repo.StockReservationRepository,
	logger *zap.Logger,
) LotAllocator {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &lotAllocator{
		settingsRepo:    settingsRepo,
		lotRepo:         lotRepo,
		reservationRepo: reservationRepo,
		logger:          logger,
		now:             time.Now,
	}
}

// Allocate 规划批次取货
func (a *lotAllocator) Allocate(companyID, variantID, quantity int64, branchID *int64) ([]domain.LotPick, error) {
	if quantity <= 0 {
		return []domain.LotPick{}, nil
	}

	// 策略每次直读，配置变更对下一笔订单立即生效
	settings, err := a.settingsRepo.Get(companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to load picking settings: %w", err)
	}

	lots, err := a.lotRepo.ListAvailable(companyID, variantID, branchID, settings.PickingStrategy)
	if err != nil {
		return nil, fmt.Errorf("failed to list available lots: %w", err)
	}

	now := a.now()
	remaining := quantity
	var picks []domain.LotPick

	for _, lot := range lots {
		if remaining <= 0 {
			break
		}

		available := lot.Available()
		if available <= 0 {
			continue
		}
		if settings.BlockExpiredLotSale && lot.IsExpiredAt(now) {
			continue
		}

		take := available
		if take > remaining {
			take = remaining
		}

		picks = append(picks, domain.LotPick{
			LotID:       lot.ID,
			StockItemID: lot.StockItemID,
			LotCode:     lot.LotCode,
			Quantity:    take,
			ExpiryDate:  lot.ExpiryDate,
		})
		remaining -= take
	}

	if remaining > 0 {
		// 部分满足的计划不可用，整体失败
		return nil, domain.ErrInsufficientStock
	}

	return picks, nil
}

// HasTrackedLots 判断变体是否启用批次管理
func (a *lotAllocator) HasTrackedLots(companyID, variantID int64, branchID *int64) (bool, error) {
	return a.lotRepo.HasTrackedLots(companyID, variantID, branchID)
}

// ReserveLots 按取货计划原子占用批次并写入预留明细
func (a *lotAllocator) ReserveLots(tx *sql.Tx, reservationID int64, picks []domain.LotPick) error {
	if len(picks) == 0 {
		return nil
	}

	lots := make([]*domain.StockReservationLot, 0, len(picks))
	for _, pick := range picks {
		if err := a.lotRepo.Reserve(tx, pick.LotID, pick.Quantity); err != nil {
			return fmt.Errorf("reserve lot %s: %w", pick.LotCode, err)
		}
		lots = append(lots, &domain.StockReservationLot{
			ReservationID: reservationID,
			LotID:         pick.LotID,
			StockItemID:   pick.StockItemID,
			Quantity:      pick.Quantity,
		})
	}

	if err := a.reservationRepo.CreateLots(tx, lots); err != nil {
		return fmt.Errorf("persist reservation lots: %w", err)
	}

	return nil
}

// ConfirmReservationLots 按预留明细结清批次数量
func (a *lotAllocator) ConfirmReservationLots(tx *sql.Tx, reservationID int64) error {
	lots, err := a.reservationRepo.LotsByReservation(tx, reservationID)
	if err != nil {
		return fmt.Errorf("load reservation lots: %w", err)
	}

	for _, lot := range lots {
		if err := a.lotRepo.Confirm(tx, lot.LotID, lot.Quantity); err != nil {
			// 预留与确认配对调用时不应出现，必须作为严重事故记录
			a.logger.Error("lot confirm failed",
				zap.Int64("reservation_id", reservationID),
				zap.Int64("lot_id", lot.LotID),
				zap.Int64("quantity", lot.Quantity),
				zap.Error(err),
			)
			return err
		}
	}

	return nil
}

// ReleaseReservationLots 按预留明细释放批次占用
func (a *lotAllocator) ReleaseReservationLots(tx *sql.Tx, reservationID int64) error {
	lots, err := a.reservationRepo.LotsByReservation(tx, reservationID)
	if err != nil {
		return fmt.Errorf("load reservation lots: %w", err)
	}

	for _, lot := range lots {
		if err := a.lotRepo.Release(tx, lot.LotID, lot.Quantity); err != nil {
			return fmt.Errorf("release lot %d: %w", lot.LotID, err)
		}
	}

	return nil
}
