// Package worker 提供后台任务：预留超时扫描。
package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/warestack/lotkeeper/internal/domain"
	"github.com/warestack/lotkeeper/internal/repo"
	"github.com/warestack/lotkeeper/internal/service"
)

// ReservationExpirer 周期扫描超时预留并释放占用
// 预留的 TTL 不依赖该任务保证正确性（占用只是排队），扫描只负责回收。
type ReservationExpirer struct {
	reservationRepo repo.StockReservationRepository
	reservations    service.ReservationService
	interval        time.Duration
	batchSize       int
	logger          *zap.Logger
	now             func() time.Time
}

// NewReservationExpirer 创建超时扫描任务
func NewReservationExpirer(
	reservationRepo repo.StockReservationRepository,
	reservations service.ReservationService,
	interval time.Duration,
	batchSize int,
	logger *zap.Logger,
) *ReservationExpirer {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ReservationExpirer{
		reservationRepo: reservationRepo,
		reservations:    reservations,
		interval:        interval,
		batchSize:       batchSize,
		logger:          logger,
		now:             time.Now,
	}
}

// Run 启动扫描循环，直到 ctx 取消
func (e *ReservationExpirer) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.logger.Info("reservation expirer started",
		zap.Duration("interval", e.interval),
		zap.Int("batch_size", e.batchSize),
	)

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("reservation expirer stopped")
			return
		case <-ticker.C:
			e.SweepOnce(ctx)
		}
	}
}

// SweepOnce 执行一轮扫描，返回成功释放的订单数
func (e *ReservationExpirer) SweepOnce(ctx context.Context) int {
	orders, err := e.reservationRepo.ListExpiredOrders(e.now(), e.batchSize)
	if err != nil {
		e.logger.Error("failed to list expired reservations", zap.Error(err))
		return 0
	}
	if len(orders) == 0 {
		return 0
	}

	released := 0
	for _, order := range orders {
		err := e.reservations.Release(ctx, &domain.ReleaseReservationRequest{
			CompanyID: order.CompanyID,
			OrderID:   order.OrderID,
			Reason:    domain.ReleaseReasonExpire,
		})
		if err != nil {
			// 单个订单失败不阻塞本轮其余订单，下一轮会重试
			e.logger.Error("failed to expire reservations",
				zap.Int64("company_id", order.CompanyID),
				zap.Int64("order_id", order.OrderID),
				zap.Error(err),
			)
			continue
		}
		released++
	}

	e.logger.Info("expired reservations swept",
		zap.Int("orders_found", len(orders)),
		zap.Int("orders_released", released),
	)
	return released
}
