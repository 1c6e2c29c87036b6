package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/warestack/lotkeeper/internal/cache"
	"github.com/warestack/lotkeeper/internal/domain"
	"github.com/warestack/lotkeeper/internal/repo"
)

// rotationHorizonDays 先出建议的默认观察窗口
const rotationHorizonDays = 60

// ReportService 定义效期报表业务接口
// 报表是只读视图，允许短时间缓存；策略配置本身永不走缓存。
type ReportService interface {
	// ExpiryAlerts 返回 days 天内到期（含已过期）的批次告警
	ExpiryAlerts(ctx context.Context, companyID int64, days int) ([]*domain.ExpiryAlert, error)

	// RotationSuggestions 返回应优先消化的临期批次，按到期日升序、剩余量降序
	RotationSuggestions(ctx context.Context, companyID int64) ([]*domain.RotationSuggestion, error)
}

// reportService 实现ReportService接口
type reportService struct {
	lotRepo  repo.BatchLotRepository
	cache    cache.Cache
	cacheTTL time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewReportService 创建报表服务实例，cache 可为 nil（直查数据库）
func NewReportService(lotRepo repo.BatchLotRepository, c cache.Cache, cacheTTL time.Duration, logger *zap.Logger) ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &reportService{
		lotRepo:  lotRepo,
		cache:    c,
		cacheTTL: cacheTTL,
		logger:   logger,
		now:      time.Now,
	}
}

// ExpiryAlerts 返回效期告警
func (s *reportService) ExpiryAlerts(ctx context.Context, companyID int64, days int) ([]*domain.ExpiryAlert, error) {
	if days < 0 {
		return nil, fmt.Errorf("invalid alert window: %d days", days)
	}

	cacheKey := fmt.Sprintf("report:expiry:%d:%d", companyID, days)
	if s.cache != nil {
		var cached []*domain.ExpiryAlert
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			return cached, nil
		}
	}

	now := s.now()
	deadline := now.Add(time.Duration(days) * 24 * time.Hour)

	lots, err := s.lotRepo.ExpiringBefore(companyID, deadline)
	if err != nil {
		return nil, fmt.Errorf("failed to list expiring lots: %w", err)
	}

	alerts := make([]*domain.ExpiryAlert, 0, len(lots))
	for _, lot := range lots {
		status := domain.ExpiryAlertNearExpiry
		if lot.IsExpiredAt(now) {
			status = domain.ExpiryAlertExpired
		}
		alerts = append(alerts, &domain.ExpiryAlert{
			Lot:      lot,
			Status:   status,
			DaysLeft: daysLeft(lot, now),
		})
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, alerts, s.cacheTTL); err != nil {
			s.logger.Warn("failed to cache expiry alerts", zap.String("key", cacheKey), zap.Error(err))
		}
	}

	return alerts, nil
}

// RotationSuggestions 返回先出建议
func (s *reportService) RotationSuggestions(ctx context.Context, companyID int64) ([]*domain.RotationSuggestion, error) {
	cacheKey := fmt.Sprintf("report:rotation:%d", companyID)
	if s.cache != nil {
		var cached []*domain.RotationSuggestion
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			return cached, nil
		}
	}

	now := s.now()
	deadline := now.Add(rotationHorizonDays * 24 * time.Hour)

	lots, err := s.lotRepo.RotationCandidates(companyID, deadline)
	if err != nil {
		return nil, fmt.Errorf("failed to list rotation candidates: %w", err)
	}

	suggestions := make([]*domain.RotationSuggestion, 0, len(lots))
	for _, lot := range lots {
		// 已过期批次归效期告警处理，不再建议售出
		if lot.IsExpiredAt(now) {
			continue
		}
		suggestions = append(suggestions, &domain.RotationSuggestion{
			Lot:      lot,
			DaysLeft: daysLeft(lot, now),
		})
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, suggestions, s.cacheTTL); err != nil {
			s.logger.Warn("failed to cache rotation suggestions", zap.String("key", cacheKey), zap.Error(err))
		}
	}

	return suggestions, nil
}

// daysLeft 计算批次距过期的天数，已过期返回负数
func daysLeft(lot *domain.BatchLot, now time.Time) int {
	if lot.ExpiryDate == nil {
		return 0
	}
	return int(math.Floor(lot.ExpiryDate.Sub(now).Hours() / 24))
}
