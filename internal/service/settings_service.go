package service

import (
	"fmt"

	"github.com/warestack/lotkeeper/internal/domain"
	"github.com/warestack/lotkeeper/internal/repo"
)

// SettingsService 定义公司策略配置业务接口
type SettingsService interface {
	// Get 返回公司配置，不存在时返回缺省值（FEFO + 禁售过期批次）
	Get(companyID int64) (*domain.CompanySettings, error)

	// Update 局部更新公司配置并返回更新后的完整配置
	Update(companyID int64, req *domain.UpdateCompanySettingsRequest) (*domain.CompanySettings, error)
}

// settingsService 实现SettingsService接口
type settingsService struct {
	settingsRepo repo.CompanySettingsRepository
}

// NewSettingsService 创建配置服务实例
func NewSettingsService(settingsRepo repo.CompanySettingsRepository) SettingsService {
	return &settingsService{settingsRepo: settingsRepo}
}

// Get 获取公司配置
func (s *settingsService) Get(companyID int64) (*domain.CompanySettings, error) {
	return s.settingsRepo.Get(companyID)
}

// Update 更新公司配置
func (s *settingsService) Update(companyID int64, req *domain.UpdateCompanySettingsRequest) (*domain.CompanySettings, error) {
	settings, err := s.settingsRepo.Get(companyID)
	if err != nil {
		return nil, err
	}

	if req.PickingStrategy != nil {
		if !req.PickingStrategy.IsValid() {
			return nil, fmt.Errorf("invalid picking strategy: %s", *req.PickingStrategy)
		}
		settings.PickingStrategy = *req.PickingStrategy
	}
	if req.BlockExpiredLotSale != nil {
		settings.BlockExpiredLotSale = *req.BlockExpiredLotSale
	}

	if err := s.settingsRepo.Upsert(settings); err != nil {
		return nil, err
	}

	return settings, nil
}
