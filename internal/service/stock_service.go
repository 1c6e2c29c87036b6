package service

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/warestack/lotkeeper/internal/domain"
	"github.com/warestack/lotkeeper/internal/repo"
)

// StockService 定义库存供给侧（管理端）业务接口
type StockService interface {
	// CreateStockItem 创建库存桶，同一 (公司, 门店, 变体) 可存在多个桶
	CreateStockItem(req *domain.CreateStockItemRequest) (*domain.StockItem, error)

	// GetStockItem 查询库存桶
	GetStockItem(id int64) (*domain.StockItem, error)

	// ReceiveLot 批次入库：批次挂到变体的库存桶上并同步增加桶内数量，
	// 变体尚无库存桶时自动创建一个
	ReceiveLot(req *domain.CreateBatchLotRequest) (*domain.BatchLot, error)

	// ListLots 查询变体下全部批次（含已耗尽）
	ListLots(companyID, variantID int64, branchID *int64) ([]*domain.BatchLot, error)

	// AdjustStock 人工调整库存桶在库数量，结果不得为负也不得低于已占用数量
	AdjustStock(stockItemID int64, req *domain.AdjustStockRequest) (*domain.StockItem, error)

	// ListMovements 查询订单关联的库存变动审计记录
	ListMovements(companyID, orderID int64) ([]*domain.StockMovement, error)
}

// stockService 实现StockService接口
type stockService struct {
	stockItemRepo repo.StockItemRepository
	lotRepo       repo.BatchLotRepository
	movementRepo  repo.StockMovementRepository
	logger        *zap.Logger
}

// NewStockService 创建库存管理服务实例
func NewStockService(
	stockItemRepo repo.StockItemRepository,
	lotRepo repo.BatchLotRepository,
	movementRepo repo.StockMovementRepository,
	logger *zap.Logger,
) StockService {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &stockService{
		stockItemRepo: stockItemRepo,
		lotRepo:       lotRepo,
		movementRepo:  movementRepo,
		logger:        logger,
	}
}

// CreateStockItem 创建库存桶
func (s *stockService) CreateStockItem(req *domain.CreateStockItemRequest) (*domain.StockItem, error) {
	if req.Quantity < 0 {
		return nil, fmt.Errorf("invalid initial quantity: %d", req.Quantity)
	}

	item := &domain.StockItem{
		CompanyID: req.CompanyID,
		BranchID:  req.BranchID,
		VariantID: req.VariantID,
		Quantity:  req.Quantity,
	}
	if err := s.stockItemRepo.Create(item); err != nil {
		return nil, err
	}

	return s.stockItemRepo.GetByID(item.ID)
}

// GetStockItem 查询库存桶
func (s *stockService) GetStockItem(id int64) (*domain.StockItem, error) {
	return s.stockItemRepo.GetByID(id)
}

// ReceiveLot 批次入库
func (s *stockService) ReceiveLot(req *domain.CreateBatchLotRequest) (*domain.BatchLot, error) {
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("invalid lot quantity: %d", req.Quantity)
	}

	item, err := s.stockItemRepo.GetByVariant(req.CompanyID, req.VariantID, req.BranchID)
	if errors.Is(err, domain.ErrStockItemNotFound) {
		item = &domain.StockItem{
			CompanyID: req.CompanyID,
			BranchID:  req.BranchID,
			VariantID: req.VariantID,
			Quantity:  0,
		}
		if err := s.stockItemRepo.Create(item); err != nil {
			return nil, err
		}
		s.logger.Info("created stock item for first lot",
			zap.Int64("company_id", req.CompanyID),
			zap.Int64("variant_id", req.VariantID),
			zap.Int64("stock_item_id", item.ID),
		)
	} else if err != nil {
		return nil, err
	}

	lot := &domain.BatchLot{
		CompanyID:   req.CompanyID,
		BranchID:    req.BranchID,
		VariantID:   req.VariantID,
		StockItemID: item.ID,
		LotCode:     req.LotCode,
		Quantity:    req.Quantity,
		ExpiryDate:  req.ExpiryDate,
	}
	if err := s.lotRepo.Create(lot); err != nil {
		return nil, err
	}

	// 桶内数量与批次数量同步增长，桶级可用量始终覆盖批次
	if err := s.stockItemRepo.Adjust(item.ID, req.Quantity); err != nil {
		return nil, err
	}

	movement := &domain.StockMovement{
		CompanyID:   req.CompanyID,
		StockItemID: item.ID,
		VariantID:   req.VariantID,
		Type:        domain.MovementTypeReceive,
		Delta:       req.Quantity,
		Reason:      fmt.Sprintf("receive lot %s", req.LotCode),
	}
	if err := s.movementRepo.Insert(nil, movement); err != nil {
		return nil, err
	}

	return s.lotRepo.GetByID(lot.ID)
}

// ListLots 查询变体下全部批次
func (s *stockService) ListLots(companyID, variantID int64, branchID *int64) ([]*domain.BatchLot, error) {
	return s.lotRepo.ListByVariant(companyID, variantID, branchID)
}

// AdjustStock 人工调整库存
func (s *stockService) AdjustStock(stockItemID int64, req *domain.AdjustStockRequest) (*domain.StockItem, error) {
	if req.Quantity == 0 {
		return nil, errors.New("adjust quantity must not be zero")
	}

	item, err := s.stockItemRepo.GetByID(stockItemID)
	if err != nil {
		return nil, err
	}

	if err := s.stockItemRepo.Adjust(stockItemID, req.Quantity); err != nil {
		return nil, err
	}

	movement := &domain.StockMovement{
		CompanyID:   item.CompanyID,
		StockItemID: item.ID,
		VariantID:   item.VariantID,
		Type:        domain.MovementTypeAdjust,
		Delta:       req.Quantity,
		Reason:      req.Reason,
	}
	if err := s.movementRepo.Insert(nil, movement); err != nil {
		return nil, err
	}

	return s.stockItemRepo.GetByID(stockItemID)
}

// ListMovements 查询订单关联的变动记录
func (s *stockService) ListMovements(companyID, orderID int64) ([]*domain.StockMovement, error) {
	return s.movementRepo.ListByOrder(companyID, orderID)
}
