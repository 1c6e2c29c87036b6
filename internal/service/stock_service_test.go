package service

import (
	"errors"
	"testing"
	"time"

	"github.com/warestack/lotkeeper/internal/domain"
)

func TestStockService_ReceiveLot(t *testing.T) {
	stockItemRepo := newMockStockItemRepository()
	lotRepo := newMockBatchLotRepository()
	movementRepo := newMockStockMovementRepository()
	service := NewStockService(stockItemRepo, lotRepo, movementRepo, nil)

	expiry := time.Now().Add(30 * 24 * time.Hour)

	// First lot for a variant with no stock item: one gets created.
	lot, err := service.ReceiveLot(&domain.CreateBatchLotRequest{
		CompanyID: 1, VariantID: 10, LotCode: "L-001", Quantity: 40, ExpiryDate: &expiry,
	})
	if err != nil {
		t.Fatalf("ReceiveLot() error = %v", err)
	}
	if lot.StockItemID == 0 {
		t.Fatal("lot not linked to a stock item")
	}

	item, err := stockItemRepo.GetByID(lot.StockItemID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if item.Quantity != 40 {
		t.Errorf("stock item quantity = %d, want 40", item.Quantity)
	}

	// Second lot reuses the same bucket and adds to it.
	lot2, err := service.ReceiveLot(&domain.CreateBatchLotRequest{
		CompanyID: 1, VariantID: 10, LotCode: "L-002", Quantity: 10,
	})
	if err != nil {
		t.Fatalf("ReceiveLot() error = %v", err)
	}
	if lot2.StockItemID != lot.StockItemID {
		t.Errorf("second lot landed on bucket %d, want %d", lot2.StockItemID, lot.StockItemID)
	}
	item, _ = stockItemRepo.GetByID(lot.StockItemID)
	if item.Quantity != 50 {
		t.Errorf("stock item quantity = %d, want 50", item.Quantity)
	}

	if len(movementRepo.movements) != 2 || movementRepo.movements[0].Type != domain.MovementTypeReceive || movementRepo.movements[0].Delta != 40 {
		t.Errorf("unexpected receive movements: %+v", movementRepo.movements)
	}
}

func TestStockService_ReceiveLotRejectsInvalidQuantity(t *testing.T) {
	service := NewStockService(newMockStockItemRepository(), newMockBatchLotRepository(), newMockStockMovementRepository(), nil)

	for _, qty := range []int64{0, -5} {
		if _, err := service.ReceiveLot(&domain.CreateBatchLotRequest{
			CompanyID: 1, VariantID: 10, LotCode: "BAD", Quantity: qty,
		}); err == nil {
			t.Errorf("ReceiveLot(quantity=%d) expected error", qty)
		}
	}
}

func TestStockService_AdjustStock(t *testing.T) {
	stockItemRepo := newMockStockItemRepository()
	movementRepo := newMockStockMovementRepository()
	service := NewStockService(stockItemRepo, newMockBatchLotRepository(), movementRepo, nil)

	seed := &domain.StockItem{CompanyID: 1, VariantID: 10, Quantity: 10, ReservedQuantity: 4}
	if err := stockItemRepo.Create(seed); err != nil {
		t.Fatalf("failed to seed stock item: %v", err)
	}

	tests := []struct {
		name     string
		quantity int64
		wantErr  bool
		wantQty  int64
	}{
		{name: "receive more", quantity: 5, wantQty: 15},
		{name: "write off", quantity: -8, wantQty: 7},
		{name: "cannot go below reserved", quantity: -4, wantErr: true, wantQty: 7},
		{name: "zero is rejected", quantity: 0, wantErr: true, wantQty: 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.AdjustStock(seed.ID, &domain.AdjustStockRequest{Quantity: tt.quantity, Reason: "stocktake"})
			if (err != nil) != tt.wantErr {
				t.Fatalf("AdjustStock() error = %v, wantErr %v", err, tt.wantErr)
			}
			item, _ := stockItemRepo.GetByID(seed.ID)
			if item.Quantity != tt.wantQty {
				t.Errorf("quantity = %d, want %d", item.Quantity, tt.wantQty)
			}
		})
	}
}

// 不存在的库存桶统一回报 ErrStockItemNotFound，HTTP 层据此映射 404。
func TestStockService_UnknownStockItem(t *testing.T) {
	service := NewStockService(newMockStockItemRepository(), newMockBatchLotRepository(), newMockStockMovementRepository(), nil)

	if _, err := service.GetStockItem(404); !errors.Is(err, domain.ErrStockItemNotFound) {
		t.Errorf("GetStockItem() error = %v, want ErrStockItemNotFound", err)
	}

	_, err := service.AdjustStock(404, &domain.AdjustStockRequest{Quantity: 5, Reason: "recount"})
	if !errors.Is(err, domain.ErrStockItemNotFound) {
		t.Errorf("AdjustStock() error = %v, want ErrStockItemNotFound", err)
	}
}

func TestSettingsService_Update(t *testing.T) {
	settingsRepo := newMockCompanySettingsRepository()
	service := NewSettingsService(settingsRepo)

	// Default comes back for an unknown company.
	settings, err := service.Get(1)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if settings.PickingStrategy != domain.PickingStrategyFEFO || !settings.BlockExpiredLotSale {
		t.Errorf("default settings = %+v, want FEFO with expired blocking", settings)
	}

	fifo := domain.PickingStrategyFIFO
	off := false
	updated, err := service.Update(1, &domain.UpdateCompanySettingsRequest{
		PickingStrategy:     &fifo,
		BlockExpiredLotSale: &off,
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.PickingStrategy != domain.PickingStrategyFIFO || updated.BlockExpiredLotSale {
		t.Errorf("updated settings = %+v", updated)
	}

	// Partial update keeps the untouched field.
	fefo := domain.PickingStrategyFEFO
	updated, err = service.Update(1, &domain.UpdateCompanySettingsRequest{PickingStrategy: &fefo})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.BlockExpiredLotSale {
		t.Errorf("partial update flipped block_expired_lot_sale back to true")
	}

	bad := domain.PickingStrategy("LIFO")
	if _, err := service.Update(1, &domain.UpdateCompanySettingsRequest{PickingStrategy: &bad}); err == nil {
		t.Error("Update() with invalid strategy expected error")
	}
}
