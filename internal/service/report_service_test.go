package service

import (
	"context"
	"testing"
	"time"

	"github.com/warestack/lotkeeper/internal/cache"
	"github.com/warestack/lotkeeper/internal/domain"
)

func seedReportLot(t *testing.T, lotRepo *mockBatchLotRepository, lotCode string, quantity int64, expiry *time.Time) {
	t.Helper()

	lot := &domain.BatchLot{
		CompanyID:   1,
		VariantID:   10,
		StockItemID: 100,
		LotCode:     lotCode,
		Quantity:    quantity,
		ExpiryDate:  expiry,
	}
	if err := lotRepo.Create(lot); err != nil {
		t.Fatalf("failed to seed lot %s: %v", lotCode, err)
	}
}

func TestReportService_ExpiryAlerts(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	lotRepo := newMockBatchLotRepository()
	service := NewReportService(lotRepo, nil, 0, nil).(*reportService)
	service.now = func() time.Time { return now }

	seedReportLot(t, lotRepo, "EXPIRED", 5, datePtr(now.Add(-48*time.Hour)))
	seedReportLot(t, lotRepo, "NEAR", 5, datePtr(now.Add(3*24*time.Hour)))
	seedReportLot(t, lotRepo, "FAR", 5, datePtr(now.Add(90*24*time.Hour)))
	seedReportLot(t, lotRepo, "NOEXP", 5, nil)
	seedReportLot(t, lotRepo, "EMPTY", 0, datePtr(now.Add(24*time.Hour)))

	alerts, err := service.ExpiryAlerts(context.Background(), 1, 7)
	if err != nil {
		t.Fatalf("ExpiryAlerts() error = %v", err)
	}

	if len(alerts) != 2 {
		t.Fatalf("got %d alerts, want 2 (expired + near)", len(alerts))
	}
	if alerts[0].Lot.LotCode != "EXPIRED" || alerts[0].Status != domain.ExpiryAlertExpired || alerts[0].DaysLeft != -2 {
		t.Errorf("alert[0] = %+v, want EXPIRED with days_left=-2", alerts[0])
	}
	if alerts[1].Lot.LotCode != "NEAR" || alerts[1].Status != domain.ExpiryAlertNearExpiry || alerts[1].DaysLeft != 3 {
		t.Errorf("alert[1] = %+v, want NEAR_EXPIRY with days_left=3", alerts[1])
	}
}

func TestReportService_RotationSuggestions(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	lotRepo := newMockBatchLotRepository()
	service := NewReportService(lotRepo, nil, 0, nil).(*reportService)
	service.now = func() time.Time { return now }

	seedReportLot(t, lotRepo, "EXPIRED", 5, datePtr(now.Add(-24*time.Hour)))
	seedReportLot(t, lotRepo, "SOON", 5, datePtr(now.Add(10*24*time.Hour)))
	seedReportLot(t, lotRepo, "LATER", 9, datePtr(now.Add(30*24*time.Hour)))
	seedReportLot(t, lotRepo, "FAR", 5, datePtr(now.Add(180*24*time.Hour)))

	suggestions, err := service.RotationSuggestions(context.Background(), 1)
	if err != nil {
		t.Fatalf("RotationSuggestions() error = %v", err)
	}

	// Expired lots belong to the alert report, far lots are outside the horizon.
	if len(suggestions) != 2 {
		t.Fatalf("got %d suggestions, want 2", len(suggestions))
	}
	if suggestions[0].Lot.LotCode != "SOON" || suggestions[1].Lot.LotCode != "LATER" {
		t.Errorf("unexpected order: %s, %s", suggestions[0].Lot.LotCode, suggestions[1].Lot.LotCode)
	}
}

func TestReportService_CachesAlerts(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	lotRepo := newMockBatchLotRepository()
	service := NewReportService(lotRepo, cache.NewMemoryCache(), time.Minute, nil).(*reportService)
	service.now = func() time.Time { return now }

	seedReportLot(t, lotRepo, "NEAR", 5, datePtr(now.Add(24*time.Hour)))

	first, err := service.ExpiryAlerts(context.Background(), 1, 7)
	if err != nil {
		t.Fatalf("ExpiryAlerts() error = %v", err)
	}

	// A lot added after the first call is invisible until the cache expires.
	seedReportLot(t, lotRepo, "NEAR2", 5, datePtr(now.Add(48*time.Hour)))

	second, err := service.ExpiryAlerts(context.Background(), 1, 7)
	if err != nil {
		t.Fatalf("ExpiryAlerts() error = %v", err)
	}
	if len(first) != 1 || len(second) != 1 {
		t.Errorf("cached read returned %d alerts, want the original 1", len(second))
	}
}
