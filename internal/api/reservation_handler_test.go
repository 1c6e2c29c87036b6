package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/warestack/lotkeeper/internal/domain"
	"github.com/warestack/lotkeeper/internal/resp"
)

// mockReservationService for testing
type mockReservationService struct {
	reserveFunc     func(ctx context.Context, req *domain.ReserveStockRequest) ([]*domain.StockReservation, error)
	confirmFunc     func(ctx context.Context, req *domain.ConfirmReservationRequest) error
	releaseFunc     func(ctx context.Context, req *domain.ReleaseReservationRequest) error
	listByOrderFunc func(companyID, orderID int64) ([]*domain.StockReservation, error)
}

func (m *mockReservationService) Reserve(ctx context.Context, req *domain.ReserveStockRequest) ([]*domain.StockReservation, error) {
	if m.reserveFunc != nil {
		return m.reserveFunc(ctx, req)
	}
	return []*domain.StockReservation{
		{ID: 1, CompanyID: req.CompanyID, OrderID: req.OrderID, Status: domain.ReservationStatusReserved},
	}, nil
}

func (m *mockReservationService) Confirm(ctx context.Context, req *domain.ConfirmReservationRequest) error {
	if m.confirmFunc != nil {
		return m.confirmFunc(ctx, req)
	}
	return nil
}

func (m *mockReservationService) Release(ctx context.Context, req *domain.ReleaseReservationRequest) error {
	if m.releaseFunc != nil {
		return m.releaseFunc(ctx, req)
	}
	return nil
}

func (m *mockReservationService) ListByOrder(companyID, orderID int64) ([]*domain.StockReservation, error) {
	if m.listByOrderFunc != nil {
		return m.listByOrderFunc(companyID, orderID)
	}
	return nil, nil
}

func newTestReservationHandler(svc *mockReservationService) *ReservationHandler {
	return NewReservationHandler(svc, 15*time.Minute, zap.NewNop())
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) *resp.Body {
	t.Helper()
	var body resp.Body
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return &body
}

func postJSON(t *testing.T, handler http.HandlerFunc, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	buf, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(buf))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestReservationHandler_Reserve(t *testing.T) {
	var captured *domain.ReserveStockRequest
	svc := &mockReservationService{
		reserveFunc: func(ctx context.Context, req *domain.ReserveStockRequest) ([]*domain.StockReservation, error) {
			captured = req
			return []*domain.StockReservation{
				{ID: 7, CompanyID: req.CompanyID, OrderID: req.OrderID, Status: domain.ReservationStatusReserved},
			}, nil
		},
	}
	h := newTestReservationHandler(svc)

	payload := map[string]any{
		"company_id": 1,
		"order_id":   1001,
		"items":      []map[string]any{{"variant_id": 5, "quantity": 3}},
	}
	rec := postJSON(t, h.Reserve, "/api/v1/reservations/reserve", payload)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body: %s", rec.Code, rec.Body.String())
	}
	if body := decodeBody(t, rec); body.Code != resp.CodeOK {
		t.Errorf("code = %d, want %d", body.Code, resp.CodeOK)
	}
	if captured == nil {
		t.Fatal("service not invoked")
	}
	// 缺省过期时间应被填充
	if captured.ExpiresAt.IsZero() {
		t.Error("expires_at not defaulted")
	}
}

func TestReservationHandler_ReserveValidation(t *testing.T) {
	h := newTestReservationHandler(&mockReservationService{})

	tests := []struct {
		name    string
		payload map[string]any
	}{
		{"missing order id", map[string]any{"company_id": 1, "items": []map[string]any{{"variant_id": 5, "quantity": 3}}}},
		{"empty items", map[string]any{"company_id": 1, "order_id": 1001, "items": []map[string]any{}}},
		{"zero quantity", map[string]any{"company_id": 1, "order_id": 1001, "items": []map[string]any{{"variant_id": 5, "quantity": 0}}}},
		{"missing variant", map[string]any{"company_id": 1, "order_id": 1001, "items": []map[string]any{{"quantity": 2}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(t, h.Reserve, "/api/v1/reservations/reserve", tt.payload)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			if body := decodeBody(t, rec); body.Code != resp.CodeInvalidParam {
				t.Errorf("code = %d, want %d", body.Code, resp.CodeInvalidParam)
			}
		})
	}
}

func TestReservationHandler_ReserveConflicts(t *testing.T) {
	tests := []struct {
		name       string
		serviceErr error
		wantStatus int
		wantCode   resp.Code
	}{
		{"insufficient stock", domain.ErrInsufficientStock, http.StatusConflict, resp.CodeConflict},
		{"lot taken concurrently", domain.ErrLotReservationConflict, http.StatusConflict, resp.CodeConflict},
		{"unknown variant", domain.ErrStockItemNotFound, http.StatusNotFound, resp.CodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockReservationService{
				reserveFunc: func(ctx context.Context, req *domain.ReserveStockRequest) ([]*domain.StockReservation, error) {
					return nil, tt.serviceErr
				},
			}
			h := newTestReservationHandler(svc)

			payload := map[string]any{
				"company_id": 1,
				"order_id":   1001,
				"items":      []map[string]any{{"variant_id": 5, "quantity": 3}},
			}
			rec := postJSON(t, h.Reserve, "/api/v1/reservations/reserve", payload)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if body := decodeBody(t, rec); body.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", body.Code, tt.wantCode)
			}
		})
	}
}

func TestReservationHandler_Release(t *testing.T) {
	var captured *domain.ReleaseReservationRequest
	svc := &mockReservationService{
		releaseFunc: func(ctx context.Context, req *domain.ReleaseReservationRequest) error {
			captured = req
			return nil
		},
	}
	h := newTestReservationHandler(svc)

	payload := map[string]any{"company_id": 1, "order_id": 1001, "reason": "cancel"}
	rec := postJSON(t, h.Release, "/api/v1/reservations/release", payload)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body: %s", rec.Code, rec.Body.String())
	}
	if captured == nil || captured.Reason != domain.ReleaseReasonCancel {
		t.Errorf("captured = %+v, want cancel release", captured)
	}
}

func TestReservationHandler_ReleaseRejectsUnknownReason(t *testing.T) {
	h := newTestReservationHandler(&mockReservationService{})

	payload := map[string]any{"company_id": 1, "order_id": 1001, "reason": "oops"}
	rec := postJSON(t, h.Release, "/api/v1/reservations/release", payload)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestReservationHandler_ListByOrder(t *testing.T) {
	svc := &mockReservationService{
		listByOrderFunc: func(companyID, orderID int64) ([]*domain.StockReservation, error) {
			return []*domain.StockReservation{
				{ID: 1, CompanyID: companyID, OrderID: orderID, Status: domain.ReservationStatusConfirmed},
			}, nil
		},
	}
	h := newTestReservationHandler(svc)

	// 未认证时不暴露数据
	req := httptest.NewRequest(http.MethodGet, "/api/v1/reservations/1001", nil)
	rec := httptest.NewRecorder()
	h.ListByOrder(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated status = %d, want 401", rec.Code)
	}

	// 订单号非法
	req = httptest.NewRequest(http.MethodGet, "/api/v1/reservations/abc", nil)
	rec = httptest.NewRecorder()
	h.ListByOrder(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad order id status = %d, want 400", rec.Code)
	}
}
