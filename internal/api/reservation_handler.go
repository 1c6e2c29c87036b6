// Package api 提供库存预留相关的HTTP API处理器实现。
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/warestack/lotkeeper/internal/domain"
	"github.com/warestack/lotkeeper/internal/middleware"
	"github.com/warestack/lotkeeper/internal/resp"
	"github.com/warestack/lotkeeper/internal/service"
)

// ReservationHandler 预留生命周期相关的HTTP处理器
type ReservationHandler struct {
	reservationService service.ReservationService
	defaultTTL         time.Duration
	logger             *zap.Logger
}

// NewReservationHandler 创建预留处理器实例；defaultTTL 用于请求未携带 expires_at 时的兜底过期时间
func NewReservationHandler(reservationService service.ReservationService, defaultTTL time.Duration, logger *zap.Logger) *ReservationHandler {
	return &ReservationHandler{
		reservationService: reservationService,
		defaultTTL:         defaultTTL,
		logger:             logger,
	}
}

// companyIDFor 取调用方所属公司：已认证时以令牌中的公司为准，请求体里的 company_id 不可跨租户
func companyIDFor(r *http.Request, bodyCompanyID int64) int64 {
	if claims := middleware.ClaimsFromContext(r.Context()); claims != nil && claims.CompanyID > 0 {
		return claims.CompanyID
	}
	return bodyCompanyID
}

// Reserve 为订单占用库存
// POST /api/v1/reservations/reserve
func (h *ReservationHandler) Reserve(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())

	var req domain.ReserveStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("invalid request body", zap.String("request_id", reqID), zap.Error(err))
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "invalid request body", reqID, "")
		return
	}
	req.CompanyID = companyIDFor(r, req.CompanyID)

	if err := h.validateReserveRequest(&req); err != nil {
		h.logger.Warn("validation failed", zap.String("request_id", reqID), zap.Error(err))
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, err.Error(), reqID, "")
		return
	}
	if req.ExpiresAt.IsZero() {
		req.ExpiresAt = time.Now().Add(h.defaultTTL)
	}

	reservations, err := h.reservationService.Reserve(r.Context(), &req)
	if err != nil {
		if errors.Is(err, domain.ErrStockItemNotFound) {
			resp.Error(w, http.StatusNotFound, resp.CodeNotFound, "stock item not found", reqID, "")
			return
		}
		if errors.Is(err, domain.ErrInsufficientStock) {
			resp.Error(w, http.StatusConflict, resp.CodeConflict, "insufficient stock", reqID, "")
			return
		}
		if errors.Is(err, domain.ErrLotReservationConflict) {
			resp.Error(w, http.StatusConflict, resp.CodeConflict, "lot was taken by a concurrent request, retry", reqID, "")
			return
		}

		h.logger.Error("reserve stock failed",
			zap.String("request_id", reqID),
			zap.Int64("order_id", req.OrderID),
			zap.Error(err))
		resp.Error(w, http.StatusInternalServerError, resp.CodeInternalError, "reserve stock failed", reqID, "")
		return
	}

	resp.OK(w, reservations, reqID, "")
}

// Confirm 支付成功后确认订单的全部预留
// POST /api/v1/reservations/confirm
func (h *ReservationHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())

	var req domain.ConfirmReservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("invalid request body", zap.String("request_id", reqID), zap.Error(err))
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "invalid request body", reqID, "")
		return
	}
	req.CompanyID = companyIDFor(r, req.CompanyID)

	if req.CompanyID <= 0 || req.OrderID <= 0 {
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "company_id and order_id are required", reqID, "")
		return
	}

	if err := h.reservationService.Confirm(r.Context(), &req); err != nil {
		if errors.Is(err, domain.ErrReservationConfirmFailed) || errors.Is(err, domain.ErrLotConfirmFailed) {
			resp.Error(w, http.StatusConflict, resp.CodeConflict, "reservation state changed by a concurrent request", reqID, "")
			return
		}

		h.logger.Error("confirm reservation failed",
			zap.String("request_id", reqID),
			zap.Int64("order_id", req.OrderID),
			zap.Error(err))
		resp.Error(w, http.StatusInternalServerError, resp.CodeInternalError, "confirm reservation failed", reqID, "")
		return
	}

	result := map[string]interface{}{"confirmed": true}
	resp.OK(w, &result, reqID, "")
}

// Release 取消或超时后释放订单的全部预留
// POST /api/v1/reservations/release
func (h *ReservationHandler) Release(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())

	var req domain.ReleaseReservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("invalid request body", zap.String("request_id", reqID), zap.Error(err))
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "invalid request body", reqID, "")
		return
	}
	req.CompanyID = companyIDFor(r, req.CompanyID)

	if req.CompanyID <= 0 || req.OrderID <= 0 {
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "company_id and order_id are required", reqID, "")
		return
	}
	if req.Reason != domain.ReleaseReasonCancel && req.Reason != domain.ReleaseReasonExpire {
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "reason must be 'cancel' or 'expire'", reqID, "")
		return
	}

	if err := h.reservationService.Release(r.Context(), &req); err != nil {
		h.logger.Error("release reservation failed",
			zap.String("request_id", reqID),
			zap.Int64("order_id", req.OrderID),
			zap.Error(err))
		resp.Error(w, http.StatusInternalServerError, resp.CodeInternalError, "release reservation failed", reqID, "")
		return
	}

	result := map[string]interface{}{"released": true}
	resp.OK(w, &result, reqID, "")
}

// ListByOrder 查询订单下的全部预留记录（含终态）
// GET /api/v1/reservations/{order_id}
func (h *ReservationHandler) ListByOrder(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())

	parts := strings.Split(r.URL.Path, "/")
	if len(parts) < 5 {
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "invalid order ID", reqID, "")
		return
	}

	orderID, err := strconv.ParseInt(parts[4], 10, 64) // /api/v1/reservations/{order_id}
	if err != nil || orderID <= 0 {
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "invalid order ID", reqID, "")
		return
	}

	companyID := companyIDFor(r, 0)
	if companyID <= 0 {
		resp.Error(w, http.StatusUnauthorized, resp.CodeUnauthorized, "authentication required", reqID, "")
		return
	}

	reservations, err := h.reservationService.ListByOrder(companyID, orderID)
	if err != nil {
		h.logger.Error("list reservations failed",
			zap.String("request_id", reqID),
			zap.Int64("order_id", orderID),
			zap.Error(err))
		resp.Error(w, http.StatusInternalServerError, resp.CodeInternalError, "list reservations failed", reqID, "")
		return
	}

	resp.OK(w, reservations, reqID, "")
}

func (h *ReservationHandler) validateReserveRequest(req *domain.ReserveStockRequest) error {
	if req.CompanyID <= 0 {
		return errors.New("company_id is required")
	}
	if req.OrderID <= 0 {
		return errors.New("order_id is required")
	}
	if len(req.Items) == 0 {
		return errors.New("items must not be empty")
	}
	for _, item := range req.Items {
		if item.VariantID <= 0 {
			return errors.New("variant_id is required for every item")
		}
		if item.Quantity <= 0 {
			return errors.New("quantity must be greater than 0")
		}
	}
	return nil
}
