package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/warestack/lotkeeper/internal/domain"
	"github.com/warestack/lotkeeper/internal/middleware"
	"github.com/warestack/lotkeeper/internal/resp"
	"github.com/warestack/lotkeeper/internal/service"
)

// StockHandler 库存桶与批次管理相关的HTTP处理器
type StockHandler struct {
	stockService service.StockService
	logger       *zap.Logger
}

// NewStockHandler 创建库存处理器实例
func NewStockHandler(stockService service.StockService, logger *zap.Logger) *StockHandler {
	return &StockHandler{
		stockService: stockService,
		logger:       logger,
	}
}

// CreateStockItem 创建库存桶
// POST /api/v1/stock
// 需要管理员权限
func (h *StockHandler) CreateStockItem(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())

	var req domain.CreateStockItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("invalid request body", zap.String("request_id", reqID), zap.Error(err))
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "invalid request body", reqID, "")
		return
	}
	req.CompanyID = companyIDFor(r, req.CompanyID)

	if req.CompanyID <= 0 || req.VariantID <= 0 {
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "company_id and variant_id are required", reqID, "")
		return
	}
	if req.Quantity < 0 {
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "quantity cannot be negative", reqID, "")
		return
	}

	item, err := h.stockService.CreateStockItem(&req)
	if err != nil {
		h.logger.Error("create stock item failed", zap.String("request_id", reqID), zap.Error(err))
		resp.Error(w, http.StatusInternalServerError, resp.CodeInternalError, "create stock item failed", reqID, "")
		return
	}

	resp.OK(w, item, reqID, "")
}

// GetStockItem 获取库存桶详情
// GET /api/v1/stock/{id}
func (h *StockHandler) GetStockItem(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())

	parts := strings.Split(r.URL.Path, "/")
	if len(parts) < 5 {
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "invalid stock item ID", reqID, "")
		return
	}

	id, err := strconv.ParseInt(parts[4], 10, 64) // /api/v1/stock/{id}
	if err != nil || id <= 0 {
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "invalid stock item ID", reqID, "")
		return
	}

	item, err := h.stockService.GetStockItem(id)
	if err != nil {
		if errors.Is(err, domain.ErrStockItemNotFound) {
			resp.Error(w, http.StatusNotFound, resp.CodeNotFound, "stock item not found", reqID, "")
			return
		}

		h.logger.Error("get stock item failed", zap.String("request_id", reqID), zap.Error(err))
		resp.Error(w, http.StatusInternalServerError, resp.CodeInternalError, "get stock item failed", reqID, "")
		return
	}

	resp.OK(w, item, reqID, "")
}

// AdjustStock 人工调整库存桶在库数量
// POST /api/v1/stock/{id}/adjust
// 需要管理员权限
func (h *StockHandler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())

	parts := strings.Split(r.URL.Path, "/")
	if len(parts) < 6 {
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "invalid stock item ID", reqID, "")
		return
	}

	id, err := strconv.ParseInt(parts[4], 10, 64) // /api/v1/stock/{id}/adjust
	if err != nil || id <= 0 {
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "invalid stock item ID", reqID, "")
		return
	}

	var req domain.AdjustStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("invalid request body", zap.String("request_id", reqID), zap.Error(err))
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "invalid request body", reqID, "")
		return
	}

	if req.Quantity == 0 {
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "quantity cannot be zero", reqID, "")
		return
	}
	if req.Reason == "" {
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "reason is required", reqID, "")
		return
	}

	item, err := h.stockService.AdjustStock(id, &req)
	if err != nil {
		if errors.Is(err, domain.ErrStockItemNotFound) {
			resp.Error(w, http.StatusNotFound, resp.CodeNotFound, "stock item not found", reqID, "")
			return
		}
		if errors.Is(err, domain.ErrInsufficientStock) {
			resp.Error(w, http.StatusConflict, resp.CodeConflict, "adjustment would drop stock below reserved quantity", reqID, "")
			return
		}

		h.logger.Error("adjust stock failed",
			zap.String("request_id", reqID),
			zap.Int64("stock_item_id", id),
			zap.Error(err))
		resp.Error(w, http.StatusInternalServerError, resp.CodeInternalError, "adjust stock failed", reqID, "")
		return
	}

	resp.OK(w, item, reqID, "")
}

// ReceiveLot 批次入库
// POST /api/v1/lots
// 需要管理员权限
func (h *StockHandler) ReceiveLot(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())

	var req domain.CreateBatchLotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("invalid request body", zap.String("request_id", reqID), zap.Error(err))
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "invalid request body", reqID, "")
		return
	}
	req.CompanyID = companyIDFor(r, req.CompanyID)

	if req.CompanyID <= 0 || req.VariantID <= 0 {
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "company_id and variant_id are required", reqID, "")
		return
	}
	if req.LotCode == "" {
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "lot_code is required", reqID, "")
		return
	}
	if req.Quantity <= 0 {
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "quantity must be greater than 0", reqID, "")
		return
	}

	lot, err := h.stockService.ReceiveLot(&req)
	if err != nil {
		h.logger.Error("receive lot failed",
			zap.String("request_id", reqID),
			zap.String("lot_code", req.LotCode),
			zap.Error(err))
		resp.Error(w, http.StatusInternalServerError, resp.CodeInternalError, "receive lot failed", reqID, "")
		return
	}

	resp.OK(w, lot, reqID, "")
}

// ListLots 查询变体下的全部批次
// GET /api/v1/lots?variant_id=1&branch_id=2
func (h *StockHandler) ListLots(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())

	companyID := companyIDFor(r, 0)
	if companyID <= 0 {
		resp.Error(w, http.StatusUnauthorized, resp.CodeUnauthorized, "authentication required", reqID, "")
		return
	}

	query := r.URL.Query()
	variantID, err := strconv.ParseInt(query.Get("variant_id"), 10, 64)
	if err != nil || variantID <= 0 {
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "variant_id is required", reqID, "")
		return
	}

	var branchID *int64
	if branchStr := query.Get("branch_id"); branchStr != "" {
		branch, err := strconv.ParseInt(branchStr, 10, 64)
		if err != nil || branch <= 0 {
			resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "invalid branch_id", reqID, "")
			return
		}
		branchID = &branch
	}

	lots, err := h.stockService.ListLots(companyID, variantID, branchID)
	if err != nil {
		h.logger.Error("list lots failed",
			zap.String("request_id", reqID),
			zap.Int64("variant_id", variantID),
			zap.Error(err))
		resp.Error(w, http.StatusInternalServerError, resp.CodeInternalError, "list lots failed", reqID, "")
		return
	}

	resp.OK(w, lots, reqID, "")
}

// ListMovements 查询订单关联的库存变动审计记录
// GET /api/v1/movements?order_id=1001
func (h *StockHandler) ListMovements(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())

	companyID := companyIDFor(r, 0)
	if companyID <= 0 {
		resp.Error(w, http.StatusUnauthorized, resp.CodeUnauthorized, "authentication required", reqID, "")
		return
	}

	orderID, err := strconv.ParseInt(r.URL.Query().Get("order_id"), 10, 64)
	if err != nil || orderID <= 0 {
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "order_id is required", reqID, "")
		return
	}

	movements, err := h.stockService.ListMovements(companyID, orderID)
	if err != nil {
		h.logger.Error("list movements failed",
			zap.String("request_id", reqID),
			zap.Int64("order_id", orderID),
			zap.Error(err))
		resp.Error(w, http.StatusInternalServerError, resp.CodeInternalError, "list movements failed", reqID, "")
		return
	}

	resp.OK(w, movements, reqID, "")
}
