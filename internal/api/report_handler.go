package api

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/warestack/lotkeeper/internal/middleware"
	"github.com/warestack/lotkeeper/internal/resp"
	"github.com/warestack/lotkeeper/internal/service"
)

// 效期告警默认检查窗口（天）
const defaultExpiryAlertDays = 30

// ReportHandler 效期报表相关的HTTP处理器
type ReportHandler struct {
	reportService service.ReportService
	logger        *zap.Logger
}

// NewReportHandler 创建报表处理器实例
func NewReportHandler(reportService service.ReportService, logger *zap.Logger) *ReportHandler {
	return &ReportHandler{
		reportService: reportService,
		logger:        logger,
	}
}

// ExpiryAlerts 获取效期告警列表
// GET /api/v1/reports/expiry-alerts?days=30
func (h *ReportHandler) ExpiryAlerts(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())

	companyID := companyIDFor(r, 0)
	if companyID <= 0 {
		resp.Error(w, http.StatusUnauthorized, resp.CodeUnauthorized, "authentication required", reqID, "")
		return
	}

	days := defaultExpiryAlertDays
	if daysStr := r.URL.Query().Get("days"); daysStr != "" {
		parsed, err := strconv.Atoi(daysStr)
		if err != nil || parsed < 0 {
			resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "days must be a non-negative integer", reqID, "")
			return
		}
		days = parsed
	}

	alerts, err := h.reportService.ExpiryAlerts(r.Context(), companyID, days)
	if err != nil {
		h.logger.Error("get expiry alerts failed",
			zap.String("request_id", reqID),
			zap.Int("days", days),
			zap.Error(err))
		resp.Error(w, http.StatusInternalServerError, resp.CodeInternalError, "get expiry alerts failed", reqID, "")
		return
	}

	resp.OK(w, alerts, reqID, "")
}

// RotationSuggestions 获取批次轮换建议
// GET /api/v1/reports/rotation
func (h *ReportHandler) RotationSuggestions(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())

	companyID := companyIDFor(r, 0)
	if companyID <= 0 {
		resp.Error(w, http.StatusUnauthorized, resp.CodeUnauthorized, "authentication required", reqID, "")
		return
	}

	suggestions, err := h.reportService.RotationSuggestions(r.Context(), companyID)
	if err != nil {
		h.logger.Error("get rotation suggestions failed",
			zap.String("request_id", reqID),
			zap.Error(err))
		resp.Error(w, http.StatusInternalServerError, resp.CodeInternalError, "get rotation suggestions failed", reqID, "")
		return
	}

	resp.OK(w, suggestions, reqID, "")
}
