package api

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/warestack/lotkeeper/internal/domain"
	"github.com/warestack/lotkeeper/internal/middleware"
	"github.com/warestack/lotkeeper/internal/resp"
	"github.com/warestack/lotkeeper/internal/service"
)

// SettingsHandler 公司级分配策略配置的HTTP处理器
type SettingsHandler struct {
	settingsService service.SettingsService
	logger          *zap.Logger
}

// NewSettingsHandler 创建配置处理器实例
func NewSettingsHandler(settingsService service.SettingsService, logger *zap.Logger) *SettingsHandler {
	return &SettingsHandler{
		settingsService: settingsService,
		logger:          logger,
	}
}

// Get 获取公司配置
// GET /api/v1/settings
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())

	companyID := companyIDFor(r, 0)
	if companyID <= 0 {
		resp.Error(w, http.StatusUnauthorized, resp.CodeUnauthorized, "authentication required", reqID, "")
		return
	}

	settings, err := h.settingsService.Get(companyID)
	if err != nil {
		h.logger.Error("get settings failed", zap.String("request_id", reqID), zap.Error(err))
		resp.Error(w, http.StatusInternalServerError, resp.CodeInternalError, "get settings failed", reqID, "")
		return
	}

	resp.OK(w, settings, reqID, "")
}

// Update 局部更新公司配置
// PUT /api/v1/settings
// 需要管理员权限
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())

	companyID := companyIDFor(r, 0)
	if companyID <= 0 {
		resp.Error(w, http.StatusUnauthorized, resp.CodeUnauthorized, "authentication required", reqID, "")
		return
	}

	var req domain.UpdateCompanySettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("invalid request body", zap.String("request_id", reqID), zap.Error(err))
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "invalid request body", reqID, "")
		return
	}

	if req.PickingStrategy != nil && !req.PickingStrategy.IsValid() {
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "picking_strategy must be 'FEFO' or 'FIFO'", reqID, "")
		return
	}

	settings, err := h.settingsService.Update(companyID, &req)
	if err != nil {
		h.logger.Error("update settings failed", zap.String("request_id", reqID), zap.Error(err))
		resp.Error(w, http.StatusInternalServerError, resp.CodeInternalError, "update settings failed", reqID, "")
		return
	}

	resp.OK(w, settings, reqID, "")
}
