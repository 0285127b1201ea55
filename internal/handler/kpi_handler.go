package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"metricflow/internal/domain"
	"metricflow/internal/middleware"
	"metricflow/internal/usecase"
	"metricflow/pkg/httputil"
)

// KPIHandler はKPI定義と統計のHTTPハンドラを提供する。
type KPIHandler struct {
	kpiService   *usecase.KPIService
	statsService *usecase.StatisticsService
}

// NewKPIHandler は新しいKPIHandlerを生成する。
func NewKPIHandler(kpiService *usecase.KPIService, statsService *usecase.StatisticsService) *KPIHandler {
	return &KPIHandler{
		kpiService:   kpiService,
		statsService: statsService,
	}
}

// KPIResponse はKPI定義のレスポンス形式。
type KPIResponse struct {
	ID          string   `json:"id"`
	OrgID       string   `json:"org_id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Formula     string   `json:"formula"`
	InputFields []string `json:"input_fields"`
	Category    string   `json:"category"`
	TimePeriod  string   `json:"time_period"`
	IsPreset    bool     `json:"is_preset"`
	IsShared    bool     `json:"is_shared"`
	CreatedBy   string   `json:"created_by,omitempty"`
	CreatedAt   string   `json:"created_at"`
}

func kpiResponse(kpi *domain.KPIDefinition) KPIResponse {
	return KPIResponse{
		ID:          kpi.ID,
		OrgID:       kpi.OrgID,
		Name:        kpi.Name,
		Description: kpi.Description,
		Formula:     kpi.Formula,
		InputFields: kpi.InputFields,
		Category:    kpi.Category,
		TimePeriod:  string(kpi.TimePeriod),
		IsPreset:    kpi.IsPreset,
		IsShared:    kpi.IsShared,
		CreatedBy:   kpi.CreatedBy,
		CreatedAt:   kpi.CreatedAt.Format(time.RFC3339),
	}
}

// KPICreateRequest はKPI作成のリクエスト形式。
type KPICreateRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Formula     string `json:"formula"`
	Category    string `json:"category"`
	TimePeriod  string `json:"time_period"`
	IsShared    bool   `json:"is_shared"`
}

// KPIUpdateRequest はKPI更新のリクエスト形式。nilのフィールドは変更しない。
type KPIUpdateRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Formula     *string `json:"formula"`
	Category    *string `json:"category"`
	TimePeriod  *string `json:"time_period"`
	IsShared    *bool   `json:"is_shared"`
}

// PresetResponse はプリセットKPIのレスポンス形式。
type PresetResponse struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Formula     string `json:"formula"`
	Category    string `json:"category"`
	TimePeriod  string `json:"time_period"`
}

// SeedPresetsRequest はプリセット展開のリクエスト形式。
type SeedPresetsRequest struct {
	PresetNames []string `json:"preset_names"`
}

// ListKPIs は組織の全KPI定義を取得する。
func (h *KPIHandler) ListKPIs(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())

	kpis, err := h.kpiService.ListKPIs(r.Context(), user.OrgID)
	if err != nil {
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	response := make([]KPIResponse, len(kpis))
	for i, kpi := range kpis {
		response[i] = kpiResponse(kpi)
	}
	httputil.JSON(w, http.StatusOK, map[string]interface{}{"kpis": response})
}

// GetKPI は単一のKPI定義と直近のエントリを取得する。
func (h *KPIHandler) GetKPI(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())
	kpiID := chi.URLParam(r, "kpi_id")

	result, err := h.kpiService.GetKPIWithEntries(r.Context(), user.OrgID, kpiID, queryInt(r, "limit", 30))
	if err != nil {
		if errors.Is(err, domain.ErrKPINotFound) {
			httputil.Error(w, http.StatusNotFound, "KPI_NOT_FOUND", "kpi not found")
			return
		}
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	entries := make([]EntryResponse, len(result.Entries))
	for i, e := range result.Entries {
		entries[i] = entryResponse(e)
	}
	httputil.JSON(w, http.StatusOK, map[string]interface{}{
		"kpi":     kpiResponse(result.KPI),
		"entries": entries,
	})
}

// CreateKPI はカスタムKPIを作成する。
func (h *KPIHandler) CreateKPI(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())

	var req KPICreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	if req.Name == "" || req.Formula == "" {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "name and formula are required")
		return
	}

	kpi, err := h.kpiService.CreateKPI(r.Context(), user.OrgID, user.ID, usecase.KPICreateInput{
		Name:        req.Name,
		Description: req.Description,
		Formula:     req.Formula,
		Category:    req.Category,
		TimePeriod:  domain.TimePeriod(req.TimePeriod),
		IsShared:    req.IsShared,
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidFormula) {
			httputil.Error(w, http.StatusBadRequest, "INVALID_FORMULA", err.Error())
			return
		}
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	middleware.WriteAuditLog(r.Context(), "CREATE_KPI", user.OrgID, user.ID, "SUCCESS")
	httputil.JSON(w, http.StatusCreated, kpiResponse(kpi))
}

// UpdateKPI はカスタムKPIを更新する。
func (h *KPIHandler) UpdateKPI(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())
	kpiID := chi.URLParam(r, "kpi_id")

	var req KPIUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}

	input := usecase.KPIUpdateInput{
		Name:        req.Name,
		Description: req.Description,
		Formula:     req.Formula,
		Category:    req.Category,
		IsShared:    req.IsShared,
	}
	if req.TimePeriod != nil {
		period := domain.TimePeriod(*req.TimePeriod)
		input.TimePeriod = &period
	}

	kpi, err := h.kpiService.UpdateKPI(r.Context(), user.OrgID, kpiID, input)
	if err != nil {
		if errors.Is(err, domain.ErrKPINotFound) {
			httputil.Error(w, http.StatusNotFound, "KPI_NOT_FOUND", "kpi not found")
			return
		}
		if errors.Is(err, domain.ErrPresetImmutable) {
			httputil.Error(w, http.StatusForbidden, "PRESET_IMMUTABLE", "preset kpis cannot be modified")
			return
		}
		if errors.Is(err, domain.ErrInvalidFormula) {
			httputil.Error(w, http.StatusBadRequest, "INVALID_FORMULA", err.Error())
			return
		}
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	middleware.WriteAuditLog(r.Context(), "UPDATE_KPI", user.OrgID, user.ID, "SUCCESS")
	httputil.JSON(w, http.StatusOK, kpiResponse(kpi))
}

// DeleteKPI はカスタムKPIを削除する。
func (h *KPIHandler) DeleteKPI(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())
	kpiID := chi.URLParam(r, "kpi_id")

	err := h.kpiService.DeleteKPI(r.Context(), user.OrgID, kpiID)
	if err != nil {
		if errors.Is(err, domain.ErrKPINotFound) {
			httputil.Error(w, http.StatusNotFound, "KPI_NOT_FOUND", "kpi not found")
			return
		}
		if errors.Is(err, domain.ErrPresetImmutable) {
			httputil.Error(w, http.StatusForbidden, "PRESET_IMMUTABLE", "preset kpis cannot be deleted")
			return
		}
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	middleware.WriteAuditLog(r.Context(), "DELETE_KPI", user.OrgID, user.ID, "SUCCESS")
	w.WriteHeader(http.StatusNoContent)
}

// ListPresets は未展開のプリセット一覧を取得する。
func (h *KPIHandler) ListPresets(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())

	presets, err := h.kpiService.AvailablePresets(r.Context(), user.OrgID)
	if err != nil {
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	response := make([]PresetResponse, len(presets))
	for i, p := range presets {
		response[i] = PresetResponse{
			Name:        p.Name,
			Description: p.Description,
			Formula:     p.Formula,
			Category:    p.Category,
			TimePeriod:  string(p.TimePeriod),
		}
	}
	httputil.JSON(w, http.StatusOK, map[string]interface{}{"presets": response})
}

// SeedPresets は組織へプリセットKPIを展開する。
func (h *KPIHandler) SeedPresets(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())

	var req SeedPresetsRequest
	// ボディ省略時は全プリセットを展開する
	_ = json.NewDecoder(r.Body).Decode(&req)

	created, err := h.kpiService.SeedPresets(r.Context(), user.OrgID, req.PresetNames)
	if err != nil {
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	response := make([]KPIResponse, len(created))
	for i, kpi := range created {
		response[i] = kpiResponse(kpi)
	}
	middleware.WriteAuditLog(r.Context(), "SEED_PRESETS", user.OrgID, user.ID, "SUCCESS")
	httputil.JSON(w, http.StatusCreated, map[string]interface{}{"kpis": response})
}

// GetStatistics は期間内のKPI統計サマリを取得する。
func (h *KPIHandler) GetStatistics(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())
	kpiID := chi.URLParam(r, "kpi_id")

	stats, err := h.statsService.CalculateStats(r.Context(), user.OrgID, kpiID, queryInt(r, "period_days", 30))
	if err != nil {
		if errors.Is(err, domain.ErrKPINotFound) {
			httputil.Error(w, http.StatusNotFound, "KPI_NOT_FOUND", "kpi not found")
			return
		}
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]interface{}{
		"kpi_id":        stats.KPIID,
		"kpi_name":      stats.KPIName,
		"period_days":   stats.PeriodDays,
		"data_points":   stats.DataPoints,
		"mean":          stats.Mean,
		"median":        stats.Median,
		"std_dev":       stats.StdDev,
		"min_value":     stats.MinValue,
		"max_value":     stats.MaxValue,
		"percentile_25": stats.Percentile25,
		"percentile_75": stats.Percentile75,
		"percentile_90": stats.Percentile90,
		"current_value": stats.CurrentValue,
		"all_time_high": stats.AllTimeHigh,
		"all_time_low":  stats.AllTimeLow,
	})
}

// GetTrend は直近エントリの傾向を取得する。
func (h *KPIHandler) GetTrend(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())
	kpiID := chi.URLParam(r, "kpi_id")

	trend, err := h.statsService.GetTrend(r.Context(), user.OrgID, kpiID, queryInt(r, "limit", 10))
	if err != nil {
		if errors.Is(err, domain.ErrKPINotFound) {
			httputil.Error(w, http.StatusNotFound, "KPI_NOT_FOUND", "kpi not found")
			return
		}
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]interface{}{
		"direction":         string(trend.Direction),
		"consecutive_count": trend.ConsecutiveCount,
		"percentage_change": trend.PercentageChange,
	})
}

// queryInt はクエリパラメータを整数として読み取る。不正な値は既定値を返す。
func queryInt(r *http.Request, name string, defaultValue int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return defaultValue
	}
	return value
}
