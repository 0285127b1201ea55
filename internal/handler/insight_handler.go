package handler

import (
	"net/http"
	"time"

	"metricflow/internal/domain"
	"metricflow/internal/middleware"
	"metricflow/internal/usecase"
	"metricflow/pkg/httputil"
)

// InsightHandler はインサイトのHTTPハンドラを提供する。
type InsightHandler struct {
	service *usecase.InsightService
}

// NewInsightHandler は新しいInsightHandlerを生成する。
func NewInsightHandler(service *usecase.InsightService) *InsightHandler {
	return &InsightHandler{service: service}
}

// InsightResponse はインサイトのレスポンス形式。
type InsightResponse struct {
	ID          string `json:"id"`
	KPIID       string `json:"kpi_id,omitempty"`
	InsightText string `json:"insight_text"`
	Priority    string `json:"priority"`
	GeneratedAt string `json:"generated_at"`
}

func insightResponse(insight *domain.Insight) InsightResponse {
	return InsightResponse{
		ID:          insight.ID,
		KPIID:       insight.KPIID,
		InsightText: insight.InsightText,
		Priority:    string(insight.Priority),
		GeneratedAt: insight.GeneratedAt.Format(time.RFC3339),
	}
}

// ListInsights は保存済みインサイトを優先度順で取得する。
func (h *InsightHandler) ListInsights(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())

	list, err := h.service.GetCachedInsights(r.Context(), user.OrgID)
	if err != nil {
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	response := make([]InsightResponse, len(list.Insights))
	for i, insight := range list.Insights {
		response[i] = insightResponse(insight)
	}
	httputil.JSON(w, http.StatusOK, map[string]interface{}{
		"insights":      response,
		"needs_refresh": list.NeedsRefresh,
	})
}

// GenerateInsights は組織の全KPIを分析し、インサイトを再生成する。
func (h *InsightHandler) GenerateInsights(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())

	insights, err := h.service.GenerateInsights(r.Context(), user.OrgID)
	if err != nil {
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	response := make([]InsightResponse, len(insights))
	for i, insight := range insights {
		response[i] = insightResponse(insight)
	}
	middleware.WriteAuditLog(r.Context(), "GENERATE_INSIGHTS", user.OrgID, user.ID, "SUCCESS")
	httputil.JSON(w, http.StatusOK, map[string]interface{}{"insights": response})
}
