package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"metricflow/internal/domain"
	"metricflow/internal/middleware"
	"metricflow/internal/usecase"
	"metricflow/pkg/httputil"
)

// dateLayout はデータ入力で扱う日付形式。
const dateLayout = "2006-01-02"

// EntryHandler はKPIデータ入力のHTTPハンドラを提供する。
type EntryHandler struct {
	service *usecase.EntryService
}

// NewEntryHandler は新しいEntryHandlerを生成する。
func NewEntryHandler(service *usecase.EntryService) *EntryHandler {
	return &EntryHandler{service: service}
}

// EntryItemRequest は1件のKPIデータ入力のリクエスト形式。
type EntryItemRequest struct {
	KPIID  string             `json:"kpi_id"`
	Values map[string]float64 `json:"values"`
}

// EntrySubmitRequest は一括データ入力のリクエスト形式。
type EntrySubmitRequest struct {
	Date    string             `json:"date"`
	RoomID  string             `json:"room_id"`
	Entries []EntryItemRequest `json:"entries"`
}

// EntryResponse はデータエントリのレスポンス形式。
type EntryResponse struct {
	ID              string             `json:"id"`
	KPIID           string             `json:"kpi_id"`
	RoomID          string             `json:"room_id,omitempty"`
	Date            string             `json:"date"`
	Values          map[string]float64 `json:"values"`
	CalculatedValue float64            `json:"calculated_value"`
	EnteredBy       string             `json:"entered_by,omitempty"`
	CreatedAt       string             `json:"created_at"`
}

func entryResponse(entry *domain.DataEntry) EntryResponse {
	return EntryResponse{
		ID:              entry.ID,
		KPIID:           entry.KPIID,
		RoomID:          entry.RoomID,
		Date:            entry.Date.Format(dateLayout),
		Values:          entry.Values,
		CalculatedValue: entry.CalculatedValue,
		EnteredBy:       entry.EnteredBy,
		CreatedAt:       entry.CreatedAt.Format(time.RFC3339),
	}
}

// EntryErrorResponse は一括入力時の1件分の失敗のレスポンス形式。
type EntryErrorResponse struct {
	KPIID   string `json:"kpi_id"`
	Message string `json:"message"`
}

// SubmitEntries は複数KPIのデータを一括登録する。
// 部分的な失敗はHTTP 200でエラー一覧として返す。
func (h *EntryHandler) SubmitEntries(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())

	var req EntrySubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	if len(req.Entries) == 0 {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "entries must not be empty")
		return
	}

	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_DATE", "date must be in YYYY-MM-DD format")
		return
	}

	input := usecase.EntrySubmitInput{
		Date:   date,
		RoomID: req.RoomID,
	}
	for _, item := range req.Entries {
		input.Entries = append(input.Entries, usecase.EntryInput{
			KPIID:  item.KPIID,
			Values: item.Values,
		})
	}

	result, err := h.service.SubmitEntries(r.Context(), user.OrgID, user.ID, input)
	if err != nil {
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	saved := make([]EntryResponse, len(result.Saved))
	for i, entry := range result.Saved {
		saved[i] = entryResponse(entry)
	}
	errs := make([]EntryErrorResponse, len(result.Errors))
	for i, e := range result.Errors {
		errs[i] = EntryErrorResponse{KPIID: e.KPIID, Message: e.Message}
	}

	middleware.WriteAuditLog(r.Context(), "SUBMIT_ENTRIES", user.OrgID, user.ID, "SUCCESS")
	httputil.JSON(w, http.StatusOK, map[string]interface{}{
		"saved":  saved,
		"errors": errs,
	})
}

// ListEntries は指定KPIの期間内のエントリを取得する。
func (h *EntryHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())

	kpiID := r.URL.Query().Get("kpi_id")
	if kpiID == "" {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "kpi_id is required")
		return
	}

	var start, end time.Time
	if raw := r.URL.Query().Get("start_date"); raw != "" {
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil {
			httputil.Error(w, http.StatusBadRequest, "INVALID_DATE", "start_date must be in YYYY-MM-DD format")
			return
		}
		start = parsed
	}
	if raw := r.URL.Query().Get("end_date"); raw != "" {
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil {
			httputil.Error(w, http.StatusBadRequest, "INVALID_DATE", "end_date must be in YYYY-MM-DD format")
			return
		}
		end = parsed
	}

	entries, err := h.service.ListEntries(r.Context(), user.OrgID, kpiID, start, end)
	if err != nil {
		if errors.Is(err, domain.ErrKPINotFound) {
			httputil.Error(w, http.StatusNotFound, "KPI_NOT_FOUND", "kpi not found")
			return
		}
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	response := make([]EntryResponse, len(entries))
	for i, entry := range entries {
		response[i] = entryResponse(entry)
	}
	httputil.JSON(w, http.StatusOK, map[string]interface{}{"entries": response})
}

// DeleteEntry は組織スコープでエントリを削除する。
func (h *EntryHandler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())
	entryID := chi.URLParam(r, "entry_id")

	if err := h.service.DeleteEntry(r.Context(), user.OrgID, entryID); err != nil {
		if errors.Is(err, domain.ErrEntryNotFound) {
			httputil.Error(w, http.StatusNotFound, "ENTRY_NOT_FOUND", "entry not found")
			return
		}
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	middleware.WriteAuditLog(r.Context(), "DELETE_ENTRY", user.OrgID, user.ID, "SUCCESS")
	w.WriteHeader(http.StatusNoContent)
}
