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

// RoomHandler はルーム管理のHTTPハンドラを提供する。
type RoomHandler struct {
	service *usecase.RoomService
}

// NewRoomHandler は新しいRoomHandlerを生成する。
func NewRoomHandler(service *usecase.RoomService) *RoomHandler {
	return &RoomHandler{service: service}
}

// RoomResponse はルームのレスポンス形式。
type RoomResponse struct {
	ID           string `json:"id"`
	OrgID        string `json:"org_id"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	ParentRoomID string `json:"parent_room_id,omitempty"`
	CreatedBy    string `json:"created_by,omitempty"`
	CreatedAt    string `json:"created_at"`
}

func roomResponse(room *domain.Room) RoomResponse {
	return RoomResponse{
		ID:           room.ID,
		OrgID:        room.OrgID,
		Name:         room.Name,
		Description:  room.Description,
		ParentRoomID: room.ParentRoomID,
		CreatedBy:    room.CreatedBy,
		CreatedAt:    room.CreatedAt.Format(time.RFC3339),
	}
}

// RoomCreateRequest はルーム作成のリクエスト形式。
type RoomCreateRequest struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	ParentRoomID string `json:"parent_room_id"`
}

// RoomUpdateRequest はルーム更新のリクエスト形式。省略されたフィールドは変更しない。
type RoomUpdateRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

// RoomAssignKPIRequest はKPI割り当てのリクエスト形式。
type RoomAssignKPIRequest struct {
	KPIID string `json:"kpi_id"`
}

// RoomAssignUserRequest はユーザー割り当てのリクエスト形式。
type RoomAssignUserRequest struct {
	UserID string `json:"user_id"`
}

// roomError はルーム操作の共通エラー応答を書き出す。
func roomError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrAdminRequired):
		httputil.Error(w, http.StatusForbidden, "ADMIN_REQUIRED", "admin access required")
	case errors.Is(err, domain.ErrRoomNotFound):
		httputil.Error(w, http.StatusNotFound, "ROOM_NOT_FOUND", "room not found")
	case errors.Is(err, domain.ErrRoomAccessDenied):
		httputil.Error(w, http.StatusForbidden, "ROOM_ACCESS_DENIED", "room access denied")
	case errors.Is(err, domain.ErrDuplicateRoom):
		httputil.Error(w, http.StatusConflict, "DUPLICATE_ROOM", err.Error())
	case errors.Is(err, domain.ErrKPINotFound):
		httputil.Error(w, http.StatusNotFound, "KPI_NOT_FOUND", "kpi not found")
	case errors.Is(err, domain.ErrUserNotFound):
		httputil.Error(w, http.StatusNotFound, "USER_NOT_FOUND", "user not found")
	default:
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}

// CreateRoom は新しいルームを作成する。
func (h *RoomHandler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())

	var req RoomCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "name is required")
		return
	}

	room, err := h.service.CreateRoom(r.Context(), user.OrgID, user, usecase.RoomCreateInput{
		Name:         req.Name,
		Description:  req.Description,
		ParentRoomID: req.ParentRoomID,
	})
	if err != nil {
		roomError(w, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "CREATE_ROOM", user.OrgID, user.ID, "SUCCESS")
	httputil.JSON(w, http.StatusCreated, roomResponse(room))
}

// ListRooms はアクセス可能なルーム一覧を取得する。
func (h *RoomHandler) ListRooms(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())

	rooms, err := h.service.ListRooms(r.Context(), user.OrgID, user)
	if err != nil {
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	response := make([]RoomResponse, len(rooms))
	for i, room := range rooms {
		response[i] = roomResponse(room)
	}
	httputil.JSON(w, http.StatusOK, map[string]interface{}{"rooms": response})
}

// GetRoom は単一のルームを取得する。
func (h *RoomHandler) GetRoom(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())
	roomID := chi.URLParam(r, "room_id")

	room, err := h.service.GetRoom(r.Context(), user.OrgID, roomID, user)
	if err != nil {
		roomError(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, roomResponse(room))
}

// UpdateRoom はルームの名前・説明を更新する。
func (h *RoomHandler) UpdateRoom(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())
	roomID := chi.URLParam(r, "room_id")

	var req RoomUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	if req.Name != nil && *req.Name == "" {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "name must not be empty")
		return
	}

	room, err := h.service.UpdateRoom(r.Context(), user.OrgID, roomID, user, usecase.RoomUpdateInput{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		roomError(w, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "UPDATE_ROOM", user.OrgID, user.ID, "SUCCESS")
	httputil.JSON(w, http.StatusOK, roomResponse(room))
}

// DeleteRoom はルームをサブルームと割り当てごと削除する。
func (h *RoomHandler) DeleteRoom(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())
	roomID := chi.URLParam(r, "room_id")

	if err := h.service.DeleteRoom(r.Context(), user.OrgID, roomID, user); err != nil {
		roomError(w, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "DELETE_ROOM", user.OrgID, user.ID, "SUCCESS")
	w.WriteHeader(http.StatusNoContent)
}

// AssignKPI はルームにKPIを割り当てる。
func (h *RoomHandler) AssignKPI(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())
	roomID := chi.URLParam(r, "room_id")

	var req RoomAssignKPIRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.KPIID == "" {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "kpi_id is required")
		return
	}

	if err := h.service.AssignKPI(r.Context(), user.OrgID, roomID, req.KPIID, user); err != nil {
		roomError(w, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "ASSIGN_KPI", user.OrgID, user.ID, "SUCCESS")
	httputil.JSON(w, http.StatusCreated, map[string]string{"message": "kpi assigned"})
}

// UnassignKPI はルームからKPIの割り当てを外す。
func (h *RoomHandler) UnassignKPI(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())
	roomID := chi.URLParam(r, "room_id")
	kpiID := chi.URLParam(r, "kpi_id")

	if err := h.service.UnassignKPI(r.Context(), user.OrgID, roomID, kpiID, user); err != nil {
		roomError(w, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "UNASSIGN_KPI", user.OrgID, user.ID, "SUCCESS")
	w.WriteHeader(http.StatusNoContent)
}

// AssignUser はルームにユーザーを割り当てる。
func (h *RoomHandler) AssignUser(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())
	roomID := chi.URLParam(r, "room_id")

	var req RoomAssignUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "user_id is required")
		return
	}

	if err := h.service.AssignUser(r.Context(), user.OrgID, roomID, req.UserID, user); err != nil {
		roomError(w, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "ASSIGN_USER", user.OrgID, user.ID, "SUCCESS")
	httputil.JSON(w, http.StatusCreated, map[string]string{"message": "user assigned"})
}

// ListRoomKPIs はルームに割り当てられたKPI一覧を取得する。
func (h *RoomHandler) ListRoomKPIs(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())
	roomID := chi.URLParam(r, "room_id")

	kpis, err := h.service.ListRoomKPIs(r.Context(), user.OrgID, roomID, user)
	if err != nil {
		roomError(w, err)
		return
	}

	response := make([]KPIResponse, len(kpis))
	for i, kpi := range kpis {
		response[i] = kpiResponse(kpi)
	}
	httputil.JSON(w, http.StatusOK, map[string]interface{}{"kpis": response})
}
