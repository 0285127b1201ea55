package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"metricflow/internal/domain"
	"metricflow/internal/usecase"
)

func setupEntryHandler(kpiRepo *mockKPIRepository, entryRepo *mockEntryRepository) *EntryHandler {
	return NewEntryHandler(usecase.NewEntryService(entryRepo, kpiRepo))
}

func TestEntryHandler_SubmitEntries(t *testing.T) {
	entryRepo := &mockEntryRepository{}
	h := setupEntryHandler(&mockKPIRepository{findByIDResult: testKPI()}, entryRepo)

	body := `{"date":"2026-08-20","entries":[{"kpi_id":"kpi-1","values":{"deals_closed":10,"leads_received":100}}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/entries", bytes.NewBufferString(body))
	w := serveWithUser(http.MethodPost, "/api/entries", h.SubmitEntries, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Saved  []EntryResponse      `json:"saved"`
		Errors []EntryErrorResponse `json:"errors"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Saved) != 1 || len(resp.Errors) != 0 {
		t.Fatalf("expected 1 saved and 0 errors, got %d/%d", len(resp.Saved), len(resp.Errors))
	}
	if resp.Saved[0].CalculatedValue != 10 {
		t.Errorf("expected calculated value 10, got %g", resp.Saved[0].CalculatedValue)
	}
	if resp.Saved[0].Date != "2026-08-20" {
		t.Errorf("unexpected date: %s", resp.Saved[0].Date)
	}
	if len(entryRepo.createdEntries) != 1 {
		t.Errorf("expected 1 created entry, got %d", len(entryRepo.createdEntries))
	}
}

func TestEntryHandler_SubmitEntries_PartialFailure(t *testing.T) {
	h := setupEntryHandler(&mockKPIRepository{findByIDResult: testKPI()}, &mockEntryRepository{})

	// leads_receivedが欠けている
	body := `{"date":"2026-08-20","entries":[{"kpi_id":"kpi-1","values":{"deals_closed":10}}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/entries", bytes.NewBufferString(body))
	w := serveWithUser(http.MethodPost, "/api/entries", h.SubmitEntries, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Saved  []EntryResponse      `json:"saved"`
		Errors []EntryErrorResponse `json:"errors"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Saved) != 0 || len(resp.Errors) != 1 {
		t.Fatalf("expected 0 saved and 1 error, got %d/%d", len(resp.Saved), len(resp.Errors))
	}
	if resp.Errors[0].KPIID != "kpi-1" {
		t.Errorf("unexpected error entry: %+v", resp.Errors[0])
	}
}

func TestEntryHandler_SubmitEntries_InvalidDate(t *testing.T) {
	h := setupEntryHandler(&mockKPIRepository{}, &mockEntryRepository{})

	body := `{"date":"20/08/2026","entries":[{"kpi_id":"kpi-1","values":{"deals_closed":10}}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/entries", bytes.NewBufferString(body))
	w := serveWithUser(http.MethodPost, "/api/entries", h.SubmitEntries, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if code := decodeError(t, w.Body); code != "INVALID_DATE" {
		t.Errorf("expected INVALID_DATE, got %s", code)
	}
}

func TestEntryHandler_SubmitEntries_EmptyEntries(t *testing.T) {
	h := setupEntryHandler(&mockKPIRepository{}, &mockEntryRepository{})

	body := `{"date":"2026-08-20","entries":[]}`
	req := httptest.NewRequest(http.MethodPost, "/api/entries", bytes.NewBufferString(body))
	w := serveWithUser(http.MethodPost, "/api/entries", h.SubmitEntries, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if code := decodeError(t, w.Body); code != "INVALID_REQUEST" {
		t.Errorf("expected INVALID_REQUEST, got %s", code)
	}
}

func TestEntryHandler_ListEntries_MissingKPIID(t *testing.T) {
	h := setupEntryHandler(&mockKPIRepository{findByIDResult: testKPI()}, &mockEntryRepository{})

	req := httptest.NewRequest(http.MethodGet, "/api/entries", nil)
	w := serveWithUser(http.MethodGet, "/api/entries", h.ListEntries, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if code := decodeError(t, w.Body); code != "INVALID_REQUEST" {
		t.Errorf("expected INVALID_REQUEST, got %s", code)
	}
}

func TestEntryHandler_ListEntries_InvalidStartDate(t *testing.T) {
	h := setupEntryHandler(&mockKPIRepository{findByIDResult: testKPI()}, &mockEntryRepository{})

	req := httptest.NewRequest(http.MethodGet, "/api/entries?kpi_id=kpi-1&start_date=bad", nil)
	w := serveWithUser(http.MethodGet, "/api/entries", h.ListEntries, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if code := decodeError(t, w.Body); code != "INVALID_DATE" {
		t.Errorf("expected INVALID_DATE, got %s", code)
	}
}

func TestEntryHandler_DeleteEntry(t *testing.T) {
	entryRepo := &mockEntryRepository{
		findByIDResult: &domain.DataEntry{ID: "entry-1", OrgID: "org-1", KPIID: "kpi-1"},
	}
	h := setupEntryHandler(&mockKPIRepository{}, entryRepo)

	req := httptest.NewRequest(http.MethodDelete, "/api/entries/entry-1", nil)
	w := serveWithUser(http.MethodDelete, "/api/entries/{entry_id}", h.DeleteEntry, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", w.Code, w.Body.String())
	}
	if len(entryRepo.deletedIDs) != 1 || entryRepo.deletedIDs[0] != "entry-1" {
		t.Errorf("expected entry-1 deleted, got %v", entryRepo.deletedIDs)
	}
}

func TestEntryHandler_DeleteEntry_NotFound(t *testing.T) {
	h := setupEntryHandler(&mockKPIRepository{}, &mockEntryRepository{})

	req := httptest.NewRequest(http.MethodDelete, "/api/entries/missing", nil)
	w := serveWithUser(http.MethodDelete, "/api/entries/{entry_id}", h.DeleteEntry, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if code := decodeError(t, w.Body); code != "ENTRY_NOT_FOUND" {
		t.Errorf("expected ENTRY_NOT_FOUND, got %s", code)
	}
}
