package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"metricflow/internal/domain"
	"metricflow/internal/formula"
)

// EntryRepository はデータエントリのデータアクセスのインターフェース。
type EntryRepository interface {
	FindByKey(ctx context.Context, orgID, kpiID string, date time.Time, roomID string) (*domain.DataEntry, error)
	FindByID(ctx context.Context, orgID, entryID string) (*domain.DataEntry, error)
	Create(ctx context.Context, entry *domain.DataEntry) error
	UpdateValues(ctx context.Context, entry *domain.DataEntry) error
	Delete(ctx context.Context, orgID, entryID string) error
	FindRangeByKPI(ctx context.Context, orgID, kpiID string, start, end time.Time) ([]*domain.DataEntry, error)
	FindRecentByKPI(ctx context.Context, orgID, kpiID string, limit int) ([]*domain.DataEntry, error)
	AllTimeRange(ctx context.Context, orgID, kpiID string) (*float64, *float64, error)
	LastEntryDate(ctx context.Context, orgID, kpiID string) (*time.Time, error)
	CountByKPI(ctx context.Context, orgID, kpiID string) (int64, error)
}

// EntryInput は1件のKPIデータ入力。
type EntryInput struct {
	KPIID  string
	Values map[string]float64
}

// EntrySubmitInput は同一日付・同一ルームに対する一括データ入力。
type EntrySubmitInput struct {
	Date    time.Time
	RoomID  string
	Entries []EntryInput
}

// EntryError は一括入力時の1件分の失敗を表す。
type EntryError struct {
	KPIID   string
	Message string
}

// EntrySubmitResult は一括入力の結果。成功分と失敗分を分けて返す。
type EntrySubmitResult struct {
	Saved  []*domain.DataEntry
	Errors []EntryError
}

// EntryService はKPIデータ入力のビジネスロジックを提供する。
type EntryService struct {
	entryRepo EntryRepository
	kpiRepo   KPIRepository
}

// NewEntryService は新しいEntryServiceを生成する。
func NewEntryService(entryRepo EntryRepository, kpiRepo KPIRepository) *EntryService {
	return &EntryService{
		entryRepo: entryRepo,
		kpiRepo:   kpiRepo,
	}
}

// SubmitEntries は複数KPIのデータを一括で登録する。
// 1件の失敗で全体を止めず、KPIごとにエラーを収集して返す。
// 同一(org, kpi, date, room)の既存エントリは上書きする（upsert）。
func (s *EntryService) SubmitEntries(ctx context.Context, orgID, userID string, input EntrySubmitInput) (*EntrySubmitResult, error) {
	result := &EntrySubmitResult{}

	for _, item := range input.Entries {
		entry, err := s.upsertEntry(ctx, orgID, userID, input.Date, input.RoomID, item)
		if err != nil {
			result.Errors = append(result.Errors, EntryError{
				KPIID:   item.KPIID,
				Message: err.Error(),
			})
			continue
		}
		result.Saved = append(result.Saved, entry)
	}

	slog.InfoContext(ctx, "entries submitted",
		"org_id", orgID,
		"saved", len(result.Saved),
		"failed", len(result.Errors),
	)
	return result, nil
}

// upsertEntry は1件のKPIデータを検証・計算して保存する。
func (s *EntryService) upsertEntry(ctx context.Context, orgID, userID string, date time.Time, roomID string, input EntryInput) (*domain.DataEntry, error) {
	kpi, err := s.kpiRepo.FindByID(ctx, orgID, input.KPIID)
	if err != nil {
		return nil, err
	}
	if kpi == nil {
		return nil, domain.ErrKPINotFound
	}

	if len(input.Values) == 0 {
		return nil, fmt.Errorf("no values provided")
	}
	for _, field := range kpi.InputFields {
		if _, ok := input.Values[field]; !ok {
			return nil, fmt.Errorf("missing value for field %q", field)
		}
	}

	calculated, err := formula.Evaluate(kpi.Formula, input.Values)
	if err != nil {
		return nil, fmt.Errorf("formula evaluation failed: %w", err)
	}

	normalized := domain.NormalizeEntryDate(date, kpi.TimePeriod)

	existing, err := s.entryRepo.FindByKey(ctx, orgID, input.KPIID, normalized, roomID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		existing.Values = input.Values
		existing.CalculatedValue = calculated
		existing.EnteredBy = userID
		if err := s.entryRepo.UpdateValues(ctx, existing); err != nil {
			return nil, err
		}
		return existing, nil
	}

	entry := &domain.DataEntry{
		OrgID:           orgID,
		KPIID:           input.KPIID,
		RoomID:          roomID,
		Date:            normalized,
		Values:          input.Values,
		CalculatedValue: calculated,
		EnteredBy:       userID,
	}
	if err := s.entryRepo.Create(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// ListEntries は期間内のエントリを日付の新しい順で取得する。
// 期間未指定の場合は直近30日。
func (s *EntryService) ListEntries(ctx context.Context, orgID, kpiID string, start, end time.Time) ([]*domain.DataEntry, error) {
	kpi, err := s.kpiRepo.FindByID(ctx, orgID, kpiID)
	if err != nil {
		return nil, err
	}
	if kpi == nil {
		return nil, domain.ErrKPINotFound
	}

	if end.IsZero() {
		end = time.Now().UTC().Truncate(24 * time.Hour)
	}
	if start.IsZero() {
		start = end.AddDate(0, 0, -30)
	}
	return s.entryRepo.FindRangeByKPI(ctx, orgID, kpiID, start, end)
}

// DeleteEntry は組織スコープでデータエントリを削除する。
func (s *EntryService) DeleteEntry(ctx context.Context, orgID, entryID string) error {
	entry, err := s.entryRepo.FindByID(ctx, orgID, entryID)
	if err != nil {
		return err
	}
	if entry == nil {
		return domain.ErrEntryNotFound
	}

	if err := s.entryRepo.Delete(ctx, orgID, entryID); err != nil {
		return err
	}
	slog.InfoContext(ctx, "entry deleted",
		"org_id", orgID,
		"entry_id", entryID,
	)
	return nil
}
