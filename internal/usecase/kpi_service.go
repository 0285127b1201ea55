package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"metricflow/internal/domain"
	"metricflow/internal/formula"
)

// KPIRepository はKPI定義のデータアクセスのインターフェース。
type KPIRepository interface {
	Create(ctx context.Context, kpi *domain.KPIDefinition) error
	FindByID(ctx context.Context, orgID, kpiID string) (*domain.KPIDefinition, error)
	FindAllByOrgID(ctx context.Context, orgID string) ([]*domain.KPIDefinition, error)
	Update(ctx context.Context, kpi *domain.KPIDefinition) error
	Delete(ctx context.Context, orgID, kpiID string) error
	CountPresetsByOrgID(ctx context.Context, orgID string) (int64, error)
}

// KPIPreset はシステム提供のプリセットKPI定義。
type KPIPreset struct {
	Name        string
	Description string
	Formula     string
	Category    string
	TimePeriod  domain.TimePeriod
}

// defaultPresets は登録時に組織へ展開できるプリセットKPI。
var defaultPresets = []KPIPreset{
	{
		Name:        "Conversion Rate",
		Description: "Percentage of leads that convert to closed deals",
		Formula:     "(deals_closed / leads_received) * 100",
		Category:    "Sales",
		TimePeriod:  domain.TimePeriodDaily,
	},
	{
		Name:        "Customer Acquisition Cost (CAC)",
		Description: "Average cost to acquire a new customer",
		Formula:     "marketing_spend / new_customers",
		Category:    "Marketing",
		TimePeriod:  domain.TimePeriodMonthly,
	},
	{
		Name:        "Revenue per Employee",
		Description: "Total revenue divided by number of employees",
		Formula:     "total_revenue / employee_count",
		Category:    "Operations",
		TimePeriod:  domain.TimePeriodMonthly,
	},
	{
		Name:        "Average Deal Size",
		Description: "Average revenue per closed deal",
		Formula:     "total_revenue / deals_closed",
		Category:    "Sales",
		TimePeriod:  domain.TimePeriodWeekly,
	},
	{
		Name:        "Lead Response Time",
		Description: "Average time to respond to leads (in hours)",
		Formula:     "total_response_time / leads_contacted",
		Category:    "Sales",
		TimePeriod:  domain.TimePeriodDaily,
	},
}

// KPICreateInput はKPI作成の入力。
type KPICreateInput struct {
	Name        string
	Description string
	Formula     string
	Category    string
	TimePeriod  domain.TimePeriod
	IsShared    bool
}

// KPIUpdateInput はKPI更新の入力。nilのフィールドは変更しない。
type KPIUpdateInput struct {
	Name        *string
	Description *string
	Formula     *string
	Category    *string
	TimePeriod  *domain.TimePeriod
	IsShared    *bool
}

// KPIWithEntries はKPI定義と直近のデータエントリの組。
type KPIWithEntries struct {
	KPI     *domain.KPIDefinition
	Entries []*domain.DataEntry
}

// KPIService はKPI定義のビジネスロジックを提供する。
type KPIService struct {
	kpiRepo   KPIRepository
	entryRepo EntryRepository
}

// NewKPIService は新しいKPIServiceを生成する。
func NewKPIService(kpiRepo KPIRepository, entryRepo EntryRepository) *KPIService {
	return &KPIService{
		kpiRepo:   kpiRepo,
		entryRepo: entryRepo,
	}
}

// ListKPIs は組織の全KPI定義を取得する。
func (s *KPIService) ListKPIs(ctx context.Context, orgID string) ([]*domain.KPIDefinition, error) {
	return s.kpiRepo.FindAllByOrgID(ctx, orgID)
}

// GetKPI は組織スコープで単一のKPI定義を取得する。
func (s *KPIService) GetKPI(ctx context.Context, orgID, kpiID string) (*domain.KPIDefinition, error) {
	kpi, err := s.kpiRepo.FindByID(ctx, orgID, kpiID)
	if err != nil {
		return nil, err
	}
	if kpi == nil {
		return nil, domain.ErrKPINotFound
	}
	return kpi, nil
}

// GetKPIWithEntries はKPI定義と直近最大limit件のエントリを取得する。
func (s *KPIService) GetKPIWithEntries(ctx context.Context, orgID, kpiID string, limit int) (*KPIWithEntries, error) {
	kpi, err := s.GetKPI(ctx, orgID, kpiID)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = 30
	}
	entries, err := s.entryRepo.FindRecentByKPI(ctx, orgID, kpiID, limit)
	if err != nil {
		return nil, err
	}

	return &KPIWithEntries{KPI: kpi, Entries: entries}, nil
}

// CreateKPI はカスタムKPIを作成する。計算式を検証し、入力変数を抽出する。
func (s *KPIService) CreateKPI(ctx context.Context, orgID, userID string, input KPICreateInput) (*domain.KPIDefinition, error) {
	inputFields, err := formula.Validate(input.Formula)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidFormula, err)
	}

	timePeriod := input.TimePeriod
	if timePeriod == "" {
		timePeriod = domain.TimePeriodDaily
	}
	if !timePeriod.Valid() {
		return nil, fmt.Errorf("%w: unknown time period %q", domain.ErrInvalidFormula, timePeriod)
	}

	kpi := &domain.KPIDefinition{
		OrgID:       orgID,
		Name:        input.Name,
		Description: input.Description,
		Formula:     input.Formula,
		InputFields: inputFields,
		Category:    input.Category,
		TimePeriod:  timePeriod,
		IsPreset:    false,
		IsShared:    input.IsShared,
		CreatedBy:   userID,
	}
	if err := s.kpiRepo.Create(ctx, kpi); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "kpi created",
		"org_id", orgID,
		"kpi_id", kpi.ID,
		"name", kpi.Name,
	)
	return kpi, nil
}

// UpdateKPI はカスタムKPIを更新する。プリセットは変更不可。
// 計算式が変わった場合は入力変数を再抽出する。
func (s *KPIService) UpdateKPI(ctx context.Context, orgID, kpiID string, input KPIUpdateInput) (*domain.KPIDefinition, error) {
	kpi, err := s.GetKPI(ctx, orgID, kpiID)
	if err != nil {
		return nil, err
	}
	if kpi.IsPreset {
		return nil, domain.ErrPresetImmutable
	}

	if input.Name != nil {
		kpi.Name = *input.Name
	}
	if input.Description != nil {
		kpi.Description = *input.Description
	}
	if input.Formula != nil {
		inputFields, err := formula.Validate(*input.Formula)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidFormula, err)
		}
		kpi.Formula = *input.Formula
		kpi.InputFields = inputFields
	}
	if input.Category != nil {
		kpi.Category = *input.Category
	}
	if input.TimePeriod != nil {
		if !input.TimePeriod.Valid() {
			return nil, fmt.Errorf("%w: unknown time period %q", domain.ErrInvalidFormula, *input.TimePeriod)
		}
		kpi.TimePeriod = *input.TimePeriod
	}
	if input.IsShared != nil {
		kpi.IsShared = *input.IsShared
	}

	if err := s.kpiRepo.Update(ctx, kpi); err != nil {
		return nil, err
	}
	return kpi, nil
}

// DeleteKPI はカスタムKPIを削除する。プリセットは削除不可。
func (s *KPIService) DeleteKPI(ctx context.Context, orgID, kpiID string) error {
	kpi, err := s.GetKPI(ctx, orgID, kpiID)
	if err != nil {
		return err
	}
	if kpi.IsPreset {
		return domain.ErrPresetImmutable
	}
	return s.kpiRepo.Delete(ctx, orgID, kpiID)
}

// AvailablePresets はまだ組織に追加されていないプリセット一覧を返す。
func (s *KPIService) AvailablePresets(ctx context.Context, orgID string) ([]KPIPreset, error) {
	existing, err := s.kpiRepo.FindAllByOrgID(ctx, orgID)
	if err != nil {
		return nil, err
	}

	existingNames := make(map[string]bool)
	for _, kpi := range existing {
		if kpi.IsPreset {
			existingNames[kpi.Name] = true
		}
	}

	available := make([]KPIPreset, 0, len(defaultPresets))
	for _, preset := range defaultPresets {
		if !existingNames[preset.Name] {
			available = append(available, preset)
		}
	}
	return available, nil
}

// SeedPresets は組織へプリセットKPIを展開する。
// presetNamesを指定するとその名前のプリセットのみ、nilなら全件。既存の同名プリセットはスキップする。
func (s *KPIService) SeedPresets(ctx context.Context, orgID string, presetNames []string) ([]*domain.KPIDefinition, error) {
	existing, err := s.kpiRepo.FindAllByOrgID(ctx, orgID)
	if err != nil {
		return nil, err
	}

	existingNames := make(map[string]bool)
	for _, kpi := range existing {
		if kpi.IsPreset {
			existingNames[kpi.Name] = true
		}
	}

	requested := make(map[string]bool)
	for _, name := range presetNames {
		requested[name] = true
	}

	var created []*domain.KPIDefinition
	for _, preset := range defaultPresets {
		if existingNames[preset.Name] {
			continue
		}
		if presetNames != nil && !requested[preset.Name] {
			continue
		}

		kpi := &domain.KPIDefinition{
			OrgID:       orgID,
			Name:        preset.Name,
			Description: preset.Description,
			Formula:     preset.Formula,
			InputFields: formula.ExtractVariables(preset.Formula),
			Category:    preset.Category,
			TimePeriod:  preset.TimePeriod,
			IsPreset:    true,
		}
		if err := s.kpiRepo.Create(ctx, kpi); err != nil {
			return created, err
		}
		created = append(created, kpi)
	}

	if len(created) > 0 {
		slog.InfoContext(ctx, "presets seeded",
			"org_id", orgID,
			"count", len(created),
		)
	}
	return created, nil
}
