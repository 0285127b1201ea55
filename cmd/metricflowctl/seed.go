package main

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"metricflow/config"
	"metricflow/internal/domain"
	"metricflow/internal/infra"
	"metricflow/internal/repository"
	"metricflow/internal/usecase"
)

const (
	demoOrgName   = "Demo Company"
	demoEmail     = "demo@metricflow.io"
	demoPassword  = "Demo1234"
	demoUserName  = "Demo User"
	demoEntryDays = 30
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create a demo organization with sample data",
	Long:  "Create a demo organization with an admin user, preset KPIs and 30 days of sample entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		cfg := config.Load()
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL environment variable is required")
		}

		db, err := infra.NewDB(cfg.DatabaseURL, cfg)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}

		orgRepo := repository.NewOrganizationRepository(db)
		userRepo := repository.NewUserRepository(db)
		kpiRepo := repository.NewKPIRepository(db)
		entryRepo := repository.NewEntryRepository(db)

		kpiSvc := usecase.NewKPIService(kpiRepo, entryRepo)
		entrySvc := usecase.NewEntryService(entryRepo, kpiRepo)

		// デモ組織を作成
		org := &domain.Organization{
			Name:     demoOrgName,
			Industry: "SaaS",
		}
		if err := orgRepo.Create(ctx, org); err != nil {
			return fmt.Errorf("failed to create demo organization: %w", err)
		}
		fmt.Printf("Created organization %q (id: %s)\n", org.Name, org.ID)

		// 管理者ユーザーを作成
		hash, err := bcrypt.GenerateFromPassword([]byte(demoPassword), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("failed to hash demo password: %w", err)
		}
		user := &domain.User{
			OrgID:        org.ID,
			Email:        demoEmail,
			PasswordHash: string(hash),
			Name:         demoUserName,
			Role:         domain.RoleAdmin,
		}
		if err := userRepo.Create(ctx, user); err != nil {
			return fmt.Errorf("failed to create demo user: %w", err)
		}
		fmt.Printf("Created user %s (password: %s)\n", demoEmail, demoPassword)

		// プリセットKPIを展開
		kpis, err := kpiSvc.SeedPresets(ctx, org.ID, nil)
		if err != nil {
			return fmt.Errorf("failed to seed presets: %w", err)
		}
		fmt.Printf("Seeded %d preset KPI(s)\n", len(kpis))

		// 30日分のサンプルデータを登録
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		today := time.Now().UTC().Truncate(24 * time.Hour)
		total := 0
		for day := demoEntryDays - 1; day >= 0; day-- {
			date := today.AddDate(0, 0, -day)

			input := usecase.EntrySubmitInput{Date: date}
			for _, kpi := range kpis {
				values := make(map[string]float64, len(kpi.InputFields))
				for _, field := range kpi.InputFields {
					values[field] = sampleValue(rng, field)
				}
				input.Entries = append(input.Entries, usecase.EntryInput{
					KPIID:  kpi.ID,
					Values: values,
				})
			}

			result, err := entrySvc.SubmitEntries(ctx, org.ID, user.ID, input)
			if err != nil {
				return fmt.Errorf("failed to submit entries for %s: %w", date.Format("2006-01-02"), err)
			}
			total += len(result.Saved)
		}
		fmt.Printf("Created %d data entries over %d days\n", total, demoEntryDays)

		return nil
	},
}

// sampleValue はフィールド名に応じた現実的な値を生成する。
func sampleValue(rng *rand.Rand, field string) float64 {
	switch field {
	case "deals_closed", "new_customers", "leads_contacted":
		return float64(5 + rng.Intn(20))
	case "leads_received":
		return float64(50 + rng.Intn(100))
	case "employee_count":
		return float64(40 + rng.Intn(10))
	case "marketing_spend":
		return 5000 + rng.Float64()*5000
	case "total_revenue":
		return 50000 + rng.Float64()*30000
	case "total_response_time":
		return 20 + rng.Float64()*40
	default:
		return 10 + rng.Float64()*90
	}
}
