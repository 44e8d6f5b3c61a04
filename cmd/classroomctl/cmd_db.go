package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"classroom-backend/internal/database"
	"classroom-backend/internal/model"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "스키마 마이그레이션 (AutoMigrate)",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(cmd)
			if err != nil {
				return err
			}
			defer closeDB(db)

			if err := database.Migrate(db); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ Migrated %d tables\n", len(model.AllModels()))
			return nil
		},
	}
}

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "DB 상태 점검",
	}
	cmd.AddCommand(newDBCheckCmd())
	return cmd
}

func newDBCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "테이블 존재 여부와 미팅 상태별 개수 확인",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(cmd)
			if err != nil {
				return err
			}
			defer closeDB(db)

			out := cmd.OutOrStdout()
			if err := database.Ping(db); err != nil {
				return err
			}
			fmt.Fprintln(out, "✅ Connected to database")
			fmt.Fprintln(out)

			missing := 0
			fmt.Fprintln(out, "📋 Tables:")
			for _, m := range model.AllModels() {
				stmt := db.Model(m).Statement
				if err := stmt.Parse(m); err != nil {
					return fmt.Errorf("parse model: %w", err)
				}
				table := stmt.Schema.Table
				if db.Migrator().HasTable(m) {
					fmt.Fprintf(out, "  ✅ %s\n", table)
				} else {
					fmt.Fprintf(out, "  ❌ %s\n", table)
					missing++
				}
			}
			if missing > 0 {
				return fmt.Errorf("%d tables missing, run `classroomctl migrate`", missing)
			}

			type statusCount struct {
				Status string
				Count  int64
			}
			var counts []statusCount
			if err := db.Model(&model.Meeting{}).
				Select("status, COUNT(*) AS count").
				Group("status").
				Order("status").
				Scan(&counts).Error; err != nil {
				return fmt.Errorf("count meetings: %w", err)
			}

			fmt.Fprintln(out)
			fmt.Fprintln(out, "📊 Meetings by status:")
			for _, c := range counts {
				fmt.Fprintf(out, "  - %s: %d\n", c.Status, c.Count)
			}

			var present int64
			if err := db.Model(&model.Participant{}).Where("is_present = ?", true).Count(&present).Error; err != nil {
				return fmt.Errorf("count present participants: %w", err)
			}
			fmt.Fprintf(out, "👥 Present participants: %d\n", present)
			return nil
		},
	}
}
