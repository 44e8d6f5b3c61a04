package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"classroom-backend/internal/config"
	"classroom-backend/internal/database"
	"classroom-backend/internal/lifecycle"
	"classroom-backend/internal/service"
	"classroom-backend/internal/store"
	"classroom-backend/pkg/logger"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "classroomctl",
		Short:         "Classroom session gateway 관리 도구",
		Long:          "강의실 미팅 DB 마이그레이션, 상태 점검, 미팅 관리, 테스트용 토큰 발급",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("db-driver", "", "DB 드라이버 (postgres | sqlite, 기본값은 DB_DRIVER)")
	rootCmd.PersistentFlags().String("sqlite-path", "", "SQLite 파일 경로 (기본값은 DB_SQLITE_PATH)")
	rootCmd.PersistentFlags().String("log-level", "warn", "로그 레벨")

	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newDBCmd())
	rootCmd.AddCommand(newMeetingCmd())
	rootCmd.AddCommand(newParticipantsCmd())
	rootCmd.AddCommand(newTokenCmd())
	return rootCmd
}

// openDB 환경 변수 + 플래그로 DB 연결
func openDB(cmd *cobra.Command) (*gorm.DB, error) {
	cfg := config.LoadDatabase()
	if v, _ := cmd.Flags().GetString("db-driver"); v != "" {
		cfg.Driver = v
	}
	if v, _ := cmd.Flags().GetString("sqlite-path"); v != "" {
		cfg.SQLitePath = v
	}
	return database.Open(cfg)
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func newLogger(cmd *cobra.Command) *slog.Logger {
	level, _ := cmd.Flags().GetString("log-level")
	l, err := logger.New(logger.Config{Level: level, Output: cmd.ErrOrStderr()})
	if err != nil {
		return logger.Discard()
	}
	return l
}

func newController(cmd *cobra.Command, db *gorm.DB) *lifecycle.Controller {
	return lifecycle.New(store.New(db), service.NewMemberService(db), newLogger(cmd))
}

func mustGetInt64(cmd *cobra.Command, name string) int64 {
	v, _ := cmd.Flags().GetInt64(name)
	return v
}

func mustGetString(cmd *cobra.Command, name string) string {
	v, _ := cmd.Flags().GetString(name)
	return v
}
